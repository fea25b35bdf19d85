// Package tokencache puts Redis in front of the refresh-token store.
//
// Refresh and logout look tokens up by value on every call; with the
// cache enabled those reads are served from a Redis hash keyed by the
// SHA-256 of the token value. SQLite remains the source of truth and
// the cache is safe to flush at any time.
package tokencache
