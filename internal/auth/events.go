package auth

import (
	"context"
	"time"
)

// EventType names a security-relevant outcome.
type EventType string

// Event types emitted by the auth core.
const (
	EventLoginSucceeded    EventType = "login.succeeded"
	EventLoginFailed       EventType = "login.failed"
	EventLogout            EventType = "logout"
	EventTokenRefreshed    EventType = "token.refreshed"
	EventRefreshFailed     EventType = "token.refresh_failed"
	EventTokensPurged      EventType = "token.purged"
	EventRegistered        EventType = "identity.registered"
	EventRegisterFailed    EventType = "identity.register_failed"
	EventPermissionChanged EventType = "permission.changed"
	EventPermissionDenied  EventType = "permission.denied"
)

// Event describes one auth outcome. It never carries a credential, a
// token value or a TOTP secret.
type Event struct {
	Type       EventType
	Username   string // acting identity, if known
	Target     string // affected identity or resource
	Detail     string
	RemoteAddr string
	Err        error
	Time       time.Time
}

// Succeeded reports whether the event records a successful outcome.
func (e Event) Succeeded() bool {
	return e.Err == nil
}

// Outcome returns "success" or the machine-readable error code.
func (e Event) Outcome() string {
	if e.Err == nil {
		return "success"
	}
	return ErrorCode(e.Err)
}

// EventRecorder receives auth events. Implementations must not block the
// caller for long and must handle their own failures.
type EventRecorder interface {
	Record(ctx context.Context, event Event)
}

// EventRecorders fans an event out to every recorder in order.
type EventRecorders []EventRecorder

// Record implements EventRecorder.
func (rs EventRecorders) Record(ctx context.Context, event Event) {
	for _, r := range rs {
		if r != nil {
			r.Record(ctx, event)
		}
	}
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Event) {}

type remoteAddrKey struct{}

// WithRemoteAddr attaches the caller's network address to ctx so events
// recorded further down can carry it.
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey{}, addr)
}

// RemoteAddrFromContext returns the address stored by WithRemoteAddr.
func RemoteAddrFromContext(ctx context.Context) string {
	addr, _ := ctx.Value(remoteAddrKey{}).(string) //nolint:errcheck // type assertion, not error
	return addr
}
