// Package auth provides authentication and authorisation for the user centre.
//
// It implements a 4-tier role ladder (guest → user → admin → superAdmin) with:
//   - Argon2id password hashing in self-describing PHC format
//   - RFC 6238 TOTP as an alternative single login factor
//   - HS256 access tokens correlated to stateful refresh tokens
//   - Capability grants that are re-read from the identity store on every check
//   - Compare-and-set permission updates so concurrent grants never lose writes
//
// Access tokens carry no role or capability claims. The subject is resolved
// back to its Identity whenever an authorisation decision is made, so a
// revoked capability takes effect immediately.
package auth
