// Package api implements the HTTP interface of the user centre.
//
// This package provides:
//   - Session endpoints under /user (login, register, logout, token refresh)
//   - Capability management (POST /user/prem) and the caller's own view (GET /user/me)
//   - OAuth app registration under /app and the /oauth/callback placeholder
//   - The audit trail (GET /audit), health and Prometheus metrics
//   - Middleware stack (request ID, logging, recovery, CORS, metrics, bearer auth)
//
// # Security
//
// Protected routes take an access token in the Authorization header
// ("Bearer <token>"). authMiddleware verifies it through the session manager,
// which re-reads the identity, and places that identity in the request
// context. Handlers pass it on as the operator; no handler trusts a username
// supplied in a request body for authorisation.
//
// # Errors
//
// Every error is a JSON envelope {status, code, message}. Codes come from
// auth.ErrorCode so transport status and core taxonomy never drift apart.
package api
