package auth

import "errors"

// Sentinel errors for auth operations.
// Use errors.Is() to check for these errors in calling code.
var (
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrTokenNotFound           = errors.New("refresh token not found")
	ErrTokenExpired            = errors.New("refresh token has expired")
	ErrTokenInvalid            = errors.New("invalid token")
	ErrUsernameTaken           = errors.New("username already taken")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrInvalidOperation        = errors.New("invalid operation")
	ErrSelfModificationDenied  = errors.New("cannot modify own permissions")
	ErrStorageFailure          = errors.New("storage failure")

	// ErrCredentialKind is a caller error: login needs exactly one of password or TOTP code.
	ErrCredentialKind    = errors.New("exactly one of password or totp code is required")
	ErrIdentityNotFound  = errors.New("identity not found")
	ErrConflict          = errors.New("concurrent modification detected")
	ErrInvalidUsername   = errors.New("invalid username")
	ErrWeakPassword      = errors.New("password too short")
	ErrInvalidCapability = errors.New("invalid capability")

	// ErrInvalidRequest is a generic malformed-input error for callers
	// outside the auth core.
	ErrInvalidRequest = errors.New("invalid request")
)

// Machine-readable error codes exposed to transport callers.
const (
	CodeInvalidCredentials      = "invalid_credentials"
	CodeTokenNotFound           = "token_not_found"
	CodeTokenExpired            = "token_expired"
	CodeTokenInvalid            = "token_invalid"
	CodeUsernameTaken           = "username_taken"
	CodeInsufficientPermissions = "insufficient_permissions"
	CodeInvalidOperation        = "invalid_operation"
	CodeSelfModificationDenied  = "self_modification_denied"
	CodeStorageFailure          = "storage_failure"
	CodeInvalidRequest          = "invalid_request"
	CodeNotFound                = "not_found"
	CodeConflict                = "conflict"
	CodeInternal                = "internal_error"
)

// errorCodes is checked in order; the first match wins.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidCredentials, CodeInvalidCredentials},
	{ErrTokenNotFound, CodeTokenNotFound},
	{ErrTokenExpired, CodeTokenExpired},
	{ErrTokenInvalid, CodeTokenInvalid},
	{ErrUsernameTaken, CodeUsernameTaken},
	{ErrInsufficientPermissions, CodeInsufficientPermissions},
	{ErrInvalidOperation, CodeInvalidOperation},
	{ErrSelfModificationDenied, CodeSelfModificationDenied},
	{ErrCredentialKind, CodeInvalidRequest},
	{ErrInvalidUsername, CodeInvalidRequest},
	{ErrWeakPassword, CodeInvalidRequest},
	{ErrInvalidCapability, CodeInvalidRequest},
	{ErrInvalidRequest, CodeInvalidRequest},
	{ErrIdentityNotFound, CodeNotFound},
	{ErrConflict, CodeConflict},
	{ErrStorageFailure, CodeStorageFailure},
}

// ErrorCode maps err to its machine-readable code.
// Errors outside the auth taxonomy map to CodeInternal; nil maps to "".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}
