package api

import (
	"encoding/json"
	"net/http"

	"github.com/ZZSZ-YCT/customSystem/internal/auth"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Transport-only error codes. Everything else comes from auth.ErrorCode.
const (
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeNotImplemented = "not_implemented"
)

// codeStatus maps auth error codes to HTTP statuses.
var codeStatus = map[string]int{
	auth.CodeInvalidCredentials:      http.StatusUnauthorized,
	auth.CodeTokenNotFound:           http.StatusUnauthorized,
	auth.CodeTokenExpired:            http.StatusUnauthorized,
	auth.CodeTokenInvalid:            http.StatusUnauthorized,
	auth.CodeUsernameTaken:           http.StatusConflict,
	auth.CodeInsufficientPermissions: http.StatusForbidden,
	auth.CodeSelfModificationDenied:  http.StatusForbidden,
	auth.CodeInvalidOperation:        http.StatusBadRequest,
	auth.CodeInvalidRequest:          http.StatusBadRequest,
	auth.CodeNotFound:                http.StatusNotFound,
	auth.CodeConflict:                http.StatusConflict,
	auth.CodeStorageFailure:          http.StatusInternalServerError,
	auth.CodeInternal:                http.StatusInternalServerError,
}

// statusForCode returns the HTTP status for an auth error code.
func statusForCode(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeAuthError maps err through auth.ErrorCode. Internal and storage
// failures get a generic message so driver errors never reach the client.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	code := auth.ErrorCode(err)
	status := statusForCode(code)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", code,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		message = "internal server error"
	}
	writeError(w, status, code, message)
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, auth.CodeInvalidRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, auth.CodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, auth.CodeInternal, message)
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
