package api

import (
	"net/http"
	"time"

	"github.com/ZZSZ-YCT/customSystem/internal/auth"
)

// loginRequest is the request body for POST /user/login.
// Exactly one of Password and TOTP must be set.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTP     string `json:"totp"`
}

// registerRequest is the request body for POST /user/register.
type registerRequest struct {
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

// registerResponse carries the new account and its TOTP secret. This is
// the only response that ever contains the secret.
type registerResponse struct {
	Username    string    `json:"username"`
	Nickname    string    `json:"nickname"`
	Role        auth.Role `json:"role"`
	Permissions []string  `json:"permissions"`
	TOTPSecret  string    `json:"totpSecret"`
}

// refreshRequest is the request body for POST /user/logout and POST /user/getAccessToken.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// accessTokenResponse is the response body for POST /user/getAccessToken.
// RefreshToken is only present when rotation replaced it.
type accessTokenResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// permissionRequest is the request body for POST /user/prem.
type permissionRequest struct {
	UserName       string `json:"userName"`
	PermissionName string `json:"permissionName"`
	Operation      string `json:"operation"`
}

// permissionResponse is the target's capability set after a change.
type permissionResponse struct {
	Username    string   `json:"username"`
	Permissions []string `json:"permissions"`
}

// handleLogin verifies a password or TOTP code and opens a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" {
		writeBadRequest(w, "username is required")
		return
	}

	pair, err := s.sessions.Login(r.Context(), req.Username, auth.Credential{
		Password: req.Password,
		TOTPCode: req.TOTP,
	})
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleRegister creates an account. Anonymous callers may only register
// while self-registration is open; admins and superAdmins always may.
// A bearer token is optional, but one that is present must be valid.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var operator *auth.Identity
	if token, ok := bearerToken(r); ok {
		identity, _, err := s.sessions.Authenticate(r.Context(), token)
		if err != nil {
			s.writeAuthError(w, r, err)
			return
		}
		operator = identity
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if operator == nil || !operator.Role.AtLeast(auth.RoleAdmin) {
		open, err := s.registrar.SelfRegistrationOpen(r.Context())
		if err != nil {
			s.writeAuthError(w, r, err)
			return
		}
		if !open {
			s.writeAuthError(w, r, auth.ErrInsufficientPermissions)
			return
		}
	}

	createdBy := ""
	if operator != nil {
		createdBy = operator.Username
	}

	reg, err := s.registrar.Register(r.Context(), auth.RegisterRequest{
		Username:    req.Username,
		DisplayName: req.Nickname,
		Password:    req.Password,
		CreatedBy:   createdBy,
	})
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.logger.Info("account registered", "username", reg.Identity.Username, "created_by", createdBy)
	writeJSON(w, http.StatusOK, registerResponse{
		Username:    reg.Identity.Username,
		Nickname:    reg.Identity.DisplayName,
		Role:        reg.Identity.Role,
		Permissions: reg.Identity.Permissions,
		TOTPSecret:  reg.TOTPSecret,
	})
}

// handleLogout ends the session that owns the refresh token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		writeBadRequest(w, "refreshToken is required")
		return
	}

	if err := s.sessions.Logout(r.Context(), req.RefreshToken); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// handleGetAccessToken exchanges a refresh token for a new access token.
func (s *Server) handleGetAccessToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		writeBadRequest(w, "refreshToken is required")
		return
	}

	pair, err := s.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, accessTokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	})
}

// handleModifyPermission grants or revokes a capability on behalf of the
// authenticated operator.
func (s *Server) handleModifyPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.UserName == "" {
		writeBadRequest(w, "userName is required")
		return
	}

	operator := operatorFromContext(r.Context())
	target, err := s.permissions.ModifyPermission(r.Context(), operator.Username, req.UserName, req.PermissionName, req.Operation)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, permissionResponse{
		Username:    target.Username,
		Permissions: target.Permissions,
	})
}

// handleMe returns the caller's own identity.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, operatorFromContext(r.Context()))
}
