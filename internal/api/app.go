package api

import (
	"net/http"

	"github.com/ZZSZ-YCT/customSystem/internal/oauth"
)

// createAppRequest is the request body for POST /app/creation.
type createAppRequest struct {
	AppName     string `json:"appName"`
	Developer   string `json:"developer"`
	CallbackURL string `json:"callbackUrl"`
}

// handleCreateApp registers an OAuth app. superAdmin only.
func (s *Server) handleCreateApp(w http.ResponseWriter, r *http.Request) {
	var req createAppRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	app, err := s.apps.CreateApp(r.Context(), operatorFromContext(r.Context()), oauth.CreateRequest{
		AppName:     req.AppName,
		Developer:   req.Developer,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.logger.Info("oauth app created", "app_id", app.ID, "app_name", app.AppName, "created_by", app.CreatedBy)
	writeJSON(w, http.StatusCreated, app)
}

// handleListApps returns every registered app. superAdmin only.
func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	apps, err := s.apps.ListApps(r.Context(), operatorFromContext(r.Context()))
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"apps":  apps,
		"count": len(apps),
	})
}

// handleOAuthCallback is a placeholder for the authorization code flow.
// It validates the request shape and never issues tokens.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("code") == "" {
		writeBadRequest(w, "code is required")
		return
	}
	writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, "authorization code exchange is not supported")
}
