// Package oauth registers third-party applications that may later use the
// user centre for sign-in.
//
// Only registration and listing are implemented. The authorization code
// callback is a placeholder answered by the HTTP layer; no tokens are ever
// issued to an application.
package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/ZZSZ-YCT/customSystem/internal/auth"
)

// Sentinel errors for OAuth app operations. They wrap auth sentinels so
// auth.ErrorCode maps them to invalid_request and conflict.
var (
	ErrInvalidApp   = fmt.Errorf("invalid oauth app: %w", auth.ErrInvalidRequest)
	ErrAppNameTaken = fmt.Errorf("oauth app name already taken: %w", auth.ErrConflict)
)

const (
	maxAppNameLength   = 64
	maxDeveloperLength = 128
	maxCallbackLength  = 2048
)

// EventAppCreated is recorded after an app is registered.
const EventAppCreated auth.EventType = "oauth_app.created"

// App is a registered OAuth client.
type App struct {
	ID          string    `json:"id"`
	AppName     string    `json:"appName"`
	Developer   string    `json:"developer"`
	CallbackURL string    `json:"callbackUrl"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store persists apps. Create returns ErrAppNameTaken for a duplicate name.
// List returns apps oldest first.
type Store interface {
	Create(ctx context.Context, app *App) error
	List(ctx context.Context) ([]App, error)
}
