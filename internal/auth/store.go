package auth

import (
	"context"
	"time"
)

// IdentityStore persists accounts. Implementations must be safe for
// concurrent use and must reject a permission update whose expected
// version no longer matches the stored row.
type IdentityStore interface {
	Create(ctx context.Context, identity *Identity) error
	GetByUsername(ctx context.Context, username string) (*Identity, error)
	UpdatePermissions(ctx context.Context, username string, perms []string, expectedVersion int64) (*Identity, error)
	CountByRole(ctx context.Context, role Role) (int, error)
}

// TokenStore persists refresh token records keyed by their value.
//
// FindByValue returns expired records too; expiry is the caller's decision.
// Invalidate is idempotent. Rotate deletes oldValue and inserts next
// atomically, returning ErrTokenNotFound when oldValue is already gone.
type TokenStore interface {
	Create(ctx context.Context, token *RefreshToken) error
	FindByValue(ctx context.Context, value string) (*RefreshToken, error)
	Invalidate(ctx context.Context, value string) error
	Rotate(ctx context.Context, oldValue string, next *RefreshToken) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
