package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteTokenStore implements TokenStore using SQLite.
type SQLiteTokenStore struct {
	db *sql.DB
}

// NewTokenStore creates a new SQLite-backed token store.
func NewTokenStore(db *sql.DB) *SQLiteTokenStore {
	return &SQLiteTokenStore{db: db}
}

// tokenTimeLayout is fixed-width so stored expiries compare correctly as text.
const tokenTimeLayout = "2006-01-02T15:04:05.000000000Z"

const insertRefreshToken = `INSERT INTO refresh_tokens (token_value, token_uuid, username, expires_at, created_at)
	 VALUES (?, ?, ?, ?, ?)`

// Create inserts a new refresh token record.
func (s *SQLiteTokenStore) Create(ctx context.Context, token *RefreshToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, insertRefreshToken,
		token.Value, token.UUID, token.Username,
		token.ExpiresAt.UTC().Format(tokenTimeLayout),
		token.CreatedAt.UTC().Format(tokenTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("%w: creating refresh token: %w", ErrStorageFailure, err)
	}
	return nil
}

// FindByValue retrieves a refresh token by its value, expired or not.
func (s *SQLiteTokenStore) FindByValue(ctx context.Context, value string) (*RefreshToken, error) {
	var t RefreshToken
	var expiresAt, createdAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT token_value, token_uuid, username, expires_at, created_at
		 FROM refresh_tokens WHERE token_value = ?`, value,
	).Scan(&t.Value, &t.UUID, &t.Username, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: getting refresh token: %w", ErrStorageFailure, err)
	}

	t.ExpiresAt, _ = time.Parse(tokenTimeLayout, expiresAt) //nolint:errcheck // format is controlled
	t.CreatedAt, _ = time.Parse(tokenTimeLayout, createdAt) //nolint:errcheck // format is controlled

	return &t, nil
}

// Invalidate deletes a refresh token. Deleting an unknown value is not an error.
func (s *SQLiteTokenStore) Invalidate(ctx context.Context, value string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE token_value = ?", value); err != nil {
		return fmt.Errorf("%w: invalidating refresh token: %w", ErrStorageFailure, err)
	}
	return nil
}

// Rotate atomically deletes oldValue and inserts next. Exactly one of two
// concurrent rotations of the same value succeeds; the other sees zero
// deleted rows and returns ErrTokenNotFound.
func (s *SQLiteTokenStore) Rotate(ctx context.Context, oldValue string, next *RefreshToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning rotation transaction: %w", ErrStorageFailure, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	result, err := tx.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE token_value = ?", oldValue)
	if err != nil {
		return fmt.Errorf("%w: deleting rotated token: %w", ErrStorageFailure, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: deleting rotated token: %w", ErrStorageFailure, err)
	}
	if deleted == 0 {
		return ErrTokenNotFound
	}

	if next.CreatedAt.IsZero() {
		next.CreatedAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, insertRefreshToken,
		next.Value, next.UUID, next.Username,
		next.ExpiresAt.UTC().Format(tokenTimeLayout),
		next.CreatedAt.UTC().Format(tokenTimeLayout),
	); err != nil {
		return fmt.Errorf("%w: creating rotated token: %w", ErrStorageFailure, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing rotation: %w", ErrStorageFailure, err)
	}
	return nil
}

// DeleteExpired removes tokens whose expiry is before now and returns the count.
func (s *SQLiteTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at < ?", now.UTC().Format(tokenTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("%w: deleting expired tokens: %w", ErrStorageFailure, err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}
