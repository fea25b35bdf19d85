package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const identityColumns = "username, display_name, role, permissions, password_hash, totp_secret, version, created_at, updated_at"

// SQLiteIdentityStore implements IdentityStore using SQLite.
type SQLiteIdentityStore struct {
	db *sql.DB
}

// NewIdentityStore creates a new SQLite-backed identity store.
func NewIdentityStore(db *sql.DB) *SQLiteIdentityStore {
	return &SQLiteIdentityStore{db: db}
}

// Create inserts a new identity at version 1.
func (s *SQLiteIdentityStore) Create(ctx context.Context, identity *Identity) error {
	if !identity.Role.IsValid() {
		return fmt.Errorf("creating identity: unknown role %q", identity.Role)
	}

	identity.Permissions = NormalizePermissions(identity.Permissions)
	perms, err := json.Marshal(identity.Permissions)
	if err != nil {
		return fmt.Errorf("encoding permissions: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	identity.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	identity.UpdatedAt = identity.CreatedAt
	identity.Version = 1

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO identities (`+identityColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		identity.Username, identity.DisplayName, string(identity.Role), string(perms),
		identity.PasswordHash, identity.TOTPSecret, identity.Version, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("%w: creating identity: %w", ErrStorageFailure, err)
	}
	return nil
}

// GetByUsername retrieves an identity by username.
func (s *SQLiteIdentityStore) GetByUsername(ctx context.Context, username string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+identityColumns+" FROM identities WHERE username = ?", username)
	return scanIdentity(row)
}

// UpdatePermissions replaces the capability set if the stored version still
// equals expectedVersion, bumping the version. A stale version yields
// ErrConflict; a missing row yields ErrIdentityNotFound.
func (s *SQLiteIdentityStore) UpdatePermissions(ctx context.Context, username string, perms []string, expectedVersion int64) (*Identity, error) {
	perms = NormalizePermissions(perms)
	encoded, err := json.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("encoding permissions: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		`UPDATE identities SET permissions = ?, version = version + 1, updated_at = ?
		 WHERE username = ? AND version = ?`,
		string(encoded), now, username, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: updating permissions: %w", ErrStorageFailure, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: updating permissions: %w", ErrStorageFailure, err)
	}
	if rows == 0 {
		// Distinguish a lost race from a vanished row.
		if _, err := s.GetByUsername(ctx, username); err != nil {
			return nil, err
		}
		return nil, ErrConflict
	}

	return s.GetByUsername(ctx, username)
}

// CountByRole returns the number of identities holding role.
func (s *SQLiteIdentityStore) CountByRole(ctx context.Context, role Role) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM identities WHERE role = ?", string(role)).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: counting identities: %w", ErrStorageFailure, err)
	}
	return count, nil
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(s scanner) (*Identity, error) {
	var i Identity
	var role, perms, createdAt, updatedAt string

	err := s.Scan(&i.Username, &i.DisplayName, &role, &perms,
		&i.PasswordHash, &i.TOTPSecret, &i.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("%w: scanning identity: %w", ErrStorageFailure, err)
	}

	i.Role = Role(role)
	if err := json.Unmarshal([]byte(perms), &i.Permissions); err != nil {
		return nil, fmt.Errorf("%w: decoding permissions for %s: %w", ErrStorageFailure, i.Username, err)
	}
	i.Permissions = NormalizePermissions(i.Permissions)

	i.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	i.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &i, nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE or PRIMARY KEY constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
