package oauth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ZZSZ-YCT/customSystem/internal/auth"
)

// timeLayout is fixed-width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps apps in the oauth_apps table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store over db. Migrations must have been applied.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Create inserts app.
func (s *SQLiteStore) Create(ctx context.Context, app *App) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO oauth_apps (id, app_name, developer, callback_url, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		app.ID, app.AppName, app.Developer, app.CallbackURL, app.CreatedBy,
		app.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAppNameTaken
		}
		return fmt.Errorf("%w: inserting oauth app: %w", auth.ErrStorageFailure, err)
	}
	return nil
}

// List returns every app, oldest first.
func (s *SQLiteStore) List(ctx context.Context) ([]App, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, app_name, developer, callback_url, created_by, created_at
		 FROM oauth_apps ORDER BY created_at, app_name`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying oauth apps: %w", auth.ErrStorageFailure, err)
	}
	defer rows.Close()

	apps := []App{}
	for rows.Next() {
		var app App
		var createdAt string
		if err := rows.Scan(&app.ID, &app.AppName, &app.Developer, &app.CallbackURL, &app.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scanning oauth app: %w", auth.ErrStorageFailure, err)
		}
		if app.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing oauth app timestamp %q: %w", createdAt, err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating oauth apps: %w", auth.ErrStorageFailure, err)
	}
	return apps, nil
}
