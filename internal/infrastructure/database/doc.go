// Package database provides the user centre's SQLite connection and a
// small versioned migration runner.
//
// The connection is opened with foreign keys enabled and, when configured,
// WAL journaling. The pool holds a single connection, so transactions are
// serialised; the refresh-token store depends on that for atomic rotation.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are pairs of YYYYMMDD_HHMMSS_name.up.sql / .down.sql files read
// from MigrationsFS. Importing the top-level migrations package registers
// the embedded schema.
package database
