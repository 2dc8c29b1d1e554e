// Package database provides the SQLite connection used by the sample archive.
//
// It handles:
//   - Opening the database file with WAL mode and a busy timeout
//   - Embedded, versioned schema migrations (see the migrations package)
//   - Health checks for the API
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
