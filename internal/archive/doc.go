// Package archive keeps a durable log of live samples in SQLite.
//
// The in-memory series only holds the most recent window; the archive keeps
// everything until it is pruned by the configured retention. It is written
// through the relay like any other sink and read by the API.
//
// Usage:
//
//	repo := archive.NewSQLiteRepository(db.DB)
//	entries, err := repo.Recent(ctx, metric.Temperature, 100)
package archive
