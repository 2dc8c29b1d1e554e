package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/weatherstation-core/internal/metric"
	"github.com/nerrad567/weatherstation-core/internal/series"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000

	// timestampLayout is how recorded_at is stored: UTC, second precision,
	// so that text order is time order.
	timestampLayout = "2006-01-02T15:04:05Z"
)

// ErrInvalidRetention is returned by Prune for a non-positive age.
var ErrInvalidRetention = errors.New("archive: retention must be positive")

// Entry is one archived sample.
type Entry struct {
	ID     int64         `json:"id"`
	Metric metric.Metric `json:"metric"`
	series.Sample
}

// SQLiteRepository stores samples in the samples table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Name identifies the repository as a relay sink.
func (r *SQLiteRepository) Name() string {
	return "archive"
}

// WriteSample stores a live sample. It satisfies relay.Sink.
func (r *SQLiteRepository) WriteSample(ctx context.Context, m metric.Metric, s series.Sample) error {
	return r.RecordSample(ctx, m, s)
}

// RecordSample inserts one sample.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - m: Metric the sample belongs to
//   - s: Sample to persist (stored at second precision)
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) RecordSample(ctx context.Context, m metric.Metric, s series.Sample) error {
	if !m.Valid() {
		return fmt.Errorf("archive: %w: %d", metric.ErrUnknownMetric, int(m))
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO samples (metric, value, recorded_at) VALUES (?, ?, ?)",
		m.String(),
		s.Value,
		s.Time.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting sample: %w", err)
	}
	return nil
}

// Recent returns the newest samples of a metric, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - m: Metric to query
//   - limit: Maximum entries to return (default 50, max 1000)
//
// Returns:
//   - []Entry: Samples ordered by recorded_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteRepository) Recent(ctx context.Context, m metric.Metric, limit int) ([]Entry, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("archive: %w: %d", metric.ErrUnknownMetric, int(m))
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, value, recorded_at
		 FROM samples
		 WHERE metric = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		m.String(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		entry := Entry{Metric: m}
		var recordedAt string

		if err := rows.Scan(&entry.ID, &entry.Value, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		entry.Time, err = time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating samples: %w", err)
	}
	return entries, nil
}

// Count returns the number of archived samples for a metric.
func (r *SQLiteRepository) Count(ctx context.Context, m metric.Metric) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM samples WHERE metric = ?", m.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting samples: %w", err)
	}
	return n, nil
}

// Prune deletes samples recorded more than olderThan ago.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: ErrInvalidRetention or the underlying database error
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timestampLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM samples WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting samples: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
