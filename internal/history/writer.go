package history

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/nerrad567/weatherstation-core/internal/metric"
	"github.com/nerrad567/weatherstation-core/internal/series"
)

const (
	dirPermissions  = 0750
	filePermissions = 0640
)

// Writer appends live samples to the per-metric history logs in the same
// "epoch<TAB>value" format the Loader reads, so the next start is seeded
// with what this run recorded.
//
// Thread Safety: all methods are safe for concurrent use.
type Writer struct {
	paths map[metric.Metric]string

	mu    sync.Mutex
	files map[metric.Metric]*logFile
}

type logFile struct {
	f *os.File
	w *csv.Writer
}

// NewWriter creates a writer for the given paths. Metrics without a path
// are silently not recorded. Files are opened lazily on first write.
func NewWriter(paths map[metric.Metric]string) *Writer {
	copied := make(map[metric.Metric]string, len(paths))
	for m, p := range paths {
		if p != "" {
			copied[m] = p
		}
	}
	return &Writer{
		paths: copied,
		files: make(map[metric.Metric]*logFile),
	}
}

// Name identifies the writer in relay logs.
func (w *Writer) Name() string {
	return "history"
}

// WriteSample appends one record and flushes it to disk.
func (w *Writer) WriteSample(_ context.Context, m metric.Metric, s series.Sample) error {
	path, ok := w.paths[m]
	if !ok {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	lf, err := w.open(m, path)
	if err != nil {
		return err
	}

	record := []string{
		strconv.FormatInt(s.Time.Unix(), 10),
		strconv.FormatFloat(s.Value, 'f', -1, 64),
	}
	if err := lf.w.Write(record); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}
	lf.w.Flush()
	if err := lf.w.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}
	return nil
}

// open returns the cached handle for m, opening the file in append mode
// if needed. Caller holds w.mu.
func (w *Writer) open(m metric.Metric, path string) (*logFile, error) {
	if lf, ok := w.files[m]; ok {
		return lf, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("%w: creating directory: %w", ErrWriteFailed, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	cw := csv.NewWriter(f)
	cw.Comma = '\t'
	lf := &logFile{f: f, w: cw}
	w.files[m] = lf
	return lf, nil
}

// Close flushes and closes all open logs.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for m, lf := range w.files {
		lf.w.Flush()
		if err := lf.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s history: %w", m, err)
		}
		delete(w.files, m)
	}
	return firstErr
}
