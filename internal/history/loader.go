package history

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/weatherstation-core/internal/metric"
	"github.com/nerrad567/weatherstation-core/internal/series"
)

// maxLineSize bounds a single history line. Longer lines are drained
// and reported as malformed.
const maxLineSize = 64 * 1024

// Logger is the logging interface used by this package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Seeder receives decoded history. *series.Store satisfies it.
type Seeder interface {
	Seed(m metric.Metric, samples []series.Sample)
}

// Report summarises a Load run.
type Report struct {
	Loaded  map[metric.Metric]int // Samples seeded per metric
	Skipped map[metric.Metric]int // Malformed lines skipped per metric
	Missing []metric.Metric       // Metrics whose source could not be opened or read
}

// Loader seeds series from tab-separated history logs.
type Loader struct {
	logger Logger
}

// NewLoader creates a loader. A nil logger discards output.
func NewLoader(logger Logger) *Loader {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Loader{logger: logger}
}

// Load decodes each configured source and seeds dst in file order.
//
// Metrics without a source are skipped with a warning. A missing or
// unreadable source skips that metric, and malformed lines are skipped
// individually; neither stops the remaining work. Load never fails.
//
// Parameters:
//   - sources: history file path per metric (empty path means no source)
//   - dst: destination for decoded samples
//
// Returns:
//   - Report: per-metric counts for logging and diagnostics
func (l *Loader) Load(sources map[metric.Metric]string, dst Seeder) Report {
	report := Report{
		Loaded:  make(map[metric.Metric]int),
		Skipped: make(map[metric.Metric]int),
	}

	for _, m := range metric.All() {
		path := sources[m]
		if path == "" {
			l.logger.Warn("no history source configured, ignoring", "metric", m.String())
			continue
		}

		loaded, skipped, err := l.loadFile(m, path, dst)
		if err != nil {
			l.logger.Warn("history source skipped", "metric", m.String(), "path", path, "error", err)
			report.Missing = append(report.Missing, m)
			continue
		}
		report.Loaded[m] = loaded
		report.Skipped[m] = skipped
	}

	return report
}

// loadFile decodes a single file and seeds it.
func (l *Loader) loadFile(m metric.Metric, path string, dst Seeder) (loaded, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrMissingSource, err)
	}
	defer f.Close()

	l.logger.Info("loading history", "metric", m.String(), "path", path)

	src := &countingReader{r: f}
	samples, readErr := Decode(src, func(line int, text string, err error) {
		skipped++
		l.logger.Warn("invalid history line, ignoring",
			"metric", m.String(),
			"line", line,
			"text", text,
			"error", err,
		)
	})
	if readErr != nil && src.n == 0 {
		// Opened but never readable, e.g. a directory.
		return 0, 0, fmt.Errorf("%w: %w", ErrMissingSource, readErr)
	}
	if readErr != nil {
		l.logger.Warn("history read interrupted, keeping decoded records",
			"metric", m.String(),
			"path", path,
			"error", readErr,
		)
	}

	dst.Seed(m, samples)
	l.logger.Info("history loaded", "metric", m.String(), "samples", len(samples), "skipped", skipped)
	return len(samples), skipped, nil
}

// Decode reads "epoch-seconds<TAB>value" records, one per line, in order.
//
// Lines that do not decode, including lines longer than maxLineSize, are
// passed to onMalformed (which may be nil) with an error wrapping
// ErrMalformedRecord and are otherwise ignored.
// The returned error is only set when reading the stream itself fails;
// samples decoded before the failure are still returned.
func Decode(r io.Reader, onMalformed func(line int, text string, err error)) ([]series.Sample, error) {
	br := bufio.NewReader(r)

	var samples []series.Sample
	lineNo := 0
	for {
		raw, overflow, readErr := readLine(br)
		if len(raw) > 0 || overflow {
			lineNo++
			text := strings.TrimSuffix(string(raw), "\n")

			var (
				sample series.Sample
				err    error
			)
			if overflow {
				err = fmt.Errorf("%w: line exceeds %d bytes", ErrMalformedRecord, maxLineSize)
				text = text[:min(len(text), 64)]
			} else {
				sample, err = decodeRecord(text)
			}

			if err != nil {
				if onMalformed != nil {
					onMalformed(lineNo, text, err)
				}
			} else {
				samples = append(samples, sample)
			}
		}

		if errors.Is(readErr, io.EOF) {
			return samples, nil
		}
		if readErr != nil {
			return samples, fmt.Errorf("reading history: %w", readErr)
		}
	}
}

// readLine returns the next line including its newline. A line longer than
// maxLineSize is consumed up to its newline and returned truncated with
// overflow set.
func readLine(br *bufio.Reader) (line []byte, overflow bool, err error) {
	for {
		chunk, readErr := br.ReadSlice('\n')
		if !overflow {
			if len(line)+len(chunk) > maxLineSize {
				overflow = true
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(readErr, bufio.ErrBufferFull) {
			continue
		}
		return line, overflow, readErr
	}
}

// countingReader records how many bytes were read from a source.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// decodeRecord parses a single history line.
func decodeRecord(line string) (series.Sample, error) {
	line = strings.TrimSuffix(line, "\r")
	parts := strings.Split(line, "\t")
	if len(parts) != 2 {
		return series.Sample{}, fmt.Errorf("%w: expected 2 fields, got %d", ErrMalformedRecord, len(parts))
	}

	epoch, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return series.Sample{}, fmt.Errorf("%w: timestamp: %w", ErrMalformedRecord, err)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return series.Sample{}, fmt.Errorf("%w: value: %w", ErrMalformedRecord, err)
	}

	return series.Sample{Time: time.Unix(epoch, 0), Value: value}, nil
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}
