package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/weatherstation-core/internal/hub"
	"github.com/nerrad567/weatherstation-core/internal/metric"
	"github.com/nerrad567/weatherstation-core/internal/sensor"
	"github.com/nerrad567/weatherstation-core/internal/series"
)

// Default job periods.
const (
	DefaultPollInterval        = 5 * time.Second
	DefaultRotateInterval      = 15 * time.Second
	DefaultDateRefreshInterval = 60 * time.Second
)

// StateReader reports the hub connection state. *hub.Client satisfies it.
type StateReader interface {
	State() hub.State
}

// Appender receives successful readings. *series.Store satisfies it.
type Appender interface {
	Append(m metric.Metric, s series.Sample)
}

// Rotator advances the displayed chart.
type Rotator interface {
	Next()
	Prev()
}

// DateRefresher receives the current time for the date display.
type DateRefresher interface {
	RefreshDate(now time.Time)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Binding pairs a metric with the sensor that measures it.
type Binding struct {
	Metric metric.Metric
	Reader sensor.Reader
}

// Direction is a manual navigation request from the presentation side.
type Direction int

// Navigation directions.
const (
	DirectionNext Direction = iota
	DirectionPrev
)

// String returns "next" or "prev".
func (d Direction) String() string {
	if d == DirectionPrev {
		return "prev"
	}
	return "next"
}

// ParseDirection accepts "next", "prev" and "previous" (case-insensitive).
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "next":
		return DirectionNext, nil
	case "prev", "previous":
		return DirectionPrev, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDirection, s)
	}
}

// Options configures a Scheduler. Zero values take the defaults.
type Options struct {
	// PollInterval is the sensor poll period. Default: 5 seconds.
	PollInterval time.Duration

	// RotateInterval is the chart rotation period. Default: 15 seconds.
	RotateInterval time.Duration

	// DateRefreshInterval is the date display period. Default: 60 seconds.
	DateRefreshInterval time.Duration

	// Rotator is advanced on every rotation tick and on Navigate.
	// The rotation job is not started when nil.
	Rotator Rotator

	// DateRefresher is called on every date tick. The date job is not
	// started when nil.
	DateRefresher DateRefresher

	// Clock defaults to the wall clock.
	Clock Clock

	// Logger is optional.
	Logger Logger
}

// Stats holds scheduler counters.
type Stats struct {
	PollTicks     uint64                   `json:"poll_ticks"`
	SkippedTicks  uint64                   `json:"skipped_ticks"`
	Samples       uint64                   `json:"samples"`
	ReadFailures  map[metric.Metric]uint64 `json:"read_failures"`
	Rotations     uint64                   `json:"rotations"`
	Navigations   uint64                   `json:"navigations"`
	DateRefreshes uint64                   `json:"date_refreshes"`
	Running       bool                     `json:"running"`
}

// Scheduler drives the periodic jobs: sensor polling, chart rotation and
// date refresh. Each job runs on its own ticker goroutine; the jobs are
// independent and may interleave.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - After Stop returns, no job runs and nothing more is appended.
type Scheduler struct {
	conn     StateReader
	store    Appender
	bindings []Binding
	opts     Options

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	pollTicks     atomic.Uint64
	skippedTicks  atomic.Uint64
	samples       atomic.Uint64
	readFailures  [metric.Count]atomic.Uint64
	rotations     atomic.Uint64
	navigations   atomic.Uint64
	dateRefreshes atomic.Uint64
}

// New creates a stopped Scheduler.
//
// Bindings are polled in metric order regardless of the order given.
//
// Parameters:
//   - conn: Hub state, checked at the start of every poll tick
//   - store: Destination for successful readings
//   - bindings: One sensor per polled metric
//   - opts: Periods, presentation hooks, clock and logger
func New(conn StateReader, store Appender, bindings []Binding, opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RotateInterval <= 0 {
		opts.RotateInterval = DefaultRotateInterval
	}
	if opts.DateRefreshInterval <= 0 {
		opts.DateRefreshInterval = DefaultDateRefreshInterval
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}

	sorted := slices.Clone(bindings)
	slices.SortStableFunc(sorted, func(a, b Binding) int {
		return int(a.Metric) - int(b.Metric)
	})

	return &Scheduler{
		conn:     conn,
		store:    store,
		bindings: sorted,
		opts:     opts,
	}
}

// Start launches the jobs. The first firing of each job comes one full
// period after Start. The jobs stop when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyStarted
	}

	jobCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	// Tickers are created here so the first period starts with Start.
	s.launch(jobCtx, "poll", s.opts.PollInterval, func(ctx context.Context, _ time.Time) {
		s.poll(ctx)
	})
	if s.opts.Rotator != nil {
		s.launch(jobCtx, "rotate", s.opts.RotateInterval, func(context.Context, time.Time) {
			s.rotations.Add(1)
			s.opts.Rotator.Next()
		})
	}
	if s.opts.DateRefresher != nil {
		s.launch(jobCtx, "date", s.opts.DateRefreshInterval, func(_ context.Context, now time.Time) {
			s.dateRefreshes.Add(1)
			s.opts.DateRefresher.RefreshDate(now)
		})
	}

	s.opts.Logger.Info("scheduler started",
		"poll_interval", s.opts.PollInterval.String(),
		"rotate_interval", s.opts.RotateInterval.String(),
		"sensors", len(s.bindings),
	)
	return nil
}

// launch runs fn on every tick of a new ticker until ctx is done.
func (s *Scheduler) launch(ctx context.Context, name string, period time.Duration, fn func(context.Context, time.Time)) {
	ticker := s.opts.Clock.NewTicker(period)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				if ctx.Err() != nil {
					return
				}
				s.runJob(ctx, name, fn)
			}
		}
	}()
}

// runJob isolates a job tick so a panic does not end the job.
func (s *Scheduler) runJob(ctx context.Context, name string, fn func(context.Context, time.Time)) {
	defer func() {
		if r := recover(); r != nil {
			s.opts.Logger.Error("scheduled job panic", "job", name, "panic", fmt.Sprint(r))
		}
	}()
	fn(ctx, s.opts.Clock.Now())
}

// poll reads every sensor once. A disconnected hub skips the whole tick;
// a failing sensor skips only its own metric.
func (s *Scheduler) poll(ctx context.Context) {
	if state := s.conn.State(); state != hub.StateConnected {
		s.skippedTicks.Add(1)
		s.opts.Logger.Warn("hub not connected, skipping poll", "state", state.String())
		return
	}
	s.pollTicks.Add(1)

	for _, b := range s.bindings {
		if ctx.Err() != nil {
			return
		}

		value, err := b.Reader.ReadValue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if b.Metric.Valid() {
				s.readFailures[b.Metric].Add(1)
			}
			s.opts.Logger.Warn("sensor read failed", "metric", b.Metric.String(), "error", err)
			continue
		}

		if ctx.Err() != nil {
			return
		}
		s.store.Append(b.Metric, series.Sample{Time: s.opts.Clock.Now(), Value: value})
		s.samples.Add(1)
		s.opts.Logger.Debug("sample appended", "metric", b.Metric.String(), "value", value)
	}
}

// Navigate forwards a manual navigation to the Rotator. The rotation timer
// keeps its own schedule.
func (s *Scheduler) Navigate(d Direction) {
	if s.opts.Rotator == nil {
		return
	}
	s.navigations.Add(1)
	if d == DirectionPrev {
		s.opts.Rotator.Prev()
		return
	}
	s.opts.Rotator.Next()
}

// Stop cancels all jobs and waits for them to return. Safe to call
// multiple times; Start may be called again afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.running = false

	s.opts.Logger.Info("scheduler stopped")
}

// Stats returns current counters.
func (s *Scheduler) Stats() Stats {
	failures := make(map[metric.Metric]uint64, metric.Count)
	for _, m := range metric.All() {
		failures[m] = s.readFailures[m].Load()
	}

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return Stats{
		PollTicks:     s.pollTicks.Load(),
		SkippedTicks:  s.skippedTicks.Load(),
		Samples:       s.samples.Load(),
		ReadFailures:  failures,
		Rotations:     s.rotations.Load(),
		Navigations:   s.navigations.Load(),
		DateRefreshes: s.dateRefreshes.Load(),
		Running:       running,
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
