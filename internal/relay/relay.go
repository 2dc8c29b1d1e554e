package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/weatherstation-core/internal/metric"
	"github.com/nerrad567/weatherstation-core/internal/series"
)

const (
	// defaultQueueSize bounds the updates waiting for the sinks.
	defaultQueueSize = 256

	// defaultWriteTimeout bounds a single sink write.
	defaultWriteTimeout = 5 * time.Second
)

// ErrAlreadyStarted is returned by Start while the relay is running.
var ErrAlreadyStarted = errors.New("relay: already started")

// Sink receives every live sample.
type Sink interface {
	// Name identifies the sink in logs and stats.
	Name() string

	// WriteSample delivers one sample. Errors are logged by the relay and
	// do not affect other sinks.
	WriteSample(ctx context.Context, m metric.Metric, s series.Sample) error
}

// Source is where the relay subscribes for live updates. *series.Store
// satisfies it.
type Source interface {
	Subscribe(buffer int) *series.Subscription
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// SinkStats holds per-sink delivery counters.
type SinkStats struct {
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
}

type sinkEntry struct {
	sink      Sink
	delivered atomic.Uint64
	failed    atomic.Uint64
}

// Relay forwards every live sample from the series store to its sinks.
//
// One goroutine consumes a single store subscription and calls each sink
// in turn. A failing or panicking sink is logged and skipped; the others
// still receive the sample.
type Relay struct {
	source       Source
	sinks        []*sinkEntry
	logger       Logger
	queueSize    int
	writeTimeout time.Duration

	mu      sync.Mutex
	sub     *series.Subscription
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates a stopped relay. Nil sinks are ignored.
func New(source Source, logger Logger, sinks ...Sink) *Relay {
	if logger == nil {
		logger = nopLogger{}
	}
	r := &Relay{
		source:       source,
		logger:       logger,
		queueSize:    defaultQueueSize,
		writeTimeout: defaultWriteTimeout,
	}
	for _, s := range sinks {
		if s != nil {
			r.sinks = append(r.sinks, &sinkEntry{sink: s})
		}
	}
	return r
}

// Start subscribes to the source and begins delivery. Cancelling ctx
// abandons queued samples; use Stop to deliver them first.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.sub = r.source.Subscribe(r.queueSize)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.run(runCtx, r.sub, r.done)

	names := make([]string, 0, len(r.sinks))
	for _, e := range r.sinks {
		names = append(names, e.sink.Name())
	}
	r.logger.Info("relay started", "sinks", names)
	return nil
}

func (r *Relay) run(ctx context.Context, sub *series.Subscription, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-sub.C():
			if !ok {
				return
			}
			for _, e := range r.sinks {
				r.deliver(ctx, e, u)
			}
		}
	}
}

// deliver calls one sink with a timeout and recovers from panics.
func (r *Relay) deliver(ctx context.Context, e *sinkEntry, u series.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			e.failed.Add(1)
			r.logger.Error("sink panic", "sink", e.sink.Name(), "panic", fmt.Sprint(rec))
		}
	}()

	writeCtx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	if err := e.sink.WriteSample(writeCtx, u.Metric, u.Sample); err != nil {
		e.failed.Add(1)
		r.logger.Warn("sink write failed", "sink", e.sink.Name(), "metric", u.Metric.String(), "error", err)
		return
	}
	e.delivered.Add(1)
}

// Stop unsubscribes, delivers the samples already queued, and waits for
// delivery to finish. Each write is still bounded by the write timeout.
// Safe to call multiple times.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	// Closing the subscription lets run drain the buffer and exit.
	r.sub.Close()
	<-r.done
	r.cancel()
	r.running = false

	r.logger.Info("relay stopped")
}

// Stats returns delivery counters keyed by sink name.
func (r *Relay) Stats() map[string]SinkStats {
	out := make(map[string]SinkStats, len(r.sinks))
	for _, e := range r.sinks {
		out[e.sink.Name()] = SinkStats{
			Delivered: e.delivered.Load(),
			Failed:    e.failed.Load(),
		}
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
