package influxdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/weatherstation-core/internal/infrastructure/config"
	"github.com/nerrad567/weatherstation-core/internal/metric"
	"github.com/nerrad567/weatherstation-core/internal/series"
)

const (
	// measurementName is the measurement holding every station sample.
	measurementName = "weather"

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
	pingTimeout          = 5 * time.Second
	userAgent            = "weatherstation"
)

// Client is the relay sink that forwards samples to an InfluxDB v2 bucket.
//
// Samples are queued on the library's batching write API, so WriteSample
// never waits on the network. Batch failures arrive asynchronously and are
// counted and handed to the SetOnError callback.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	closed   atomic.Bool
	failures atomic.Uint64
	onError  atomic.Pointer[func(error)]
	errsDone chan struct{}
}

// Connect pings the server and returns a sink writing to cfg.Bucket.
// Every point is tagged with the station ID.
//
// Returns:
//   - ErrDisabled when influxdb.enabled is false
//   - ErrUnreachable when the ping fails
func Connect(cfg config.InfluxDBConfig, station string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg, station))

	ctx, cancel := context.WithTimeout(context.Background(), 2*pingTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		errsDone: make(chan struct{}),
	}
	// The error channel must be taken before the first write.
	go c.watchErrors(c.writeAPI.Errors())
	return c, nil
}

// clientOptions maps the station config onto library options.
// Non-positive batch settings fall back to defaults.
func clientOptions(cfg config.InfluxDBConfig, station string) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	// #nosec G115 -- both values are positive here
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush) * 1000).
		SetPrecision(time.Second).
		SetApplicationName(userAgent)
	if station != "" {
		opts.AddDefaultTag("station", station)
	}
	return opts
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if !healthy {
		return fmt.Errorf("%w: server reports unhealthy", ErrUnreachable)
	}
	return nil
}

// watchErrors drains the write API error channel until Close.
func (c *Client) watchErrors(errs <-chan error) {
	defer close(c.errsDone)
	for err := range errs {
		c.failures.Add(1)
		if cb := c.onError.Load(); cb != nil {
			(*cb)(err)
		}
	}
}

// NewSamplePoint builds the point for one sample: measurement "weather",
// tags metric and unit, a single "value" field, stamped with the sample
// time rather than the write time.
func NewSamplePoint(m metric.Metric, s series.Sample) *write.Point {
	return write.NewPoint(
		measurementName,
		map[string]string{
			"metric": m.String(),
			"unit":   m.Unit(),
		},
		map[string]any{"value": s.Value},
		s.Time,
	)
}

// Name identifies the sink in relay logs and stats.
func (c *Client) Name() string {
	return "influxdb"
}

// WriteSample queues one sample for the next batch.
func (c *Client) WriteSample(_ context.Context, m metric.Metric, s series.Sample) error {
	if c.client == nil || c.closed.Load() {
		return ErrClosed
	}
	if !m.Valid() {
		return fmt.Errorf("%w: %w", ErrRejected, metric.ErrUnknownMetric)
	}
	c.writeAPI.WritePoint(NewSamplePoint(m, s))
	return nil
}

// SetOnError installs the callback for asynchronous batch failures.
func (c *Client) SetOnError(fn func(error)) {
	if fn == nil {
		c.onError.Store(nil)
		return
	}
	c.onError.Store(&fn)
}

// Failures returns how many batch writes the server has rejected.
func (c *Client) Failures() uint64 {
	return c.failures.Load()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return ping(ctx, c.client)
}

// IsConnected reports whether the sink is open. It does not probe the server.
func (c *Client) IsConnected() bool {
	return c != nil && c.client != nil && !c.closed.Load()
}

// Flush sends queued points now. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes queued points and releases the client. Safe to call more
// than once and on a nil client.
func (c *Client) Close() error {
	if c == nil || c.client == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	<-c.errsDone
	return nil
}
