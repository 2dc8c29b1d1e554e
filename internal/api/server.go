package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/weatherstation-core/internal/archive"
	"github.com/nerrad567/weatherstation-core/internal/dashboard"
	"github.com/nerrad567/weatherstation-core/internal/hub"
	"github.com/nerrad567/weatherstation-core/internal/infrastructure/config"
	"github.com/nerrad567/weatherstation-core/internal/infrastructure/logging"
	"github.com/nerrad567/weatherstation-core/internal/metric"
	"github.com/nerrad567/weatherstation-core/internal/relay"
	"github.com/nerrad567/weatherstation-core/internal/scheduler"
	"github.com/nerrad567/weatherstation-core/internal/series"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SeriesReader reads the in-memory series. *series.Store satisfies it.
type SeriesReader interface {
	Snapshot(m metric.Metric) []series.Sample
	Latest(m metric.Metric) (series.Sample, bool)
	Len(m metric.Metric) int
	Capacity() int
}

// HubStatus reports the sensor hub connection. *hub.Client satisfies it.
type HubStatus interface {
	Stats() hub.Stats
}

// ArchiveReader serves archived samples. *archive.SQLiteRepository satisfies it.
type ArchiveReader interface {
	Recent(ctx context.Context, m metric.Metric, limit int) ([]archive.Entry, error)
}

// ViewSource exposes the display state. *dashboard.Carousel satisfies it.
type ViewSource interface {
	State() dashboard.View
}

// Navigator moves the display. *scheduler.Scheduler satisfies it.
type Navigator interface {
	Navigate(d scheduler.Direction)
}

// SchedulerStats reports job counters. *scheduler.Scheduler satisfies it.
type SchedulerStats interface {
	Stats() scheduler.Stats
}

// RelayStats reports per-sink delivery counters. *relay.Relay satisfies it.
type RelayStats interface {
	Stats() map[string]relay.SinkStats
}

// Deps holds the dependencies of the API server. Archive, Navigator,
// Scheduler, Relay and WSHub are optional; without a WSHub one is built
// from WS.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	WSHub     *WSHub
	Logger    *logging.Logger
	Series    SeriesReader
	Hub       HubStatus
	Archive   ArchiveReader
	View      ViewSource
	Navigator Navigator
	Scheduler SchedulerStats
	Relay     RelayStats
	Version   string
}

// Server is the HTTP API server of the station.
//
// It manages the HTTP listener, routes, middleware and the WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	series    SeriesReader
	hub       HubStatus
	archive   ArchiveReader
	view      ViewSource
	navigator Navigator
	scheduler SchedulerStats
	relay     RelayStats
	version   string
	started   time.Time

	ws      *WSHub
	handler http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// Pass a WSHub built earlier when it must be registered as a relay sink
// before the relay itself exists.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If a required dependency is missing
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Series == nil:
		return nil, fmt.Errorf("series reader is required")
	case deps.Hub == nil:
		return nil, fmt.Errorf("hub status is required")
	case deps.View == nil:
		return nil, fmt.Errorf("view source is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		series:    deps.Series,
		hub:       deps.Hub,
		archive:   deps.Archive,
		view:      deps.View,
		navigator: deps.Navigator,
		scheduler: deps.Scheduler,
		relay:     deps.Relay,
		version:   deps.Version,
		started:   time.Now(),
		ws:        deps.WSHub,
	}
	if s.ws == nil {
		s.ws = NewWSHub(deps.WS, deps.Logger)
	}
	s.handler = s.buildRouter()
	return s, nil
}

// Handler returns the router, for serving through a custom listener.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// WebSocket returns the hub that streams samples and view changes.
func (s *Server) WebSocket() *WSHub {
	return s.ws
}

// Start binds the listener and serves in the background until Close.
//
// Returns:
//   - error: If the address cannot be bound or the server is already running
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close disconnects WebSocket clients and shuts the listener down, waiting
// up to 10 seconds for in-flight requests.
func (s *Server) Close() error {
	s.ws.closeAll()

	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
