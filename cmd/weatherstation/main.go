// Weather Station - sensor hub poller and live chart feed.
//
// This is the main entry point of the weather station. It:
//   - Seeds the in-memory series from the history logs
//   - Polls the bricklets behind the sensor hub on a fixed period
//   - Rotates the displayed chart and refreshes the date
//   - Relays every live sample to the archive, MQTT, InfluxDB, the
//     history logs and WebSocket clients
//   - Serves the REST API
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/nerrad567/weatherstation-core/migrations"

	"github.com/nerrad567/weatherstation-core/internal/api"
	"github.com/nerrad567/weatherstation-core/internal/archive"
	"github.com/nerrad567/weatherstation-core/internal/dashboard"
	"github.com/nerrad567/weatherstation-core/internal/history"
	"github.com/nerrad567/weatherstation-core/internal/hub"
	"github.com/nerrad567/weatherstation-core/internal/infrastructure/config"
	"github.com/nerrad567/weatherstation-core/internal/infrastructure/database"
	"github.com/nerrad567/weatherstation-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/weatherstation-core/internal/infrastructure/logging"
	"github.com/nerrad567/weatherstation-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/weatherstation-core/internal/relay"
	"github.com/nerrad567/weatherstation-core/internal/scheduler"
	"github.com/nerrad567/weatherstation-core/internal/sensor"
	"github.com/nerrad567/weatherstation-core/internal/series"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// defaultConfigPath is used when neither -config nor
	// WEATHERSTATION_CONFIG is given. Its absence is not an error.
	defaultConfigPath = "configs/config.yaml"

	configEnvVar = "WEATHERSTATION_CONFIG"

	defaultTokenTTL = 24 * time.Hour

	// pruneInterval is how often archived samples past retention are removed.
	pruneInterval = time.Hour
)

// options are the command-line settings.
type options struct {
	configPath string
	issueToken string // subject; when set, print a token and exit
	tokenTTL   time.Duration
	stdout     io.Writer
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	opts := options{stdout: os.Stdout}

	fs := flag.NewFlagSet("weatherstation", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "path to config.yaml (default $"+configEnvVar+" or "+defaultConfigPath+")")
	fs.StringVar(&opts.issueToken, "issue-token", "", "print an API token for this subject and exit")
	fs.DurationVar(&opts.tokenTTL, "token-ttl", defaultTokenTTL, "lifetime of the token printed by -issue-token")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Command-line options
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, opts options) error {
	// Use default logger until config is loaded
	log := logging.Default()
	loadDotEnv(log)

	cfg, path, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).With("station", cfg.Station.ID)

	if opts.issueToken != "" {
		return printToken(opts, cfg)
	}

	log.Info("starting weather station",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", path,
	)

	store := series.NewStore(cfg.Series.Capacity)
	sources, err := cfg.HistorySources()
	if err != nil {
		return fmt.Errorf("resolving history sources: %w", err)
	}
	report := history.NewLoader(log).Load(sources, store)
	log.Info("history loaded", "loaded", report.Loaded, "skipped", report.Skipped, "missing", report.Missing)

	var sinks []relay.Sink

	if cfg.History.Append {
		writer := history.NewWriter(sources)
		defer func() {
			if closeErr := writer.Close(); closeErr != nil {
				log.Error("error closing history logs", "error", closeErr)
			}
		}()
		sinks = append(sinks, writer)
	}

	var archiveRepo *archive.SQLiteRepository
	if cfg.Database.Enabled {
		db, openErr := openDatabase(ctx, cfg.Database, log)
		if openErr != nil {
			return openErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		archiveRepo = archive.NewSQLiteRepository(db.DB)
		sinks = append(sinks, archiveRepo)
		go pruneArchive(ctx, archiveRepo, time.Duration(cfg.Database.RetentionDays)*24*time.Hour, log)
	} else {
		log.Info("archive disabled")
	}

	hubClient := hub.New(hub.Config{
		ConnectTimeout:    cfg.Hub.ConnectTimeout,
		RequestTimeout:    cfg.Hub.RequestTimeout,
		ReconnectInterval: cfg.Hub.ReconnectInterval,
		ReconnectMax:      cfg.Hub.ReconnectMax,
		ProbeInterval:     cfg.Hub.ProbeInterval,
	})
	hubClient.SetLogger(log)

	bindings, err := buildBindings(cfg, hubClient)
	if err != nil {
		return err
	}

	carousel, err := dashboard.New(nil, cfg.Display.Width, cfg.Display.Height)
	if err != nil {
		return fmt.Errorf("creating dashboard: %w", err)
	}

	sched := scheduler.New(hubClient, store, bindings, scheduler.Options{
		PollInterval:        cfg.Schedule.PollInterval,
		RotateInterval:      cfg.Schedule.RotateInterval,
		DateRefreshInterval: cfg.Schedule.DateRefreshInterval,
		Rotator:             carousel,
		DateRefresher:       carousel,
		Logger:              log,
	})

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = startMQTT(cfg, sched, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		sinks = append(sinks, mqttClient)
	} else {
		log.Info("MQTT disabled")
	}

	hubClient.SetOnStateChange(func(s hub.State) {
		log.Info("sensor hub state changed", "state", s.String())
		if mqttClient == nil {
			return
		}
		// The hub calls back from its own goroutines; publishing may block.
		go func() {
			if pubErr := mqttClient.PublishHubState(s.String()); pubErr != nil {
				log.Warn("publishing hub state failed", "error", pubErr)
			}
		}()
	})

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Station.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sinks = append(sinks, influxClient)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	var ws *api.WSHub
	if cfg.API.Enabled {
		ws = api.NewWSHub(cfg.WebSocket, log)
		carousel.SetOnChange(ws.BroadcastView)
		sinks = append(sinks, ws)
	}

	rel := relay.New(store, log, sinks...)
	// Detached from the signal so Stop can flush the queue on shutdown.
	if startErr := rel.Start(context.WithoutCancel(ctx)); startErr != nil {
		return fmt.Errorf("starting relay: %w", startErr)
	}
	defer rel.Stop()

	var apiServer *api.Server
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:    cfg.API,
			WS:        cfg.WebSocket,
			WSHub:     ws,
			Logger:    log,
			Series:    store,
			Hub:       hubClient,
			View:      carousel,
			Navigator: sched,
			Scheduler: sched,
			Relay:     rel,
			Version:   version,
		}
		if archiveRepo != nil {
			deps.Archive = archiveRepo
		}
		apiServer, err = api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
	}

	// A hub that is down at startup is not fatal: the client keeps
	// retrying and polling resumes once it connects.
	if connErr := hubClient.Connect(ctx, cfg.Hub.Host, cfg.Hub.Port); connErr != nil {
		log.Warn("sensor hub unreachable, retrying in background", "error", connErr)
	}
	defer func() {
		if discErr := hubClient.Disconnect(); discErr != nil {
			log.Error("error disconnecting hub", "error", discErr)
		}
	}()

	if startErr := sched.Start(ctx); startErr != nil {
		return fmt.Errorf("starting scheduler: %w", startErr)
	}
	defer sched.Stop()

	if apiServer != nil {
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"sensors", len(bindings),
		"sinks", len(sinks),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, scheduler, hub, relay, then the
	// sink connections. The relay flushes its queue before the sinks close.
	return nil
}

// loadDotEnv reads .env into the environment if present. Variables that
// are already set win.
func loadDotEnv(log *logging.Logger) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("ignoring unreadable .env file", "error", err)
	}
}

// getConfigPath returns the configuration file path and whether it was
// chosen explicitly (flag or WEATHERSTATION_CONFIG).
func getConfigPath(flagPath string) (string, bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// loadConfig loads the configuration file. A missing default file falls
// back to the built-in defaults; a missing explicit file is an error.
func loadConfig(flagPath string) (*config.Config, string, error) {
	path, explicit := getConfigPath(flagPath)

	if _, statErr := os.Stat(path); !explicit && errors.Is(statErr, os.ErrNotExist) {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, "", err
		}
		return cfg, "(defaults)", nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func printToken(opts options, cfg *config.Config) error {
	token, err := api.IssueToken(cfg.API.Auth.JWTSecret, opts.issueToken, opts.tokenTTL)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	_, err = fmt.Fprintln(opts.stdout, token)
	return err
}

// openDatabase opens and migrates the archive database.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database health check: %w", err)
	}

	log.Info("database ready", "path", cfg.Path)
	return db, nil
}

// buildBindings creates one sensor per configured UID.
func buildBindings(cfg *config.Config, r sensor.Requester) ([]scheduler.Binding, error) {
	uids, err := cfg.SensorUIDs()
	if err != nil {
		return nil, fmt.Errorf("resolving sensors: %w", err)
	}

	bindings := make([]scheduler.Binding, 0, len(uids))
	for m, uid := range uids {
		reader, err := sensor.New(m, uid, r)
		if err != nil {
			return nil, fmt.Errorf("creating sensor: %w", err)
		}
		bindings = append(bindings, scheduler.Binding{Metric: m, Reader: reader})
	}
	return bindings, nil
}

// startMQTT connects to the broker and routes view commands to the
// scheduler.
func startMQTT(cfg *config.Config, nav *scheduler.Scheduler, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT, cfg.Station.ID)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	err = client.SubscribeViewCommands(func(command string) error {
		d, parseErr := scheduler.ParseDirection(command)
		if parseErr != nil {
			return parseErr
		}
		nav.Navigate(d)
		return nil
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("subscribing to view commands: %w", err)
	}

	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", client.ClientID(),
	)
	return client, nil
}

// pruneArchive removes samples older than retention now and then hourly
// until ctx is cancelled. A non-positive retention keeps everything.
func pruneArchive(ctx context.Context, repo *archive.SQLiteRepository, retention time.Duration, log *logging.Logger) {
	if retention <= 0 {
		return
	}

	prune := func() {
		removed, err := repo.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Error("pruning archive failed", "error", err)
		case removed > 0:
			log.Info("archive pruned", "removed", removed, "retention", retention.String())
		}
	}

	prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
