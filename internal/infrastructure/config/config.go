package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/weatherstation-core/internal/metric"
)

// envPrefix is prepended to every environment override.
const envPrefix = "WEATHERSTATION_"

// Config is the root configuration of the weather station.
// It is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Station   StationConfig   `yaml:"station"`
	Hub       HubConfig       `yaml:"hub"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Series    SeriesConfig    `yaml:"series"`
	History   HistoryConfig   `yaml:"history"`
	Display   DisplayConfig   `yaml:"display"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StationConfig identifies this station in topics, logs and measurements.
type StationConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// HubConfig describes the sensor hub connection and the bricklets behind it.
type HubConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	ReconnectMax      time.Duration `yaml:"reconnect_max"`
	ProbeInterval     time.Duration `yaml:"probe_interval"`

	// Sensors maps metric names to bricklet UIDs (Base58). Metrics left
	// out keep their default UID; an empty UID disables the sensor.
	Sensors map[string]string `yaml:"sensors"`
}

// ScheduleConfig holds the periods of the three recurring jobs.
type ScheduleConfig struct {
	PollInterval        time.Duration `yaml:"poll_interval"`
	RotateInterval      time.Duration `yaml:"rotate_interval"`
	DateRefreshInterval time.Duration `yaml:"date_refresh_interval"`
}

// SeriesConfig sizes the in-memory series.
type SeriesConfig struct {
	Capacity int `yaml:"capacity"`
}

// HistoryConfig points at the tab-separated history files.
type HistoryConfig struct {
	// Sources maps metric names to file paths. Keys may use the
	// "<metric>-csv" spelling. Empty paths are ignored.
	Sources map[string]string `yaml:"sources"`

	// Append writes live samples to the same files.
	Append bool `yaml:"append"`
}

// DisplayConfig is the size of the attached display in pixels.
type DisplayConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// DatabaseConfig contains SQLite archive settings.
type DatabaseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig caps the reconnect backoff, in seconds.
type MQTTReconnectConfig struct {
	MaxDelay int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Auth     APIAuthConfig    `yaml:"auth"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APIAuthConfig protects the mutating endpoints. An empty secret leaves
// them open.
type APIAuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment overrides.
//
// The loading process:
//  1. Start with default values
//  2. Override with values from the YAML file
//  3. Override with WEATHERSTATION_* environment variables
//  4. Validate the result
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// yaml.v3 merges into existing maps, so decode sensors into a fresh
	// one and fill the gaps afterwards.
	defaults := cfg.Hub.Sensors
	cfg.Hub.Sensors = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	mergeSensorDefaults(cfg, defaults)

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied, for running without a config file.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Station: StationConfig{
			ID:   "station-001",
			Name: "Weather Station",
		},
		Hub: HubConfig{
			Host:              "localhost",
			Port:              4223,
			ConnectTimeout:    10 * time.Second,
			RequestTimeout:    2500 * time.Millisecond,
			ReconnectInterval: time.Second,
			ReconnectMax:      time.Minute,
			ProbeInterval:     5 * time.Second,
			Sensors: map[string]string{
				"temperature": "dXC",
				"humidity":    "hRd",
				"ambient":     "jzj",
				"barometer":   "jo7",
			},
		},
		Schedule: ScheduleConfig{
			PollInterval:        5 * time.Second,
			RotateInterval:      15 * time.Second,
			DateRefreshInterval: time.Minute,
		},
		Series: SeriesConfig{
			Capacity: 17280,
		},
		Display: DisplayConfig{
			Width:  800,
			Height: 480,
		},
		Database: DatabaseConfig{
			Enabled:       true,
			Path:          "./data/weatherstation.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "weatherstation",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				MaxDelay: 60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// mergeSensorDefaults adds a default UID for every metric the file did not
// mention. An explicit empty UID disables that sensor.
func mergeSensorDefaults(cfg *Config, defaults map[string]string) {
	if cfg.Hub.Sensors == nil {
		cfg.Hub.Sensors = make(map[string]string, len(defaults))
	}
	seen := make(map[metric.Metric]bool, len(cfg.Hub.Sensors))
	for name := range cfg.Hub.Sensors {
		if m, err := metric.Parse(name); err == nil {
			seen[m] = true
		}
	}
	for name, uid := range defaults {
		m, err := metric.Parse(name)
		if err != nil || seen[m] {
			continue
		}
		cfg.Hub.Sensors[name] = uid
	}
}

// applyEnvOverrides applies WEATHERSTATION_SECTION_KEY variables.
func applyEnvOverrides(cfg *Config) {
	// Hub
	if v := os.Getenv(envPrefix + "HUB_HOST"); v != "" {
		cfg.Hub.Host = v
	}
	if v := os.Getenv(envPrefix + "HUB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Hub.Port = port
		}
	}

	// Database
	if v := os.Getenv(envPrefix + "DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv(envPrefix + "MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv(envPrefix + "MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv(envPrefix + "MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv(envPrefix + "API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv(envPrefix + "JWT_SECRET"); v != "" {
		cfg.API.Auth.JWTSecret = v
	}

	// InfluxDB
	if v := os.Getenv(envPrefix + "INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// History files, one variable per metric
	for _, m := range metric.All() {
		key := envPrefix + "HISTORY_" + strings.ToUpper(m.String())
		if v := os.Getenv(key); v != "" {
			if cfg.History.Sources == nil {
				cfg.History.Sources = make(map[string]string)
			}
			for name := range cfg.History.Sources {
				if parsed, err := metric.Parse(name); err == nil && parsed == m {
					delete(cfg.History.Sources, name)
				}
			}
			cfg.History.Sources[m.String()] = v
		}
	}
}

// Validate checks the configuration and reports every problem at once.
//
// Returns:
//   - error: Description of all validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Station.ID == "" {
		errs = append(errs, "station.id is required")
	}

	// Hub
	if c.Hub.Host == "" {
		errs = append(errs, "hub.host is required")
	}
	if c.Hub.Port < 1 || c.Hub.Port > 65535 {
		errs = append(errs, "hub.port must be between 1 and 65535")
	}
	if c.Hub.RequestTimeout <= 0 {
		errs = append(errs, "hub.request_timeout must be positive")
	}
	if _, err := c.SensorUIDs(); err != nil {
		errs = append(errs, err.Error())
	}

	// Schedule
	if c.Schedule.PollInterval <= 0 {
		errs = append(errs, "schedule.poll_interval must be positive")
	}
	if c.Schedule.RotateInterval <= 0 {
		errs = append(errs, "schedule.rotate_interval must be positive")
	}
	if c.Schedule.DateRefreshInterval <= 0 {
		errs = append(errs, "schedule.date_refresh_interval must be positive")
	}

	if c.Series.Capacity < 1 {
		errs = append(errs, "series.capacity must be at least 1")
	}
	if _, err := c.HistorySources(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Display.Width < 1 || c.Display.Height < 1 {
		errs = append(errs, "display.width and display.height must be positive")
	}

	// Database
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	// InfluxDB
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// API
	// Port 0 binds an ephemeral port.
	if c.API.Enabled && (c.API.Port < 0 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 0 and 65535")
	}
	const minJWTSecretLength = 32
	if s := c.API.Auth.JWTSecret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "api.auth.jwt_secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// SensorUIDs resolves hub.sensors into a metric-keyed map.
func (c *Config) SensorUIDs() (map[metric.Metric]string, error) {
	return resolveMetricKeys("hub.sensors", c.Hub.Sensors)
}

// HistorySources resolves history.sources into a metric-keyed map.
func (c *Config) HistorySources() (map[metric.Metric]string, error) {
	return resolveMetricKeys("history.sources", c.History.Sources)
}

func resolveMetricKeys(section string, in map[string]string) (map[metric.Metric]string, error) {
	out := make(map[metric.Metric]string, len(in))

	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m, err := metric.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("%s: unknown metric %q", section, name)
		}
		if _, dup := out[m]; dup {
			return nil, fmt.Errorf("%s: metric %s listed twice", section, m)
		}
		if strings.TrimSpace(in[name]) == "" {
			continue
		}
		out[m] = in[name]
	}
	return out, nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
