package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/weatherstation-core/internal/metric"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
station:
  id: "roof"
hub:
  host: "brickd.local"
  request_timeout: 1500ms
  sensors:
    temperature: "abc"
schedule:
  poll_interval: 10s
history:
  sources:
    temperature-csv: "/var/lib/ws/temperature.tsv"
  append: true
database:
  path: "/tmp/test.db"
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
  qos: 1
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Station.ID != "roof" {
		t.Errorf("Station.ID = %q, want %q", cfg.Station.ID, "roof")
	}
	if cfg.Hub.Host != "brickd.local" {
		t.Errorf("Hub.Host = %q, want %q", cfg.Hub.Host, "brickd.local")
	}
	if cfg.Hub.Port != 4223 {
		t.Errorf("Hub.Port = %d, want default 4223", cfg.Hub.Port)
	}
	if cfg.Hub.RequestTimeout != 1500*time.Millisecond {
		t.Errorf("Hub.RequestTimeout = %v, want 1.5s", cfg.Hub.RequestTimeout)
	}
	if cfg.Schedule.PollInterval != 10*time.Second {
		t.Errorf("Schedule.PollInterval = %v, want 10s", cfg.Schedule.PollInterval)
	}
	if cfg.Schedule.RotateInterval != 15*time.Second {
		t.Errorf("Schedule.RotateInterval = %v, want default 15s", cfg.Schedule.RotateInterval)
	}
	if !cfg.History.Append {
		t.Error("History.Append = false, want true")
	}

	sources, err := cfg.HistorySources()
	if err != nil {
		t.Fatalf("HistorySources() error = %v", err)
	}
	if sources[metric.Temperature] != "/var/lib/ws/temperature.tsv" || len(sources) != 1 {
		t.Errorf("HistorySources() = %v", sources)
	}
}

func TestLoad_SensorDefaults(t *testing.T) {
	configPath := writeConfig(t, `
hub:
  sensors:
    temperature: "abc"
    light: ""
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	uids, err := cfg.SensorUIDs()
	if err != nil {
		t.Fatalf("SensorUIDs() error = %v", err)
	}

	want := map[metric.Metric]string{
		metric.Temperature: "abc",
		metric.Humidity:    "hRd",
		metric.Barometer:   "jo7",
	}
	if len(uids) != len(want) {
		t.Fatalf("SensorUIDs() = %v, want %v", uids, want)
	}
	for m, uid := range want {
		if uids[m] != uid {
			t.Errorf("uid[%s] = %q, want %q", m, uids[m], uid)
		}
	}
	if _, ok := uids[metric.Ambient]; ok {
		t.Error("ambient sensor should be disabled by the empty UID")
	}
}

// The shipped example must always load.
func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load(configs/config.yaml) error = %v", err)
	}

	uids, err := cfg.SensorUIDs()
	if err != nil || len(uids) != metric.Count {
		t.Errorf("SensorUIDs() = %v, %v; want all %d metrics", uids, err, metric.Count)
	}
	sources, err := cfg.HistorySources()
	if err != nil || len(sources) != metric.Count {
		t.Errorf("HistorySources() = %v, %v; want all %d metrics", sources, err, metric.Count)
	}
	if cfg.Hub.RequestTimeout != 2500*time.Millisecond {
		t.Errorf("Hub.RequestTimeout = %v, want 2.5s", cfg.Hub.RequestTimeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
station:
  id: ""
mqtt:
  qos: 5
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"station.id is required", "mqtt.qos must be 0, 1, or 2"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Hub.Port != 4223 {
		t.Errorf("Hub.Port = %d, want 4223", cfg.Hub.Port)
	}
	if cfg.Hub.RequestTimeout != 2500*time.Millisecond {
		t.Errorf("Hub.RequestTimeout = %v, want 2.5s", cfg.Hub.RequestTimeout)
	}
	if cfg.Schedule.PollInterval != 5*time.Second {
		t.Errorf("Schedule.PollInterval = %v, want 5s", cfg.Schedule.PollInterval)
	}
	if cfg.Schedule.DateRefreshInterval != time.Minute {
		t.Errorf("Schedule.DateRefreshInterval = %v, want 1m", cfg.Schedule.DateRefreshInterval)
	}
	if cfg.Series.Capacity != 17280 {
		t.Errorf("Series.Capacity = %d, want 17280", cfg.Series.Capacity)
	}
	if cfg.Display.Width != 800 || cfg.Display.Height != 480 {
		t.Errorf("Display = %dx%d, want 800x480", cfg.Display.Width, cfg.Display.Height)
	}
	if cfg.MQTT.Enabled || cfg.InfluxDB.Enabled {
		t.Error("external sinks should be disabled by default")
	}
	if !cfg.Database.Enabled || !cfg.Database.WALMode {
		t.Error("database should be enabled with WAL by default")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("WEATHERSTATION_HUB_HOST", "10.0.0.7")
	t.Setenv("WEATHERSTATION_HUB_PORT", "4280")
	t.Setenv("WEATHERSTATION_DATABASE_PATH", "/env/ws.db")
	t.Setenv("WEATHERSTATION_MQTT_HOST", "mqtt.env")
	t.Setenv("WEATHERSTATION_MQTT_USERNAME", "station")
	t.Setenv("WEATHERSTATION_MQTT_PASSWORD", "secret")
	t.Setenv("WEATHERSTATION_API_HOST", "127.0.0.1")
	t.Setenv("WEATHERSTATION_INFLUXDB_TOKEN", "token")
	t.Setenv("WEATHERSTATION_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("WEATHERSTATION_HISTORY_HUMIDITY", "/env/humidity.tsv")

	cfg := defaultConfig()
	cfg.History.Sources = map[string]string{"humidity-csv": "/file/humidity.tsv"}
	applyEnvOverrides(cfg)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"hub host", cfg.Hub.Host, "10.0.0.7"},
		{"hub port", cfg.Hub.Port, 4280},
		{"database path", cfg.Database.Path, "/env/ws.db"},
		{"mqtt host", cfg.MQTT.Broker.Host, "mqtt.env"},
		{"mqtt username", cfg.MQTT.Auth.Username, "station"},
		{"mqtt password", cfg.MQTT.Auth.Password, "secret"},
		{"api host", cfg.API.Host, "127.0.0.1"},
		{"influx token", cfg.InfluxDB.Token, "token"},
		{"jwt secret", cfg.API.Auth.JWTSecret, "0123456789abcdef0123456789abcdef"},
		{"history sources", len(cfg.History.Sources), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	sources, err := cfg.HistorySources()
	if err != nil {
		t.Fatalf("HistorySources() error = %v", err)
	}
	if sources[metric.Humidity] != "/env/humidity.tsv" {
		t.Errorf("humidity source = %q, want the environment value", sources[metric.Humidity])
	}
}

func TestApplyEnvOverrides_BadPort(t *testing.T) {
	t.Setenv("WEATHERSTATION_HUB_PORT", "not-a-port")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if cfg.Hub.Port != 4223 {
		t.Errorf("Hub.Port = %d, want default kept", cfg.Hub.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"hub port out of range", func(c *Config) { c.Hub.Port = 70000 }, "hub.port"},
		{"zero request timeout", func(c *Config) { c.Hub.RequestTimeout = 0 }, "hub.request_timeout"},
		{"unknown sensor metric", func(c *Config) { c.Hub.Sensors["wind"] = "x" }, `unknown metric "wind"`},
		{"sensor listed twice", func(c *Config) { c.Hub.Sensors["light"] = "x" }, "listed twice"},
		{"zero poll interval", func(c *Config) { c.Schedule.PollInterval = 0 }, "schedule.poll_interval"},
		{"zero capacity", func(c *Config) { c.Series.Capacity = 0 }, "series.capacity"},
		{"bad history key", func(c *Config) {
			c.History.Sources = map[string]string{"rain-csv": "/x"}
		}, "history.sources"},
		{"bad display", func(c *Config) { c.Display.Width = 0 }, "display.width"},
		{"database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"database disabled without path", func(c *Config) {
			c.Database.Enabled = false
			c.Database.Path = ""
		}, ""},
		{"negative retention", func(c *Config) { c.Database.RetentionDays = -1 }, "retention_days"},
		{"mqtt without host", func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.Broker.Host = ""
		}, "mqtt.broker.host"},
		{"influx without url", func(c *Config) { c.InfluxDB.Enabled = true }, "influxdb.url"},
		{"api port", func(c *Config) { c.API.Port = 70000 }, "api.port"},
		{"api ephemeral port", func(c *Config) { c.API.Port = 0 }, ""},
		{"api disabled ignores port", func(c *Config) {
			c.API.Enabled = false
			c.API.Port = -1
		}, ""},
		{"short jwt secret", func(c *Config) { c.API.Auth.JWTSecret = "short" }, "jwt_secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Station.ID = ""
	cfg.Hub.Host = ""
	cfg.Series.Capacity = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	if !strings.HasPrefix(err.Error(), "configuration errors: ") {
		t.Errorf("error %q lacks the configuration errors prefix", err)
	}
	if n := strings.Count(err.Error(), ";"); n != 2 {
		t.Errorf("error %q joins %d separators, want 2", err, n)
	}
}

func TestTimeoutHelpers(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 30*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
}
