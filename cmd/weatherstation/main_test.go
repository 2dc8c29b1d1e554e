package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/weatherstation-core/internal/api"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// writeConfig writes a config that starts without any external service:
// the hub port is closed, MQTT and InfluxDB are off, the API binds an
// ephemeral port.
func writeConfig(t *testing.T, temperatureUID string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
station:
  id: test-station

hub:
  host: "127.0.0.1"
  port: 1
  connect_timeout: 500ms
  sensors:
    temperature: "` + temperatureUID + `"

history:
  sources:
    temperature: "` + filepath.Join(dir, "temperature.csv") + `"
  append: true

database:
  enabled: true
  path: "` + filepath.Join(dir, "archive.db") + `"

api:
  host: "127.0.0.1"
  port: 0
  auth:
    jwt_secret: "` + testJWTSecret + `"

logging:
  level: error
  format: text
  output: stderr
`

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr error
	}{
		{"defaults", nil, options{tokenTTL: defaultTokenTTL}, nil},
		{"config", []string{"-config", "/etc/ws.yaml"}, options{configPath: "/etc/ws.yaml", tokenTTL: defaultTokenTTL}, nil},
		{"token", []string{"-issue-token", "panel", "-token-ttl", "1h"}, options{issueToken: "panel", tokenTTL: time.Hour}, nil},
		{"help", []string{"-h"}, options{}, flag.ErrHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("parseFlags() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got.configPath != tt.want.configPath || got.issueToken != tt.want.issueToken || got.tokenTTL != tt.want.tokenTTL {
				t.Errorf("parseFlags() = %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, err := parseFlags([]string{"stray"}); err == nil {
		t.Error("parseFlags(stray) error = nil, want error")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(configEnvVar, "")
	if path, explicit := getConfigPath(""); path != defaultConfigPath || explicit {
		t.Errorf("getConfigPath() = %q, %v; want default, false", path, explicit)
	}

	t.Setenv(configEnvVar, "/custom/config.yaml")
	if path, explicit := getConfigPath(""); path != "/custom/config.yaml" || !explicit {
		t.Errorf("getConfigPath() = %q, %v; want env path, true", path, explicit)
	}

	if path, _ := getConfigPath("/flag.yaml"); path != "/flag.yaml" {
		t.Errorf("flag path = %q, want it to beat the env var", path)
	}
}

func TestLoadConfig_DefaultsWhenDefaultFileMissing(t *testing.T) {
	t.Setenv(configEnvVar, "")
	t.Chdir(t.TempDir())

	cfg, path, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if path != "(defaults)" || cfg.Station.ID == "" {
		t.Errorf("loadConfig() = %q, station %q", path, cfg.Station.ID)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv(configEnvVar, "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, options{}); err == nil {
		t.Fatal("run() should fail with a missing explicit config file")
	}
}

func TestRun_InvalidSensorUID(t *testing.T) {
	path := writeConfig(t, "0OIl")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, options{configPath: path}); err == nil {
		t.Fatal("run() should fail with an invalid sensor UID")
	}
}

func TestRun_IssueToken(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), options{
		configPath: writeConfig(t, "dXC"),
		issueToken: "wall-panel",
		tokenTTL:   time.Minute,
		stdout:     &out,
	})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	claims, err := api.ValidateToken(testJWTSecret, strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("printed token does not validate: %v", err)
	}
	if claims.Subject != "wall-panel" {
		t.Errorf("subject = %q, want wall-panel", claims.Subject)
	}
}

// TestRun_StartupAndShutdown starts every local component with the hub
// unreachable and checks run returns cleanly once the context ends.
func TestRun_StartupAndShutdown(t *testing.T) {
	path := writeConfig(t, "dXC")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, options{configPath: path}) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(20 * time.Second):
		t.Fatal("run() did not return after the context ended")
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(path), "archive.db")); err != nil {
		t.Errorf("archive database not created: %v", err)
	}
}
