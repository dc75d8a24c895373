package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/johnkord/sendie/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q, want %q", cfg.HTTP.Addr, ":8080")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if cfg.Session.BaseTTLMinutes != 30 {
		t.Errorf("Session.BaseTTLMinutes = %d, want 30", cfg.Session.BaseTTLMinutes)
	}

	if cfg.Session.AbsoluteMaxHoursHostConnected != 24 {
		t.Errorf("Session.AbsoluteMaxHoursHostConnected = %d, want 24", cfg.Session.AbsoluteMaxHoursHostConnected)
	}

	if cfg.Session.AbsoluteMaxHoursHostDisconnected != 4 {
		t.Errorf("Session.AbsoluteMaxHoursHostDisconnected = %d, want 4", cfg.Session.AbsoluteMaxHoursHostDisconnected)
	}

	if cfg.Session.HostGraceMinutes != 30 {
		t.Errorf("Session.HostGraceMinutes = %d, want 30", cfg.Session.HostGraceMinutes)
	}

	if cfg.Session.EmptyTimeoutMinutes != 5 {
		t.Errorf("Session.EmptyTimeoutMinutes = %d, want 5", cfg.Session.EmptyTimeoutMinutes)
	}

	if cfg.Session.MaxPeersDefault != 10 {
		t.Errorf("Session.MaxPeersDefault = %d, want 10", cfg.Session.MaxPeersDefault)
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
http:
  addr: ":9090"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
session:
  base_ttl_minutes: 15
  max_peers_default: 6
data_directory: "/var/lib/sendie"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("HTTP.Addr = %q, want %q", cfg.HTTP.Addr, ":9090")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	if cfg.Session.BaseTTLMinutes != 15 {
		t.Errorf("Session.BaseTTLMinutes = %d, want 15", cfg.Session.BaseTTLMinutes)
	}

	if cfg.Session.MaxPeersDefault != 6 {
		t.Errorf("Session.MaxPeersDefault = %d, want 6", cfg.Session.MaxPeersDefault)
	}

	if cfg.DataDirectory != "/var/lib/sendie" {
		t.Errorf("DataDirectory = %q, want %q", cfg.DataDirectory, "/var/lib/sendie")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override http.addr and log.level.
	// Everything else should inherit from defaults.
	yamlContent := `
http:
  addr: ":55555"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	// Overridden values.
	if cfg.HTTP.Addr != ":55555" {
		t.Errorf("HTTP.Addr = %q, want %q", cfg.HTTP.Addr, ":55555")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Session.MaxPeersDefault != 10 {
		t.Errorf("Session.MaxPeersDefault = %d, want default 10", cfg.Session.MaxPeersDefault)
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty http addr",
			modify: func(cfg *config.Config) {
				cfg.HTTP.Addr = ""
			},
			wantErr: config.ErrEmptyHTTPAddr,
		},
		{
			name: "max peers too small",
			modify: func(cfg *config.Config) {
				cfg.Session.MaxPeersDefault = 1
			},
			wantErr: config.ErrInvalidMaxPeersDefault,
		},
		{
			name: "max peers too large",
			modify: func(cfg *config.Config) {
				cfg.Session.MaxPeersDefault = 11
			},
			wantErr: config.ErrInvalidMaxPeersDefault,
		},
		{
			name: "zero base ttl",
			modify: func(cfg *config.Config) {
				cfg.Session.BaseTTLMinutes = 0
			},
			wantErr: config.ErrInvalidBaseTTL,
		},
		{
			name: "zero empty timeout",
			modify: func(cfg *config.Config) {
				cfg.Session.EmptyTimeoutMinutes = 0
			},
			wantErr: config.ErrInvalidEmptyTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadIceServersAndAccessControl(t *testing.T) {
	t.Parallel()

	fixture := map[string]any{
		"http": map[string]any{"addr": ":8080"},
		"access_control": map[string]any{
			"admins":             []string{"100000000000000001"},
			"initial_allow_list": []string{"100000000000000002", "100000000000000003"},
		},
		"ice_servers": []map[string]any{
			{"urls": []string{"stun:stun.example.net:3478"}},
			{
				"urls":       []string{"turn:turn.example.net:3478"},
				"username":   "sendie",
				"credential": "hunter2",
			},
		},
	}

	data, err := yaml.Marshal(fixture)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path := writeTemp(t, string(data))

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if len(cfg.AccessControl.Admins) != 1 {
		t.Fatalf("AccessControl.Admins = %v, want one entry", cfg.AccessControl.Admins)
	}
	if len(cfg.AccessControl.InitialAllowList) != 2 {
		t.Fatalf("AccessControl.InitialAllowList = %v, want two entries", cfg.AccessControl.InitialAllowList)
	}

	if len(cfg.IceServers) != 2 {
		t.Fatalf("IceServers = %v, want two entries", cfg.IceServers)
	}
	if got := cfg.IceServers[0].URLs[0]; got != "stun:stun.example.net:3478" {
		t.Errorf("IceServers[0].URLs[0] = %q, want the stun entry", got)
	}
	if cfg.IceServers[1].Username != "sendie" || cfg.IceServers[1].Credential != "hunter2" {
		t.Errorf("IceServers[1] credentials = %+v, want username/credential preserved", cfg.IceServers[1])
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestLoadEmptyPathSkipsFileLayer(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}

	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q, want default %q", cfg.HTTP.Addr, ":8080")
	}
}

// -------------------------------------------------------------------------
// Environment Variable Override Tests
// -------------------------------------------------------------------------

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
http:
  addr: ":8080"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("SENDIE_HTTP_ADDR", ":60000")
	t.Setenv("SENDIE_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.HTTP.Addr != ":60000" {
		t.Errorf("HTTP.Addr = %q, want %q (from env)", cfg.HTTP.Addr, ":60000")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
http:
  addr: ":8080"
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("SENDIE_METRICS_ADDR", ":9200")
	t.Setenv("SENDIE_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "sendie.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
