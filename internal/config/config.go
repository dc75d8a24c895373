// Package config manages the sendied daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and sensible defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete sendied configuration.
type Config struct {
	HTTP          HTTPConfig          `koanf:"http"`
	Metrics       MetricsConfig       `koanf:"metrics"`
	Log           LogConfig           `koanf:"log"`
	AccessControl AccessControlConfig `koanf:"access_control"`
	Session       SessionConfig       `koanf:"session"`
	DataDirectory string              `koanf:"data_directory"`
	IceServers    []IceServer         `koanf:"ice_servers"`
}

// HTTPConfig holds the public HTTP/WebSocket surface configuration.
type HTTPConfig struct {
	// Addr is the listen address for the HTTP surface and signaling hub (e.g., ":8080").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// AccessControlConfig holds the allow-list seeding configuration.
type AccessControlConfig struct {
	// Admins is the frozen set of administrator user IDs, loaded once at boot.
	Admins []string `koanf:"admins"`
	// InitialAllowList is the set of non-admin user IDs allowed at boot.
	InitialAllowList []string `koanf:"initial_allow_list"`
}

// SessionConfig holds the session TTL regime parameters.
type SessionConfig struct {
	// BaseTTLMinutes is the soft TTL duration applied on every extend.
	BaseTTLMinutes int `koanf:"base_ttl_minutes"`
	// AbsoluteMaxHoursHostConnected bounds a session's life while its host is present.
	AbsoluteMaxHoursHostConnected int `koanf:"absolute_max_hours_host_connected"`
	// AbsoluteMaxHoursHostDisconnected bounds a session's life with no host present.
	AbsoluteMaxHoursHostDisconnected int `koanf:"absolute_max_hours_host_disconnected"`
	// HostGraceMinutes extends the absolute bound after the host disconnects.
	HostGraceMinutes int `koanf:"host_grace_minutes"`
	// EmptyTimeoutMinutes bounds how long a peerless session survives.
	EmptyTimeoutMinutes int `koanf:"empty_timeout_minutes"`
	// MaxPeersDefault is the default max_peers for newly created sessions.
	MaxPeersDefault int `koanf:"max_peers_default"`
}

// BaseTTL returns the soft TTL as a time.Duration.
func (sc SessionConfig) BaseTTL() time.Duration {
	return time.Duration(sc.BaseTTLMinutes) * time.Minute
}

// AbsoluteMaxHostConnected returns the host-connected absolute bound as a time.Duration.
func (sc SessionConfig) AbsoluteMaxHostConnected() time.Duration {
	return time.Duration(sc.AbsoluteMaxHoursHostConnected) * time.Hour
}

// AbsoluteMaxHostDisconnected returns the host-disconnected absolute bound as a time.Duration.
func (sc SessionConfig) AbsoluteMaxHostDisconnected() time.Duration {
	return time.Duration(sc.AbsoluteMaxHoursHostDisconnected) * time.Hour
}

// HostGrace returns the post-disconnect host grace period as a time.Duration.
func (sc SessionConfig) HostGrace() time.Duration {
	return time.Duration(sc.HostGraceMinutes) * time.Minute
}

// EmptyTimeout returns the peerless session timeout as a time.Duration.
func (sc SessionConfig) EmptyTimeout() time.Duration {
	return time.Duration(sc.EmptyTimeoutMinutes) * time.Minute
}

// IceServer describes one STUN/TURN server entry returned by GET /ice-servers.
// The service treats its contents as opaque structured data.
type IceServer struct {
	URLs       []string `koanf:"urls"`
	Username   string   `koanf:"username"`
	Credential string   `koanf:"credential"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sane defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Session: SessionConfig{
			BaseTTLMinutes:                   30,
			AbsoluteMaxHoursHostConnected:    24,
			AbsoluteMaxHoursHostDisconnected: 4,
			HostGraceMinutes:                 30,
			EmptyTimeoutMinutes:              5,
			MaxPeersDefault:                  10,
		},
		DataDirectory: "./data",
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for sendied configuration.
// Variables are named SENDIE_<section>_<key>, e.g., SENDIE_HTTP_ADDR.
const envPrefix = "SENDIE_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (SENDIE_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults. An empty path skips the file layer
// entirely, relying on defaults and environment overrides only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms SENDIE_HTTP_ADDR -> http.addr.
// Strips the SENDIE_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"http.addr":                defaults.HTTP.Addr,
		"metrics.addr":             defaults.Metrics.Addr,
		"metrics.path":             defaults.Metrics.Path,
		"log.level":                defaults.Log.Level,
		"log.format":               defaults.Log.Format,
		"session.base_ttl_minutes": defaults.Session.BaseTTLMinutes,
		"session.absolute_max_hours_host_connected":    defaults.Session.AbsoluteMaxHoursHostConnected,
		"session.absolute_max_hours_host_disconnected": defaults.Session.AbsoluteMaxHoursHostDisconnected,
		"session.host_grace_minutes":                   defaults.Session.HostGraceMinutes,
		"session.empty_timeout_minutes":                defaults.Session.EmptyTimeoutMinutes,
		"session.max_peers_default":                    defaults.Session.MaxPeersDefault,
		"data_directory":                               defaults.DataDirectory,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyHTTPAddr indicates the HTTP listen address is empty.
	ErrEmptyHTTPAddr = errors.New("http.addr must not be empty")

	// ErrInvalidMaxPeersDefault indicates the default max_peers is out of range.
	ErrInvalidMaxPeersDefault = errors.New("session.max_peers_default must be in [2, 10]")

	// ErrInvalidBaseTTL indicates the base TTL is non-positive.
	ErrInvalidBaseTTL = errors.New("session.base_ttl_minutes must be > 0")

	// ErrInvalidEmptyTimeout indicates the empty-session timeout is non-positive.
	ErrInvalidEmptyTimeout = errors.New("session.empty_timeout_minutes must be > 0")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.HTTP.Addr == "" {
		return ErrEmptyHTTPAddr
	}

	if cfg.Session.MaxPeersDefault < 2 || cfg.Session.MaxPeersDefault > 10 {
		return ErrInvalidMaxPeersDefault
	}

	if cfg.Session.BaseTTLMinutes <= 0 {
		return ErrInvalidBaseTTL
	}

	if cfg.Session.EmptyTimeoutMinutes <= 0 {
		return ErrInvalidEmptyTimeout
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
