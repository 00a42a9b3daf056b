// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Security  SecurityConfig  `mapstructure:"security"`
	DB        DBConfig        `mapstructure:"db"`
	Replay    ReplayConfig    `mapstructure:"replay"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// SecurityConfig governs the webhook security gate.
type SecurityConfig struct {
	Token              string   `mapstructure:"token"`
	MaxTimestampAgeSec int      `mapstructure:"max_timestamp_age_seconds"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`
	AllowedIPs         []string `mapstructure:"allowed_ips"`
	ReplayCacheTTLSec  int      `mapstructure:"replay_cache_ttl_seconds"`
}

// TimestampWindow returns the freshness window as a duration.
func (s SecurityConfig) TimestampWindow() time.Duration {
	return time.Duration(s.MaxTimestampAgeSec) * time.Second
}

// ReplayCacheTTL returns the replay marker TTL. Zero falls back to twice the
// freshness window so markers outlive every acceptable retry.
func (s SecurityConfig) ReplayCacheTTL() time.Duration {
	if s.ReplayCacheTTLSec > 0 {
		return time.Duration(s.ReplayCacheTTLSec) * time.Second
	}
	return 2 * s.TimestampWindow()
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// ReplayConfig governs the background replay consumer.
type ReplayConfig struct {
	DefaultLimit    int     `mapstructure:"default_limit"`
	IntervalSeconds int     `mapstructure:"interval_seconds"`
	EventsPerSecond float64 `mapstructure:"events_per_second"`
}

// MonitorConfig tunes the observability monitor thresholds.
type MonitorConfig struct {
	BufferSize          int     `mapstructure:"buffer_size"`
	ErrorRateBaseline   float64 `mapstructure:"error_rate_baseline"`
	LatencyThresholdMs  int     `mapstructure:"latency_threshold_ms"`
	AnalyticsWindowMins int     `mapstructure:"analytics_window_minutes"`
}

// ArchiveConfig sets the raw payload archive destination.
type ArchiveConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig holds metadata for alert publication.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TelemetryConfig identifies the service for tracing and metrics.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	ProjectID   string `mapstructure:"project_id"`
	Region      string `mapstructure:"region"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRACKWEBHOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("security.max_timestamp_age_seconds", 300)
	v.SetDefault("security.rate_limit_per_minute", 100)
	v.SetDefault("replay.default_limit", 10)
	v.SetDefault("replay.interval_seconds", 60)
	v.SetDefault("replay.events_per_second", 5)
	v.SetDefault("monitor.buffer_size", 1000)
	v.SetDefault("monitor.error_rate_baseline", 0.10)
	v.SetDefault("monitor.latency_threshold_ms", 2000)
	v.SetDefault("monitor.analytics_window_minutes", 60)
	v.SetDefault("archive.prefix", "payloads")
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.service_name", "track-webhook")
	v.SetDefault("telemetry.version", "dev")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Security.Token == "" {
		return fmt.Errorf("security.token must be set")
	}
	if c.Security.MaxTimestampAgeSec <= 0 {
		return fmt.Errorf("security.max_timestamp_age_seconds must be > 0")
	}
	if c.Security.RateLimitPerMinute <= 0 {
		return fmt.Errorf("security.rate_limit_per_minute must be > 0")
	}
	if c.Replay.DefaultLimit <= 0 {
		return fmt.Errorf("replay.default_limit must be > 0")
	}
	if c.Monitor.ErrorRateBaseline <= 0 || c.Monitor.ErrorRateBaseline >= 1 {
		return fmt.Errorf("monitor.error_rate_baseline must be in (0, 1)")
	}
	return nil
}
