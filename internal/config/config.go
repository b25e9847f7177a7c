// Package config loads the scanner service configuration from the
// environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Submission modes.
const (
	SubmitModeDirect   = "direct"
	SubmitModeTemporal = "temporal"
)

// Config holds application configuration
type Config struct {
	ServerAddr  string         `mapstructure:"server_addr"`
	LogLevel    string         `mapstructure:"log_level"`
	Environment string         `mapstructure:"environment"`
	Session     SessionConfig  `mapstructure:"session"`
	Services    ServiceURLs    `mapstructure:"services"`
	MongoDB     MongoDBConfig  `mapstructure:"mongodb"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
	Temporal    TemporalConfig `mapstructure:"temporal"`
	Tracing     TracingConfig  `mapstructure:"tracing"`
}

// SessionConfig tunes the orchestrators.
type SessionConfig struct {
	DebounceWindow time.Duration `mapstructure:"debounce_window"`
	IdleTTL        time.Duration `mapstructure:"idle_ttl"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	Retention      time.Duration `mapstructure:"retention"`
	SubmitMode     string        `mapstructure:"submit_mode"`
}

// ServiceURLs locates the upstream platform services.
type ServiceURLs struct {
	Inventory string        `mapstructure:"inventory_url"`
	Facility  string        `mapstructure:"facility_url"`
	Stow      string        `mapstructure:"stow_url"`
	Submit    string        `mapstructure:"submit_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// MongoDBConfig configures the session snapshot store. An empty URI
// disables persistence.
type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// KafkaConfig configures event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// TemporalConfig configures the durable submission path.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
}

// TracingConfig configures the OTLP exporter.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// env maps config keys to the environment variables the platform uses.
var env = map[string]string{
	"server_addr":             "SERVER_ADDR",
	"log_level":               "LOG_LEVEL",
	"environment":             "ENVIRONMENT",
	"session.debounce_window": "SCAN_DEBOUNCE_WINDOW",
	"session.idle_ttl":        "SESSION_IDLE_TTL",
	"session.sweep_interval":  "SESSION_SWEEP_INTERVAL",
	"session.retention":       "SESSION_RETENTION",
	"session.submit_mode":     "SUBMIT_MODE",
	"services.inventory_url":  "INVENTORY_SERVICE_URL",
	"services.facility_url":   "FACILITY_SERVICE_URL",
	"services.stow_url":       "STOW_SERVICE_URL",
	"services.submit_url":     "SUBMIT_SERVICE_URL",
	"services.timeout":        "UPSTREAM_TIMEOUT",
	"mongodb.uri":             "MONGODB_URI",
	"mongodb.database":        "MONGODB_DATABASE",
	"kafka.brokers":           "KAFKA_BROKERS",
	"temporal.host":           "TEMPORAL_HOST",
	"temporal.namespace":      "TEMPORAL_NAMESPACE",
	"tracing.enabled":         "TRACING_ENABLED",
	"tracing.endpoint":        "OTEL_EXPORTER_OTLP_ENDPOINT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_addr", ":8020")
	v.SetDefault("log_level", "info")
	v.SetDefault("environment", "development")
	v.SetDefault("session.debounce_window", "2s")
	v.SetDefault("session.idle_ttl", "30m")
	v.SetDefault("session.sweep_interval", "1m")
	v.SetDefault("session.retention", "24h")
	v.SetDefault("session.submit_mode", SubmitModeDirect)
	v.SetDefault("services.inventory_url", "http://localhost:8008")
	v.SetDefault("services.facility_url", "http://localhost:8010")
	v.SetDefault("services.stow_url", "http://localhost:8011")
	v.SetDefault("services.submit_url", "http://localhost:8008")
	v.SetDefault("services.timeout", "10s")
	v.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb.database", "scanner_db")
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("tracing.enabled", true)
	v.SetDefault("tracing.endpoint", "localhost:4317")
}

// Load reads configuration from the environment. When path is set, the YAML
// file it names is read first and environment variables override it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, name := range env {
		if err := v.BindEnv(key, name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Kafka.Brokers = splitList(c.Kafka.Brokers)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Session.SubmitMode {
	case SubmitModeDirect, SubmitModeTemporal:
	default:
		errs = append(errs, fmt.Errorf("submit mode %q must be %q or %q", c.Session.SubmitMode, SubmitModeDirect, SubmitModeTemporal))
	}
	if c.Session.DebounceWindow < 0 {
		errs = append(errs, errors.New("debounce window must not be negative"))
	}
	if c.Session.IdleTTL <= 0 {
		errs = append(errs, errors.New("session idle TTL must be positive"))
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("session sweep interval must be positive"))
	}
	if c.Session.SubmitMode == SubmitModeTemporal && c.Temporal.HostPort == "" {
		errs = append(errs, errors.New("temporal host is required in temporal submit mode"))
	}
	return errors.Join(errs...)
}

// splitList accepts both repeated values and a single comma separated one.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
