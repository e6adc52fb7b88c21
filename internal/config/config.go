// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat and match the koanf tags below.
// - Provide New() to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Storage and ledger backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`
	// LogFile additionally writes logs to a rotated file when set.
	LogFile       string `koanf:"log_file"`
	LogMaxSizeMB  int    `koanf:"log_max_size_mb"`
	LogMaxBackups int    `koanf:"log_max_backups"`
	LogMaxAgeDays int    `koanf:"log_max_age_days"`

	// Addr configures the ops HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// PollInterval is the time between detection cycles.
	PollInterval time.Duration `koanf:"poll_interval"`
	// GracePeriod is how late a dose may be confirmed before it is missed.
	GracePeriod time.Duration `koanf:"grace_period"`
	// UpperBound is how late a missed dose is still alerted on.
	UpperBound time.Duration `koanf:"upper_bound"`
	// Timezone is the IANA zone schedule times are written in.
	Timezone string `koanf:"timezone"`

	// QueueSize bounds the in-memory alert queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of delivery workers.
	WorkerCount int `koanf:"worker_count"`
	// NotifyTimeout bounds a single delivery.
	NotifyTimeout time.Duration `koanf:"notify_timeout"`
	// RecheckIntake re-reads intakes right before delivery.
	RecheckIntake bool `koanf:"recheck_intake"`

	StoreBackend string `koanf:"store_backend"`
	DatabaseDSN  string `koanf:"database_dsn"`
	// FixturesFile seeds the memory store from YAML.
	FixturesFile string `koanf:"fixtures_file"`

	LedgerBackend string `koanf:"ledger_backend"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	EmailEnabled bool   `koanf:"email_enabled"`
	EmailFrom    string `koanf:"email_from"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUsername string `koanf:"smtp_username"`
	SMTPPassword string `koanf:"smtp_password"`
	SMTPUseTLS   bool   `koanf:"smtp_use_tls"`

	SMSEnabled       bool   `koanf:"sms_enabled"`
	SMSAPIKey        string `koanf:"sms_api_key"`
	SMSSecretKey     string `koanf:"sms_secret_key"`
	SMSTemplateID    string `koanf:"sms_template_id"`
	SMSDefaultRegion string `koanf:"sms_default_region"`

	// OutboxFile receives alerts when neither e-mail nor SMS is enabled.
	OutboxFile string `koanf:"outbox_file"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		LogMaxSizeMB:     50,
		LogMaxBackups:    5,
		LogMaxAgeDays:    28,
		Addr:             ":9080",
		PollInterval:     20 * time.Second,
		GracePeriod:      5 * time.Minute,
		UpperBound:       10 * time.Minute,
		Timezone:         "Local",
		QueueSize:        1024,
		WorkerCount:      2,
		NotifyTimeout:    15 * time.Second,
		StoreBackend:     BackendMemory,
		LedgerBackend:    BackendMemory,
		RedisAddr:        "localhost:6379",
		SMTPPort:         587,
		SMTPUseTLS:       false,
		SMSDefaultRegion: "NL",
		OutboxFile:       "emails.log",
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	switch {
	case strings.TrimSpace(c.Addr) == "":
		return invalid("addr must not be empty")
	case c.PollInterval <= 0:
		return invalid("poll_interval must be positive, got %s", c.PollInterval)
	case c.GracePeriod < 0:
		return invalid("grace_period must not be negative, got %s", c.GracePeriod)
	case c.UpperBound < c.GracePeriod:
		return invalid("upper_bound %s is below grace_period %s", c.UpperBound, c.GracePeriod)
	case c.QueueSize < 1:
		return invalid("queue_size must be positive, got %d", c.QueueSize)
	case c.WorkerCount < 1:
		return invalid("worker_count must be positive, got %d", c.WorkerCount)
	case c.NotifyTimeout <= 0:
		return invalid("notify_timeout must be positive, got %s", c.NotifyTimeout)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return invalid("log_format must be text or json, got %q", c.LogFormat)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseDSN == "" {
			return invalid("database_dsn is required for the postgres store")
		}
	default:
		return invalid("store_backend must be memory or postgres, got %q", c.StoreBackend)
	}

	switch c.LedgerBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return invalid("redis_addr is required for the redis ledger")
		}
	default:
		return invalid("ledger_backend must be memory or redis, got %q", c.LedgerBackend)
	}

	if c.EmailEnabled && (c.SMTPHost == "" || c.EmailFrom == "") {
		return invalid("email_enabled needs smtp_host and email_from")
	}
	if c.SMSEnabled && (c.SMSAPIKey == "" || c.SMSTemplateID == "") {
		return invalid("sms_enabled needs sms_api_key and sms_template_id")
	}
	return nil
}
