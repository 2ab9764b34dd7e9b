// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Flat koanf keys, one per field, shared by the YAML file and EVENTHUB_ env vars.
// - New(ctx) returns a Config filled with defaults; Load layers file and env on top.
// - Validate rejects combinations the service cannot start with.
package config

import (
	"context"
	"time"
)

// Store and cache drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the relational store: memory or postgres.
	StoreDriver string `koanf:"store_driver"`

	// DatabaseDSN is the lib/pq connection string used by the postgres driver.
	DatabaseDSN       string        `koanf:"database_dsn"`
	DBMaxOpenConns    int           `koanf:"db_max_open_conns"`
	DBMaxIdleConns    int           `koanf:"db_max_idle_conns"`
	DBConnMaxLifetime time.Duration `koanf:"db_conn_max_lifetime"`

	// CacheDriver selects the external feed cache backend: memory or redis.
	CacheDriver   string `koanf:"cache_driver"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// ExternalCacheTTL is how long a cached feed page is served.
	ExternalCacheTTL time.Duration `koanf:"external_cache_ttl"`

	// FreshnessTTL is how long a committed collection skips non-forced refreshes.
	FreshnessTTL time.Duration `koanf:"freshness_ttl"`

	// SourceTimeout bounds each source fetch within a refresh cycle.
	SourceTimeout time.Duration `koanf:"source_timeout"`

	// RefreshInterval drives the background refresh loop. Zero disables it.
	RefreshInterval time.Duration `koanf:"refresh_interval"`

	EventbriteProxyURL string        `koanf:"eventbrite_proxy_url"`
	EventbriteAPIURL   string        `koanf:"eventbrite_api_url"`
	EventbriteToken    string        `koanf:"eventbrite_token"`
	EventbriteLocation string        `koanf:"eventbrite_location"`
	EventbriteLimit    int           `koanf:"eventbrite_limit"`
	EventbriteRetries  int           `koanf:"eventbrite_retries"`
	EventbriteTimeout  time.Duration `koanf:"eventbrite_timeout"`

	// ChangeQueueSize bounds the live change queue.
	ChangeQueueSize int `koanf:"change_queue_size"`

	// TombstoneSize bounds the set of remembered deleted ids.
	TombstoneSize int `koanf:"tombstone_size"`
}

// New creates a Config with defaults. Context is accepted first to follow
// the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		StoreDriver:        DriverMemory,
		DBMaxOpenConns:     10,
		DBMaxIdleConns:     5,
		DBConnMaxLifetime:  30 * time.Minute,
		CacheDriver:        DriverMemory,
		RedisAddr:          "localhost:6379",
		ExternalCacheTTL:   time.Hour,
		FreshnessTTL:       5 * time.Minute,
		SourceTimeout:      15 * time.Second,
		RefreshInterval:    5 * time.Minute,
		EventbriteAPIURL:   "https://www.eventbriteapi.com/v3/events/search",
		EventbriteLocation: "London, UK",
		EventbriteLimit:    20,
		EventbriteRetries:  2,
		EventbriteTimeout:  10 * time.Second,
		ChangeQueueSize:    1024,
		TombstoneSize:      10_000,
	}
}

// Validate checks that the configuration can start a service.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.StoreDriver != DriverMemory && c.StoreDriver != DriverPostgres:
		return invalid("store_driver must be memory or postgres, got %q", c.StoreDriver)
	case c.StoreDriver == DriverPostgres && c.DatabaseDSN == "":
		return invalid("database_dsn is required for the postgres store")
	case c.CacheDriver != DriverMemory && c.CacheDriver != DriverRedis:
		return invalid("cache_driver must be memory or redis, got %q", c.CacheDriver)
	case c.CacheDriver == DriverRedis && c.RedisAddr == "":
		return invalid("redis_addr is required for the redis cache")
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format must be text or json, got %q", c.LogFormat)
	case c.ExternalCacheTTL <= 0:
		return invalid("external_cache_ttl must be positive")
	case c.FreshnessTTL < 0:
		return invalid("freshness_ttl must not be negative")
	case c.SourceTimeout <= 0:
		return invalid("source_timeout must be positive")
	case c.RefreshInterval < 0:
		return invalid("refresh_interval must not be negative")
	case c.EventbriteLimit <= 0:
		return invalid("eventbrite_limit must be positive")
	case c.EventbriteRetries < 0:
		return invalid("eventbrite_retries must not be negative")
	case c.ChangeQueueSize <= 0:
		return invalid("change_queue_size must be positive")
	case c.TombstoneSize < 0:
		return invalid("tombstone_size must not be negative")
	}
	return nil
}
