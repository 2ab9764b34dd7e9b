package repository

import (
	"time"

	"github.com/okian/eventhub/pkg/logger"
)

type settings struct {
	now             func() time.Time
	logger          logger.Logger
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	minReconnect    time.Duration
	maxReconnect    time.Duration
}

func defaultSettings() settings {
	return settings{
		now:             time.Now,
		maxOpenConns:    10,
		maxIdleConns:    5,
		connMaxLifetime: 30 * time.Minute,
		minReconnect:    time.Second,
		maxReconnect:    time.Minute,
	}
}

// Option applies a configuration option to a store.
type Option func(*settings)

// WithClock replaces the time source used for "today" and createdAt.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPool sizes the database connection pool.
func WithPool(maxOpen, maxIdle int, maxLifetime time.Duration) Option {
	return func(s *settings) {
		if maxOpen > 0 {
			s.maxOpenConns = maxOpen
		}
		if maxIdle > 0 {
			s.maxIdleConns = maxIdle
		}
		if maxLifetime > 0 {
			s.connMaxLifetime = maxLifetime
		}
	}
}

// WithReconnect bounds the change listener's reconnect backoff.
func WithReconnect(minInterval, maxInterval time.Duration) Option {
	return func(s *settings) {
		if minInterval > 0 {
			s.minReconnect = minInterval
		}
		if maxInterval >= s.minReconnect {
			s.maxReconnect = maxInterval
		}
	}
}
