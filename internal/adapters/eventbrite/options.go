package eventbrite

import (
	"time"

	"github.com/okian/eventhub/internal/adapters/cache"
	"github.com/okian/eventhub/pkg/logger"
)

// Option applies a configuration option to the Adapter.
type Option func(*Adapter)

// WithCache sets the cache used for normalized pages.
func WithCache(c *cache.Cache) Option {
	return func(a *Adapter) {
		if c != nil {
			a.cache = c
		}
	}
}

// WithDefaults sets the location and limit used when a caller passes none.
func WithDefaults(location string, limit int) Option {
	return func(a *Adapter) {
		if location != "" {
			a.location = location
		}
		if limit > 0 {
			a.limit = limit
		}
	}
}

// WithClock replaces the time source stamped into normalized events.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}
