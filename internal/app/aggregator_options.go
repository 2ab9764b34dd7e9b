package service

import (
	"time"

	"github.com/okian/eventhub/internal/domain/dedupe"
	"github.com/okian/eventhub/pkg/logger"
)

// Aggregator defaults.
const (
	DefaultFreshnessTTL  = 5 * time.Minute
	DefaultSourceTimeout = 15 * time.Second
	defaultQueueCapacity = 1024
	defaultDrainTimeout  = 5 * time.Second
)

// AggregatorOption applies a configuration option to the Aggregator.
type AggregatorOption func(*Aggregator)

// WithFreshnessTTL sets how long a committed collection skips non-forced refreshes.
func WithFreshnessTTL(ttl time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if ttl >= 0 {
			a.freshness = ttl
		}
	}
}

// WithSourceTimeout bounds each source fetch within a cycle.
func WithSourceTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.sourceTimeout = d
		}
	}
}

// WithExternalQuery sets the location and page size requested from the feed.
// Zero values leave the adapter defaults in place.
func WithExternalQuery(location string, limit int) AggregatorOption {
	return func(a *Aggregator) {
		a.location = location
		a.limit = limit
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithTombstones sets the set used to remember deleted ids.
func WithTombstones(t dedupe.Tombstones) AggregatorOption {
	return func(a *Aggregator) {
		if t != nil {
			a.tombstones = t
		}
	}
}

// WithChangeQueueCapacity sizes the live change queue.
func WithChangeQueueCapacity(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.queueCapacity = n
		}
	}
}

// WithAggregatorLogger sets a custom logger.
func WithAggregatorLogger(l logger.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}
