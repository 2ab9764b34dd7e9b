// Package cache keeps time-stamped copies of external feed pages.
//
// Every entry is two keys: the value and <key>_timestamp holding the write
// time in unix milliseconds. An entry is a hit only while both exist and the
// timestamp is younger than the TTL.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/eventhub/pkg/logger"
	"github.com/okian/eventhub/pkg/metrics"
)

const (
	DefaultTTL = time.Hour

	timestampSuffix = "_timestamp"
)

// Cache adds TTL semantics on top of a KV. Backend failures degrade to misses.
type Cache struct {
	kv     KV
	ttl    time.Duration
	now    func() time.Time
	logger logger.Logger
}

// New creates a cache over kv.
func New(kv KV, opts ...Option) *Cache {
	c := &Cache{
		kv:     kv,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: logger.Get().Named("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds the cache key for a source page.
func Key(source, location string, limit int) string {
	return fmt.Sprintf("%s_events_%s_%d", source, location, limit)
}

// TTL returns the configured freshness window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the value for key if it is present and fresh.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	stamp, err := c.kv.Get(ctx, key+timestampSuffix)
	if err != nil {
		c.miss(ctx, "get", key, err)
		return nil, false
	}
	ms, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		c.logger.Warn(ctx, "corrupt cache timestamp", logger.String("key", key), logger.String("timestamp", stamp))
		metrics.RecordCacheMiss()
		return nil, false
	}
	if age := c.now().Sub(time.UnixMilli(ms)); age >= c.ttl {
		metrics.RecordCacheMiss()
		return nil, false
	}

	value, err := c.kv.Get(ctx, key)
	if err != nil {
		c.miss(ctx, "get", key, err)
		return nil, false
	}
	metrics.RecordCacheHit()
	return []byte(value), true
}

// Set stores value under key and stamps it with the current time.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.kv.Set(ctx, key, string(value)); err != nil {
		metrics.RecordCacheError("set")
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	stamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	if err := c.kv.Set(ctx, key+timestampSuffix, stamp); err != nil {
		metrics.RecordCacheError("set")
		return fmt.Errorf("cache set %s: %w", key+timestampSuffix, err)
	}
	return nil
}

// Invalidate removes the value and its timestamp.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if err := c.kv.Del(ctx, key, key+timestampSuffix); err != nil {
		metrics.RecordCacheError("del")
		return fmt.Errorf("cache invalidate %s: %w", key, err)
	}
	return nil
}

func (c *Cache) miss(ctx context.Context, op, key string, err error) {
	metrics.RecordCacheMiss()
	if errors.Is(err, ErrMiss) {
		return
	}
	metrics.RecordCacheError(op)
	c.logger.Warn(ctx, "cache read failed", logger.String("key", key), logger.Error(err))
}
