// Package eventbrite fetches events from the third-party event-search feed.
//
// Requests go through the backend proxy when one is configured and fall back
// to a direct credentialed call. Normalized pages are cached per location and
// limit. Feed failures never surface as errors: the adapter returns an empty
// page and the aggregator keeps its other source.
package eventbrite

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/okian/eventhub/internal/adapters/cache"
	"github.com/okian/eventhub/internal/domain/model"
	"github.com/okian/eventhub/internal/domain/normalize"
	"github.com/okian/eventhub/pkg/logger"
	"github.com/okian/eventhub/pkg/metrics"
)

// Adapter is the external source of the aggregator.
type Adapter struct {
	client   *Client
	cache    *cache.Cache
	location string
	limit    int
	now      func() time.Time
	logger   logger.Logger
}

// NewAdapter creates an adapter around client.
func NewAdapter(client *Client, opts ...Option) *Adapter {
	a := &Adapter{
		client:   client,
		location: DefaultLocation,
		limit:    DefaultLimit,
		now:      time.Now,
		logger:   logger.Get().Named("eventbrite"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.cache == nil {
		a.cache = cache.New(cache.NewMemoryKV())
	}
	return a
}

// Fetch returns up to limit normalized events near location. Empty inputs
// fall back to the adapter defaults. The only error returned is the context
// error once ctx is done.
func (a *Adapter) Fetch(ctx context.Context, location string, limit int) ([]model.Event, error) {
	location, limit = a.resolve(location, limit)
	key := cache.Key(model.SourceEventbrite, location, limit)

	if raw, ok := a.cache.Get(ctx, key); ok {
		var events []model.Event
		if err := json.Unmarshal(raw, &events); err == nil {
			a.logger.Debug(ctx, "using cached events", logger.String("key", key), logger.Int("count", len(events)))
			return events, nil
		}
		a.logger.Warn(ctx, "discarding undecodable cache entry", logger.String("key", key))
	}

	items, err := a.load(ctx, location, limit)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		a.logger.Warn(ctx, "external feed unavailable", logger.String("location", location), logger.Error(err))
		return []model.Event{}, nil
	}

	events := normalize.ExternalEvents(items, location, a.now())
	if len(events) > limit {
		events = events[:limit]
	}

	if raw, err := json.Marshal(events); err == nil {
		if err := a.cache.Set(ctx, key, raw); err != nil {
			a.logger.Warn(ctx, "failed to cache events", logger.String("key", key), logger.Error(err))
		}
	}

	a.logger.Info(ctx, "fetched external events",
		logger.String("location", location),
		logger.Int("received", len(items)),
		logger.Int("kept", len(events)),
	)
	return events, nil
}

// ClearCache invalidates the cached page for location and limit.
func (a *Adapter) ClearCache(ctx context.Context, location string, limit int) error {
	location, limit = a.resolve(location, limit)
	return a.cache.Invalidate(ctx, cache.Key(model.SourceEventbrite, location, limit))
}

func (a *Adapter) resolve(location string, limit int) (string, int) {
	if location == "" {
		location = a.location
	}
	if limit <= 0 {
		limit = a.limit
	}
	return location, limit
}

// load tries the proxy, then the direct call.
func (a *Adapter) load(ctx context.Context, location string, limit int) ([]normalize.ExternalItem, error) {
	if a.client.HasProxy() {
		items, err := a.client.SearchProxy(ctx, location, limit)
		if err == nil {
			metrics.RecordExternalPath("proxy", "ok")
			return items, nil
		}
		metrics.RecordExternalPath("proxy", "error")
		if ctx.Err() != nil {
			return nil, err
		}
		a.logger.Warn(ctx, "proxy failed, falling back to direct call", logger.Error(err))
	}

	items, err := a.client.Search(ctx, location, limit)
	switch {
	case errors.Is(err, ErrNoCredential):
		metrics.RecordExternalPath("direct", "no_credential")
	case err != nil:
		metrics.RecordExternalPath("direct", "error")
	default:
		metrics.RecordExternalPath("direct", "ok")
	}
	return items, err
}
