// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/okian/eventhub/internal/adapters/cache"
	"github.com/okian/eventhub/internal/adapters/eventbrite"
	"github.com/okian/eventhub/internal/adapters/repository"
	"github.com/okian/eventhub/internal/config"
	"github.com/okian/eventhub/internal/domain/dedupe"
	"github.com/okian/eventhub/internal/domain/model"
	"github.com/okian/eventhub/internal/domain/normalize"
	"github.com/okian/eventhub/internal/domain/types"
	"github.com/okian/eventhub/pkg/logger"
)

// Service wires the sources, cache and aggregator from configuration and
// owns their lifecycle.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components. Injected ones are used as-is; missing ones are
	// built from cfg on Start.
	store      repository.Store
	external   ExternalSource
	client     *eventbrite.Client
	kv         cache.KV
	aggregator *Aggregator

	now func() time.Time

	// State
	started bool
	stopCh  chan struct{}
	loops   sync.WaitGroup
	closers []io.Closer

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration used to build missing components.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore injects the relational store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithExternalSource injects the external feed adapter.
func WithExternalSource(src ExternalSource) Option {
	return func(s *Service) {
		s.external = src
	}
}

// WithEventbriteClient injects the provider client used by the adapter and the proxy.
func WithEventbriteClient(c *eventbrite.Client) Option {
	return func(s *Service) {
		s.client = c
	}
}

// WithCacheKV injects the key-value backend of the external feed cache.
func WithCacheKV(kv cache.KV) Option {
	return func(s *Service) {
		s.kv = kv
	}
}

// WithServiceClock replaces the time source of every component built by the service.
func WithServiceClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:    config.New(context.Background()),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds missing components, runs the first refresh cycle, connects
// live updates and starts the background refresh loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting event service...",
		logger.String("store", s.cfg.StoreDriver),
		logger.String("cache", s.cfg.CacheDriver),
	)

	if err := s.buildStore(ctx); err != nil {
		s.closeAll(ctx)
		return err
	}
	if err := s.buildExternal(ctx); err != nil {
		s.closeAll(ctx)
		return err
	}

	s.aggregator = NewAggregator(s.store, s.external,
		WithFreshnessTTL(s.cfg.FreshnessTTL),
		WithSourceTimeout(s.cfg.SourceTimeout),
		WithExternalQuery(s.cfg.EventbriteLocation, s.cfg.EventbriteLimit),
		WithChangeQueueCapacity(s.cfg.ChangeQueueSize),
		WithTombstones(dedupe.NewInMemoryTombstones(dedupe.WithMaxSize(s.cfg.TombstoneSize))),
		WithClock(s.now),
		WithAggregatorLogger(s.logger.Named("aggregator")),
	)

	if err := s.aggregator.FetchEvents(ctx, false); err != nil {
		s.logger.Warn(ctx, "initial refresh failed", logger.Error(err))
	}
	if err := s.aggregator.Connect(ctx); err != nil {
		s.closeAll(ctx)
		return fmt.Errorf("connect live updates: %w", err)
	}

	s.stopCh = make(chan struct{})
	if s.cfg.RefreshInterval > 0 {
		s.loops.Add(1)
		go s.refreshLoop(context.WithoutCancel(ctx), s.cfg.RefreshInterval)
	}

	s.started = true
	s.logger.Info(ctx, "event service started",
		logger.Int("events", len(s.aggregator.Events())),
		logger.Duration("refreshInterval", s.cfg.RefreshInterval),
	)
	return nil
}

func (s *Service) buildStore(ctx context.Context) error {
	if s.store != nil {
		return nil
	}
	switch s.cfg.StoreDriver {
	case config.DriverPostgres:
		pg, err := repository.OpenPostgres(ctx, s.cfg.DatabaseDSN,
			repository.WithPool(s.cfg.DBMaxOpenConns, s.cfg.DBMaxIdleConns, s.cfg.DBConnMaxLifetime),
			repository.WithLogger(s.logger.Named("postgres")),
			repository.WithClock(s.now),
		)
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		s.store = pg
	default:
		s.store = repository.NewMemoryStore(
			repository.WithLogger(s.logger.Named("memory-store")),
			repository.WithClock(s.now),
		)
	}
	s.closers = append(s.closers, s.store)
	return nil
}

func (s *Service) buildExternal(ctx context.Context) error {
	if s.client == nil {
		s.client = eventbrite.NewClient(
			eventbrite.WithAPIURL(s.cfg.EventbriteAPIURL),
			eventbrite.WithProxyURL(s.cfg.EventbriteProxyURL),
			eventbrite.WithToken(s.cfg.EventbriteToken),
			eventbrite.WithRetries(s.cfg.EventbriteRetries),
			eventbrite.WithTimeout(s.cfg.EventbriteTimeout),
		)
	}
	if s.external != nil {
		return nil
	}

	if s.kv == nil {
		switch s.cfg.CacheDriver {
		case config.DriverRedis:
			rkv, err := cache.DialRedis(ctx, s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB)
			if err != nil {
				return fmt.Errorf("dial redis cache: %w", err)
			}
			s.kv = rkv
			s.closers = append(s.closers, rkv)
		default:
			s.kv = cache.NewMemoryKV()
		}
	}

	c := cache.New(s.kv,
		cache.WithTTL(s.cfg.ExternalCacheTTL),
		cache.WithClock(s.now),
		cache.WithLogger(s.logger.Named("cache")),
	)
	s.external = eventbrite.NewAdapter(s.client,
		eventbrite.WithCache(c),
		eventbrite.WithDefaults(s.cfg.EventbriteLocation, s.cfg.EventbriteLimit),
		eventbrite.WithClock(s.now),
		eventbrite.WithLogger(s.logger.Named("eventbrite")),
	)
	return nil
}

// refreshLoop runs non-forced cycles; the freshness gate decides whether
// anything is fetched.
func (s *Service) refreshLoop(ctx context.Context, every time.Duration) {
	defer s.loops.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.aggregator.FetchEvents(ctx, false); err != nil {
				s.logger.Warn(ctx, "background refresh failed", logger.Error(err))
			}
		}
	}
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping event service...")

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.loops.Wait()

	s.aggregator.Disconnect()
	s.closeAll(ctx)

	s.started = false
	s.logger.Info(ctx, "event service stopped")
}

func (s *Service) closeAll(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.logger.Warn(ctx, "close failed", logger.Error(err))
		}
	}
	s.closers = nil
}

// Aggregator returns the running aggregator, or nil before Start.
func (s *Service) Aggregator() *Aggregator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aggregator
}

func (s *Service) agg() (*Aggregator, error) {
	a := s.Aggregator()
	if a == nil {
		return nil, ErrNotStarted
	}
	return a, nil
}

// FilteredEvents returns the filtered view with its selected category.
func (s *Service) FilteredEvents(_ context.Context) (types.EventList, error) {
	a, err := s.agg()
	if err != nil {
		return types.EventList{}, err
	}
	return a.FilteredList(), nil
}

// AllEvents returns the full canonical collection.
func (s *Service) AllEvents(_ context.Context) (types.EventList, error) {
	a, err := s.agg()
	if err != nil {
		return types.EventList{}, err
	}
	return a.AllList(), nil
}

// SelectCategory changes the filter and returns the new view.
func (s *Service) SelectCategory(_ context.Context, c model.Category) (types.EventList, error) {
	a, err := s.agg()
	if err != nil {
		return types.EventList{}, err
	}
	a.FilterByCategory(c)
	return a.FilteredList(), nil
}

// CreateEvent submits a draft to the relational store.
func (s *Service) CreateEvent(ctx context.Context, d model.Draft) (string, error) {
	a, err := s.agg()
	if err != nil {
		return "", err
	}
	return a.CreateEvent(ctx, d)
}

// GetEvent resolves a single event by id.
func (s *Service) GetEvent(ctx context.Context, id string) (model.Event, error) {
	a, err := s.agg()
	if err != nil {
		return model.Event{}, err
	}
	return a.GetEventByID(ctx, id)
}

// Refresh runs a refresh cycle and returns the resulting status.
func (s *Service) Refresh(ctx context.Context, force bool) (types.Snapshot, error) {
	a, err := s.agg()
	if err != nil {
		return types.Snapshot{}, err
	}
	err = a.FetchEvents(ctx, force)
	return a.Snapshot(), err
}

// RefreshExternal drops the cached feed page and runs a forced cycle.
func (s *Service) RefreshExternal(ctx context.Context) (types.Snapshot, error) {
	a, err := s.agg()
	if err != nil {
		return types.Snapshot{}, err
	}
	err = a.RefreshExternalEvents(ctx)
	return a.Snapshot(), err
}

// Status returns the aggregate status fields.
func (s *Service) Status(_ context.Context) (types.Snapshot, error) {
	a, err := s.agg()
	if err != nil {
		return types.Snapshot{}, err
	}
	return a.Snapshot(), nil
}

// ProxySearch calls the provider with the server-held credential. It backs
// the proxy endpoint used by clients without a token.
func (s *Service) ProxySearch(ctx context.Context, location string, limit int) ([]normalize.ExternalItem, error) {
	s.mu.RLock()
	client := s.client
	s.mu.RUnlock()
	if client == nil {
		return nil, ErrNotStarted
	}
	if location == "" {
		location = s.cfg.EventbriteLocation
	}
	if limit <= 0 {
		limit = s.cfg.EventbriteLimit
	}
	return client.Search(ctx, location, limit)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":      s.started,
		"storeDriver":  s.cfg.StoreDriver,
		"cacheDriver":  s.cfg.CacheDriver,
		"freshnessTTL": s.cfg.FreshnessTTL.String(),
	}

	if s.started {
		snap := s.aggregator.Snapshot()
		stats["events"] = snap.EventCount
		stats["filteredEvents"] = snap.FilteredCount
		stats["selectedCategory"] = snap.SelectedCategory
		stats["connected"] = s.aggregator.Connected()
		stats["queuedChanges"] = s.aggregator.QueuedChanges()
		if snap.LastFetched != nil {
			stats["lastFetched"] = snap.LastFetched.Format(time.RFC3339)
		}
		for name, st := range snap.Sources {
			stats[name+"Error"] = st.Err()
		}
	}
	if s.client != nil {
		stats["eventbriteToken"] = s.client.HasToken()
		stats["eventbriteProxy"] = s.client.HasProxy()
	}
	// only the in-memory store can count its keys
	if kv, ok := s.kv.(interface{ Len() int }); ok {
		stats["cacheKeys"] = kv.Len()
	}

	return stats
}
