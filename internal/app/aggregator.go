package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/eventhub/internal/adapters/mq/queue"
	"github.com/okian/eventhub/internal/adapters/mq/worker"
	"github.com/okian/eventhub/internal/adapters/repository"
	"github.com/okian/eventhub/internal/domain/dedupe"
	"github.com/okian/eventhub/internal/domain/model"
	"github.com/okian/eventhub/internal/domain/reconcile"
	"github.com/okian/eventhub/internal/domain/types"
	"github.com/okian/eventhub/pkg/logger"
	"github.com/okian/eventhub/pkg/metrics"
)

// RelationalSource is the first-party store as seen by the aggregator.
type RelationalSource interface {
	List(ctx context.Context) ([]model.Event, error)
	Insert(ctx context.Context, d model.Draft) (model.Event, error)
	GetByID(ctx context.Context, id string) (model.Event, error)
	Subscribe(ctx context.Context, onChange repository.ChangeHandler) (func(), error)
}

// ExternalSource is the third-party feed as seen by the aggregator.
type ExternalSource interface {
	Fetch(ctx context.Context, location string, limit int) ([]model.Event, error)
	ClearCache(ctx context.Context, location string, limit int) error
}

// Aggregator owns the canonical event collection. It merges both sources in
// refresh cycles and patches the collection from live store changes.
type Aggregator struct {
	relational RelationalSource
	external   ExternalSource

	location      string
	limit         int
	freshness     time.Duration
	sourceTimeout time.Duration
	queueCapacity int
	now           func() time.Time
	tombstones    dedupe.Tombstones
	logger        logger.Logger

	group   singleflight.Group
	cycleMu sync.Mutex // one cycle at a time

	mu          sync.RWMutex
	events      []model.Event
	filtered    []model.Event
	category    model.Category
	sources     map[string]model.SourceStatus
	loading     bool
	errMsg      *string
	lastFetched *time.Time
	inCycle     bool
	journal     []model.Change // changes applied while a cycle is in flight

	liveMu      sync.Mutex
	unsubscribe func()
	changes     *queue.InMemoryQueue
	worker      *worker.InMemoryWorker
	stopLive    context.CancelFunc
	resyncing   atomic.Bool
}

// NewAggregator creates an aggregator with empty state and category "all".
func NewAggregator(relational RelationalSource, external ExternalSource, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		relational:    relational,
		external:      external,
		freshness:     DefaultFreshnessTTL,
		sourceTimeout: DefaultSourceTimeout,
		queueCapacity: defaultQueueCapacity,
		now:           time.Now,
		logger:        logger.Get().Named("aggregator"),
		events:        []model.Event{},
		filtered:      []model.Event{},
		category:      model.CategoryAll,
		sources: map[string]model.SourceStatus{
			model.SourceSupabase:   model.Settled(),
			model.SourceEventbrite: model.Settled(),
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.tombstones == nil {
		a.tombstones = dedupe.NewInMemoryTombstones()
	}
	return a
}

// FetchEvents runs a refresh cycle. Without force the cycle is skipped while
// the last commit is younger than the freshness TTL, and concurrent callers
// share one cycle. Source failures are reported through Sources, never here;
// the only error is ErrAggregation when merging or committing fails. A cycle
// runs to completion even if ctx is cancelled; a caller going away must not
// commit an empty collection.
func (a *Aggregator) FetchEvents(ctx context.Context, force bool) error {
	if force {
		return a.cycle(context.WithoutCancel(ctx), true)
	}
	if a.fresh() {
		metrics.RecordAggregationCycle("fresh")
		return nil
	}
	_, err, _ := a.group.Do("fetch", func() (any, error) {
		return nil, a.cycle(context.WithoutCancel(ctx), false)
	})
	return err
}

func (a *Aggregator) fresh() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastFetched != nil && a.now().Sub(*a.lastFetched) < a.freshness
}

type sourceResult struct {
	events []model.Event
	err    error
}

func (a *Aggregator) cycle(ctx context.Context, force bool) error {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	// another caller may have committed while we waited
	if !force && a.fresh() {
		metrics.RecordAggregationCycle("fresh")
		return nil
	}

	start := a.now()
	a.mu.Lock()
	a.loading = true
	a.errMsg = nil
	a.sources[model.SourceSupabase] = model.Loading()
	a.sources[model.SourceEventbrite] = model.Loading()
	a.inCycle = true
	a.journal = nil
	a.mu.Unlock()

	var (
		wg       sync.WaitGroup
		rel, ext sourceResult
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		rel = a.runSource(ctx, model.SourceSupabase, a.relational.List)
	}()
	go func() {
		defer wg.Done()
		ext = a.runSource(ctx, model.SourceEventbrite, func(ctx context.Context) ([]model.Event, error) {
			return a.external.Fetch(ctx, a.location, a.limit)
		})
	}()
	wg.Wait()

	if err := a.commit(ctx, start, rel, ext); err != nil {
		metrics.RecordAggregationCycle("failed")
		return err
	}
	metrics.RecordAggregationCycle("committed")
	return nil
}

// runSource fetches one source under its own timeout. Panics become a
// source failure.
func (a *Aggregator) runSource(ctx context.Context, name string, fetch func(context.Context) ([]model.Event, error)) (res sourceResult) {
	ctx, cancel := context.WithTimeout(ctx, a.sourceTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = sourceResult{err: fmt.Errorf("source %s panicked: %v", name, r)}
		}
		result := "ok"
		if res.err != nil {
			result = "error"
			a.logger.Warn(ctx, "source fetch failed", logger.String("source", name), logger.Error(res.err))
		}
		metrics.RecordSourceFetch(name, result, float64(time.Since(start).Milliseconds()))
	}()

	events, err := fetch(ctx)
	if err != nil {
		return sourceResult{err: err}
	}
	return sourceResult{events: events}
}

// commit merges the settled results and replaces the collection in one step.
func (a *Aggregator) commit(ctx context.Context, start time.Time, rel, ext sourceResult) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.inCycle = false
	journal := a.journal
	a.journal = nil

	a.sources[model.SourceSupabase] = statusOf(rel.err)
	a.sources[model.SourceEventbrite] = statusOf(ext.err)
	a.loading = false

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error(ctx, "aggregation commit failed", logger.Any("panic", r))
			msg := MsgLoadEvents
			a.errMsg = &msg
			a.sources[model.SourceSupabase] = model.Failed(MsgGeneralFetch)
			a.sources[model.SourceEventbrite] = model.Failed(MsgGeneralFetch)
			err = fmt.Errorf("%w: %v", ErrAggregation, r)
		}
	}()

	merged := a.merge(ctx, rel.events, ext.events, journal)
	filtered := model.FilterByCategory(merged, a.category)

	a.events = merged
	a.filtered = filtered
	a.lastFetched = &start
	metrics.UpdateCollectionSize(len(merged), len(filtered))

	a.logger.Info(ctx, "events committed",
		logger.Int("total", len(merged)),
		logger.Int(model.SourceSupabase, len(rel.events)),
		logger.Int(model.SourceEventbrite, len(ext.events)),
		logger.Int("replayed", len(journal)),
	)
	return nil
}

// merge concatenates relational then external results, drops deleted ids and
// replays changes that arrived while the cycle was in flight. Caller holds mu.
func (a *Aggregator) merge(ctx context.Context, rel, ext []model.Event, journal []model.Change) []model.Event {
	merged := make([]model.Event, 0, len(rel)+len(ext))
	seen := make(map[string]struct{}, len(rel)+len(ext))
	for _, batch := range [][]model.Event{rel, ext} {
		for _, e := range batch {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			if a.tombstones.Buried(ctx, e.ID) {
				continue
			}
			seen[e.ID] = struct{}{}
			merged = append(merged, e)
		}
	}
	for _, c := range journal {
		merged, _ = reconcile.Apply(merged, c)
	}
	return merged
}

func statusOf(err error) model.SourceStatus {
	switch {
	case err == nil:
		return model.Settled()
	case errors.Is(err, context.DeadlineExceeded):
		return model.Failed(MsgSourceTimeout)
	default:
		return model.Failed(err.Error())
	}
}

// FilterByCategory selects a category and recomputes the filtered view.
func (a *Aggregator) FilterByCategory(c model.Category) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.category = c
	a.filtered = model.FilterByCategory(a.events, c)
	metrics.UpdateCollectionSize(len(a.events), len(a.filtered))
}

// CreateEvent validates d, inserts it and appends the stored record to the
// collection. On store failure the collection is left untouched and a
// *UserError is returned.
func (a *Aggregator) CreateEvent(ctx context.Context, d model.Draft) (string, error) {
	if err := d.Validate(); err != nil {
		metrics.RecordEventCreated("invalid")
		return "", err
	}

	a.mu.Lock()
	a.loading = true
	a.errMsg = nil
	a.mu.Unlock()

	e, err := a.relational.Insert(ctx, d)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.loading = false
	if err != nil {
		metrics.RecordEventCreated("error")
		a.logger.Error(ctx, "create event failed", logger.Error(err))
		msg := MsgCreateEvent
		a.errMsg = &msg
		return "", userError(MsgCreateEvent, ErrCreateEvent, err)
	}

	a.applyLocked(ctx, model.Change{Type: model.ChangeInsert, Record: e})
	metrics.RecordEventCreated("ok")
	return e.ID, nil
}

// GetEventByID serves external ids from memory and relational ids from the store.
func (a *Aggregator) GetEventByID(ctx context.Context, id string) (model.Event, error) {
	if model.IsExternalID(id) {
		a.mu.RLock()
		defer a.mu.RUnlock()
		for _, e := range a.events {
			if e.ID == id {
				return e, nil
			}
		}
		return model.Event{}, ErrNotFound
	}

	e, err := a.relational.GetByID(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return model.Event{}, ErrNotFound
	case err != nil:
		a.logger.Error(ctx, "get event failed", logger.String("id", id), logger.Error(err))
		return model.Event{}, userError(MsgLoadEvent, ErrLoadEvent, err)
	}
	return e, nil
}

// RefreshExternalEvents drops the cached feed page and runs a forced cycle.
func (a *Aggregator) RefreshExternalEvents(ctx context.Context) error {
	a.mu.Lock()
	a.loading = true
	a.errMsg = nil
	a.sources[model.SourceEventbrite] = model.Loading()
	a.mu.Unlock()

	if err := a.external.ClearCache(ctx, a.location, a.limit); err != nil {
		a.logger.Error(ctx, "refresh external events failed", logger.Error(err))
		a.mu.Lock()
		msg := MsgRefreshExternal
		a.errMsg = &msg
		a.loading = false
		a.sources[model.SourceEventbrite] = model.Failed(MsgRefreshFailed)
		a.mu.Unlock()
		return userError(MsgRefreshExternal, ErrRefreshExternal, err)
	}
	return a.FetchEvents(ctx, true)
}

// ApplyChange applies a live store change. Inserts and updates of deleted ids
// are ignored.
func (a *Aggregator) ApplyChange(ctx context.Context, c model.Change) (bool, error) {
	if !c.Type.Valid() {
		metrics.RecordChange(string(c.Type), "ignored")
		return false, fmt.Errorf("unknown change type %q", c.Type)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applyLocked(ctx, c), nil
}

// applyLocked is the single mutation path for changes. Caller holds mu.
func (a *Aggregator) applyLocked(ctx context.Context, c model.Change) bool {
	id := c.Record.ID
	if c.Type == model.ChangeDelete {
		a.tombstones.Bury(ctx, id)
	} else if a.tombstones.Buried(ctx, id) {
		metrics.RecordChange(string(c.Type), "buried")
		return false
	}

	if a.inCycle {
		a.journal = append(a.journal, c)
	}

	events, changed := reconcile.Apply(a.events, c)
	if !changed {
		metrics.RecordChange(string(c.Type), "ignored")
		return false
	}
	a.events = events
	a.filtered = model.FilterByCategory(events, a.category)
	metrics.RecordChange(string(c.Type), "applied")
	metrics.UpdateCollectionSize(len(a.events), len(a.filtered))
	return true
}

// Connect subscribes to live store changes. Changes flow through a bounded
// queue to a single worker so they apply in commit order. Calling Connect
// on a connected aggregator is a no-op.
func (a *Aggregator) Connect(ctx context.Context) error {
	a.liveMu.Lock()
	defer a.liveMu.Unlock()
	if a.unsubscribe != nil {
		return nil
	}

	liveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	changes := queue.NewInMemoryQueue(queue.WithCapacity(a.queueCapacity))
	w := worker.NewInMemoryWorker(changes, a, worker.WithLogger(a.logger.Named("live")))

	unsubscribe, err := a.relational.Subscribe(liveCtx, func(c model.Change) {
		err := changes.Enqueue(liveCtx, c)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrFull):
			a.logger.Warn(liveCtx, "change dropped, scheduling resync",
				logger.String("type", string(c.Type)),
				logger.String("id", c.Record.ID),
				logger.Error(err),
			)
			a.resync(liveCtx)
		default:
			// closed while disconnecting
			a.logger.Debug(liveCtx, "change discarded",
				logger.String("type", string(c.Type)),
				logger.String("id", c.Record.ID),
				logger.Error(err),
			)
		}
	})
	if err != nil {
		cancel()
		_ = changes.Close()
		return fmt.Errorf("subscribe to changes: %w", err)
	}
	// the store may lose notifications across a reconnect
	if g, ok := a.relational.(repository.GapNotifier); ok {
		g.OnGap(func() {
			a.logger.Warn(liveCtx, "change stream gap, scheduling resync")
			a.resync(liveCtx)
		})
	}

	go w.Run(liveCtx)
	a.unsubscribe = unsubscribe
	a.changes = changes
	a.worker = w
	a.stopLive = cancel
	a.logger.Info(ctx, "live updates connected")
	return nil
}

// resync runs one forced cycle in the background after a change was lost.
func (a *Aggregator) resync(ctx context.Context) {
	if !a.resyncing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer a.resyncing.Store(false)
		if err := a.FetchEvents(ctx, true); err != nil {
			a.logger.Error(ctx, "resync failed", logger.Error(err))
		}
	}()
}

// Disconnect unsubscribes, drains queued changes and stops the worker.
func (a *Aggregator) Disconnect() {
	a.liveMu.Lock()
	defer a.liveMu.Unlock()
	if a.unsubscribe == nil {
		return
	}

	if g, ok := a.relational.(repository.GapNotifier); ok {
		g.OnGap(nil)
	}
	a.unsubscribe()
	_ = a.changes.Close()
	select {
	case <-a.worker.Done():
	case <-time.After(defaultDrainTimeout):
		a.logger.Warn(context.Background(), "change worker did not drain in time")
	}
	a.stopLive()

	a.unsubscribe = nil
	a.changes = nil
	a.worker = nil
	a.stopLive = nil
	a.logger.Info(context.Background(), "live updates disconnected")
}

// Connected reports whether live updates are active.
func (a *Aggregator) Connected() bool {
	a.liveMu.Lock()
	defer a.liveMu.Unlock()
	return a.unsubscribe != nil
}

// QueuedChanges returns the number of changes waiting to be applied.
func (a *Aggregator) QueuedChanges() int {
	a.liveMu.Lock()
	defer a.liveMu.Unlock()
	if a.changes == nil {
		return 0
	}
	return a.changes.Len(context.Background())
}

// Events returns a copy of the canonical collection.
func (a *Aggregator) Events() []model.Event {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return model.Clone(a.events)
}

// FilteredEvents returns a copy of the filtered view.
func (a *Aggregator) FilteredEvents() []model.Event {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return model.Clone(a.filtered)
}

// SelectedCategory returns the current filter.
func (a *Aggregator) SelectedCategory() model.Category {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.category
}

// Sources returns a copy of the per-source status record.
func (a *Aggregator) Sources() map[string]model.SourceStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]model.SourceStatus, len(a.sources))
	for k, v := range a.sources {
		out[k] = v
	}
	return out
}

// IsLoading reports whether a cycle or create is in flight.
func (a *Aggregator) IsLoading() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loading
}

// Err returns the global error message, or "" when there is none.
func (a *Aggregator) Err() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.errMsg == nil {
		return ""
	}
	return *a.errMsg
}

// LastFetched returns the start time of the last committed cycle.
func (a *Aggregator) LastFetched() (time.Time, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastFetched == nil {
		return time.Time{}, false
	}
	return *a.lastFetched, true
}

// FilteredList returns the filtered view with its category in one read.
func (a *Aggregator) FilteredList() types.EventList {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return types.NewEventList(a.category, model.Clone(a.filtered))
}

// AllList returns the full collection in one read.
func (a *Aggregator) AllList() types.EventList {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return types.NewEventList(model.CategoryAll, model.Clone(a.events))
}

// Snapshot returns a consistent copy of the status fields.
func (a *Aggregator) Snapshot() types.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := types.Snapshot{
		Sources:          make(map[string]model.SourceStatus, len(a.sources)),
		SelectedCategory: a.category,
		IsLoading:        a.loading,
		EventCount:       len(a.events),
		FilteredCount:    len(a.filtered),
	}
	for k, v := range a.sources {
		s.Sources[k] = v
	}
	if a.errMsg != nil {
		msg := *a.errMsg
		s.Error = &msg
	}
	if a.lastFetched != nil {
		t := *a.lastFetched
		s.LastFetched = &t
	}
	return s
}
