package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/eventhub/internal/domain/model"
	"github.com/okian/eventhub/pkg/logger"
)

// MemoryStore is an in-process Store. Writes publish a sorted copy of all
// rows so List never blocks on writers, and notify subscribers synchronously
// in write order.
type MemoryStore struct {
	settings

	mu     sync.Mutex // serializes writes and notification fan-out
	rows   map[string]model.Event
	sorted atomic.Pointer[[]model.Event]
	subs   map[uint64]ChangeHandler
	nextID uint64
	closed bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("memstore")
	}
	m := &MemoryStore{
		settings: s,
		rows:     make(map[string]model.Event),
		subs:     make(map[uint64]ChangeHandler),
	}
	m.publish()
	return m
}

// List returns upcoming events from the last published snapshot.
func (m *MemoryStore) List(ctx context.Context) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	today := m.now().UTC().Format(model.DateLayout)
	all := *m.sorted.Load()
	i := sort.Search(len(all), func(i int) bool { return all[i].Date >= today })
	return model.Clone(all[i:]), nil
}

// Insert stores d under a new UUID.
func (m *MemoryStore) Insert(ctx context.Context, d model.Draft) (model.Event, error) {
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}
	e := model.Event{
		ID:          uuid.NewString(),
		Title:       d.Title,
		Description: d.Description,
		ImageURL:    d.ImageURL,
		Date:        d.Date,
		Time:        d.Time,
		Location:    d.Location,
		Price:       d.Price,
		Category:    d.Category,
		HostID:      d.HostID,
		HostName:    d.HostName,
		CreatedAt:   m.now().UTC().Format(time.RFC3339Nano),
	}
	if err := m.write(model.Change{Type: model.ChangeInsert, Record: e}); err != nil {
		return model.Event{}, err
	}
	return e, nil
}

// Update replaces an existing row.
func (m *MemoryStore) Update(ctx context.Context, e model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.write(model.Change{Type: model.ChangeUpdate, Record: e})
}

// Delete removes a row.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.write(model.Change{Type: model.ChangeDelete, Record: model.Event{ID: id}})
}

func (m *MemoryStore) write(c model.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	switch c.Type {
	case model.ChangeInsert:
		m.rows[c.Record.ID] = c.Record
	case model.ChangeUpdate:
		old, ok := m.rows[c.Record.ID]
		if !ok {
			return ErrNotFound
		}
		c.Record.CreatedAt = old.CreatedAt
		m.rows[c.Record.ID] = c.Record
	case model.ChangeDelete:
		old, ok := m.rows[c.Record.ID]
		if !ok {
			return ErrNotFound
		}
		delete(m.rows, c.Record.ID)
		c.Record = old
	}
	m.publish()

	for _, h := range m.subscribers() {
		h(c)
	}
	return nil
}

// subscribers returns handlers in subscription order. Caller holds mu.
func (m *MemoryStore) subscribers() []ChangeHandler {
	ids := make([]uint64, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]ChangeHandler, len(ids))
	for i, id := range ids {
		out[i] = m.subs[id]
	}
	return out
}

// publish rebuilds the sorted snapshot. Caller holds mu (or owns m).
func (m *MemoryStore) publish() {
	all := make([]model.Event, 0, len(m.rows))
	for _, e := range m.rows {
		all = append(all, e)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Date != all[j].Date {
			return all[i].Date < all[j].Date
		}
		if all[i].Time != all[j].Time {
			return all[i].Time < all[j].Time
		}
		return all[i].ID < all[j].ID
	})
	m.sorted.Store(&all)
}

// GetByID returns a row by id.
func (m *MemoryStore) GetByID(ctx context.Context, id string) (model.Event, error) {
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	return e, nil
}

// Subscribe registers onChange. Handlers run on the writer's goroutine and
// must not write to the store.
func (m *MemoryStore) Subscribe(ctx context.Context, onChange ChangeHandler) (func(), error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.nextID++
	id := m.nextID
	m.subs[id] = onChange
	m.mu.Unlock()

	stop := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(stop)
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				unsubscribe()
			case <-stop:
			}
		}()
	}
	return unsubscribe, nil
}

// Close drops all subscribers and rejects further writes.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = map[uint64]ChangeHandler{}
	return nil
}
