package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/okian/eventhub/internal/domain/model"
	"github.com/okian/eventhub/internal/domain/normalize"
	"github.com/okian/eventhub/pkg/logger"
)

// ChangeChannel is the LISTEN/NOTIFY channel the events trigger publishes on.
const ChangeChannel = "events_changes"

// maxNotifyBytes keeps payloads under the server's 8000 byte NOTIFY limit.
const maxNotifyBytes = 7900

var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

	`CREATE TABLE IF NOT EXISTS events (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image_url   TEXT,
		date        DATE NOT NULL,
		time        TIME NOT NULL,
		location    JSONB NOT NULL DEFAULT '{}'::jsonb,
		price       NUMERIC(10, 2) NOT NULL DEFAULT 0 CHECK (price >= -1),
		category    TEXT NOT NULL,
		host_id     TEXT NOT NULL,
		host_name   TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_events_date_time ON events(date, time)`,
	`CREATE INDEX IF NOT EXISTS idx_events_category ON events(category)`,
	`CREATE INDEX IF NOT EXISTS idx_events_host_id ON events(host_id)`,

	fmt.Sprintf(`CREATE OR REPLACE FUNCTION notify_events_change() RETURNS trigger AS $$
	DECLARE
		rec events;
		payload TEXT;
	BEGIN
		IF TG_OP = 'DELETE' THEN
			rec := OLD;
		ELSE
			rec := NEW;
		END IF;
		payload := json_build_object('type', lower(TG_OP), 'record', row_to_json(rec))::text;
		IF octet_length(payload) > %d THEN
			payload := json_build_object('type', lower(TG_OP), 'record', json_build_object('id', rec.id), 'partial', true)::text;
		END IF;
		PERFORM pg_notify('%s', payload);
		RETURN rec;
	END;
	$$ LANGUAGE plpgsql`, maxNotifyBytes, ChangeChannel),

	`DROP TRIGGER IF EXISTS events_change_notify ON events`,
	`CREATE TRIGGER events_change_notify
		AFTER INSERT OR UPDATE OR DELETE ON events
		FOR EACH ROW EXECUTE FUNCTION notify_events_change()`,
}

const selectColumns = `id::text, title, description, image_url,
	to_char(date, 'YYYY-MM-DD'), to_char(time, 'HH24:MI'),
	location, price::float8, category, host_id, host_name, created_at`

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	dsn string
	settings

	mu        sync.Mutex
	listeners map[*pq.Listener]struct{}
	closed    bool
	onGap     func()
}

// OpenPostgres connects to dsn, verifies the connection and runs migrations.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("postgres")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(s.maxOpenConns)
	db.SetMaxIdleConns(s.maxIdleConns)
	db.SetConnMaxLifetime(s.connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{
		db:        db,
		dsn:       dsn,
		settings:  s,
		listeners: make(map[*pq.Listener]struct{}),
	}
	if err := store.RunMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info(ctx, "connected to PostgreSQL")
	return store, nil
}

// RunMigrations creates the events table, its indexes and the change trigger.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// List returns upcoming events.
func (s *PostgresStore) List(ctx context.Context) ([]model.Event, error) {
	today := s.now().UTC().Format(model.DateLayout)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM events WHERE date >= $1 ORDER BY date ASC, time ASC`, today)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Insert persists d and returns the stored row.
func (s *PostgresStore) Insert(ctx context.Context, d model.Draft) (model.Event, error) {
	loc, err := json.Marshal(d.Location)
	if err != nil {
		return model.Event{}, fmt.Errorf("encode location: %w", err)
	}
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO events (title, description, image_url, date, time, location, price, category, host_id, host_name)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+selectColumns,
		d.Title, d.Description, nullable(d.ImageURL), d.Date, d.Time, loc, d.Price, string(d.Category), d.HostID, d.HostName)

	e, err := scanEvent(row)
	if err != nil {
		return model.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return e, nil
}

// GetByID fetches a single event.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (model.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM events WHERE id::text = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

// Subscribe listens on ChangeChannel with a dedicated connection.
func (s *PostgresStore) Subscribe(ctx context.Context, onChange ChangeHandler) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.mu.Unlock()

	listener := pq.NewListener(s.dsn, s.minReconnect, s.maxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			s.logger.Warn(ctx, "change listener disconnected", logger.Error(err))
		case pq.ListenerEventReconnected:
			s.logger.Info(ctx, "change listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			s.logger.Warn(ctx, "change listener reconnect failed", logger.Error(err))
		}
	})
	if err := listener.Listen(ChangeChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", ChangeChannel, err)
	}

	s.mu.Lock()
	s.listeners[listener] = struct{}{}
	s.mu.Unlock()

	done := make(chan struct{})
	go s.pump(ctx, listener, onChange, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			s.release(listener)
		})
	}, nil
}

func (s *PostgresStore) pump(ctx context.Context, l *pq.Listener, onChange ChangeHandler, done <-chan struct{}) {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			s.release(l)
			return
		case <-done:
			return
		case <-ping.C:
			go func() { _ = l.Ping() }()
		case n, ok := <-l.Notify:
			if !ok {
				return
			}
			if n == nil {
				// reconnected; notifications sent while down are lost
				s.logger.Warn(ctx, "change listener resumed, notifications may have been missed")
				s.gap()
				continue
			}
			s.dispatch(ctx, n.Extra, onChange)
		}
	}
}

// OnGap registers fn to run when the change listener reconnects.
func (s *PostgresStore) OnGap(fn func()) {
	s.mu.Lock()
	s.onGap = fn
	s.mu.Unlock()
}

func (s *PostgresStore) gap() {
	s.mu.Lock()
	fn := s.onGap
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *PostgresStore) dispatch(ctx context.Context, payload string, onChange ChangeHandler) {
	c, partial, err := DecodeNotification(payload)
	if err != nil {
		s.logger.Warn(ctx, "dropping change notification", logger.Error(err))
		return
	}
	if partial && c.Type != model.ChangeDelete {
		full, err := s.GetByID(ctx, c.Record.ID)
		if err != nil {
			s.logger.Warn(ctx, "failed to load oversized change", logger.String("id", c.Record.ID), logger.Error(err))
			return
		}
		c.Record = full
	}
	onChange(c)
}

func (s *PostgresStore) release(l *pq.Listener) {
	s.mu.Lock()
	_, ok := s.listeners[l]
	delete(s.listeners, l)
	s.mu.Unlock()
	if ok {
		_ = l.Close()
	}
}

// Close stops all listeners and closes the pool.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listeners := make([]*pq.Listener, 0, len(s.listeners))
	for l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listeners = map[*pq.Listener]struct{}{}
	s.mu.Unlock()

	for _, l := range listeners {
		_ = l.Close()
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (model.Event, error) {
	var (
		row       normalize.Row
		imageURL  sql.NullString
		location  []byte
		price     float64
		createdAt time.Time
	)
	if err := r.Scan(&row.ID, &row.Title, &row.Description, &imageURL, &row.Date, &row.Time,
		&location, &price, &row.Category, &row.HostID, &row.HostName, &createdAt); err != nil {
		return model.Event{}, err
	}
	if len(location) > 0 {
		if err := json.Unmarshal(location, &row.Location); err != nil {
			return model.Event{}, fmt.Errorf("decode location: %w", err)
		}
	}
	row.ImageURL = imageURL.String
	row.Price = normalize.NewNumeric(price)
	row.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	return normalize.RowEvent(row), nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
