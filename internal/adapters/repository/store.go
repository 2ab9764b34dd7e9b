// Package repository is the relational source of first-party events.
package repository

import (
	"context"

	"github.com/okian/eventhub/internal/domain/model"
)

// ChangeHandler receives store notifications in commit order.
type ChangeHandler func(model.Change)

// Store provides read/write access to first-party events.
type Store interface {
	// List returns events dated today or later ordered by date then time.
	List(ctx context.Context) ([]model.Event, error)

	// Insert persists a validated draft. The store assigns id and createdAt.
	Insert(ctx context.Context, d model.Draft) (model.Event, error)

	// GetByID returns ErrNotFound if no event has the id.
	GetByID(ctx context.Context, id string) (model.Event, error)

	// Subscribe delivers insert/update/delete notifications until the
	// returned function is called or ctx is done.
	Subscribe(ctx context.Context, onChange ChangeHandler) (unsubscribe func(), err error)

	Close() error
}

// GapNotifier is implemented by stores whose change stream can silently lose
// notifications, for example across a reconnect. fn is called after such a gap;
// a nil fn clears the hook.
type GapNotifier interface {
	OnGap(fn func())
}
