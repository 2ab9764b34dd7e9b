// Package worker applies queued change notifications to the aggregate state.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/eventhub/internal/adapters/mq/queue"
	"github.com/okian/eventhub/pkg/logger"
	"github.com/okian/eventhub/pkg/metrics"
)

// Applier applies a single change. changed reports whether state was modified.
type Applier interface {
	ApplyChange(ctx context.Context, c queue.Change) (changed bool, err error)
}

// Queue defines how the worker receives changes.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Change
}

// Worker consumes changes until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, Shutdown is called
	// or the queue is closed and drained.
	Run(ctx context.Context)

	Shutdown(ctx context.Context) error
}

// InMemoryWorker applies changes one at a time in delivery order.
type InMemoryWorker struct {
	queue   Queue
	applier Applier
	name    string

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, applier Applier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		applier:  applier,
		name:     "change-worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	changes := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if err := w.process(ctx, c); err != nil {
				w.logger.Error(ctx, "error applying change", logger.String("worker", w.name), logger.Error(err))
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// Shutdown stops the worker and waits for the loop to exit.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out", logger.String("worker", w.name))
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, c queue.Change) error { //nolint:gocritic // hugeParam: Change is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordChangeProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	changed, err := w.applier.ApplyChange(ctx, c)
	if err != nil {
		metrics.RecordChange(string(c.Type), "failed")
		metrics.RecordErrorByComponent("worker", "apply_error")
		return fmt.Errorf("apply %s %s: %w", c.Type, c.Record.ID, err)
	}

	w.logger.Debug(ctx, "change processed",
		logger.String("type", string(c.Type)),
		logger.String("id", c.Record.ID),
		logger.Bool("changed", changed),
	)
	return nil
}
