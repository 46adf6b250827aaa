package remote

import (
	"context"
	"sync"

	"famledger/internal/log"
)

// QueryFunc runs a query against a backend.
type QueryFunc func(ctx context.Context, collection string, filters []Filter, order OrderBy) ([]Record, error)

// Watchers is the live-query hub shared by backends. Each subscription
// re-runs its query and delivers the result whenever its collection changes.
type Watchers struct {
	query  QueryFunc
	logger *log.Logger

	mu   sync.Mutex
	next int
	subs map[int]*watch
}

type watch struct {
	collection string
	filters    []Filter
	order      OrderBy
	onChange   func([]Record)

	// serializes deliveries so a subscriber never sees an older result
	// after a newer one
	mu     sync.Mutex
	closed bool
}

func NewWatchers(query QueryFunc, logger *log.Logger) *Watchers {
	if logger == nil {
		logger = log.Default()
	}
	return &Watchers{
		query:  query,
		logger: logger.WithComponent(log.ComponentRemote),
		subs:   make(map[int]*watch),
	}
}

// Add registers a live query and delivers its current result before returning.
func (w *Watchers) Add(ctx context.Context, collection string, filters []Filter, order OrderBy, onChange func([]Record)) (Unsubscribe, error) {
	sub := &watch{collection: collection, filters: filters, order: order, onChange: onChange}

	sub.mu.Lock()
	recs, err := w.query(ctx, collection, filters, order)
	if err != nil {
		sub.mu.Unlock()
		return nil, err
	}

	w.mu.Lock()
	id := w.next
	w.next++
	w.subs[id] = sub
	w.mu.Unlock()

	onChange(recs)
	sub.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, id)
			w.mu.Unlock()

			sub.mu.Lock()
			sub.closed = true
			sub.mu.Unlock()
		})
	}, nil
}

// Notify re-runs every live query on collection.
func (w *Watchers) Notify(ctx context.Context, collection string) {
	w.mu.Lock()
	targets := make([]*watch, 0, len(w.subs))
	for _, sub := range w.subs {
		if sub.collection == collection {
			targets = append(targets, sub)
		}
	}
	w.mu.Unlock()

	for _, sub := range targets {
		w.deliver(ctx, sub)
	}
}

func (w *Watchers) deliver(ctx context.Context, sub *watch) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	recs, err := w.query(ctx, sub.collection, sub.filters, sub.order)
	if err != nil {
		w.logger.WarnContext(ctx, "Live query refresh failed",
			log.FieldCollection, sub.collection,
			log.FieldError, err)
		return
	}
	sub.onChange(recs)
}

// Len returns the number of live subscriptions.
func (w *Watchers) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs)
}
