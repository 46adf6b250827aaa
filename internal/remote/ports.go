// Package remote defines the document-store collaborator the local state
// synchronizes against, plus query helpers shared by its backends.
package remote

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("remote: record not found")

type (
	// Record is an opaque document keyed by JSON field name.
	Record map[string]any

	// Fields is a partial record merged into an existing one.
	Fields map[string]any

	// Filter matches records whose Field equals Value.
	Filter struct {
		Field string
		Value any
	}

	// OrderBy sorts query results by one field. An empty Field keeps
	// insertion order.
	OrderBy struct {
		Field string
		Desc  bool
	}

	// Unsubscribe stops a live query. Safe to call more than once.
	Unsubscribe func()
)

// Reader fetches documents.
type Reader interface {
	Get(ctx context.Context, collection, id string) (Record, error)
	Query(ctx context.Context, collection string, filters []Filter, order OrderBy) ([]Record, error)
}

// Writer mutates documents. Writes are idempotent per id.
type Writer interface {
	Set(ctx context.Context, collection, id string, rec Record) error
	Update(ctx context.Context, collection, id string, fields Fields) error
	Delete(ctx context.Context, collection, id string) error
}

// Subscriber opens live queries. onChange receives the full result set on
// registration and after every change to the collection.
type Subscriber interface {
	Subscribe(ctx context.Context, collection string, filters []Filter, order OrderBy, onChange func([]Record)) (Unsubscribe, error)
}

// Collaborator is the whole remote document store.
type Collaborator interface {
	Reader
	Writer
	Subscriber
}

// Notifier refreshes live queries on a collection changed elsewhere.
type Notifier interface {
	Notify(ctx context.Context, collection string)
}
