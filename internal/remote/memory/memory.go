// Package memory is an in-process remote document store.
package memory

import (
	"context"
	"sync"

	"famledger/internal/log"
	"famledger/internal/remote"
)

type Store struct {
	mu       sync.RWMutex
	docs     map[string][]entry
	watchers *remote.Watchers
}

// entry keeps insertion order so unordered queries are deterministic.
type entry struct {
	id  string
	rec remote.Record
}

func New(logger *log.Logger) *Store {
	s := &Store{docs: make(map[string][]entry)}
	s.watchers = remote.NewWatchers(s.Query, logger)
	return s
}

func (s *Store) find(collection, id string) int {
	for i, e := range s.docs[collection] {
		if e.id == id {
			return i
		}
	}
	return -1
}

func (s *Store) Get(_ context.Context, collection, id string) (remote.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.find(collection, id)
	if i < 0 {
		return nil, remote.ErrNotFound
	}
	return remote.Clone(s.docs[collection][i].rec), nil
}

// Set stores the JSON form of rec, as a document database would.
func (s *Store) Set(ctx context.Context, collection, id string, rec remote.Record) error {
	rec, err := remote.Encode(rec)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = remote.Record{}
	}
	s.mu.Lock()
	if i := s.find(collection, id); i >= 0 {
		s.docs[collection][i].rec = rec
	} else {
		s.docs[collection] = append(s.docs[collection], entry{id: id, rec: rec})
	}
	s.mu.Unlock()

	s.watchers.Notify(ctx, collection)
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields remote.Fields) error {
	fields, err := remote.EncodeFields(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	i := s.find(collection, id)
	if i < 0 {
		s.mu.Unlock()
		return remote.ErrNotFound
	}
	s.docs[collection][i].rec = remote.Merge(s.docs[collection][i].rec, fields)
	s.mu.Unlock()

	s.watchers.Notify(ctx, collection)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	i := s.find(collection, id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	docs := s.docs[collection]
	s.docs[collection] = append(docs[:i:i], docs[i+1:]...)
	s.mu.Unlock()

	s.watchers.Notify(ctx, collection)
	return nil
}

func (s *Store) Query(_ context.Context, collection string, filters []remote.Filter, order remote.OrderBy) ([]remote.Record, error) {
	s.mu.RLock()
	recs := make([]remote.Record, 0, len(s.docs[collection]))
	for _, e := range s.docs[collection] {
		recs = append(recs, remote.Clone(e.rec))
	}
	s.mu.RUnlock()
	return remote.Apply(recs, filters, order), nil
}

func (s *Store) Subscribe(ctx context.Context, collection string, filters []remote.Filter, order remote.OrderBy, onChange func([]remote.Record)) (remote.Unsubscribe, error) {
	return s.watchers.Add(ctx, collection, filters, order, onChange)
}

// Notify refreshes live queries after a change made by another process.
func (s *Store) Notify(ctx context.Context, collection string) {
	s.watchers.Notify(ctx, collection)
}

// Subscriptions returns the number of live queries.
func (s *Store) Subscriptions() int {
	return s.watchers.Len()
}

var (
	_ remote.Collaborator = (*Store)(nil)
	_ remote.Notifier     = (*Store)(nil)
)
