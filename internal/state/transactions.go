package state

import (
	"context"
	"fmt"

	"famledger/internal/core"
	"famledger/internal/remote"
	"famledger/internal/replication"
)

// Transactions returns a copy of the local transactions, newest first.
func (s *Store) Transactions() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transactions.snapshot()
}

func (s *Store) Transaction(id string) (core.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transactions.get(id)
}

// FetchTransactions replaces the local transactions with the remote ones.
// Without a session it does nothing.
func (s *Store) FetchTransactions(ctx context.Context) error {
	uid := s.UserID()
	if uid == "" {
		return nil
	}
	return fetch(ctx, s, &s.transactions, uid, query{
		collection: TransactionsCollection(uid),
		order:      remote.OrderBy{Field: "date", Desc: true},
	})
}

// AddTransaction prepends tx locally and queues the remote write. Without a
// session the transaction is kept locally only.
func (s *Store) AddTransaction(ctx context.Context, tx core.Transaction) error {
	if tx.ID == "" {
		tx.ID = s.newID()
	}
	if tx.CreatedAt == 0 {
		tx.CreatedAt = s.now().UnixMilli()
	}
	if err := tx.Validate(s.maxAmount); err != nil {
		return fmt.Errorf("add transaction: %w", err)
	}

	s.mu.Lock()
	s.transactions.prepend(tx)
	s.commit(ctx)
	uid := s.userID
	s.mu.Unlock()

	if uid != "" {
		s.enqueueSet(ctx, TransactionsCollection(uid), tx.ID, tx)
	}
	return nil
}

// UpdateTransaction merges fields into the transaction and queues the
// partial remote update.
func (s *Store) UpdateTransaction(ctx context.Context, id string, fields remote.Fields) (core.Transaction, error) {
	fields = sanitizeFields(fields)

	s.mu.Lock()
	updated, ok, err := s.transactions.merged(id, fields)
	if !ok {
		s.mu.Unlock()
		return updated, ErrNotFound
	}
	if err == nil {
		err = updated.Validate(s.maxAmount)
	}
	if err != nil {
		s.mu.Unlock()
		return updated, fmt.Errorf("update transaction: %w", err)
	}
	s.transactions.set(updated)
	s.commit(ctx)
	uid := s.userID
	s.mu.Unlock()

	if uid != "" {
		s.enqueue(ctx, replication.Update(TransactionsCollection(uid), id, fields))
	}
	return updated, nil
}

// RemoveTransaction drops the transaction locally and queues the remote delete.
func (s *Store) RemoveTransaction(ctx context.Context, id string) {
	s.mu.Lock()
	removed := s.transactions.remove(id)
	if removed {
		s.commit(ctx)
	}
	uid := s.userID
	s.mu.Unlock()

	if uid != "" {
		s.enqueue(ctx, replication.Delete(TransactionsCollection(uid), id))
	}
}

// ResetData clears the transactions and restores the default categories.
// Remote records are untouched.
func (s *Store) ResetData(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions.replace(nil)
	s.categories = s.persister.DefaultCategories()
	s.commit(ctx)
}
