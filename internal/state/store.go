// Package state keeps the local cache of remote records consistent under
// optimistic writes, live queries and snapshot persistence.
package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"famledger/internal/core"
	"famledger/internal/log"
	"famledger/internal/persist"
	"famledger/internal/remote"
	"famledger/internal/replication"
)

const (
	CollectionTasks         = "tasks"
	CollectionNotifications = "notifications"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateCategory = errors.New("category already exists")
)

// TransactionsCollection is the per-user transactions path.
func TransactionsCollection(uid string) string {
	return "users/" + uid + "/transactions"
}

// Persister is the snapshot medium the store writes through to.
type Persister interface {
	Load(ctx context.Context) (persist.Snapshot, error)
	Save(ctx context.Context, s persist.Snapshot) error
	DefaultCategories() []core.Category
	MaxTransactionAmount() float64
}

// Enqueuer accepts remote writes for background delivery.
type Enqueuer interface {
	Enqueue(op replication.Op) bool
}

type Options struct {
	Remote    remote.Collaborator
	Queue     Enqueuer
	Persister Persister
	Logger    *log.Logger
	Now       func() time.Time
	NewID     func() string
}

// Store owns the local collections and the session. All methods are safe
// for concurrent use.
type Store struct {
	remote    remote.Collaborator
	queue     Enqueuer
	persister Persister
	logger    *log.Logger
	now       func() time.Time
	newID     func() string
	maxAmount float64

	mu            sync.Mutex
	userID        string
	transactions  collection[core.Transaction]
	tasks         collection[core.Task]
	notifications collection[core.AppNotification]
	categories    []core.Category
	lastWeather   string
	revision      uint64
}

func New(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Store{
		remote:        opts.Remote,
		queue:         opts.Queue,
		persister:     opts.Persister,
		logger:        opts.Logger.WithComponent(log.ComponentState),
		now:           opts.Now,
		newID:         opts.NewID,
		maxAmount:     opts.Persister.MaxTransactionAmount(),
		transactions:  newCollection(func(t core.Transaction) string { return t.ID }),
		tasks:         newCollection(func(t core.Task) string { return t.ID }),
		notifications: newCollection(func(n core.AppNotification) string { return n.ID }),
		categories:    opts.Persister.DefaultCategories(),
	}
}

// Hydrate adopts the persisted snapshot. A failing medium leaves the
// defaults in place; the store then runs in memory only.
func (s *Store) Hydrate(ctx context.Context) {
	snap, err := s.persister.Load(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Local snapshot unavailable, using defaults", log.FieldError, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = snap.UserID
	s.transactions.replace(snap.Transactions)
	s.tasks.replace(snap.Tasks)
	s.notifications.replace(snap.Notifications)
	s.categories = snap.Categories
	if s.categories == nil {
		s.categories = s.persister.DefaultCategories()
	}
	s.lastWeather = snap.LastWeatherNotificationDate
	s.revision++

	s.logger.InfoContext(ctx, "Local state hydrated",
		log.FieldUserID, s.userID,
		"transactions", s.transactions.len(),
		"tasks", s.tasks.len(),
		"notifications", s.notifications.len())
}

// commit bumps the revision and writes the snapshot. Caller holds s.mu.
func (s *Store) commit(ctx context.Context) {
	s.revision++
	snap := persist.Snapshot{
		Version:                     persist.CurrentVersion,
		Transactions:                s.transactions.snapshot(),
		Categories:                  slices.Clone(s.categories),
		Tasks:                       s.tasks.snapshot(),
		UserID:                      s.userID,
		Notifications:               s.notifications.snapshot(),
		LastWeatherNotificationDate: s.lastWeather,
	}
	if err := s.persister.Save(context.WithoutCancel(ctx), snap); err != nil {
		s.logger.WarnContext(ctx, "Failed to persist local snapshot", log.FieldError, err)
	}
}

// enqueue hands a write to the replication queue.
func (s *Store) enqueue(ctx context.Context, op replication.Op) {
	if s.queue == nil {
		return
	}
	if !s.queue.Enqueue(op) {
		s.logger.WarnContext(ctx, "Remote write not queued, local state is ahead",
			log.FieldCollection, op.Collection,
			log.FieldRecordID, op.ID)
	}
}

func (s *Store) enqueueSet(ctx context.Context, collection, id string, v any) {
	rec, err := remote.Encode(v)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to encode record", log.FieldCollection, collection, log.FieldError, err)
		return
	}
	s.enqueue(ctx, replication.Set(collection, id, rec))
}

// Revision increases on every local change.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// SetUserID is the single session transition point. An empty id logs out;
// the collections are kept until the next fetch repopulates them.
func (s *Store) SetUserID(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == id {
		return
	}
	s.userID = id
	s.commit(ctx)
	s.logger.InfoContext(ctx, "Session changed", log.FieldUserID, id)
}

func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// LastWeatherNotificationDate returns the YYYY-MM-DD of the last weather notice.
func (s *Store) LastWeatherNotificationDate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWeather
}

func (s *Store) SetLastWeatherNotificationDate(ctx context.Context, date string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastWeather = date
	s.commit(ctx)
}

// FetchAll runs the three fetches concurrently. It returns the first failure;
// every failure is also logged and leaves its collection unchanged.
func (s *Store) FetchAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.FetchTransactions(gctx) })
	g.Go(func() error { return s.FetchTasks(gctx) })
	g.Go(func() error { return s.FetchNotifications(gctx) })
	return g.Wait()
}

type query struct {
	collection string
	filters    []remote.Filter
	order      remote.OrderBy
}

// fetch replaces c with the query result, unless the session changed meanwhile.
func fetch[T any](ctx context.Context, s *Store, c *collection[T], uid string, q query) error {
	recs, err := s.remote.Query(ctx, q.collection, q.filters, q.order)
	if err != nil {
		s.logger.WarnContext(ctx, "Fetch failed, keeping local data",
			log.FieldOperation, log.OpFetch,
			log.FieldCollection, q.collection,
			log.FieldError, err)
		return fmt.Errorf("fetch %s: %w", q.collection, err)
	}
	items := decodeRecords[T](ctx, s.logger, q.collection, recs)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != uid {
		return nil
	}
	c.replace(items)
	s.commit(ctx)
	return nil
}

// decodeRecords decodes recs, skipping and logging the ones that do not fit T.
func decodeRecords[T any](ctx context.Context, logger *log.Logger, collection string, recs []remote.Record) []T {
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		v, err := remote.Decode[T](rec)
		if err != nil {
			logger.WarnContext(ctx, "Skipping malformed record",
				log.FieldCollection, collection,
				log.FieldRecordID, rec["id"],
				log.FieldError, err)
			continue
		}
		out = append(out, v)
	}
	return out
}

// subscribe opens a live query that replaces c on every change.
func subscribe[T any](ctx context.Context, s *Store, c *collection[T], uid string, q query) (remote.Unsubscribe, error) {
	bg := context.WithoutCancel(ctx)
	unsub, err := s.remote.Subscribe(ctx, q.collection, q.filters, q.order, func(recs []remote.Record) {
		items := decodeRecords[T](bg, s.logger, q.collection, recs)
		s.mu.Lock()
		defer s.mu.Unlock()
		if uid != "" && s.userID != uid {
			return
		}
		c.replace(items)
		s.commit(bg)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Subscription failed",
			log.FieldCollection, q.collection,
			log.FieldError, err)
		return func() {}, fmt.Errorf("subscribe %s: %w", q.collection, err)
	}
	return unsub, nil
}

// sanitizeFields drops fields a partial update may not change.
func sanitizeFields(fields remote.Fields) remote.Fields {
	out := make(remote.Fields, len(fields))
	for k, v := range fields {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}
