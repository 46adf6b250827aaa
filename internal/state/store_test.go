package state

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"famledger/internal/core"
	"famledger/internal/log"
	"famledger/internal/persist"
	"famledger/internal/remote"
	"famledger/internal/remote/memory"
	"famledger/internal/replication"
	"famledger/internal/storage"
)

type fixture struct {
	store  *Store
	remote *memory.Store
	queue  *replication.Queue
	kv     *storage.MemoryKV
}

// failingRemote fails every query while err is set.
type failingRemote struct {
	remote.Collaborator
	err error
}

func (f *failingRemote) Query(ctx context.Context, c string, fl []remote.Filter, o remote.OrderBy) ([]remote.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.Collaborator.Query(ctx, c, fl, o)
}

var fixedNow = time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv := storage.NewMemoryKV()
	return newFixtureWith(t, kv, memory.New(log.Discard()), nil)
}

func newFixtureWith(t *testing.T, kv *storage.MemoryKV, mem *memory.Store, collab remote.Collaborator) *fixture {
	t.Helper()
	if collab == nil {
		collab = mem
	}
	q := replication.New(mem, replication.DefaultConfig(), log.Discard())
	n := 0
	s := New(Options{
		Remote:    collab,
		Queue:     q,
		Persister: persist.New(kv, persist.Options{Logger: log.Discard()}),
		Logger:    log.Discard(),
		Now:       func() time.Time { return fixedNow },
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	})
	s.Hydrate(context.Background())
	return &fixture{store: s, remote: mem, queue: q, kv: kv}
}

func expense(id string, amount float64, date core.Date) core.Transaction {
	return core.Transaction{
		ID:            id,
		Date:          date,
		Amount:        amount,
		CategoryID:    "c1",
		Type:          core.Expense,
		PaymentMethod: core.Cash,
	}
}

func TestAddTransaction_VisibleBeforeRemoteWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SetUserID(ctx, "u1")

	if err := f.store.AddTransaction(ctx, expense("t1", 500_000, core.NewDate(2024, 6, 1))); err != nil {
		t.Fatalf("AddTransaction() error = %v", err)
	}

	txs := f.store.Transactions()
	if len(txs) != 1 || txs[0].ID != "t1" {
		t.Fatalf("Transactions() = %+v, want t1", txs)
	}
	if _, err := f.remote.Get(ctx, TransactionsCollection("u1"), "t1"); !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("remote written before flush: %v", err)
	}

	f.queue.Flush(ctx)
	rec, err := f.remote.Get(ctx, TransactionsCollection("u1"), "t1")
	if err != nil {
		t.Fatalf("remote Get() error = %v", err)
	}
	if rec["amount"] != float64(500_000) || rec["date"] != "2024-06-01" {
		t.Errorf("remote record = %v", rec)
	}
}

func TestAddTransaction_Prepends(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.store.AddTransaction(ctx, expense("a", 1, core.NewDate(2024, 6, 1)))
	f.store.AddTransaction(ctx, expense("b", 2, core.NewDate(2024, 6, 2)))

	txs := f.store.Transactions()
	if len(txs) != 2 || txs[0].ID != "b" || txs[1].ID != "a" {
		t.Errorf("order = %+v, want b, a", txs)
	}
	// no session: nothing queued
	if f.queue.Len() != 0 {
		t.Errorf("queue Len() = %d, want 0 without session", f.queue.Len())
	}
}

func TestAddTransaction_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name string
		tx   core.Transaction
		want error
	}{
		{"zero amount", expense("a", 0, core.NewDate(2024, 6, 1)), core.ErrInvalidAmount},
		{"over the cap", expense("a", core.DefaultMaxTransactionAmount, core.NewDate(2024, 6, 1)), core.ErrInvalidAmount},
		{"missing date", expense("a", 10, core.Date{}), core.ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.store.AddTransaction(ctx, tt.tx); !errors.Is(err, tt.want) {
				t.Errorf("AddTransaction() error = %v, want %v", err, tt.want)
			}
		})
	}
	if len(f.store.Transactions()) != 0 {
		t.Error("invalid transaction was stored")
	}
}

func TestUpdateAndRemoveTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SetUserID(ctx, "u1")
	f.store.AddTransaction(ctx, expense("t1", 100, core.NewDate(2024, 6, 1)))
	f.queue.Flush(ctx)

	got, err := f.store.UpdateTransaction(ctx, "t1", remote.Fields{"amount": 250, "description": "groceries", "id": "hijack"})
	if err != nil {
		t.Fatalf("UpdateTransaction() error = %v", err)
	}
	if got.Amount != 250 || got.Description != "groceries" || got.ID != "t1" {
		t.Errorf("UpdateTransaction() = %+v", got)
	}

	if _, err := f.store.UpdateTransaction(ctx, "t1", remote.Fields{"amount": -5}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("negative update error = %v, want ErrInvalidAmount", err)
	}
	if _, err := f.store.UpdateTransaction(ctx, "missing", remote.Fields{"amount": 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing update error = %v, want ErrNotFound", err)
	}

	f.queue.Flush(ctx)
	rec, _ := f.remote.Get(ctx, TransactionsCollection("u1"), "t1")
	if rec["amount"] != float64(250) || rec["description"] != "groceries" {
		t.Errorf("remote after update = %v", rec)
	}

	f.store.RemoveTransaction(ctx, "t1")
	if len(f.store.Transactions()) != 0 {
		t.Error("transaction still present locally")
	}
	f.queue.Flush(ctx)
	if _, err := f.remote.Get(ctx, TransactionsCollection("u1"), "t1"); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("remote still has t1: %v", err)
	}
}

func TestFetchTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("no session is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.store.AddTransaction(ctx, expense("local", 1, core.NewDate(2024, 6, 1)))
		if err := f.store.FetchTransactions(ctx); err != nil {
			t.Fatalf("FetchTransactions() error = %v", err)
		}
		if len(f.store.Transactions()) != 1 {
			t.Error("collection changed without session")
		}
	})

	t.Run("replaces local collection ordered by date", func(t *testing.T) {
		f := newFixture(t)
		coll := TransactionsCollection("u1")
		for _, tx := range []core.Transaction{
			expense("old", 1, core.NewDate(2024, 5, 1)),
			expense("new", 2, core.NewDate(2024, 6, 1)),
		} {
			rec, _ := remote.Encode(tx)
			f.remote.Set(ctx, coll, tx.ID, rec)
		}
		f.store.AddTransaction(ctx, expense("stale", 3, core.NewDate(2024, 4, 1)))
		f.store.SetUserID(ctx, "u1")

		if err := f.store.FetchTransactions(ctx); err != nil {
			t.Fatalf("FetchTransactions() error = %v", err)
		}
		txs := f.store.Transactions()
		if len(txs) != 2 || txs[0].ID != "new" || txs[1].ID != "old" {
			t.Errorf("Transactions() = %+v", txs)
		}
	})

	t.Run("failure keeps local collection", func(t *testing.T) {
		mem := memory.New(log.Discard())
		failing := &failingRemote{Collaborator: mem, err: errors.New("offline")}
		f := newFixtureWith(t, storage.NewMemoryKV(), mem, failing)
		f.store.SetUserID(ctx, "u1")
		f.store.AddTransaction(ctx, expense("local", 1, core.NewDate(2024, 6, 1)))

		if err := f.store.FetchTransactions(ctx); err == nil {
			t.Fatal("FetchTransactions() error = nil")
		}
		if txs := f.store.Transactions(); len(txs) != 1 || txs[0].ID != "local" {
			t.Errorf("Transactions() = %+v, want local kept", txs)
		}
	})
}

func TestFetchAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.remote.Set(ctx, CollectionTasks, "k1", remote.Record{"id": "k1", "title": "Fix sink", "status": "todo", "priority": "low", "createdAt": 1})
	f.remote.Set(ctx, CollectionNotifications, "n1", remote.Record{"id": "n1", "userId": "u1", "title": "Hi", "type": "system", "date": "2024-06-01T00:00:00.000Z"})
	f.remote.Set(ctx, CollectionNotifications, "n2", remote.Record{"id": "n2", "userId": "u2", "title": "Other", "type": "system", "date": "2024-06-01T00:00:00.000Z"})
	f.remote.Set(ctx, CollectionTasks, "bad", remote.Record{"id": "bad", "createdAt": "yesterday"})

	f.store.SetUserID(ctx, "u1")
	if err := f.store.FetchAll(ctx); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if tasks := f.store.Tasks(); len(tasks) != 1 || tasks[0].Title != "Fix sink" {
		t.Errorf("Tasks() = %+v", tasks)
	}
	if ns := f.store.Notifications(); len(ns) != 1 || ns[0].ID != "n1" {
		t.Errorf("Notifications() = %+v", ns)
	}
}

func TestFetchTasks_SharedBoardWithoutSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.remote.Set(ctx, CollectionTasks, "k1", remote.Record{"id": "k1", "title": "Fix sink", "status": "todo", "priority": "low", "createdAt": 1})

	if err := f.store.FetchTasks(ctx); err != nil {
		t.Fatalf("FetchTasks() error = %v", err)
	}
	if tasks := f.store.Tasks(); len(tasks) != 1 || tasks[0].ID != "k1" {
		t.Errorf("Tasks() = %+v, want shared board without session", tasks)
	}
	if err := f.store.FetchNotifications(ctx); err != nil {
		t.Fatalf("FetchNotifications() error = %v", err)
	}
	if len(f.store.Notifications()) != 0 {
		t.Error("notifications fetched without session")
	}
}

func TestSubscribeTasks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.remote.Set(ctx, CollectionTasks, "k1", remote.Record{"id": "k1", "title": "A", "status": "todo", "priority": "low", "createdAt": 1})

	unsub, err := f.store.SubscribeTasks(ctx)
	if err != nil {
		t.Fatalf("SubscribeTasks() error = %v", err)
	}
	defer unsub()
	if len(f.store.Tasks()) != 1 {
		t.Fatalf("initial Tasks() = %+v", f.store.Tasks())
	}

	// optimistic add shows up at once, then the remote event confirms it
	added, err := f.store.AddTask(ctx, core.Task{Title: "B"})
	if err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	if tasks := f.store.Tasks(); tasks[0].ID != added.ID {
		t.Fatalf("optimistic add not visible: %+v", tasks)
	}
	f.queue.Flush(ctx)

	// a change made elsewhere replaces the local collection
	f.remote.Delete(ctx, CollectionTasks, "k1")
	tasks := f.store.Tasks()
	if len(tasks) != 1 || tasks[0].ID != added.ID {
		t.Errorf("Tasks() after remote delete = %+v", tasks)
	}

	unsub()
	f.remote.Set(ctx, CollectionTasks, "k2", remote.Record{"id": "k2", "title": "C", "status": "todo", "priority": "low"})
	if len(f.store.Tasks()) != 1 {
		t.Error("event delivered after unsubscribe")
	}
}

func TestAdvanceTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task, _ := f.store.AddTask(ctx, core.Task{Title: "Laundry"})

	for _, want := range []core.TaskStatus{core.StatusDoing, core.StatusDone} {
		got, err := f.store.AdvanceTask(ctx, task.ID)
		if err != nil {
			t.Fatalf("AdvanceTask() error = %v", err)
		}
		if got.Status != want {
			t.Errorf("status = %v, want %v", got.Status, want)
		}
	}
	if _, err := f.store.AdvanceTask(ctx, task.ID); !errors.Is(err, core.ErrTaskDone) {
		t.Errorf("AdvanceTask(done) error = %v, want ErrTaskDone", err)
	}
	if _, err := f.store.AdvanceTask(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AdvanceTask(missing) error = %v, want ErrNotFound", err)
	}

	f.queue.Flush(ctx)
	rec, err := f.remote.Get(ctx, CollectionTasks, task.ID)
	if err != nil || rec["status"] != "done" {
		t.Errorf("remote task = %v, %v", rec, err)
	}
}

func TestUpdateTask_NotifiedLatch(t *testing.T) {
	tests := []struct {
		name         string
		fields       remote.Fields
		wantNotified bool
		wantPriority core.TaskPriority
	}{
		{"reset ignored", remote.Fields{"notified": false}, true, core.PriorityMedium},
		{"null ignored", remote.Fields{"notified": nil}, true, core.PriorityMedium},
		{"other fields still applied", remote.Fields{"notified": false, "priority": "high"}, true, core.PriorityHigh},
		{"setting true again is fine", remote.Fields{"notified": true}, true, core.PriorityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			task, _ := f.store.AddTask(ctx, core.Task{Title: "Pay rent"})
			if _, err := f.store.UpdateTask(ctx, task.ID, remote.Fields{"notified": true}); err != nil {
				t.Fatalf("latch error = %v", err)
			}

			got, err := f.store.UpdateTask(ctx, task.ID, tt.fields)
			if err != nil {
				t.Fatalf("UpdateTask() error = %v", err)
			}
			if got.Notified != tt.wantNotified || got.Priority != tt.wantPriority {
				t.Errorf("returned task = %+v", got)
			}

			f.queue.Flush(ctx)
			rec, err := f.remote.Get(ctx, CollectionTasks, task.ID)
			if err != nil {
				t.Fatal(err)
			}
			if rec["notified"] != true {
				t.Errorf("remote notified = %v, want true", rec["notified"])
			}
		})
	}
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, ok := f.store.AddNotification(ctx, core.AppNotification{Title: "x"}); ok {
		t.Fatal("AddNotification() without session reported success")
	}
	if len(f.store.Notifications()) != 0 || f.queue.Len() != 0 {
		t.Fatal("AddNotification() without session changed state")
	}
	unsub, err := f.store.SubscribeNotifications(ctx)
	if err != nil {
		t.Fatalf("SubscribeNotifications() without session error = %v", err)
	}
	unsub()
	if f.remote.Subscriptions() != 0 {
		t.Fatal("subscription opened without session")
	}

	f.store.SetUserID(ctx, "u1")
	n, ok := f.store.AddNotification(ctx, core.NewNotification("", core.NotificationSystem, "Hello", "World", fixedNow))
	if !ok {
		t.Fatal("AddNotification() with session failed")
	}
	if n.UserID != "u1" || n.ID == "" {
		t.Errorf("notification = %+v", n)
	}
	if f.store.UnreadCount() != 1 {
		t.Errorf("UnreadCount() = %d, want 1", f.store.UnreadCount())
	}

	if err := f.store.MarkNotificationRead(ctx, n.ID); err != nil {
		t.Fatalf("MarkNotificationRead() error = %v", err)
	}
	if f.store.UnreadCount() != 0 {
		t.Errorf("UnreadCount() after read = %d", f.store.UnreadCount())
	}
	f.queue.Flush(ctx)
	rec, _ := f.remote.Get(ctx, CollectionNotifications, n.ID)
	if rec["isRead"] != true || rec["userId"] != "u1" {
		t.Errorf("remote notification = %v", rec)
	}

	if cleared := f.store.ClearNotifications(ctx); cleared != 1 {
		t.Errorf("ClearNotifications() = %d, want 1", cleared)
	}
	f.queue.Flush(ctx)
	if recs, _ := f.remote.Query(ctx, CollectionNotifications, nil, remote.OrderBy{}); len(recs) != 0 {
		t.Errorf("remote notifications after clear = %v", recs)
	}
}

func TestLogoutKeepsCollections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SetUserID(ctx, "u1")
	f.store.AddTransaction(ctx, expense("t1", 1, core.NewDate(2024, 6, 1)))

	f.store.SetUserID(ctx, "")
	if f.store.UserID() != "" {
		t.Fatal("UserID() not cleared")
	}
	if len(f.store.Transactions()) != 1 {
		t.Error("logout cleared transactions")
	}
}

func TestPersistenceWriteThrough(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	f := newFixtureWith(t, kv, memory.New(log.Discard()), nil)
	f.store.SetUserID(ctx, "u1")
	f.store.AddTransaction(ctx, expense("t1", 42, core.NewDate(2024, 6, 1)))
	f.store.AddCategory(ctx, core.Category{ID: "x1", Name: "Pets", Type: core.Expense, Color: "#123456"})
	f.store.SetLastWeatherNotificationDate(ctx, "2024-06-15")

	reloaded := newFixtureWith(t, kv, memory.New(log.Discard()), nil).store
	if reloaded.UserID() != "u1" {
		t.Errorf("UserID() = %q, want u1", reloaded.UserID())
	}
	if txs := reloaded.Transactions(); len(txs) != 1 || txs[0].Amount != 42 {
		t.Errorf("Transactions() = %+v", txs)
	}
	cats := reloaded.Categories()
	if len(cats) != len(core.DefaultCategories())+1 || cats[len(cats)-1].ID != "x1" {
		t.Errorf("Categories() = %+v", cats)
	}
	if reloaded.LastWeatherNotificationDate() != "2024-06-15" {
		t.Errorf("LastWeatherNotificationDate() = %q", reloaded.LastWeatherNotificationDate())
	}
}

func TestCategoriesAndReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.store.AddCategory(ctx, core.Category{ID: "c1", Name: "Dup", Type: core.Expense}); !errors.Is(err, ErrDuplicateCategory) {
		t.Errorf("duplicate AddCategory() error = %v", err)
	}
	if _, err := f.store.AddCategory(ctx, core.Category{Name: "", Type: core.Expense}); !errors.Is(err, core.ErrEmptyName) {
		t.Errorf("unnamed AddCategory() error = %v", err)
	}
	c, err := f.store.AddCategory(ctx, core.Category{Name: "Pets", Type: core.Expense, Color: "#000"})
	if err != nil || c.ID == "" {
		t.Fatalf("AddCategory() = %+v, %v", c, err)
	}
	f.store.AddTransaction(ctx, expense("t1", 1, core.NewDate(2024, 6, 1)))

	before := f.store.Revision()
	f.store.ResetData(ctx)
	if f.store.Revision() <= before {
		t.Error("Revision() did not advance")
	}
	if len(f.store.Transactions()) != 0 {
		t.Error("ResetData() kept transactions")
	}
	if len(f.store.Categories()) != len(core.DefaultCategories()) {
		t.Error("ResetData() kept user categories")
	}
}
