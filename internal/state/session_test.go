package state

import (
	"context"
	"errors"
	"testing"

	"famledger/internal/core"
	"famledger/internal/log"
	"famledger/internal/remote"
	"famledger/internal/remote/memory"
	"famledger/internal/storage"
)

func TestSession_SignInSwitchesSubscriptions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.remote.Set(ctx, CollectionNotifications, "n1", remote.Record{"id": "n1", "userId": "u1", "title": "hi", "date": "2024-06-15T09:00:00.000Z", "type": "system"})
	f.remote.Set(ctx, CollectionNotifications, "n2", remote.Record{"id": "n2", "userId": "u2", "title": "yo", "date": "2024-06-15T09:00:00.000Z", "type": "system"})

	se := NewSession(f.store)
	if err := se.SignIn(ctx, "u1"); err != nil {
		t.Fatalf("SignIn(u1) error = %v", err)
	}
	if got := f.remote.Subscriptions(); got != 2 {
		t.Fatalf("Subscriptions() = %d, want 2", got)
	}
	if ns := f.store.Notifications(); len(ns) != 1 || ns[0].ID != "n1" {
		t.Fatalf("u1 notifications = %+v", ns)
	}

	if err := se.SignIn(ctx, "u2"); err != nil {
		t.Fatalf("SignIn(u2) error = %v", err)
	}
	if got := f.remote.Subscriptions(); got != 2 {
		t.Errorf("Subscriptions() after switch = %d, want 2", got)
	}
	if ns := f.store.Notifications(); len(ns) != 1 || ns[0].ID != "n2" {
		t.Errorf("u2 notifications = %+v", ns)
	}

	se.SignOut(ctx)
	if f.remote.Subscriptions() != 0 || f.store.UserID() != "" {
		t.Errorf("after SignOut: %d subscriptions, user %q", f.remote.Subscriptions(), f.store.UserID())
	}
}

func TestSession_ResumeAndClose(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	mem := memory.New(log.Discard())

	first := newFixtureWith(t, kv, mem, nil)
	first.store.SetUserID(ctx, "u1")
	if _, err := first.store.AddTask(ctx, core.Task{Title: "A"}); err != nil {
		t.Fatal(err)
	}
	first.queue.Flush(ctx)

	f := newFixtureWith(t, kv, mem, nil)
	se := NewSession(f.store)
	if err := se.Resume(ctx); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if mem.Subscriptions() != 2 {
		t.Errorf("Subscriptions() = %d, want 2", mem.Subscriptions())
	}
	se.Close()
	if mem.Subscriptions() != 0 {
		t.Errorf("Subscriptions() after Close = %d", mem.Subscriptions())
	}
	if f.store.UserID() != "u1" {
		t.Errorf("Close changed the user to %q", f.store.UserID())
	}
}

func TestSession_FetchFailureStillSwitches(t *testing.T) {
	ctx := context.Background()
	mem := memory.New(log.Discard())
	collab := &failingRemote{Collaborator: mem, err: errors.New("offline")}
	f := newFixtureWith(t, storage.NewMemoryKV(), mem, collab)

	se := NewSession(f.store)
	if err := se.SignIn(ctx, "u1"); err == nil {
		t.Error("SignIn() should report the fetch failure")
	}
	if f.store.UserID() != "u1" {
		t.Errorf("UserID() = %q, want u1", f.store.UserID())
	}
}
