package state

import (
	"context"
	"sync"

	"famledger/internal/log"
	"famledger/internal/remote"
)

// Session ties the store's live queries to the signed-in user. Signing in
// as someone else releases the previous user's subscriptions first.
type Session struct {
	store *Store

	mu     sync.Mutex
	unsubs []remote.Unsubscribe
}

func NewSession(store *Store) *Session {
	return &Session{store: store}
}

// SignIn switches the session to uid, refreshes every collection and opens
// the task and notification live queries. Remote failures are logged and
// returned; the local switch happens regardless. An empty uid signs out.
func (se *Session) SignIn(ctx context.Context, uid string) error {
	se.mu.Lock()
	defer se.mu.Unlock()

	se.release()
	se.store.SetUserID(ctx, uid)
	if uid == "" {
		return nil
	}

	fetchErr := se.store.FetchAll(ctx)

	tasks, err := se.store.SubscribeTasks(ctx)
	if err != nil {
		return err
	}
	se.unsubs = append(se.unsubs, tasks)

	notifications, err := se.store.SubscribeNotifications(ctx)
	if err != nil {
		return err
	}
	se.unsubs = append(se.unsubs, notifications)

	se.store.logger.InfoContext(ctx, "Session live queries opened", log.FieldUserID, uid)
	return fetchErr
}

// Resume reopens the live queries for the hydrated user, if any.
func (se *Session) Resume(ctx context.Context) error {
	return se.SignIn(ctx, se.store.UserID())
}

func (se *Session) SignOut(ctx context.Context) {
	se.SignIn(ctx, "")
}

// Close releases the live queries and keeps the session user.
func (se *Session) Close() {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.release()
}

func (se *Session) release() {
	for _, unsub := range se.unsubs {
		unsub()
	}
	se.unsubs = nil
}
