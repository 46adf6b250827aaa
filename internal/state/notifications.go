package state

import (
	"context"

	"famledger/internal/core"
	"famledger/internal/remote"
	"famledger/internal/replication"
)

func notificationsQuery(uid string) query {
	return query{
		collection: CollectionNotifications,
		filters:    []remote.Filter{{Field: "userId", Value: uid}},
		order:      remote.OrderBy{Field: "date", Desc: true},
	}
}

// Notifications returns a copy of the local notifications, newest first.
func (s *Store) Notifications() []core.AppNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifications.snapshot()
}

// UnreadCount returns the number of unread notifications.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, item := range s.notifications.items {
		if !item.IsRead {
			n++
		}
	}
	return n
}

// FetchNotifications replaces the session user's notifications. Without a
// session it does nothing.
func (s *Store) FetchNotifications(ctx context.Context) error {
	uid := s.UserID()
	if uid == "" {
		return nil
	}
	return fetch(ctx, s, &s.notifications, uid, notificationsQuery(uid))
}

// SubscribeNotifications follows the session user's notifications. Without
// a session it returns a no-op unsubscribe.
func (s *Store) SubscribeNotifications(ctx context.Context) (remote.Unsubscribe, error) {
	uid := s.UserID()
	if uid == "" {
		return func() {}, nil
	}
	return subscribe(ctx, s, &s.notifications, uid, notificationsQuery(uid))
}

// AddNotification stamps n with the session user and queues it. Without a
// session it is a silent no-op and reports false.
func (s *Store) AddNotification(ctx context.Context, n core.AppNotification) (core.AppNotification, bool) {
	s.mu.Lock()
	uid := s.userID
	if uid == "" {
		s.mu.Unlock()
		return n, false
	}
	if n.ID == "" {
		n.ID = s.newID()
	}
	if n.Date == "" {
		n.Date = core.FormatTimestamp(s.now())
	}
	n.UserID = uid
	s.notifications.prepend(n)
	s.commit(ctx)
	s.mu.Unlock()

	s.enqueueSet(ctx, CollectionNotifications, n.ID, n)
	return n, true
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	s.mu.Lock()
	n, ok := s.notifications.get(id)
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	n.IsRead = true
	s.notifications.set(n)
	s.commit(ctx)
	s.mu.Unlock()

	s.enqueue(ctx, replication.Update(CollectionNotifications, id, remote.Fields{"isRead": true}))
	return nil
}

// ClearNotifications removes every local notification and deletes each remotely.
func (s *Store) ClearNotifications(ctx context.Context) int {
	s.mu.Lock()
	cleared := s.notifications.snapshot()
	s.notifications.replace(nil)
	s.commit(ctx)
	s.mu.Unlock()

	for _, n := range cleared {
		s.enqueue(ctx, replication.Delete(CollectionNotifications, n.ID))
	}
	return len(cleared)
}
