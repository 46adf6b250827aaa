package state

import (
	"context"
	"fmt"

	"famledger/internal/core"
	"famledger/internal/remote"
	"famledger/internal/replication"
)

var tasksQuery = query{
	collection: CollectionTasks,
	order:      remote.OrderBy{Field: "createdAt", Desc: true},
}

// Tasks returns a copy of the local tasks, newest first.
func (s *Store) Tasks() []core.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.snapshot()
}

func (s *Store) Task(id string) (core.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.get(id)
}

// FetchTasks replaces the local tasks. Tasks are shared by the household,
// so no session is required.
func (s *Store) FetchTasks(ctx context.Context) error {
	return fetch(ctx, s, &s.tasks, s.UserID(), tasksQuery)
}

// SubscribeTasks keeps the local tasks in step with the remote collection
// until the returned func is called.
func (s *Store) SubscribeTasks(ctx context.Context) (remote.Unsubscribe, error) {
	return subscribe(ctx, s, &s.tasks, "", tasksQuery)
}

func (s *Store) AddTask(ctx context.Context, t core.Task) (core.Task, error) {
	if t.ID == "" {
		t.ID = s.newID()
	}
	if t.Status == "" {
		t.Status = core.StatusTodo
	}
	if t.Priority == "" {
		t.Priority = core.PriorityMedium
	}
	if t.ReminderTime == "" {
		t.ReminderTime = core.ReminderNone
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = s.now().UnixMilli()
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("add task: %w", err)
	}

	s.mu.Lock()
	if t.CreatorID == "" {
		t.CreatorID = s.userID
	}
	s.tasks.prepend(t)
	s.commit(ctx)
	s.mu.Unlock()

	s.enqueueSet(ctx, CollectionTasks, t.ID, t)
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, id string, fields remote.Fields) (core.Task, error) {
	fields = sanitizeFields(fields)

	s.mu.Lock()
	cur, ok := s.tasks.get(id)
	if !ok {
		s.mu.Unlock()
		return cur, ErrNotFound
	}
	if v, set := fields["notified"]; set && cur.Notified && v != true {
		// the reminder latch only goes from false to true
		delete(fields, "notified")
	}
	if len(fields) == 0 {
		s.mu.Unlock()
		return cur, nil
	}
	updated, _, err := s.tasks.merged(id, fields)
	if err == nil {
		err = updated.Validate()
	}
	if err != nil {
		s.mu.Unlock()
		return updated, fmt.Errorf("update task: %w", err)
	}
	s.tasks.set(updated)
	s.commit(ctx)
	s.mu.Unlock()

	s.enqueue(ctx, replication.Update(CollectionTasks, id, fields))
	return updated, nil
}

// AdvanceTask moves the task one step along todo, doing, done.
func (s *Store) AdvanceTask(ctx context.Context, id string) (core.Task, error) {
	s.mu.Lock()
	t, ok := s.tasks.get(id)
	s.mu.Unlock()
	if !ok {
		return t, ErrNotFound
	}
	if err := t.Advance(); err != nil {
		return t, err
	}
	return s.UpdateTask(ctx, id, remote.Fields{"status": string(t.Status)})
}

func (s *Store) RemoveTask(ctx context.Context, id string) {
	s.mu.Lock()
	if s.tasks.remove(id) {
		s.commit(ctx)
	}
	s.mu.Unlock()

	s.enqueue(ctx, replication.Delete(CollectionTasks, id))
}
