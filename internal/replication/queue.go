// Package replication delivers local writes to the remote store in the
// background, retrying with backoff.
package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"famledger/internal/log"
	"famledger/internal/remote"
)

type OpKind int

const (
	OpSet OpKind = iota
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Op is one pending remote write.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Record     remote.Record
	Fields     remote.Fields
}

func Set(collection, id string, rec remote.Record) Op {
	return Op{Kind: OpSet, Collection: collection, ID: id, Record: rec}
}

func Update(collection, id string, fields remote.Fields) Op {
	return Op{Kind: OpUpdate, Collection: collection, ID: id, Fields: fields}
}

func Delete(collection, id string) Op {
	return Op{Kind: OpDelete, Collection: collection, ID: id}
}

// Config holds configuration for the write queue
type Config struct {
	// Capacity bounds the number of distinct records waiting (default: 256)
	Capacity int

	// MaxRetries is how many failed attempts are retried before the op is dropped (default: 5)
	MaxRetries int

	// BaseDelay and MaxDelay shape the exponential backoff (default: 1s, 30s)
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// PollInterval is how often the loop looks for ops whose backoff expired (default: 1s)
	PollInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Capacity:     256,
		MaxRetries:   5,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		PollInterval: time.Second,
	}
}

type key struct {
	collection string
	id         string
}

type item struct {
	op       Op
	attempts int
	nextAt   time.Time
}

// Queue holds at most one pending op per (collection, id).
type Queue struct {
	writer remote.Writer
	config Config
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending map[key]*item
	order   []key

	// one drain at a time keeps same-record writes in call order
	drainMu sync.Mutex
	wake    chan struct{}

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func New(writer remote.Writer, config Config, logger *log.Logger) *Queue {
	def := DefaultConfig()
	if config.Capacity <= 0 {
		config.Capacity = def.Capacity
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = def.BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Queue{
		writer:  writer,
		config:  config,
		logger:  logger.WithComponent(log.ComponentReplication),
		now:     time.Now,
		pending: make(map[key]*item),
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue schedules op. An op for a record that is already pending is
// coalesced into it. It reports false when the queue is full and op was dropped.
func (q *Queue) Enqueue(op Op) bool {
	k := key{op.Collection, op.ID}

	q.mu.Lock()
	if it, ok := q.pending[k]; ok {
		it.op = coalesce(it.op, op)
		it.attempts = 0
		it.nextAt = time.Time{}
		q.mu.Unlock()
		q.signal()
		return true
	}
	if len(q.pending) >= q.config.Capacity {
		q.mu.Unlock()
		q.logger.Warn("Write queue full, dropping op",
			log.FieldOperation, op.Kind.String(),
			log.FieldCollection, op.Collection,
			log.FieldRecordID, op.ID)
		return false
	}
	q.pending[k] = &item{op: op}
	q.order = append(q.order, k)
	q.mu.Unlock()

	q.signal()
	return true
}

// coalesce folds next into prev, both targeting the same record.
func coalesce(prev, next Op) Op {
	switch next.Kind {
	case OpSet, OpDelete:
		return next
	}
	// next is an update
	switch prev.Kind {
	case OpSet:
		prev.Record = remote.Merge(prev.Record, next.Fields)
		return prev
	case OpUpdate:
		prev.Fields = remote.Fields(remote.Merge(remote.Record(prev.Fields), next.Fields))
		return prev
	default:
		// updating a deleted record is moot
		return prev
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of records with a pending write.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush attempts every pending op once, ignoring backoff. Failures stay
// queued. It is used in tests and on shutdown.
func (q *Queue) Flush(ctx context.Context) {
	q.drain(ctx, true)
}

// drain executes pending ops in enqueue order.
func (q *Queue) drain(ctx context.Context, all bool) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	q.mu.Lock()
	keys := append([]key(nil), q.order...)
	q.mu.Unlock()

	for _, k := range keys {
		if ctx.Err() != nil {
			return
		}

		q.mu.Lock()
		it, ok := q.pending[k]
		if !ok || (!all && q.now().Before(it.nextAt)) {
			q.mu.Unlock()
			continue
		}
		q.remove(k)
		q.mu.Unlock()

		err := q.execute(ctx, it.op)
		if err == nil {
			continue
		}
		q.retry(ctx, k, it, err)
	}
}

func (q *Queue) execute(ctx context.Context, op Op) error {
	switch op.Kind {
	case OpSet:
		return q.writer.Set(ctx, op.Collection, op.ID, op.Record)
	case OpUpdate:
		return q.writer.Update(ctx, op.Collection, op.ID, op.Fields)
	case OpDelete:
		return q.writer.Delete(ctx, op.Collection, op.ID)
	default:
		return fmt.Errorf("unknown op kind %v", op.Kind)
	}
}

// retry re-queues a failed op unless the failure is permanent or retries ran out.
func (q *Queue) retry(ctx context.Context, k key, it *item, err error) {
	fields := []any{
		log.FieldOperation, it.op.Kind.String(),
		log.FieldCollection, it.op.Collection,
		log.FieldRecordID, it.op.ID,
		log.FieldAttempt, it.attempts + 1,
		log.FieldError, err,
	}

	if it.op.Kind == OpUpdate && errors.Is(err, remote.ErrNotFound) {
		q.logger.WarnContext(ctx, "Dropping update of missing record", fields...)
		return
	}

	it.attempts++
	if it.attempts > q.config.MaxRetries {
		q.logger.ErrorContext(ctx, "Remote write failed, giving up", fields...)
		return
	}
	it.nextAt = q.now().Add(backoff(it.attempts-1, q.config.BaseDelay, q.config.MaxDelay))
	q.logger.WarnContext(ctx, "Remote write failed, will retry", append(fields, "retry_at", it.nextAt)...)

	q.mu.Lock()
	defer q.mu.Unlock()
	if newer, ok := q.pending[k]; ok {
		// a newer op for the record arrived while this one was in flight
		newer.op = coalesce(it.op, newer.op)
		return
	}
	q.pending[k] = it
	q.order = append(q.order, k)
}

// remove drops k from the pending set. Caller holds q.mu.
func (q *Queue) remove(k key) {
	delete(q.pending, k)
	for i, o := range q.order {
		if o == k {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

// backoff returns base*2^attempt, capped at limit.
func backoff(attempt int, base, limit time.Duration) time.Duration {
	d := base
	for range max(attempt, 0) {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return min(d, limit)
}

// Start begins the delivery loop. Returns an error if already running.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return fmt.Errorf("write queue is already running")
	}
	q.running = true
	q.stopCh = make(chan struct{})
	q.doneCh = make(chan struct{})
	q.mu.Unlock()

	go q.runLoop(ctx)

	q.logger.InfoContext(ctx, "Write queue started",
		"capacity", q.config.Capacity,
		"max_retries", q.config.MaxRetries)
	return nil
}

// Stop stops the loop and makes a final delivery attempt.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	close(q.stopCh)

	select {
	case <-q.doneCh:
	case <-ctx.Done():
		q.logger.WarnContext(ctx, "Write queue stop timed out")
		return ctx.Err()
	}

	q.mu.Lock()
	q.running = false
	q.mu.Unlock()

	q.Flush(ctx)
	if n := q.Len(); n > 0 {
		q.logger.WarnContext(ctx, "Write queue stopped with undelivered ops", log.FieldCount, n)
	} else {
		q.logger.InfoContext(ctx, "Write queue stopped gracefully")
	}
	return nil
}

// IsRunning returns whether the delivery loop is running
func (q *Queue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

func (q *Queue) runLoop(ctx context.Context) {
	defer close(q.doneCh)

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	q.drain(ctx, false)

	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.drain(ctx, false)
		case <-q.wake:
			q.drain(ctx, false)
		}
	}
}
