// Package worker consumes the remote change feed.
package worker

import (
	"context"
	"fmt"

	"famledger/internal/amqp"
	"famledger/internal/log"
	"famledger/internal/remote"
)

// Consumer delivers change messages until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, *amqp.ChangeMessage) error) error
}

// ChangeWorker refreshes local live queries for collections written by
// other processes.
type ChangeWorker struct {
	notifier remote.Notifier
	origin   string
	logger   *log.Logger

	handled int
	skipped int
}

// NewChangeWorker returns a worker that skips messages published by origin.
func NewChangeWorker(notifier remote.Notifier, origin string, logger *log.Logger) *ChangeWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &ChangeWorker{
		notifier: notifier,
		origin:   origin,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleChange processes a single change message.
func (w *ChangeWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	if msg == nil || msg.Collection == "" {
		return fmt.Errorf("handle change: empty message")
	}
	if w.origin != "" && msg.Origin == w.origin {
		w.skipped++
		return nil
	}

	w.notifier.Notify(ctx, msg.Collection)
	w.handled++

	w.logger.DebugContext(ctx, "Change applied",
		log.FieldCollection, msg.Collection,
		log.FieldRecordID, msg.ID,
		"op", string(msg.Op),
		"origin", msg.Origin)
	return nil
}

// Run blocks consuming from c until ctx is cancelled.
func (w *ChangeWorker) Run(ctx context.Context, c Consumer) error {
	w.logger.InfoContext(ctx, "Change worker started", "origin", w.origin)
	err := c.Consume(ctx, w.HandleChange)
	w.logger.InfoContext(ctx, "Change worker stopped",
		"handled", w.handled,
		"skipped", w.skipped)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("consume change feed: %w", err)
	}
	return nil
}
