// Package adapters decorates remote collaborators with cross-cutting behavior.
package adapters

import (
	"context"

	"famledger/internal/amqp"
	"famledger/internal/log"
	"famledger/internal/remote"
)

// Publisher sends change messages to other processes.
type Publisher interface {
	PublishChange(ctx context.Context, msg *amqp.ChangeMessage) error
}

// PublishingCollaborator announces every successful write on the change feed
// so that other processes sharing the remote store refresh their live queries.
// Publish failures are logged and never fail the write.
type PublishingCollaborator struct {
	remote.Collaborator
	publisher Publisher
	origin    string
	logger    *log.Logger
}

func NewPublishingCollaborator(inner remote.Collaborator, publisher Publisher, origin string, logger *log.Logger) *PublishingCollaborator {
	if logger == nil {
		logger = log.Default()
	}
	return &PublishingCollaborator{
		Collaborator: inner,
		publisher:    publisher,
		origin:       origin,
		logger:       logger.WithComponent(log.ComponentAMQP),
	}
}

func (p *PublishingCollaborator) Set(ctx context.Context, collection, id string, rec remote.Record) error {
	if err := p.Collaborator.Set(ctx, collection, id, rec); err != nil {
		return err
	}
	p.publish(ctx, collection, id, amqp.ChangeSet)
	return nil
}

func (p *PublishingCollaborator) Update(ctx context.Context, collection, id string, fields remote.Fields) error {
	if err := p.Collaborator.Update(ctx, collection, id, fields); err != nil {
		return err
	}
	p.publish(ctx, collection, id, amqp.ChangeUpdate)
	return nil
}

func (p *PublishingCollaborator) Delete(ctx context.Context, collection, id string) error {
	if err := p.Collaborator.Delete(ctx, collection, id); err != nil {
		return err
	}
	p.publish(ctx, collection, id, amqp.ChangeDelete)
	return nil
}

// Origin identifies this process on the change feed.
func (p *PublishingCollaborator) Origin() string {
	return p.origin
}

func (p *PublishingCollaborator) publish(ctx context.Context, collection, id string, op amqp.ChangeOp) {
	if p.publisher == nil {
		return
	}
	msg := amqp.NewChangeMessage(collection, id, op, p.origin)
	if err := p.publisher.PublishChange(ctx, msg); err != nil {
		p.logger.WarnContext(ctx, "Failed to publish change",
			log.FieldCollection, collection,
			log.FieldRecordID, id,
			log.FieldError, err)
	}
}
