package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/pkg/logger"
)

// CompositeDeliverer writes every envelope to the durable store first,
// then attempts realtime delivery. A recipient without a live connection
// is a normal outcome; the stored copy waits for their next poll.
type CompositeDeliverer struct {
	store    Store
	realtime Deliverer
	logger   *logger.Logger
}

func NewCompositeDeliverer(store Store, realtime Deliverer, log *logger.Logger) *CompositeDeliverer {
	return &CompositeDeliverer{
		store:    store,
		realtime: realtime,
		logger:   log,
	}
}

func (c *CompositeDeliverer) Deliver(ctx context.Context, envelope *Envelope) error {
	if envelope.ID.IsZero() {
		envelope.ID = primitive.NewObjectID()
	}
	if envelope.CreatedAt.IsZero() {
		envelope.CreatedAt = time.Now()
	}

	if err := c.store.Append(ctx, envelope); err != nil {
		return fmt.Errorf("failed to store envelope: %w", err)
	}

	if c.realtime == nil {
		return nil
	}

	err := c.realtime.Deliver(ctx, envelope)
	if err != nil {
		if errors.Is(err, ErrNoReceiver) {
			c.logger.WithFields(map[string]interface{}{
				"recipient_id": envelope.RecipientID.Hex(),
				"request_id":   envelope.RequestID.Hex(),
				"kind":         envelope.Kind,
			}).Debug("Recipient offline, envelope held for polling")
			return nil
		}
		c.logger.WithError(err).Warn("Realtime delivery failed, envelope held for polling")
		return nil
	}

	if err := c.store.MarkDelivered(ctx, []primitive.ObjectID{envelope.ID}); err != nil {
		c.logger.WithError(err).Warn("Failed to mark envelope delivered")
	}

	return nil
}

// Drain returns all undelivered envelopes for a recipient and marks them
// delivered. This is the store-and-poll side of the adapter.
func (c *CompositeDeliverer) Drain(ctx context.Context, recipientID primitive.ObjectID) ([]*Envelope, error) {
	envelopes, err := c.store.FetchPending(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending envelopes: %w", err)
	}

	if len(envelopes) == 0 {
		return envelopes, nil
	}

	ids := make([]primitive.ObjectID, len(envelopes))
	for i, envelope := range envelopes {
		ids[i] = envelope.ID
	}

	if err := c.store.MarkDelivered(ctx, ids); err != nil {
		return nil, fmt.Errorf("failed to mark envelopes delivered: %w", err)
	}

	return envelopes, nil
}
