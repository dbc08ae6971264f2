package transport

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNoReceiver means the recipient has no live connection. Callers fall
// back to the stored copy, which the recipient picks up by polling.
var ErrNoReceiver = errors.New("transport: no live receiver")

// Envelope is a single dispatch message addressed to one recipient.
type Envelope struct {
	ID          primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	RecipientID primitive.ObjectID     `json:"recipient_id" bson:"recipient_id"`
	RequestID   primitive.ObjectID     `json:"request_id" bson:"request_id"`
	Kind        string                 `json:"kind" bson:"kind"`
	Payload     map[string]interface{} `json:"payload" bson:"payload"`
	CreatedAt   time.Time              `json:"created_at" bson:"created_at"`
}

// Deliverer pushes an envelope toward its recipient.
type Deliverer interface {
	Deliver(ctx context.Context, envelope *Envelope) error
}

// Store is the durable side of delivery. Every envelope is appended
// before any realtime attempt, so a missed push is never a lost message.
type Store interface {
	Append(ctx context.Context, envelope *Envelope) error
	FetchPending(ctx context.Context, recipientID primitive.ObjectID) ([]*Envelope, error)
	MarkDelivered(ctx context.Context, envelopeIDs []primitive.ObjectID) error
}
