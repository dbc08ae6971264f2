package interfaces

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
)

// OutboxRepository is the durable delivery log behind the transport
// adapter. Implementations also satisfy transport.Store through thin
// envelope conversion.
type OutboxRepository interface {
	Create(ctx context.Context, record *models.DeliveryRecord) error
	GetPending(ctx context.Context, providerID primitive.ObjectID) ([]*models.DeliveryRecord, error)
	MarkDelivered(ctx context.Context, ids []primitive.ObjectID) error
}
