package interfaces

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
)

// EventRepository is the append-only transition log. Events are never
// updated or deleted.
type EventRepository interface {
	Append(ctx context.Context, event *models.DispatchEvent) error
	GetByRequest(ctx context.Context, requestID primitive.ObjectID, afterVersion int64) ([]*models.DispatchEvent, error)
}
