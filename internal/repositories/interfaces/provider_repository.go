package interfaces

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
)

type ProviderRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, provider *models.Provider) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Provider, error)
	GetByUserID(ctx context.Context, userID primitive.ObjectID) (*models.Provider, error)
	Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error

	// Fanout selection. Returns eligible towing providers within
	// radiusKM of the point, excluding the given IDs, nearest first.
	GetNearbyProviders(ctx context.Context, lat, lng, radiusKM float64, exclude []primitive.ObjectID, limit int) ([]*models.Provider, error)

	// Availability and presence
	SetAvailability(ctx context.Context, id primitive.ObjectID, available bool) error
	SetStatus(ctx context.Context, id primitive.ObjectID, status models.ProviderStatus) error
	UpdateLocation(ctx context.Context, id primitive.ObjectID, location models.Location) error
	UpdateLastSeen(ctx context.Context, id primitive.ObjectID, at time.Time) error

	// Device tokens for push fallback
	AddDeviceToken(ctx context.Context, id primitive.ObjectID, token models.DeviceToken) error
	RemoveDeviceToken(ctx context.Context, id primitive.ObjectID, token string) error
}
