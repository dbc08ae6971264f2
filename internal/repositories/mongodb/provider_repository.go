package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"gotow/internal/models"
	"gotow/internal/repositories/interfaces"
	"gotow/internal/utils"
)

type providerRepository struct {
	collection *mongo.Collection
	cache      CacheService
}

func NewProviderRepository(db *mongo.Database, cache CacheService) interfaces.ProviderRepository {
	return &providerRepository{
		collection: db.Collection("providers"),
		cache:      cache,
	}
}

// Basic CRUD operations
func (r *providerRepository) Create(ctx context.Context, provider *models.Provider) error {
	provider.ID = primitive.NewObjectID()
	provider.CreatedAt = time.Now()
	provider.UpdatedAt = provider.CreatedAt

	_, err := r.collection.InsertOne(ctx, provider)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return interfaces.ErrDuplicateKey
		}
		return fmt.Errorf("failed to create provider: %w", err)
	}

	return nil
}

func (r *providerRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Provider, error) {
	if provider := r.getProviderFromCache(ctx, id.Hex()); provider != nil {
		return provider, nil
	}

	var provider models.Provider
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&provider)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	r.cacheProvider(ctx, &provider)

	return &provider, nil
}

func (r *providerRepository) GetByUserID(ctx context.Context, userID primitive.ObjectID) (*models.Provider, error) {
	var provider models.Provider
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&provider)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get provider by user: %w", err)
	}

	return &provider, nil
}

func (r *providerRepository) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": updates},
	)
	if err != nil {
		return fmt.Errorf("failed to update provider: %w", err)
	}
	if result.MatchedCount == 0 {
		return interfaces.ErrNotFound
	}

	r.invalidateProviderCache(ctx, id.Hex())

	return nil
}

// Fanout selection
func (r *providerRepository) GetNearbyProviders(ctx context.Context, lat, lng, radiusKM float64, exclude []primitive.ObjectID, limit int) ([]*models.Provider, error) {
	filter := bson.M{
		"towing_capable": true,
		"available":      true,
		"status":         models.ProviderStatusOnline,
		"location": bson.M{
			"$nearSphere": bson.M{
				"$geometry": bson.M{
					"type":        "Point",
					"coordinates": []float64{lng, lat},
				},
				"$maxDistance": radiusKM * 1000,
			},
		},
	}
	if len(exclude) > 0 {
		filter["_id"] = bson.M{"$nin": exclude}
	}

	// $nearSphere already sorts by distance, nearest first.
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find nearby providers: %w", err)
	}
	defer cursor.Close(ctx)

	var providers []*models.Provider
	if err := cursor.All(ctx, &providers); err != nil {
		return nil, fmt.Errorf("failed to decode nearby providers: %w", err)
	}

	if limit > 0 && len(providers) > limit {
		providers = providers[:limit]
	}

	return providers, nil
}

// Availability and presence
func (r *providerRepository) SetAvailability(ctx context.Context, id primitive.ObjectID, available bool) error {
	return r.Update(ctx, id, map[string]interface{}{"available": available})
}

func (r *providerRepository) SetStatus(ctx context.Context, id primitive.ObjectID, status models.ProviderStatus) error {
	return r.Update(ctx, id, map[string]interface{}{"status": status})
}

func (r *providerRepository) UpdateLocation(ctx context.Context, id primitive.ObjectID, location models.Location) error {
	return r.Update(ctx, id, map[string]interface{}{
		"location":     location,
		"last_seen_at": time.Now(),
	})
}

func (r *providerRepository) UpdateLastSeen(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return r.Update(ctx, id, map[string]interface{}{"last_seen_at": at})
}

// Device tokens
func (r *providerRepository) AddDeviceToken(ctx context.Context, id primitive.ObjectID, token models.DeviceToken) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{
			"$addToSet": bson.M{"device_tokens": token},
			"$set":      bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to add device token: %w", err)
	}
	if result.MatchedCount == 0 {
		return interfaces.ErrNotFound
	}

	r.invalidateProviderCache(ctx, id.Hex())

	return nil
}

func (r *providerRepository) RemoveDeviceToken(ctx context.Context, id primitive.ObjectID, token string) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{
			"$pull": bson.M{"device_tokens": bson.M{"token": token}},
			"$set":  bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to remove device token: %w", err)
	}
	if result.MatchedCount == 0 {
		return interfaces.ErrNotFound
	}

	r.invalidateProviderCache(ctx, id.Hex())

	return nil
}

// Cache operations
func (r *providerRepository) cacheProvider(ctx context.Context, provider *models.Provider) {
	if r.cache != nil {
		cacheKey := utils.CacheProviderPrefix + provider.ID.Hex()
		r.cache.Set(ctx, cacheKey, provider, 1*time.Minute)
	}
}

func (r *providerRepository) getProviderFromCache(ctx context.Context, providerID string) *models.Provider {
	if r.cache == nil {
		return nil
	}

	var provider models.Provider
	if err := r.cache.Get(ctx, utils.CacheProviderPrefix+providerID, &provider); err != nil {
		return nil
	}

	return &provider
}

func (r *providerRepository) invalidateProviderCache(ctx context.Context, providerID string) {
	if r.cache != nil {
		r.cache.Delete(ctx, utils.CacheProviderPrefix+providerID)
	}
}
