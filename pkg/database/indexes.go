package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the coordinator relies on. The unique
// partial index on (requester_id, idempotency_key) is what makes duplicate
// submissions collapse onto one record even if the Redis reservation is lost.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	requestIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "idempotency_key", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"idempotency_key": bson.M{"$gt": ""}}),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "location", Value: "2dsphere"}},
		},
	}
	if _, err := db.Collection("tow_requests").Indexes().CreateMany(ctx, requestIndexes); err != nil {
		return fmt.Errorf("failed to create tow_requests indexes: %w", err)
	}

	providerIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "location", Value: "2dsphere"}},
		},
		{
			Keys: bson.D{{Key: "available", Value: 1}, {Key: "towing_capable", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.Collection("providers").Indexes().CreateMany(ctx, providerIndexes); err != nil {
		return fmt.Errorf("failed to create providers indexes: %w", err)
	}

	outboxIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "provider_id", Value: 1}, {Key: "delivered", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32((24 * time.Hour).Seconds())),
		},
	}
	if _, err := db.Collection("dispatch_outbox").Indexes().CreateMany(ctx, outboxIndexes); err != nil {
		return fmt.Errorf("failed to create dispatch_outbox indexes: %w", err)
	}

	eventIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "request_id", Value: 1}, {Key: "version", Value: 1}},
		},
	}
	if _, err := db.Collection("dispatch_events").Indexes().CreateMany(ctx, eventIndexes); err != nil {
		return fmt.Errorf("failed to create dispatch_events indexes: %w", err)
	}

	return nil
}
