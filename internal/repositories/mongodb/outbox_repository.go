package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gotow/internal/models"
	"gotow/internal/repositories/interfaces"
)

type outboxRepository struct {
	collection *mongo.Collection
}

func NewOutboxRepository(db *mongo.Database) interfaces.OutboxRepository {
	return &outboxRepository{
		collection: db.Collection("dispatch_outbox"),
	}
}

func (r *outboxRepository) Create(ctx context.Context, record *models.DeliveryRecord) error {
	if record.ID.IsZero() {
		record.ID = primitive.NewObjectID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to create delivery record: %w", err)
	}

	return nil
}

func (r *outboxRepository) GetPending(ctx context.Context, providerID primitive.ObjectID) ([]*models.DeliveryRecord, error) {
	filter := bson.M{
		"provider_id": providerID,
		"delivered":   false,
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find pending deliveries: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*models.DeliveryRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode pending deliveries: %w", err)
	}

	return records, nil
}

func (r *outboxRepository) MarkDelivered(ctx context.Context, ids []primitive.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}

	now := time.Now()
	_, err := r.collection.UpdateMany(
		ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"delivered": true, "delivered_at": now}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark deliveries: %w", err)
	}

	return nil
}
