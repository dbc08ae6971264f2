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

type eventRepository struct {
	collection *mongo.Collection
}

func NewEventRepository(db *mongo.Database) interfaces.EventRepository {
	return &eventRepository{
		collection: db.Collection("dispatch_events"),
	}
}

func (r *eventRepository) Append(ctx context.Context, event *models.DispatchEvent) error {
	event.ID = primitive.NewObjectID()
	event.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to append dispatch event: %w", err)
	}

	return nil
}

func (r *eventRepository) GetByRequest(ctx context.Context, requestID primitive.ObjectID, afterVersion int64) ([]*models.DispatchEvent, error) {
	filter := bson.M{
		"request_id": requestID,
		"version":    bson.M{"$gt": afterVersion},
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "version", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find dispatch events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*models.DispatchEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode dispatch events: %w", err)
	}

	return events, nil
}
