package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
)

type EventRepository struct {
	mu     sync.Mutex
	events []*models.DispatchEvent
}

func NewEventRepository() *EventRepository {
	return &EventRepository{}
}

func (r *EventRepository) Append(ctx context.Context, event *models.DispatchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *event
	stored.ID = primitive.NewObjectID()
	stored.CreatedAt = time.Now()
	event.ID = stored.ID
	event.CreatedAt = stored.CreatedAt

	r.events = append(r.events, &stored)

	return nil
}

func (r *EventRepository) GetByRequest(ctx context.Context, requestID primitive.ObjectID, afterVersion int64) ([]*models.DispatchEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*models.DispatchEvent
	for _, event := range r.events {
		if event.RequestID == requestID && event.Version > afterVersion {
			clone := *event
			matched = append(matched, &clone)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Version < matched[j].Version
	})

	return matched, nil
}
