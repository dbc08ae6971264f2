package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
)

type OutboxRepository struct {
	mu      sync.Mutex
	records map[primitive.ObjectID]*models.DeliveryRecord
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		records: make(map[primitive.ObjectID]*models.DeliveryRecord),
	}
}

func (r *OutboxRepository) Create(ctx context.Context, record *models.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID.IsZero() {
		record.ID = primitive.NewObjectID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	stored := *record
	r.records[record.ID] = &stored

	return nil
}

func (r *OutboxRepository) GetPending(ctx context.Context, providerID primitive.ObjectID) ([]*models.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []*models.DeliveryRecord
	for _, record := range r.records {
		if record.ProviderID == providerID && !record.Delivered {
			clone := *record
			pending = append(pending, &clone)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	return pending, nil
}

func (r *OutboxRepository) MarkDelivered(ctx context.Context, ids []primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		if record, ok := r.records[id]; ok && !record.Delivered {
			record.Delivered = true
			record.DeliveredAt = &now
		}
	}

	return nil
}
