package services

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
	"gotow/internal/repositories/interfaces"
	"gotow/pkg/transport"
)

// OutboxStore adapts an OutboxRepository to the transport store
// contract, so the same composite deliverer runs on MongoDB in
// production and on the in-memory repository in tests.
type OutboxStore struct {
	repo interfaces.OutboxRepository
}

func NewOutboxStore(repo interfaces.OutboxRepository) *OutboxStore {
	return &OutboxStore{repo: repo}
}

func (s *OutboxStore) Append(ctx context.Context, envelope *transport.Envelope) error {
	return s.repo.Create(ctx, &models.DeliveryRecord{
		ID:         envelope.ID,
		ProviderID: envelope.RecipientID,
		RequestID:  envelope.RequestID,
		Kind:       envelope.Kind,
		Payload:    envelope.Payload,
		CreatedAt:  envelope.CreatedAt,
	})
}

func (s *OutboxStore) FetchPending(ctx context.Context, recipientID primitive.ObjectID) ([]*transport.Envelope, error) {
	records, err := s.repo.GetPending(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	envelopes := make([]*transport.Envelope, len(records))
	for i, record := range records {
		envelopes[i] = &transport.Envelope{
			ID:          record.ID,
			RecipientID: record.ProviderID,
			RequestID:   record.RequestID,
			Kind:        record.Kind,
			Payload:     record.Payload,
			CreatedAt:   record.CreatedAt,
		}
	}

	return envelopes, nil
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, envelopeIDs []primitive.ObjectID) error {
	return s.repo.MarkDelivered(ctx, envelopeIDs)
}
