package transport

import (
	"context"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/pkg/logger"
)

type fakeStore struct {
	mu        sync.Mutex
	envelopes []*Envelope
	delivered map[primitive.ObjectID]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{delivered: make(map[primitive.ObjectID]bool)}
}

func (s *fakeStore) Append(ctx context.Context, envelope *Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes = append(s.envelopes, envelope)
	return nil
}

func (s *fakeStore) FetchPending(ctx context.Context, recipientID primitive.ObjectID) ([]*Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []*Envelope
	for _, envelope := range s.envelopes {
		if envelope.RecipientID == recipientID && !s.delivered[envelope.ID] {
			pending = append(pending, envelope)
		}
	}
	return pending, nil
}

func (s *fakeStore) MarkDelivered(ctx context.Context, envelopeIDs []primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range envelopeIDs {
		s.delivered[id] = true
	}
	return nil
}

type fakeRealtime struct {
	err       error
	delivered []*Envelope
}

func (f *fakeRealtime) Deliver(ctx context.Context, envelope *Envelope) error {
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, envelope)
	return nil
}

func silentLogger() *logger.Logger {
	return logger.NewNopLogger()
}

func TestDeliverStoresBeforeRealtime(t *testing.T) {
	store := newFakeStore()
	realtime := &fakeRealtime{}
	deliverer := NewCompositeDeliverer(store, realtime, silentLogger())

	envelope := &Envelope{
		RecipientID: primitive.NewObjectID(),
		RequestID:   primitive.NewObjectID(),
		Kind:        "dispatch_offer",
		Payload:     map[string]interface{}{"round": 1},
	}

	if err := deliverer.Deliver(context.Background(), envelope); err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}

	if len(store.envelopes) != 1 {
		t.Fatalf("Expected 1 stored envelope, got %d", len(store.envelopes))
	}
	if len(realtime.delivered) != 1 {
		t.Fatalf("Expected 1 realtime delivery, got %d", len(realtime.delivered))
	}
	if !store.delivered[envelope.ID] {
		t.Error("Envelope delivered over realtime should be marked delivered in store")
	}
}

func TestDeliverOfflineRecipientHoldsEnvelope(t *testing.T) {
	store := newFakeStore()
	realtime := &fakeRealtime{err: ErrNoReceiver}
	deliverer := NewCompositeDeliverer(store, realtime, silentLogger())

	recipientID := primitive.NewObjectID()
	envelope := &Envelope{
		RecipientID: recipientID,
		RequestID:   primitive.NewObjectID(),
		Kind:        "dispatch_offer",
	}

	if err := deliverer.Deliver(context.Background(), envelope); err != nil {
		t.Fatalf("Offline recipient should not be an error, got: %v", err)
	}

	pending, err := store.FetchPending(context.Background(), recipientID)
	if err != nil {
		t.Fatalf("FetchPending returned error: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected envelope held for polling, got %d pending", len(pending))
	}
}

func TestDrainReturnsAndMarksPending(t *testing.T) {
	store := newFakeStore()
	deliverer := NewCompositeDeliverer(store, nil, silentLogger())

	recipientID := primitive.NewObjectID()
	for i := 0; i < 3; i++ {
		envelope := &Envelope{
			RecipientID: recipientID,
			RequestID:   primitive.NewObjectID(),
			Kind:        "status_update",
		}
		if err := deliverer.Deliver(context.Background(), envelope); err != nil {
			t.Fatalf("Deliver returned error: %v", err)
		}
	}

	drained, err := deliverer.Drain(context.Background(), recipientID)
	if err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if len(drained) != 3 {
		t.Fatalf("Expected 3 drained envelopes, got %d", len(drained))
	}

	again, err := deliverer.Drain(context.Background(), recipientID)
	if err != nil {
		t.Fatalf("Second drain returned error: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("Second drain should be empty, got %d", len(again))
	}
}
