package services

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
	"gotow/internal/repositories/memory"
	"gotow/pkg/logger"
)

func newTestTracker() (TrackerService, *memory.RequestRepository) {
	requestRepo := memory.NewRequestRepository()
	return NewTrackerService(requestRepo, memory.NewEventRepository(), nil, logger.NewNopLogger()), requestRepo
}

func seedRequest(t *testing.T, repo *memory.RequestRepository) *models.TowRequest {
	t.Helper()

	request := &models.TowRequest{
		RequesterID: primitive.NewObjectID(),
		Location:    models.NewLocation(testLat, testLng),
	}
	if err := repo.Create(context.Background(), request); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	return request
}

func transition(requestID primitive.ObjectID, eventType models.EventType, version int64) *models.DispatchEvent {
	return &models.DispatchEvent{
		RequestID:  requestID,
		Type:       eventType,
		FromStatus: models.RequestStatusPending,
		ToStatus:   models.RequestStatusAccepted,
		Version:    version,
	}
}

func TestSubscriberReceivesInOrder(t *testing.T) {
	tracker, repo := newTestTracker()
	request := seedRequest(t, repo)

	subscription := tracker.Subscribe(request.ID, 0)
	defer tracker.Unsubscribe(subscription)

	for version := int64(1); version <= 3; version++ {
		if err := tracker.RecordTransition(context.Background(), transition(request.ID, models.EventRequestAssigned, version)); err != nil {
			t.Fatalf("RecordTransition returned error: %v", err)
		}
	}

	for want := int64(1); want <= 3; want++ {
		event := <-subscription.Events
		if event.Version != want {
			t.Fatalf("Expected version %d, got %d", want, event.Version)
		}
	}
}

func TestStaleEventNotDelivered(t *testing.T) {
	tracker, repo := newTestTracker()
	request := seedRequest(t, repo)

	subscription := tracker.Subscribe(request.ID, 0)
	defer tracker.Unsubscribe(subscription)

	if err := tracker.RecordTransition(context.Background(), transition(request.ID, models.EventRequestAssigned, 5)); err != nil {
		t.Fatalf("RecordTransition returned error: %v", err)
	}
	// A delayed publish of an older transition must be dropped.
	if err := tracker.RecordTransition(context.Background(), transition(request.ID, models.EventRequestNotified, 3)); err != nil {
		t.Fatalf("RecordTransition returned error: %v", err)
	}
	if err := tracker.RecordTransition(context.Background(), transition(request.ID, models.EventRequestOnTheWay, 6)); err != nil {
		t.Fatalf("RecordTransition returned error: %v", err)
	}

	first := <-subscription.Events
	second := <-subscription.Events

	if first.Version != 5 || second.Version != 6 {
		t.Fatalf("Expected versions 5 then 6, got %d then %d", first.Version, second.Version)
	}
	select {
	case event := <-subscription.Events:
		t.Fatalf("Unexpected extra event with version %d", event.Version)
	default:
	}
}

func TestSubscribeAfterVersionSkipsOldEvents(t *testing.T) {
	tracker, repo := newTestTracker()
	request := seedRequest(t, repo)

	subscription := tracker.Subscribe(request.ID, 4)
	defer tracker.Unsubscribe(subscription)

	if err := tracker.RecordTransition(context.Background(), transition(request.ID, models.EventRequestNotified, 3)); err != nil {
		t.Fatalf("RecordTransition returned error: %v", err)
	}
	if err := tracker.RecordTransition(context.Background(), transition(request.ID, models.EventRequestAssigned, 5)); err != nil {
		t.Fatalf("RecordTransition returned error: %v", err)
	}

	event := <-subscription.Events
	if event.Version != 5 {
		t.Fatalf("Expected only version 5, got %d", event.Version)
	}
}

func TestGetEventsAfterVersion(t *testing.T) {
	tracker, repo := newTestTracker()
	request := seedRequest(t, repo)

	for version := int64(1); version <= 4; version++ {
		if err := tracker.RecordTransition(context.Background(), transition(request.ID, models.EventRequestNotified, version)); err != nil {
			t.Fatalf("RecordTransition returned error: %v", err)
		}
	}

	events, err := tracker.GetEvents(context.Background(), request.ID, 2)
	if err != nil {
		t.Fatalf("GetEvents returned error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events after version 2, got %d", len(events))
	}
	if events[0].Version != 3 || events[1].Version != 4 {
		t.Error("Events should resume strictly after the given version, in order")
	}
}

func TestGetEventsUnknownRequest(t *testing.T) {
	tracker, _ := newTestTracker()

	if _, err := tracker.GetEvents(context.Background(), primitive.NewObjectID(), 0); err == nil {
		t.Fatal("Expected an error for an unknown request")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	tracker, repo := newTestTracker()
	request := seedRequest(t, repo)

	subscription := tracker.Subscribe(request.ID, 0)
	tracker.Unsubscribe(subscription)

	if _, open := <-subscription.Events; open {
		t.Fatal("Channel should be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	if err := tracker.RecordTransition(context.Background(), transition(request.ID, models.EventRequestAssigned, 2)); err != nil {
		t.Fatalf("RecordTransition returned error: %v", err)
	}
}
