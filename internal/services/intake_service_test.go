package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
	"gotow/internal/repositories/interfaces"
	"gotow/internal/repositories/memory"
	"gotow/pkg/logger"
)

func validSubmitInput() *SubmitInput {
	return &SubmitInput{
		RequesterID: primitive.NewObjectID(),
		VehicleInfo: models.VehicleInfo{Type: "sedan", Plate: "KA01AB1234"},
		Latitude:    testLat,
		Longitude:   testLng,
		Reason:      "flat_tire",
		Severity:    models.SeverityMedium,
	}
}

func TestSubmitIdempotentReplay(t *testing.T) {
	env := newDispatchEnv(testDispatchConfig())
	env.addProvider(t, testLat, testLng)

	input := validSubmitInput()
	input.IdempotencyKey = "submit-once"

	first, created, err := env.intake.Submit(context.Background(), input)
	if err != nil {
		t.Fatalf("First submit returned error: %v", err)
	}
	if !created {
		t.Fatal("First submit should create a request")
	}

	replay, created, err := env.intake.Submit(context.Background(), input)
	if err != nil {
		t.Fatalf("Replayed submit returned error: %v", err)
	}
	if created {
		t.Fatal("Replay should not create a second request")
	}
	if replay.ID != first.ID {
		t.Error("Replay should return the original request")
	}

	active, err := env.intake.GetActiveByRequester(context.Background(), input.RequesterID)
	if err != nil {
		t.Fatalf("GetActiveByRequester returned error: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("Expected a single active request, got %d", len(active))
	}
}

func TestSubmitWithoutKeyAlwaysCreates(t *testing.T) {
	env := newDispatchEnv(testDispatchConfig())
	env.addProvider(t, testLat, testLng)

	input := validSubmitInput()

	first, _, err := env.intake.Submit(context.Background(), input)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	second, _, err := env.intake.Submit(context.Background(), input)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if first.ID == second.ID {
		t.Error("Submissions without an idempotency key must be independent")
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newDispatchEnv(testDispatchConfig())

	cases := []struct {
		name   string
		mutate func(*SubmitInput)
	}{
		{"missing requester", func(in *SubmitInput) { in.RequesterID = primitive.NilObjectID }},
		{"bad latitude", func(in *SubmitInput) { in.Latitude = 91 }},
		{"bad severity", func(in *SubmitInput) { in.Severity = "catastrophic" }},
		{"missing plate", func(in *SubmitInput) { in.VehicleInfo.Plate = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validSubmitInput()
			tc.mutate(input)

			_, _, err := env.intake.Submit(context.Background(), input)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestSubmitKicksFirstRound(t *testing.T) {
	log := logger.NewNopLogger()
	requestRepo := memory.NewRequestRepository()
	eventRepo := memory.NewEventRepository()
	tracker := NewTrackerService(requestRepo, eventRepo, nil, log)
	dispatcher := &recordingDispatcher{}
	intake := NewIntakeService(requestRepo, nil, tracker, dispatcher, nil, testDispatchConfig(), log)

	if _, _, err := intake.Submit(context.Background(), validSubmitInput()); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	dispatcher.waitForCount(t, 1)
}

func TestSubmitReturnsBeforeFanoutCompletes(t *testing.T) {
	log := logger.NewNopLogger()
	requestRepo := memory.NewRequestRepository()
	eventRepo := memory.NewEventRepository()
	tracker := NewTrackerService(requestRepo, eventRepo, nil, log)
	dispatcher := newBlockingDispatcher()
	intake := NewIntakeService(requestRepo, nil, tracker, dispatcher, nil, testDispatchConfig(), log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, _, err := intake.Submit(context.Background(), validSubmitInput()); err != nil {
			t.Errorf("Submit returned error: %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit waited on the fanout round instead of returning")
	}

	// The round itself must still run, just not on Submit's back.
	select {
	case <-dispatcher.started:
	case <-time.After(2 * time.Second):
		t.Fatal("Fanout round never started")
	}
	close(dispatcher.release)
}

func TestResubmitAfterTerminalOpensNewDispatch(t *testing.T) {
	env := newDispatchEnv(testDispatchConfig())
	env.addProvider(t, testLat, testLng)

	input := validSubmitInput()
	input.IdempotencyKey = "retry-after-cancel"

	first, created, err := env.intake.Submit(context.Background(), input)
	if err != nil {
		t.Fatalf("First submit returned error: %v", err)
	}
	if !created {
		t.Fatal("First submit should create a request")
	}

	if _, err := env.intake.Cancel(context.Background(), first.ID, input.RequesterID, ""); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}

	second, created, err := env.intake.Submit(context.Background(), input)
	if err != nil {
		t.Fatalf("Resubmit returned error: %v", err)
	}
	if !created {
		t.Fatal("Resubmitting a key whose request is terminal should open a new dispatch")
	}
	if second.ID == first.ID {
		t.Error("Resubmit should not return the cancelled request")
	}
	if second.Status != models.RequestStatusPending {
		t.Errorf("New request should be pending, got %s", second.Status)
	}

	cancelled, err := env.requestRepo.GetByID(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if cancelled.IdempotencyKey == input.IdempotencyKey {
		t.Error("Terminal request should have released its idempotency slot")
	}
}

func TestCancelPendingRequest(t *testing.T) {
	env := newDispatchEnv(testDispatchConfig())
	env.addProvider(t, testLat, testLng)
	request := env.submit(t, "")

	cancelled, err := env.intake.Cancel(context.Background(), request.ID, request.RequesterID, "found help")
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if cancelled.Status != models.RequestStatusCancelled {
		t.Fatalf("Expected cancelled, got %s", cancelled.Status)
	}
	if cancelled.CancelReason != "found help" {
		t.Errorf("Expected cancel reason to persist, got %q", cancelled.CancelReason)
	}
}

func TestCancelIsIdempotentOnTerminal(t *testing.T) {
	env := newDispatchEnv(testDispatchConfig())
	env.addProvider(t, testLat, testLng)
	request := env.submit(t, "")

	first, err := env.intake.Cancel(context.Background(), request.ID, request.RequesterID, "")
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}

	again, err := env.intake.Cancel(context.Background(), request.ID, request.RequesterID, "")
	if err != nil {
		t.Fatalf("Second cancel should be a no-op, got error: %v", err)
	}
	if again.Version != first.Version {
		t.Error("Cancelling a terminal request must not change it")
	}
	if again.Status != models.RequestStatusCancelled {
		t.Errorf("Expected cancelled snapshot, got %s", again.Status)
	}
}

func TestCancelByWrongRequester(t *testing.T) {
	env := newDispatchEnv(testDispatchConfig())
	env.addProvider(t, testLat, testLng)
	request := env.submit(t, "")

	_, err := env.intake.Cancel(context.Background(), request.ID, primitive.NewObjectID(), "")
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("Expected ErrNotAllowed, got %v", err)
	}
}

func TestCancelAfterArrivalRejected(t *testing.T) {
	env := newDispatchEnv(testDispatchConfig())
	provider := env.addProvider(t, testLat, testLng)
	request := env.submit(t, "")

	if _, err := env.arbiter.Respond(context.Background(), request.ID, provider.ID, true); err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}
	if _, err := env.arbiter.Progress(context.Background(), request.ID, provider.ID, models.RequestStatusOnTheWay); err != nil {
		t.Fatalf("Progress returned error: %v", err)
	}
	if _, err := env.arbiter.Progress(context.Background(), request.ID, provider.ID, models.RequestStatusArrived); err != nil {
		t.Fatalf("Progress returned error: %v", err)
	}

	_, err := env.intake.Cancel(context.Background(), request.ID, request.RequesterID, "")
	if !errors.Is(err, interfaces.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition after arrival, got %v", err)
	}
}

func TestCancelNotifiesAssignedProvider(t *testing.T) {
	env := newDispatchEnv(testDispatchConfig())
	provider := env.addProvider(t, testLat, testLng)
	request := env.submit(t, "")

	if _, err := env.arbiter.Respond(context.Background(), request.ID, provider.ID, true); err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}
	if _, err := env.intake.Cancel(context.Background(), request.ID, request.RequesterID, "resolved"); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}

	envelopes, err := env.providers.DrainDeliveries(context.Background(), provider.ID)
	if err != nil {
		t.Fatalf("DrainDeliveries returned error: %v", err)
	}

	var sawCancellation bool
	for _, envelope := range envelopes {
		if envelope.Kind == "request_cancelled" && envelope.RequestID == request.ID {
			sawCancellation = true
		}
	}
	if !sawCancellation {
		t.Error("Assigned provider should receive a cancellation envelope")
	}
}
