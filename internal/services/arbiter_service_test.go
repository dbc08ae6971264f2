package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
	"gotow/internal/utils"
)

func TestConcurrentAcceptsSingleWinner(t *testing.T) {
	env := newDispatchEnv(testDispatchConfig())

	const contenders = 8
	providers := make([]*models.Provider, contenders)
	for i := range providers {
		// All within the first search radius.
		providers[i] = env.addProvider(t, testLat+float64(i)*0.001, testLng)
	}

	request := env.submit(t, "")

	var wg sync.WaitGroup
	results := make(chan *RespondResult, contenders)

	for _, provider := range providers {
		wg.Add(1)
		go func(providerID primitive.ObjectID) {
			defer wg.Done()
			result, err := env.arbiter.Respond(context.Background(), request.ID, providerID, true)
			if err != nil {
				t.Errorf("Respond returned error: %v", err)
				return
			}
			results <- result
		}(provider.ID)
	}

	wg.Wait()
	close(results)

	var accepted, conflicted int
	var winner *models.TowRequest
	for result := range results {
		switch result.Outcome {
		case utils.RespondOutcomeAccepted:
			accepted++
			winner = result.Request
		case utils.RespondOutcomeConflict:
			conflicted++
			if result.Request.AssignedProviderID == nil {
				t.Error("Conflict snapshot should show the winner")
			}
		default:
			t.Errorf("Unexpected outcome %q", result.Outcome)
		}
	}

	if accepted != 1 {
		t.Fatalf("Expected exactly 1 accepted outcome, got %d", accepted)
	}
	if conflicted != contenders-1 {
		t.Fatalf("Expected %d conflicts, got %d", contenders-1, conflicted)
	}

	final, err := env.tracker.GetStatus(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("GetStatus returned error: %v", err)
	}
	if final.Status != models.RequestStatusAccepted {
		t.Errorf("Expected accepted status, got %s", final.Status)
	}
	if *final.AssignedProviderID != *winner.AssignedProviderID {
		t.Error("Stored winner does not match the accepted response")
	}

	busy, err := env.providers.GetByID(context.Background(), *final.AssignedProviderID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if busy.Available {
		t.Error("Winning provider should have been marked unavailable")
	}
}

func TestRespondByUninvitedProvider(t *testing.T) {
	env := newDispatchEnv(testDispatchConfig())
	env.addProvider(t, testLat, testLng)
	request := env.submit(t, "")

	stranger := primitive.NewObjectID()
	_, err := env.arbiter.Respond(context.Background(), request.ID, stranger, true)
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("Expected ErrNotAllowed, got %v", err)
	}
}

func TestRespondOnCancelledRequestIsConflict(t *testing.T) {
	env := newDispatchEnv(testDispatchConfig())
	provider := env.addProvider(t, testLat, testLng)
	request := env.submit(t, "")

	if _, err := env.intake.Cancel(context.Background(), request.ID, request.RequesterID, "changed my mind"); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}

	result, err := env.arbiter.Respond(context.Background(), request.ID, provider.ID, true)
	if err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}
	if result.Outcome != utils.RespondOutcomeConflict {
		t.Fatalf("Expected conflict outcome, got %q", result.Outcome)
	}
	if result.Request.Status != models.RequestStatusCancelled {
		t.Errorf("Snapshot should show cancelled, got %s", result.Request.Status)
	}
}

func TestLastRejectionTriggersNextRound(t *testing.T) {
	env := newDispatchEnv(testDispatchConfig())

	// One provider inside the first 10 km radius, one about 13 km out,
	// only reachable once the radius grows to 15 km.
	near := env.addProvider(t, testLat, testLng)
	far := env.addProvider(t, testLat+0.12, testLng)

	request := env.submit(t, "")

	loaded, err := env.tracker.GetStatus(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("GetStatus returned error: %v", err)
	}
	if len(loaded.Candidates) != 1 {
		t.Fatalf("First round should only reach the near provider, got %d candidates", len(loaded.Candidates))
	}

	result, err := env.arbiter.Respond(context.Background(), request.ID, near.ID, false)
	if err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}
	if result.Outcome != utils.RespondOutcomeRejected {
		t.Fatalf("Expected rejected outcome, got %q", result.Outcome)
	}

	refanned := result.Request
	if refanned.FanoutRound != 2 {
		t.Fatalf("Rejection of the last candidate should start round 2, got round %d", refanned.FanoutRound)
	}
	if refanned.CandidateFor(far.ID) == nil {
		t.Error("Round 2 should have reached the far provider")
	}
}

func TestProgressLifecycle(t *testing.T) {
	env := newDispatchEnv(testDispatchConfig())
	provider := env.addProvider(t, testLat, testLng)
	request := env.submit(t, "")

	if _, err := env.arbiter.Respond(context.Background(), request.ID, provider.ID, true); err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}

	steps := []models.RequestStatus{
		models.RequestStatusOnTheWay,
		models.RequestStatusArrived,
		models.RequestStatusCompleted,
	}
	for _, step := range steps {
		updated, err := env.arbiter.Progress(context.Background(), request.ID, provider.ID, step)
		if err != nil {
			t.Fatalf("Progress to %s returned error: %v", step, err)
		}
		if updated.Status != step {
			t.Fatalf("Expected status %s, got %s", step, updated.Status)
		}
	}

	final, err := env.tracker.GetStatus(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("GetStatus returned error: %v", err)
	}
	if final.CompletedAt == nil {
		t.Error("Completed request should carry a completion timestamp")
	}

	freed, err := env.providers.GetByID(context.Background(), provider.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if !freed.Available {
		t.Error("Provider should be available again after completion")
	}
}

func TestProgressByNonWinner(t *testing.T) {
	env := newDispatchEnv(testDispatchConfig())
	winner := env.addProvider(t, testLat, testLng)
	loser := env.addProvider(t, testLat+0.001, testLng)
	request := env.submit(t, "")

	if _, err := env.arbiter.Respond(context.Background(), request.ID, winner.ID, true); err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}

	_, err := env.arbiter.Progress(context.Background(), request.ID, loser.ID, models.RequestStatusOnTheWay)
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("Expected ErrNotAllowed, got %v", err)
	}
}
