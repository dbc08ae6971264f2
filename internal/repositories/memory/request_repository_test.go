package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
	"gotow/internal/repositories/interfaces"
)

func newPendingRequest(t *testing.T, repo *RequestRepository, providerIDs []primitive.ObjectID) *models.TowRequest {
	t.Helper()

	request := &models.TowRequest{
		RequesterID: primitive.NewObjectID(),
		VehicleInfo: models.VehicleInfo{Plate: "KA01AB1234"},
		Location:    models.NewLocation(12.9716, 77.5946),
		EmergencyDetails: models.EmergencyDetails{
			Reason:   "engine_failure",
			Severity: models.SeverityHigh,
		},
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}
	if err := repo.Create(context.Background(), request); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	candidates := make([]models.Candidate, len(providerIDs))
	for i, id := range providerIDs {
		candidates[i] = models.Candidate{
			ProviderID: id,
			Status:     models.CandidateStatusNotified,
			Round:      1,
			NotifiedAt: time.Now(),
		}
	}
	if err := repo.AddCandidates(context.Background(), request.ID, candidates, 1); err != nil {
		t.Fatalf("AddCandidates returned error: %v", err)
	}

	return request
}

func TestAssignProviderSingleWinner(t *testing.T) {
	repo := NewRequestRepository()

	const contenders = 8
	providerIDs := make([]primitive.ObjectID, contenders)
	for i := range providerIDs {
		providerIDs[i] = primitive.NewObjectID()
	}
	request := newPendingRequest(t, repo, providerIDs)

	var wg sync.WaitGroup
	errs := make(chan error, contenders)

	for _, providerID := range providerIDs {
		wg.Add(1)
		go func(id primitive.ObjectID) {
			defer wg.Done()
			_, err := repo.AssignProvider(context.Background(), request.ID, id)
			errs <- err
		}(providerID)
	}

	wg.Wait()
	close(errs)

	var wins, losses int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, interfaces.ErrAlreadyAssigned):
			losses++
		default:
			t.Errorf("Unexpected error from AssignProvider: %v", err)
		}
	}

	if wins != 1 {
		t.Fatalf("Expected exactly 1 winner, got %d", wins)
	}
	if losses != contenders-1 {
		t.Fatalf("Expected %d losers, got %d", contenders-1, losses)
	}

	final, err := repo.GetByID(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if final.Status != models.RequestStatusAccepted {
		t.Errorf("Expected status accepted, got %s", final.Status)
	}
	if final.AssignedProviderID == nil {
		t.Fatal("Expected an assigned provider")
	}
	for _, candidate := range final.Candidates {
		if candidate.ProviderID == *final.AssignedProviderID {
			if candidate.Status != models.CandidateStatusAccepted {
				t.Errorf("Winner candidate should be accepted, got %s", candidate.Status)
			}
		} else if candidate.Status == models.CandidateStatusNotified {
			t.Errorf("Losing candidate %s left in notified state", candidate.ProviderID.Hex())
		}
	}
}

func TestAssignProviderAfterTerminalState(t *testing.T) {
	repo := NewRequestRepository()
	providerID := primitive.NewObjectID()
	request := newPendingRequest(t, repo, []primitive.ObjectID{providerID})

	if _, err := repo.UpdateStatus(context.Background(), request.ID, models.RequestStatusPending, models.RequestStatusCancelled, map[string]interface{}{"cancel_reason": "requester_cancelled"}); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}

	_, err := repo.AssignProvider(context.Background(), request.ID, providerID)
	if !errors.Is(err, interfaces.ErrTerminalState) {
		t.Fatalf("Expected ErrTerminalState, got %v", err)
	}
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	repo := NewRequestRepository()
	providerID := primitive.NewObjectID()
	request := newPendingRequest(t, repo, []primitive.ObjectID{providerID})

	_, err := repo.UpdateStatus(context.Background(), request.ID, models.RequestStatusPending, models.RequestStatusArrived, nil)
	if !errors.Is(err, interfaces.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestUpdateStatusBumpsVersion(t *testing.T) {
	repo := NewRequestRepository()
	providerID := primitive.NewObjectID()
	request := newPendingRequest(t, repo, []primitive.ObjectID{providerID})

	assigned, err := repo.AssignProvider(context.Background(), request.ID, providerID)
	if err != nil {
		t.Fatalf("AssignProvider returned error: %v", err)
	}
	// Create starts at 1, the fanout round bumps to 2, assignment to 3.
	if assigned.Version != 3 {
		t.Fatalf("Expected version 3 after assignment, got %d", assigned.Version)
	}

	onTheWay, err := repo.UpdateStatus(context.Background(), request.ID, models.RequestStatusAccepted, models.RequestStatusOnTheWay, nil)
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if onTheWay.Version != 4 {
		t.Fatalf("Expected version 4, got %d", onTheWay.Version)
	}
}

func TestTimeoutOutstandingCandidates(t *testing.T) {
	repo := NewRequestRepository()
	stale := primitive.NewObjectID()
	fresh := primitive.NewObjectID()

	request := newPendingRequest(t, repo, nil)
	candidates := []models.Candidate{
		{ProviderID: stale, Status: models.CandidateStatusNotified, Round: 1, NotifiedAt: time.Now().Add(-2 * time.Minute)},
		{ProviderID: fresh, Status: models.CandidateStatusNotified, Round: 2, NotifiedAt: time.Now()},
	}
	if err := repo.AddCandidates(context.Background(), request.ID, candidates, 2); err != nil {
		t.Fatalf("AddCandidates returned error: %v", err)
	}

	timedOut, err := repo.TimeoutOutstandingCandidates(context.Background(), request.ID, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("TimeoutOutstandingCandidates returned error: %v", err)
	}
	if timedOut != 1 {
		t.Fatalf("Expected 1 timed out candidate, got %d", timedOut)
	}

	final, err := repo.GetByID(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if got := final.CandidateFor(stale).Status; got != models.CandidateStatusTimedOut {
		t.Errorf("Stale candidate should be timed_out, got %s", got)
	}
	if got := final.CandidateFor(fresh).Status; got != models.CandidateStatusNotified {
		t.Errorf("Fresh candidate should stay notified, got %s", got)
	}
}

func TestCreateDuplicateIdempotencyKey(t *testing.T) {
	repo := NewRequestRepository()
	requesterID := primitive.NewObjectID()

	first := &models.TowRequest{
		RequesterID:    requesterID,
		IdempotencyKey: "retry-abc",
		Location:       models.NewLocation(12.9716, 77.5946),
		ExpiresAt:      time.Now().Add(10 * time.Minute),
	}
	if err := repo.Create(context.Background(), first); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	second := &models.TowRequest{
		RequesterID:    requesterID,
		IdempotencyKey: "retry-abc",
		Location:       models.NewLocation(12.9716, 77.5946),
		ExpiresAt:      time.Now().Add(10 * time.Minute),
	}
	if err := repo.Create(context.Background(), second); !errors.Is(err, interfaces.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	found, err := repo.GetByIdempotencyKey(context.Background(), requesterID, "retry-abc")
	if err != nil {
		t.Fatalf("GetByIdempotencyKey returned error: %v", err)
	}
	if found.ID != first.ID {
		t.Error("Idempotency lookup should return the original request")
	}
}
