package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
	"gotow/internal/repositories/interfaces"
	"gotow/internal/utils"
)

// RequestRepository is an in-memory store with the same guarded-write
// semantics as the MongoDB implementation. It backs unit tests and
// single-node development without a database.
type RequestRepository struct {
	mu       sync.Mutex
	requests map[primitive.ObjectID]*models.TowRequest
}

func NewRequestRepository() *RequestRepository {
	return &RequestRepository{
		requests: make(map[primitive.ObjectID]*models.TowRequest),
	}
}

// Basic CRUD operations
func (r *RequestRepository) Create(ctx context.Context, request *models.TowRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if request.IdempotencyKey != "" {
		for _, existing := range r.requests {
			if existing.RequesterID == request.RequesterID &&
				existing.IdempotencyKey == request.IdempotencyKey &&
				!existing.Status.IsTerminal() {
				return interfaces.ErrDuplicateKey
			}
		}
	}

	request.ID = primitive.NewObjectID()
	request.Status = models.RequestStatusPending
	request.Version = 1
	request.CreatedAt = time.Now()
	request.UpdatedAt = request.CreatedAt

	r.requests[request.ID] = cloneRequest(request)

	return nil
}

func (r *RequestRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.TowRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.requests[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}

	return cloneRequest(request), nil
}

func (r *RequestRepository) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.requests[id]
	if !ok {
		return interfaces.ErrNotFound
	}

	applyRequestUpdates(request, updates)
	request.UpdatedAt = time.Now()

	return nil
}

// Idempotency
func (r *RequestRepository) GetByIdempotencyKey(ctx context.Context, requesterID primitive.ObjectID, key string) (*models.TowRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, request := range r.requests {
		if request.RequesterID == requesterID && request.IdempotencyKey == key && !request.Status.IsTerminal() {
			return cloneRequest(request), nil
		}
	}

	return nil, interfaces.ErrNotFound
}

// Requester views
func (r *RequestRepository) GetActiveByRequester(ctx context.Context, requesterID primitive.ObjectID) ([]*models.TowRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var active []*models.TowRequest
	for _, request := range r.requests {
		if request.RequesterID == requesterID && !request.Status.IsTerminal() {
			active = append(active, cloneRequest(request))
		}
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})

	return active, nil
}

func (r *RequestRepository) GetByRequester(ctx context.Context, requesterID primitive.ObjectID, params *utils.PaginationParams) ([]*models.TowRequest, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []*models.TowRequest
	for _, request := range r.requests {
		if request.RequesterID == requesterID {
			all = append(all, cloneRequest(request))
		}
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	if params != nil {
		skip := params.GetSkip()
		if skip >= len(all) {
			return nil, total, nil
		}
		all = all[skip:]
		if limit := params.GetLimit(); limit > 0 && len(all) > limit {
			all = all[:limit]
		}
	}

	return all, total, nil
}

// Candidate bookkeeping
func (r *RequestRepository) AddCandidates(ctx context.Context, id primitive.ObjectID, candidates []models.Candidate, round int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.requests[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	if err := classifyGuardMiss(request, models.RequestStatusPending); err != nil {
		return err
	}

	request.Candidates = append(request.Candidates, candidates...)
	request.FanoutRound = round
	request.UpdatedAt = time.Now()
	request.Version++

	return nil
}

func (r *RequestRepository) UpdateCandidateStatus(ctx context.Context, id, providerID primitive.ObjectID, from, to models.CandidateStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.requests[id]
	if !ok {
		return interfaces.ErrNotFound
	}

	now := time.Now()
	for i := range request.Candidates {
		candidate := &request.Candidates[i]
		if candidate.ProviderID == providerID && candidate.Status == from {
			candidate.Status = to
			candidate.RespondedAt = &now
			request.UpdatedAt = now
			return nil
		}
	}

	return interfaces.ErrNotFound
}

func (r *RequestRepository) TimeoutOutstandingCandidates(ctx context.Context, id primitive.ObjectID, notifiedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.requests[id]
	if !ok {
		return 0, interfaces.ErrNotFound
	}
	if request.Status != models.RequestStatusPending {
		return 0, nil
	}

	var timedOut int64
	for i := range request.Candidates {
		candidate := &request.Candidates[i]
		if candidate.Status == models.CandidateStatusNotified && candidate.NotifiedAt.Before(notifiedBefore) {
			candidate.Status = models.CandidateStatusTimedOut
			timedOut++
		}
	}
	if timedOut > 0 {
		request.UpdatedAt = time.Now()
	}

	return timedOut, nil
}

func (r *RequestRepository) GetPendingForProvider(ctx context.Context, providerID primitive.ObjectID) ([]*models.TowRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var pending []*models.TowRequest
	for _, request := range r.requests {
		if request.Status != models.RequestStatusPending || !request.ExpiresAt.After(now) {
			continue
		}
		candidate := request.CandidateFor(providerID)
		if candidate != nil && candidate.Status == models.CandidateStatusNotified {
			pending = append(pending, cloneRequest(request))
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	return pending, nil
}

// Assignment
func (r *RequestRepository) AssignProvider(ctx context.Context, id, providerID primitive.ObjectID) (*models.TowRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.requests[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	if err := classifyGuardMiss(request, models.RequestStatusPending); err != nil {
		return nil, err
	}

	candidate := request.CandidateFor(providerID)
	if candidate == nil || candidate.Status != models.CandidateStatusNotified {
		return nil, interfaces.ErrNotFound
	}

	now := time.Now()
	assigned := providerID
	request.Status = models.RequestStatusAccepted
	request.AssignedProviderID = &assigned
	request.AssignedAt = &now
	request.UpdatedAt = now
	request.Version++

	candidate.Status = models.CandidateStatusAccepted
	candidate.RespondedAt = &now
	for i := range request.Candidates {
		other := &request.Candidates[i]
		if other.ProviderID != providerID && other.Status == models.CandidateStatusNotified {
			other.Status = models.CandidateStatusRejected
		}
	}

	return cloneRequest(request), nil
}

// Status transitions
func (r *RequestRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.RequestStatus, updates map[string]interface{}) (*models.TowRequest, error) {
	if !models.CanTransition(from, to) {
		return nil, interfaces.ErrInvalidTransition
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.requests[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	if request.Status != from {
		if request.Status.IsTerminal() {
			return nil, interfaces.ErrTerminalState
		}
		return nil, interfaces.ErrAlreadyAssigned
	}

	request.Status = to
	applyRequestUpdates(request, updates)
	request.UpdatedAt = time.Now()
	request.Version++

	// A terminal request releases its idempotency slot so the same key
	// can open a fresh dispatch, matching the MongoDB implementation.
	if to.IsTerminal() && request.IdempotencyKey != "" {
		request.IdempotencyKey = request.IdempotencyKey + ":" + request.ID.Hex()
	}

	return cloneRequest(request), nil
}

// Sweeps
func (r *RequestRepository) ListPending(ctx context.Context) ([]*models.TowRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []*models.TowRequest
	for _, request := range r.requests {
		if request.Status == models.RequestStatusPending {
			pending = append(pending, cloneRequest(request))
		}
	}

	return pending, nil
}

func (r *RequestRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.TowRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*models.TowRequest
	for _, request := range r.requests {
		if request.Status == models.RequestStatusPending && !request.ExpiresAt.After(now) {
			expired = append(expired, cloneRequest(request))
		}
	}

	return expired, nil
}

func classifyGuardMiss(request *models.TowRequest, expected models.RequestStatus) error {
	if request.Status == expected && !request.IsAssigned() {
		return nil
	}
	if request.Status.IsTerminal() {
		return interfaces.ErrTerminalState
	}
	return interfaces.ErrAlreadyAssigned
}

func applyRequestUpdates(request *models.TowRequest, updates map[string]interface{}) {
	for key, value := range updates {
		switch key {
		case "cancel_reason":
			if reason, ok := value.(string); ok {
				request.CancelReason = reason
			}
		case "completed_at":
			if at, ok := value.(time.Time); ok {
				request.CompletedAt = &at
			}
		case "expires_at":
			if at, ok := value.(time.Time); ok {
				request.ExpiresAt = at
			}
		case "fanout_round":
			if round, ok := value.(int); ok {
				request.FanoutRound = round
			}
		}
	}
}

func cloneRequest(request *models.TowRequest) *models.TowRequest {
	clone := *request

	clone.Candidates = make([]models.Candidate, len(request.Candidates))
	copy(clone.Candidates, request.Candidates)

	if request.AssignedProviderID != nil {
		assigned := *request.AssignedProviderID
		clone.AssignedProviderID = &assigned
	}
	if request.AssignedAt != nil {
		at := *request.AssignedAt
		clone.AssignedAt = &at
	}
	if request.CompletedAt != nil {
		at := *request.CompletedAt
		clone.CompletedAt = &at
	}

	return &clone
}
