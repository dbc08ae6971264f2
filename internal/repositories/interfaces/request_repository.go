package interfaces

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
	"gotow/internal/utils"
)

type RequestRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, request *models.TowRequest) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.TowRequest, error)
	Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error

	// Idempotency. Matches non-terminal requests only; a terminal
	// request releases its key so a replay opens a fresh dispatch.
	GetByIdempotencyKey(ctx context.Context, requesterID primitive.ObjectID, key string) (*models.TowRequest, error)

	// Requester views
	GetActiveByRequester(ctx context.Context, requesterID primitive.ObjectID) ([]*models.TowRequest, error)
	GetByRequester(ctx context.Context, requesterID primitive.ObjectID, params *utils.PaginationParams) ([]*models.TowRequest, int64, error)

	// Candidate bookkeeping
	AddCandidates(ctx context.Context, id primitive.ObjectID, candidates []models.Candidate, round int) error
	UpdateCandidateStatus(ctx context.Context, id, providerID primitive.ObjectID, from, to models.CandidateStatus) error
	TimeoutOutstandingCandidates(ctx context.Context, id primitive.ObjectID, notifiedBefore time.Time) (int64, error)
	GetPendingForProvider(ctx context.Context, providerID primitive.ObjectID) ([]*models.TowRequest, error)

	// Assignment. Exactly one caller wins per request; losers get
	// ErrAlreadyAssigned with the request left untouched.
	AssignProvider(ctx context.Context, id, providerID primitive.ObjectID) (*models.TowRequest, error)

	// Status transitions, compare-and-swap on the current status.
	UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.RequestStatus, updates map[string]interface{}) (*models.TowRequest, error)

	// Sweeps
	ListPending(ctx context.Context) ([]*models.TowRequest, error)
	ListExpired(ctx context.Context, now time.Time) ([]*models.TowRequest, error)
}
