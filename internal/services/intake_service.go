package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/config"
	"gotow/internal/models"
	"gotow/internal/repositories/interfaces"
	"gotow/internal/utils"
	"gotow/pkg/logger"
	"gotow/pkg/transport"
)

// Dispatcher kicks candidate fanout for a request. FanoutService is the
// production implementation; tests substitute a recorder.
type Dispatcher interface {
	DispatchRound(ctx context.Context, requestID primitive.ObjectID) error
}

// IntakeService accepts, deduplicates and cancels towing requests.
type IntakeService interface {
	Submit(ctx context.Context, input *SubmitInput) (*models.TowRequest, bool, error)
	Get(ctx context.Context, requestID primitive.ObjectID) (*models.TowRequest, error)
	Cancel(ctx context.Context, requestID, requesterID primitive.ObjectID, reason string) (*models.TowRequest, error)
	GetActiveByRequester(ctx context.Context, requesterID primitive.ObjectID) ([]*models.TowRequest, error)
	GetHistory(ctx context.Context, requesterID primitive.ObjectID, params *utils.PaginationParams) ([]*models.TowRequest, int64, error)
}

type SubmitInput struct {
	RequesterID    primitive.ObjectID
	IdempotencyKey string
	VehicleInfo    models.VehicleInfo
	Latitude       float64
	Longitude      float64
	Address        string
	AccuracyMeters float64
	Reason         string
	Description    string
	Severity       models.Severity
}

type intakeService struct {
	requestRepo interfaces.RequestRepository
	cache       CacheService
	tracker     TrackerService
	dispatcher  Dispatcher
	deliverer   transport.Deliverer
	config      *config.DispatchConfig
	logger      *logger.Logger
}

func NewIntakeService(
	requestRepo interfaces.RequestRepository,
	cache CacheService,
	tracker TrackerService,
	dispatcher Dispatcher,
	deliverer transport.Deliverer,
	cfg *config.DispatchConfig,
	log *logger.Logger,
) IntakeService {
	return &intakeService{
		requestRepo: requestRepo,
		cache:       cache,
		tracker:     tracker,
		dispatcher:  dispatcher,
		deliverer:   deliverer,
		config:      cfg,
		logger:      log,
	}
}

// Submit creates a request and starts the first fanout round. A replay
// carrying a known idempotency key returns the original request instead
// of opening a second dispatch. The second return value reports whether
// a new request was created.
func (s *intakeService) Submit(ctx context.Context, input *SubmitInput) (*models.TowRequest, bool, error) {
	if err := s.validate(input); err != nil {
		return nil, false, err
	}

	if input.IdempotencyKey != "" {
		existing, err := s.requestRepo.GetByIdempotencyKey(ctx, input.RequesterID, input.IdempotencyKey)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, interfaces.ErrNotFound) {
			return nil, false, err
		}

		// Reserve the key so concurrent replays collapse onto one
		// insert. The unique index catches whatever slips through.
		if s.cache != nil {
			key := utils.CacheIdempotencyPrefix + input.RequesterID.Hex() + ":" + input.IdempotencyKey
			reserved, err := s.cache.SetNX(ctx, key, 1, utils.IdempotencyReservation)
			if err == nil && !reserved {
				if existing, err := s.requestRepo.GetByIdempotencyKey(ctx, input.RequesterID, input.IdempotencyKey); err == nil {
					return existing, false, nil
				}
			}
		}
	}

	location := models.NewLocation(input.Latitude, input.Longitude)
	location.Address = input.Address
	location.AccuracyMeters = input.AccuracyMeters

	request := &models.TowRequest{
		RequesterID:    input.RequesterID,
		IdempotencyKey: input.IdempotencyKey,
		VehicleInfo:    input.VehicleInfo,
		Location:       location,
		EmergencyDetails: models.EmergencyDetails{
			Reason:      input.Reason,
			Description: input.Description,
			Severity:    input.Severity,
		},
		ExpiresAt: time.Now().Add(s.config.RequestTTL),
	}

	if err := s.requestRepo.Create(ctx, request); err != nil {
		if errors.Is(err, interfaces.ErrDuplicateKey) && input.IdempotencyKey != "" {
			existing, lookupErr := s.requestRepo.GetByIdempotencyKey(ctx, input.RequesterID, input.IdempotencyKey)
			if lookupErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	if err := s.tracker.RecordTransition(ctx, &models.DispatchEvent{
		RequestID:  request.ID,
		Type:       models.EventRequestCreated,
		FromStatus: models.RequestStatusPending,
		ToStatus:   models.RequestStatusPending,
		Version:    request.Version,
	}); err != nil {
		s.logger.WithError(err).WithRequestID(request.ID).Error("Failed to record creation event")
	}

	if s.dispatcher != nil {
		// The first round runs off the request goroutine so Submit
		// returns as soon as the record is durable. The round outlives
		// the HTTP request, bounded by the request TTL instead.
		dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.RequestTTL)
		go func() {
			defer cancel()
			if err := s.dispatcher.DispatchRound(dispatchCtx, request.ID); err != nil {
				// The sweep loop retries; submission itself has succeeded.
				s.logger.WithError(err).WithRequestID(request.ID).Error("First fanout round failed")
			}
		}()
	}

	return request, true, nil
}

func (s *intakeService) Get(ctx context.Context, requestID primitive.ObjectID) (*models.TowRequest, error) {
	return s.requestRepo.GetByID(ctx, requestID)
}

func (s *intakeService) GetActiveByRequester(ctx context.Context, requesterID primitive.ObjectID) ([]*models.TowRequest, error) {
	return s.requestRepo.GetActiveByRequester(ctx, requesterID)
}

func (s *intakeService) GetHistory(ctx context.Context, requesterID primitive.ObjectID, params *utils.PaginationParams) ([]*models.TowRequest, int64, error) {
	return s.requestRepo.GetByRequester(ctx, requesterID, params)
}

// Cancel is idempotent: cancelling an already terminal request returns
// its snapshot unchanged.
func (s *intakeService) Cancel(ctx context.Context, requestID, requesterID primitive.ObjectID, reason string) (*models.TowRequest, error) {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.RequesterID != requesterID {
		return nil, ErrNotAllowed
	}
	if request.Status.IsTerminal() {
		return request, nil
	}
	if !models.CanTransition(request.Status, models.RequestStatusCancelled) {
		return nil, interfaces.ErrInvalidTransition
	}

	if reason == "" {
		reason = "requester_cancelled"
	}

	cancelled, err := s.requestRepo.UpdateStatus(ctx, requestID, request.Status, models.RequestStatusCancelled, map[string]interface{}{
		"cancel_reason": reason,
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrTerminalState) {
			// Lost a race against expiry or another cancel.
			return s.requestRepo.GetByID(ctx, requestID)
		}
		return nil, err
	}

	if err := s.tracker.RecordTransition(ctx, &models.DispatchEvent{
		RequestID:  requestID,
		Type:       models.EventRequestCancelled,
		FromStatus: request.Status,
		ToStatus:   models.RequestStatusCancelled,
		ProviderID: cancelled.AssignedProviderID,
		Version:    cancelled.Version,
		Data:       map[string]interface{}{"reason": reason},
	}); err != nil {
		s.logger.WithError(err).WithRequestID(requestID).Error("Failed to record cancellation event")
	}

	if cancelled.AssignedProviderID != nil && s.deliverer != nil {
		envelope := &transport.Envelope{
			RecipientID: *cancelled.AssignedProviderID,
			RequestID:   requestID,
			Kind:        "request_cancelled",
			Payload: map[string]interface{}{
				"request_id": requestID.Hex(),
				"reason":     reason,
			},
		}
		if err := s.deliverer.Deliver(ctx, envelope); err != nil {
			s.logger.WithError(err).WithRequestID(requestID).Error("Failed to notify provider of cancellation")
		}
	}

	return cancelled, nil
}

func (s *intakeService) validate(input *SubmitInput) error {
	if input.RequesterID.IsZero() {
		return fmt.Errorf("%w: requester id is required", ErrValidation)
	}
	if !utils.IsValidCoordinates(input.Latitude, input.Longitude) {
		return fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}
	if !input.Severity.IsValid() {
		return fmt.Errorf("%w: unknown severity %q", ErrValidation, input.Severity)
	}
	if !utils.IsValidIdempotencyKey(input.IdempotencyKey) {
		return fmt.Errorf("%w: idempotency key too long", ErrValidation)
	}
	if input.VehicleInfo.Plate == "" {
		return fmt.Errorf("%w: vehicle plate is required", ErrValidation)
	}
	return nil
}
