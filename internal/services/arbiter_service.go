package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
	"gotow/internal/repositories/interfaces"
	"gotow/internal/utils"
	"gotow/pkg/logger"
)

// RespondResult is the arbitration verdict returned to a provider. A
// conflict is a normal outcome, not an error: the snapshot shows who won.
type RespondResult struct {
	Outcome string             `json:"outcome"`
	Request *models.TowRequest `json:"request"`
}

// ArbiterService linearizes provider responses. However many providers
// accept concurrently, exactly one wins; everyone else observes the
// winner through the returned snapshot.
type ArbiterService interface {
	Respond(ctx context.Context, requestID, providerID primitive.ObjectID, accept bool) (*RespondResult, error)
	Progress(ctx context.Context, requestID, providerID primitive.ObjectID, to models.RequestStatus) (*models.TowRequest, error)
}

type arbiterService struct {
	requestRepo  interfaces.RequestRepository
	providerRepo interfaces.ProviderRepository
	eventRepo    interfaces.EventRepository
	tracker      TrackerService
	dispatcher   Dispatcher
	logger       *logger.Logger
}

func NewArbiterService(
	requestRepo interfaces.RequestRepository,
	providerRepo interfaces.ProviderRepository,
	eventRepo interfaces.EventRepository,
	tracker TrackerService,
	dispatcher Dispatcher,
	log *logger.Logger,
) ArbiterService {
	return &arbiterService{
		requestRepo:  requestRepo,
		providerRepo: providerRepo,
		eventRepo:    eventRepo,
		tracker:      tracker,
		dispatcher:   dispatcher,
		logger:       log,
	}
}

func (s *arbiterService) Respond(ctx context.Context, requestID, providerID primitive.ObjectID, accept bool) (*RespondResult, error) {
	if accept {
		return s.accept(ctx, requestID, providerID)
	}
	return s.reject(ctx, requestID, providerID)
}

func (s *arbiterService) accept(ctx context.Context, requestID, providerID primitive.ObjectID) (*RespondResult, error) {
	assigned, err := s.requestRepo.AssignProvider(ctx, requestID, providerID)
	if err == nil {
		if recordErr := s.tracker.RecordTransition(ctx, &models.DispatchEvent{
			RequestID:  requestID,
			Type:       models.EventRequestAssigned,
			FromStatus: models.RequestStatusPending,
			ToStatus:   models.RequestStatusAccepted,
			ProviderID: &providerID,
			Version:    assigned.Version,
		}); recordErr != nil {
			s.logger.WithError(recordErr).WithRequestID(requestID).Error("Failed to record assignment event")
		}

		if availErr := s.providerRepo.SetAvailability(ctx, providerID, false); availErr != nil {
			s.logger.WithError(availErr).WithProviderID(providerID).Warn("Failed to mark winning provider busy")
		}

		return &RespondResult{Outcome: utils.RespondOutcomeAccepted, Request: assigned}, nil
	}

	switch {
	case errors.Is(err, interfaces.ErrAlreadyAssigned), errors.Is(err, interfaces.ErrTerminalState):
		return s.conflict(ctx, requestID, providerID)
	case errors.Is(err, interfaces.ErrNotFound):
		return s.classifyMissingCandidate(ctx, requestID, providerID)
	default:
		return nil, fmt.Errorf("failed to arbitrate acceptance: %w", err)
	}
}

func (s *arbiterService) reject(ctx context.Context, requestID, providerID primitive.ObjectID) (*RespondResult, error) {
	err := s.requestRepo.UpdateCandidateStatus(ctx, requestID, providerID, models.CandidateStatusNotified, models.CandidateStatusRejected)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			// Candidate already resolved, or never invited at all.
			result, classifyErr := s.classifyMissingCandidate(ctx, requestID, providerID)
			if classifyErr != nil {
				return nil, classifyErr
			}
			result.Outcome = utils.RespondOutcomeRejected
			return result, nil
		}
		return nil, fmt.Errorf("failed to record rejection: %w", err)
	}

	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	// Everyone notified so far has declined or timed out; widen the
	// search now instead of waiting for the next sweep.
	if request.Status == models.RequestStatusPending && request.OutstandingCandidates() == 0 && s.dispatcher != nil {
		if err := s.dispatcher.DispatchRound(ctx, requestID); err != nil {
			s.logger.WithError(err).WithRequestID(requestID).Error("Refanout after rejection failed")
		}
		request, err = s.requestRepo.GetByID(ctx, requestID)
		if err != nil {
			return nil, err
		}
	}

	return &RespondResult{Outcome: utils.RespondOutcomeRejected, Request: request}, nil
}

// conflict reports a lost arbitration. The attempt is logged to the
// audit trail at the current version, which version gating keeps away
// from status subscribers.
func (s *arbiterService) conflict(ctx context.Context, requestID, providerID primitive.ObjectID) (*RespondResult, error) {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.eventRepo.Append(ctx, &models.DispatchEvent{
		RequestID:  requestID,
		Type:       models.EventRequestConflict,
		FromStatus: request.Status,
		ToStatus:   request.Status,
		ProviderID: &providerID,
		Version:    request.Version,
		Data:       map[string]interface{}{"attempted_at": now},
	}); err != nil {
		s.logger.WithError(err).WithRequestID(requestID).Warn("Failed to record conflict event")
	}

	return &RespondResult{Outcome: utils.RespondOutcomeConflict, Request: request}, nil
}

func (s *arbiterService) classifyMissingCandidate(ctx context.Context, requestID, providerID primitive.ObjectID) (*RespondResult, error) {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.CandidateFor(providerID) == nil {
		return nil, ErrNotAllowed
	}
	return &RespondResult{Outcome: utils.RespondOutcomeConflict, Request: request}, nil
}

// Progress advances an assigned request through the service lifecycle.
// Only the winning provider may call it.
func (s *arbiterService) Progress(ctx context.Context, requestID, providerID primitive.ObjectID, to models.RequestStatus) (*models.TowRequest, error) {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.AssignedProviderID == nil || *request.AssignedProviderID != providerID {
		return nil, ErrNotAllowed
	}
	if request.Status.IsTerminal() {
		return nil, interfaces.ErrTerminalState
	}
	if !models.CanTransition(request.Status, to) {
		return nil, interfaces.ErrInvalidTransition
	}

	updates := map[string]interface{}{}
	if to == models.RequestStatusCompleted {
		updates["completed_at"] = time.Now()
	}
	if to == models.RequestStatusCancelled {
		updates["cancel_reason"] = "provider_cancelled"
	}

	updated, err := s.requestRepo.UpdateStatus(ctx, requestID, request.Status, to, updates)
	if err != nil {
		return nil, err
	}

	if recordErr := s.tracker.RecordTransition(ctx, &models.DispatchEvent{
		RequestID:  requestID,
		Type:       eventTypeForStatus(to),
		FromStatus: request.Status,
		ToStatus:   to,
		ProviderID: &providerID,
		Version:    updated.Version,
	}); recordErr != nil {
		s.logger.WithError(recordErr).WithRequestID(requestID).Error("Failed to record progress event")
	}

	if to == models.RequestStatusCompleted || to == models.RequestStatusCancelled {
		if err := s.providerRepo.SetAvailability(ctx, providerID, true); err != nil {
			s.logger.WithError(err).WithProviderID(providerID).Warn("Failed to free provider")
		}
	}

	return updated, nil
}

func eventTypeForStatus(status models.RequestStatus) models.EventType {
	switch status {
	case models.RequestStatusOnTheWay:
		return models.EventRequestOnTheWay
	case models.RequestStatusArrived:
		return models.EventRequestArrived
	case models.RequestStatusCompleted:
		return models.EventRequestCompleted
	case models.RequestStatusCancelled:
		return models.EventRequestCancelled
	default:
		return models.EventType(fmt.Sprintf("request_%s", status))
	}
}
