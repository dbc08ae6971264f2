package services

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
	"gotow/internal/repositories/interfaces"
	"gotow/pkg/logger"
	"gotow/pkg/websocket"
)

// TrackerService is the read side of the dispatcher: current status,
// the committed transition log, and live subscriptions. Delivery to a
// subscriber is version gated, so late or duplicated publishes never
// move a watcher backwards.
type TrackerService interface {
	GetStatus(ctx context.Context, requestID primitive.ObjectID) (*models.TowRequest, error)
	GetEvents(ctx context.Context, requestID primitive.ObjectID, afterVersion int64) ([]*models.DispatchEvent, error)
	RecordTransition(ctx context.Context, event *models.DispatchEvent) error
	Subscribe(requestID primitive.ObjectID, afterVersion int64) *Subscription
	Unsubscribe(subscription *Subscription)
}

// Subscription is one live watcher of a request. Events arrive on the
// channel in version order; a slow consumer loses intermediate events
// rather than blocking the dispatcher, and catches up via GetEvents.
type Subscription struct {
	RequestID primitive.ObjectID
	Events    chan *models.DispatchEvent

	mu          sync.Mutex
	lastVersion int64
}

type trackerService struct {
	requestRepo interfaces.RequestRepository
	eventRepo   interfaces.EventRepository
	wsHandler   *websocket.Handler
	logger      *logger.Logger

	mu            sync.RWMutex
	subscriptions map[primitive.ObjectID]map[*Subscription]bool
}

func NewTrackerService(
	requestRepo interfaces.RequestRepository,
	eventRepo interfaces.EventRepository,
	wsHandler *websocket.Handler,
	log *logger.Logger,
) TrackerService {
	return &trackerService{
		requestRepo:   requestRepo,
		eventRepo:     eventRepo,
		wsHandler:     wsHandler,
		logger:        log,
		subscriptions: make(map[primitive.ObjectID]map[*Subscription]bool),
	}
}

func (s *trackerService) GetStatus(ctx context.Context, requestID primitive.ObjectID) (*models.TowRequest, error) {
	return s.requestRepo.GetByID(ctx, requestID)
}

func (s *trackerService) GetEvents(ctx context.Context, requestID primitive.ObjectID, afterVersion int64) ([]*models.DispatchEvent, error) {
	if _, err := s.requestRepo.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	return s.eventRepo.GetByRequest(ctx, requestID, afterVersion)
}

func (s *trackerService) RecordTransition(ctx context.Context, event *models.DispatchEvent) error {
	if err := s.eventRepo.Append(ctx, event); err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}

	s.logger.LogDispatchEvent(event.RequestID, string(event.Type), map[string]interface{}{
		"from_status": event.FromStatus,
		"to_status":   event.ToStatus,
		"version":     event.Version,
	})

	s.publish(event)

	if s.wsHandler != nil {
		data := map[string]interface{}{
			"request_id": event.RequestID.Hex(),
			"status":     event.ToStatus,
			"version":    event.Version,
		}
		if event.ProviderID != nil {
			data["provider_id"] = event.ProviderID.Hex()
		}
		s.wsHandler.SendRequestUpdate(event.RequestID, string(event.Type), data)
	}

	return nil
}

func (s *trackerService) Subscribe(requestID primitive.ObjectID, afterVersion int64) *Subscription {
	subscription := &Subscription{
		RequestID:   requestID,
		Events:      make(chan *models.DispatchEvent, 16),
		lastVersion: afterVersion,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscriptions[requestID] == nil {
		s.subscriptions[requestID] = make(map[*Subscription]bool)
	}
	s.subscriptions[requestID][subscription] = true

	return subscription
}

func (s *trackerService) Unsubscribe(subscription *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	watchers, ok := s.subscriptions[subscription.RequestID]
	if !ok || !watchers[subscription] {
		return
	}

	delete(watchers, subscription)
	if len(watchers) == 0 {
		delete(s.subscriptions, subscription.RequestID)
	}
	close(subscription.Events)
}

func (s *trackerService) publish(event *models.DispatchEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for subscription := range s.subscriptions[event.RequestID] {
		subscription.mu.Lock()
		if event.Version <= subscription.lastVersion {
			subscription.mu.Unlock()
			continue
		}
		subscription.lastVersion = event.Version
		subscription.mu.Unlock()

		select {
		case subscription.Events <- event:
		default:
			s.logger.WithRequestID(event.RequestID).Warn("Subscriber channel full, event dropped")
		}
	}
}
