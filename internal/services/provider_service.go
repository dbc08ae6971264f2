package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/models"
	"gotow/internal/repositories/interfaces"
	"gotow/internal/utils"
	"gotow/pkg/logger"
	"gotow/pkg/transport"
)

// ProviderService manages the provider side of dispatch: registration,
// availability, location, device tokens, and the poll surfaces.
type ProviderService interface {
	Register(ctx context.Context, provider *models.Provider) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Provider, error)
	GetByUserID(ctx context.Context, userID primitive.ObjectID) (*models.Provider, error)

	SetAvailability(ctx context.Context, id primitive.ObjectID, available bool) error
	SetStatus(ctx context.Context, id primitive.ObjectID, status models.ProviderStatus) error
	UpdateLocation(ctx context.Context, id primitive.ObjectID, lat, lng float64) error

	AddDeviceToken(ctx context.Context, id primitive.ObjectID, platform, token string) error
	RemoveDeviceToken(ctx context.Context, id primitive.ObjectID, token string) error

	// Poll surfaces for providers without a live websocket.
	GetPendingOffers(ctx context.Context, id primitive.ObjectID) ([]*models.TowRequest, error)
	DrainDeliveries(ctx context.Context, id primitive.ObjectID) ([]*transport.Envelope, error)
}

type providerService struct {
	providerRepo interfaces.ProviderRepository
	requestRepo  interfaces.RequestRepository
	deliverer    *transport.CompositeDeliverer
	logger       *logger.Logger
}

func NewProviderService(
	providerRepo interfaces.ProviderRepository,
	requestRepo interfaces.RequestRepository,
	deliverer *transport.CompositeDeliverer,
	log *logger.Logger,
) ProviderService {
	return &providerService{
		providerRepo: providerRepo,
		requestRepo:  requestRepo,
		deliverer:    deliverer,
		logger:       log,
	}
}

func (s *providerService) Register(ctx context.Context, provider *models.Provider) error {
	if provider.UserID.IsZero() {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if provider.Phone != "" && !utils.IsValidPhone(provider.Phone) {
		return fmt.Errorf("%w: malformed phone number", ErrValidation)
	}
	if provider.Status == "" {
		provider.Status = models.ProviderStatusOffline
	}

	if err := s.providerRepo.Create(ctx, provider); err != nil {
		return fmt.Errorf("failed to register provider: %w", err)
	}

	s.logger.WithProviderID(provider.ID).Info("Provider registered")

	return nil
}

func (s *providerService) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Provider, error) {
	return s.providerRepo.GetByID(ctx, id)
}

func (s *providerService) GetByUserID(ctx context.Context, userID primitive.ObjectID) (*models.Provider, error) {
	return s.providerRepo.GetByUserID(ctx, userID)
}

func (s *providerService) SetAvailability(ctx context.Context, id primitive.ObjectID, available bool) error {
	return s.providerRepo.SetAvailability(ctx, id, available)
}

func (s *providerService) SetStatus(ctx context.Context, id primitive.ObjectID, status models.ProviderStatus) error {
	return s.providerRepo.SetStatus(ctx, id, status)
}

func (s *providerService) UpdateLocation(ctx context.Context, id primitive.ObjectID, lat, lng float64) error {
	if !utils.IsValidCoordinates(lat, lng) {
		return fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}

	if err := s.providerRepo.UpdateLocation(ctx, id, models.NewLocation(lat, lng)); err != nil {
		return err
	}

	return s.providerRepo.UpdateLastSeen(ctx, id, time.Now())
}

func (s *providerService) AddDeviceToken(ctx context.Context, id primitive.ObjectID, platform, token string) error {
	if platform != "fcm" && platform != "apns" {
		return fmt.Errorf("%w: unknown push platform %q", ErrValidation, platform)
	}
	if token == "" {
		return fmt.Errorf("%w: empty device token", ErrValidation)
	}

	return s.providerRepo.AddDeviceToken(ctx, id, models.DeviceToken{Platform: platform, Token: token})
}

func (s *providerService) RemoveDeviceToken(ctx context.Context, id primitive.ObjectID, token string) error {
	return s.providerRepo.RemoveDeviceToken(ctx, id, token)
}

func (s *providerService) GetPendingOffers(ctx context.Context, id primitive.ObjectID) ([]*models.TowRequest, error) {
	return s.requestRepo.GetPendingForProvider(ctx, id)
}

func (s *providerService) DrainDeliveries(ctx context.Context, id primitive.ObjectID) ([]*transport.Envelope, error) {
	if s.deliverer == nil {
		return nil, nil
	}
	return s.deliverer.Drain(ctx, id)
}
