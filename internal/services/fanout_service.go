package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gotow/internal/config"
	"gotow/internal/models"
	"gotow/internal/repositories/interfaces"
	"gotow/internal/utils"
	"gotow/pkg/logger"
	"gotow/pkg/maps"
	"gotow/pkg/push"
	"gotow/pkg/sms"
	"gotow/pkg/transport"
)

// FanoutService expands the candidate set of a pending request in
// rounds. Each round widens the search radius and notifies providers
// not contacted before; a request that exhausts its rounds or its TTL
// without an acceptance is expired.
type FanoutService interface {
	DispatchRound(ctx context.Context, requestID primitive.ObjectID) error
	Sweep(ctx context.Context) error
	RunScheduler(ctx context.Context)
}

type fanoutService struct {
	requestRepo  interfaces.RequestRepository
	providerRepo interfaces.ProviderRepository
	tracker      TrackerService
	deliverer    transport.Deliverer
	pushProvider push.PushProvider
	smsProvider  sms.SMSProvider
	mapsProvider maps.MapsProvider
	config       *config.DispatchConfig
	logger       *logger.Logger
}

func NewFanoutService(
	requestRepo interfaces.RequestRepository,
	providerRepo interfaces.ProviderRepository,
	tracker TrackerService,
	deliverer transport.Deliverer,
	pushProvider push.PushProvider,
	smsProvider sms.SMSProvider,
	mapsProvider maps.MapsProvider,
	cfg *config.DispatchConfig,
	log *logger.Logger,
) FanoutService {
	return &fanoutService{
		requestRepo:  requestRepo,
		providerRepo: providerRepo,
		tracker:      tracker,
		deliverer:    deliverer,
		pushProvider: pushProvider,
		smsProvider:  smsProvider,
		mapsProvider: mapsProvider,
		config:       cfg,
		logger:       log,
	}
}

func (s *fanoutService) DispatchRound(ctx context.Context, requestID primitive.ObjectID) error {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if request.Status != models.RequestStatusPending {
		return nil
	}
	if !request.ExpiresAt.After(time.Now()) {
		return s.expire(ctx, request)
	}

	round := request.FanoutRound + 1
	if round > s.config.MaxFanoutRounds {
		if request.OutstandingCandidates() == 0 {
			return s.expire(ctx, request)
		}
		return nil
	}

	radius := s.radiusForRound(round)
	exclude := make([]primitive.ObjectID, len(request.Candidates))
	for i := range request.Candidates {
		exclude[i] = request.Candidates[i].ProviderID
	}

	lat := request.Location.Latitude()
	lng := request.Location.Longitude()

	providers, err := s.providerRepo.GetNearbyProviders(ctx, lat, lng, radius, exclude, s.config.MaxCandidatesPerRound)
	if err != nil {
		return fmt.Errorf("failed to select providers for round %d: %w", round, err)
	}
	if len(providers) == 0 {
		s.logger.WithRequestID(requestID).Infof("Round %d found no providers within %.1f km", round, radius)
		if round >= s.config.MaxFanoutRounds && request.OutstandingCandidates() == 0 {
			return s.expire(ctx, request)
		}
		// An empty round still counts toward the round budget.
		if err := s.requestRepo.Update(ctx, requestID, map[string]interface{}{"fanout_round": round}); err != nil {
			s.logger.WithError(err).WithRequestID(requestID).Warn("Failed to record empty fanout round")
		}
		return nil
	}

	now := time.Now()
	candidates := make([]models.Candidate, len(providers))
	for i, provider := range providers {
		distance, eta := s.estimate(ctx, provider, lat, lng)
		candidates[i] = models.Candidate{
			ProviderID: provider.ID,
			Status:     models.CandidateStatusNotified,
			DistanceKM: distance,
			ETAMinutes: eta,
			Round:      round,
			NotifiedAt: now,
		}
	}

	if err := s.requestRepo.AddCandidates(ctx, requestID, candidates, round); err != nil {
		// The request left pending while we were selecting; nothing to do.
		if errors.Is(err, interfaces.ErrAlreadyAssigned) || errors.Is(err, interfaces.ErrTerminalState) {
			return nil
		}
		return fmt.Errorf("failed to record round %d candidates: %w", round, err)
	}

	updated, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return err
	}

	if err := s.tracker.RecordTransition(ctx, &models.DispatchEvent{
		RequestID:  requestID,
		Type:       models.EventRequestNotified,
		FromStatus: models.RequestStatusPending,
		ToStatus:   models.RequestStatusPending,
		Version:    updated.Version,
		Data: map[string]interface{}{
			"round":          round,
			"radius_km":      radius,
			"provider_count": len(providers),
		},
	}); err != nil {
		s.logger.WithError(err).WithRequestID(requestID).Error("Failed to record fanout event")
	}

	for i, provider := range providers {
		s.notifyProvider(ctx, updated, provider, &candidates[i])
	}

	return nil
}

func (s *fanoutService) Sweep(ctx context.Context) error {
	pending, err := s.requestRepo.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending requests: %w", err)
	}

	now := time.Now()
	for _, request := range pending {
		if !request.ExpiresAt.After(now) {
			if err := s.expire(ctx, request); err != nil {
				s.logger.WithError(err).WithRequestID(request.ID).Error("Failed to expire request")
			}
			continue
		}

		cutoff := now.Add(-s.config.CandidateTimeout)
		timedOut, err := s.requestRepo.TimeoutOutstandingCandidates(ctx, request.ID, cutoff)
		if err != nil {
			s.logger.WithError(err).WithRequestID(request.ID).Error("Failed to time out candidates")
			continue
		}
		if timedOut > 0 {
			s.logger.WithRequestID(request.ID).Infof("Timed out %d unresponsive candidates", timedOut)
		}

		refreshed, err := s.requestRepo.GetByID(ctx, request.ID)
		if err != nil {
			continue
		}
		if refreshed.Status != models.RequestStatusPending || refreshed.OutstandingCandidates() > 0 {
			continue
		}
		if now.Sub(refreshed.UpdatedAt) < s.config.RoundBackoff {
			continue
		}

		if err := s.DispatchRound(ctx, request.ID); err != nil {
			s.logger.WithError(err).WithRequestID(request.ID).Error("Failed to dispatch next round")
		}
	}

	return nil
}

func (s *fanoutService) RunScheduler(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	s.logger.Infof("Dispatch scheduler running, sweep every %s", s.config.SweepInterval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Dispatch scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.WithError(err).Error("Dispatch sweep failed")
			}
		}
	}
}

func (s *fanoutService) radiusForRound(round int) float64 {
	radius := s.config.SearchRadiusKM * math.Pow(s.config.RadiusGrowthFactor, float64(round-1))
	if radius > s.config.MaxSearchRadiusKM {
		radius = s.config.MaxSearchRadiusKM
	}
	return radius
}

// estimate prefers road based figures from the maps provider and falls
// back to straight line distance at the configured average speed.
func (s *fanoutService) estimate(ctx context.Context, provider *models.Provider, lat, lng float64) (float64, int) {
	distance := utils.CalculateDistance(lat, lng, provider.Location.Latitude(), provider.Location.Longitude())
	eta := utils.EstimateETAMinutes(distance, s.config.AverageSpeedKMH)

	if s.mapsProvider == nil {
		return distance, eta
	}

	route, err := s.mapsProvider.EstimateArrival(ctx,
		maps.Location{Latitude: provider.Location.Latitude(), Longitude: provider.Location.Longitude()},
		maps.Location{Latitude: lat, Longitude: lng},
	)
	if err != nil {
		s.logger.WithError(err).Debug("Route estimate failed, using straight line distance")
		return distance, eta
	}

	return float64(route.DistanceMeters) / 1000, route.DurationSeconds / 60
}

func (s *fanoutService) notifyProvider(ctx context.Context, request *models.TowRequest, provider *models.Provider, candidate *models.Candidate) {
	payload := map[string]interface{}{
		"request_id":  request.ID.Hex(),
		"round":       candidate.Round,
		"distance_km": candidate.DistanceKM,
		"eta_minutes": candidate.ETAMinutes,
		"latitude":    request.Location.Latitude(),
		"longitude":   request.Location.Longitude(),
		"address":     request.Location.Address,
		"reason":      request.EmergencyDetails.Reason,
		"severity":    request.EmergencyDetails.Severity,
		"vehicle":     request.VehicleInfo,
		"expires_at":  request.ExpiresAt,
	}

	if s.deliverer != nil {
		envelope := &transport.Envelope{
			RecipientID: provider.ID,
			RequestID:   request.ID,
			Kind:        "dispatch_offer",
			Payload:     payload,
		}
		if err := s.deliverer.Deliver(ctx, envelope); err != nil {
			s.logger.WithError(err).WithProviderID(provider.ID).Error("Failed to deliver dispatch offer")
		}
	}

	s.sendPushAlert(ctx, request, provider, candidate)
}

func (s *fanoutService) sendPushAlert(ctx context.Context, request *models.TowRequest, provider *models.Provider, candidate *models.Candidate) {
	title := "Towing request nearby"
	body := fmt.Sprintf("%.1f km away, %s severity", candidate.DistanceKM, request.EmergencyDetails.Severity)
	data := map[string]string{
		"request_id": request.ID.Hex(),
		"round":      fmt.Sprintf("%d", candidate.Round),
	}
	ttl := int(s.config.CandidateTimeout.Seconds())

	if s.pushProvider != nil && len(provider.DeviceTokens) > 0 {
		for _, token := range provider.DeviceTokens {
			alert := push.NewDispatchAlert(token.Token, title, body, data, ttl)
			if _, err := s.pushProvider.SendNotification(ctx, alert); err != nil {
				s.logger.WithError(err).WithProviderID(provider.ID).Warn("Push alert failed")
			}
		}
		return
	}

	// No registered device. SMS paging is reserved for critical
	// severity; lower severities wait for the poll endpoint.
	if s.smsProvider != nil && provider.Phone != "" && request.EmergencyDetails.Severity == models.SeverityCritical {
		message := fmt.Sprintf("GoTow: towing needed %.1f km from you. Open the app to respond. Ref %s", candidate.DistanceKM, request.ID.Hex())
		if _, err := s.smsProvider.SendSMS(ctx, &sms.SMSRequest{To: provider.Phone, Message: message}); err != nil {
			s.logger.WithError(err).WithProviderID(provider.ID).Warn("SMS alert failed")
		}
	}
}

func (s *fanoutService) expire(ctx context.Context, request *models.TowRequest) error {
	expired, err := s.requestRepo.UpdateStatus(ctx, request.ID, models.RequestStatusPending, models.RequestStatusExpired, nil)
	if err != nil {
		if errors.Is(err, interfaces.ErrAlreadyAssigned) || errors.Is(err, interfaces.ErrTerminalState) {
			return nil
		}
		return fmt.Errorf("failed to expire request: %w", err)
	}

	return s.tracker.RecordTransition(ctx, &models.DispatchEvent{
		RequestID:  request.ID,
		Type:       models.EventRequestExpired,
		FromStatus: models.RequestStatusPending,
		ToStatus:   models.RequestStatusExpired,
		Version:    expired.Version,
	})
}
