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

type ProviderRepository struct {
	mu        sync.Mutex
	providers map[primitive.ObjectID]*models.Provider
}

func NewProviderRepository() *ProviderRepository {
	return &ProviderRepository{
		providers: make(map[primitive.ObjectID]*models.Provider),
	}
}

// Basic CRUD operations
func (r *ProviderRepository) Create(ctx context.Context, provider *models.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.providers {
		if existing.UserID == provider.UserID {
			return interfaces.ErrDuplicateKey
		}
	}

	provider.ID = primitive.NewObjectID()
	provider.CreatedAt = time.Now()
	provider.UpdatedAt = provider.CreatedAt

	r.providers[provider.ID] = cloneProvider(provider)

	return nil
}

func (r *ProviderRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	provider, ok := r.providers[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}

	return cloneProvider(provider), nil
}

func (r *ProviderRepository) GetByUserID(ctx context.Context, userID primitive.ObjectID) (*models.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, provider := range r.providers {
		if provider.UserID == userID {
			return cloneProvider(provider), nil
		}
	}

	return nil, interfaces.ErrNotFound
}

func (r *ProviderRepository) Update(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	provider, ok := r.providers[id]
	if !ok {
		return interfaces.ErrNotFound
	}

	applyProviderUpdates(provider, updates)
	provider.UpdatedAt = time.Now()

	return nil
}

// Fanout selection
func (r *ProviderRepository) GetNearbyProviders(ctx context.Context, lat, lng, radiusKM float64, exclude []primitive.ObjectID, limit int) ([]*models.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	excluded := make(map[primitive.ObjectID]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	type ranked struct {
		provider *models.Provider
		distance float64
	}

	var matches []ranked
	for _, provider := range r.providers {
		if excluded[provider.ID] || !provider.Eligible() || !provider.Location.HasCoordinates() {
			continue
		}
		distance := utils.CalculateDistance(lat, lng, provider.Location.Latitude(), provider.Location.Longitude())
		if distance <= radiusKM {
			matches = append(matches, ranked{provider: cloneProvider(provider), distance: distance})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	providers := make([]*models.Provider, len(matches))
	for i, match := range matches {
		providers[i] = match.provider
	}

	return providers, nil
}

// Availability and presence
func (r *ProviderRepository) SetAvailability(ctx context.Context, id primitive.ObjectID, available bool) error {
	return r.Update(ctx, id, map[string]interface{}{"available": available})
}

func (r *ProviderRepository) SetStatus(ctx context.Context, id primitive.ObjectID, status models.ProviderStatus) error {
	return r.Update(ctx, id, map[string]interface{}{"status": status})
}

func (r *ProviderRepository) UpdateLocation(ctx context.Context, id primitive.ObjectID, location models.Location) error {
	return r.Update(ctx, id, map[string]interface{}{
		"location":     location,
		"last_seen_at": time.Now(),
	})
}

func (r *ProviderRepository) UpdateLastSeen(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return r.Update(ctx, id, map[string]interface{}{"last_seen_at": at})
}

// Device tokens
func (r *ProviderRepository) AddDeviceToken(ctx context.Context, id primitive.ObjectID, token models.DeviceToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	provider, ok := r.providers[id]
	if !ok {
		return interfaces.ErrNotFound
	}

	for _, existing := range provider.DeviceTokens {
		if existing == token {
			return nil
		}
	}
	provider.DeviceTokens = append(provider.DeviceTokens, token)
	provider.UpdatedAt = time.Now()

	return nil
}

func (r *ProviderRepository) RemoveDeviceToken(ctx context.Context, id primitive.ObjectID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	provider, ok := r.providers[id]
	if !ok {
		return interfaces.ErrNotFound
	}

	tokens := provider.DeviceTokens[:0]
	for _, existing := range provider.DeviceTokens {
		if existing.Token != token {
			tokens = append(tokens, existing)
		}
	}
	provider.DeviceTokens = tokens
	provider.UpdatedAt = time.Now()

	return nil
}

func applyProviderUpdates(provider *models.Provider, updates map[string]interface{}) {
	for key, value := range updates {
		switch key {
		case "available":
			if available, ok := value.(bool); ok {
				provider.Available = available
			}
		case "status":
			if status, ok := value.(models.ProviderStatus); ok {
				provider.Status = status
			}
		case "location":
			if location, ok := value.(models.Location); ok {
				provider.Location = location
			}
		case "last_seen_at":
			if at, ok := value.(time.Time); ok {
				provider.LastSeenAt = at
			}
		case "name":
			if name, ok := value.(string); ok {
				provider.Name = name
			}
		case "towing_capable":
			if capable, ok := value.(bool); ok {
				provider.TowingCapable = capable
			}
		}
	}
}

func cloneProvider(provider *models.Provider) *models.Provider {
	clone := *provider

	clone.DeviceTokens = make([]models.DeviceToken, len(provider.DeviceTokens))
	copy(clone.DeviceTokens, provider.DeviceTokens)

	if provider.Location.Coordinates != nil {
		clone.Location.Coordinates = make([]float64, len(provider.Location.Coordinates))
		copy(clone.Location.Coordinates, provider.Location.Coordinates)
	}

	return &clone
}
