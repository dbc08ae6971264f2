package maps

import "context"

// MapsProvider resolves breakdown coordinates to addresses and produces
// road based travel estimates for candidate ranking. When no provider is
// configured the dispatcher falls back to straight line estimates.
type MapsProvider interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*GeocodeResponse, error)
	EstimateArrival(ctx context.Context, origin, destination Location) (*RouteEstimate, error)
}

type GeocodeResponse struct {
	Results []GeocodeResult `json:"results"`
}

type GeocodeResult struct {
	PlaceID string   `json:"place_id"`
	Address string   `json:"formatted_address"`
	Types   []string `json:"types"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RouteEstimate is the driving distance and time between a provider and
// a breakdown site.
type RouteEstimate struct {
	DistanceMeters  int `json:"distance_meters"`
	DurationSeconds int `json:"duration_seconds"`
}
