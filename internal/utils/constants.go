package utils

import "time"

// Application Constants
const (
	AppName    = "GoTow"
	AppVersion = "1.0.0"

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1

	// Dispatch Constants
	DefaultSearchRadiusKM   = 10.0
	MaxSearchRadiusKM       = 50.0
	RadiusGrowthFactor      = 1.5
	MaxFanoutRounds         = 3
	FanoutRoundBackoff      = 15 * time.Second
	ProviderResponseTimeout = 45 * time.Second
	RequestTTL              = 10 * time.Minute
	MaxCandidatesPerRound   = 10
	DefaultAverageSpeedKMH  = 30.0

	// Provider Constants
	MinProviderRating              = 1.0
	MaxProviderRating              = 5.0
	ProviderLocationUpdateInterval = 30 * time.Second
	ProviderStaleAfter             = 5 * time.Minute

	// Rate Limiting
	DefaultRateLimit = 100
	SubmitRateLimit  = 5

	// Idempotency
	IdempotencyKeyMaxLength = 128
	IdempotencyReservation  = 10 * time.Minute
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrInvalidInput         = "invalid input"
	ErrInternalServer       = "internal server error"
	ErrUnauthorized         = "unauthorized"
	ErrForbidden            = "forbidden"
	ErrNotFound             = "not found"
	ErrConflict             = "conflict"
	ErrValidationFailed     = "validation failed"
	ErrRequestNotFound      = "request not found"
	ErrProviderNotFound     = "provider not found"
	ErrNoProvidersAvailable = "no providers available"
)

// Cache Keys
const (
	CacheRequestPrefix     = "request:"
	CacheProviderPrefix    = "provider:"
	CacheIdempotencyPrefix = "idem:"
	CacheRateLimitPrefix   = "rate_limit:"
)

// Arbitration outcomes returned to providers on respond.
const (
	RespondOutcomeAccepted = "accepted"
	RespondOutcomeConflict = "conflict"
	RespondOutcomeRejected = "rejected"
)

// Geographic Constants
const (
	EarthRadiusKM    = 6371.0
	EarthRadiusMiles = 3959.0
)
