package config

import (
	"time"
)

// DispatchConfig tunes fanout, arbitration timeouts and request expiry.
type DispatchConfig struct {
	SearchRadiusKM        float64       `yaml:"search_radius_km"`
	MaxSearchRadiusKM     float64       `yaml:"max_search_radius_km"`
	RadiusGrowthFactor    float64       `yaml:"radius_growth_factor"`
	MaxFanoutRounds       int           `yaml:"max_fanout_rounds"`
	RoundBackoff          time.Duration `yaml:"round_backoff"`
	CandidateTimeout      time.Duration `yaml:"candidate_timeout"`
	RequestTTL            time.Duration `yaml:"request_ttl"`
	MaxCandidatesPerRound int           `yaml:"max_candidates_per_round"`
	SweepInterval         time.Duration `yaml:"sweep_interval"`
	AverageSpeedKMH       float64       `yaml:"average_speed_kmh"`
}

func loadDispatchConfig() *DispatchConfig {
	return &DispatchConfig{
		SearchRadiusKM:        getEnvAsFloat64("DISPATCH_SEARCH_RADIUS_KM", 10.0),
		MaxSearchRadiusKM:     getEnvAsFloat64("DISPATCH_MAX_SEARCH_RADIUS_KM", 50.0),
		RadiusGrowthFactor:    getEnvAsFloat64("DISPATCH_RADIUS_GROWTH_FACTOR", 1.5),
		MaxFanoutRounds:       getEnvAsInt("DISPATCH_MAX_FANOUT_ROUNDS", 3),
		RoundBackoff:          getEnvAsDuration("DISPATCH_ROUND_BACKOFF", 15*time.Second),
		CandidateTimeout:      getEnvAsDuration("DISPATCH_CANDIDATE_TIMEOUT", 45*time.Second),
		RequestTTL:            getEnvAsDuration("DISPATCH_REQUEST_TTL", 10*time.Minute),
		MaxCandidatesPerRound: getEnvAsInt("DISPATCH_MAX_CANDIDATES_PER_ROUND", 10),
		SweepInterval:         getEnvAsDuration("DISPATCH_SWEEP_INTERVAL", 5*time.Second),
		AverageSpeedKMH:       getEnvAsFloat64("DISPATCH_AVERAGE_SPEED_KMH", 30.0),
	}
}
