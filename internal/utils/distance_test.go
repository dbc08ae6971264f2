package utils

import (
	"math"
	"testing"
)

func TestCalculateDistance(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantKM                 float64
		toleranceKM            float64
	}{
		{"same point", 12.9716, 77.5946, 12.9716, 77.5946, 0, 0.001},
		{"bangalore to chennai", 12.9716, 77.5946, 13.0827, 80.2707, 290, 10},
		{"one degree latitude", 0, 0, 1, 0, 111.2, 1},
		{"across the equator", -0.5, 10, 0.5, 10, 111.2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateDistance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.wantKM) > tt.toleranceKM {
				t.Errorf("CalculateDistance() = %.2f km, want %.2f +- %.2f", got, tt.wantKM, tt.toleranceKM)
			}
		})
	}
}

func TestCalculateDistanceIsSymmetric(t *testing.T) {
	a := CalculateDistance(12.9716, 77.5946, 13.0827, 80.2707)
	b := CalculateDistance(13.0827, 80.2707, 12.9716, 77.5946)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("Distance should be symmetric: %f vs %f", a, b)
	}
}

func TestIsWithinRadius(t *testing.T) {
	// Roughly 1.1 km apart.
	if !IsWithinRadius(12.9716, 77.5946, 12.9816, 77.5946, 2) {
		t.Error("Point 1.1 km away should be within a 2 km radius")
	}
	if IsWithinRadius(12.9716, 77.5946, 12.9816, 77.5946, 1) {
		t.Error("Point 1.1 km away should not be within a 1 km radius")
	}
}

func TestEstimateETAMinutes(t *testing.T) {
	tests := []struct {
		name       string
		distanceKM float64
		speedKMH   float64
		want       int
	}{
		{"half hour at city speed", 15, 30, 30},
		{"rounds up", 1, 30, 2},
		{"zero distance", 0, 30, 0},
		{"zero speed falls back to default", 30, 0, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateETAMinutes(tt.distanceKM, tt.speedKMH); got != tt.want {
				t.Errorf("EstimateETAMinutes(%.1f, %.1f) = %d, want %d", tt.distanceKM, tt.speedKMH, got, tt.want)
			}
		})
	}
}
