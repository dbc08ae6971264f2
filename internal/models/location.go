package models

import (
	"time"
)

type Location struct {
	Type           string    `json:"type" bson:"type" default:"Point"`
	Coordinates    []float64 `json:"coordinates" bson:"coordinates" validate:"required,len=2"`
	Address        string    `json:"address" bson:"address"`
	City           string    `json:"city" bson:"city"`
	AccuracyMeters float64   `json:"accuracy_meters" bson:"accuracy_meters"`
	Timestamp      time.Time `json:"timestamp" bson:"timestamp"`
}

func NewLocation(lat, lng float64) Location {
	return Location{
		Type:        "Point",
		Coordinates: []float64{lng, lat},
		Timestamp:   time.Now(),
	}
}

func (l Location) Latitude() float64 {
	if len(l.Coordinates) >= 2 {
		return l.Coordinates[1]
	}
	return 0
}

func (l Location) Longitude() float64 {
	if len(l.Coordinates) >= 1 {
		return l.Coordinates[0]
	}
	return 0
}

// HasCoordinates reports whether the location carries a usable GeoJSON point.
func (l Location) HasCoordinates() bool {
	return len(l.Coordinates) == 2
}
