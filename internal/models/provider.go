package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProviderStatus string

const (
	ProviderStatusOnline  ProviderStatus = "online"
	ProviderStatusOffline ProviderStatus = "offline"
	ProviderStatusBusy    ProviderStatus = "busy"
)

type DeviceToken struct {
	Platform string `json:"platform" bson:"platform"` // fcm, apns
	Token    string `json:"token" bson:"token"`
}

type Provider struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID        primitive.ObjectID `json:"user_id" bson:"user_id" validate:"required"`
	Name          string             `json:"name" bson:"name"`
	Phone         string             `json:"phone" bson:"phone"`
	Status        ProviderStatus     `json:"status" bson:"status" default:"offline"`
	Available     bool               `json:"available" bson:"available"`
	TowingCapable bool               `json:"towing_capable" bson:"towing_capable"`
	TruckType     string             `json:"truck_type" bson:"truck_type"` // flatbed, wheel_lift, hook_and_chain, integrated
	TruckPlate    string             `json:"truck_plate" bson:"truck_plate"`
	MaxTowWeight  float64            `json:"max_tow_weight" bson:"max_tow_weight"` // kilograms
	Location      Location           `json:"location" bson:"location"`
	DeviceTokens  []DeviceToken      `json:"device_tokens" bson:"device_tokens"`
	Rating        float64            `json:"rating" bson:"rating"`
	TotalJobs     int64              `json:"total_jobs" bson:"total_jobs"`
	LastSeenAt    time.Time          `json:"last_seen_at" bson:"last_seen_at"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
}

// Eligible reports whether the provider may be fanned out to at all.
func (p *Provider) Eligible() bool {
	return p.TowingCapable && p.Available && p.Status == ProviderStatusOnline
}
