package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RequestStatus string
type Severity string
type CandidateStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusAccepted  RequestStatus = "accepted"
	RequestStatusOnTheWay  RequestStatus = "on_the_way"
	RequestStatusArrived   RequestStatus = "arrived"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusCancelled RequestStatus = "cancelled"
	RequestStatusExpired   RequestStatus = "expired"

	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"

	CandidateStatusNotified CandidateStatus = "notified"
	CandidateStatusAccepted CandidateStatus = "accepted"
	CandidateStatusRejected CandidateStatus = "rejected"
	CandidateStatusTimedOut CandidateStatus = "timed_out"
)

type VehicleInfo struct {
	Type  string `json:"type" bson:"type"`
	Brand string `json:"brand" bson:"brand"`
	Model string `json:"model" bson:"model"`
	Year  int    `json:"year" bson:"year"`
	Plate string `json:"plate" bson:"plate" validate:"required"`
}

type EmergencyDetails struct {
	Reason      string   `json:"reason" bson:"reason"`
	Description string   `json:"description" bson:"description"`
	Severity    Severity `json:"severity" bson:"severity" validate:"required"`
}

// Candidate records one notified provider and its per-provider sub-status.
type Candidate struct {
	ProviderID  primitive.ObjectID `json:"provider_id" bson:"provider_id"`
	Status      CandidateStatus    `json:"status" bson:"status"`
	DistanceKM  float64            `json:"distance_km" bson:"distance_km"`
	ETAMinutes  int                `json:"eta_minutes" bson:"eta_minutes"`
	Round       int                `json:"round" bson:"round"`
	NotifiedAt  time.Time          `json:"notified_at" bson:"notified_at"`
	RespondedAt *time.Time         `json:"responded_at" bson:"responded_at"`
}

type TowRequest struct {
	ID                 primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	RequesterID        primitive.ObjectID  `json:"requester_id" bson:"requester_id" validate:"required"`
	IdempotencyKey     string              `json:"idempotency_key" bson:"idempotency_key"`
	VehicleInfo        VehicleInfo         `json:"vehicle_info" bson:"vehicle_info" validate:"required"`
	Location           Location            `json:"location" bson:"location" validate:"required"`
	EmergencyDetails   EmergencyDetails    `json:"emergency_details" bson:"emergency_details" validate:"required"`
	Status             RequestStatus       `json:"status" bson:"status" default:"pending"`
	AssignedProviderID *primitive.ObjectID `json:"assigned_provider_id" bson:"assigned_provider_id"`
	Candidates         []Candidate         `json:"candidates" bson:"candidates"`
	FanoutRound        int                 `json:"fanout_round" bson:"fanout_round"`
	Version            int64               `json:"version" bson:"version"`
	CancelReason       string              `json:"cancel_reason,omitempty" bson:"cancel_reason,omitempty"`
	CreatedAt          time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at" bson:"updated_at"`
	ExpiresAt          time.Time           `json:"expires_at" bson:"expires_at"`
	AssignedAt         *time.Time          `json:"assigned_at" bson:"assigned_at"`
	CompletedAt        *time.Time          `json:"completed_at" bson:"completed_at"`
}

// AllowedTransitions encodes the request lifecycle. States are monotonic:
// once a state is left it is never revisited.
var AllowedTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending:  {RequestStatusAccepted, RequestStatusCancelled, RequestStatusExpired},
	RequestStatusAccepted: {RequestStatusOnTheWay, RequestStatusCancelled},
	RequestStatusOnTheWay: {RequestStatusArrived, RequestStatusCancelled},
	RequestStatusArrived:  {RequestStatusCompleted},
}

func CanTransition(from, to RequestStatus) bool {
	for _, next := range AllowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusCancelled || s == RequestStatusExpired
}

// TerminalStatuses returns the statuses with no outgoing transitions,
// for use in query filters.
func TerminalStatuses() []RequestStatus {
	return []RequestStatus{RequestStatusCompleted, RequestStatusCancelled, RequestStatusExpired}
}

func (s Severity) IsValid() bool {
	return s == SeverityCritical || s == SeverityHigh || s == SeverityMedium
}

// CandidateFor returns the candidate entry for a provider, or nil if the
// provider was never notified for this request.
func (r *TowRequest) CandidateFor(providerID primitive.ObjectID) *Candidate {
	for i := range r.Candidates {
		if r.Candidates[i].ProviderID == providerID {
			return &r.Candidates[i]
		}
	}
	return nil
}

// OutstandingCandidates counts candidates still in the notified sub-status.
func (r *TowRequest) OutstandingCandidates() int {
	count := 0
	for i := range r.Candidates {
		if r.Candidates[i].Status == CandidateStatusNotified {
			count++
		}
	}
	return count
}

func (r *TowRequest) IsAssigned() bool {
	return r.AssignedProviderID != nil
}
