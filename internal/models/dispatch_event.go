package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EventType string

const (
	EventRequestCreated   EventType = "request_created"
	EventRequestNotified  EventType = "request_notified"
	EventRequestAssigned  EventType = "request_assigned"
	EventRequestConflict  EventType = "request_conflict"
	EventRequestOnTheWay  EventType = "request_on_the_way"
	EventRequestArrived   EventType = "request_arrived"
	EventRequestCompleted EventType = "request_completed"
	EventRequestCancelled EventType = "request_cancelled"
	EventRequestExpired   EventType = "request_expired"
)

// DispatchEvent is one committed lifecycle transition, kept append-only for
// audit and for the requester's event poll endpoint.
type DispatchEvent struct {
	ID         primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	RequestID  primitive.ObjectID     `json:"request_id" bson:"request_id"`
	Type       EventType              `json:"type" bson:"type"`
	FromStatus RequestStatus          `json:"from_status" bson:"from_status"`
	ToStatus   RequestStatus          `json:"to_status" bson:"to_status"`
	ProviderID *primitive.ObjectID    `json:"provider_id" bson:"provider_id"`
	Version    int64                  `json:"version" bson:"version"`
	Data       map[string]interface{} `json:"data,omitempty" bson:"data,omitempty"`
	CreatedAt  time.Time              `json:"created_at" bson:"created_at"`
}

// DeliveryRecord is the durable copy of a fanout notification. It backs the
// pull endpoint so a provider whose realtime channel was down still sees the
// request on its next poll.
type DeliveryRecord struct {
	ID          primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	ProviderID  primitive.ObjectID     `json:"provider_id" bson:"provider_id"`
	RequestID   primitive.ObjectID     `json:"request_id" bson:"request_id"`
	Kind        string                 `json:"kind" bson:"kind"`
	Payload     map[string]interface{} `json:"payload" bson:"payload"`
	Delivered   bool                   `json:"delivered" bson:"delivered"`
	DeliveredAt *time.Time             `json:"delivered_at" bson:"delivered_at"`
	CreatedAt   time.Time              `json:"created_at" bson:"created_at"`
}
