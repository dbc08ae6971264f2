package push

import "context"

// PushProvider delivers dispatch alerts to provider and driver devices.
type PushProvider interface {
	SendNotification(ctx context.Context, request *NotificationRequest) (*NotificationResponse, error)
	SendBulkNotifications(ctx context.Context, requests []*NotificationRequest) ([]*NotificationResponse, error)
}

type NotificationRequest struct {
	Token       string            `json:"token"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
	Sound       string            `json:"sound,omitempty"`
	Priority    string            `json:"priority,omitempty"`
	TTL         int               `json:"ttl,omitempty"`
	CollapseKey string            `json:"collapse_key,omitempty"`
}

type NotificationResponse struct {
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Token     string `json:"token,omitempty"`
}

// NewDispatchAlert builds a high priority notification for a towing offer.
// TTL should match the candidate response window so stale offers are not
// delivered after the slot has moved on.
func NewDispatchAlert(token, title, body string, data map[string]string, ttlSeconds int) *NotificationRequest {
	return &NotificationRequest{
		Token:       token,
		Title:       title,
		Body:        body,
		Data:        data,
		Sound:       "dispatch_alert.caf",
		Priority:    "high",
		TTL:         ttlSeconds,
		CollapseKey: data["request_id"],
	}
}
