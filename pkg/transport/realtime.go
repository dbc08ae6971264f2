package transport

import (
	"context"
	"errors"
	"fmt"

	"gotow/pkg/websocket"
)

// RealtimeDeliverer pushes envelopes over the websocket hub.
type RealtimeDeliverer struct {
	handler *websocket.Handler
}

func NewRealtimeDeliverer(handler *websocket.Handler) *RealtimeDeliverer {
	return &RealtimeDeliverer{
		handler: handler,
	}
}

func (r *RealtimeDeliverer) Deliver(ctx context.Context, envelope *Envelope) error {
	data := map[string]interface{}{
		"envelope_id": envelope.ID.Hex(),
		"request_id":  envelope.RequestID.Hex(),
		"payload":     envelope.Payload,
	}

	err := r.handler.DeliverToUser(envelope.RecipientID, envelope.Kind, data)
	if err != nil {
		if errors.Is(err, websocket.ErrNoReceiver) {
			return ErrNoReceiver
		}
		return fmt.Errorf("failed to deliver realtime message: %w", err)
	}

	return nil
}
