package events

import "context"

// Streams
const (
	StreamPayments = "events:payments"
)

// Event types
const (
	EventEscrowStatusChanged     = "escrow_status_changed"
	EventEscrowReleased          = "escrow_released"
	EventWithdrawalStatusChanged = "withdrawal_status_changed"
	EventPaymentReceived         = "payment_received"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// UserID extracts the payload's user_id, if present. The websocket hub
// uses it to route events to the owning user's connections.
func (e Event) UserID() string {
	id, _ := e.Payload["user_id"].(string)
	return id
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
