package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentProfile is the payments-side view of a platform user. Identity
// lives in the booking platform; this row carries what payments needs:
// the role baked into issued tokens and the phone number OTPs go to.
type PaymentProfile struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       *string   `json:"email,omitempty"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}
