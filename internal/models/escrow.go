package models

import (
	"time"

	"github.com/bookstay/payments-backend/internal/money"
	"github.com/bookstay/payments-backend/internal/split"
	"github.com/google/uuid"
)

// Escrow transaction statuses
const (
	EscrowStatusPending  = "pending"
	EscrowStatusHeld     = "held"
	EscrowStatusReady    = "ready"
	EscrowStatusReleased = "released"
	EscrowStatusRefunded = "refunded"
	EscrowStatusFailed   = "failed"
)

// Valid state transitions: from -> []to. Forward-only: terminal statuses
// (released, refunded, failed) have no outgoing transitions. A duplicate
// notification targeting the current status is handled as a no-op by the
// engine before this map is consulted.
var ValidEscrowTransitions = map[string][]string{
	EscrowStatusPending:  {EscrowStatusHeld, EscrowStatusReady, EscrowStatusFailed},
	EscrowStatusHeld:     {EscrowStatusReady, EscrowStatusReleased, EscrowStatusRefunded},
	EscrowStatusReady:    {EscrowStatusReleased, EscrowStatusRefunded},
	EscrowStatusReleased: {},
	EscrowStatusRefunded: {},
	EscrowStatusFailed:   {},
}

func IsValidEscrowTransition(from, to string) bool {
	allowed, ok := ValidEscrowTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// EscrowTransaction is the financial record of a guest deposit held in
// trust until release to the beneficiaries. Never deleted; mutated only
// by the escrow service.
type EscrowTransaction struct {
	ID                uuid.UUID      `json:"id"`
	GuestID           uuid.UUID      `json:"guest_id"`
	HostID            uuid.UUID      `json:"host_id"`
	AgentID           *uuid.UUID     `json:"agent_id,omitempty"`
	Amount            money.Cents    `json:"amount_cents"`
	Currency          string         `json:"currency"`
	Status            string         `json:"status"`
	Reference         string         `json:"reference"`                     // merchant-generated, unique
	GatewayTrackingID *string        `json:"gateway_tracking_id,omitempty"` // provider id, unique once assigned
	SplitRules        split.Rules    `json:"split_rules"`
	SplitAmounts      *split.Amounts `json:"split_amounts,omitempty"` // computed at release
	Description       string         `json:"description"`
	FailureReason     *string        `json:"failure_reason,omitempty"`
	HeldAt            *time.Time     `json:"held_at,omitempty"`
	ReadyAt           *time.Time     `json:"ready_at,omitempty"`
	ReleasedAt        *time.Time     `json:"released_at,omitempty"`
	RefundedAt        *time.Time     `json:"refunded_at,omitempty"`
	FailedAt          *time.Time     `json:"failed_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}
