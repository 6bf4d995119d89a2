package models

import (
	"time"

	"github.com/bookstay/payments-backend/internal/money"
	"github.com/google/uuid"
)

// Withdrawal methods
const (
	WithdrawalMethodMobile = "mobile"
	WithdrawalMethodBank   = "bank"
)

// Withdrawal statuses
const (
	WithdrawalStatusPending    = "pending"
	WithdrawalStatusProcessing = "processing"
	WithdrawalStatusCompleted  = "completed"
	WithdrawalStatusFailed     = "failed"
)

// WithdrawalDestination is the method-specific payout target. For mobile
// the phone number and inferred carrier are set; for bank the bank code,
// account number and account name.
type WithdrawalDestination struct {
	PhoneNumber   string `json:"phone_number,omitempty"`
	Carrier       string `json:"carrier,omitempty"`
	BankCode      string `json:"bank_code,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
}

// WithdrawalRequest records an outbound payout. The wallet is debited
// (held) when the request is created, not when the payout completes.
type WithdrawalRequest struct {
	ID               uuid.UUID             `json:"id"`
	UserID           uuid.UUID             `json:"user_id"`
	Amount           money.Cents           `json:"amount_cents"`
	Currency         string                `json:"currency"`
	Method           string                `json:"method"` // mobile/bank
	Destination      WithdrawalDestination `json:"destination"`
	Status           string                `json:"status"`
	PayoutProviderID *string               `json:"payout_provider_id,omitempty"`
	Reference        string                `json:"reference"`
	FailureReason    *string               `json:"failure_reason,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}
