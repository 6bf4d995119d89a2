package models

import (
	"time"

	"github.com/bookstay/payments-backend/internal/money"
	"github.com/google/uuid"
)

// Ledger entry directions
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// Wallet holds a user's available balance. The balance column is a
// materialization of the ledger: at all times it equals the sum of
// credit entries minus the sum of debit entries for the wallet.
// Wallets are created lazily on first access and never deleted.
type Wallet struct {
	ID        uuid.UUID   `json:"id"`
	UserID    uuid.UUID   `json:"user_id"`
	Balance   money.Cents `json:"balance_cents"`
	Currency  string      `json:"currency"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// LedgerEntry is an immutable record of a single credit or debit.
// Corrections are new opposite-direction entries, never updates.
type LedgerEntry struct {
	ID            uuid.UUID   `json:"id"`
	WalletID      uuid.UUID   `json:"wallet_id"`
	Direction     string      `json:"direction"` // credit/debit
	Amount        money.Cents `json:"amount_cents"`
	BalanceBefore money.Cents `json:"balance_before_cents"`
	BalanceAfter  money.Cents `json:"balance_after_cents"`
	Reference     string      `json:"reference"` // audit key, e.g. escrow tx id or withdrawal reference
	Reason        string      `json:"reason"`
	CreatedAt     time.Time   `json:"created_at"`
}
