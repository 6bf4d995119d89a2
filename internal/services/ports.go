package services

import (
	"context"
	"errors"
	"time"

	"github.com/bookstay/payments-backend/internal/gateway"
	"github.com/bookstay/payments-backend/internal/models"
	"github.com/bookstay/payments-backend/internal/money"
	"github.com/bookstay/payments-backend/internal/split"
	"github.com/google/uuid"
)

var (
	ErrAmountOutOfRange   = errors.New("amount outside allowed range")
	ErrInvalidStatus      = errors.New("operation not permitted in current status")
	ErrIntegrityViolation = errors.New("status transition would move backward")
	ErrInvalidDestination = errors.New("invalid withdrawal destination")
	ErrOTPInvalid         = errors.New("invalid or expired verification code")
	ErrCancelNotAllowed   = errors.New("withdrawal can no longer be cancelled")
)

// Store interfaces are satisfied by the pgx repositories; tests use
// in-memory fakes.

type EscrowStore interface {
	Create(ctx context.Context, t *models.EscrowTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error)
	GetByTrackingID(ctx context.Context, trackingID string) (*models.EscrowTransaction, error)
	SetTrackingID(ctx context.Context, id uuid.UUID, trackingID string) error
	MarkReady(ctx context.Context, id uuid.UUID, from string) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, from, reason string) (bool, error)
	MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error)
	MarkReleased(ctx context.Context, id uuid.UUID, amounts split.Amounts) (bool, error)
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.EscrowTransaction, error)
	ListByGuest(ctx context.Context, guestID uuid.UUID, limit, offset int) ([]models.EscrowTransaction, error)
}

type WalletStore interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	ApplyEntry(ctx context.Context, userID uuid.UUID, amount money.Cents, direction, reference, reason string) (*models.Wallet, error)
	HasEntry(ctx context.Context, walletID uuid.UUID, reference, direction string) (bool, error)
	ListEntries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error)
}

type WithdrawStore interface {
	Create(ctx context.Context, w *models.WithdrawalRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	GetByPayoutProviderID(ctx context.Context, payoutID string) (*models.WithdrawalRequest, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, payoutProviderID string) (bool, error)
	SetPayoutProviderID(ctx context.Context, id uuid.UUID, payoutProviderID string) error
	MarkCompleted(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error)
	ListAll(ctx context.Context, status string, limit, offset int) ([]models.WithdrawalRequest, error)
	ListStuckProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]models.WithdrawalRequest, error)
}

// PaymentGateway is the pluggable provider boundary. One HTTP client
// implements it; swapping providers means swapping this implementation,
// never duplicating wallet or ledger logic.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutResponse, error)
	GetTransactionStatus(ctx context.Context, trackingID string) (*gateway.TransactionStatus, error)
	CreatePayout(ctx context.Context, req gateway.PayoutRequest) (*gateway.PayoutResponse, error)
	GetPayoutStatus(ctx context.Context, payoutID string) (*gateway.PayoutStatusResponse, error)
	CreateRefund(ctx context.Context, req gateway.RefundRequest) error
}

type AuditLog interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

// OTPVerifier gates withdrawal submission. Codes are bound to the
// amount so a verified code cannot authorize a different withdrawal.
type OTPVerifier interface {
	Verify(ctx context.Context, userID uuid.UUID, code string, amount money.Cents) error
}
