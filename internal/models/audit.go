package models

import (
	"time"

	"github.com/google/uuid"
)

// Entity types audit entries attach to.
const (
	EntityEscrowTransaction = "escrow_transaction"
	EntityWithdrawalRequest = "withdrawal_request"
)

// Actor types.
const (
	ActorUser    = "user"
	ActorAdmin   = "admin"
	ActorSystem  = "system"
	ActorGateway = "gateway"
)

// Audit actions recorded by the services.
const (
	AuditEscrowDepositCreated = "escrow_deposit_created"
	AuditEscrowReleased       = "escrow_released"
	AuditEscrowRefunded       = "escrow_refunded"
	AuditEscrowViolation      = "escrow_integrity_violation"
	AuditWithdrawalRequested  = "withdrawal_requested"
	AuditWithdrawalCompleted  = "withdrawal_completed"
	AuditWithdrawalFailed     = "withdrawal_failed"
	AuditWithdrawalCancelled  = "withdrawal_cancelled"
	AuditWithdrawalOverride   = "withdrawal_status_override"
	AuditWithdrawalViolation  = "withdrawal_integrity_violation"
)

type AuditLog struct {
	ID          uuid.UUID  `json:"id"`
	ActorUserID *uuid.UUID `json:"actor_user_id,omitempty"`
	ActorType   string     `json:"actor_type"`
	Action      string     `json:"action"`
	EntityType  string     `json:"entity_type"`
	EntityID    *uuid.UUID `json:"entity_id,omitempty"`
	Meta        any        `json:"meta,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
