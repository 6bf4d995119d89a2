package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/bookstay/payments-backend/internal/config"
	"github.com/bookstay/payments-backend/internal/events"
	"github.com/bookstay/payments-backend/internal/gateway"
	"github.com/bookstay/payments-backend/internal/models"
	"github.com/bookstay/payments-backend/internal/money"
	"github.com/bookstay/payments-backend/internal/split"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// EscrowService owns the escrow state machine. It is the only writer of
// escrow transaction statuses; balance mutations go through the wallet
// store exclusively.
type EscrowService struct {
	escrowRepo EscrowStore
	walletRepo WalletStore
	auditRepo  AuditLog
	gateway    PaymentGateway
	publisher  events.Publisher
	cfg        *config.Config
	log        *zap.Logger

	platformUserID uuid.UUID
}

func NewEscrowService(
	escrowRepo EscrowStore,
	walletRepo WalletStore,
	auditRepo AuditLog,
	gw PaymentGateway,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *EscrowService {
	platformID, err := uuid.Parse(cfg.PlatformWalletID)
	if err != nil {
		log.Warn("platform wallet user id is not a valid uuid, releases will fail",
			zap.String("value", cfg.PlatformWalletID))
	}
	return &EscrowService{
		escrowRepo:     escrowRepo,
		walletRepo:     walletRepo,
		auditRepo:      auditRepo,
		gateway:        gw,
		publisher:      publisher,
		cfg:            cfg,
		log:            log,
		platformUserID: platformID,
	}
}

type CreateDepositRequest struct {
	HostID      uuid.UUID
	AgentID     *uuid.UUID
	Amount      money.Cents
	SplitRules  split.Rules
	Description string
	Billing     gateway.BillingAddress
}

type CreateDepositResult struct {
	Transaction *models.EscrowTransaction
	CheckoutURL string
}

// CreateDeposit persists a pending escrow transaction and requests a
// hosted checkout. A gateway failure leaves the transaction pending:
// the guest retries under a fresh reference, nothing is owed yet.
func (s *EscrowService) CreateDeposit(ctx context.Context, guestID uuid.UUID, req CreateDepositRequest) (*CreateDepositResult, error) {
	if req.Amount < money.Cents(s.cfg.MinDepositCents) || req.Amount > money.Cents(s.cfg.MaxDepositCents) {
		return nil, fmt.Errorf("%w: %s not in [%s, %s]", ErrAmountOutOfRange, req.Amount,
			money.Cents(s.cfg.MinDepositCents), money.Cents(s.cfg.MaxDepositCents))
	}
	if err := req.SplitRules.Validate(); err != nil {
		return nil, err
	}
	if req.SplitRules.Agent.IsPositive() && req.AgentID == nil {
		return nil, fmt.Errorf("%w: agent share without an agent", split.ErrInvalidRules)
	}

	tx := &models.EscrowTransaction{
		GuestID:     guestID,
		HostID:      req.HostID,
		AgentID:     req.AgentID,
		Amount:      req.Amount,
		Currency:    s.cfg.Currency,
		Status:      models.EscrowStatusPending,
		Reference:   uuid.NewString(),
		SplitRules:  req.SplitRules,
		Description: req.Description,
	}
	if err := s.escrowRepo.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("create escrow transaction: %w", err)
	}

	checkout, err := s.gateway.CreateCheckout(ctx, gateway.CheckoutRequest{
		Reference:   tx.Reference,
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		Description: tx.Description,
		Billing:     req.Billing,
	})
	if err != nil {
		// Transaction stays pending; the reference was never exposed to
		// the provider as a live order.
		s.log.Warn("checkout creation failed, transaction left pending",
			zap.String("escrow_id", tx.ID.String()), zap.Error(err))
		return nil, fmt.Errorf("gateway checkout: %w", err)
	}

	if err := s.escrowRepo.SetTrackingID(ctx, tx.ID, checkout.TrackingID); err != nil {
		return nil, fmt.Errorf("store tracking id: %w", err)
	}
	tx.GatewayTrackingID = &checkout.TrackingID

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorUserID: &guestID,
		ActorType:   models.ActorUser,
		Action:      models.AuditEscrowDepositCreated,
		EntityType:  models.EntityEscrowTransaction,
		EntityID:    &tx.ID,
		Meta: map[string]any{
			"amount":      tx.Amount.String(),
			"tracking_id": checkout.TrackingID,
		},
	})

	return &CreateDepositResult{Transaction: tx, CheckoutURL: checkout.RedirectURL}, nil
}

// HandleWebhook reconciles a provider notification. The payload is only
// a "go check" signal: the status is always re-fetched from the gateway
// by tracking id, which makes processing order-independent.
func (s *EscrowService) HandleWebhook(ctx context.Context, trackingID string) error {
	tx, err := s.escrowRepo.GetByTrackingID(ctx, trackingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Providers notify about other merchants' and test orders.
			s.log.Info("webhook for unknown tracking id, discarding",
				zap.String("tracking_id", trackingID))
			return nil
		}
		return err
	}

	status, err := s.gateway.GetTransactionStatus(ctx, trackingID)
	if err != nil {
		return fmt.Errorf("status lookup for %s: %w", trackingID, err)
	}

	target, reason := mapProviderStatus(status.Status)
	if target == tx.Status {
		s.log.Info("duplicate notification, already in target status",
			zap.String("escrow_id", tx.ID.String()), zap.String("status", target))
		return nil
	}
	if !models.IsValidEscrowTransition(tx.Status, target) {
		s.log.Error("webhook would move escrow status backward",
			zap.String("escrow_id", tx.ID.String()),
			zap.String("current", tx.Status),
			zap.String("target", target),
			zap.String("provider_status", status.Status),
		)
		_ = s.auditRepo.Log(ctx, models.AuditLog{
			ActorType:  models.ActorGateway,
			Action:     models.AuditEscrowViolation,
			EntityType: models.EntityEscrowTransaction,
			EntityID:   &tx.ID,
			Meta:       map[string]any{"current": tx.Status, "target": target},
		})
		return fmt.Errorf("%w: %s -> %s", ErrIntegrityViolation, tx.Status, target)
	}

	applied, err := s.applyTransition(ctx, tx, target, reason)
	if err != nil {
		return err
	}
	if !applied {
		// Another webhook or the reconciler won the compare-and-set.
		s.log.Info("transition already applied concurrently",
			zap.String("escrow_id", tx.ID.String()), zap.String("target", target))
		return nil
	}

	s.publishStatusChange(ctx, tx, target)
	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorType:  models.ActorGateway,
		Action:     fmt.Sprintf("escrow_status_%s_to_%s", tx.Status, target),
		EntityType: models.EntityEscrowTransaction,
		EntityID:   &tx.ID,
		Meta:       map[string]any{"provider_status": status.Status},
	})
	return nil
}

// mapProviderStatus translates the provider's vocabulary into ours.
// Completed payments go straight to ready: capture and clearance happen
// in one step, there is no manual review between held and ready.
func mapProviderStatus(providerStatus string) (target, reason string) {
	switch providerStatus {
	case gateway.ProviderStatusCompleted:
		return models.EscrowStatusReady, ""
	case gateway.ProviderStatusFailed:
		return models.EscrowStatusFailed, "payment failed"
	case gateway.ProviderStatusInvalid:
		return models.EscrowStatusFailed, "payment invalid"
	case gateway.ProviderStatusReversed:
		return models.EscrowStatusRefunded, ""
	default:
		return models.EscrowStatusPending, ""
	}
}

func (s *EscrowService) applyTransition(ctx context.Context, tx *models.EscrowTransaction, target, reason string) (bool, error) {
	switch target {
	case models.EscrowStatusReady:
		return s.escrowRepo.MarkReady(ctx, tx.ID, tx.Status)
	case models.EscrowStatusFailed:
		return s.escrowRepo.MarkFailed(ctx, tx.ID, tx.Status, reason)
	case models.EscrowStatusRefunded:
		return s.escrowRepo.MarkRefunded(ctx, tx.ID)
	default:
		return false, fmt.Errorf("no transition handler for status %q", target)
	}
}

func (s *EscrowService) publishStatusChange(ctx context.Context, tx *models.EscrowTransaction, target string) {
	_ = s.publisher.Publish(ctx, events.StreamPayments, events.Event{
		Type: events.EventEscrowStatusChanged,
		Payload: map[string]any{
			"escrow_id":  tx.ID.String(),
			"user_id":    tx.GuestID.String(),
			"old_status": tx.Status,
			"new_status": target,
		},
	})
	if target == models.EscrowStatusReady {
		_ = s.publisher.Publish(ctx, events.StreamPayments, events.Event{
			Type: events.EventPaymentReceived,
			Payload: map[string]any{
				"escrow_id": tx.ID.String(),
				"user_id":   tx.GuestID.String(),
				"amount":    tx.Amount.String(),
			},
		})
	}
}

// Release splits the escrowed amount and credits host, agent and
// platform wallets. Each credit is keyed by the transaction id and
// checked against the ledger first, so a retried release never credits
// a beneficiary twice. Credits that succeeded before a failure stand;
// the operation is re-invoked forward to completion.
func (s *EscrowService) Release(ctx context.Context, txID uuid.UUID, actorID *uuid.UUID) (*models.EscrowTransaction, error) {
	tx, err := s.escrowRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.Status != models.EscrowStatusHeld && tx.Status != models.EscrowStatusReady {
		if tx.Status == models.EscrowStatusReleased {
			return tx, nil
		}
		return nil, fmt.Errorf("%w: release requires held or ready, got %s", ErrInvalidStatus, tx.Status)
	}

	amounts, err := split.Compute(tx.Amount, tx.SplitRules)
	if err != nil {
		return nil, err
	}

	reference := tx.ID.String()
	if err := s.creditOnce(ctx, tx.HostID, amounts.Host, reference, "escrow_release_host"); err != nil {
		return nil, fmt.Errorf("host credit: %w", err)
	}
	if tx.AgentID != nil {
		if err := s.creditOnce(ctx, *tx.AgentID, amounts.Agent, reference, "escrow_release_agent"); err != nil {
			return nil, fmt.Errorf("agent credit: %w", err)
		}
	}
	if s.platformUserID == uuid.Nil {
		return nil, errors.New("platform wallet user id is not configured")
	}
	if err := s.creditOnce(ctx, s.platformUserID, amounts.Platform, reference, "escrow_release_platform"); err != nil {
		return nil, fmt.Errorf("platform credit: %w", err)
	}

	applied, err := s.escrowRepo.MarkReleased(ctx, tx.ID, amounts)
	if err != nil {
		return nil, err
	}
	if applied {
		s.publishStatusChange(ctx, tx, models.EscrowStatusReleased)
		_ = s.auditRepo.Log(ctx, models.AuditLog{
			ActorUserID: actorID,
			ActorType:   actorType(actorID),
			Action:      models.AuditEscrowReleased,
			EntityType:  models.EntityEscrowTransaction,
			EntityID:    &tx.ID,
			Meta: map[string]any{
				"host":     amounts.Host.String(),
				"agent":    amounts.Agent.String(),
				"platform": amounts.Platform.String(),
			},
		})
	}
	return s.escrowRepo.GetByID(ctx, tx.ID)
}

// creditOnce applies a wallet credit unless an identical one (same
// reference, same wallet) is already in the ledger.
func (s *EscrowService) creditOnce(ctx context.Context, userID uuid.UUID, amount money.Cents, reference, reason string) error {
	if amount == 0 {
		return nil
	}
	wallet, err := s.walletRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	exists, err := s.walletRepo.HasEntry(ctx, wallet.ID, reference, models.DirectionCredit)
	if err != nil {
		return err
	}
	if exists {
		s.log.Info("credit already applied, skipping",
			zap.String("wallet_id", wallet.ID.String()), zap.String("reference", reference))
		return nil
	}
	_, err = s.walletRepo.ApplyEntry(ctx, userID, amount, models.DirectionCredit, reference, reason)
	return err
}

// Refund reverses a captured payment at the gateway. No wallet effect:
// in this path the funds never left the gateway's custody.
func (s *EscrowService) Refund(ctx context.Context, txID uuid.UUID, amount *money.Cents, actorID *uuid.UUID) (*models.EscrowTransaction, error) {
	tx, err := s.escrowRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.Status != models.EscrowStatusHeld && tx.Status != models.EscrowStatusReady {
		return nil, fmt.Errorf("%w: refund requires held or ready, got %s", ErrInvalidStatus, tx.Status)
	}
	if tx.GatewayTrackingID == nil {
		return nil, fmt.Errorf("%w: no gateway tracking id", ErrInvalidStatus)
	}
	if amount != nil && (*amount <= 0 || *amount > tx.Amount) {
		return nil, fmt.Errorf("%w: refund amount %s", ErrAmountOutOfRange, amount)
	}

	if err := s.gateway.CreateRefund(ctx, gateway.RefundRequest{
		TrackingID: *tx.GatewayTrackingID,
		Amount:     amount,
		Remarks:    "booking refund",
	}); err != nil {
		return nil, fmt.Errorf("gateway refund: %w", err)
	}

	if _, err := s.escrowRepo.MarkRefunded(ctx, tx.ID); err != nil {
		return nil, err
	}
	s.publishStatusChange(ctx, tx, models.EscrowStatusRefunded)
	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorUserID: actorID,
		ActorType:   actorType(actorID),
		Action:      models.AuditEscrowRefunded,
		EntityType:  models.EntityEscrowTransaction,
		EntityID:    &tx.ID,
	})
	return s.escrowRepo.GetByID(ctx, tx.ID)
}

func (s *EscrowService) GetTransaction(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	return s.escrowRepo.GetByID(ctx, id)
}

func (s *EscrowService) ListByGuest(ctx context.Context, guestID uuid.UUID, limit, offset int) ([]models.EscrowTransaction, error) {
	return s.escrowRepo.ListByGuest(ctx, guestID, limit, offset)
}

// ReconcileStale re-polls pending transactions the provider never (or
// not yet) notified about. Shares the webhook mapping path, so it is
// just as idempotent.
func (s *EscrowService) ReconcileStale(ctx context.Context) {
	stale, err := s.escrowRepo.ListStalePending(ctx, s.cfg.ReconcileStaleAfter, 100)
	if err != nil {
		s.log.Error("list stale pending transactions", zap.Error(err))
		return
	}
	for _, tx := range stale {
		if tx.GatewayTrackingID == nil {
			continue
		}
		if err := s.HandleWebhook(ctx, *tx.GatewayTrackingID); err != nil {
			s.log.Error("reconcile transaction",
				zap.String("escrow_id", tx.ID.String()), zap.Error(err))
		}
	}
}

func actorType(actorID *uuid.UUID) string {
	if actorID == nil {
		return models.ActorSystem
	}
	return models.ActorUser
}
