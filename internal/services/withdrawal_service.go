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
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	reasonWithdrawalHold   = "withdrawal_hold"
	reasonWithdrawalRefund = "withdrawal_refund"
)

// WithdrawalService orchestrates outbound payouts. The wallet is
// debited when the request is created; a failed or cancelled payout
// credits the hold back.
type WithdrawalService struct {
	withdrawRepo WithdrawStore
	walletRepo   WalletStore
	auditRepo    AuditLog
	gateway      PaymentGateway
	otp          OTPVerifier
	publisher    events.Publisher
	cfg          *config.Config
	log          *zap.Logger
}

func NewWithdrawalService(
	withdrawRepo WithdrawStore,
	walletRepo WalletStore,
	auditRepo AuditLog,
	gw PaymentGateway,
	otp OTPVerifier,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *WithdrawalService {
	return &WithdrawalService{
		withdrawRepo: withdrawRepo,
		walletRepo:   walletRepo,
		auditRepo:    auditRepo,
		gateway:      gw,
		otp:          otp,
		publisher:    publisher,
		cfg:          cfg,
		log:          log,
	}
}

type CreateWithdrawalRequest struct {
	Amount      money.Cents
	Method      string // mobile/bank
	Destination models.WithdrawalDestination
	OTPCode     string
}

// CreateWithdrawal validates, verifies the OTP, holds the funds and
// submits the payout. The hold happens before any external call: an
// insufficient balance never reaches the gateway. A gateway submission
// failure leaves the request pending with the hold in place, reversible
// through Cancel.
func (s *WithdrawalService) CreateWithdrawal(ctx context.Context, userID uuid.UUID, req CreateWithdrawalRequest) (*models.WithdrawalRequest, error) {
	if req.Amount < money.Cents(s.cfg.MinWithdrawalCents) || req.Amount > money.Cents(s.cfg.MaxWithdrawalCents) {
		return nil, fmt.Errorf("%w: %s not in [%s, %s]", ErrAmountOutOfRange, req.Amount,
			money.Cents(s.cfg.MinWithdrawalCents), money.Cents(s.cfg.MaxWithdrawalCents))
	}

	destination, err := validateDestination(req.Method, req.Destination)
	if err != nil {
		return nil, err
	}

	if err := s.otp.Verify(ctx, userID, req.OTPCode, req.Amount); err != nil {
		return nil, err
	}

	reference := uuid.NewString()
	if _, err := s.walletRepo.ApplyEntry(ctx, userID, req.Amount, models.DirectionDebit, reference, reasonWithdrawalHold); err != nil {
		return nil, err
	}

	w := &models.WithdrawalRequest{
		UserID:      userID,
		Amount:      req.Amount,
		Currency:    s.cfg.Currency,
		Method:      req.Method,
		Destination: destination,
		Status:      models.WithdrawalStatusPending,
		Reference:   reference,
	}
	if err := s.withdrawRepo.Create(ctx, w); err != nil {
		// Funds are held but the request row failed; credit straight back.
		if _, creditErr := s.walletRepo.ApplyEntry(ctx, userID, req.Amount, models.DirectionCredit, reference, reasonWithdrawalRefund); creditErr != nil {
			s.log.Error("failed to reverse orphaned withdrawal hold",
				zap.String("reference", reference), zap.Error(creditErr))
		}
		return nil, fmt.Errorf("create withdrawal request: %w", err)
	}

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorUserID: &userID,
		ActorType:   models.ActorUser,
		Action:      models.AuditWithdrawalRequested,
		EntityType:  models.EntityWithdrawalRequest,
		EntityID:    &w.ID,
		Meta:        map[string]any{"amount": w.Amount.String(), "method": w.Method},
	})

	payout, err := s.gateway.CreatePayout(ctx, gateway.PayoutRequest{
		Reference:     reference,
		Amount:        w.Amount,
		Currency:      w.Currency,
		Narration:     "wallet withdrawal",
		PhoneNumber:   destination.PhoneNumber,
		BankCode:      destination.BankCode,
		AccountNumber: destination.AccountNumber,
		AccountName:   destination.AccountName,
	})
	if err != nil {
		s.log.Warn("payout submission failed, request left pending",
			zap.String("withdrawal_id", w.ID.String()), zap.Error(err))
		return w, fmt.Errorf("gateway payout: %w", err)
	}

	applied, err := s.withdrawRepo.MarkProcessing(ctx, w.ID, payout.PayoutID)
	if err != nil {
		return w, err
	}
	if !applied {
		// Cancel won the race while the submission was in flight: the
		// hold is already refunded but the provider accepted the
		// payout. Record the provider id so the conflict is visible
		// and reconcilable.
		if err := s.withdrawRepo.SetPayoutProviderID(ctx, w.ID, payout.PayoutID); err != nil {
			s.log.Error("record payout id on cancelled withdrawal",
				zap.String("withdrawal_id", w.ID.String()), zap.Error(err))
		}
		s.log.Error("payout accepted for a withdrawal cancelled during submission",
			zap.String("withdrawal_id", w.ID.String()),
			zap.String("payout_id", payout.PayoutID))
		_ = s.auditRepo.Log(ctx, models.AuditLog{
			ActorType:  models.ActorSystem,
			Action:     models.AuditWithdrawalViolation,
			EntityType: models.EntityWithdrawalRequest,
			EntityID:   &w.ID,
			Meta:       map[string]any{"payout_id": payout.PayoutID, "conflict": "cancelled_during_submission"},
		})
		return s.withdrawRepo.GetByID(ctx, w.ID)
	}
	w.Status = models.WithdrawalStatusProcessing
	w.PayoutProviderID = &payout.PayoutID

	s.publishWithdrawalEvent(ctx, w, models.WithdrawalStatusProcessing)
	return w, nil
}

// HandlePayoutCallback applies a provider payout result. Both branches
// are idempotent: completion is a guarded compare-and-set, and the
// refund credit is skipped when the ledger already has it.
func (s *WithdrawalService) HandlePayoutCallback(ctx context.Context, payoutProviderID, providerStatus string) error {
	w, err := s.withdrawRepo.GetByPayoutProviderID(ctx, payoutProviderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.log.Info("payout callback for unknown id, discarding",
				zap.String("payout_id", payoutProviderID))
			return nil
		}
		return err
	}
	_, err = s.applyPayoutStatus(ctx, w, providerStatus, "")
	return err
}

// applyPayoutStatus maps a provider result onto the request and reports
// whether the terminal transition applied. The refund credit happens
// only after the compare-and-set: a late FAILED for a payout that
// already completed must never reopen the hold.
func (s *WithdrawalService) applyPayoutStatus(ctx context.Context, w *models.WithdrawalRequest, providerStatus, reason string) (bool, error) {
	switch providerStatus {
	case gateway.PayoutStatusCompleted:
		applied, err := s.withdrawRepo.MarkCompleted(ctx, w.ID)
		if err != nil {
			return false, err
		}
		if !applied {
			return false, s.checkSettledConflict(ctx, w, models.WithdrawalStatusCompleted)
		}
		s.publishWithdrawalEvent(ctx, w, models.WithdrawalStatusCompleted)
		_ = s.auditRepo.Log(ctx, models.AuditLog{
			ActorType:  models.ActorGateway,
			Action:     models.AuditWithdrawalCompleted,
			EntityType: models.EntityWithdrawalRequest,
			EntityID:   &w.ID,
		})
		return true, nil

	case gateway.PayoutStatusFailed:
		if reason == "" {
			reason = "payout failed"
		}
		applied, err := s.withdrawRepo.MarkFailed(ctx, w.ID, reason)
		if err != nil {
			return false, err
		}
		if !applied {
			if err := s.checkSettledConflict(ctx, w, models.WithdrawalStatusFailed); err != nil {
				return false, err
			}
			// Redelivery of a result already applied. The ledger guard
			// makes the credit a no-op when it landed; when a crash
			// interrupted the first delivery it lands now.
			return false, s.refundHold(ctx, w)
		}
		if err := s.refundHold(ctx, w); err != nil {
			return true, err
		}
		s.publishWithdrawalEvent(ctx, w, models.WithdrawalStatusFailed)
		_ = s.auditRepo.Log(ctx, models.AuditLog{
			ActorType:  models.ActorGateway,
			Action:     models.AuditWithdrawalFailed,
			EntityType: models.EntityWithdrawalRequest,
			EntityID:   &w.ID,
			Meta:       map[string]any{"reason": reason},
		})
		return true, nil

	default:
		// Still in flight at the provider.
		return false, nil
	}
}

// checkSettledConflict audits and rejects a provider result that
// contradicts a withdrawal already settled the other way.
func (s *WithdrawalService) checkSettledConflict(ctx context.Context, w *models.WithdrawalRequest, target string) error {
	current, err := s.withdrawRepo.GetByID(ctx, w.ID)
	if err != nil {
		return err
	}
	switch current.Status {
	case target, models.WithdrawalStatusPending, models.WithdrawalStatusProcessing:
		return nil
	}
	s.log.Error("payout result conflicts with settled withdrawal",
		zap.String("withdrawal_id", w.ID.String()),
		zap.String("current", current.Status),
		zap.String("target", target),
	)
	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorType:  models.ActorGateway,
		Action:     models.AuditWithdrawalViolation,
		EntityType: models.EntityWithdrawalRequest,
		EntityID:   &w.ID,
		Meta:       map[string]any{"current": current.Status, "target": target},
	})
	return fmt.Errorf("%w: withdrawal is %s, provider says %s", ErrIntegrityViolation, current.Status, target)
}

// refundHold credits the withdrawal hold back, once.
func (s *WithdrawalService) refundHold(ctx context.Context, w *models.WithdrawalRequest) error {
	wallet, err := s.walletRepo.GetOrCreate(ctx, w.UserID)
	if err != nil {
		return err
	}
	exists, err := s.walletRepo.HasEntry(ctx, wallet.ID, w.Reference, models.DirectionCredit)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = s.walletRepo.ApplyEntry(ctx, w.UserID, w.Amount, models.DirectionCredit, w.Reference, reasonWithdrawalRefund)
	return err
}

// Cancel reverses a withdrawal that has not been acknowledged by the
// provider: pending, or processing without a provider id.
func (s *WithdrawalService) Cancel(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*models.WithdrawalRequest, error) {
	w, err := s.withdrawRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cancellable := w.Status == models.WithdrawalStatusPending ||
		(w.Status == models.WithdrawalStatusProcessing && w.PayoutProviderID == nil)
	if !cancellable {
		return nil, ErrCancelNotAllowed
	}

	if err := s.refundHold(ctx, w); err != nil {
		return nil, err
	}
	if _, err := s.withdrawRepo.MarkFailed(ctx, w.ID, "cancelled"); err != nil {
		return nil, err
	}

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorUserID: &actorID,
		ActorType:   models.ActorUser,
		Action:      models.AuditWithdrawalCancelled,
		EntityType:  models.EntityWithdrawalRequest,
		EntityID:    &w.ID,
	})
	return s.withdrawRepo.GetByID(ctx, w.ID)
}

// AdminUpdateStatus lets operators settle a withdrawal the provider
// callback never resolved. Uses the same idempotent paths as the
// callback handler.
func (s *WithdrawalService) AdminUpdateStatus(ctx context.Context, id uuid.UUID, status, reason string, actorID uuid.UUID) (*models.WithdrawalRequest, error) {
	w, err := s.withdrawRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var providerStatus string
	switch status {
	case models.WithdrawalStatusCompleted:
		providerStatus = gateway.PayoutStatusCompleted
	case models.WithdrawalStatusFailed:
		providerStatus = gateway.PayoutStatusFailed
	default:
		return nil, fmt.Errorf("%w: admin may only set completed or failed", ErrInvalidStatus)
	}

	applied, err := s.applyPayoutStatus(ctx, w, providerStatus, reason)
	if err != nil {
		return nil, err
	}
	current, err := s.withdrawRepo.GetByID(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	if !applied {
		if current.Status != status {
			return nil, fmt.Errorf("%w: cannot mark %s withdrawal %s", ErrInvalidStatus, current.Status, status)
		}
		// Already settled this way; nothing to override.
		return current, nil
	}
	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorUserID: &actorID,
		ActorType:   models.ActorAdmin,
		Action:      models.AuditWithdrawalOverride,
		EntityType:  models.EntityWithdrawalRequest,
		EntityID:    &w.ID,
		Meta:        map[string]any{"status": status, "reason": reason},
	})
	return current, nil
}

func (s *WithdrawalService) Get(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return s.withdrawRepo.GetByID(ctx, id)
}

func (s *WithdrawalService) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error) {
	return s.withdrawRepo.ListByUser(ctx, userID, limit, offset)
}

func (s *WithdrawalService) ListAll(ctx context.Context, status string, limit, offset int) ([]models.WithdrawalRequest, error) {
	return s.withdrawRepo.ListAll(ctx, status, limit, offset)
}

// WithdrawalInfo is the static contract for the withdrawal form.
type WithdrawalInfo struct {
	Currency  string      `json:"currency"`
	MinAmount money.Cents `json:"min_amount_cents"`
	MaxAmount money.Cents `json:"max_amount_cents"`
	Balance   money.Cents `json:"balance_cents"`
}

func (s *WithdrawalService) Info(ctx context.Context, userID uuid.UUID) (*WithdrawalInfo, error) {
	wallet, err := s.walletRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &WithdrawalInfo{
		Currency:  s.cfg.Currency,
		MinAmount: money.Cents(s.cfg.MinWithdrawalCents),
		MaxAmount: money.Cents(s.cfg.MaxWithdrawalCents),
		Balance:   wallet.Balance,
	}, nil
}

// PollStuck re-checks payouts the provider acked but never called back
// about.
func (s *WithdrawalService) PollStuck(ctx context.Context) {
	stuck, err := s.withdrawRepo.ListStuckProcessing(ctx, s.cfg.PayoutPollStaleAfter, 100)
	if err != nil {
		s.log.Error("list stuck withdrawals", zap.Error(err))
		return
	}
	for _, w := range stuck {
		if w.PayoutProviderID == nil {
			continue
		}
		status, err := s.gateway.GetPayoutStatus(ctx, *w.PayoutProviderID)
		if err != nil {
			s.log.Error("poll payout status",
				zap.String("withdrawal_id", w.ID.String()), zap.Error(err))
			continue
		}
		if _, err := s.applyPayoutStatus(ctx, &w, status.Status, status.Reason); err != nil {
			s.log.Error("apply polled payout status",
				zap.String("withdrawal_id", w.ID.String()), zap.Error(err))
		}
	}
}

func (s *WithdrawalService) publishWithdrawalEvent(ctx context.Context, w *models.WithdrawalRequest, status string) {
	_ = s.publisher.Publish(ctx, events.StreamPayments, events.Event{
		Type: events.EventWithdrawalStatusChanged,
		Payload: map[string]any{
			"withdrawal_id": w.ID.String(),
			"user_id":       w.UserID.String(),
			"status":        status,
		},
	})
}
