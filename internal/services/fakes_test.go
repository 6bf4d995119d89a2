package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bookstay/payments-backend/internal/events"
	"github.com/bookstay/payments-backend/internal/gateway"
	"github.com/bookstay/payments-backend/internal/models"
	"github.com/bookstay/payments-backend/internal/money"
	"github.com/bookstay/payments-backend/internal/repositories"
	"github.com/bookstay/payments-backend/internal/split"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// In-memory stores mirroring the pgx repositories' guard semantics.

type fakeEscrowStore struct {
	mu  sync.Mutex
	txs map[uuid.UUID]*models.EscrowTransaction
}

func newFakeEscrowStore() *fakeEscrowStore {
	return &fakeEscrowStore{txs: make(map[uuid.UUID]*models.EscrowTransaction)}
}

func (f *fakeEscrowStore) Create(_ context.Context, t *models.EscrowTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	f.txs[t.ID] = &cp
	return nil
}

func (f *fakeEscrowStore) GetByID(_ context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.txs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (f *fakeEscrowStore) GetByTrackingID(_ context.Context, trackingID string) (*models.EscrowTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.txs {
		if t.GatewayTrackingID != nil && *t.GatewayTrackingID == trackingID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeEscrowStore) SetTrackingID(_ context.Context, id uuid.UUID, trackingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.txs[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if t.GatewayTrackingID != nil {
		return errors.New("tracking id already set")
	}
	t.GatewayTrackingID = &trackingID
	return nil
}

func (f *fakeEscrowStore) MarkReady(_ context.Context, id uuid.UUID, from string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.txs[id]
	if !ok || t.Status != from {
		return false, nil
	}
	now := time.Now()
	if t.HeldAt == nil {
		t.HeldAt = &now
	}
	t.ReadyAt = &now
	t.Status = models.EscrowStatusReady
	return true, nil
}

func (f *fakeEscrowStore) MarkFailed(_ context.Context, id uuid.UUID, from, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.txs[id]
	if !ok || t.Status != from {
		return false, nil
	}
	now := time.Now()
	t.Status = models.EscrowStatusFailed
	t.FailedAt = &now
	t.FailureReason = &reason
	return true, nil
}

func (f *fakeEscrowStore) MarkRefunded(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.txs[id]
	if !ok || (t.Status != models.EscrowStatusHeld && t.Status != models.EscrowStatusReady) {
		return false, nil
	}
	now := time.Now()
	t.Status = models.EscrowStatusRefunded
	t.RefundedAt = &now
	return true, nil
}

func (f *fakeEscrowStore) MarkReleased(_ context.Context, id uuid.UUID, amounts split.Amounts) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.txs[id]
	if !ok || (t.Status != models.EscrowStatusHeld && t.Status != models.EscrowStatusReady) {
		return false, nil
	}
	now := time.Now()
	t.Status = models.EscrowStatusReleased
	t.SplitAmounts = &amounts
	t.ReleasedAt = &now
	return true, nil
}

func (f *fakeEscrowStore) ListStalePending(_ context.Context, _ time.Duration, limit int) ([]models.EscrowTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EscrowTransaction
	for _, t := range f.txs {
		if t.Status == models.EscrowStatusPending && t.GatewayTrackingID != nil {
			out = append(out, *t)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeEscrowStore) ListByGuest(_ context.Context, guestID uuid.UUID, _, _ int) ([]models.EscrowTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EscrowTransaction
	for _, t := range f.txs {
		if t.GuestID == guestID {
			out = append(out, *t)
		}
	}
	return out, nil
}

type fakeWalletStore struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*models.Wallet // keyed by user id
	entries []models.LedgerEntry
}

func newFakeWalletStore() *fakeWalletStore {
	return &fakeWalletStore{wallets: make(map[uuid.UUID]*models.Wallet)}
}

func (f *fakeWalletStore) GetOrCreate(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.wallet(userID)
	return &cp, nil
}

// wallet must be called with the mutex held.
func (f *fakeWalletStore) wallet(userID uuid.UUID) *models.Wallet {
	w, ok := f.wallets[userID]
	if !ok {
		w = &models.Wallet{ID: uuid.New(), UserID: userID, Currency: "KES", IsActive: true}
		f.wallets[userID] = w
	}
	return w
}

func (f *fakeWalletStore) ApplyEntry(_ context.Context, userID uuid.UUID, amount money.Cents, direction, reference, reason string) (*models.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if amount <= 0 {
		return nil, repositories.ErrInvalidEntryAmount
	}
	w := f.wallet(userID)
	if !w.IsActive {
		return nil, repositories.ErrWalletInactive
	}
	before := w.Balance
	switch direction {
	case models.DirectionCredit:
		w.Balance += amount
	case models.DirectionDebit:
		if w.Balance < amount {
			return nil, repositories.ErrInsufficientBalance
		}
		w.Balance -= amount
	default:
		return nil, fmt.Errorf("unknown direction %q", direction)
	}
	f.entries = append(f.entries, models.LedgerEntry{
		ID:            uuid.New(),
		WalletID:      w.ID,
		Direction:     direction,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  w.Balance,
		Reference:     reference,
		Reason:        reason,
		CreatedAt:     time.Now(),
	})
	cp := *w
	return &cp, nil
}

func (f *fakeWalletStore) HasEntry(_ context.Context, walletID uuid.UUID, reference, direction string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.WalletID == walletID && e.Reference == reference && e.Direction == direction {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeWalletStore) ListEntries(_ context.Context, walletID uuid.UUID, _, _ int) ([]models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range f.entries {
		if e.WalletID == walletID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeWalletStore) balance(userID uuid.UUID) money.Cents {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.wallets[userID]; ok {
		return w.Balance
	}
	return 0
}

func (f *fakeWalletStore) entryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeWithdrawStore struct {
	mu   sync.Mutex
	reqs map[uuid.UUID]*models.WithdrawalRequest
}

func newFakeWithdrawStore() *fakeWithdrawStore {
	return &fakeWithdrawStore{reqs: make(map[uuid.UUID]*models.WithdrawalRequest)}
}

func (f *fakeWithdrawStore) Create(_ context.Context, w *models.WithdrawalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.ID = uuid.New()
	w.CreatedAt = time.Now()
	w.UpdatedAt = w.CreatedAt
	cp := *w
	f.reqs[w.ID] = &cp
	return nil
}

func (f *fakeWithdrawStore) GetByID(_ context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.reqs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *w
	return &cp, nil
}

func (f *fakeWithdrawStore) GetByPayoutProviderID(_ context.Context, payoutID string) (*models.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.reqs {
		if w.PayoutProviderID != nil && *w.PayoutProviderID == payoutID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeWithdrawStore) MarkProcessing(_ context.Context, id uuid.UUID, payoutProviderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.reqs[id]
	if !ok || w.Status != models.WithdrawalStatusPending {
		return false, nil
	}
	w.Status = models.WithdrawalStatusProcessing
	w.PayoutProviderID = &payoutProviderID
	return true, nil
}

func (f *fakeWithdrawStore) SetPayoutProviderID(_ context.Context, id uuid.UUID, payoutProviderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.reqs[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if w.PayoutProviderID == nil {
		w.PayoutProviderID = &payoutProviderID
	}
	return nil
}

func (f *fakeWithdrawStore) MarkCompleted(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.reqs[id]
	if !ok || w.Status != models.WithdrawalStatusProcessing {
		return false, nil
	}
	w.Status = models.WithdrawalStatusCompleted
	return true, nil
}

func (f *fakeWithdrawStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.reqs[id]
	if !ok || (w.Status != models.WithdrawalStatusPending && w.Status != models.WithdrawalStatusProcessing) {
		return false, nil
	}
	w.Status = models.WithdrawalStatusFailed
	w.FailureReason = &reason
	return true, nil
}

func (f *fakeWithdrawStore) ListByUser(_ context.Context, userID uuid.UUID, _, _ int) ([]models.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WithdrawalRequest
	for _, w := range f.reqs {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (f *fakeWithdrawStore) ListAll(_ context.Context, status string, _, _ int) ([]models.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WithdrawalRequest
	for _, w := range f.reqs {
		if status == "" || w.Status == status {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (f *fakeWithdrawStore) ListStuckProcessing(_ context.Context, _ time.Duration, limit int) ([]models.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WithdrawalRequest
	for _, w := range f.reqs {
		if w.Status == models.WithdrawalStatusProcessing && w.PayoutProviderID != nil {
			out = append(out, *w)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeGateway struct {
	mu sync.Mutex

	checkoutCalls int
	statusCalls   int
	payoutCalls   int
	refundCalls   int

	checkoutErr    error
	payoutErr      error
	providerStatus string // returned by GetTransactionStatus
	payoutStatus   string // returned by GetPayoutStatus
	payoutReason   string

	onCreatePayout func() // runs while the submission is in flight
}

func (f *fakeGateway) CreateCheckout(_ context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkoutCalls++
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return &gateway.CheckoutResponse{
		TrackingID:  "trk-" + req.Reference,
		RedirectURL: "https://pay.example/redirect/" + req.Reference,
	}, nil
}

func (f *fakeGateway) GetTransactionStatus(_ context.Context, trackingID string) (*gateway.TransactionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	return &gateway.TransactionStatus{TrackingID: trackingID, Status: f.providerStatus}, nil
}

func (f *fakeGateway) CreatePayout(_ context.Context, req gateway.PayoutRequest) (*gateway.PayoutResponse, error) {
	f.mu.Lock()
	f.payoutCalls++
	hook := f.onCreatePayout
	payoutErr := f.payoutErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if payoutErr != nil {
		return nil, payoutErr
	}
	return &gateway.PayoutResponse{PayoutID: "po-" + req.Reference, Status: gateway.PayoutStatusPending}, nil
}

func (f *fakeGateway) GetPayoutStatus(_ context.Context, payoutID string) (*gateway.PayoutStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &gateway.PayoutStatusResponse{PayoutID: payoutID, Status: f.payoutStatus, Reason: f.payoutReason}, nil
}

func (f *fakeGateway) CreateRefund(_ context.Context, _ gateway.RefundRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundCalls++
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (f *fakeAudit) Log(_ context.Context, entry models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAudit) countAction(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakePublisher) Publish(_ context.Context, _ string, ev events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) countType(typ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type fakeOTP struct {
	err      error
	verifies int
	lastAmt  money.Cents
}

func (f *fakeOTP) Verify(_ context.Context, _ uuid.UUID, _ string, amount money.Cents) error {
	f.verifies++
	f.lastAmt = amount
	return f.err
}
