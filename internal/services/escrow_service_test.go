package services

import (
	"context"
	"errors"
	"testing"

	"github.com/bookstay/payments-backend/internal/config"
	"github.com/bookstay/payments-backend/internal/events"
	"github.com/bookstay/payments-backend/internal/gateway"
	"github.com/bookstay/payments-backend/internal/models"
	"github.com/bookstay/payments-backend/internal/money"
	"github.com/bookstay/payments-backend/internal/split"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var platformUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func testConfig() *config.Config {
	return &config.Config{
		Currency:           "KES",
		MinDepositCents:    1_00,
		MaxDepositCents:    10_000_000_00,
		MinWithdrawalCents: 1_00,
		MaxWithdrawalCents: 1_000_000_00,
		PlatformWalletID:   platformUserID.String(),
	}
}

type escrowFixture struct {
	svc     *EscrowService
	escrows *fakeEscrowStore
	wallets *fakeWalletStore
	gw      *fakeGateway
	pub     *fakePublisher
	audit   *fakeAudit
}

func newEscrowFixture(t *testing.T) *escrowFixture {
	t.Helper()
	f := &escrowFixture{
		escrows: newFakeEscrowStore(),
		wallets: newFakeWalletStore(),
		gw:      &fakeGateway{providerStatus: gateway.ProviderStatusPending},
		pub:     &fakePublisher{},
		audit:   &fakeAudit{},
	}
	f.svc = NewEscrowService(f.escrows, f.wallets, f.audit, f.gw, f.pub, testConfig(), zap.NewNop())
	return f
}

func pct(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func standardRules() split.Rules {
	return split.Rules{Host: pct("70"), Agent: pct("20"), Platform: pct("10")}
}

func (f *escrowFixture) deposit(t *testing.T, guestID, hostID uuid.UUID, agentID *uuid.UUID, amount money.Cents, rules split.Rules) *CreateDepositResult {
	t.Helper()
	res, err := f.svc.CreateDeposit(context.Background(), guestID, CreateDepositRequest{
		HostID:      hostID,
		AgentID:     agentID,
		Amount:      amount,
		SplitRules:  rules,
		Description: "booking 42",
	})
	if err != nil {
		t.Fatalf("CreateDeposit: %v", err)
	}
	return res
}

func TestCreateDeposit(t *testing.T) {
	f := newEscrowFixture(t)
	guest, host := uuid.New(), uuid.New()
	agent := uuid.New()

	res := f.deposit(t, guest, host, &agent, 10_000_00, standardRules())

	if res.Transaction.Status != models.EscrowStatusPending {
		t.Errorf("status = %s, want pending", res.Transaction.Status)
	}
	if res.Transaction.GatewayTrackingID == nil {
		t.Fatal("tracking id not stored")
	}
	if res.CheckoutURL == "" {
		t.Error("checkout url missing")
	}
	if f.gw.checkoutCalls != 1 {
		t.Errorf("checkout calls = %d, want 1", f.gw.checkoutCalls)
	}
}

func TestCreateDepositAmountOutOfRange(t *testing.T) {
	f := newEscrowFixture(t)
	_, err := f.svc.CreateDeposit(context.Background(), uuid.New(), CreateDepositRequest{
		HostID:     uuid.New(),
		Amount:     50, // below the 100-cent minimum
		SplitRules: standardRules(),
	})
	if !errors.Is(err, ErrAmountOutOfRange) {
		t.Fatalf("err = %v, want ErrAmountOutOfRange", err)
	}
	if f.gw.checkoutCalls != 0 {
		t.Error("gateway called for an invalid amount")
	}
}

func TestCreateDepositAgentShareWithoutAgent(t *testing.T) {
	f := newEscrowFixture(t)
	_, err := f.svc.CreateDeposit(context.Background(), uuid.New(), CreateDepositRequest{
		HostID:     uuid.New(),
		Amount:     10_000_00,
		SplitRules: standardRules(), // 20% agent share, no agent id
	})
	if !errors.Is(err, split.ErrInvalidRules) {
		t.Fatalf("err = %v, want ErrInvalidRules", err)
	}
}

func TestCreateDepositGatewayFailureLeavesPending(t *testing.T) {
	f := newEscrowFixture(t)
	f.gw.checkoutErr = errors.New("provider down")

	_, err := f.svc.CreateDeposit(context.Background(), uuid.New(), CreateDepositRequest{
		HostID:     uuid.New(),
		Amount:     10_000_00,
		SplitRules: split.Rules{Host: pct("90"), Platform: pct("10")},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	// The transaction row exists and stays pending with no tracking id.
	for _, tx := range f.escrows.txs {
		if tx.Status != models.EscrowStatusPending {
			t.Errorf("status = %s, want pending", tx.Status)
		}
		if tx.GatewayTrackingID != nil {
			t.Error("tracking id set despite checkout failure")
		}
	}
}

func TestHandleWebhookCompleted(t *testing.T) {
	f := newEscrowFixture(t)
	agent := uuid.New()
	res := f.deposit(t, uuid.New(), uuid.New(), &agent, 10_000_00, standardRules())
	f.gw.providerStatus = gateway.ProviderStatusCompleted

	if err := f.svc.HandleWebhook(context.Background(), *res.Transaction.GatewayTrackingID); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	tx, _ := f.escrows.GetByID(context.Background(), res.Transaction.ID)
	if tx.Status != models.EscrowStatusReady {
		t.Errorf("status = %s, want ready", tx.Status)
	}
	if tx.HeldAt == nil || tx.ReadyAt == nil {
		t.Error("held_at and ready_at should both be stamped")
	}
	if n := f.pub.countType(events.EventPaymentReceived); n != 1 {
		t.Errorf("payment_received events = %d, want 1", n)
	}
}

func TestHandleWebhookReplayIsIdempotent(t *testing.T) {
	f := newEscrowFixture(t)
	res := f.deposit(t, uuid.New(), uuid.New(), nil, 10_000_00, split.Rules{Host: pct("90"), Platform: pct("10")})
	f.gw.providerStatus = gateway.ProviderStatusCompleted
	trackingID := *res.Transaction.GatewayTrackingID

	for i := 0; i < 3; i++ {
		if err := f.svc.HandleWebhook(context.Background(), trackingID); err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
	}

	if n := f.pub.countType(events.EventEscrowStatusChanged); n != 1 {
		t.Errorf("status_changed events = %d, want 1", n)
	}
	if n := f.pub.countType(events.EventPaymentReceived); n != 1 {
		t.Errorf("payment_received events = %d, want 1", n)
	}
}

func TestHandleWebhookUnknownTrackingID(t *testing.T) {
	f := newEscrowFixture(t)
	if err := f.svc.HandleWebhook(context.Background(), "trk-nobody"); err != nil {
		t.Fatalf("unknown tracking id should be discarded, got %v", err)
	}
	if f.gw.statusCalls != 0 {
		t.Error("status looked up for unknown tracking id")
	}
}

func TestHandleWebhookBackwardTransitionRejected(t *testing.T) {
	f := newEscrowFixture(t)
	res := f.deposit(t, uuid.New(), uuid.New(), nil, 10_000_00, split.Rules{Host: pct("90"), Platform: pct("10")})
	trackingID := *res.Transaction.GatewayTrackingID

	f.gw.providerStatus = gateway.ProviderStatusCompleted
	if err := f.svc.HandleWebhook(context.Background(), trackingID); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if _, err := f.svc.Release(context.Background(), res.Transaction.ID, nil); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// A late FAILED notification must not move a released transaction.
	f.gw.providerStatus = gateway.ProviderStatusFailed
	err := f.svc.HandleWebhook(context.Background(), trackingID)
	if !errors.Is(err, ErrIntegrityViolation) {
		t.Fatalf("err = %v, want ErrIntegrityViolation", err)
	}
	tx, _ := f.escrows.GetByID(context.Background(), res.Transaction.ID)
	if tx.Status != models.EscrowStatusReleased {
		t.Errorf("status = %s, want released", tx.Status)
	}
}

func TestFullLifecycleSplit(t *testing.T) {
	f := newEscrowFixture(t)
	guest, host, agent := uuid.New(), uuid.New(), uuid.New()

	res := f.deposit(t, guest, host, &agent, 1_000_000, standardRules())
	f.gw.providerStatus = gateway.ProviderStatusCompleted
	if err := f.svc.HandleWebhook(context.Background(), *res.Transaction.GatewayTrackingID); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	released, err := f.svc.Release(context.Background(), res.Transaction.ID, nil)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if released.Status != models.EscrowStatusReleased {
		t.Errorf("status = %s, want released", released.Status)
	}
	if released.SplitAmounts == nil {
		t.Fatal("split amounts not recorded")
	}

	if got := f.wallets.balance(host); got != 700_000 {
		t.Errorf("host balance = %d, want 700000", got)
	}
	if got := f.wallets.balance(agent); got != 200_000 {
		t.Errorf("agent balance = %d, want 200000", got)
	}
	if got := f.wallets.balance(platformUserID); got != 100_000 {
		t.Errorf("platform balance = %d, want 100000", got)
	}
}

func TestReleaseRetryDoesNotDoubleCredit(t *testing.T) {
	f := newEscrowFixture(t)
	guest, host, agent := uuid.New(), uuid.New(), uuid.New()

	res := f.deposit(t, guest, host, &agent, 1_000_000, standardRules())
	f.gw.providerStatus = gateway.ProviderStatusCompleted
	if err := f.svc.HandleWebhook(context.Background(), *res.Transaction.GatewayTrackingID); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	if _, err := f.svc.Release(context.Background(), res.Transaction.ID, nil); err != nil {
		t.Fatalf("first release: %v", err)
	}
	entriesAfterFirst := f.wallets.entryCount()

	tx, err := f.svc.Release(context.Background(), res.Transaction.ID, nil)
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	if tx.Status != models.EscrowStatusReleased {
		t.Errorf("status = %s, want released", tx.Status)
	}
	if f.wallets.entryCount() != entriesAfterFirst {
		t.Error("retried release wrote additional ledger entries")
	}
	if got := f.wallets.balance(host); got != 700_000 {
		t.Errorf("host balance = %d, want 700000", got)
	}
}

func TestReleaseRequiresHeldOrReady(t *testing.T) {
	f := newEscrowFixture(t)
	res := f.deposit(t, uuid.New(), uuid.New(), nil, 10_000_00, split.Rules{Host: pct("90"), Platform: pct("10")})

	_, err := f.svc.Release(context.Background(), res.Transaction.ID, nil)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
	if f.wallets.entryCount() != 0 {
		t.Error("pending release wrote ledger entries")
	}
}

func TestRefund(t *testing.T) {
	f := newEscrowFixture(t)
	res := f.deposit(t, uuid.New(), uuid.New(), nil, 10_000_00, split.Rules{Host: pct("90"), Platform: pct("10")})
	f.gw.providerStatus = gateway.ProviderStatusCompleted
	if err := f.svc.HandleWebhook(context.Background(), *res.Transaction.GatewayTrackingID); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	actor := uuid.New()
	tx, err := f.svc.Refund(context.Background(), res.Transaction.ID, nil, &actor)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if tx.Status != models.EscrowStatusRefunded {
		t.Errorf("status = %s, want refunded", tx.Status)
	}
	if f.gw.refundCalls != 1 {
		t.Errorf("refund calls = %d, want 1", f.gw.refundCalls)
	}
	if f.wallets.entryCount() != 0 {
		t.Error("gateway refund should not touch wallets")
	}
}

func TestRefundRejectsOverAmount(t *testing.T) {
	f := newEscrowFixture(t)
	res := f.deposit(t, uuid.New(), uuid.New(), nil, 10_000_00, split.Rules{Host: pct("90"), Platform: pct("10")})
	f.gw.providerStatus = gateway.ProviderStatusCompleted
	if err := f.svc.HandleWebhook(context.Background(), *res.Transaction.GatewayTrackingID); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}

	over := money.Cents(20_000_00)
	_, err := f.svc.Refund(context.Background(), res.Transaction.ID, &over, nil)
	if !errors.Is(err, ErrAmountOutOfRange) {
		t.Fatalf("err = %v, want ErrAmountOutOfRange", err)
	}
	if f.gw.refundCalls != 0 {
		t.Error("gateway refund called for an over-amount")
	}
}

func TestReconcileStale(t *testing.T) {
	f := newEscrowFixture(t)
	res := f.deposit(t, uuid.New(), uuid.New(), nil, 10_000_00, split.Rules{Host: pct("90"), Platform: pct("10")})
	f.gw.providerStatus = gateway.ProviderStatusCompleted

	f.svc.ReconcileStale(context.Background())

	tx, _ := f.escrows.GetByID(context.Background(), res.Transaction.ID)
	if tx.Status != models.EscrowStatusReady {
		t.Errorf("status = %s, want ready after reconcile", tx.Status)
	}
}
