package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/bookstay/payments-backend/internal/models"
	"github.com/bookstay/payments-backend/internal/money"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidEntryAmount  = errors.New("ledger amount must be positive")
	ErrWalletInactive      = errors.New("wallet is deactivated")
)

// WalletRepo is the only component that mutates balances. Every balance
// change goes through ApplyEntry, which writes the wallet row and the
// ledger entry in one transaction under a row lock.
type WalletRepo struct {
	pool            *pgxpool.Pool
	defaultCurrency string
}

func NewWalletRepo(pool *pgxpool.Pool, defaultCurrency string) *WalletRepo {
	return &WalletRepo{pool: pool, defaultCurrency: defaultCurrency}
}

func (r *WalletRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO wallets (user_id, currency) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, r.defaultCurrency)
	if err != nil {
		return nil, err
	}
	return r.GetByUserID(ctx, userID)
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, balance_cents, currency, is_active, created_at, updated_at
		FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ApplyEntry atomically applies one credit or debit: lock the wallet
// row, check the balance on debits, update the balance and append the
// ledger entry. Callers needing idempotency check HasEntry first; a
// unique index on (wallet_id, reference, direction) backstops them.
func (r *WalletRepo) ApplyEntry(ctx context.Context, userID uuid.UUID, amount money.Cents, direction, reference, reason string) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, ErrInvalidEntryAmount
	}
	if direction != models.DirectionCredit && direction != models.DirectionDebit {
		return nil, fmt.Errorf("unknown ledger direction %q", direction)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Lazy wallet creation keeps first-credit flows (release to a host
	// who never deposited) from needing a separate setup step.
	if _, err := tx.Exec(ctx, `
		INSERT INTO wallets (user_id, currency) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, r.defaultCurrency); err != nil {
		return nil, err
	}

	var w models.Wallet
	err = tx.QueryRow(ctx, `
		SELECT id, user_id, balance_cents, currency, is_active, created_at, updated_at
		FROM wallets WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if !w.IsActive {
		return nil, ErrWalletInactive
	}

	before := w.Balance
	var after money.Cents
	switch direction {
	case models.DirectionCredit:
		after = before + amount
	case models.DirectionDebit:
		if amount > before {
			return nil, ErrInsufficientBalance
		}
		after = before - amount
	}

	if _, err := tx.Exec(ctx, `
		UPDATE wallets SET balance_cents = $1, updated_at = now() WHERE id = $2
	`, after, w.ID); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO wallet_ledger_entries
			(wallet_id, direction, amount_cents, balance_before_cents, balance_after_cents, reference, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, w.ID, direction, amount, before, after, reference, reason); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	w.Balance = after
	return &w, nil
}

// HasEntry reports whether a ledger entry with the given reference and
// direction already exists for the wallet. Release retries use this to
// skip beneficiaries that were already credited.
func (r *WalletRepo) HasEntry(ctx context.Context, walletID uuid.UUID, reference, direction string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM wallet_ledger_entries
			WHERE wallet_id = $1 AND reference = $2 AND direction = $3
		)
	`, walletID, reference, direction).Scan(&exists)
	return exists, err
}

func (r *WalletRepo) ListEntries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, wallet_id, direction, amount_cents, balance_before_cents, balance_after_cents,
		       reference, reason, created_at
		FROM wallet_ledger_entries
		WHERE wallet_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.WalletID, &e.Direction, &e.Amount, &e.BalanceBefore,
			&e.BalanceAfter, &e.Reference, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *WalletRepo) Deactivate(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE wallets SET is_active = false, updated_at = now() WHERE user_id = $1`, userID)
	return err
}
