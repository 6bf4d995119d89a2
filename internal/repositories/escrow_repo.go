package repositories

import (
	"context"
	"time"

	"github.com/bookstay/payments-backend/internal/models"
	"github.com/bookstay/payments-backend/internal/split"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

const escrowColumns = `
	id, guest_id, host_id, agent_id, amount_cents, currency, status, reference,
	gateway_tracking_id, split_rules, split_amounts, description, failure_reason,
	held_at, ready_at, released_at, refunded_at, failed_at, created_at, updated_at`

func (r *EscrowRepo) scanOne(row interface{ Scan(...any) error }) (*models.EscrowTransaction, error) {
	var t models.EscrowTransaction
	err := row.Scan(&t.ID, &t.GuestID, &t.HostID, &t.AgentID, &t.Amount, &t.Currency, &t.Status,
		&t.Reference, &t.GatewayTrackingID, &t.SplitRules, &t.SplitAmounts, &t.Description,
		&t.FailureReason, &t.HeldAt, &t.ReadyAt, &t.ReleasedAt, &t.RefundedAt, &t.FailedAt,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *EscrowRepo) Create(ctx context.Context, t *models.EscrowTransaction) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO escrow_transactions
			(guest_id, host_id, agent_id, amount_cents, currency, status, reference, split_rules, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, t.GuestID, t.HostID, t.AgentID, t.Amount, t.Currency, t.Status, t.Reference,
		t.SplitRules, t.Description).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (r *EscrowRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT `+escrowColumns+` FROM escrow_transactions WHERE id = $1`, id))
}

func (r *EscrowRepo) GetByReference(ctx context.Context, reference string) (*models.EscrowTransaction, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT `+escrowColumns+` FROM escrow_transactions WHERE reference = $1`, reference))
}

func (r *EscrowRepo) GetByTrackingID(ctx context.Context, trackingID string) (*models.EscrowTransaction, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT `+escrowColumns+` FROM escrow_transactions WHERE gateway_tracking_id = $1`, trackingID))
}

func (r *EscrowRepo) SetTrackingID(ctx context.Context, id uuid.UUID, trackingID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE escrow_transactions SET gateway_tracking_id = $1, updated_at = now()
		WHERE id = $2 AND gateway_tracking_id IS NULL
	`, trackingID, id)
	return err
}

// MarkReady captures a confirmed payment. held_at and ready_at are
// stamped together: there is no manual review step between them. The
// WHERE guard makes the update a compare-and-set; false means another
// writer got there first.
func (r *EscrowRepo) MarkReady(ctx context.Context, id uuid.UUID, from string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrow_transactions
		SET status = $1, held_at = COALESCE(held_at, now()), ready_at = now(), updated_at = now()
		WHERE id = $2 AND status = $3
	`, models.EscrowStatusReady, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EscrowRepo) MarkFailed(ctx context.Context, id uuid.UUID, from, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrow_transactions
		SET status = $1, failed_at = now(), failure_reason = $2, updated_at = now()
		WHERE id = $3 AND status = $4
	`, models.EscrowStatusFailed, reason, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EscrowRepo) MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrow_transactions
		SET status = $1, refunded_at = now(), updated_at = now()
		WHERE id = $2 AND status IN ($3, $4)
	`, models.EscrowStatusRefunded, id, models.EscrowStatusHeld, models.EscrowStatusReady)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EscrowRepo) MarkReleased(ctx context.Context, id uuid.UUID, amounts split.Amounts) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrow_transactions
		SET status = $1, split_amounts = $2, released_at = now(), updated_at = now()
		WHERE id = $3 AND status IN ($4, $5)
	`, models.EscrowStatusReleased, amounts, id, models.EscrowStatusHeld, models.EscrowStatusReady)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListStalePending returns transactions still pending after olderThan
// that have a tracking id, for the reconciliation worker to re-poll.
func (r *EscrowRepo) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.EscrowTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+escrowColumns+`
		FROM escrow_transactions
		WHERE status = $1 AND gateway_tracking_id IS NOT NULL AND created_at < now() - $2::interval
		ORDER BY created_at ASC LIMIT $3
	`, models.EscrowStatusPending, olderThan.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EscrowTransaction
	for rows.Next() {
		t, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *EscrowRepo) ListByGuest(ctx context.Context, guestID uuid.UUID, limit, offset int) ([]models.EscrowTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+escrowColumns+`
		FROM escrow_transactions
		WHERE guest_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, guestID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EscrowTransaction
	for rows.Next() {
		t, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
