package repositories

import (
	"context"
	"time"

	"github.com/bookstay/payments-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WithdrawRepo struct {
	pool *pgxpool.Pool
}

func NewWithdrawRepo(pool *pgxpool.Pool) *WithdrawRepo {
	return &WithdrawRepo{pool: pool}
}

const withdrawalColumns = `
	id, user_id, amount_cents, currency, method, destination, status,
	payout_provider_id, reference, failure_reason, created_at, updated_at`

func (r *WithdrawRepo) scanOne(row interface{ Scan(...any) error }) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.Currency, &w.Method, &w.Destination,
		&w.Status, &w.PayoutProviderID, &w.Reference, &w.FailureReason, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WithdrawRepo) Create(ctx context.Context, w *models.WithdrawalRequest) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO withdrawal_requests
			(user_id, amount_cents, currency, method, destination, status, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, w.UserID, w.Amount, w.Currency, w.Method, w.Destination, w.Status, w.Reference).
		Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
}

func (r *WithdrawRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id))
}

func (r *WithdrawRepo) GetByPayoutProviderID(ctx context.Context, payoutID string) (*models.WithdrawalRequest, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE payout_provider_id = $1`, payoutID))
}

// MarkProcessing records the provider ack. Guarded on pending so a
// duplicate submit cannot overwrite an existing provider id.
func (r *WithdrawRepo) MarkProcessing(ctx context.Context, id uuid.UUID, payoutProviderID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE withdrawal_requests
		SET status = $1, payout_provider_id = $2, updated_at = now()
		WHERE id = $3 AND status = $4
	`, models.WithdrawalStatusProcessing, payoutProviderID, id, models.WithdrawalStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetPayoutProviderID records the provider ack outside the normal
// pending to processing path, for requests settled concurrently with
// the submission. Never overwrites an existing id.
func (r *WithdrawRepo) SetPayoutProviderID(ctx context.Context, id uuid.UUID, payoutProviderID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE withdrawal_requests
		SET payout_provider_id = $1, updated_at = now()
		WHERE id = $2 AND payout_provider_id IS NULL
	`, payoutProviderID, id)
	return err
}

func (r *WithdrawRepo) MarkCompleted(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE withdrawal_requests
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, models.WithdrawalStatusCompleted, id, models.WithdrawalStatusProcessing)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *WithdrawRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE withdrawal_requests
		SET status = $1, failure_reason = $2, updated_at = now()
		WHERE id = $3 AND status IN ($4, $5)
	`, models.WithdrawalStatusFailed, reason, id,
		models.WithdrawalStatusPending, models.WithdrawalStatusProcessing)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *WithdrawRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *WithdrawRepo) ListAll(ctx context.Context, status string, limit, offset int) ([]models.WithdrawalRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

// ListStuckProcessing returns requests the provider acked but never
// called back about, for the payout poller.
func (r *WithdrawRepo) ListStuckProcessing(ctx context.Context, olderThan time.Duration, limit int) ([]models.WithdrawalRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE status = $1 AND payout_provider_id IS NOT NULL AND updated_at < now() - $2::interval
		ORDER BY updated_at ASC LIMIT $3
	`, models.WithdrawalStatusProcessing, olderThan.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *WithdrawRepo) collect(rows pgx.Rows) ([]models.WithdrawalRequest, error) {
	var out []models.WithdrawalRequest
	for rows.Next() {
		w, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}
