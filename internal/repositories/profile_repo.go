package repositories

import (
	"context"
	"time"

	"github.com/bookstay/payments-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

// Upsert creates or refreshes the payments profile for a platform user.
// Incoming nil fields keep whatever the row already has.
func (r *ProfileRepo) Upsert(ctx context.Context, userID uuid.UUID, email, phoneNumber *string, role string) (*models.PaymentProfile, error) {
	var p models.PaymentProfile
	err := r.pool.QueryRow(ctx, `
		INSERT INTO payment_profiles (user_id, email, phone_number, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			email = COALESCE(EXCLUDED.email, payment_profiles.email),
			phone_number = COALESCE(EXCLUDED.phone_number, payment_profiles.phone_number),
			role = EXCLUDED.role,
			last_seen_at = now()
		RETURNING user_id, email, phone_number, role, created_at, last_seen_at
	`, userID, email, phoneNumber, role).Scan(
		&p.UserID, &p.Email, &p.PhoneNumber, &p.Role, &p.CreatedAt, &p.LastSeenAt,
	)
	return &p, err
}

func (r *ProfileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.PaymentProfile, error) {
	var p models.PaymentProfile
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, email, phone_number, role, created_at, last_seen_at
		FROM payment_profiles WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.Email, &p.PhoneNumber, &p.Role, &p.CreatedAt, &p.LastSeenAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProfileRepo) UpdatePhone(ctx context.Context, userID uuid.UUID, phoneNumber string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payment_profiles SET phone_number = $1, last_seen_at = now() WHERE user_id = $2
	`, phoneNumber, userID)
	return err
}

func (r *ProfileRepo) UpdateLastSeen(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE payment_profiles SET last_seen_at = $1 WHERE user_id = $2`, time.Now(), userID)
	return err
}
