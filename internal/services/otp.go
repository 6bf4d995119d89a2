package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/bookstay/payments-backend/internal/money"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	otpKeyPrefix      = "withdraw_otp:"
	otpAttemptsSuffix = ":attempts"
	otpResendCooldown = 30 * time.Second
)

// SMSSender delivers verification codes. The production implementation
// talks to an SMS provider; tests use a recorder.
type SMSSender interface {
	Send(ctx context.Context, phoneNumber, message string) error
}

type otpRecord struct {
	Code        string      `json:"code"`
	Amount      money.Cents `json:"amount_cents"`
	PhoneNumber string      `json:"phone_number"`
	IssuedAt    time.Time   `json:"issued_at"`
}

// OTPService issues and verifies single-use withdrawal codes in redis.
// A code is bound to the requested amount and consumed on first
// successful verification.
type OTPService struct {
	rdb         *redis.Client
	sms         SMSSender
	ttl         time.Duration
	maxAttempts int
	log         *zap.Logger
}

func NewOTPService(rdb *redis.Client, sms SMSSender, ttl time.Duration, maxAttempts int, log *zap.Logger) *OTPService {
	return &OTPService{
		rdb:         rdb,
		sms:         sms,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Request issues a fresh code for the given withdrawal amount and sends
// it to the phone number. Any previously issued code for the user is
// replaced.
func (s *OTPService) Request(ctx context.Context, userID uuid.UUID, phoneNumber string, amount money.Cents) error {
	code, err := generateOTPCode()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	rec := otpRecord{
		Code:        code,
		Amount:      amount,
		PhoneNumber: phoneNumber,
		IssuedAt:    time.Now().UTC(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	key := otpKeyPrefix + userID.String()
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key, raw, s.ttl)
	pipe.Del(ctx, key+otpAttemptsSuffix)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	msg := fmt.Sprintf("Your withdrawal code is %s. It confirms a withdrawal of %s and expires in %d minutes.",
		code, amount, int(s.ttl.Minutes()))
	if err := s.sms.Send(ctx, phoneNumber, msg); err != nil {
		s.log.Error("send otp sms", zap.String("user_id", userID.String()), zap.Error(err))
		return fmt.Errorf("send otp: %w", err)
	}
	return nil
}

// Resend redelivers the currently active code. Issues nothing new so an
// attacker cannot reset the attempt counter; a short cooldown limits
// SMS spam.
func (s *OTPService) Resend(ctx context.Context, userID uuid.UUID) error {
	key := otpKeyPrefix + userID.String()
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrOTPInvalid
		}
		return err
	}
	var rec otpRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return err
	}
	if time.Since(rec.IssuedAt) < otpResendCooldown {
		return fmt.Errorf("%w: please wait before requesting another code", ErrOTPInvalid)
	}

	msg := fmt.Sprintf("Your withdrawal code is %s. It confirms a withdrawal of %s.", rec.Code, rec.Amount)
	return s.sms.Send(ctx, rec.PhoneNumber, msg)
}

// Verify checks the code against the stored record and consumes it on
// success. Wrong codes burn an attempt; exhausting the attempts deletes
// the record.
func (s *OTPService) Verify(ctx context.Context, userID uuid.UUID, code string, amount money.Cents) error {
	key := otpKeyPrefix + userID.String()
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrOTPInvalid
		}
		return err
	}
	var rec otpRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return err
	}

	codeOK := subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) == 1
	if !codeOK || rec.Amount != amount {
		attempts, incErr := s.rdb.Incr(ctx, key+otpAttemptsSuffix).Result()
		if incErr != nil {
			return incErr
		}
		s.rdb.Expire(ctx, key+otpAttemptsSuffix, s.ttl)
		if attempts >= int64(s.maxAttempts) {
			s.rdb.Del(ctx, key, key+otpAttemptsSuffix)
			s.log.Warn("otp attempts exhausted", zap.String("user_id", userID.String()))
		}
		return ErrOTPInvalid
	}

	if _, err := s.rdb.Del(ctx, key, key+otpAttemptsSuffix).Result(); err != nil {
		return err
	}
	return nil
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// LogSMSSender writes codes to the log instead of sending them. Used in
// development and sandbox environments without an SMS provider.
type LogSMSSender struct {
	Log *zap.Logger
}

func (s *LogSMSSender) Send(_ context.Context, phoneNumber, message string) error {
	s.Log.Info("sms (not sent)", zap.String("to", phoneNumber), zap.String("message", message))
	return nil
}
