package dto

import "github.com/shopspring/decimal"

// AuthTokenRequest is the service-to-service token exchange. The
// booking platform authenticates with the shared key and names the user
// the token is for.
type AuthTokenRequest struct {
	ServiceKey  string  `json:"service_key"`
	UserID      string  `json:"user_id"`
	Email       *string `json:"email,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	Role        string  `json:"role"`
}

type UpdatePhoneRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type BillingRequest struct {
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// CreateDepositRequest starts a hosted-checkout escrow deposit. Split
// percentages are optional; missing ones fall back to the configured
// defaults with the platform taking the remainder.
type CreateDepositRequest struct {
	HostID      string           `json:"host_id"`
	AgentID     *string          `json:"agent_id,omitempty"`
	AmountCents int64            `json:"amount_cents"`
	HostPct     *decimal.Decimal `json:"host_pct,omitempty"`
	AgentPct    *decimal.Decimal `json:"agent_pct,omitempty"`
	Description string           `json:"description"`
	Billing     BillingRequest   `json:"billing"`
}

type RefundEscrowRequest struct {
	AmountCents *int64 `json:"amount_cents,omitempty"` // nil refunds in full
}

type RequestOTPRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

type CreateWithdrawalRequest struct {
	AmountCents   int64  `json:"amount_cents"`
	Method        string `json:"method"` // mobile / bank
	PhoneNumber   string `json:"phone_number,omitempty"`
	BankCode      string `json:"bank_code,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
	OTPCode       string `json:"otp_code"`
}

type AdminWithdrawalUpdateRequest struct {
	Status string `json:"status"` // completed / failed
	Reason string `json:"reason,omitempty"`
}
