package gateway

import "github.com/bookstay/payments-backend/internal/money"

// Provider transaction statuses as returned by GetTransactionStatus.
const (
	ProviderStatusPending   = "PENDING"
	ProviderStatusCompleted = "COMPLETED"
	ProviderStatusFailed    = "FAILED"
	ProviderStatusInvalid   = "INVALID"
	ProviderStatusReversed  = "REVERSED"
)

// Provider payout statuses.
const (
	PayoutStatusPending   = "PENDING"
	PayoutStatusCompleted = "COMPLETED"
	PayoutStatusFailed    = "FAILED"
)

type BillingAddress struct {
	Email       string `json:"email_address"`
	Phone       string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	CountryCode string `json:"country_code"`
}

type CheckoutRequest struct {
	Reference   string
	Amount      money.Cents
	Currency    string
	Description string
	Billing     BillingAddress
}

type CheckoutResponse struct {
	TrackingID  string
	RedirectURL string
}

type TransactionStatus struct {
	TrackingID        string
	MerchantReference string
	Status            string // ProviderStatus*
	PaymentMethod     string
	ConfirmationCode  string
	Amount            money.Cents
	Currency          string
}

type PayoutRequest struct {
	Reference     string
	Amount        money.Cents
	Currency      string
	Narration     string
	PhoneNumber   string // mobile payouts
	BankCode      string // bank payouts
	AccountNumber string
	AccountName   string
}

type PayoutResponse struct {
	PayoutID string
	Status   string
}

type PayoutStatusResponse struct {
	PayoutID string
	Status   string // PayoutStatus*
	Reason   string
}

// RefundRequest reverses a captured transaction at the provider. A nil
// Amount refunds the full captured amount.
type RefundRequest struct {
	TrackingID string
	Amount     *money.Cents
	Remarks    string
}
