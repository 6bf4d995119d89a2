package dto

type AuthResponse struct {
	Token   string `json:"token"`
	Profile any    `json:"profile"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type DepositResponse struct {
	Transaction any    `json:"transaction"`
	CheckoutURL string `json:"checkout_url"`
}

type WalletResponse struct {
	WalletID     string `json:"wallet_id"`
	BalanceCents int64  `json:"balance_cents"`
	Balance      string `json:"balance"`
	Currency     string `json:"currency"`
}
