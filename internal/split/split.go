package split

import (
	"errors"

	"github.com/bookstay/payments-backend/internal/money"
	"github.com/shopspring/decimal"
)

var ErrInvalidRules = errors.New("invalid split rules")

var (
	hundred   = decimal.NewFromInt(100)
	tolerance = decimal.RequireFromString("0.01")
)

// Rules is the percentage allocation of an escrowed amount among the
// host, the agent and the platform. Percentages must be non-negative
// and sum to 100 within 0.01.
type Rules struct {
	Host     decimal.Decimal `json:"host"`
	Agent    decimal.Decimal `json:"agent"`
	Platform decimal.Decimal `json:"platform"`
}

// Amounts is the per-beneficiary result of applying Rules to an amount.
type Amounts struct {
	Host     money.Cents `json:"host_cents"`
	Agent    money.Cents `json:"agent_cents"`
	Platform money.Cents `json:"platform_cents"`
}

func (r Rules) Validate() error {
	if r.Host.IsNegative() || r.Agent.IsNegative() || r.Platform.IsNegative() {
		return ErrInvalidRules
	}
	sum := r.Host.Add(r.Agent).Add(r.Platform)
	if sum.Sub(hundred).Abs().GreaterThan(tolerance) {
		return ErrInvalidRules
	}
	return nil
}

// Compute splits amount per the rules, rounding each share to a whole
// cent. Any rounding remainder is assigned to the platform share so the
// shares always sum exactly to amount.
func Compute(amount money.Cents, rules Rules) (Amounts, error) {
	if err := rules.Validate(); err != nil {
		return Amounts{}, err
	}

	total := decimal.NewFromInt(int64(amount))
	host := money.Cents(total.Mul(rules.Host).Div(hundred).Round(0).IntPart())
	agent := money.Cents(total.Mul(rules.Agent).Div(hundred).Round(0).IntPart())

	// Remainder to platform: whatever the rounded host and agent shares
	// left of the original amount.
	platform := amount - host - agent

	// Rounding both host and agent up can overshoot by a cent when the
	// platform share is ~0. Take the overshoot back from the larger share.
	if platform < 0 {
		if agent >= host {
			agent += platform
		} else {
			host += platform
		}
		platform = 0
	}

	return Amounts{Host: host, Agent: agent, Platform: platform}, nil
}
