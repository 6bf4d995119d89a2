package services

import (
	"fmt"
	"strings"

	"github.com/bookstay/payments-backend/internal/models"
)

// validateDestination normalizes and validates a payout target for the
// given method. Phone numbers are normalized to E.164 with the Kenyan
// country code; bank details require a numeric bank code and account
// number plus an account name.
func validateDestination(method string, d models.WithdrawalDestination) (models.WithdrawalDestination, error) {
	switch method {
	case models.WithdrawalMethodMobile:
		phone, err := normalizePhone(d.PhoneNumber)
		if err != nil {
			return models.WithdrawalDestination{}, err
		}
		return models.WithdrawalDestination{
			PhoneNumber: phone,
			Carrier:     inferCarrier(phone),
		}, nil

	case models.WithdrawalMethodBank:
		code := strings.TrimSpace(d.BankCode)
		account := strings.TrimSpace(d.AccountNumber)
		name := strings.TrimSpace(d.AccountName)
		if !isDigits(code) || len(code) < 2 || len(code) > 5 {
			return models.WithdrawalDestination{}, fmt.Errorf("%w: bank code must be 2-5 digits", ErrInvalidDestination)
		}
		if !isDigits(account) || len(account) < 6 || len(account) > 20 {
			return models.WithdrawalDestination{}, fmt.Errorf("%w: account number must be 6-20 digits", ErrInvalidDestination)
		}
		if name == "" {
			return models.WithdrawalDestination{}, fmt.Errorf("%w: account name is required", ErrInvalidDestination)
		}
		return models.WithdrawalDestination{
			BankCode:      code,
			AccountNumber: account,
			AccountName:   name,
		}, nil

	default:
		return models.WithdrawalDestination{}, fmt.Errorf("%w: unknown method %q", ErrInvalidDestination, method)
	}
}

// normalizePhone accepts 07XXXXXXXX, 7XXXXXXXX, 2547XXXXXXXX or
// +2547XXXXXXXX and returns the +254 form.
func normalizePhone(raw string) (string, error) {
	p := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	p = strings.TrimPrefix(p, "+")
	switch {
	case strings.HasPrefix(p, "254") && len(p) == 12:
	case strings.HasPrefix(p, "0") && len(p) == 10:
		p = "254" + p[1:]
	case len(p) == 9 && (p[0] == '7' || p[0] == '1'):
		p = "254" + p
	default:
		return "", fmt.Errorf("%w: unrecognized phone number format", ErrInvalidDestination)
	}
	if !isDigits(p) {
		return "", fmt.Errorf("%w: phone number must be digits", ErrInvalidDestination)
	}
	return "+" + p, nil
}

// inferCarrier maps a normalized +254 number to its carrier by prefix.
// Unknown prefixes return an empty carrier; the provider resolves those
// itself.
func inferCarrier(phone string) string {
	if len(phone) != 13 {
		return ""
	}
	prefix := phone[4:7] // 7XX or 1XX
	switch {
	case prefix >= "700" && prefix <= "729",
		prefix >= "740" && prefix <= "743",
		prefix >= "790" && prefix <= "799",
		prefix >= "110" && prefix <= "115":
		return "safaricom"
	case prefix >= "730" && prefix <= "739",
		prefix >= "750" && prefix <= "756",
		prefix >= "100" && prefix <= "102":
		return "airtel"
	case prefix >= "770" && prefix <= "779":
		return "telkom"
	default:
		return ""
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
