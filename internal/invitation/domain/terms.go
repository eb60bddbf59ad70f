package domain

import (
	"net/mail"
	"strings"
)

// NormalizeEmail lower-cases and validates an address. It returns "" when the
// address cannot be parsed.
func NormalizeEmail(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return ""
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return ""
	}
	return value
}

// ValidateCommission checks commission terms and returns the normalized type.
func ValidateCommission(commissionType string, rate, amount float64) (string, error) {
	commissionType = strings.ToLower(strings.TrimSpace(commissionType))
	switch commissionType {
	case CommissionPercentage:
		if rate <= 0 || rate > 100 {
			return "", ErrInvalidCommissionRate
		}
	case CommissionFixed:
		if amount <= 0 {
			return "", ErrInvalidCommissionAmount
		}
	default:
		return "", ErrInvalidCommissionType
	}
	return commissionType, nil
}
