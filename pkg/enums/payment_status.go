package enums

import "fmt"

// PaymentStatus mirrors the payment intent states the service persists.
type PaymentStatus string

const (
	PaymentStatusRequiresPaymentMethod PaymentStatus = "requires_payment_method"
	PaymentStatusRequiresConfirmation  PaymentStatus = "requires_confirmation"
	PaymentStatusRequiresAction        PaymentStatus = "requires_action"
	PaymentStatusProcessing            PaymentStatus = "processing"
	PaymentStatusSucceeded             PaymentStatus = "succeeded"
	PaymentStatusFailed                PaymentStatus = "failed"
	PaymentStatusCanceled              PaymentStatus = "canceled"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusRequiresPaymentMethod,
	PaymentStatusRequiresConfirmation,
	PaymentStatusRequiresAction,
	PaymentStatusProcessing,
	PaymentStatusSucceeded,
	PaymentStatusFailed,
	PaymentStatusCanceled,
}

// Rank orders statuses along the payment intent lifecycle.
func (p PaymentStatus) Rank() int {
	switch p {
	case PaymentStatusRequiresPaymentMethod:
		return 1
	case PaymentStatusRequiresConfirmation:
		return 2
	case PaymentStatusRequiresAction:
		return 3
	case PaymentStatusProcessing:
		return 4
	case PaymentStatusFailed:
		return 5
	case PaymentStatusSucceeded, PaymentStatusCanceled:
		return 6
	default:
		return 0
	}
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
