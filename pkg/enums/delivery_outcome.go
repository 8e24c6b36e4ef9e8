package enums

import "fmt"

// DeliveryOutcome is the lifecycle state of a webhook delivery record.
type DeliveryOutcome string

const (
	DeliveryOutcomeInProgress DeliveryOutcome = "in_progress"
	DeliveryOutcomeSuccess    DeliveryOutcome = "success"
	DeliveryOutcomeFailed     DeliveryOutcome = "failed"
)

var validDeliveryOutcomes = []DeliveryOutcome{
	DeliveryOutcomeInProgress,
	DeliveryOutcomeSuccess,
	DeliveryOutcomeFailed,
}

// String implements fmt.Stringer.
func (o DeliveryOutcome) String() string {
	return string(o)
}

// IsValid reports whether the value is a known DeliveryOutcome.
func (o DeliveryOutcome) IsValid() bool {
	for _, candidate := range validDeliveryOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseDeliveryOutcome converts raw input into a DeliveryOutcome.
func ParseDeliveryOutcome(value string) (DeliveryOutcome, error) {
	for _, candidate := range validDeliveryOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery outcome %q", value)
}
