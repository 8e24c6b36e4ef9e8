package enums

import "fmt"

// NotificationKind selects the customer-facing message template.
type NotificationKind string

const (
	NotificationPaymentReceipt       NotificationKind = "payment_receipt"
	NotificationPaymentFailed        NotificationKind = "payment_failed"
	NotificationSubscriptionWelcome  NotificationKind = "subscription_welcome"
	NotificationSubscriptionCanceled NotificationKind = "subscription_canceled"
	NotificationInvoiceReceipt       NotificationKind = "invoice_receipt"
	NotificationInvoicePaymentFailed NotificationKind = "invoice_payment_failed"
	NotificationCustomerWelcome      NotificationKind = "customer_welcome"
)

var validNotificationKinds = []NotificationKind{
	NotificationPaymentReceipt,
	NotificationPaymentFailed,
	NotificationSubscriptionWelcome,
	NotificationSubscriptionCanceled,
	NotificationInvoiceReceipt,
	NotificationInvoicePaymentFailed,
	NotificationCustomerWelcome,
}

// IsValid checks whether the given kind matches a known template.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw strings into NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
