package webhooks

// EventKind is the closed set of processor event types this service acts on.
// Anything else parses to KindUnknown and is acknowledged without dispatch.
type EventKind uint8

const (
	KindUnknown EventKind = iota
	KindPaymentIntentSucceeded
	KindPaymentIntentFailed
	KindSubscriptionCreated
	KindSubscriptionUpdated
	KindSubscriptionDeleted
	KindInvoicePaymentSucceeded
	KindInvoicePaymentFailed
	KindCustomerCreated
	KindCustomerUpdated
)

var kindNames = map[EventKind]string{
	KindPaymentIntentSucceeded:  "payment_intent.succeeded",
	KindPaymentIntentFailed:     "payment_intent.payment_failed",
	KindSubscriptionCreated:     "customer.subscription.created",
	KindSubscriptionUpdated:     "customer.subscription.updated",
	KindSubscriptionDeleted:     "customer.subscription.deleted",
	KindInvoicePaymentSucceeded: "invoice.payment_succeeded",
	KindInvoicePaymentFailed:    "invoice.payment_failed",
	KindCustomerCreated:         "customer.created",
	KindCustomerUpdated:         "customer.updated",
}

var kindsByName = func() map[string]EventKind {
	out := make(map[string]EventKind, len(kindNames))
	for kind, name := range kindNames {
		out[name] = kind
	}
	return out
}()

// ParseEventKind maps a raw processor type onto an EventKind.
func ParseEventKind(raw string) EventKind {
	if kind, ok := kindsByName[raw]; ok {
		return kind
	}
	return KindUnknown
}

// String returns the processor's wire name, or "unknown".
func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Known reports whether the kind has a wire name.
func (k EventKind) Known() bool {
	_, ok := kindNames[k]
	return ok
}
