package webhooks

import (
	"context"
	"errors"
	"fmt"
)

// Severity classifies a handler failure.
type Severity string

const (
	SeverityRetryable Severity = "retryable"
	SeverityFatal     Severity = "fatal"
)

// HandlerError carries the severity a handler assigned to its failure.
type HandlerError struct {
	Severity Severity
	Err      error
}

func (e *HandlerError) Error() string {
	if e.Err == nil {
		return string(e.Severity)
	}
	return fmt.Sprintf("%s: %v", e.Severity, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Retryable marks err as transient; the processor's redelivery may succeed.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &HandlerError{Severity: SeverityRetryable, Err: err}
}

// Fatal marks err as permanent; redelivery will not fix it.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &HandlerError{Severity: SeverityFatal, Err: err}
}

// SeverityOf classifies a handler error. Unclassified errors and deadline
// expiry are retryable.
func SeverityOf(err error) Severity {
	var herr *HandlerError
	if errors.As(err, &herr) && herr.Severity == SeverityFatal {
		return SeverityFatal
	}
	return SeverityRetryable
}

// Handler applies one verified event to the domain. It returns nil (Ok), or
// an error wrapped with Retryable or Fatal. Handlers must be state-setting so
// that running them twice for the same event is harmless.
type Handler interface {
	Handle(ctx context.Context, event *VerifiedEvent) error
}

type HandlerFunc func(ctx context.Context, event *VerifiedEvent) error

func (f HandlerFunc) Handle(ctx context.Context, event *VerifiedEvent) error {
	return f(ctx, event)
}

// Handlers is the static dispatch table. A nil field means the kind is
// acknowledged and ignored.
type Handlers struct {
	PaymentIntentSucceeded  Handler
	PaymentIntentFailed     Handler
	SubscriptionCreated     Handler
	SubscriptionUpdated     Handler
	SubscriptionDeleted     Handler
	InvoicePaymentSucceeded Handler
	InvoicePaymentFailed    Handler
	CustomerCreated         Handler
	CustomerUpdated         Handler
}

// For resolves the handler of a kind, or nil.
func (h Handlers) For(kind EventKind) Handler {
	switch kind {
	case KindPaymentIntentSucceeded:
		return h.PaymentIntentSucceeded
	case KindPaymentIntentFailed:
		return h.PaymentIntentFailed
	case KindSubscriptionCreated:
		return h.SubscriptionCreated
	case KindSubscriptionUpdated:
		return h.SubscriptionUpdated
	case KindSubscriptionDeleted:
		return h.SubscriptionDeleted
	case KindInvoicePaymentSucceeded:
		return h.InvoicePaymentSucceeded
	case KindInvoicePaymentFailed:
		return h.InvoicePaymentFailed
	case KindCustomerCreated:
		return h.CustomerCreated
	case KindCustomerUpdated:
		return h.CustomerUpdated
	case KindUnknown:
		return nil
	default:
		return nil
	}
}
