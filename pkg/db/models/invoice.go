package models

import (
	"time"

	"github.com/angelmondragon/stripeapp-backend/pkg/enums"
)

// Invoice records the latest known state of a Stripe invoice.
type Invoice struct {
	StripeInvoiceID      string              `gorm:"column:stripe_invoice_id;primaryKey"`
	StripeCustomerID     string              `gorm:"column:stripe_customer_id;not null"`
	StripeSubscriptionID *string             `gorm:"column:stripe_subscription_id;index"`
	Status               enums.InvoiceStatus `gorm:"column:status;not null"`
	AmountDueCents       int64               `gorm:"column:amount_due_cents;not null"`
	AmountPaidCents      int64               `gorm:"column:amount_paid_cents;not null"`
	Currency             string              `gorm:"column:currency;not null"`
	AttemptCount         int64               `gorm:"column:attempt_count;not null;default:0"`
	HostedInvoiceURL     *string             `gorm:"column:hosted_invoice_url"`
	SourceEventAt        time.Time           `gorm:"column:source_event_at;not null"`
	StateRank            int                 `gorm:"column:state_rank;not null;default:0"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Invoice) TableName() string { return "invoices" }
