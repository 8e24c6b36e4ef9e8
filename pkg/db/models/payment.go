package models

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/stripeapp-backend/pkg/enums"
)

// Payment mirrors a Stripe payment intent as last observed via webhook.
type Payment struct {
	StripePaymentIntentID string              `gorm:"column:stripe_payment_intent_id;primaryKey"`
	StripeCustomerID      *string             `gorm:"column:stripe_customer_id"`
	Status                enums.PaymentStatus `gorm:"column:status;not null"`
	AmountCents           int64               `gorm:"column:amount_cents;not null"`
	Currency              string              `gorm:"column:currency;not null"`
	ReceiptEmail          *string             `gorm:"column:receipt_email"`
	FailureMessage        *string             `gorm:"column:failure_message"`
	Metadata              json.RawMessage     `gorm:"column:metadata"`
	SourceEventAt         time.Time           `gorm:"column:source_event_at;not null"`
	StateRank             int                 `gorm:"column:state_rank;not null;default:0"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }
