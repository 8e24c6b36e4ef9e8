package models

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/stripeapp-backend/pkg/enums"
)

// Subscription persists Stripe subscription state per customer.
type Subscription struct {
	StripeSubscriptionID string                   `gorm:"column:stripe_subscription_id;primaryKey"`
	StripeCustomerID     string                   `gorm:"column:stripe_customer_id;not null;index"`
	Status               enums.SubscriptionStatus `gorm:"column:status;not null"`
	PriceID              *string                  `gorm:"column:price_id"`
	Quantity             int64                    `gorm:"column:quantity;not null;default:1"`
	CurrentPeriodEnd     *time.Time               `gorm:"column:current_period_end"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt           *time.Time               `gorm:"column:canceled_at"`
	Metadata             json.RawMessage          `gorm:"column:metadata"`
	SourceEventAt        time.Time                `gorm:"column:source_event_at;not null"`
	StateRank            int                      `gorm:"column:state_rank;not null;default:0"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (Subscription) TableName() string { return "subscriptions" }
