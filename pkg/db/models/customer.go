package models

import (
	"encoding/json"
	"time"
)

// Customer mirrors a Stripe customer.
type Customer struct {
	StripeCustomerID string          `gorm:"column:stripe_customer_id;primaryKey"`
	Email            *string         `gorm:"column:email"`
	Name             *string         `gorm:"column:name"`
	Metadata         json.RawMessage `gorm:"column:metadata"`
	SourceEventAt    time.Time       `gorm:"column:source_event_at;not null"`
	StateRank        int             `gorm:"column:state_rank;not null;default:0"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Customer) TableName() string { return "customers" }
