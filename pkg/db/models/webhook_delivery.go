package models

import (
	"time"

	"github.com/angelmondragon/stripeapp-backend/pkg/enums"
)

// WebhookDelivery is the durable idempotency record for one provider event.
type WebhookDelivery struct {
	Provider    string                `gorm:"column:provider;primaryKey"`
	EventID     string                `gorm:"column:event_id;primaryKey"`
	EventType   string                `gorm:"column:event_type;not null"`
	Outcome     enums.DeliveryOutcome `gorm:"column:outcome;not null"`
	Attempts    int                   `gorm:"column:attempts;not null;default:1"`
	ClaimedAt   time.Time             `gorm:"column:claimed_at;not null"`
	ProcessedAt *time.Time            `gorm:"column:processed_at"`
	LastError   *string               `gorm:"column:last_error"`
	Fatal       bool                  `gorm:"column:fatal;not null;default:false"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (WebhookDelivery) TableName() string { return "webhook_deliveries" }
