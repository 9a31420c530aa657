package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookEvent keeps the raw gateway delivery for audit replay.
type WebhookEvent struct {
	ID               uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	EventID          string         `gorm:"column:event_id;not null;uniqueIndex"`
	EventType        string         `gorm:"column:event_type;not null"`
	GatewayOrderID   *string        `gorm:"column:gateway_order_id;index"`
	GatewayPaymentID *string        `gorm:"column:gateway_payment_id"`
	Payload          datatypes.JSON `gorm:"column:payload;not null"`
	ProcessedAt      *time.Time     `gorm:"column:processed_at"`
	ProcessingError  *string        `gorm:"column:processing_error"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (e *WebhookEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
