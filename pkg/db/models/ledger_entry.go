package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/studentnest/nest-backend/pkg/enums"
)

// LedgerEntry records one payment attempt and its outcome. Rows are never
// deleted; status only moves along enums.PaymentStatus transitions.
type LedgerEntry struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	GatewayOrderID   string              `gorm:"column:gateway_order_id;not null;uniqueIndex"`
	GatewayPaymentID *string             `gorm:"column:gateway_payment_id;uniqueIndex"`
	GatewaySignature *string             `gorm:"column:gateway_signature"`
	Amount           int64               `gorm:"column:amount;not null"`
	Currency         string              `gorm:"column:currency;not null"`
	ItemType         enums.ItemType      `gorm:"column:item_type;type:text;not null"`
	ItemID           uuid.UUID           `gorm:"column:item_id;type:uuid;not null"`
	ItemName         string              `gorm:"column:item_name;not null"`
	Status           enums.PaymentStatus `gorm:"column:status;type:text;not null;index"`
	Receipt          string              `gorm:"column:receipt;not null;uniqueIndex"`
	PaidAt           *time.Time          `gorm:"column:paid_at"`
	RefundedAt       *time.Time          `gorm:"column:refunded_at"`
	RefundAmount     *int64              `gorm:"column:refund_amount"`
	GatewayRefundID  *string             `gorm:"column:gateway_refund_id"`
	FailureReason    *string             `gorm:"column:failure_reason"`
	GatewayPayload   datatypes.JSON      `gorm:"column:gateway_payload"`

	Customer datatypes.JSONType[CustomerContact] `gorm:"column:customer"`
	Details  datatypes.JSONType[ItemDetails]     `gorm:"column:details"`

	FulfillmentID *uuid.UUID `gorm:"column:fulfillment_id;type:uuid"`
	NeedsReview   bool       `gorm:"column:needs_review;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (LedgerEntry) TableName() string { return "payments" }

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// CustomerContact is the contact snapshot captured at checkout.
type CustomerContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// ItemDetails carries what fulfillment needs to build the downstream record.
type ItemDetails struct {
	CheckIn            *time.Time          `json:"check_in,omitempty"`
	CheckOut           *time.Time          `json:"check_out,omitempty"`
	StartDate          *time.Time          `json:"start_date,omitempty"`
	ScheduledFor       *time.Time          `json:"scheduled_for,omitempty"`
	Quantity           int                 `json:"quantity,omitempty"`
	AdditionalServices *AdditionalServices `json:"additional_services,omitempty"`
}
