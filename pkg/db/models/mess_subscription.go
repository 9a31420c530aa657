package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/studentnest/nest-backend/pkg/enums"
)

// MessSubscription is a date-bounded meal plan agreement.
type MessSubscription struct {
	ID            uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	StudentID     uuid.UUID                `gorm:"column:student_id;type:uuid;not null;index"`
	MessPlanID    uuid.UUID                `gorm:"column:mess_plan_id;type:uuid;not null;index"`
	PaymentID     *uuid.UUID               `gorm:"column:payment_id;type:uuid;uniqueIndex"`
	StartDate     time.Time                `gorm:"column:start_date;not null"`
	EndDate       time.Time                `gorm:"column:end_date;not null"`
	Status        enums.SubscriptionStatus `gorm:"column:status;type:text;not null"`
	Amount        int64                    `gorm:"column:amount;not null"`
	PaymentStatus enums.PaymentStatus      `gorm:"column:payment_status;type:text;not null"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *MessSubscription) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
