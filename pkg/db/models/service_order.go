package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/studentnest/nest-backend/pkg/enums"
)

// ServiceOrder is a quantity-bounded order for an ancillary service.
type ServiceOrder struct {
	ID            uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	StudentID     uuid.UUID                `gorm:"column:student_id;type:uuid;not null;index"`
	ServiceID     uuid.UUID                `gorm:"column:service_id;type:uuid;not null;index"`
	PaymentID     *uuid.UUID               `gorm:"column:payment_id;type:uuid;uniqueIndex"`
	Quantity      int                      `gorm:"column:quantity;not null"`
	ScheduledFor  *time.Time               `gorm:"column:scheduled_for"`
	Status        enums.ServiceOrderStatus `gorm:"column:status;type:text;not null"`
	Amount        int64                    `gorm:"column:amount;not null"`
	PaymentStatus enums.PaymentStatus      `gorm:"column:payment_status;type:text;not null"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *ServiceOrder) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
