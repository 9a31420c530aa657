package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/studentnest/nest-backend/pkg/enums"
)

// Booking is a room reservation.
type Booking struct {
	ID                 uuid.UUID                              `gorm:"column:id;type:uuid;primaryKey"`
	StudentID          uuid.UUID                              `gorm:"column:student_id;type:uuid;not null;index"`
	RoomID             uuid.UUID                              `gorm:"column:room_id;type:uuid;not null;index"`
	HostID             uuid.UUID                              `gorm:"column:host_id;type:uuid;not null;index"`
	PaymentID          *uuid.UUID                             `gorm:"column:payment_id;type:uuid;uniqueIndex"`
	CheckIn            time.Time                              `gorm:"column:check_in;not null"`
	CheckOut           time.Time                              `gorm:"column:check_out;not null"`
	Status             enums.BookingStatus                    `gorm:"column:status;type:text;not null"`
	TotalAmount        int64                                  `gorm:"column:total_amount;not null"`
	PaidAmount         int64                                  `gorm:"column:paid_amount;not null"`
	PaymentStatus      enums.PaymentStatus                    `gorm:"column:payment_status;type:text;not null"`
	AdditionalServices datatypes.JSONType[AdditionalServices] `gorm:"column:additional_services"`
	CancellationReason *string                                `gorm:"column:cancellation_reason"`
	RefundAmount       *int64                                 `gorm:"column:refund_amount"`
	CancelledAt        *time.Time                             `gorm:"column:cancelled_at"`
	Rating             *int                                   `gorm:"column:rating"`
	Review             *string                                `gorm:"column:review"`
	CreatedAt          time.Time                              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                              `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *Booking) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// AdditionalServices are the per-booking add-ons with their prices in minor units.
type AdditionalServices struct {
	Meals   ServiceSelection `json:"meals"`
	Laundry ServiceSelection `json:"laundry"`
	Tea     ServiceSelection `json:"tea"`
}

type ServiceSelection struct {
	Included bool  `json:"included"`
	Price    int64 `json:"price"`
}

// Total sums the included add-ons.
func (a AdditionalServices) Total() int64 {
	var total int64
	for _, sel := range []ServiceSelection{a.Meals, a.Laundry, a.Tea} {
		if sel.Included {
			total += sel.Price
		}
	}
	return total
}
