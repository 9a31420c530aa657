package bookings

import (
	"time"

	"github.com/google/uuid"

	"github.com/studentnest/nest-backend/pkg/db/models"
	"github.com/studentnest/nest-backend/pkg/enums"
	"github.com/studentnest/nest-backend/pkg/pagination"
)

// Actor is the authenticated caller.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

type CreateRequest struct {
	RoomID             uuid.UUID                  `json:"roomId" validate:"required"`
	CheckIn            time.Time                  `json:"checkIn" validate:"required"`
	CheckOut           time.Time                  `json:"checkOut" validate:"required"`
	AdditionalServices *models.AdditionalServices `json:"additionalServices,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed active completed cancelled"`
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type RateRequest struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Review string `json:"review" validate:"omitempty,max=2000"`
}

// BookingDTO is the public view of a booking.
type BookingDTO struct {
	ID                 uuid.UUID                 `json:"id"`
	StudentID          uuid.UUID                 `json:"studentId"`
	RoomID             uuid.UUID                 `json:"roomId"`
	HostID             uuid.UUID                 `json:"hostId"`
	PaymentID          *uuid.UUID                `json:"paymentId,omitempty"`
	CheckIn            time.Time                 `json:"checkIn"`
	CheckOut           time.Time                 `json:"checkOut"`
	Status             enums.BookingStatus       `json:"status"`
	TotalAmount        int64                     `json:"totalAmount"`
	PaidAmount         int64                     `json:"paidAmount"`
	PaymentStatus      enums.PaymentStatus       `json:"paymentStatus"`
	AdditionalServices models.AdditionalServices `json:"additionalServices"`
	CancellationReason *string                   `json:"cancellationReason,omitempty"`
	RefundAmount       *int64                    `json:"refundAmount,omitempty"`
	CancelledAt        *time.Time                `json:"cancelledAt,omitempty"`
	Rating             *int                      `json:"rating,omitempty"`
	Review             *string                   `json:"review,omitempty"`
	CreatedAt          time.Time                 `json:"createdAt"`
}

type ListResponse struct {
	Bookings   []BookingDTO `json:"bookings"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

func ToDTO(b *models.Booking) BookingDTO {
	return BookingDTO{
		ID:                 b.ID,
		StudentID:          b.StudentID,
		RoomID:             b.RoomID,
		HostID:             b.HostID,
		PaymentID:          b.PaymentID,
		CheckIn:            b.CheckIn,
		CheckOut:           b.CheckOut,
		Status:             b.Status,
		TotalAmount:        b.TotalAmount,
		PaidAmount:         b.PaidAmount,
		PaymentStatus:      b.PaymentStatus,
		AdditionalServices: b.AdditionalServices.Data(),
		CancellationReason: b.CancellationReason,
		RefundAmount:       b.RefundAmount,
		CancelledAt:        b.CancelledAt,
		Rating:             b.Rating,
		Review:             b.Review,
		CreatedAt:          b.CreatedAt,
	}
}

func toList(page pagination.Page[models.Booking]) ListResponse {
	out := ListResponse{Bookings: make([]BookingDTO, 0, len(page.Items)), NextCursor: page.NextCursor}
	for i := range page.Items {
		out.Bookings = append(out.Bookings, ToDTO(&page.Items[i]))
	}
	return out
}
