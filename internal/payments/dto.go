package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/studentnest/nest-backend/internal/fulfillment"
	"github.com/studentnest/nest-backend/pkg/db/models"
	"github.com/studentnest/nest-backend/pkg/enums"
	"github.com/studentnest/nest-backend/pkg/pagination"
)

// CustomerDetails is the contact snapshot sent at checkout.
type CustomerDetails struct {
	Name  string `json:"name" validate:"omitempty,max=120"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,max=20"`
}

// CreateOrderRequest is the create-order body.
type CreateOrderRequest struct {
	ItemType           string                     `json:"itemType" validate:"required,oneof=mess_plan room_booking service"`
	ItemID             uuid.UUID                  `json:"itemId" validate:"required"`
	Amount             int64                      `json:"amount" validate:"required,gt=0"`
	Currency           string                     `json:"currency" validate:"omitempty,len=3"`
	CustomerDetails    CustomerDetails            `json:"customerDetails"`
	CheckIn            *time.Time                 `json:"checkIn,omitempty"`
	CheckOut           *time.Time                 `json:"checkOut,omitempty"`
	StartDate          *time.Time                 `json:"startDate,omitempty"`
	ScheduledFor       *time.Time                 `json:"scheduledFor,omitempty"`
	Quantity           int                        `json:"quantity,omitempty" validate:"omitempty,gt=0,lte=20"`
	AdditionalServices *models.AdditionalServices `json:"additionalServices,omitempty"`
}

// VerifyRequest is what the client posts back after checkout.
type VerifyRequest struct {
	OrderID   string `json:"orderId" validate:"required"`
	PaymentID string `json:"paymentId" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// GatewayOrder is what the checkout widget needs to open the payment.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Key      string `json:"key"`
}

// PaymentDTO is the public view of a ledger entry.
type PaymentDTO struct {
	ID           uuid.UUID              `json:"id"`
	OrderID      string                 `json:"orderId"`
	PaymentID    *string                `json:"paymentId,omitempty"`
	Amount       int64                  `json:"amount"`
	Currency     string                 `json:"currency"`
	ItemType     enums.ItemType         `json:"itemType"`
	ItemID       uuid.UUID              `json:"itemId"`
	ItemName     string                 `json:"itemName"`
	Status       enums.PaymentStatus    `json:"status"`
	Receipt      string                 `json:"receipt"`
	PaidAt       *time.Time             `json:"paidAt,omitempty"`
	RefundedAt   *time.Time             `json:"refundedAt,omitempty"`
	RefundAmount *int64                 `json:"refundAmount,omitempty"`
	Customer     models.CustomerContact `json:"customer"`
	Fulfillment  *fulfillment.Reference `json:"fulfillment,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
}

// CreateOrderResponse pairs the gateway order with the pending entry.
type CreateOrderResponse struct {
	Order   GatewayOrder `json:"order"`
	Payment PaymentDTO   `json:"payment"`
}

// VerifyResponse carries the settled entry and what it paid for.
type VerifyResponse struct {
	Payment PaymentDTO             `json:"payment"`
	Booking *fulfillment.Reference `json:"booking"`
}

// HistoryResponse is one page of a user's payments.
type HistoryResponse struct {
	Payments   []PaymentDTO `json:"payments"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

// Receipt is the printable summary of a paid entry. Amounts are in major
// units.
type Receipt struct {
	Receipt      string              `json:"receipt"`
	PaymentID    string              `json:"paymentId"`
	OrderID      string              `json:"orderId"`
	ItemType     enums.ItemType      `json:"itemType"`
	ItemName     string              `json:"itemName"`
	Amount       string              `json:"amount"`
	Currency     string              `json:"currency"`
	Status       enums.PaymentStatus `json:"status"`
	PaidAt       time.Time           `json:"paidAt"`
	RefundAmount string              `json:"refundAmount,omitempty"`
	RefundedAt   *time.Time          `json:"refundedAt,omitempty"`
	BilledTo     string              `json:"billedTo,omitempty"`
	Email        string              `json:"email,omitempty"`
}

// ToDTO maps a ledger entry to its public shape.
func ToDTO(entry *models.LedgerEntry) PaymentDTO {
	return PaymentDTO{
		ID:           entry.ID,
		OrderID:      entry.GatewayOrderID,
		PaymentID:    entry.GatewayPaymentID,
		Amount:       entry.Amount,
		Currency:     entry.Currency,
		ItemType:     entry.ItemType,
		ItemID:       entry.ItemID,
		ItemName:     entry.ItemName,
		Status:       entry.Status,
		Receipt:      entry.Receipt,
		PaidAt:       entry.PaidAt,
		RefundedAt:   entry.RefundedAt,
		RefundAmount: entry.RefundAmount,
		Customer:     entry.Customer.Data(),
		Fulfillment:  fulfillment.ReferenceFor(entry),
		CreatedAt:    entry.CreatedAt,
	}
}

func toHistory(page pagination.Page[models.LedgerEntry]) HistoryResponse {
	out := HistoryResponse{Payments: make([]PaymentDTO, 0, len(page.Items)), NextCursor: page.NextCursor}
	for i := range page.Items {
		out.Payments = append(out.Payments, ToDTO(&page.Items[i]))
	}
	return out
}

// MajorUnits formats minor units with two decimals.
func MajorUnits(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}

func toReceipt(entry *models.LedgerEntry) Receipt {
	customer := entry.Customer.Data()
	r := Receipt{
		Receipt:    entry.Receipt,
		OrderID:    entry.GatewayOrderID,
		ItemType:   entry.ItemType,
		ItemName:   entry.ItemName,
		Amount:     MajorUnits(entry.Amount),
		Currency:   entry.Currency,
		Status:     entry.Status,
		RefundedAt: entry.RefundedAt,
		BilledTo:   customer.Name,
		Email:      customer.Email,
	}
	if entry.GatewayPaymentID != nil {
		r.PaymentID = *entry.GatewayPaymentID
	}
	if entry.PaidAt != nil {
		r.PaidAt = *entry.PaidAt
	}
	if entry.RefundAmount != nil {
		r.RefundAmount = MajorUnits(*entry.RefundAmount)
	}
	return r
}
