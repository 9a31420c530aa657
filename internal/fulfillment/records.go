package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/studentnest/nest-backend/internal/inventory"
	"github.com/studentnest/nest-backend/pkg/db/models"
	"github.com/studentnest/nest-backend/pkg/enums"
)

const defaultStayDays = 30

// records writes the downstream booking, subscription or service order a
// completed ledger entry funds.
type records struct {
	db *gorm.DB
}

func newRecords(db *gorm.DB) *records {
	return &records{db: db}
}

func (r *records) withTx(tx *gorm.DB) *records {
	if tx == nil {
		return r
	}
	return &records{db: tx}
}

func (r *records) create(ctx context.Context, entry *models.LedgerEntry, item *inventory.Item, now time.Time) (uuid.UUID, error) {
	details := entry.Details.Data()
	paymentID := entry.ID
	db := r.db.WithContext(ctx)

	switch entry.ItemType {
	case enums.ItemTypeRoomBooking:
		checkIn := dateOr(details.CheckIn, now)
		checkOut := dateOr(details.CheckOut, checkIn.AddDate(0, 0, defaultStayDays))
		booking := &models.Booking{
			StudentID:     entry.UserID,
			RoomID:        entry.ItemID,
			HostID:        item.OwnerID,
			PaymentID:     &paymentID,
			CheckIn:       checkIn,
			CheckOut:      checkOut,
			Status:        enums.BookingStatusConfirmed,
			TotalAmount:   entry.Amount,
			PaidAmount:    entry.Amount,
			PaymentStatus: enums.PaymentStatusCompleted,
		}
		if details.AdditionalServices != nil {
			booking.AdditionalServices = datatypes.NewJSONType(*details.AdditionalServices)
		}
		if err := db.Create(booking).Error; err != nil {
			return uuid.Nil, err
		}
		return booking.ID, nil

	case enums.ItemTypeMessPlan:
		start := dateOr(details.StartDate, now)
		days := item.DurationDays
		if days <= 0 {
			days = defaultStayDays
		}
		sub := &models.MessSubscription{
			StudentID:     entry.UserID,
			MessPlanID:    entry.ItemID,
			PaymentID:     &paymentID,
			StartDate:     start,
			EndDate:       start.AddDate(0, 0, days),
			Status:        enums.SubscriptionStatusActive,
			Amount:        entry.Amount,
			PaymentStatus: enums.PaymentStatusCompleted,
		}
		if err := db.Create(sub).Error; err != nil {
			return uuid.Nil, err
		}
		return sub.ID, nil

	default:
		order := &models.ServiceOrder{
			StudentID:     entry.UserID,
			ServiceID:     entry.ItemID,
			PaymentID:     &paymentID,
			Quantity:      quantity(entry),
			ScheduledFor:  details.ScheduledFor,
			Status:        enums.ServiceOrderStatusConfirmed,
			Amount:        entry.Amount,
			PaymentStatus: enums.PaymentStatusCompleted,
		}
		if err := db.Create(order).Error; err != nil {
			return uuid.Nil, err
		}
		return order.ID, nil
	}
}

// syncPaymentStatus mirrors the ledger status onto the linked record.
func (r *records) syncPaymentStatus(ctx context.Context, entry *models.LedgerEntry) error {
	var model any
	switch entry.ItemType {
	case enums.ItemTypeRoomBooking:
		model = &models.Booking{}
	case enums.ItemTypeMessPlan:
		model = &models.MessSubscription{}
	default:
		model = &models.ServiceOrder{}
	}
	return r.db.WithContext(ctx).
		Model(model).
		Where("payment_id = ?", entry.ID).
		UpdateColumn("payment_status", entry.Status).Error
}

// refundDue is the amount still owed back on a completed entry. Cancelled
// bookings owe their tiered refund; unfulfilled entries owe everything.
func (r *records) refundDue(ctx context.Context, entry *models.LedgerEntry) (int64, error) {
	if entry.FulfillmentID == nil {
		return entry.Amount, nil
	}
	if entry.ItemType != enums.ItemTypeRoomBooking {
		return 0, nil
	}
	var booking models.Booking
	if err := r.db.WithContext(ctx).First(&booking, "id = ?", *entry.FulfillmentID).Error; err != nil {
		return 0, err
	}
	if booking.Status != enums.BookingStatusCancelled || booking.RefundAmount == nil {
		return 0, nil
	}
	return *booking.RefundAmount, nil
}

// quantity is the number of capacity units an entry takes. A room booking
// or mess subscription is always one unit.
func quantity(entry *models.LedgerEntry) int {
	if entry.ItemType != enums.ItemTypeService {
		return 1
	}
	if q := entry.Details.Data().Quantity; q > 0 {
		return q
	}
	return 1
}

func dateOr(value *time.Time, fallback time.Time) time.Time {
	if value != nil && !value.IsZero() {
		return value.UTC()
	}
	return fallback.UTC()
}
