package inventory

import (
	"math"
	"time"

	"github.com/studentnest/nest-backend/pkg/db/models"
	"github.com/studentnest/nest-backend/pkg/enums"
)

const billingPeriodDays = 30

// StayPeriods is the number of started 30 day billing periods between
// check-in and check-out.
func StayPeriods(checkIn, checkOut time.Time) int64 {
	days := checkOut.Sub(checkIn).Hours() / 24
	if days <= 0 {
		return 0
	}
	return int64(math.Ceil(days / billingPeriodDays))
}

// RoomTotal prices a stay: monthly rent per started period plus add-ons.
func RoomTotal(price int64, checkIn, checkOut time.Time, extras *models.AdditionalServices) int64 {
	total := price * StayPeriods(checkIn, checkOut)
	if extras != nil {
		total += extras.Total()
	}
	return total
}

// Quote is the minimum amount that pays for item with the given details.
func Quote(item *Item, details models.ItemDetails) int64 {
	switch item.Type {
	case enums.ItemTypeRoomBooking:
		if details.CheckIn == nil || details.CheckOut == nil {
			return item.Price
		}
		return RoomTotal(item.Price, *details.CheckIn, *details.CheckOut, details.AdditionalServices)
	case enums.ItemTypeService:
		qty := details.Quantity
		if qty <= 0 {
			qty = 1
		}
		return item.Price * int64(qty)
	default:
		return item.Price
	}
}
