package bookings

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	earlyRefundRate = decimal.New(80, -2)
	lateRefundRate  = decimal.New(50, -2)
)

// RefundAmount is what a cancellation returns of paid: more than 7 days
// before check-in refunds 80%, 3 to 7 days 50%, less than 3 days nothing.
// Days are whole calendar days in UTC; the result is floored to minor units.
func RefundAmount(checkIn, cancelledAt time.Time, paid int64) int64 {
	if paid <= 0 {
		return 0
	}
	var rate decimal.Decimal
	switch days := daysUntil(cancelledAt, checkIn); {
	case days > 7:
		rate = earlyRefundRate
	case days >= 3:
		rate = lateRefundRate
	default:
		return 0
	}
	return decimal.NewFromInt(paid).Mul(rate).Floor().IntPart()
}

func daysUntil(from, to time.Time) int {
	return int(truncateDay(to).Sub(truncateDay(from)).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
