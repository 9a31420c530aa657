package bookings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRefundAmountTiers(t *testing.T) {
	today := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	const paid = int64(500000)

	cases := []struct {
		name    string
		checkIn time.Time
		want    int64
	}{
		{"ten days out", today.AddDate(0, 0, 10), 400000},
		{"eight days out", today.AddDate(0, 0, 8), 400000},
		{"exactly seven days", today.AddDate(0, 0, 7), 250000},
		{"five days out", today.AddDate(0, 0, 5), 250000},
		{"exactly three days", today.AddDate(0, 0, 3), 250000},
		{"two days out", today.AddDate(0, 0, 2), 0},
		{"tomorrow", today.AddDate(0, 0, 1), 0},
		{"already started", today.AddDate(0, 0, -2), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RefundAmount(tc.checkIn, today, paid))
		})
	}
}

func TestRefundAmountUsesCalendarDays(t *testing.T) {
	cancelledAt := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	checkIn := time.Date(2026, 3, 13, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, int64(50), RefundAmount(checkIn, cancelledAt, 100), "three calendar days even though under 72 hours")
}

func TestRefundAmountFloorsMinorUnits(t *testing.T) {
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(79), RefundAmount(today.AddDate(0, 0, 30), today, 99))
	assert.Equal(t, int64(49), RefundAmount(today.AddDate(0, 0, 4), today, 99))
	assert.Equal(t, int64(0), RefundAmount(today.AddDate(0, 0, 30), today, 0))
}
