package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentStatusGraph(t *testing.T) {
	allowed := map[PaymentStatus][]PaymentStatus{
		PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
		PaymentStatusCompleted: {PaymentStatusRefunded},
	}
	for _, from := range paymentStatuses.values {
		for _, to := range paymentStatuses.values {
			want := false
			for _, ok := range allowed[from] {
				want = want || ok == to
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, PaymentStatusRefunded.IsPaid())
	assert.False(t, PaymentStatusCancelled.IsPaid())
}

func TestBookingStatusGraph(t *testing.T) {
	path := []BookingStatus{BookingStatusPending, BookingStatusConfirmed, BookingStatusActive, BookingStatusCompleted}
	for i := 0; i+1 < len(path); i++ {
		assert.True(t, path[i].CanTransitionTo(path[i+1]), "%s -> %s", path[i], path[i+1])
		assert.True(t, path[i].CanTransitionTo(BookingStatusCancelled), "%s may cancel", path[i])
	}
	assert.False(t, BookingStatusPending.CanTransitionTo(BookingStatusActive), "no skipping")
	assert.False(t, BookingStatusCompleted.CanTransitionTo(BookingStatusCancelled))
	assert.False(t, BookingStatusCancelled.CanTransitionTo(BookingStatusPending))

	assert.True(t, BookingStatusCompleted.IsTerminal())
	assert.True(t, BookingStatusCancelled.IsTerminal())
	assert.False(t, BookingStatusActive.IsTerminal())
	assert.False(t, BookingStatus("archived").IsTerminal())
}

func TestParseIsLenientAboutCaseAndSpace(t *testing.T) {
	item, err := ParseItemType(" Room_Booking ")
	require.NoError(t, err)
	assert.Equal(t, ItemTypeRoomBooking, item)

	role, err := ParseUserRole("HOST")
	require.NoError(t, err)
	assert.Equal(t, UserRoleHost, role)

	_, err = ParseItemType("hostel")
	assert.EqualError(t, err, `invalid item type "hostel"`)
	_, err = ParseBookingStatus("")
	assert.Error(t, err)
	_, err = ParsePaymentStatus("paid")
	assert.Error(t, err)
}

func TestFulfillmentStatuses(t *testing.T) {
	assert.True(t, SubscriptionStatusActive.IsValid())
	assert.False(t, SubscriptionStatus("trial").IsValid())
	assert.True(t, ServiceOrderStatusInProgress.IsValid())
	assert.False(t, ServiceOrderStatus("in-progress").IsValid())
}
