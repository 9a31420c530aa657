package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/studentnest/nest-backend/internal/fulfillment"
	"github.com/studentnest/nest-backend/internal/inventory"
	"github.com/studentnest/nest-backend/internal/ledger"
	"github.com/studentnest/nest-backend/pkg/db"
	"github.com/studentnest/nest-backend/pkg/db/models"
	"github.com/studentnest/nest-backend/pkg/db/sqlitetest"
	"github.com/studentnest/nest-backend/pkg/enums"
	"github.com/studentnest/nest-backend/pkg/gateway"
	"github.com/studentnest/nest-backend/pkg/logger"
)

type fakeOrderPayments struct {
	mu       sync.Mutex
	payments map[string][]gateway.Payment
	err      error
}

func (f *fakeOrderPayments) FetchOrderPayments(_ context.Context, orderID string) ([]gateway.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.payments[orderID], nil
}

type toggleRefunder struct {
	err   error
	calls int
}

func (r *toggleRefunder) Refund(_ context.Context, paymentID string, req gateway.RefundRequest) (*gateway.Refund, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.calls++
	return &gateway.Refund{ID: "rfnd_" + paymentID, PaymentID: paymentID, Amount: req.Amount}, nil
}

type sweepFixture struct {
	conn     *gorm.DB
	repo     ledger.Repository
	gw       *fakeOrderPayments
	refunder *toggleRefunder
	job      Job
}

func newSweepFixture(t *testing.T, offset time.Duration) *sweepFixture {
	t.Helper()
	conn := sqlitetest.Open(t)
	repo := ledger.NewRepository(conn)
	refunder := &toggleRefunder{}
	disp, err := fulfillment.NewDispatcher(fulfillment.Params{
		Tx:        db.NewWithConn(conn),
		DB:        conn,
		Ledger:    repo,
		Inventory: inventory.NewRules(conn),
		Refunder:  refunder,
		Logger:    logger.Nop(),
	})
	require.NoError(t, err)
	gw := &fakeOrderPayments{payments: map[string][]gateway.Payment{}}
	job, err := NewPaymentReconcileJob(PaymentReconcileParams{
		Logger:       logger.Nop(),
		Ledger:       repo,
		Gateway:      gw,
		Dispatcher:   disp,
		PendingGrace: 15 * time.Minute,
		ExpireAfter:  24 * time.Hour,
		Now:          func() time.Time { return time.Now().UTC().Add(offset) },
	})
	require.NoError(t, err)
	return &sweepFixture{conn: conn, repo: repo, gw: gw, refunder: refunder, job: job}
}

func (f *sweepFixture) pendingRoomEntry(t *testing.T, orderID string, available int) *models.LedgerEntry {
	t.Helper()
	room := sqlitetest.SeedRoom(t, f.conn, uuid.New(), 500000, available, 1)
	checkIn := time.Now().UTC().AddDate(0, 0, 20)
	checkOut := checkIn.AddDate(0, 1, 0)
	entry := &models.LedgerEntry{
		UserID:         uuid.New(),
		GatewayOrderID: orderID,
		Amount:         500000,
		Currency:       "INR",
		ItemType:       enums.ItemTypeRoomBooking,
		ItemID:         room.ID,
		ItemName:       room.Title,
		Status:         enums.PaymentStatusPending,
		Receipt:        "rcpt_" + orderID,
		Details: datatypes.NewJSONType(models.ItemDetails{
			CheckIn:  &checkIn,
			CheckOut: &checkOut,
		}),
	}
	require.NoError(t, f.repo.Create(context.Background(), entry))
	return entry
}

func TestPaymentReconcileCompletesCapturedOrders(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t, time.Hour)
	entry := f.pendingRoomEntry(t, "order_swept", 1)
	f.gw.payments["order_swept"] = []gateway.Payment{
		{ID: "pay_failed", OrderID: "order_swept", Amount: 500000, Status: gateway.PaymentStatusFailed},
		{ID: "pay_ok", OrderID: "order_swept", Amount: 500000, Status: gateway.PaymentStatusCaptured},
	}

	require.NoError(t, f.job.Run(ctx))

	stored, err := f.repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, stored.Status)
	require.NotNil(t, stored.GatewayPaymentID)
	assert.Equal(t, "pay_ok", *stored.GatewayPaymentID)
	assert.NotNil(t, stored.FulfillmentID)

	var bookings int64
	require.NoError(t, f.conn.Model(&models.Booking{}).Count(&bookings).Error)
	assert.Equal(t, int64(1), bookings)

	// A second sweep finds nothing pending.
	require.NoError(t, f.job.Run(ctx))
	require.NoError(t, f.conn.Model(&models.Booking{}).Count(&bookings).Error)
	assert.Equal(t, int64(1), bookings)
}

func TestPaymentReconcileLeavesRecentEntriesAlone(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t, 0)
	entry := f.pendingRoomEntry(t, "order_fresh", 1)
	f.gw.payments["order_fresh"] = []gateway.Payment{
		{ID: "pay_fresh", OrderID: "order_fresh", Amount: 500000, Status: gateway.PaymentStatusCaptured},
	}

	require.NoError(t, f.job.Run(ctx))

	stored, err := f.repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, stored.Status)
}

func TestPaymentReconcileExpiresAbandonedOrders(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t, 25*time.Hour)
	entry := f.pendingRoomEntry(t, "order_abandoned", 1)

	require.NoError(t, f.job.Run(ctx))

	stored, err := f.repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCancelled, stored.Status)
}

func TestPaymentReconcileKeepsUnexpiredUncapturedOrders(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t, time.Hour)
	entry := f.pendingRoomEntry(t, "order_waiting", 1)

	require.NoError(t, f.job.Run(ctx))

	stored, err := f.repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, stored.Status)
}

func TestPaymentReconcileIgnoresAmountMismatch(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t, time.Hour)
	entry := f.pendingRoomEntry(t, "order_short", 1)
	f.gw.payments["order_short"] = []gateway.Payment{
		{ID: "pay_short", OrderID: "order_short", Amount: 100, Status: gateway.PaymentStatusCaptured},
	}

	require.NoError(t, f.job.Run(ctx))

	stored, err := f.repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, stored.Status)
}

func TestPaymentReconcileAggregatesGatewayErrors(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t, time.Hour)
	a := f.pendingRoomEntry(t, "order_a", 1)
	f.pendingRoomEntry(t, "order_b", 1)
	f.gw.err = errors.New("gateway down")

	err := f.job.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order_a")
	assert.Contains(t, err.Error(), "order_b")

	stored, err := f.repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, stored.Status)
}

func TestPaymentReconcileRetriesRefundsUnderReview(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t, time.Hour)
	entry := f.pendingRoomEntry(t, "order_full", 0)
	f.gw.payments["order_full"] = []gateway.Payment{
		{ID: "pay_full", OrderID: "order_full", Amount: 500000, Status: gateway.PaymentStatusCaptured},
	}
	f.refunder.err = errors.New("gateway down")

	// Capture lands on a sold-out room and every refund attempt fails.
	require.Error(t, f.job.Run(ctx))
	stored, err := f.repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, stored.Status)
	assert.True(t, stored.NeedsReview)

	f.refunder.err = nil
	require.NoError(t, f.job.Run(ctx))
	stored, err = f.repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, stored.Status)
	assert.False(t, stored.NeedsReview)
	assert.Equal(t, 1, f.refunder.calls)
}
