package admin

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/studentnest/nest-backend/internal/ledger"
	"github.com/studentnest/nest-backend/internal/payments"
	"github.com/studentnest/nest-backend/pkg/db/models"
	"github.com/studentnest/nest-backend/pkg/db/sqlitetest"
	"github.com/studentnest/nest-backend/pkg/enums"
	pkgerrors "github.com/studentnest/nest-backend/pkg/errors"
	"github.com/studentnest/nest-backend/pkg/pagination"
)

func seedLedger(t *testing.T) ledger.Repository {
	t.Helper()
	ctx := context.Background()
	repo := ledger.NewRepository(sqlitetest.Open(t))
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	create := func(orderID string, amount int64, itemType enums.ItemType) *models.LedgerEntry {
		entry := &models.LedgerEntry{
			UserID:         uuid.New(),
			GatewayOrderID: orderID,
			Amount:         amount,
			Currency:       "INR",
			ItemType:       itemType,
			ItemID:         uuid.New(),
			ItemName:       "item " + orderID,
			Status:         enums.PaymentStatusPending,
			Receipt:        "rcpt_" + orderID,
			Customer:       datatypes.NewJSONType(models.CustomerContact{Name: "Ravi, K", Email: "ravi@nest.test"}),
		}
		require.NoError(t, repo.Create(ctx, entry))
		return entry
	}

	create("order_pending", 10000, enums.ItemTypeService)
	paid := create("order_paid", 500000, enums.ItemTypeRoomBooking)
	refunded := create("order_refunded", 300000, enums.ItemTypeMessPlan)
	failed := create("order_failed", 20000, enums.ItemTypeService)

	_, err := repo.MarkCompleted(ctx, paid.ID, ledger.Completion{GatewayPaymentID: "pay_paid", PaidAt: now})
	require.NoError(t, err)
	_, err = repo.MarkCompleted(ctx, refunded.ID, ledger.Completion{GatewayPaymentID: "pay_refunded", PaidAt: now})
	require.NoError(t, err)
	_, err = repo.MarkRefunded(ctx, refunded.ID, ledger.RefundRecord{GatewayRefundID: "rfnd_1", Amount: 150000, RefundedAt: now})
	require.NoError(t, err)
	_, err = repo.MarkFailed(ctx, failed.ID, "declined")
	require.NoError(t, err)
	require.NoError(t, repo.SetNeedsReview(ctx, paid.ID, true))
	return repo
}

func TestStatsAggregatesMoneyInMajorUnits(t *testing.T) {
	svc, err := NewService(seedLedger(t))
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalPayments)
	assert.Equal(t, "8000.00", stats.Revenue)
	assert.Equal(t, "1500.00", stats.Refunded)
	assert.Equal(t, "6500.00", stats.NetRevenue)
	assert.Equal(t, 1, stats.NeedsReview)
	assert.Equal(t, StatusStats{Count: 1, Amount: "100.00"}, stats.ByStatus[enums.PaymentStatusPending])
}

func TestListPaymentsFilters(t *testing.T) {
	svc, err := NewService(seedLedger(t))
	require.NoError(t, err)

	status := enums.PaymentStatusFailed
	resp, err := svc.ListPayments(context.Background(), ledger.Filter{Status: &status}, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, resp.Payments, 1)
	assert.Equal(t, "order_failed", resp.Payments[0].OrderID)

	itemType := enums.ItemTypeService
	resp, err = svc.ListPayments(context.Background(), ledger.Filter{ItemType: &itemType}, pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.Len(t, resp.Payments, 1)
	assert.NotEmpty(t, resp.NextCursor)
}

func TestExportCSV(t *testing.T) {
	svc, err := NewService(seedLedger(t))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.Export(context.Background(), ExportCSV, ledger.Filter{}, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, csvHeader, records[0])

	byOrder := map[string][]string{}
	for _, rec := range records[1:] {
		byOrder[rec[2]] = rec
	}
	refunded := byOrder["order_refunded"]
	require.NotNil(t, refunded)
	assert.Equal(t, "3000.00", refunded[8])
	assert.Equal(t, "refunded", refunded[10])
	assert.Equal(t, "1500.00", refunded[11])
	assert.Equal(t, "Ravi, K", refunded[13], "commas survive quoting")
}

func TestExportJSON(t *testing.T) {
	svc, err := NewService(seedLedger(t))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.Export(context.Background(), ExportJSON, ledger.Filter{}, &buf))

	var out []payments.PaymentDTO
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Len(t, out, 4)
}

func TestParseExportFormat(t *testing.T) {
	format, err := ParseExportFormat("")
	require.NoError(t, err)
	assert.Equal(t, ExportCSV, format)

	format, err = ParseExportFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, "application/json", format.ContentType())

	_, err = ParseExportFormat("xml")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
