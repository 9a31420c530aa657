package admin

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/studentnest/nest-backend/internal/ledger"
	"github.com/studentnest/nest-backend/internal/payments"
	"github.com/studentnest/nest-backend/pkg/db/models"
	"github.com/studentnest/nest-backend/pkg/enums"
	pkgerrors "github.com/studentnest/nest-backend/pkg/errors"
	"github.com/studentnest/nest-backend/pkg/pagination"
)

// ExportFormat selects the payments export encoding.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
)

// ParseExportFormat defaults to CSV.
func ParseExportFormat(value string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(value))) {
	case "", ExportCSV:
		return ExportCSV, nil
	case ExportJSON:
		return ExportJSON, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported export format %q", value))
}

// ContentType is the response media type of the format.
func (f ExportFormat) ContentType() string {
	if f == ExportJSON {
		return "application/json"
	}
	return "text/csv"
}

// StatusStats is the per status slice of the stats report.
type StatusStats struct {
	Count  int64  `json:"count"`
	Amount string `json:"amount"`
}

// Stats summarises the ledger. Money is in major units.
type Stats struct {
	TotalPayments int64                               `json:"totalPayments"`
	ByStatus      map[enums.PaymentStatus]StatusStats `json:"byStatus"`
	Revenue       string                              `json:"revenue"`
	Refunded      string                              `json:"refunded"`
	NetRevenue    string                              `json:"netRevenue"`
	NeedsReview   int                                 `json:"needsReview"`
}

type ListResponse struct {
	Payments   []payments.PaymentDTO `json:"payments"`
	NextCursor string                `json:"nextCursor,omitempty"`
}

type Service interface {
	ListPayments(ctx context.Context, filter ledger.Filter, params pagination.Params) (*ListResponse, error)
	Stats(ctx context.Context) (*Stats, error)
	Export(ctx context.Context, format ExportFormat, filter ledger.Filter, w io.Writer) error
}

type service struct {
	ledger ledger.Repository
}

func NewService(repo ledger.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{ledger: repo}, nil
}

func (s *service) ListPayments(ctx context.Context, filter ledger.Filter, params pagination.Params) (*ListResponse, error) {
	page, err := s.ledger.List(ctx, filter, params)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	out := &ListResponse{Payments: make([]payments.PaymentDTO, 0, len(page.Items)), NextCursor: page.NextCursor}
	for i := range page.Items {
		out.Payments = append(out.Payments, payments.ToDTO(&page.Items[i]))
	}
	return out, nil
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	totals, err := s.ledger.TotalsByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregate payments")
	}
	flagged := true
	review, err := s.ledger.ListAll(ctx, ledger.Filter{NeedsReview: &flagged})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count flagged payments")
	}

	stats := &Stats{ByStatus: map[enums.PaymentStatus]StatusStats{}, NeedsReview: len(review)}
	revenue, refunded := decimal.Zero, decimal.Zero
	for _, total := range totals {
		amount := minor(total.Amount)
		stats.TotalPayments += total.Count
		stats.ByStatus[total.Status] = StatusStats{Count: total.Count, Amount: amount.StringFixed(2)}
		if total.Status.IsPaid() {
			revenue = revenue.Add(amount)
			refunded = refunded.Add(minor(total.Refunded))
		}
	}
	stats.Revenue = revenue.StringFixed(2)
	stats.Refunded = refunded.StringFixed(2)
	stats.NetRevenue = revenue.Sub(refunded).StringFixed(2)
	return stats, nil
}

var csvHeader = []string{
	"id", "receipt", "gateway_order_id", "gateway_payment_id", "user_id", "item_type", "item_id", "item_name",
	"amount", "currency", "status", "refund_amount", "needs_review", "customer_name", "customer_email",
	"created_at", "paid_at", "refunded_at",
}

// Export writes every payment matching filter, oldest first.
func (s *service) Export(ctx context.Context, format ExportFormat, filter ledger.Filter, w io.Writer) error {
	rows, err := s.ledger.ListAll(ctx, filter)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payments")
	}
	if format == ExportJSON {
		out := make([]payments.PaymentDTO, 0, len(rows))
		for i := range rows {
			out = append(out, payments.ToDTO(&rows[i]))
		}
		return json.NewEncoder(w).Encode(out)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for i := range rows {
		if err := cw.Write(csvRow(&rows[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(e *models.LedgerEntry) []string {
	customer := e.Customer.Data()
	refund := ""
	if e.RefundAmount != nil {
		refund = payments.MajorUnits(*e.RefundAmount)
	}
	return []string{
		e.ID.String(),
		e.Receipt,
		e.GatewayOrderID,
		deref(e.GatewayPaymentID),
		e.UserID.String(),
		string(e.ItemType),
		e.ItemID.String(),
		e.ItemName,
		payments.MajorUnits(e.Amount),
		e.Currency,
		string(e.Status),
		refund,
		strconv.FormatBool(e.NeedsReview),
		customer.Name,
		customer.Email,
		e.CreatedAt.UTC().Format(time.RFC3339),
		formatTime(e.PaidAt),
		formatTime(e.RefundedAt),
	}
}

func minor(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
