package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/studentnest/nest-backend/pkg/db/models"
	"github.com/studentnest/nest-backend/pkg/enums"
	pkgerrors "github.com/studentnest/nest-backend/pkg/errors"
	"github.com/studentnest/nest-backend/pkg/pagination"
)

// Repository persists ledger entries. Every status change is a conditional
// UPDATE on the current status; the returned bool reports whether this call
// performed the transition.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.LedgerEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error)
	FindByGatewayOrderID(ctx context.Context, orderID string) (*models.LedgerEntry, error)
	FindByGatewayPaymentID(ctx context.Context, paymentID string) (*models.LedgerEntry, error)

	MarkCompleted(ctx context.Context, id uuid.UUID, c Completion) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	MarkRefunded(ctx context.Context, id uuid.UUID, r RefundRecord) (bool, error)
	SetFulfillment(ctx context.Context, id, fulfillmentID uuid.UUID) error
	SetNeedsReview(ctx context.Context, id uuid.UUID, needsReview bool) error
	SetPayload(ctx context.Context, id uuid.UUID, payload datatypes.JSON) error

	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.LedgerEntry], error)
	List(ctx context.Context, filter Filter, params pagination.Params) (pagination.Page[models.LedgerEntry], error)
	ListAll(ctx context.Context, filter Filter) ([]models.LedgerEntry, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.LedgerEntry, error)
	ListNeedsReview(ctx context.Context, updatedBefore time.Time, limit int) ([]models.LedgerEntry, error)
	TotalsByStatus(ctx context.Context) ([]StatusTotal, error)
}

// Completion is the data recorded when an entry moves to completed.
type Completion struct {
	GatewayPaymentID string
	Signature        *string
	PaidAt           time.Time
	Payload          datatypes.JSON
}

// RefundRecord is the data recorded when an entry moves to refunded.
type RefundRecord struct {
	GatewayRefundID string
	Amount          int64
	RefundedAt      time.Time
}

// Filter narrows admin listings.
type Filter struct {
	Status      *enums.PaymentStatus
	ItemType    *enums.ItemType
	UserID      *uuid.UUID
	NeedsReview *bool
}

// StatusTotal aggregates entries per status.
type StatusTotal struct {
	Status   enums.PaymentStatus
	Count    int64
	Amount   int64
	Refunded int64
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindByGatewayOrderID(ctx context.Context, orderID string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("gateway_order_id = ?", orderID).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindByGatewayPaymentID(ctx context.Context, paymentID string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("gateway_payment_id = ?", paymentID).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) MarkCompleted(ctx context.Context, id uuid.UUID, c Completion) (bool, error) {
	updates := map[string]any{
		"paid_at":            c.PaidAt,
		"gateway_payment_id": c.GatewayPaymentID,
		"updated_at":         c.PaidAt,
	}
	if c.Signature != nil {
		updates["gateway_signature"] = *c.Signature
	}
	if len(c.Payload) > 0 {
		updates["gateway_payload"] = c.Payload
	}
	return r.transition(ctx, id, enums.PaymentStatusPending, enums.PaymentStatusCompleted, updates)
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	return r.transition(ctx, id, enums.PaymentStatusPending, enums.PaymentStatusFailed, map[string]any{
		"failure_reason": reason,
		"updated_at":     time.Now().UTC(),
	})
}

func (r *repository) MarkCancelled(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	return r.transition(ctx, id, enums.PaymentStatusPending, enums.PaymentStatusCancelled, map[string]any{
		"failure_reason": reason,
		"updated_at":     time.Now().UTC(),
	})
}

func (r *repository) MarkRefunded(ctx context.Context, id uuid.UUID, rec RefundRecord) (bool, error) {
	updates := map[string]any{
		"refunded_at":   rec.RefundedAt,
		"refund_amount": rec.Amount,
		"needs_review":  false,
		"updated_at":    rec.RefundedAt,
	}
	if rec.GatewayRefundID != "" {
		updates["gateway_refund_id"] = rec.GatewayRefundID
	}
	return r.transition(ctx, id, enums.PaymentStatusCompleted, enums.PaymentStatusRefunded, updates)
}

// transition moves id from one status to another, refusing any edge the
// payment status graph does not allow.
func (r *repository) transition(ctx context.Context, id uuid.UUID, from, to enums.PaymentStatus, updates map[string]any) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("payment status %s cannot move to %s", from, to)
	}
	updates["status"] = to
	res := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetFulfillment(ctx context.Context, id, fulfillmentID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("id = ?", id).
		UpdateColumn("fulfillment_id", fulfillmentID).Error
}

func (r *repository) SetNeedsReview(ctx context.Context, id uuid.UUID, needsReview bool) error {
	return r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("id = ?", id).
		UpdateColumn("needs_review", needsReview).Error
}

func (r *repository) SetPayload(ctx context.Context, id uuid.UUID, payload datatypes.JSON) error {
	return r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("id = ?", id).
		UpdateColumn("gateway_payload", payload).Error
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.LedgerEntry], error) {
	return r.List(ctx, Filter{UserID: &userID}, params)
}

func (r *repository) List(ctx context.Context, filter Filter, params pagination.Params) (pagination.Page[models.LedgerEntry], error) {
	query := applyFilter(r.db.WithContext(ctx).Model(&models.LedgerEntry{}), filter)
	page, err := pagination.Fetch(query, params, entryCursor)
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return page, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return page, err
}

func (r *repository) ListAll(ctx context.Context, filter Filter) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	if err := applyFilter(r.db.WithContext(ctx).Model(&models.LedgerEntry{}), filter).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.PaymentStatusPending, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListNeedsReview(ctx context.Context, updatedBefore time.Time, limit int) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("needs_review = ? AND status = ? AND updated_at < ?", true, enums.PaymentStatusCompleted, updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) TotalsByStatus(ctx context.Context) ([]StatusTotal, error) {
	var totals []StatusTotal
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount, COALESCE(SUM(refund_amount), 0) AS refunded").
		Group("status").
		Scan(&totals).Error; err != nil {
		return nil, err
	}
	return totals, nil
}

func applyFilter(query *gorm.DB, filter Filter) *gorm.DB {
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ItemType != nil {
		query = query.Where("item_type = ?", *filter.ItemType)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.NeedsReview != nil {
		query = query.Where("needs_review = ?", *filter.NeedsReview)
	}
	return query
}

func entryCursor(e models.LedgerEntry) pagination.Cursor {
	return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
}
