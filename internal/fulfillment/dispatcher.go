package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/studentnest/nest-backend/internal/inventory"
	"github.com/studentnest/nest-backend/internal/ledger"
	"github.com/studentnest/nest-backend/pkg/db/models"
	"github.com/studentnest/nest-backend/pkg/enums"
	pkgerrors "github.com/studentnest/nest-backend/pkg/errors"
	"github.com/studentnest/nest-backend/pkg/gateway"
	"github.com/studentnest/nest-backend/pkg/logger"
	"github.com/studentnest/nest-backend/pkg/metrics"
)

const defaultRefundTimeout = 10 * time.Second

// Completion sources, used for metrics and logs.
const (
	SourceVerify      = "verify"
	SourceWebhook     = "webhook"
	SourceSweep       = "sweep"
	SourceBooking     = "booking"
	SourceFulfillment = "fulfillment"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Refunder is the gateway surface the dispatcher needs.
type Refunder interface {
	Refund(ctx context.Context, paymentID string, req gateway.RefundRequest) (*gateway.Refund, error)
}

// Params wires a Dispatcher.
type Params struct {
	Tx            txRunner
	DB            *gorm.DB
	Ledger        ledger.Repository
	Inventory     *inventory.Rules
	Refunder      Refunder
	Logger        *logger.Logger
	Metrics       *metrics.PaymentMetrics
	RefundTimeout time.Duration
	Now           func() time.Time
}

// Dispatcher moves ledger entries into completed and creates what they paid
// for, exactly once per entry.
type Dispatcher struct {
	tx            txRunner
	ledger        ledger.Repository
	inventory     *inventory.Rules
	records       *records
	refunder      Refunder
	logg          *logger.Logger
	metrics       *metrics.PaymentMetrics
	refundTimeout time.Duration
	now           func() time.Time
}

func NewDispatcher(p Params) (*Dispatcher, error) {
	switch {
	case p.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case p.DB == nil:
		return nil, fmt.Errorf("db required")
	case p.Ledger == nil:
		return nil, fmt.Errorf("ledger repository required")
	case p.Inventory == nil:
		return nil, fmt.Errorf("inventory rules required")
	case p.Refunder == nil:
		return nil, fmt.Errorf("refunder required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := p.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	timeout := p.RefundTimeout
	if timeout <= 0 {
		timeout = defaultRefundTimeout
	}
	return &Dispatcher{
		tx:            p.Tx,
		ledger:        p.Ledger,
		inventory:     p.Inventory,
		records:       newRecords(p.DB),
		refunder:      p.Refunder,
		logg:          p.Logger,
		metrics:       p.Metrics,
		refundTimeout: timeout,
		now:           now,
	}, nil
}

// CompleteInput identifies the verified payment being applied.
type CompleteInput struct {
	EntryID          uuid.UUID
	GatewayPaymentID string
	Signature        *string
	Payload          datatypes.JSON
	Source           string
}

// Reference points at the record a payment funded.
type Reference struct {
	Type enums.ItemType `json:"type"`
	ID   uuid.UUID      `json:"id"`
}

// Outcome reports what Complete did. Dispatched is true only for the call
// that performed the pending to completed transition.
type Outcome struct {
	Entry       *models.LedgerEntry
	Fulfillment *Reference
	Dispatched  bool
	Exhausted   bool
}

// Complete applies a verified payment. The ledger transition is a
// conditional UPDATE on status = pending so concurrent verify, webhook and
// sweep calls fulfil at most once. When capacity ran out after the gateway
// captured the money, the entry is committed as completed + needs_review and
// a full refund is issued after commit.
func (d *Dispatcher) Complete(ctx context.Context, in CompleteInput) (*Outcome, error) {
	if in.EntryID == uuid.Nil || in.GatewayPaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entry id and gateway payment id are required")
	}

	var (
		entry      *models.LedgerEntry
		dispatched bool
		exhausted  bool
	)

	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := d.ledger.WithTx(tx)
		now := d.now()

		applied, err := repo.MarkCompleted(ctx, in.EntryID, ledger.Completion{
			GatewayPaymentID: in.GatewayPaymentID,
			Signature:        in.Signature,
			PaidAt:           now,
			Payload:          in.Payload,
		})
		if err != nil {
			return err
		}
		entry, err = repo.FindByID(ctx, in.EntryID)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		dispatched = true

		rules := d.inventory.WithTx(tx)
		reserved, err := rules.TryReserve(ctx, entry.ItemType, entry.ItemID, quantity(entry))
		if err != nil {
			return err
		}
		if !reserved {
			exhausted = true
			entry.NeedsReview = true
			return repo.SetNeedsReview(ctx, entry.ID, true)
		}

		item, err := rules.Lookup(ctx, entry.ItemType, entry.ItemID)
		if err != nil {
			return err
		}
		recordID, err := d.records.withTx(tx).create(ctx, entry, item, now)
		if err != nil {
			return err
		}
		if err := repo.SetFulfillment(ctx, entry.ID, recordID); err != nil {
			return err
		}
		entry.FulfillmentID = &recordID
		return nil
	})
	if err != nil {
		d.metrics.Fulfillment(metrics.FulfillmentError)
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete payment")
	}

	logCtx := d.logg.WithPayment(ctx, entry.ID.String(), entry.Receipt, entry.GatewayOrderID)
	outcome := &Outcome{Entry: entry, Fulfillment: ReferenceFor(entry), Dispatched: dispatched, Exhausted: exhausted}

	if !dispatched {
		d.metrics.Fulfillment(metrics.FulfillmentDuplicate)
		d.logg.Debug(d.logg.WithField(logCtx, "status", entry.Status), "payment already settled")
		return outcome, nil
	}

	d.metrics.Transition(string(enums.PaymentStatusPending), string(enums.PaymentStatusCompleted), in.Source)
	if !exhausted {
		d.metrics.Fulfillment(metrics.FulfillmentCreated)
		d.logg.Info(d.logg.WithField(logCtx, "source", in.Source), "payment fulfilled")
		return outcome, nil
	}

	d.metrics.Fulfillment(metrics.FulfillmentExhausted)
	d.logg.Warn(d.logg.WithField(logCtx, "source", in.Source), "capacity exhausted after capture, refunding")

	refunded, err := d.Refund(ctx, entry.ID, entry.Amount, "capacity exhausted", SourceFulfillment)
	if err != nil {
		// Entry stays completed + needs_review for the sweep.
		d.logg.Error(logCtx, "automatic refund failed", err)
		return outcome, nil
	}
	outcome.Entry = refunded
	return outcome, nil
}

// Refund returns amount of a completed entry to the payer and records the
// refunded state. A gateway failure leaves the entry flagged for review.
func (d *Dispatcher) Refund(ctx context.Context, entryID uuid.UUID, amount int64, reason, source string) (*models.LedgerEntry, error) {
	entry, err := d.ledger.FindByID(ctx, entryID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "payment not found")
	}
	if entry.Status == enums.PaymentStatusRefunded {
		return entry, nil
	}
	if entry.Status != enums.PaymentStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot refund %s payment", entry.Status))
	}
	if amount <= 0 || amount > entry.Amount {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount out of range")
	}

	logCtx := d.logg.WithPayment(ctx, entry.ID.String(), entry.Receipt, entry.GatewayOrderID)
	if entry.GatewayPaymentID == nil {
		if markErr := d.ledger.SetNeedsReview(ctx, entry.ID, true); markErr != nil {
			d.logg.Error(logCtx, "flag payment for review", markErr)
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has no gateway payment id")
	}

	callCtx, cancel := context.WithTimeout(ctx, d.refundTimeout)
	defer cancel()
	refund, err := d.refunder.Refund(callCtx, *entry.GatewayPaymentID, gateway.RefundRequest{
		Amount: amount,
		Notes:  map[string]string{"receipt": entry.Receipt, "reason": reason},
	})
	if err != nil {
		if markErr := d.ledger.SetNeedsReview(ctx, entry.ID, true); markErr != nil {
			d.logg.Error(logCtx, "flag payment for review", markErr)
		}
		return nil, err
	}

	applied, err := d.ledger.MarkRefunded(ctx, entry.ID, ledger.RefundRecord{
		GatewayRefundID: refund.ID,
		Amount:          amount,
		RefundedAt:      d.now(),
	})
	if err != nil {
		d.logg.Error(d.logg.WithField(logCtx, "gateway_refund_id", refund.ID), "record refund", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record refund")
	}

	updated, err := d.ledger.FindByID(ctx, entry.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment")
	}
	if applied {
		d.metrics.Transition(string(enums.PaymentStatusCompleted), string(enums.PaymentStatusRefunded), source)
		if entry.FulfillmentID == nil {
			d.metrics.Fulfillment(metrics.FulfillmentRefunded)
		}
		d.logg.Info(d.logg.WithFields(logCtx, map[string]any{"refund_amount": amount, "reason": reason}), "payment refunded")
	}
	if err := d.SyncPaymentStatus(ctx, updated); err != nil {
		d.logg.Error(logCtx, "sync payment status", err)
	}
	return updated, nil
}

// RetryRefund re-attempts the refund owed on an entry flagged for review.
func (d *Dispatcher) RetryRefund(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error) {
	due, err := d.records.refundDue(ctx, entry)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "compute refund due")
	}
	if due <= 0 {
		if err := d.ledger.SetNeedsReview(ctx, entry.ID, false); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear review flag")
		}
		return entry, nil
	}
	return d.Refund(ctx, entry.ID, due, "retry", SourceSweep)
}

// SyncPaymentStatus mirrors the ledger status onto the funded record.
func (d *Dispatcher) SyncPaymentStatus(ctx context.Context, entry *models.LedgerEntry) error {
	if entry == nil || entry.FulfillmentID == nil {
		return nil
	}
	return d.records.syncPaymentStatus(ctx, entry)
}

// ReferenceFor returns the fulfillment reference of an entry, if any.
func ReferenceFor(entry *models.LedgerEntry) *Reference {
	if entry == nil || entry.FulfillmentID == nil {
		return nil
	}
	return &Reference{Type: entry.ItemType, ID: *entry.FulfillmentID}
}
