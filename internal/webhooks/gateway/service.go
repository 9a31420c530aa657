package gatewaywebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/studentnest/nest-backend/internal/fulfillment"
	"github.com/studentnest/nest-backend/internal/ledger"
	"github.com/studentnest/nest-backend/pkg/db"
	"github.com/studentnest/nest-backend/pkg/db/models"
	"github.com/studentnest/nest-backend/pkg/enums"
	pkgerrors "github.com/studentnest/nest-backend/pkg/errors"
	"github.com/studentnest/nest-backend/pkg/gateway"
	"github.com/studentnest/nest-backend/pkg/logger"
	"github.com/studentnest/nest-backend/pkg/metrics"
)

// errUnprocessable marks events that are well signed but cannot be applied.
// Retrying them would never succeed, so they are acknowledged.
var errUnprocessable = errors.New("webhook event cannot be applied")

type dispatcher interface {
	Complete(ctx context.Context, in fulfillment.CompleteInput) (*fulfillment.Outcome, error)
	SyncPaymentStatus(ctx context.Context, entry *models.LedgerEntry) error
}

// Delivery is one verified webhook request.
type Delivery struct {
	EventID string
	Body    []byte
	Event   *gateway.WebhookEvent
}

type ServiceParams struct {
	Ledger     ledger.Repository
	Events     EventRepository
	Dispatcher dispatcher
	Logger     *logger.Logger
	Metrics    *metrics.PaymentMetrics
	Now        func() time.Time
}

// Service reconciles the ledger from gateway events. Every handler loads the
// entry first and no-ops when it is already past the event's transition, so
// duplicate and out-of-order deliveries are harmless.
type Service struct {
	ledger     ledger.Repository
	events     EventRepository
	dispatcher dispatcher
	logg       *logger.Logger
	metrics    *metrics.PaymentMetrics
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repository required")
	}
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook event repository required")
	}
	if params.Dispatcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment dispatcher required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		ledger:     params.Ledger,
		events:     params.Events,
		dispatcher: params.Dispatcher,
		logg:       params.Logger,
		metrics:    params.Metrics,
		now:        now,
	}, nil
}

// HandleEvent records the delivery and applies it. A returned error means the
// gateway should retry.
func (s *Service) HandleEvent(ctx context.Context, d Delivery) error {
	if d.Event == nil || d.EventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook event required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"event_id": d.EventID, "event_type": d.Event.Event})

	record, replay, err := s.record(ctx, d)
	if err != nil {
		return err
	}
	if replay {
		s.logg.Info(ctx, "webhook event already processed")
		return nil
	}

	procErr := s.apply(ctx, d)
	if errors.Is(procErr, errUnprocessable) {
		s.logg.Warn(s.logg.WithField(ctx, "reason", procErr.Error()), "webhook event rejected")
		if err := s.events.MarkRejected(ctx, record.ID, s.now(), procErr.Error()); err != nil {
			s.logg.Error(ctx, "mark webhook event rejected", err)
		}
		return nil
	}
	if err := s.events.MarkProcessed(ctx, record.ID, s.now(), procErr); err != nil {
		s.logg.Error(ctx, "mark webhook event processed", err)
	}
	return procErr
}

func (s *Service) record(ctx context.Context, d Delivery) (*models.WebhookEvent, bool, error) {
	record := &models.WebhookEvent{
		EventID:   d.EventID,
		EventType: d.Event.Event,
		Payload:   datatypes.JSON(d.Body),
	}
	if orderID := d.Event.OrderID(); orderID != "" {
		record.GatewayOrderID = &orderID
	}
	if paymentID := d.Event.PaymentID(); paymentID != "" {
		record.GatewayPaymentID = &paymentID
	}

	err := s.events.Create(ctx, record)
	if err == nil {
		return record, false, nil
	}
	if !db.IsUniqueViolation(err, "") {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record webhook event")
	}
	existing, findErr := s.events.FindByEventID(ctx, d.EventID)
	if findErr != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "load webhook event")
	}
	return existing, existing.ProcessedAt != nil, nil
}

func (s *Service) apply(ctx context.Context, d Delivery) error {
	switch enums.WebhookEventType(d.Event.Event) {
	case enums.WebhookEventPaymentCaptured, enums.WebhookEventOrderPaid:
		return s.handleCaptured(ctx, d)
	case enums.WebhookEventPaymentFailed:
		return s.handleFailed(ctx, d)
	case enums.WebhookEventRefundCreated, enums.WebhookEventRefundProcessed:
		return s.handleRefund(ctx, d)
	default:
		s.logg.Debug(ctx, "webhook event ignored")
		return nil
	}
}

func (s *Service) handleCaptured(ctx context.Context, d Delivery) error {
	entry, err := s.findEntry(ctx, d.Event)
	if err != nil || entry == nil {
		return err
	}
	logCtx := s.logg.WithPayment(ctx, entry.ID.String(), entry.Receipt, entry.GatewayOrderID)

	switch entry.Status {
	case enums.PaymentStatusCompleted, enums.PaymentStatusRefunded:
		s.logg.Debug(logCtx, "capture already applied")
		return nil
	case enums.PaymentStatusFailed, enums.PaymentStatusCancelled:
		// Money was captured for an entry we gave up on.
		s.logg.Warn(s.logg.WithField(logCtx, "status", entry.Status), "capture received for closed payment")
		return s.flag(ctx, entry, d.Body)
	}

	payment := d.Event.Payment()
	paymentID := d.Event.PaymentID()
	if payment == nil || paymentID == "" {
		return fmt.Errorf("%w: capture event has no payment entity", errUnprocessable)
	}
	if payment.Amount != entry.Amount {
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{"expected": entry.Amount, "received": payment.Amount}), "captured amount mismatch")
		return s.flag(ctx, entry, d.Body)
	}

	_, err = s.dispatcher.Complete(ctx, fulfillment.CompleteInput{
		EntryID:          entry.ID,
		GatewayPaymentID: paymentID,
		Payload:          datatypes.JSON(d.Body),
		Source:           fulfillment.SourceWebhook,
	})
	return err
}

func (s *Service) handleFailed(ctx context.Context, d Delivery) error {
	entry, err := s.findEntry(ctx, d.Event)
	if err != nil || entry == nil {
		return err
	}
	if entry.Status != enums.PaymentStatusPending {
		return nil
	}
	reason := "payment failed at gateway"
	if p := d.Event.Payment(); p != nil && p.ErrorDescription != "" {
		reason = p.ErrorDescription
	}
	applied, err := s.ledger.MarkFailed(ctx, entry.ID, reason)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark payment failed")
	}
	if !applied {
		return nil
	}
	s.metrics.Transition(string(enums.PaymentStatusPending), string(enums.PaymentStatusFailed), fulfillment.SourceWebhook)
	if err := s.ledger.SetPayload(ctx, entry.ID, datatypes.JSON(d.Body)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store gateway payload")
	}
	logCtx := s.logg.WithPayment(ctx, entry.ID.String(), entry.Receipt, entry.GatewayOrderID)
	s.logg.Info(s.logg.WithField(logCtx, "reason", reason), "payment failed")
	return nil
}

func (s *Service) handleRefund(ctx context.Context, d Delivery) error {
	refund := d.Event.Refund()
	if refund == nil || refund.PaymentID == "" {
		return fmt.Errorf("%w: refund event has no refund entity", errUnprocessable)
	}
	entry, err := s.findEntry(ctx, d.Event)
	if err != nil || entry == nil {
		return err
	}
	logCtx := s.logg.WithPayment(ctx, entry.ID.String(), entry.Receipt, entry.GatewayOrderID)

	switch entry.Status {
	case enums.PaymentStatusRefunded:
		return nil
	case enums.PaymentStatusCompleted:
	default:
		s.logg.Warn(s.logg.WithField(logCtx, "status", entry.Status), "refund received for unpaid payment")
		return nil
	}

	applied, err := s.ledger.MarkRefunded(ctx, entry.ID, ledger.RefundRecord{
		GatewayRefundID: refund.ID,
		Amount:          refund.Amount,
		RefundedAt:      s.now(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark payment refunded")
	}
	if !applied {
		return nil
	}
	s.metrics.Transition(string(enums.PaymentStatusCompleted), string(enums.PaymentStatusRefunded), fulfillment.SourceWebhook)

	updated, err := s.ledger.FindByID(ctx, entry.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment")
	}
	if err := s.dispatcher.SyncPaymentStatus(ctx, updated); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sync payment status")
	}
	s.logg.Info(s.logg.WithField(logCtx, "refund_amount", refund.Amount), "payment refunded by gateway")
	return nil
}

// findEntry resolves the ledger entry by order id, then by payment id. A
// missing entry is logged and reported as nil so the endpoint still answers
// 2xx.
func (s *Service) findEntry(ctx context.Context, event *gateway.WebhookEvent) (*models.LedgerEntry, error) {
	var (
		entry *models.LedgerEntry
		err   error
	)
	switch {
	case event.OrderID() != "":
		entry, err = s.ledger.FindByGatewayOrderID(ctx, event.OrderID())
	case event.PaymentID() != "":
		entry, err = s.ledger.FindByGatewayPaymentID(ctx, event.PaymentID())
	default:
		err = gorm.ErrRecordNotFound
	}
	if err != nil {
		if db.IsNotFound(err) {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"gateway_order_id":   event.OrderID(),
				"gateway_payment_id": event.PaymentID(),
			}), "no payment for webhook event")
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	return entry, nil
}

func (s *Service) flag(ctx context.Context, entry *models.LedgerEntry, body []byte) error {
	if err := s.ledger.SetPayload(ctx, entry.ID, datatypes.JSON(body)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store gateway payload")
	}
	if err := s.ledger.SetNeedsReview(ctx, entry.ID, true); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flag payment for review")
	}
	return nil
}
