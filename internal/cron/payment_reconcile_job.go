package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/datatypes"

	"github.com/studentnest/nest-backend/internal/fulfillment"
	"github.com/studentnest/nest-backend/internal/ledger"
	"github.com/studentnest/nest-backend/pkg/db/models"
	"github.com/studentnest/nest-backend/pkg/enums"
	"github.com/studentnest/nest-backend/pkg/gateway"
	"github.com/studentnest/nest-backend/pkg/logger"
	"github.com/studentnest/nest-backend/pkg/metrics"
)

const (
	defaultReconcileBatch  = 100
	defaultPendingGrace    = 15 * time.Minute
	defaultPendingExpiry   = 24 * time.Hour
	defaultGatewayDeadline = 10 * time.Second
)

type orderPaymentsFetcher interface {
	FetchOrderPayments(ctx context.Context, orderID string) ([]gateway.Payment, error)
}

type paymentCompleter interface {
	Complete(ctx context.Context, in fulfillment.CompleteInput) (*fulfillment.Outcome, error)
	RetryRefund(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error)
}

// PaymentReconcileParams wires the payment reconcile job.
type PaymentReconcileParams struct {
	Logger         *logger.Logger
	Ledger         ledger.Repository
	Gateway        orderPaymentsFetcher
	Dispatcher     paymentCompleter
	Metrics        *metrics.PaymentMetrics
	PendingGrace   time.Duration
	ExpireAfter    time.Duration
	BatchSize      int
	GatewayTimeout time.Duration
	Now            func() time.Time
}

// NewPaymentReconcileJob builds the sweep that settles pending entries the
// client and the webhook both missed, expires abandoned ones and retries
// refunds left for review.
func NewPaymentReconcileJob(params PaymentReconcileParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger repository required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("gateway client required")
	case params.Dispatcher == nil:
		return nil, fmt.Errorf("dispatcher required")
	}
	job := &paymentReconcileJob{
		logg:       params.Logger,
		ledger:     params.Ledger,
		gateway:    params.Gateway,
		dispatcher: params.Dispatcher,
		metrics:    params.Metrics,
		grace:      params.PendingGrace,
		expiry:     params.ExpireAfter,
		limit:      params.BatchSize,
		timeout:    params.GatewayTimeout,
		now:        params.Now,
	}
	if job.grace <= 0 {
		job.grace = defaultPendingGrace
	}
	if job.expiry <= 0 {
		job.expiry = defaultPendingExpiry
	}
	if job.limit <= 0 {
		job.limit = defaultReconcileBatch
	}
	if job.timeout <= 0 {
		job.timeout = defaultGatewayDeadline
	}
	if job.now == nil {
		job.now = func() time.Time { return time.Now().UTC() }
	}
	return job, nil
}

type paymentReconcileJob struct {
	logg       *logger.Logger
	ledger     ledger.Repository
	gateway    orderPaymentsFetcher
	dispatcher paymentCompleter
	metrics    *metrics.PaymentMetrics
	grace      time.Duration
	expiry     time.Duration
	limit      int
	timeout    time.Duration
	now        func() time.Time
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	now := j.now()

	pending, err := j.ledger.ListStalePending(ctx, now.Add(-j.grace), j.limit)
	if err != nil {
		return fmt.Errorf("list stale pending payments: %w", err)
	}
	var (
		errs      error
		completed int
		expired   int
	)
	for i := range pending {
		outcome, err := j.reconcilePending(ctx, &pending[i], now)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		switch outcome {
		case outcomeCompleted:
			completed++
		case outcomeExpired:
			expired++
		}
	}

	review, err := j.ledger.ListNeedsReview(ctx, now.Add(-j.grace), j.limit)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("list payments needing review: %w", err))
	}
	retried := 0
	for i := range review {
		entry := &review[i]
		if _, err := j.dispatcher.RetryRefund(ctx, entry); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("retry refund %s: %w", entry.ID, err))
			continue
		}
		retried++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"pending":   len(pending),
		"completed": completed,
		"expired":   expired,
		"review":    len(review),
		"refunded":  retried,
	}), "payment reconcile loop complete")
	return errs
}

type reconcileOutcome int

const (
	outcomeUnchanged reconcileOutcome = iota
	outcomeCompleted
	outcomeExpired
)

func (j *paymentReconcileJob) reconcilePending(ctx context.Context, entry *models.LedgerEntry, now time.Time) (reconcileOutcome, error) {
	logCtx := j.logg.WithPayment(ctx, entry.ID.String(), entry.Receipt, entry.GatewayOrderID)

	callCtx, cancel := context.WithTimeout(logCtx, j.timeout)
	payments, err := j.gateway.FetchOrderPayments(callCtx, entry.GatewayOrderID)
	cancel()
	if err != nil {
		return outcomeUnchanged, fmt.Errorf("fetch payments for %s: %w", entry.GatewayOrderID, err)
	}

	if settled := settledPayment(payments, entry.Amount); settled != nil {
		payload, err := json.Marshal(settled)
		if err != nil {
			return outcomeUnchanged, fmt.Errorf("encode gateway payment: %w", err)
		}
		if _, err := j.dispatcher.Complete(logCtx, fulfillment.CompleteInput{
			EntryID:          entry.ID,
			GatewayPaymentID: settled.ID,
			Payload:          datatypes.JSON(payload),
			Source:           fulfillment.SourceSweep,
		}); err != nil {
			return outcomeUnchanged, fmt.Errorf("complete %s: %w", entry.ID, err)
		}
		return outcomeCompleted, nil
	}

	if now.Sub(entry.CreatedAt) < j.expiry {
		return outcomeUnchanged, nil
	}
	applied, err := j.ledger.MarkCancelled(logCtx, entry.ID, "expired without capture")
	if err != nil {
		return outcomeUnchanged, fmt.Errorf("expire %s: %w", entry.ID, err)
	}
	if !applied {
		return outcomeUnchanged, nil
	}
	j.metrics.Transition(string(enums.PaymentStatusPending), string(enums.PaymentStatusCancelled), fulfillment.SourceSweep)
	j.logg.Info(logCtx, "pending payment expired")
	return outcomeExpired, nil
}

// settledPayment picks the captured payment for the order. A payment for a
// different amount is never applied automatically.
func settledPayment(payments []gateway.Payment, amount int64) *gateway.Payment {
	for i := range payments {
		if payments[i].IsSettled() && payments[i].Amount == amount {
			return &payments[i]
		}
	}
	return nil
}
