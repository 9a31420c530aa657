package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/studentnest/nest-backend/internal/fulfillment"
	"github.com/studentnest/nest-backend/internal/inventory"
	"github.com/studentnest/nest-backend/internal/ledger"
	"github.com/studentnest/nest-backend/pkg/db"
	"github.com/studentnest/nest-backend/pkg/db/models"
	"github.com/studentnest/nest-backend/pkg/enums"
	pkgerrors "github.com/studentnest/nest-backend/pkg/errors"
	"github.com/studentnest/nest-backend/pkg/gateway"
	"github.com/studentnest/nest-backend/pkg/logger"
	"github.com/studentnest/nest-backend/pkg/metrics"
	"github.com/studentnest/nest-backend/pkg/pagination"
)

const (
	defaultGatewayTimeout = 10 * time.Second
	defaultCurrency       = "INR"
	receiptPrefix         = "rcpt_"
	receiptIDLen          = 20

	verificationFailedMessage = "payment could not be verified"
)

type orderGateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
}

type completer interface {
	Complete(ctx context.Context, in fulfillment.CompleteInput) (*fulfillment.Outcome, error)
}

// Service creates gateway orders and settles them from client confirmations.
type Service interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, req CreateOrderRequest) (*CreateOrderResponse, error)
	Verify(ctx context.Context, userID uuid.UUID, req VerifyRequest) (*VerifyResponse, error)
	History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*HistoryResponse, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*PaymentDTO, error)
	Receipt(ctx context.Context, userID, id uuid.UUID) (*Receipt, error)
}

// ServiceParams wires the payments service.
type ServiceParams struct {
	Ledger         ledger.Repository
	Inventory      *inventory.Rules
	Gateway        orderGateway
	Dispatcher     completer
	Logger         *logger.Logger
	Metrics        *metrics.PaymentMetrics
	Currency       string
	GatewayTimeout time.Duration
}

type service struct {
	ledger     ledger.Repository
	inventory  *inventory.Rules
	gateway    orderGateway
	dispatcher completer
	logg       *logger.Logger
	metrics    *metrics.PaymentMetrics
	currency   string
	timeout    time.Duration
}

// NewService builds the payments service.
func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Ledger == nil:
		return nil, fmt.Errorf("ledger repository required")
	case p.Inventory == nil:
		return nil, fmt.Errorf("inventory rules required")
	case p.Gateway == nil:
		return nil, fmt.Errorf("gateway client required")
	case p.Dispatcher == nil:
		return nil, fmt.Errorf("fulfillment dispatcher required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	timeout := p.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &service{
		ledger:     p.Ledger,
		inventory:  p.Inventory,
		gateway:    p.Gateway,
		dispatcher: p.Dispatcher,
		logg:       p.Logger,
		metrics:    p.Metrics,
		currency:   currency,
		timeout:    timeout,
	}, nil
}

// CreateOrder validates the item, opens a gateway order and only then
// persists the pending ledger entry, so no pending row exists without a
// remote order. Inventory is untouched until fulfillment.
func (s *service) CreateOrder(ctx context.Context, userID uuid.UUID, req CreateOrderRequest) (*CreateOrderResponse, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	itemType, details, err := s.validateOrder(req)
	if err != nil {
		return nil, err
	}
	currency := s.currency
	if req.Currency != "" {
		currency = strings.ToUpper(req.Currency)
	}

	item, err := s.inventory.Validate(ctx, itemType, req.ItemID)
	if err != nil {
		return nil, err
	}
	if quote := inventory.Quote(item, details); req.Amount < quote {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount does not cover the item price").
			WithDetails(map[string]any{"minimumAmount": quote})
	}

	receipt := newReceipt()
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	order, err := s.gateway.CreateOrder(callCtx, gateway.CreateOrderRequest{
		Amount:   req.Amount,
		Currency: currency,
		Receipt:  receipt,
		Notes: map[string]string{
			"user_id":   userID.String(),
			"item_type": string(itemType),
			"item_id":   req.ItemID.String(),
		},
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "receipt", receipt), "gateway order creation failed", err)
		return nil, asGatewayError(err, "create gateway order")
	}

	entry := &models.LedgerEntry{
		UserID:         userID,
		GatewayOrderID: order.ID,
		Amount:         req.Amount,
		Currency:       currency,
		ItemType:       itemType,
		ItemID:         item.ID,
		ItemName:       item.Name,
		Status:         enums.PaymentStatusPending,
		Receipt:        receipt,
		Customer: datatypes.NewJSONType(models.CustomerContact{
			Name:  strings.TrimSpace(req.CustomerDetails.Name),
			Email: strings.TrimSpace(req.CustomerDetails.Email),
			Phone: strings.TrimSpace(req.CustomerDetails.Phone),
		}),
		Details: datatypes.NewJSONType(details),
	}
	if err := s.ledger.Create(ctx, entry); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "gateway order already recorded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist pending payment")
	}

	logCtx := s.logg.WithPayment(ctx, entry.ID.String(), entry.Receipt, entry.GatewayOrderID)
	s.logg.Info(s.logg.WithField(logCtx, "amount", entry.Amount), "payment order created")

	return &CreateOrderResponse{
		Order: GatewayOrder{
			ID:       order.ID,
			Amount:   entry.Amount,
			Currency: entry.Currency,
			Key:      s.gateway.KeyID(),
		},
		Payment: ToDTO(entry),
	}, nil
}

func (s *service) validateOrder(req CreateOrderRequest) (enums.ItemType, models.ItemDetails, error) {
	var details models.ItemDetails
	itemType, err := enums.ParseItemType(req.ItemType)
	if err != nil {
		return "", details, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item type")
	}
	if req.ItemID == uuid.Nil {
		return "", details, pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if req.Amount <= 0 {
		return "", details, pkgerrors.New(pkgerrors.CodeValidation, "amount must be a positive integer in minor units")
	}
	if req.Quantity < 0 {
		return "", details, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if req.Quantity > 1 && itemType != enums.ItemTypeService {
		return "", details, pkgerrors.New(pkgerrors.CodeValidation, "quantity applies to service orders only")
	}

	details = models.ItemDetails{
		CheckIn:            utc(req.CheckIn),
		CheckOut:           utc(req.CheckOut),
		StartDate:          utc(req.StartDate),
		ScheduledFor:       utc(req.ScheduledFor),
		Quantity:           req.Quantity,
		AdditionalServices: req.AdditionalServices,
	}
	if itemType == enums.ItemTypeRoomBooking {
		if (details.CheckIn == nil) != (details.CheckOut == nil) {
			return "", details, pkgerrors.New(pkgerrors.CodeValidation, "checkIn and checkOut must be provided together")
		}
		if details.CheckIn != nil && !details.CheckOut.After(*details.CheckIn) {
			return "", details, pkgerrors.New(pkgerrors.CodeValidation, "checkOut must be after checkIn")
		}
	}
	return itemType, details, nil
}

// Verify settles an entry from the client's checkout confirmation. The
// signature proves the confirmation came from the gateway widget; the
// payment is then re-fetched so a forged success cannot complete an entry.
func (s *service) Verify(ctx context.Context, userID uuid.UUID, req VerifyRequest) (*VerifyResponse, error) {
	orderID := strings.TrimSpace(req.OrderID)
	paymentID := strings.TrimSpace(req.PaymentID)
	signature := strings.TrimSpace(req.Signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orderId, paymentId and signature are required")
	}

	entry, err := s.ledger.FindByGatewayOrderID(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if entry.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
	}
	logCtx := s.logg.WithPayment(ctx, entry.ID.String(), entry.Receipt, entry.GatewayOrderID)

	if !s.gateway.VerifyPaymentSignature(orderID, paymentID, signature) {
		s.fail(logCtx, entry, "checkout signature mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeSignature, verificationFailedMessage)
	}

	switch entry.Status {
	case enums.PaymentStatusCompleted, enums.PaymentStatusRefunded:
		return &VerifyResponse{Payment: ToDTO(entry), Booking: fulfillment.ReferenceFor(entry)}, nil
	case enums.PaymentStatusFailed, enums.PaymentStatusCancelled:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payment is %s", entry.Status))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	payment, err := s.gateway.FetchPayment(callCtx, paymentID)
	if err != nil {
		// The entry stays pending; the webhook or the sweep settles it.
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "gateway payment fetch failed")
		return nil, asGatewayError(err, "fetch payment")
	}
	if reason := mismatch(entry, payment); reason != "" {
		s.fail(logCtx, entry, reason)
		return nil, pkgerrors.New(pkgerrors.CodeSignature, verificationFailedMessage)
	}

	payload, err := json.Marshal(payment)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode gateway payment")
	}
	outcome, err := s.dispatcher.Complete(ctx, fulfillment.CompleteInput{
		EntryID:          entry.ID,
		GatewayPaymentID: paymentID,
		Signature:        &signature,
		Payload:          datatypes.JSON(payload),
		Source:           fulfillment.SourceVerify,
	})
	if err != nil {
		s.logg.Error(logCtx, "complete verified payment", err)
		return nil, err
	}
	return &VerifyResponse{Payment: ToDTO(outcome.Entry), Booking: outcome.Fulfillment}, nil
}

// mismatch reports why a fetched gateway payment cannot settle entry.
func mismatch(entry *models.LedgerEntry, payment *gateway.Payment) string {
	switch {
	case payment.OrderID != entry.GatewayOrderID:
		return "gateway payment belongs to another order"
	case payment.Amount != entry.Amount:
		return "gateway payment amount mismatch"
	case !payment.IsSettled():
		return fmt.Sprintf("gateway payment status %s", payment.Status)
	}
	return ""
}

func (s *service) fail(ctx context.Context, entry *models.LedgerEntry, reason string) {
	if entry.Status != enums.PaymentStatusPending {
		s.logg.Warn(s.logg.WithField(ctx, "reason", reason), "verification rejected for settled payment")
		return
	}
	applied, err := s.ledger.MarkFailed(ctx, entry.ID, reason)
	if err != nil {
		s.logg.Error(ctx, "mark payment failed", err)
		return
	}
	if applied {
		s.metrics.Transition(string(enums.PaymentStatusPending), string(enums.PaymentStatusFailed), fulfillment.SourceVerify)
	}
	s.logg.Warn(s.logg.WithField(ctx, "reason", reason), "payment verification failed")
}

func (s *service) History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*HistoryResponse, error) {
	page, err := s.ledger.ListByUser(ctx, userID, params)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	out := toHistory(page)
	return &out, nil
}

func (s *service) Get(ctx context.Context, userID, id uuid.UUID) (*PaymentDTO, error) {
	entry, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	dto := ToDTO(entry)
	return &dto, nil
}

func (s *service) Receipt(ctx context.Context, userID, id uuid.UUID) (*Receipt, error) {
	entry, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !entry.Status.IsPaid() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "receipt is only available for paid payments")
	}
	r := toReceipt(entry)
	return &r, nil
}

func (s *service) owned(ctx context.Context, userID, id uuid.UUID) (*models.LedgerEntry, error) {
	entry, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment")
	}
	if entry.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another user")
	}
	return entry, nil
}

func asGatewayError(err error, msg string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, msg)
}

func newReceipt() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return receiptPrefix + raw[:receiptIDLen]
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
