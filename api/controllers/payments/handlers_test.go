package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentnest/nest-backend/api/middleware"
	"github.com/studentnest/nest-backend/internal/payments"
	"github.com/studentnest/nest-backend/pkg/enums"
	pkgerrors "github.com/studentnest/nest-backend/pkg/errors"
	"github.com/studentnest/nest-backend/pkg/logger"
	"github.com/studentnest/nest-backend/pkg/pagination"
)

type fakeService struct {
	userID    uuid.UUID
	created   payments.CreateOrderRequest
	verified  payments.VerifyRequest
	params    pagination.Params
	requested uuid.UUID
	err       error
}

func (f *fakeService) CreateOrder(_ context.Context, userID uuid.UUID, req payments.CreateOrderRequest) (*payments.CreateOrderResponse, error) {
	f.userID, f.created = userID, req
	if f.err != nil {
		return nil, f.err
	}
	return &payments.CreateOrderResponse{Order: payments.GatewayOrder{ID: "order_1", Amount: req.Amount, Currency: "INR"}}, nil
}

func (f *fakeService) Verify(_ context.Context, userID uuid.UUID, req payments.VerifyRequest) (*payments.VerifyResponse, error) {
	f.userID, f.verified = userID, req
	if f.err != nil {
		return nil, f.err
	}
	return &payments.VerifyResponse{Payment: payments.PaymentDTO{OrderID: req.OrderID, Status: enums.PaymentStatusCompleted}}, nil
}

func (f *fakeService) History(_ context.Context, userID uuid.UUID, params pagination.Params) (*payments.HistoryResponse, error) {
	f.userID, f.params = userID, params
	return &payments.HistoryResponse{Payments: []payments.PaymentDTO{}}, f.err
}

func (f *fakeService) Get(_ context.Context, userID, id uuid.UUID) (*payments.PaymentDTO, error) {
	f.userID, f.requested = userID, id
	if f.err != nil {
		return nil, f.err
	}
	return &payments.PaymentDTO{ID: id}, nil
}

func (f *fakeService) Receipt(_ context.Context, userID, id uuid.UUID) (*payments.Receipt, error) {
	f.userID, f.requested = userID, id
	if f.err != nil {
		return nil, f.err
	}
	return &payments.Receipt{OrderID: "order_1"}, nil
}

func mount(svc payments.Service) chi.Router {
	logg := logger.Nop()
	r := chi.NewRouter()
	r.Post("/create-order", CreateOrder(svc, logg))
	r.Post("/verify", Verify(svc, logg))
	r.Get("/history", History(svc, logg))
	r.Get("/{paymentId}", Get(svc, logg))
	r.Get("/{paymentId}/receipt", Receipt(svc, logg))
	return r
}

func do(h http.Handler, principal *middleware.Principal, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if principal != nil {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), *principal))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func student() *middleware.Principal {
	return &middleware.Principal{UserID: uuid.New(), Role: enums.UserRoleStudent}
}

func TestCreateOrderPassesCallerAndBody(t *testing.T) {
	svc := &fakeService{}
	caller := student()
	itemID := uuid.New()

	rec := do(mount(svc), caller, http.MethodPost, "/create-order",
		`{"itemType":"mess_plan","itemId":"`+itemID.String()+`","amount":350000}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"order":{"id":"order_1","amount":350000,"currency":"INR"}`)
	assert.Equal(t, caller.UserID, svc.userID)
	assert.Equal(t, itemID, svc.created.ItemID)
}

func TestCreateOrderRejectsBeforeCallingService(t *testing.T) {
	svc := &fakeService{}
	h := mount(svc)

	rec := do(h, nil, http.MethodPost, "/create-order", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, student(), http.MethodPost, "/create-order", `{"itemType":"gym","amount":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, uuid.Nil, svc.userID, "service must not run on invalid input")
}

func TestVerifyMapsServiceErrors(t *testing.T) {
	svc := &fakeService{err: pkgerrors.New(pkgerrors.CodeSignature, "hmac mismatch")}
	rec := do(mount(svc), student(), http.MethodPost, "/verify", `{"orderId":"order_1","paymentId":"pay_1","signature":"deadbeef"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "payment could not be verified")
	assert.NotContains(t, rec.Body.String(), "hmac")
	assert.Equal(t, "pay_1", svc.verified.PaymentID)
}

func TestHistoryReadsPagination(t *testing.T) {
	svc := &fakeService{}
	rec := do(mount(svc), student(), http.MethodGet, "/history?limit=5&cursor=abc", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pagination.Params{Limit: 5, Cursor: "abc"}, svc.params)

	rec = do(mount(svc), student(), http.MethodGet, "/history?limit=500", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAndReceiptParsePaymentID(t *testing.T) {
	svc := &fakeService{}
	h := mount(svc)
	id := uuid.New()

	rec := do(h, student(), http.MethodGet, "/"+id.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, svc.requested)

	rec = do(h, student(), http.MethodGet, "/"+id.String()+"/receipt", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, student(), http.MethodGet, "/order_1/receipt", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	rec = do(h, student(), http.MethodGet, "/"+id.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNilServiceIsInternal(t *testing.T) {
	rec := do(mount(nil), student(), http.MethodGet, "/history", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
