package webhooks

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gatewaywebhook "github.com/studentnest/nest-backend/internal/webhooks/gateway"
	"github.com/studentnest/nest-backend/pkg/gateway"
)

const capturedBody = `{"entity":"event","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","amount":500000,"status":"captured"}}}}`

type fakeGatewayWebhookService struct {
	mu         sync.Mutex
	deliveries []gatewaywebhook.Delivery
	err        error
}

func (f *fakeGatewayWebhookService) HandleEvent(_ context.Context, d gatewaywebhook.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, d)
	return f.err
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: map[string]string{}}
}

func (s *inMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = "1"
	return true, nil
}

func (s *inMemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func newWebhookHandler(t *testing.T, svc GatewayWebhookService) http.Handler {
	t.Helper()
	client, err := gateway.NewClient("key_id", "key_secret", "whsec_test")
	if err != nil {
		t.Fatalf("gateway client: %v", err)
	}
	guard, err := gatewaywebhook.NewIdempotencyGuard(newInMemoryStore(), time.Minute, "gateway-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	return GatewayWebhook(svc, client, guard, nil)
}

func signedRequest(body, eventID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", bytes.NewReader([]byte(body)))
	req.Header.Set("X-Signature", gateway.Sign("whsec_test", []byte(body)))
	if eventID != "" {
		req.Header.Set("X-Event-Id", eventID)
	}
	return req
}

func TestGatewayWebhook_SuccessAndIdempotent(t *testing.T) {
	service := &fakeGatewayWebhookService{}
	handler := newWebhookHandler(t, service)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(capturedBody, "evt_1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d (%s)", i, rec.Code, rec.Body.String())
		}
	}
	if len(service.deliveries) != 1 {
		t.Fatalf("expected duplicate not processed, call count %d", len(service.deliveries))
	}
	d := service.deliveries[0]
	if d.EventID != "evt_1" || d.Event.OrderID() != "order_1" || string(d.Body) != capturedBody {
		t.Fatalf("unexpected delivery %+v", d)
	}
}

func TestGatewayWebhook_InvalidSignature(t *testing.T) {
	service := &fakeGatewayWebhookService{}
	handler := newWebhookHandler(t, service)

	req := signedRequest(capturedBody, "evt_1")
	req.Header.Set("X-Signature", gateway.Sign("wrong_secret", []byte(capturedBody)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	missing := signedRequest(capturedBody, "evt_1")
	missing.Header.Del("X-Signature")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, missing)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without signature, got %d", rec.Code)
	}
	if len(service.deliveries) != 0 {
		t.Fatalf("unsigned deliveries must not reach the service")
	}
}

func TestGatewayWebhook_FailureReleasesMark(t *testing.T) {
	service := &fakeGatewayWebhookService{err: errors.New("db down")}
	handler := newWebhookHandler(t, service)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(capturedBody, "evt_retry"))
	if rec.Code < 500 {
		t.Fatalf("expected 5xx so the gateway retries, got %d", rec.Code)
	}

	service.err = nil
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(capturedBody, "evt_retry"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d", rec.Code)
	}
	if len(service.deliveries) != 2 {
		t.Fatalf("expected the retry to be processed, got %d deliveries", len(service.deliveries))
	}
}

func TestGatewayWebhook_BodyHashIdentifiesDelivery(t *testing.T) {
	service := &fakeGatewayWebhookService{}
	handler := newWebhookHandler(t, service)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(capturedBody, ""))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}
	if len(service.deliveries) != 1 {
		t.Fatalf("expected identical bodies to collapse, got %d", len(service.deliveries))
	}
}
