package routes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	pkgAuth "github.com/studentnest/nest-backend/pkg/auth"
	"github.com/studentnest/nest-backend/pkg/config"
	"github.com/studentnest/nest-backend/pkg/enums"
	"github.com/studentnest/nest-backend/pkg/logger"
	"github.com/studentnest/nest-backend/pkg/metrics"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type memoryCache struct {
	mu      sync.Mutex
	data    map[string]string
	pingErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]string{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryCache) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryCache) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (m *memoryCache) IncrWithTTL(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

func (m *memoryCache) RateLimitKey(scope string) string { return "rl:" + scope }

func (m *memoryCache) Ping(context.Context) error { return m.pingErr }

func testConfig(env string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: env, Port: "8080"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "nest", ExpirationMinutes: 15},
	}
}

func bearer(t *testing.T, cfg *config.Config, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func serve(router http.Handler, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(`{}`))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthProbes(t *testing.T) {
	cfg := testConfig(config.AppEnvDev)
	cache := newMemoryCache()
	router := NewRouter(cfg, logger.Nop(), Dependencies{DB: stubPinger{}, Cache: cache})

	if rec := serve(router, http.MethodGet, "/health/live", ""); rec.Code != http.StatusOK {
		t.Fatalf("live: expected 200 got %d", rec.Code)
	}
	if rec := serve(router, http.MethodGet, "/health/ready", ""); rec.Code != http.StatusOK {
		t.Fatalf("ready: expected 200 got %d", rec.Code)
	}

	cache.pingErr = errors.New("connection refused")
	if rec := serve(router, http.MethodGet, "/health/ready", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready with redis down: expected 503 got %d", rec.Code)
	}
}

func TestMetricsEndpointExposesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewPaymentMetrics(reg).Transition("pending", "completed", "verify")
	router := NewRouter(testConfig(config.AppEnvDev), logger.Nop(), Dependencies{Gatherer: reg})

	rec := serve(router, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "payment_transitions_total") {
		t.Fatalf("expected payment transitions in exposition, got %s", rec.Body.String())
	}
}

func TestStudentRoutesRequireToken(t *testing.T) {
	router := NewRouter(testConfig(config.AppEnvDev), logger.Nop(), Dependencies{Cache: newMemoryCache()})

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/payments/create-order"},
		{http.MethodPost, "/api/v1/payments/verify"},
		{http.MethodGet, "/api/v1/payments/history"},
		{http.MethodGet, "/api/v1/payments/" + uuid.NewString()},
		{http.MethodGet, "/api/v1/bookings"},
		{http.MethodPut, "/api/v1/bookings/" + uuid.NewString() + "/status"},
	}
	for _, p := range paths {
		if rec := serve(router, p.method, p.path, ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401 got %d", p.method, p.path, rec.Code)
		}
	}
}

func TestCreateOrderRequiresIdempotencyKey(t *testing.T) {
	cfg := testConfig(config.AppEnvDev)
	router := NewRouter(cfg, logger.Nop(), Dependencies{Cache: newMemoryCache()})

	rec := serve(router, http.MethodPost, "/api/v1/payments/create-order", bearer(t, cfg, enums.UserRoleStudent))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Idempotency-Key") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	cfg := testConfig(config.AppEnvDev)
	router := NewRouter(cfg, logger.Nop(), Dependencies{})

	if rec := serve(router, http.MethodGet, "/api/admin/v1/payments", bearer(t, cfg, enums.UserRoleStudent)); rec.Code != http.StatusForbidden {
		t.Fatalf("student: expected 403 got %d", rec.Code)
	}
	if rec := serve(router, http.MethodGet, "/api/admin/v1/stats", bearer(t, cfg, enums.UserRoleHost)); rec.Code != http.StatusForbidden {
		t.Fatalf("host: expected 403 got %d", rec.Code)
	}
	// The admin service is not wired here, so passing the guards ends in a 500.
	if rec := serve(router, http.MethodGet, "/api/admin/v1/stats", bearer(t, cfg, enums.UserRoleAdmin)); rec.Code != http.StatusInternalServerError {
		t.Fatalf("admin: expected 500 got %d", rec.Code)
	}
}

func TestAdminRegisterHiddenInProduction(t *testing.T) {
	router := NewRouter(testConfig(config.AppEnvProd), logger.Nop(), Dependencies{})
	rec := serve(router, http.MethodPost, "/api/admin/v1/auth/register", "")
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed && rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected admin register to be unreachable in prod, got %d", rec.Code)
	}
}

func TestWebhookRouteIsPublic(t *testing.T) {
	router := NewRouter(testConfig(config.AppEnvDev), logger.Nop(), Dependencies{})
	rec := serve(router, http.MethodPost, "/api/v1/webhooks/gateway", "")
	if rec.Code == http.StatusUnauthorized || rec.Code == http.StatusNotFound {
		t.Fatalf("webhook route must be reachable without a token, got %d", rec.Code)
	}
}
