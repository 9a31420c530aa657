package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/studentnest/nest-backend/api/controllers"
	admincontrollers "github.com/studentnest/nest-backend/api/controllers/admin"
	authcontrollers "github.com/studentnest/nest-backend/api/controllers/auth"
	bookingcontrollers "github.com/studentnest/nest-backend/api/controllers/bookings"
	paymentcontrollers "github.com/studentnest/nest-backend/api/controllers/payments"
	webhookcontrollers "github.com/studentnest/nest-backend/api/controllers/webhooks"
	"github.com/studentnest/nest-backend/api/middleware"
	"github.com/studentnest/nest-backend/internal/admin"
	"github.com/studentnest/nest-backend/internal/auth"
	"github.com/studentnest/nest-backend/internal/bookings"
	"github.com/studentnest/nest-backend/internal/payments"
	gatewaywebhook "github.com/studentnest/nest-backend/internal/webhooks/gateway"
	"github.com/studentnest/nest-backend/pkg/config"
	"github.com/studentnest/nest-backend/pkg/enums"
	"github.com/studentnest/nest-backend/pkg/logger"
)

// Cache is the redis surface used by the HTTP layer.
type Cache interface {
	middleware.IdempotencyStore
	middleware.RateLimitStore
	Ping(ctx context.Context) error
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	FirstSeen(ctx context.Context, eventID string) (time.Time, error)
	Release(ctx context.Context, eventID string) error
}

type webhookVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// Dependencies carries everything the router hands to controllers.
type Dependencies struct {
	DB       controllers.Pinger
	Cache    Cache
	Gatherer prometheus.Gatherer

	Auth          auth.Service
	AdminRegister auth.AdminRegisterService
	Payments      payments.Service
	Bookings      bookings.Service
	Admin         admin.Service

	Webhooks        webhookcontrollers.GatewayWebhookService
	WebhookVerifier webhookVerifier
	WebhookGuard    webhookGuard
}

var _ webhookGuard = (*gatewaywebhook.IdempotencyGuard)(nil)

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	var (
		idempotencyStore middleware.IdempotencyStore
		limiterStore     middleware.RateLimitStore
	)
	readiness := map[string]controllers.Pinger{}
	if deps.DB != nil {
		readiness["database"] = deps.DB
	}
	if deps.Cache != nil {
		idempotencyStore = deps.Cache
		limiterStore = deps.Cache
		readiness["redis"] = deps.Cache
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", webhookcontrollers.GatewayWebhook(deps.Webhooks, deps.WebhookVerifier, deps.WebhookGuard, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, limiterStore, logg)).Post("/login", authcontrollers.AuthLogin(deps.Auth, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, limiterStore, logg)).Post("/register", authcontrollers.AuthRegister(deps.Auth, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/payments", func(r chi.Router) {
			r.Post("/create-order", paymentcontrollers.CreateOrder(deps.Payments, logg))
			r.Post("/verify", paymentcontrollers.Verify(deps.Payments, logg))
			r.Get("/history", paymentcontrollers.History(deps.Payments, logg))
			r.Get("/{paymentId}", paymentcontrollers.Get(deps.Payments, logg))
			r.Get("/{paymentId}/receipt", paymentcontrollers.Receipt(deps.Payments, logg))
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", bookingcontrollers.Create(deps.Bookings, logg))
			r.Get("/", bookingcontrollers.List(deps.Bookings, logg))
			r.Put("/{bookingId}/status", bookingcontrollers.UpdateStatus(deps.Bookings, logg))
			r.Post("/{bookingId}/rating", bookingcontrollers.Rate(deps.Bookings, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		if !cfg.App.IsProd() {
			r.Post("/auth/register", authcontrollers.AdminAuthRegister(deps.AdminRegister, deps.Auth, cfg, logg))
		}
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.Get("/payments", admincontrollers.ListPayments(deps.Admin, logg))
			r.Get("/payments/export", admincontrollers.Export(deps.Admin, logg))
			r.Get("/stats", admincontrollers.Stats(deps.Admin, logg))
		})
	})

	return r
}
