package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/studentnest/nest-backend/api/routes"
	"github.com/studentnest/nest-backend/internal/admin"
	"github.com/studentnest/nest-backend/internal/auth"
	"github.com/studentnest/nest-backend/internal/bookings"
	"github.com/studentnest/nest-backend/internal/fulfillment"
	"github.com/studentnest/nest-backend/internal/inventory"
	"github.com/studentnest/nest-backend/internal/ledger"
	"github.com/studentnest/nest-backend/internal/payments"
	"github.com/studentnest/nest-backend/internal/users"
	gatewaywebhook "github.com/studentnest/nest-backend/internal/webhooks/gateway"
	"github.com/studentnest/nest-backend/pkg/config"
	"github.com/studentnest/nest-backend/pkg/db"
	"github.com/studentnest/nest-backend/pkg/gateway"
	"github.com/studentnest/nest-backend/pkg/logger"
	"github.com/studentnest/nest-backend/pkg/metrics"
	"github.com/studentnest/nest-backend/pkg/migrate"
	"github.com/studentnest/nest-backend/pkg/redis"
)

const (
	webhookScope    = "gateway-webhook"
	shutdownTimeout = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gatewayClient, err := gateway.NewClient(
		cfg.Gateway.KeyID,
		cfg.Gateway.KeySecret,
		cfg.Gateway.WebhookSecret,
		gateway.WithBaseURL(cfg.Gateway.BaseURL),
		gateway.WithTimeout(cfg.Gateway.Timeout),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	conn := dbClient.DB()
	ledgerRepo := ledger.NewRepository(conn)
	rules := inventory.NewRules(conn)

	dispatcher, err := fulfillment.NewDispatcher(fulfillment.Params{
		Tx:            dbClient,
		DB:            conn,
		Ledger:        ledgerRepo,
		Inventory:     rules,
		Refunder:      gatewayClient,
		Logger:        logg,
		Metrics:       paymentMetrics,
		RefundTimeout: cfg.Gateway.Timeout,
	})
	exitOnErr(logg, "failed to create fulfillment dispatcher", err)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(conn),
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	exitOnErr(logg, "failed to create auth service", err)

	adminRegisterService, err := auth.NewAdminRegisterService(auth.AdminRegisterServiceParams{
		DB:             dbClient,
		PasswordConfig: cfg.Password,
	})
	exitOnErr(logg, "failed to create admin register service", err)

	paymentService, err := payments.NewService(payments.ServiceParams{
		Ledger:         ledgerRepo,
		Inventory:      rules,
		Gateway:        gatewayClient,
		Dispatcher:     dispatcher,
		Logger:         logg,
		Metrics:        paymentMetrics,
		Currency:       cfg.Gateway.Currency,
		GatewayTimeout: cfg.Gateway.Timeout,
	})
	exitOnErr(logg, "failed to create payments service", err)

	bookingService, err := bookings.NewService(bookings.ServiceParams{
		Tx:        dbClient,
		Repo:      bookings.NewRepository(conn),
		Inventory: rules,
		Refunder:  dispatcher,
		Logger:    logg,
	})
	exitOnErr(logg, "failed to create bookings service", err)

	adminService, err := admin.NewService(ledgerRepo)
	exitOnErr(logg, "failed to create admin service", err)

	webhookService, err := gatewaywebhook.NewService(gatewaywebhook.ServiceParams{
		Ledger:     ledgerRepo,
		Events:     gatewaywebhook.NewEventRepository(conn),
		Dispatcher: dispatcher,
		Logger:     logg,
		Metrics:    paymentMetrics,
	})
	exitOnErr(logg, "failed to create webhook service", err)

	webhookGuard, err := gatewaywebhook.NewIdempotencyGuard(redisClient, cfg.Webhooks.IdempotencyTTL, webhookScope)
	exitOnErr(logg, "failed to create webhook idempotency guard", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:              dbClient,
			Cache:           redisClient,
			Gatherer:        registry,
			Auth:            authService,
			AdminRegister:   adminRegisterService,
			Payments:        paymentService,
			Bookings:        bookingService,
			Admin:           adminService,
			Webhooks:        webhookService,
			WebhookVerifier: gatewayClient,
			WebhookGuard:    webhookGuard,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-sigCtx.Done()
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown", err)
		}
	}()

	logg.Info(ctx, "starting api server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func exitOnErr(logg *logger.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
