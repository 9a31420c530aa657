package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/studentnest/nest-backend/internal/cron"
	"github.com/studentnest/nest-backend/internal/fulfillment"
	"github.com/studentnest/nest-backend/internal/inventory"
	"github.com/studentnest/nest-backend/internal/ledger"
	"github.com/studentnest/nest-backend/pkg/config"
	"github.com/studentnest/nest-backend/pkg/db"
	"github.com/studentnest/nest-backend/pkg/gateway"
	"github.com/studentnest/nest-backend/pkg/logger"
	"github.com/studentnest/nest-backend/pkg/metrics"
	"github.com/studentnest/nest-backend/pkg/migrate"
	"github.com/studentnest/nest-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	boot := logger.New(logger.Options{ServiceName: serviceName, Level: logger.ParseLevel("info")})
	if err := godotenv.Load(); err != nil {
		boot.Warn(context.Background(), ".env file not found, relying on environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *once); err != nil {
		boot.Error(ctx, "cron worker failed", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, once bool) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	gatewayClient, err := gateway.NewClient(
		cfg.Gateway.KeyID,
		cfg.Gateway.KeySecret,
		cfg.Gateway.WebhookSecret,
		gateway.WithBaseURL(cfg.Gateway.BaseURL),
		gateway.WithTimeout(cfg.Gateway.Timeout),
	)
	if err != nil {
		return fmt.Errorf("gateway client: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	service, err := buildService(cfg, logg, dbClient, redisClient, gatewayClient, registry, paymentMetrics)
	if err != nil {
		return err
	}

	if once {
		ran, err := service.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		logg.Info(logg.WithField(ctx, "ran", ran), "cron sweep finished")
		return nil
	}

	if addr := cfg.Reconcile.MetricsAddr; addr != "" {
		metricsServer := &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "metrics listener stopped", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			err = multierr.Append(err, metricsServer.Shutdown(shutdownCtx))
		}()
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("cron loop: %w", err)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func buildService(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	gatewayClient *gateway.Client,
	registry *prometheus.Registry,
	paymentMetrics *metrics.PaymentMetrics,
) (*cron.Service, error) {
	conn := dbClient.DB()
	ledgerRepo := ledger.NewRepository(conn)
	dispatcher, err := fulfillment.NewDispatcher(fulfillment.Params{
		Tx:            dbClient,
		DB:            conn,
		Ledger:        ledgerRepo,
		Inventory:     inventory.NewRules(conn),
		Refunder:      gatewayClient,
		Logger:        logg,
		Metrics:       paymentMetrics,
		RefundTimeout: cfg.Gateway.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("fulfillment dispatcher: %w", err)
	}

	reconcileJob, err := cron.NewPaymentReconcileJob(cron.PaymentReconcileParams{
		Logger:         logg,
		Ledger:         ledgerRepo,
		Gateway:        gatewayClient,
		Dispatcher:     dispatcher,
		Metrics:        paymentMetrics,
		PendingGrace:   cfg.Reconcile.PendingGrace,
		ExpireAfter:    cfg.Reconcile.ExpireAfter,
		BatchSize:      cfg.Reconcile.BatchSize,
		GatewayTimeout: cfg.Gateway.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("payment reconcile job: %w", err)
	}

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName+":"+env), 0)
	if err != nil {
		return nil, fmt.Errorf("cron lock: %w", err)
	}

	jobs, err := cron.NewRegistry(reconcileJob)
	if err != nil {
		return nil, fmt.Errorf("register jobs: %w", err)
	}
	return cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   jobs,
		Lock:       lock,
		Metrics:    metrics.NewJobMetrics(registry),
		Interval:   cfg.Reconcile.Interval,
		JobTimeout: cfg.Reconcile.JobTimeout,
	})
}
