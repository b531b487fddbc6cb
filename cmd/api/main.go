package main

import (
	"context"
	"errors"
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
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/therapy-practice-api/internal/api/router"
	"github.com/wolfman30/therapy-practice-api/internal/app/bootstrap"
	"github.com/wolfman30/therapy-practice-api/internal/audit"
	"github.com/wolfman30/therapy-practice-api/internal/bookings"
	appconfig "github.com/wolfman30/therapy-practice-api/internal/config"
	"github.com/wolfman30/therapy-practice-api/internal/consent"
	"github.com/wolfman30/therapy-practice-api/internal/coupons"
	"github.com/wolfman30/therapy-practice-api/internal/events"
	"github.com/wolfman30/therapy-practice-api/internal/observability/metrics"
	"github.com/wolfman30/therapy-practice-api/internal/payments"
	"github.com/wolfman30/therapy-practice-api/internal/refunds"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

func main() {
	// .env is optional outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting therapy-practice API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(cfg *appconfig.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := bootstrap.ConnectDatabase(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	metricsHandler, summaryHandler, lifecycleMetrics := setupMetrics(logger)

	app, err := buildApp(ctx, cfg, db, redisClient, lifecycleMetrics, logger)
	if err != nil {
		return err
	}

	go app.deliverer.Start(ctx)
	if err := app.sweeper.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: router.New(&router.Config{
			Logger:             logger,
			Bookings:           app.bookings,
			Payments:           app.payments,
			GatewayWebhook:     app.webhook,
			Coupons:            app.coupons,
			Consent:            app.consent,
			Audit:              app.audit,
			Health:             db.Pool,
			MetricsHandler:     metricsHandler,
			MetricsSummary:     summaryHandler,
			JWTSecret:          cfg.JWTSecret,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			RateLimitPerSecond: cfg.RateLimitPerSecond,
			RateLimitBurst:     cfg.RateLimitBurst,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

type app struct {
	bookings  *bookings.Handler
	payments  *payments.Handler
	webhook   *payments.WebhookHandler
	coupons   *coupons.Handler
	consent   *consent.Handler
	audit     *audit.Handler
	deliverer *events.Deliverer
	sweeper   *payments.ExpirySweeper
}

func buildApp(ctx context.Context, cfg *appconfig.Config, db *bootstrap.Database, redisClient *redis.Client, m *metrics.LifecycleMetrics, logger *logging.Logger) (*app, error) {
	loc := cfg.Location()

	outbox := events.NewOutboxStore(db.Pool)
	auditService := audit.NewService(db.SQL)

	bookingRepo := bookings.NewRepository(db.Pool)
	resolver, err := bookings.NewResolver(bookingRepo, bookings.ResolverConfig{
		Times:    cfg.SlotTimes,
		Location: loc,
		Cache:    redisClient,
		CacheTTL: cfg.SlotCacheTTL,
	}, logger)
	if err != nil {
		return nil, err
	}
	bookingService := bookings.NewService(bookingRepo, resolver, logger,
		bookings.WithOutbox(outbox),
		bookings.WithAudit(auditService),
		bookings.WithMetrics(m),
		bookings.WithLocation(loc),
	)

	couponValidator := coupons.NewValidator(coupons.NewRepository(db.Pool), m, logger)
	consentService := consent.NewService(consent.NewRepository(db.SQL), logger)

	gateway, err := bootstrap.BuildGateway(cfg, m, logger)
	if err != nil {
		return nil, err
	}
	policy := refunds.Policy{
		Location:         loc,
		FullRefundWindow: cfg.FullRefundWindow,
		PartialPercent:   int64(cfg.PartialRefundPercent),
	}
	trackerOpts := []payments.TrackerOption{
		payments.WithCoupons(couponValidator),
		payments.WithOutbox(outbox),
		payments.WithMetrics(m),
	}
	if redisClient != nil {
		trackerOpts = append(trackerOpts, payments.WithVelocity(payments.NewVelocityChecker(redisClient, payments.VelocityConfig{
			MaxOrdersPerEmail: cfg.MaxOrdersPerEmail,
			OrderWindow:       cfg.OrderWindow,
		}, logger)))
	}
	tracker := payments.NewTracker(payments.NewRepository(db.Pool), gateway, bookingService, policy, payments.TrackerConfig{
		KeyID:     cfg.GatewayKeyID,
		KeySecret: cfg.GatewayKeySecret,
		Currency:  cfg.Currency,
	}, logger, trackerOpts...)
	bookingService.SetRefunder(tracker)

	processed := events.NewProcessedStore(db.Pool)
	delivery, err := bootstrap.BuildDeliveryHandler(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		bookings:  bookings.NewHandler(bookingService, resolver, logger),
		payments:  payments.NewHandler(tracker, consentService, auditService, logger),
		webhook:   payments.NewWebhookHandler(cfg.GatewayWebhookSecret, tracker, processed, logger),
		coupons:   coupons.NewHandler(couponValidator, logger),
		consent:   consent.NewHandler(consentService, logger),
		audit:     audit.NewHandler(auditService, audit.NewReports(db.SQL), logger),
		deliverer: events.NewDeliverer(outbox, delivery, logger).WithInterval(cfg.OutboxPollInterval),
		sweeper: payments.NewExpirySweeper(tracker, cfg.ExpirySweepSpec, cfg.PendingOrderTTL, logger).
			WithEventRetention(processed, cfg.ProcessedEventRetention),
	}, nil
}

// setupMetrics registers lifecycle metrics on a private registry alongside
// the Go runtime and process collectors.
func setupMetrics(logger *logging.Logger) (http.Handler, http.Handler, *metrics.LifecycleMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewLifecycleMetrics(registry)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}), metrics.NewSummaryHandler(registry, logger), m
}
