package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/zyta-booking-widget/internal/api/router"
	"github.com/wolfman30/zyta-booking-widget/internal/app/bootstrap"
	"github.com/wolfman30/zyta-booking-widget/internal/booking"
	appconfig "github.com/wolfman30/zyta-booking-widget/internal/config"
	httpmiddleware "github.com/wolfman30/zyta-booking-widget/internal/http/middleware"
	"github.com/wolfman30/zyta-booking-widget/internal/observability/metrics"
	"github.com/wolfman30/zyta-booking-widget/internal/outcome"
	"github.com/wolfman30/zyta-booking-widget/internal/payments"
	"github.com/wolfman30/zyta-booking-widget/internal/preferences"
	"github.com/wolfman30/zyta-booking-widget/internal/schedule"
	"github.com/wolfman30/zyta-booking-widget/internal/slots"
	"github.com/wolfman30/zyta-booking-widget/internal/widget"
	"github.com/wolfman30/zyta-booking-widget/internal/zyta"
	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.NewWithWriter(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting zyta booking widget",
		"env", cfg.Env,
		"port", cfg.Port,
		"backend", cfg.BackendBaseURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler, cleanup, err := buildHandler(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildHandler wires every component behind the router. The returned cleanup
// closes connections opened here.
func buildHandler(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (http.Handler, func(), error) {
	secret := cfg.SessionSigningKey()
	if len(secret) == 0 {
		return nil, nil, errors.New("SESSION_SECRET is required in production")
	}
	if cfg.BackendBaseURL == "" {
		logger.Warn("BACKEND_BASE_URL not set; calendars will report a missing backend")
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	cleanup := func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}
	stores := bootstrap.BuildStores(redisClient, cfg, logger)
	logger.Info("widget state store selected", "backend", stores.Backend)

	files, err := bootstrap.BuildAttachmentStore(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	metricsHandler, bookingMetrics := setupMetrics()

	client := zyta.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout, logger.Component("zyta")).
		WithObserver(bookingMetrics)
	source := schedule.NewSource(client, logger.Component("schedule")).
		WithCache(stores.ScheduleCache).
		WithTTL(cfg.ScheduleCacheTTL)
	checkout := payments.NewPreferenceService(client, cfg.PublicBaseURL, logger.Component("payments")).
		WithMode(cfg.MercadoPagoMode, cfg.IsProduction()).
		WithDryRun(cfg.PaymentsDryRun)

	service := booking.NewService(booking.Deps{
		Sessions:     stores.Sessions,
		Schedules:    source,
		Files:        files,
		Appointments: client,
		Preferences:  checkout,
		Handoffs:     stores.Handoffs,
		Observer:     bookingMetrics,
		Logger:       logger.Component("booking"),
		HandoffTTL:   cfg.HandoffTTL,
	})

	checks := map[string]router.HealthCheck{}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	bookingHandler := booking.NewHandler(service, stores.Preferences, booking.HandlerConfig{
		FallbackSlug:   cfg.CalendarSlugFallback,
		LoginURL:       cfg.LoginURL,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, logger)
	session := httpmiddleware.SessionOptions{
		Secret:     secret,
		TTL:        cfg.SessionTTL,
		VisitorTTL: cfg.VisitorTTL,
		Secure:     cfg.IsProduction(),
		Logger:     logger,
	}

	handler := router.New(&router.Config{
		Logger:             logger,
		Schedules:          schedule.NewHandler(source, cfg.CalendarSlugFallback, cfg.LoginURL, logger),
		Slots:              slots.NewHandler(source, logger),
		Booking:            bookingHandler,
		Preferences:        preferences.NewHandler(stores.Preferences, logger),
		Widget:             widget.NewHandler(source, stores.Preferences, cfg.CalendarSlugFallback, cfg.LoginURL, logger),
		Outcome:            outcome.NewPages(stores.Handoffs, client, cfg.LandingURL, logger),
		MetricsHandler:     metricsHandler,
		HealthChecks:       checks,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Session:            session,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})
	return handler, cleanup, nil
}

// setupMetrics registers the booking metrics on a private registry and
// returns the /metrics handler serving it.
func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(registry)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), bookingMetrics
}
