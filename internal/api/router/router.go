package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/zyta-booking-widget/internal/booking"
	httpmiddleware "github.com/wolfman30/zyta-booking-widget/internal/http/middleware"
	"github.com/wolfman30/zyta-booking-widget/internal/outcome"
	"github.com/wolfman30/zyta-booking-widget/internal/preferences"
	"github.com/wolfman30/zyta-booking-widget/internal/schedule"
	"github.com/wolfman30/zyta-booking-widget/internal/slots"
	"github.com/wolfman30/zyta-booking-widget/internal/widget"
	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Schedules          *schedule.Handler
	Slots              *slots.Handler
	Booking            *booking.Handler
	Preferences        *preferences.Handler
	Widget             *widget.Handler
	Outcome            *outcome.Pages
	MetricsHandler     http.Handler
	HealthChecks       map[string]HealthCheck
	CORSAllowedOrigins []string
	Session            httpmiddleware.SessionOptions

	// Submission and upload routes are limited per visitor.
	RateLimitRPS   float64
	RateLimitBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.Recover(cfg.Logger))
	r.Use(middleware.Compress(5, "text/html", "application/json", "application/javascript"))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.WidgetSession(cfg.Session))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	limit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst > 0 {
		limit = httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(withCalendarSlug)
		api.Use(middleware.NoCache)

		api.Route("/calendars/{slug}", func(cal chi.Router) {
			cal.Get("/", cfg.Schedules.GetSchedule)
			cal.Get("/month", cfg.Slots.GetMonth)
			cal.Get("/slots", cfg.Slots.GetSlots)
		})

		api.Route("/session", func(s chi.Router) {
			b := cfg.Booking
			s.Get("/", b.GetSession)
			s.Post("/schedule", b.SelectSchedule)
			s.Post("/contact", b.UpdateContact)
			s.Post("/payment-method", b.SelectPayment)
			s.Post("/continue", b.Continue)
			s.Post("/back", b.Back)
			s.Post("/reset", b.Reset)
			s.Get("/attachments/{kind}", b.GetAttachment)
			s.Group(func(limited chi.Router) {
				limited.Use(limit)
				limited.Post("/attachment", b.UploadAttachment)
				limited.Post("/transfer-proof", b.UploadTransferProof)
				limited.Post("/confirm", b.Confirm)
				limited.Post("/evaluation", b.SubmitForEvaluation)
			})
		})

		if cfg.Preferences != nil {
			api.Get("/preferences", cfg.Preferences.Get)
			api.Put("/preferences", cfg.Preferences.Put)
		}
	})

	r.Get("/", cfg.Outcome.Landing)
	r.Get("/payment/success", cfg.Outcome.PaymentSuccess)
	r.Get("/payment/pending", cfg.Outcome.PaymentPending)
	r.Get("/payment/failure", cfg.Outcome.PaymentFailure)
	r.Get("/case-under-review", cfg.Outcome.CaseUnderReview)
	r.Get("/zyta/{id}/estado", cfg.Outcome.AppointmentStatus)

	r.Get("/widget.js", cfg.Widget.HandleScript)
	r.With(withCalendarSlug).Get("/{slug}", cfg.Widget.HandlePage)

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := map[string]string{"status": "ok"}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp[name] = err.Error()
				resp["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
