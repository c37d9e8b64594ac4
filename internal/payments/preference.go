package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/zyta-booking-widget/internal/zyta"
	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

// DefaultCurrency is used when a calendar does not name one.
const DefaultCurrency = "ARS"

var preferenceTracer = otel.Tracer("zyta.internal.payments.mercadopago")

var (
	// ErrMissingRedirectURL is returned when the provider answers without a
	// checkout URL.
	ErrMissingRedirectURL = errors.New("payments: missing checkout url")
	ErrInvalidAmount      = errors.New("payments: amount must be positive")
)

// PreferenceCreator is the backend call that registers a checkout preference.
type PreferenceCreator interface {
	CreatePreference(ctx context.Context, slug string, req zyta.PreferenceRequest) (*zyta.PreferenceResponse, error)
}

// PreferenceParams describes one online payment.
type PreferenceParams struct {
	CalendarSlug  string
	AppointmentID string
	Amount        float64
	Currency      string
	Title         string
}

// Preference is the created checkout and where to send the browser.
type Preference struct {
	ID          string
	RedirectURL string
	Sandbox     bool
}

// PreferenceService creates MercadoPago preferences through the booking
// backend and picks the init point for the current environment.
type PreferenceService struct {
	backend       PreferenceCreator
	publicBaseURL string
	sandbox       bool
	dryRun        bool
	logger        *logging.Logger
}

func NewPreferenceService(backend PreferenceCreator, publicBaseURL string, logger *logging.Logger) *PreferenceService {
	if logger == nil {
		logger = logging.Default()
	}
	return &PreferenceService{
		backend:       backend,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		sandbox:       true,
		logger:        logger,
	}
}

// WithMode selects sandbox or production init points, see UseSandboxInitPoint.
func (s *PreferenceService) WithMode(mode string, production bool) *PreferenceService {
	s.sandbox = UseSandboxInitPoint(mode, production)
	return s
}

// WithDryRun enables dry-run mode (returns fake URLs without calling the backend).
func (s *PreferenceService) WithDryRun(enabled bool) *PreferenceService {
	s.dryRun = enabled
	return s
}

// BackURLs are the outcome pages the provider returns the visitor to.
func (s *PreferenceService) BackURLs() zyta.BackURLs {
	return zyta.BackURLs{
		Success: s.publicBaseURL + "/payment/success",
		Pending: s.publicBaseURL + "/payment/pending",
		Failure: s.publicBaseURL + "/payment/failure",
	}
}

// Create registers the preference and returns the provider redirect.
func (s *PreferenceService) Create(ctx context.Context, params PreferenceParams) (pref *Preference, err error) {
	ctx, span := preferenceTracer.Start(ctx, "mercadopago.create_preference")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("zyta.calendar_slug", params.CalendarSlug),
		attribute.String("zyta.appointment_id", params.AppointmentID),
		attribute.Float64("zyta.amount", params.Amount),
	)

	if params.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		title = "Reserva"
	}

	if s.dryRun {
		fakeID := "pref_dryrun_" + uuid.New().String()[:8]
		s.logger.Info("mercadopago dry run: skipping preference creation",
			"calendar", params.CalendarSlug, "appointment_id", params.AppointmentID, "amount", params.Amount)
		return &Preference{
			ID:          fakeID,
			RedirectURL: s.publicBaseURL + "/payment/pending?preference_id=" + url.QueryEscape(fakeID),
			Sandbox:     true,
		}, nil
	}
	if !isAbsoluteHTTPURL(s.publicBaseURL) {
		return nil, fmt.Errorf("payments: PUBLIC_BASE_URL must be an absolute http(s) URL")
	}

	resp, err := s.backend.CreatePreference(ctx, params.CalendarSlug, zyta.PreferenceRequest{
		Amount:            params.Amount,
		Currency:          currency,
		Title:             title,
		ExternalReference: params.AppointmentID,
		BackURLs:          s.BackURLs(),
	})
	if err != nil {
		return nil, fmt.Errorf("payments: create preference for %s: %w", params.CalendarSlug, err)
	}

	redirect := resp.InitPoint
	if s.sandbox && resp.SandboxInitPoint != "" {
		redirect = resp.SandboxInitPoint
	}
	if redirect == "" {
		redirect = resp.SandboxInitPoint
	}
	if redirect == "" {
		s.logger.Error("mercadopago preference without init point", "preference_id", resp.ID, "calendar", params.CalendarSlug)
		return nil, ErrMissingRedirectURL
	}

	s.logger.Info("mercadopago preference created",
		"preference_id", resp.ID, "calendar", params.CalendarSlug, "appointment_id", params.AppointmentID)
	return &Preference{ID: resp.ID, RedirectURL: redirect, Sandbox: redirect == resp.SandboxInitPoint}, nil
}

func isAbsoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
