package zyta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

const defaultTimeout = 15 * time.Second

var tracer = otel.Tracer("zyta.internal.zyta")

// RequestObserver records backend call outcomes.
type RequestObserver interface {
	ObserveBackendRequest(operation, status string, seconds float64)
}

// Client wraps the public REST endpoints of the booking backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logging.Logger
	observer   RequestObserver
}

// NewClient constructs a backend client. An empty baseURL is allowed; every
// call then fails with ErrMissingBaseURL so views can render the
// configuration error inline.
func NewClient(baseURL string, timeout time.Duration, logger *logging.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		logger:     logger,
	}
}

// WithObserver attaches a metrics observer.
func (c *Client) WithObserver(observer RequestObserver) *Client {
	c.observer = observer
	return c
}

// WithHTTPClient overrides the underlying HTTP client (for testing).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// GetCalendar fetches the public calendar configuration for slug.
func (c *Client) GetCalendar(ctx context.Context, slug string) (*Calendar, error) {
	path := fmt.Sprintf("/calendars/public/%s", url.PathEscape(slug))

	var cal Calendar
	if err := c.doJSON(ctx, "get_calendar", http.MethodGet, path, nil, &cal); err != nil {
		return nil, fmt.Errorf("get calendar: %w", err)
	}
	if cal.Slug == "" {
		cal.Slug = slug
	}
	return &cal, nil
}

// CreateAppointment books an appointment on the calendar identified by slug.
func (c *Client) CreateAppointment(ctx context.Context, slug string, req AppointmentRequest) (*AppointmentRecord, error) {
	path := fmt.Sprintf("/appointments/public/%s", url.PathEscape(slug))

	var record AppointmentRecord
	if err := c.doJSON(ctx, "create_appointment", http.MethodPost, path, req, &record); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return &record, nil
}

// CreatePreference requests a MercadoPago checkout preference for slug.
func (c *Client) CreatePreference(ctx context.Context, slug string, req PreferenceRequest) (*PreferenceResponse, error) {
	q := url.Values{}
	q.Set("calendar", slug)
	path := "/payments/mercadopago/preference?" + q.Encode()

	var pref PreferenceResponse
	if err := c.doJSON(ctx, "create_preference", http.MethodPost, path, req, &pref); err != nil {
		return nil, fmt.Errorf("create preference: %w", err)
	}
	return &pref, nil
}

// LookupCalendarSlug resolves the calendar that owns an appointment.
func (c *Client) LookupCalendarSlug(ctx context.Context, appointmentID string) (string, error) {
	path := fmt.Sprintf("/appointments/public/%s/calendar-slug", url.PathEscape(appointmentID))

	var resp struct {
		Slug         string `json:"slug"`
		CalendarSlug string `json:"calendarSlug"`
	}
	if err := c.doJSON(ctx, "lookup_calendar_slug", http.MethodGet, path, nil, &resp); err != nil {
		return "", fmt.Errorf("lookup calendar slug: %w", err)
	}
	slug := strings.TrimSpace(resp.Slug)
	if slug == "" {
		slug = strings.TrimSpace(resp.CalendarSlug)
	}
	if slug == "" {
		return "", fmt.Errorf("lookup calendar slug: %w", ErrNotFound)
	}
	return slug, nil
}

func (c *Client) doJSON(ctx context.Context, operation, method, path string, body interface{}, out interface{}) (err error) {
	if c.baseURL == "" {
		return ErrMissingBaseURL
	}

	ctx, span := tracer.Start(ctx, "zyta."+operation)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("zyta.path", path),
	)

	start := time.Now()
	status := "error"
	defer func() {
		if c.observer != nil {
			c.observer.ObserveBackendRequest(operation, status, time.Since(start).Seconds())
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Path: path, Message: extractMessage(respBody)}
		c.logger.Warn("zyta backend non-2xx response", "status", resp.StatusCode, "path", path, "message", apiErr.Message)
		return apiErr
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := decodeEnvelope(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeEnvelope accepts both bare objects and {"data": {...}} envelopes.
func decodeEnvelope(raw []byte, out interface{}) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 && envelope.Data[0] == '{' {
		return json.Unmarshal(envelope.Data, out)
	}
	return json.Unmarshal(raw, out)
}

// extractMessage pulls a human message out of an error body. Non-JSON bodies
// are truncated and returned as-is.
func extractMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		return parsed.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxMessageBytes {
		cut := maxMessageBytes
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return msg
}

const maxMessageBytes = 300
