package outcome

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/zyta-booking-widget/internal/tenancy"
	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("pages").Funcs(template.FuncMap{
	"when":   formatWhen,
	"method": methodLabel,
}).ParseFS(templateFS, "templates/*.html"))

// SlugLookup resolves the calendar an appointment belongs to.
type SlugLookup interface {
	LookupCalendarSlug(ctx context.Context, appointmentID string) (string, error)
}

// Pages renders the terminal pages of the booking flow.
type Pages struct {
	handoffs   HandoffStore
	lookup     SlugLookup
	landingURL string
	logger     *logging.Logger
}

func NewPages(handoffs HandoffStore, lookup SlugLookup, landingURL string, logger *logging.Logger) *Pages {
	if logger == nil {
		logger = logging.Default()
	}
	return &Pages{handoffs: handoffs, lookup: lookup, landingURL: landingURL, logger: logger}
}

type pageData struct {
	Title     string
	Entry     *Entry
	Status    string
	BookAgain string
	ID        string
}

// Landing handles GET / by sending the browser to the marketing site.
func (p *Pages) Landing(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, p.landingURL, http.StatusFound)
}

// PaymentSuccess handles GET /payment/success.
func (p *Pages) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	p.render(w, "success", pageData{Title: "¡Reserva confirmada!", Entry: p.take(r, KeyPayment)})
}

// PaymentPending handles GET /payment/pending.
func (p *Pages) PaymentPending(w http.ResponseWriter, r *http.Request) {
	p.render(w, "pending", pageData{Title: "Reserva pendiente", Entry: p.take(r, KeyPayment)})
}

// PaymentFailure handles GET /payment/failure.
func (p *Pages) PaymentFailure(w http.ResponseWriter, r *http.Request) {
	entry := p.take(r, KeyPayment)
	data := pageData{Title: "El pago no se completó", Entry: entry}
	if entry != nil && entry.CalendarSlug != "" {
		data.BookAgain = "/" + entry.CalendarSlug
	}
	p.render(w, "failure", data)
}

// CaseUnderReview handles GET /case-under-review.
func (p *Pages) CaseUnderReview(w http.ResponseWriter, r *http.Request) {
	p.render(w, "review", pageData{Title: "Tu caso está en revisión", Entry: p.take(r, KeyEvaluation)})
}

// AppointmentStatus handles GET /zyta/{id}/estado. The calendar comes from
// the query, the status handoff, or the backend; without one the visitor is
// sent to the landing page.
func (p *Pages) AppointmentStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		http.Redirect(w, r, p.landingURL, http.StatusFound)
		return
	}

	entry := p.take(r, StatusKey(id))
	slug := strings.TrimSpace(r.URL.Query().Get("calendar"))
	if slug == "" && entry != nil {
		slug = entry.CalendarSlug
	}
	if slug == "" && p.lookup != nil {
		found, err := p.lookup.LookupCalendarSlug(r.Context(), id)
		if err != nil {
			p.logger.Warn("appointment calendar lookup failed", "appointment_id", id, "error", err)
		}
		slug = found
	}
	if slug == "" {
		http.Redirect(w, r, p.landingURL, http.StatusFound)
		return
	}

	p.render(w, "status", pageData{
		Title:     "Estado de tu reserva",
		Entry:     entry,
		ID:        id,
		Status:    paymentStatus(r),
		BookAgain: "/" + slug,
	})
}

// take consumes the visitor's entry under key. Missing entries and store
// failures both render the page without a summary.
func (p *Pages) take(r *http.Request, key string) *Entry {
	visitor, ok := tenancy.SessionIDFromContext(r.Context())
	if !ok {
		return nil
	}
	entry, err := p.handoffs.Take(r.Context(), visitor, key)
	if err != nil {
		if !errors.Is(err, ErrNoEntry) {
			p.logger.Warn("handoff read failed", "key", key, "error", err)
		}
		return nil
	}
	return entry
}

func (p *Pages) render(w http.ResponseWriter, name string, data pageData) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		p.logger.Error("outcome page render failed", "page", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// paymentStatus reads the status the payment provider appends to its return
// URLs.
func paymentStatus(r *http.Request) string {
	q := r.URL.Query()
	status := q.Get("collection_status")
	if status == "" {
		status = q.Get("status")
	}
	switch status {
	case "approved":
		return "Pago aprobado"
	case "pending", "in_process":
		return "Pago pendiente de acreditación"
	case "rejected", "cancelled":
		return "Pago rechazado"
	}
	return ""
}

var weekdays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

var months = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return weekdays[t.Weekday()] + " " + t.Format("2") + " de " + months[t.Month()-1] + ", " + t.Format("3:04 PM")
}

func methodLabel(kind string) string {
	switch kind {
	case "cash":
		return "Efectivo"
	case "transfer":
		return "Transferencia"
	case "mercadopago":
		return "Mercado Pago"
	case "coordinar":
		return "A coordinar"
	}
	return kind
}
