package booking

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/zyta-booking-widget/internal/attachments"
	"github.com/wolfman30/zyta-booking-widget/internal/payments"
	"github.com/wolfman30/zyta-booking-widget/internal/preferences"
	"github.com/wolfman30/zyta-booking-widget/internal/schedule"
	"github.com/wolfman30/zyta-booking-widget/internal/tenancy"
	"github.com/wolfman30/zyta-booking-widget/internal/zyta"
	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

// PreferencesReader supplies the visitor's display choices for the view.
type PreferencesReader interface {
	Get(ctx context.Context, visitor string) (preferences.Preferences, error)
}

// HandlerConfig holds the handler's navigation and limits.
type HandlerConfig struct {
	FallbackSlug   string
	LoginURL       string
	MaxUploadBytes int64
}

// Handler exposes the wizard as a JSON API under /api/session.
type Handler struct {
	service *Service
	prefs   PreferencesReader
	cfg     HandlerConfig
	logger  *logging.Logger
}

func NewHandler(service *Service, prefs PreferencesReader, cfg HandlerConfig, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 << 20
	}
	return &Handler{service: service, prefs: prefs, cfg: cfg, logger: logger}
}

type errorResponse struct {
	Error    string            `json:"error"`
	Fields   map[string]string `json:"fields,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
	View     *View             `json:"view,omitempty"`
}

// GetSession handles GET /api/session?calendar=slug.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("calendar")
	if query == "" {
		if slug, found := tenancy.CalendarSlugFromContext(r.Context()); found {
			query = slug
		}
	}
	if query == "" {
		// No calendar named: continue the current session when there is one.
		if view, err := h.service.Current(r.Context(), visitor); err == nil {
			h.writeView(w, r, view)
			return
		}
	}
	slug, err := schedule.ResolveSlug("", query, h.cfg.FallbackSlug)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	view, err := h.service.Open(r.Context(), visitor, slug)
	h.respond(w, r, view, err)
}

// SelectSchedule handles POST /api/session/schedule.
func (h *Handler) SelectSchedule(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	var in ScheduleInput
	if !decode(w, r, &in) {
		return
	}
	view, err := h.service.SelectSchedule(r.Context(), visitor, in)
	h.respond(w, r, view, err)
}

// UpdateContact handles POST /api/session/contact.
func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	var in ContactInput
	if !decode(w, r, &in) {
		return
	}
	view, err := h.service.UpdateContact(r.Context(), visitor, in)
	h.respond(w, r, view, err)
}

// UploadAttachment handles POST /api/session/attachment.
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, attachments.KindCaseFile)
}

// UploadTransferProof handles POST /api/session/transfer-proof.
func (h *Handler) UploadTransferProof(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, attachments.KindTransferProof)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request, kind attachments.Kind) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes+(64<<10))
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, attachments.ErrTooLarge, nil)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Elegí un archivo para subir."})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxUploadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No pudimos leer el archivo."})
		return
	}
	if int64(len(data)) > h.cfg.MaxUploadBytes {
		h.writeError(w, attachments.ErrTooLarge, nil)
		return
	}
	view, err := h.service.Upload(r.Context(), visitor, kind, header.Filename, data)
	h.respond(w, r, view, err)
}

// GetAttachment handles GET /api/session/attachments/{kind}, the upload
// preview.
func (h *Handler) GetAttachment(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	kind, err := attachments.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	rc, ref, err := h.service.OpenUpload(r.Context(), visitor, kind)
	if err != nil {
		if errors.Is(err, ErrNoAttachment) || errors.Is(err, ErrSessionNotFound) || errors.Is(err, attachments.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("attachment preview failed", "kind", kind, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", ref.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(ref.Size, 10))
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("attachment preview interrupted", "kind", kind, "error", err)
	}
}

type paymentMethodRequest struct {
	Method string `json:"method"`
}

// SelectPayment handles POST /api/session/payment-method.
func (h *Handler) SelectPayment(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	var in paymentMethodRequest
	if !decode(w, r, &in) {
		return
	}
	kind, err := payments.ParseKind(in.Method)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	view, err := h.service.SelectPayment(r.Context(), visitor, kind)
	h.respond(w, r, view, err)
}

// Continue handles POST /api/session/continue.
func (h *Handler) Continue(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	view, err := h.service.Continue(r.Context(), visitor)
	h.respond(w, r, view, err)
}

// Back handles POST /api/session/back.
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	view, err := h.service.Back(r.Context(), visitor)
	h.respond(w, r, view, err)
}

// Reset handles POST /api/session/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	view, err := h.service.Reset(r.Context(), visitor)
	h.respond(w, r, view, err)
}

// Confirm handles POST /api/session/confirm.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	res, err := h.service.Confirm(r.Context(), visitor)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SubmitForEvaluation handles POST /api/session/evaluation.
func (h *Handler) SubmitForEvaluation(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}
	res, err := h.service.SubmitForEvaluation(r.Context(), visitor)
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) visitor(w http.ResponseWriter, r *http.Request) (string, bool) {
	visitor, ok := tenancy.SessionIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "widget session required"})
		return "", false
	}
	return visitor, true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, view *View, err error) {
	if err != nil {
		h.writeError(w, err, view)
		return
	}
	h.writeView(w, r, view)
}

// writeView attaches the browser's display preferences, which are keyed by
// the visitor id rather than the booking session.
func (h *Handler) writeView(w http.ResponseWriter, r *http.Request, view *View) {
	browser, ok := tenancy.VisitorIDFromContext(r.Context())
	if h.prefs != nil && ok {
		if prefs, err := h.prefs.Get(r.Context(), browser); err == nil {
			view.Preferences = prefs
		} else {
			h.logger.Warn("preferences unavailable", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, view *View) {
	status, msg := classify(err)
	resp := errorResponse{Error: msg, View: view}

	var verr *ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	if errors.Is(err, zyta.ErrUnauthorized) && h.cfg.LoginURL != "" {
		resp.Redirect = h.cfg.LoginURL
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("booking request failed", "error", err, "status", status)
	}
	writeJSON(w, status, resp)
}

// classify maps service errors to a status and the message shown inline.
func classify(err error) (int, string) {
	var apiErr *zyta.APIError
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound, "Tu sesión expiró. Volvé a abrir el calendario."
	case errors.Is(err, schedule.ErrMissingIdentifier),
		errors.Is(err, schedule.ErrNotFound),
		errors.Is(err, schedule.ErrMissingBackendURL),
		errors.Is(err, schedule.ErrInvalidSchedule):
		return schedule.StatusFor(err), schedule.Message(err)
	case errors.Is(err, zyta.ErrUnauthorized):
		return http.StatusUnauthorized, "Necesitás iniciar sesión."
	case errors.Is(err, ErrInvalidContact):
		return http.StatusUnprocessableEntity, "Revisá los datos marcados."
	case errors.Is(err, ErrSubmissionInFlight):
		return http.StatusConflict, "Tu reserva ya se está procesando."
	case errors.Is(err, ErrWrongStep), errors.Is(err, ErrTransitionDenied):
		return http.StatusConflict, "Esta acción no está disponible en este paso."
	case errors.Is(err, ErrSlotUnavailable):
		return http.StatusConflict, "El horario elegido ya no está disponible."
	case errors.Is(err, ErrScheduleIncomplete):
		return http.StatusUnprocessableEntity, "Elegí fecha, horario y duración."
	case errors.Is(err, ErrConfirmDisabled), errors.Is(err, payments.ErrProofRequired):
		return http.StatusUnprocessableEntity, "Completá el método de pago para confirmar."
	case errors.Is(err, payments.ErrNoMethod), errors.Is(err, payments.ErrUnknownMethod), errors.Is(err, payments.ErrMethodDisabled):
		return http.StatusUnprocessableEntity, "Elegí un método de pago disponible."
	case errors.Is(err, ErrFieldDisabled), errors.Is(err, ErrEvaluationRequired), errors.Is(err, ErrNoEvaluation):
		return http.StatusUnprocessableEntity, "Este dato no se solicita para este calendario."
	case errors.Is(err, attachments.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "El archivo es demasiado grande."
	case errors.Is(err, attachments.ErrUnsupported), errors.Is(err, attachments.ErrEmpty):
		return http.StatusUnsupportedMediaType, "Subí una imagen (o un PDF para adjuntos)."
	case errors.Is(err, payments.ErrMissingRedirectURL):
		return http.StatusBadGateway, "No pudimos iniciar el pago. Intentá de nuevo."
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, zyta.UserMessage(err, "No pudimos completar la reserva. Intentá de nuevo.")
	}
	return http.StatusInternalServerError, "Ocurrió un error inesperado."
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
