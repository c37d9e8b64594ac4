package schedule

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/zyta-booking-widget/internal/zyta"
	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

// Handler exposes the schedule view over HTTP.
type Handler struct {
	source   *Source
	fallback string
	loginURL string
	logger   *logging.Logger
}

func NewHandler(source *Source, fallbackSlug, loginURL string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{source: source, fallback: fallbackSlug, loginURL: loginURL, logger: logger}
}

// GetSchedule handles GET /api/calendars/{slug}.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	slug, err := ResolveSlug(chi.URLParam(r, "slug"), r.URL.Query().Get("calendar"), h.fallback)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, View{Error: Message(err)})
		return
	}

	sched, err := h.source.Get(r.Context(), slug)
	if err != nil {
		if errors.Is(err, zyta.ErrUnauthorized) && h.loginURL != "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"redirect": h.loginURL})
			return
		}
		h.logger.Warn("schedule load failed", "calendar", slug, "error", err)
		writeJSON(w, StatusFor(err), View{Error: Message(err)})
		return
	}
	writeJSON(w, http.StatusOK, View{Schedule: sched})
}

// StatusFor maps a Get error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrMissingIdentifier):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMissingBackendURL):
		return http.StatusServiceUnavailable
	case errors.Is(err, zyta.ErrUnauthorized):
		return http.StatusUnauthorized
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
