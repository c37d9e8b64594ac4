package preferences

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/zyta-booking-widget/internal/tenancy"
	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

// Handler serves GET/PUT /api/preferences for the current visitor, keyed by
// the long-lived visitor id rather than the booking session.
type Handler struct {
	store  Store
	logger *logging.Logger
}

func NewHandler(store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	visitor, ok := tenancy.VisitorIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "widget visitor required")
		return
	}
	prefs, err := h.store.Get(r.Context(), visitor)
	if err != nil {
		h.logger.Error("preferences: get failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	visitor, ok := tenancy.VisitorIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "widget visitor required")
		return
	}
	var patch Patch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	prefs, err := h.store.Update(r.Context(), visitor, patch.Apply)
	if err != nil {
		if errors.Is(err, ErrInvalid) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  "invalid preferences",
				"fields": patch.Apply(Default()).Validate(),
			})
			return
		}
		h.logger.Error("preferences: update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
