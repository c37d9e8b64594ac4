package slots

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/zyta-booking-widget/internal/schedule"
	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

// ScheduleGetter resolves a slug to its schedule.
type ScheduleGetter interface {
	Get(ctx context.Context, slug string) (*schedule.CalendarSchedule, error)
}

// Handler serves the date picker and slot list.
type Handler struct {
	schedules ScheduleGetter
	now       func() time.Time
	logger    *logging.Logger
}

func NewHandler(schedules ScheduleGetter, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{schedules: schedules, now: time.Now, logger: logger}
}

type slotsResponse struct {
	Date      string     `json:"date"`
	Durations []int      `json:"durations,omitempty"`
	Duration  int        `json:"duration,omitempty"`
	Slots     []TimeSlot `json:"slots"`
}

// GetMonth handles GET /api/calendars/{slug}/month?month=2006-01.
func (h *Handler) GetMonth(w http.ResponseWriter, r *http.Request) {
	sched, ok := h.load(w, r)
	if !ok {
		return
	}
	today := Today(sched, h.now())
	year, month := today.Year(), today.Month()
	if raw := r.URL.Query().Get("month"); raw != "" {
		parsed, err := time.Parse("2006-01", raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "month must be YYYY-MM"})
			return
		}
		year, month = parsed.Year(), parsed.Month()
	}
	writeJSON(w, http.StatusOK, Month(sched, year, month, today))
}

// GetSlots handles GET /api/calendars/{slug}/slots?date=2006-01-02&duration=30.
func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	sched, ok := h.load(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	date, err := time.Parse(schedule.DateLayout, q.Get("date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
		return
	}
	duration := 0
	if raw := q.Get("duration"); raw != "" {
		duration, err = strconv.Atoi(raw)
		if err != nil || duration < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "duration must be a positive number of minutes"})
			return
		}
	}

	resp := slotsResponse{
		Date:     date.Format(schedule.DateLayout),
		Duration: duration,
		Slots:    Compute(sched, date, duration, h.now()),
	}
	if sched.HasDurationChoice() {
		resp.Durations = sched.Durations()
	}
	if resp.Slots == nil {
		resp.Slots = []TimeSlot{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*schedule.CalendarSchedule, bool) {
	slug := chi.URLParam(r, "slug")
	sched, err := h.schedules.Get(r.Context(), slug)
	if err != nil {
		h.logger.Warn("slots: schedule unavailable", "calendar", slug, "error", err)
		writeJSON(w, schedule.StatusFor(err), map[string]string{"error": schedule.Message(err)})
		return nil, false
	}
	return sched, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
