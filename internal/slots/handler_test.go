package slots

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/zyta-booking-widget/internal/schedule"
)

type stubSchedules struct {
	sched *schedule.CalendarSchedule
	err   error
}

func (s stubSchedules) Get(ctx context.Context, slug string) (*schedule.CalendarSchedule, error) {
	return s.sched, s.err
}

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/calendars/{slug}/month", h.GetMonth)
	r.Get("/api/calendars/{slug}/slots", h.GetSlots)
	return r
}

func TestHandler_GetSlots(t *testing.T) {
	sched := mondayMorning()
	sched.AvailableDurations = []int{30, 60}
	h := NewHandler(stubSchedules{sched: sched}, nil)
	h.now = func() time.Time { return earlyNow }

	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/calendars/abogado-demo/slots?date=2026-11-09&duration=60", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body slotsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "2026-11-09", body.Date)
	assert.Equal(t, []int{30, 60}, body.Durations)
	require.Len(t, body.Slots, 3)
	for _, s := range body.Slots {
		assert.Equal(t, 60, s.Duration)
	}
}

func TestHandler_GetSlotsDisabledDate(t *testing.T) {
	h := NewHandler(stubSchedules{sched: mondayMorning()}, nil)
	h.now = func() time.Time { return earlyNow }

	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/calendars/abogado-demo/slots?date=2026-11-10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slots":[]`)
}

func TestHandler_BadInput(t *testing.T) {
	h := NewHandler(stubSchedules{sched: mondayMorning()}, nil)
	router := newTestRouter(h)

	for _, target := range []string{
		"/api/calendars/abogado-demo/slots?date=09-11-2026",
		"/api/calendars/abogado-demo/slots?date=2026-11-09&duration=abc",
		"/api/calendars/abogado-demo/month?month=noviembre",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestHandler_ScheduleError(t *testing.T) {
	h := NewHandler(stubSchedules{err: schedule.ErrNotFound}, nil)
	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/calendars/nadie/month", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_GetMonth(t *testing.T) {
	h := NewHandler(stubSchedules{sched: mondayMorning()}, nil)
	h.now = func() time.Time { return earlyNow }

	rec := httptest.NewRecorder()
	newTestRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/calendars/abogado-demo/month?month=2026-11", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var view MonthView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, 2026, view.Year)
	assert.Equal(t, time.November, view.Month)
	assert.Len(t, view.Days, 30)
}
