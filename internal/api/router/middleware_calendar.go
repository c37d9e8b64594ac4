package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/zyta-booking-widget/internal/tenancy"
)

// CalendarHeader lets the widget script name the calendar on /api requests,
// whose paths do not carry it.
const CalendarHeader = "X-Calendar-Slug"

// withCalendarSlug stores the calendar being booked in the request context,
// taking it from the {slug} route parameter or the calendar header.
func withCalendarSlug(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := strings.TrimSpace(chi.URLParam(r, "slug"))
		if slug == "" {
			slug = strings.TrimSpace(r.Header.Get(CalendarHeader))
		}
		if slug != "" {
			r = r.WithContext(tenancy.WithCalendarSlug(r.Context(), slug))
		}
		next.ServeHTTP(w, r)
	})
}
