// Package tenancy carries the per-request widget identity: the calendar being
// booked and the visitor's widget session.
package tenancy

import "context"

type ctxKey string

const (
	calendarKey ctxKey = "zyta.calendar_slug"
	sessionKey  ctxKey = "zyta.widget_session"
	visitorKey  ctxKey = "zyta.widget_visitor"
)

// WithCalendarSlug stores the calendar slug in context.
func WithCalendarSlug(ctx context.Context, slug string) context.Context {
	return context.WithValue(ctx, calendarKey, slug)
}

// CalendarSlugFromContext extracts the calendar slug if present.
func CalendarSlugFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, calendarKey)
}

// WithSessionID stores the widget session id in context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey, sessionID)
}

// SessionIDFromContext extracts the widget session id if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, sessionKey)
}

// WithVisitorID stores the long-lived visitor id in context.
func WithVisitorID(ctx context.Context, visitorID string) context.Context {
	return context.WithValue(ctx, visitorKey, visitorID)
}

// VisitorIDFromContext extracts the visitor id if present.
func VisitorIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, visitorKey)
}

func stringValue(ctx context.Context, key ctxKey) (string, bool) {
	val := ctx.Value(key)
	if val == nil {
		return "", false
	}
	s, ok := val.(string)
	return s, ok && s != ""
}
