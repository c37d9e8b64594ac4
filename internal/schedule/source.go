package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wolfman30/zyta-booking-widget/internal/zyta"
	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

var (
	ErrMissingIdentifier = errors.New("schedule: missing calendar identifier")
	ErrNotFound          = errors.New("schedule: calendar not found")
	ErrMissingBackendURL = errors.New("schedule: booking backend url not configured")
)

// ResolveSlug picks the calendar identifier: the route parameter first,
// then the query string, then the configured fallback.
func ResolveSlug(routeParam, queryParam, fallback string) (string, error) {
	for _, candidate := range []string{routeParam, queryParam, fallback} {
		if slug := strings.TrimSpace(candidate); slug != "" {
			return slug, nil
		}
	}
	return "", ErrMissingIdentifier
}

// Fetcher loads the nested calendar from the booking backend.
type Fetcher interface {
	GetCalendar(ctx context.Context, slug string) (*zyta.Calendar, error)
}

// Source serves schedules, fetching each slug from the backend at most once
// per cache lifetime. Concurrent requests for the same slug share one fetch.
type Source struct {
	fetcher Fetcher
	cache   Cache
	ttl     time.Duration
	group   singleflight.Group
	logger  *logging.Logger
}

// NewSource creates a Source with an in-memory cache. A nil fetcher means
// the backend is not configured and every Get fails.
func NewSource(fetcher Fetcher, logger *logging.Logger) *Source {
	if logger == nil {
		logger = logging.Default()
	}
	return &Source{
		fetcher: fetcher,
		cache:   NewMemoryCache(),
		ttl:     5 * time.Minute,
		logger:  logger,
	}
}

// WithCache replaces the cache, e.g. with a RedisCache shared by replicas.
func (s *Source) WithCache(cache Cache) *Source {
	if cache != nil {
		s.cache = cache
	}
	return s
}

// WithTTL sets how long a fetched schedule is reused.
func (s *Source) WithTTL(ttl time.Duration) *Source {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// Get returns the schedule for slug.
func (s *Source) Get(ctx context.Context, slug string) (*CalendarSchedule, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, ErrMissingIdentifier
	}
	if s.fetcher == nil {
		return nil, ErrMissingBackendURL
	}

	if cached, ok, err := s.cache.Get(ctx, slug); err != nil {
		s.logger.Warn("schedule cache read failed", "calendar", slug, "error", err)
	} else if ok {
		return cached, nil
	}

	v, err, _ := s.group.Do(slug, func() (interface{}, error) {
		return s.fetch(ctx, slug)
	})
	if err != nil {
		return nil, err
	}
	return v.(*CalendarSchedule), nil
}

func (s *Source) fetch(ctx context.Context, slug string) (*CalendarSchedule, error) {
	cal, err := s.fetcher.GetCalendar(ctx, slug)
	if err != nil {
		switch {
		case errors.Is(err, zyta.ErrNotFound):
			return nil, fmt.Errorf("%w: %s", ErrNotFound, slug)
		case errors.Is(err, zyta.ErrMissingBaseURL):
			return nil, ErrMissingBackendURL
		}
		return nil, fmt.Errorf("schedule: fetch %s: %w", slug, err)
	}

	sched, err := FromCalendar(cal)
	if err != nil {
		return nil, err
	}
	if sched.Slug == "" {
		sched.Slug = slug
	}

	if err := s.cache.Set(ctx, slug, sched, s.ttl); err != nil {
		s.logger.Warn("schedule cache write failed", "calendar", slug, "error", err)
	}
	s.logger.Info("schedule loaded", "calendar", slug,
		"enabled_days", len(sched.EnabledDays), "slot_minutes", sched.SlotMinutes)
	return sched, nil
}

// View is what the widget renders while bootstrapping the schedule step.
type View struct {
	Schedule *CalendarSchedule `json:"schedule"`
	Loading  bool              `json:"loading"`
	Error    string            `json:"error,omitempty"`
	Err      error             `json:"-"`
}

// Load wraps Get into a View. Errors become the user-facing message; Err
// keeps the cause for callers that map it to a status.
func (s *Source) Load(ctx context.Context, slug string) View {
	sched, err := s.Get(ctx, slug)
	if err != nil {
		return View{Error: Message(err), Err: err}
	}
	return View{Schedule: sched}
}

// Message maps a Get error to what the visitor sees.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingIdentifier):
		return "No se indicó qué calendario reservar."
	case errors.Is(err, ErrNotFound):
		return "No encontramos este calendario."
	case errors.Is(err, ErrMissingBackendURL):
		return "El servicio de reservas no está configurado."
	case errors.Is(err, ErrInvalidSchedule):
		return "La configuración del calendario no es válida."
	}
	return zyta.UserMessage(err, "No pudimos cargar la agenda. Intentá de nuevo.")
}
