// Package schedule turns the backend's nested calendar configuration into the
// flat CalendarSchedule the widget computes availability from, and caches it
// per calendar slug.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/wolfman30/zyta-booking-widget/internal/payments"
)

// DateLayout is the calendar date format used in overrides and requests.
const DateLayout = "2006-01-02"

// TimeRange is a half-open [Start, End) window in minutes of day.
type TimeRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Minutes returns the length of the range.
func (r TimeRange) Minutes() int { return r.End - r.Start }

// DateOverride disables a date or replaces its ranges.
type DateOverride struct {
	Disabled bool        `json:"disabled"`
	Ranges   []TimeRange `json:"ranges,omitempty"`
}

// Interval is an absolute busy window reported by the backend.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether [start, end) intersects the interval.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && end.After(i.Start)
}

// FieldRule toggles a built-in contact field.
type FieldRule struct {
	Enabled  bool `json:"enabled"`
	Required bool `json:"required"`
}

// CustomField is a calendar-defined form input.
type CustomField struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

// FormConfig drives which contact fields the widget asks for.
type FormConfig struct {
	Phone        FieldRule     `json:"phone"`
	Notes        FieldRule     `json:"notes"`
	Attachment   FieldRule     `json:"attachment"`
	CustomFields []CustomField `json:"customFields,omitempty"`
}

// CalendarSchedule is the flat, immutable calendar configuration.
type CalendarSchedule struct {
	Slug               string                       `json:"slug"`
	Name               string                       `json:"name,omitempty"`
	Timezone           string                       `json:"timezone"`
	EnabledDays        []time.Weekday               `json:"enabledDays"`
	Ranges             map[time.Weekday][]TimeRange `json:"ranges"`
	SlotMinutes        int                          `json:"slotMinutes"`
	BufferMinutes      int                          `json:"bufferMinutes"`
	Overrides          map[string]DateOverride      `json:"overrides,omitempty"`
	MaxAdvanceDays     int                          `json:"maxAdvanceDays,omitempty"`
	AvailableDurations []int                        `json:"availableDurations,omitempty"`
	Occupied           []Interval                   `json:"occupied,omitempty"`
	Payments           payments.Options             `json:"payments"`
	Form               FormConfig                   `json:"form"`
	RequiresEvaluation bool                         `json:"requiresEvaluation"`
}

// Location returns the calendar's time zone, UTC when unknown.
func (s *CalendarSchedule) Location() *time.Location {
	if s == nil || s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DayEnabled reports whether bookings are accepted on weekday.
func (s *CalendarSchedule) DayEnabled(weekday time.Weekday) bool {
	for _, d := range s.EnabledDays {
		if d == weekday {
			return true
		}
	}
	return false
}

// Override returns the override for a date, if any.
func (s *CalendarSchedule) Override(date time.Time) (DateOverride, bool) {
	if s.Overrides == nil {
		return DateOverride{}, false
	}
	o, ok := s.Overrides[date.Format(DateLayout)]
	return o, ok
}

// RangesFor returns the bookable ranges of a date: the override's
// replacement ranges when present, otherwise the weekday's ranges.
func (s *CalendarSchedule) RangesFor(date time.Time) []TimeRange {
	if o, ok := s.Override(date); ok {
		if o.Disabled {
			return nil
		}
		if len(o.Ranges) > 0 {
			return o.Ranges
		}
	}
	return s.Ranges[date.Weekday()]
}

// HasDurationChoice reports whether the visitor must pick a meeting length.
func (s *CalendarSchedule) HasDurationChoice() bool {
	return len(s.AvailableDurations) > 0
}

// Durations lists the candidate meeting lengths, ascending.
func (s *CalendarSchedule) Durations() []int {
	if !s.HasDurationChoice() {
		return []int{s.SlotMinutes}
	}
	out := append([]int(nil), s.AvailableDurations...)
	sort.Ints(out)
	return out
}

// AllowsDuration reports whether minutes is an offered duration.
func (s *CalendarSchedule) AllowsDuration(minutes int) bool {
	for _, d := range s.Durations() {
		if d == minutes {
			return true
		}
	}
	return false
}

// ParseClock converts "15:04" into minutes of day. "24:00" is accepted as
// end of day.
func ParseClock(raw string) (int, error) {
	if raw == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("schedule: invalid clock %q: %w", raw, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
