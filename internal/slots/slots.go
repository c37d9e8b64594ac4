// Package slots computes which dates and start times of a calendar can be
// booked.
package slots

import (
	"sort"
	"time"

	"github.com/wolfman30/zyta-booking-widget/internal/schedule"
)

// TimeSlot is one candidate start time on a date.
type TimeSlot struct {
	Hour     int       `json:"hour"`
	Minute   int       `json:"minute"`
	Label    string    `json:"label"`
	Duration int       `json:"duration"`
	Disabled bool      `json:"disabled"`
	Start    time.Time `json:"start"`
}

// MinuteOfDay returns the slot start in minutes after midnight.
func (t TimeSlot) MinuteOfDay() int { return t.Hour*60 + t.Minute }

// Label renders a 24-hour time on a 12-hour clock, e.g. "9:30 AM".
func Label(hour, minute int) string {
	return time.Date(2000, 1, 1, hour, minute, 0, 0, time.UTC).Format("3:04 PM")
}

// Civil truncates t to its calendar date, keeping only year, month and day.
func Civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current date in the calendar's time zone.
func Today(s *schedule.CalendarSchedule, now time.Time) time.Time {
	return Civil(now.In(s.Location()))
}

// DateDisabled reports whether date cannot be booked: its weekday is not
// enabled, an override disables it, it has no ranges, it is before today, or
// it lies beyond the advance-booking window.
func DateDisabled(s *schedule.CalendarSchedule, date, today time.Time) bool {
	date, today = Civil(date), Civil(today)
	if !s.DayEnabled(date.Weekday()) {
		return true
	}
	if o, ok := s.Override(date); ok && o.Disabled {
		return true
	}
	if len(s.RangesFor(date)) == 0 {
		return true
	}
	if date.Before(today) {
		return true
	}
	if s.MaxAdvanceDays > 0 && date.After(today.AddDate(0, 0, s.MaxAdvanceDays)) {
		return true
	}
	return false
}

// Compute lists the slots of date, sorted by start time and then duration.
// Only slots that fit their range, buffer included, are produced; slots that
// overlap an occupied interval or already started are marked disabled.
// A positive durationFilter keeps only that duration when the calendar
// offers a choice.
func Compute(s *schedule.CalendarSchedule, date time.Time, durationFilter int, now time.Time) []TimeSlot {
	date = Civil(date)
	if DateDisabled(s, date, Today(s, now)) {
		return nil
	}

	loc := s.Location()
	buffer := s.BufferMinutes
	var out []TimeSlot
	for _, r := range s.RangesFor(date) {
		for _, dur := range s.Durations() {
			if dur <= 0 {
				continue
			}
			for start := r.Start; start+dur+buffer <= r.End; start += dur + buffer {
				begin := time.Date(date.Year(), date.Month(), date.Day(), start/60, start%60, 0, 0, loc)
				end := begin.Add(time.Duration(dur+buffer) * time.Minute)
				out = append(out, TimeSlot{
					Hour:     start / 60,
					Minute:   start % 60,
					Label:    Label(start/60, start%60),
					Duration: dur,
					Disabled: !begin.After(now) || occupied(s.Occupied, begin, end),
					Start:    begin,
				})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MinuteOfDay() != out[j].MinuteOfDay() {
			return out[i].MinuteOfDay() < out[j].MinuteOfDay()
		}
		return out[i].Duration < out[j].Duration
	})
	return FilterByDuration(s, out, durationFilter)
}

// FilterByDuration keeps slots of duration d when the calendar offers
// alternative durations and d is selected; otherwise slots is returned as is.
func FilterByDuration(s *schedule.CalendarSchedule, slots []TimeSlot, d int) []TimeSlot {
	if d <= 0 || !s.HasDurationChoice() {
		return slots
	}
	out := make([]TimeSlot, 0, len(slots))
	for _, slot := range slots {
		if slot.Duration == d {
			out = append(out, slot)
		}
	}
	return out
}

// Find looks up the slot starting at hour:minute with the given duration.
// A zero duration matches the first slot at that time.
func Find(slots []TimeSlot, hour, minute, duration int) (TimeSlot, bool) {
	for _, slot := range slots {
		if slot.Hour == hour && slot.Minute == minute && (duration == 0 || slot.Duration == duration) {
			return slot, true
		}
	}
	return TimeSlot{}, false
}

// Selectable reports whether hour:minute on date can still be booked.
func Selectable(s *schedule.CalendarSchedule, date time.Time, hour, minute, duration int, now time.Time) bool {
	slot, ok := Find(Compute(s, date, duration, now), hour, minute, duration)
	return ok && !slot.Disabled
}

func occupied(busy []schedule.Interval, start, end time.Time) bool {
	for _, iv := range busy {
		if iv.Overlaps(start, end) {
			return true
		}
	}
	return false
}
