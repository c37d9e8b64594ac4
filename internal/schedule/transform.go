package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/zyta-booking-widget/internal/payments"
	"github.com/wolfman30/zyta-booking-widget/internal/zyta"
)

// ErrInvalidSchedule wraps configuration the widget cannot use.
var ErrInvalidSchedule = errors.New("schedule: invalid calendar configuration")

// FromCalendar flattens the backend's nested calendar.
func FromCalendar(cal *zyta.Calendar) (*CalendarSchedule, error) {
	if cal == nil {
		return nil, fmt.Errorf("%w: nil calendar", ErrInvalidSchedule)
	}
	av := cal.Availability
	if err := validate(av); err != nil {
		return nil, err
	}

	days := make([]time.Weekday, 0, len(av.EnabledDays))
	for _, d := range av.EnabledDays {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("%w: weekday %d", ErrInvalidSchedule, d)
		}
		days = append(days, time.Weekday(d))
	}

	ranges := make(map[time.Weekday][]TimeRange, len(av.TimeRanges))
	for key, raw := range av.TimeRanges {
		d, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || d < 0 || d > 6 {
			return nil, fmt.Errorf("%w: time range weekday %q", ErrInvalidSchedule, key)
		}
		parsed, err := parseRanges(raw)
		if err != nil {
			return nil, err
		}
		ranges[time.Weekday(d)] = parsed
	}

	var overrides map[string]DateOverride
	if len(av.Overrides) > 0 {
		overrides = make(map[string]DateOverride, len(av.Overrides))
		for _, o := range av.Overrides {
			if _, err := time.Parse(DateLayout, o.Date); err != nil {
				return nil, fmt.Errorf("%w: override date %q", ErrInvalidSchedule, o.Date)
			}
			parsed, err := parseRanges(o.Ranges)
			if err != nil {
				return nil, err
			}
			overrides[o.Date] = DateOverride{Disabled: o.Disabled, Ranges: parsed}
		}
	}

	var durations []int
	for _, d := range av.AvailableDurations {
		if d > 0 {
			durations = append(durations, d)
		}
	}
	sort.Ints(durations)

	var occupied []Interval
	for _, o := range av.Occupied {
		occupied = append(occupied, Interval{Start: o.Start, End: o.End})
	}

	bs := cal.BookingSettings
	form := FormConfig{
		Phone:      FieldRule(bs.FormFields.Phone),
		Notes:      FieldRule(bs.FormFields.Notes),
		Attachment: FieldRule(bs.FormFields.Attachment),
	}
	for _, f := range bs.CustomFields {
		if strings.TrimSpace(f.Key) == "" {
			continue
		}
		form.CustomFields = append(form.CustomFields, CustomField{
			Key:      f.Key,
			Label:    f.Label,
			Type:     f.Type,
			Required: f.Required,
			Options:  f.Options,
		})
	}

	return &CalendarSchedule{
		Slug:               cal.Slug,
		Name:               cal.Name,
		Timezone:           cal.Timezone,
		EnabledDays:        days,
		Ranges:             ranges,
		SlotMinutes:        av.SlotMinutes,
		BufferMinutes:      av.BufferMinutes,
		Overrides:          overrides,
		MaxAdvanceDays:     av.MaxAdvanceDays,
		AvailableDurations: durations,
		Occupied:           occupied,
		Payments:           payments.OptionsFromBackend(cal.Payments.Methods),
		Form:               form,
		RequiresEvaluation: bs.ConfirmCaseBeforePayment,
	}, nil
}

func validate(av zyta.Availability) error {
	if av.SlotMinutes <= 0 {
		return fmt.Errorf("%w: slotMinutes must be positive", ErrInvalidSchedule)
	}
	if av.BufferMinutes < 0 {
		return fmt.Errorf("%w: bufferMinutes must not be negative", ErrInvalidSchedule)
	}
	return nil
}

func parseRanges(raw []zyta.TimeRange) ([]TimeRange, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]TimeRange, 0, len(raw))
	for _, r := range raw {
		start, err := ParseClock(r.Start)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		end, err := ParseClock(r.End)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		if end <= start {
			return nil, fmt.Errorf("%w: range %s-%s ends before it starts", ErrInvalidSchedule, r.Start, r.End)
		}
		out = append(out, TimeRange{Start: start, End: end})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}
