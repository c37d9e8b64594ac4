package slots

import (
	"time"

	"github.com/wolfman30/zyta-booking-widget/internal/schedule"
)

// Day is one cell of the date picker.
type Day struct {
	Date     string       `json:"date"`
	Day      int          `json:"day"`
	Weekday  time.Weekday `json:"weekday"`
	Disabled bool         `json:"disabled"`
	Today    bool         `json:"today"`
}

// MonthView is the date picker for one month. LeadingBlanks is the number
// of empty cells before day 1 in a Sunday-first grid.
type MonthView struct {
	Year          int        `json:"year"`
	Month         time.Month `json:"month"`
	LeadingBlanks int        `json:"leadingBlanks"`
	Days          []Day      `json:"days"`
	HasPrevious   bool       `json:"hasPrevious"`
	HasNext       bool       `json:"hasNext"`
}

// Month builds the grid for year/month relative to today.
func Month(s *schedule.CalendarSchedule, year int, month time.Month, today time.Time) MonthView {
	today = Civil(today)
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	view := MonthView{
		Year:          first.Year(),
		Month:         first.Month(),
		LeadingBlanks: int(first.Weekday()),
		Days:          make([]Day, 0, last.Day()),
		HasPrevious:   first.After(today),
	}
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		view.Days = append(view.Days, Day{
			Date:     d.Format(schedule.DateLayout),
			Day:      d.Day(),
			Weekday:  d.Weekday(),
			Disabled: DateDisabled(s, d, today),
			Today:    d.Equal(today),
		})
	}
	view.HasNext = s.MaxAdvanceDays == 0 || last.Before(today.AddDate(0, 0, s.MaxAdvanceDays))
	return view
}
