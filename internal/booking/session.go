// Package booking owns the widget's booking session: the wizard step, the
// visitor's selections, and the submission to the booking backend.
package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/zyta-booking-widget/internal/attachments"
	"github.com/wolfman30/zyta-booking-widget/internal/payments"
	"github.com/wolfman30/zyta-booking-widget/internal/schedule"
)

// SlotRef is the selected start time on the selected date.
type SlotRef struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// Contact holds the visitor's identity fields.
type Contact struct {
	Name   string            `json:"name"`
	Email  string            `json:"email"`
	Phone  string            `json:"phone,omitempty"`
	Notes  string            `json:"notes,omitempty"`
	Custom map[string]string `json:"custom,omitempty"`
}

// Contact field names, also used as keys of Session.Errors.
const (
	FieldName  = "name"
	FieldEmail = "email"
	FieldPhone = "phone"
	FieldNotes = "notes"
)

// CustomFieldKey is the Errors key of a calendar-defined field.
func CustomFieldKey(key string) string { return "custom." + key }

// Session is one booking attempt of one visitor.
type Session struct {
	ID             string            `json:"id"`
	CalendarSlug   string            `json:"calendarSlug"`
	Step           Step              `json:"step"`
	Date           string            `json:"date,omitempty"`
	Slot           *SlotRef          `json:"slot,omitempty"`
	Duration       int               `json:"duration,omitempty"`
	Contact        Contact           `json:"contact"`
	Attachment     *attachments.Ref  `json:"attachment,omitempty"`
	Payment        payments.Method   `json:"payment"`
	Errors         map[string]string `json:"errors,omitempty"`
	Submitting     bool              `json:"submitting"`
	AppointmentID  string            `json:"appointmentId,omitempty"`
	// AppointmentKey fingerprints the request that created AppointmentID.
	AppointmentKey string            `json:"appointmentKey,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// NewSession returns a session with defaults.
func NewSession(id, calendarSlug string, now time.Time) *Session {
	return &Session{
		ID:           id,
		CalendarSlug: calendarSlug,
		Step:         StepSchedule,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Reset restores defaults for the same visitor and calendar. It returns the
// uploads the session referenced so the caller can release them.
func (s *Session) Reset(now time.Time) []attachments.Ref {
	released := s.uploads()
	*s = *NewSession(s.ID, s.CalendarSlug, now)
	return released
}

func (s *Session) uploads() []attachments.Ref {
	var out []attachments.Ref
	if s.Attachment != nil {
		out = append(out, *s.Attachment)
	}
	if s.Payment.Proof != nil {
		out = append(out, *s.Payment.Proof)
	}
	return out
}

func (s *Session) touch(now time.Time) { s.UpdatedAt = now }

// SetDate selects a date. Choosing another date drops the slot, which only
// exists on the date it was picked from.
func (s *Session) SetDate(date string) {
	if date != s.Date {
		s.Slot = nil
	}
	s.Date = date
}

func (s *Session) SetSlot(hour, minute int) {
	s.Slot = &SlotRef{Hour: hour, Minute: minute}
}

func (s *Session) SetDuration(minutes int) { s.Duration = minutes }

// SetContactField updates a built-in field and clears its error.
func (s *Session) SetContactField(field, value string) error {
	switch field {
	case FieldName:
		s.Contact.Name = value
	case FieldEmail:
		s.Contact.Email = value
	case FieldPhone:
		s.Contact.Phone = value
	case FieldNotes:
		s.Contact.Notes = value
	default:
		return fmt.Errorf("booking: unknown contact field %q", field)
	}
	s.clearError(field)
	return nil
}

// SetCustomField updates a calendar-defined field and clears its error.
func (s *Session) SetCustomField(key, value string) {
	if s.Contact.Custom == nil {
		s.Contact.Custom = make(map[string]string)
	}
	s.Contact.Custom[key] = value
	s.clearError(CustomFieldKey(key))
}

func (s *Session) clearError(key string) {
	delete(s.Errors, key)
	if len(s.Errors) == 0 {
		s.Errors = nil
	}
}

// SetAttachment replaces the case file and returns the one it replaced.
func (s *Session) SetAttachment(ref *attachments.Ref) *attachments.Ref {
	prev := s.Attachment
	s.Attachment = ref
	return prev
}

// SetPayment selects a method. A transfer keeps its proof while the visitor
// stays on transfer; switching to another method returns the proof for
// release.
func (s *Session) SetPayment(kind payments.Kind) *attachments.Ref {
	if kind == s.Payment.Kind {
		return nil
	}
	prev := s.Payment.Proof
	s.Payment = payments.Method{Kind: kind}
	return prev
}

// SetTransferProof attaches a proof, selecting transfer, and returns the
// proof it replaced.
func (s *Session) SetTransferProof(ref *attachments.Ref) *attachments.Ref {
	prev := s.Payment.Proof
	if s.Payment.Kind != payments.KindTransfer {
		prev = nil
	}
	s.Payment = payments.Transfer(ref)
	return prev
}

// SelectedDate parses Date.
func (s *Session) SelectedDate() (time.Time, bool) {
	if s.Date == "" {
		return time.Time{}, false
	}
	d, err := time.Parse(schedule.DateLayout, s.Date)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// StartTime is the selected slot in the calendar's time zone.
func (s *Session) StartTime(loc *time.Location) (time.Time, error) {
	d, ok := s.SelectedDate()
	if !ok || s.Slot == nil {
		return time.Time{}, ErrScheduleIncomplete
	}
	return time.Date(d.Year(), d.Month(), d.Day(), s.Slot.Hour, s.Slot.Minute, 0, 0, loc), nil
}

// trimmedContact returns Contact with surrounding whitespace removed.
func (s *Session) trimmedContact() Contact {
	c := Contact{
		Name:  strings.TrimSpace(s.Contact.Name),
		Email: strings.TrimSpace(s.Contact.Email),
		Phone: strings.TrimSpace(s.Contact.Phone),
		Notes: strings.TrimSpace(s.Contact.Notes),
	}
	if len(s.Contact.Custom) > 0 {
		c.Custom = make(map[string]string, len(s.Contact.Custom))
		for k, v := range s.Contact.Custom {
			if v = strings.TrimSpace(v); v != "" {
				c.Custom[k] = v
			}
		}
	}
	return c
}
