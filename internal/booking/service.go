package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wolfman30/zyta-booking-widget/internal/attachments"
	"github.com/wolfman30/zyta-booking-widget/internal/outcome"
	"github.com/wolfman30/zyta-booking-widget/internal/payments"
	"github.com/wolfman30/zyta-booking-widget/internal/schedule"
	"github.com/wolfman30/zyta-booking-widget/internal/slots"
	"github.com/wolfman30/zyta-booking-widget/internal/zyta"
	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

var (
	ErrWrongStep       = errors.New("booking: action not available on this step")
	ErrFieldDisabled   = errors.New("booking: field not enabled for calendar")
	ErrNoAttachment    = errors.New("booking: no attachment of that kind")
	ErrConfirmDisabled = errors.New("booking: reservation cannot be confirmed yet")
)

// ScheduleGetter resolves calendar schedules.
type ScheduleGetter interface {
	Get(ctx context.Context, slug string) (*schedule.CalendarSchedule, error)
}

// AppointmentCreator is the backend call that books the appointment.
type AppointmentCreator interface {
	CreateAppointment(ctx context.Context, slug string, req zyta.AppointmentRequest) (*zyta.AppointmentRecord, error)
}

// PreferenceCreator starts an online payment.
type PreferenceCreator interface {
	Create(ctx context.Context, params payments.PreferenceParams) (*payments.Preference, error)
}

// Observer receives flow events; metrics.BookingMetrics implements it.
type Observer interface {
	ObserveTransition(from, to string, allowed bool)
	ObserveSubmission(method, outcome string)
	ObserveUpload(kind, status string)
}

type noopObserver struct{}

func (noopObserver) ObserveTransition(string, string, bool) {}
func (noopObserver) ObserveSubmission(string, string)       {}
func (noopObserver) ObserveUpload(string, string)           {}

// Deps wires a Service.
type Deps struct {
	Sessions     SessionStore
	Schedules    ScheduleGetter
	Files        attachments.Store
	Appointments AppointmentCreator
	Preferences  PreferenceCreator
	Handoffs     outcome.HandoffStore
	Observer     Observer
	Logger       *logging.Logger
	HandoffTTL   time.Duration
}

// Service runs the wizard operations against stored sessions.
type Service struct {
	sessions     SessionStore
	schedules    ScheduleGetter
	files        attachments.Store
	appointments AppointmentCreator
	preferences  PreferenceCreator
	handoffs     outcome.HandoffStore
	observer     Observer
	logger       *logging.Logger
	handoffTTL   time.Duration
	submitTTL    time.Duration
	now          func() time.Time
}

func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	var observer Observer = noopObserver{}
	if deps.Observer != nil {
		observer = deps.Observer
	}
	handoffTTL := deps.HandoffTTL
	if handoffTTL <= 0 {
		handoffTTL = 24 * time.Hour
	}
	return &Service{
		sessions:     deps.Sessions,
		schedules:    deps.Schedules,
		files:        deps.Files,
		appointments: deps.Appointments,
		preferences:  deps.Preferences,
		handoffs:     deps.Handoffs,
		observer:     observer,
		logger:       logger,
		handoffTTL:   handoffTTL,
		submitTTL:    30 * time.Second,
		now:          time.Now,
	}
}

// View is the wizard state rendered by the widget.
type View struct {
	Session         *Session                   `json:"session"`
	StepName        string                     `json:"stepName"`
	ContinueEnabled bool                       `json:"continueEnabled"`
	CanGoBack       bool                       `json:"canGoBack"`
	Schedule        *schedule.CalendarSchedule `json:"schedule"`
	PaymentMethods  []payments.Kind            `json:"paymentMethods"`
	Slots           []slots.TimeSlot           `json:"slots,omitempty"`
	Preferences     any                        `json:"preferences,omitempty"`
}

// ScheduleInput is a schedule-step edit. Nil fields are left unchanged.
type ScheduleInput struct {
	Date     *string `json:"date"`
	Hour     *int    `json:"hour"`
	Minute   *int    `json:"minute"`
	Duration *int    `json:"duration"`
}

// ContactInput is a contact-step edit. Nil fields are left unchanged.
type ContactInput struct {
	Name   *string           `json:"name"`
	Email  *string           `json:"email"`
	Phone  *string           `json:"phone"`
	Notes  *string           `json:"notes"`
	Custom map[string]string `json:"custom"`
}

// Open returns the visitor's session for slug, creating it when missing.
// Opening another calendar starts over.
func (s *Service) Open(ctx context.Context, visitor, slug string) (*View, error) {
	sched, err := s.schedules.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	release, err := s.hold(ctx, visitor)
	if errors.Is(err, ErrSubmissionInFlight) {
		// Show the running submission without rewriting its session.
		if sess, getErr := s.sessions.Get(ctx, visitor); getErr == nil && sess.CalendarSlug == sched.Slug {
			return s.view(sess, sched), nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	defer release()

	var stale []attachments.Ref
	sess, err := s.sessions.Get(ctx, visitor)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		sess = NewSession(visitor, sched.Slug, s.now())
	case err != nil:
		return nil, err
	case sess.CalendarSlug != sched.Slug:
		stale = sess.Reset(s.now())
		sess.CalendarSlug = sched.Slug
	default:
		// The guard is free, so a Submitting flag is left over from a
		// request that never finished.
		sess.Submitting = false
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	s.release(ctx, stale)
	return s.view(sess, sched), nil
}

// Current returns the visitor's session view.
func (s *Service) Current(ctx context.Context, visitor string) (*View, error) {
	sess, sched, err := s.load(ctx, visitor)
	if err != nil {
		return nil, err
	}
	return s.view(sess, sched), nil
}

// SelectSchedule updates date, slot, and duration on the schedule step.
func (s *Service) SelectSchedule(ctx context.Context, visitor string, in ScheduleInput) (*View, error) {
	return s.mutate(ctx, visitor, func(sess *Session, sched *schedule.CalendarSchedule) error {
		if sess.Step != StepSchedule {
			return ErrWrongStep
		}
		if in.Date != nil {
			d, err := time.Parse(schedule.DateLayout, *in.Date)
			if err != nil {
				return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrScheduleIncomplete)
			}
			if slots.DateDisabled(sched, d, slots.Today(sched, s.now())) {
				return ErrSlotUnavailable
			}
			sess.SetDate(*in.Date)
		}
		if in.Duration != nil {
			if *in.Duration != 0 && !sched.AllowsDuration(*in.Duration) {
				return fmt.Errorf("%w: duration %d not offered", ErrSlotUnavailable, *in.Duration)
			}
			sess.SetDuration(*in.Duration)
		}
		if in.Hour != nil && in.Minute != nil {
			date, ok := sess.SelectedDate()
			if !ok {
				return ErrScheduleIncomplete
			}
			duration := 0
			if sched.HasDurationChoice() {
				duration = sess.Duration
			}
			if !slots.Selectable(sched, date, *in.Hour, *in.Minute, duration, s.now()) {
				return ErrSlotUnavailable
			}
			sess.SetSlot(*in.Hour, *in.Minute)
		}
		return nil
	})
}

// UpdateContact edits contact fields. Each edited field loses its error.
func (s *Service) UpdateContact(ctx context.Context, visitor string, in ContactInput) (*View, error) {
	return s.mutate(ctx, visitor, func(sess *Session, sched *schedule.CalendarSchedule) error {
		if sess.Step != StepContact {
			return ErrWrongStep
		}
		set := func(field string, value *string, enabled bool) error {
			if value == nil {
				return nil
			}
			if !enabled {
				return fmt.Errorf("%w: %s", ErrFieldDisabled, field)
			}
			return sess.SetContactField(field, *value)
		}
		if err := set(FieldName, in.Name, true); err != nil {
			return err
		}
		if err := set(FieldEmail, in.Email, true); err != nil {
			return err
		}
		if err := set(FieldPhone, in.Phone, sched.Form.Phone.Enabled); err != nil {
			return err
		}
		if err := set(FieldNotes, in.Notes, sched.Form.Notes.Enabled); err != nil {
			return err
		}
		for key, value := range in.Custom {
			if !hasCustomField(sched.Form, key) {
				return fmt.Errorf("%w: %s", ErrFieldDisabled, key)
			}
			sess.SetCustomField(key, value)
		}
		return nil
	})
}

func hasCustomField(form schedule.FormConfig, key string) bool {
	for _, f := range form.CustomFields {
		if f.Key == key {
			return true
		}
	}
	return false
}

// Upload stores a file for the session. Case files belong to the contact
// step, transfer proofs to the payment step; the replaced upload is
// released once the session no longer points at it.
func (s *Service) Upload(ctx context.Context, visitor string, kind attachments.Kind, filename string, data []byte) (*View, error) {
	view, err := s.mutate(ctx, visitor, func(sess *Session, sched *schedule.CalendarSchedule) error {
		switch kind {
		case attachments.KindCaseFile:
			if sess.Step != StepContact {
				return ErrWrongStep
			}
			if !sched.Form.Attachment.Enabled {
				return fmt.Errorf("%w: attachment", ErrFieldDisabled)
			}
		case attachments.KindTransferProof:
			if sess.Step != StepPayment {
				return ErrWrongStep
			}
			if !sched.Payments.Allows(payments.KindTransfer) {
				return payments.ErrMethodDisabled
			}
		default:
			return fmt.Errorf("booking: unknown attachment kind %q", kind)
		}

		ref, err := s.files.Put(ctx, visitor, kind, filename, data)
		if err != nil {
			return err
		}
		if kind == attachments.KindCaseFile {
			sess.SetAttachment(&ref)
			sess.clearError("attachment")
		} else {
			sess.SetTransferProof(&ref)
		}
		return nil
	})
	status := "stored"
	if err != nil {
		status = "rejected"
	}
	s.observer.ObserveUpload(string(kind), status)
	return view, err
}

// OpenUpload streams the session's upload of kind, for previews.
func (s *Service) OpenUpload(ctx context.Context, visitor string, kind attachments.Kind) (io.ReadCloser, *attachments.Ref, error) {
	sess, err := s.sessions.Get(ctx, visitor)
	if err != nil {
		return nil, nil, err
	}
	var ref *attachments.Ref
	switch kind {
	case attachments.KindCaseFile:
		ref = sess.Attachment
	case attachments.KindTransferProof:
		ref = sess.Payment.Proof
	}
	if ref == nil {
		return nil, nil, ErrNoAttachment
	}
	rc, err := s.files.Open(ctx, *ref)
	if err != nil {
		return nil, nil, err
	}
	return rc, ref, nil
}

// SelectPayment chooses the payment method on the payment step.
func (s *Service) SelectPayment(ctx context.Context, visitor string, kind payments.Kind) (*View, error) {
	return s.mutate(ctx, visitor, func(sess *Session, sched *schedule.CalendarSchedule) error {
		if sess.Step != StepPayment {
			return ErrWrongStep
		}
		if !sched.Payments.Allows(kind) {
			return fmt.Errorf("%w: %s", payments.ErrMethodDisabled, kind)
		}
		sess.SetPayment(kind)
		return nil
	})
}

// Continue advances the wizard when the current step is complete.
func (s *Service) Continue(ctx context.Context, visitor string) (*View, error) {
	release, err := s.hold(ctx, visitor)
	if err != nil {
		return nil, err
	}
	defer release()
	sess, sched, err := s.load(ctx, visitor)
	if err != nil {
		return nil, err
	}
	if sess.Submitting {
		return s.view(sess, sched), ErrSubmissionInFlight
	}
	from := sess.Step
	to, advErr := Advance(sess, sched, s.now())
	s.observer.ObserveTransition(from.String(), to.String(), advErr == nil)
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	view := s.view(sess, sched)
	if advErr != nil {
		return view, advErr
	}
	s.logger.Debug("booking step advanced", "visitor", visitor, "from", from.String(), "to", to.String())
	return view, nil
}

// Back returns one step, keeping everything entered.
func (s *Service) Back(ctx context.Context, visitor string) (*View, error) {
	return s.mutate(ctx, visitor, func(sess *Session, _ *schedule.CalendarSchedule) error {
		from := sess.Step
		to, err := Back(sess)
		s.observer.ObserveTransition(from.String(), to.String(), err == nil)
		return err
	})
}

// Reset restores defaults and releases uploads. It also clears a
// Submitting flag left by a request that never finished.
func (s *Service) Reset(ctx context.Context, visitor string) (*View, error) {
	release, err := s.hold(ctx, visitor)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.apply(ctx, visitor, false, func(sess *Session, _ *schedule.CalendarSchedule) error {
		sess.Reset(s.now())
		return nil
	})
}

// mutate runs an edit under the submit guard. Edits are refused while a
// submission owns the session.
func (s *Service) mutate(ctx context.Context, visitor string, fn func(*Session, *schedule.CalendarSchedule) error) (*View, error) {
	release, err := s.hold(ctx, visitor)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.apply(ctx, visitor, true, fn)
}

// apply loads, runs fn, and saves only when fn succeeds. Uploads the edit
// dropped are released after the save lands; uploads it added are released
// when fn or the save fails.
func (s *Service) apply(ctx context.Context, visitor string, idle bool, fn func(*Session, *schedule.CalendarSchedule) error) (*View, error) {
	sess, sched, err := s.load(ctx, visitor)
	if err != nil {
		return nil, err
	}
	if idle && sess.Submitting {
		return s.view(sess, sched), ErrSubmissionInFlight
	}
	before := sess.uploads()
	err = fn(sess, sched)
	if err == nil {
		err = s.save(ctx, sess)
	}
	if err != nil {
		s.release(ctx, dropped(sess.uploads(), before))
		// fn may have edited sess before failing; show what is stored.
		if stored, getErr := s.sessions.Get(ctx, visitor); getErr == nil {
			return s.view(stored, sched), err
		}
		return nil, err
	}
	s.release(ctx, dropped(before, sess.uploads()))
	return s.view(sess, sched), nil
}

// hold takes the visitor's submit guard. Only one submission or edit runs
// per visitor at a time.
func (s *Service) hold(ctx context.Context, visitor string) (func(), error) {
	acquired, err := s.sessions.AcquireSubmit(ctx, visitor, s.submitTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrSubmissionInFlight
	}
	return func() {
		if err := s.sessions.ReleaseSubmit(context.WithoutCancel(ctx), visitor); err != nil {
			s.logger.Warn("submit lock release failed", "visitor", visitor, "error", err)
		}
	}, nil
}

// dropped returns the refs of from that are not in kept.
func dropped(from, kept []attachments.Ref) []attachments.Ref {
	var out []attachments.Ref
	for _, ref := range from {
		found := false
		for _, k := range kept {
			if k.Key == ref.Key {
				found = true
				break
			}
		}
		if !found {
			out = append(out, ref)
		}
	}
	return out
}

func (s *Service) load(ctx context.Context, visitor string) (*Session, *schedule.CalendarSchedule, error) {
	sess, err := s.sessions.Get(ctx, visitor)
	if err != nil {
		return nil, nil, err
	}
	sched, err := s.schedules.Get(ctx, sess.CalendarSlug)
	if err != nil {
		return nil, nil, err
	}
	return sess, sched, nil
}

func (s *Service) save(ctx context.Context, sess *Session) error {
	sess.touch(s.now())
	return s.sessions.Save(ctx, sess)
}

func (s *Service) release(ctx context.Context, refs []attachments.Ref) {
	for _, ref := range refs {
		if err := s.files.Release(ctx, ref); err != nil {
			s.logger.Warn("attachment release failed", "key", ref.Key, "error", err)
		}
	}
}

func (s *Service) view(sess *Session, sched *schedule.CalendarSchedule) *View {
	now := s.now()
	v := &View{
		Session:         sess,
		StepName:        sess.Step.String(),
		ContinueEnabled: ContinueEnabled(sess, sched, now),
		CanGoBack:       sess.Step != StepSchedule && !sess.Submitting,
		Schedule:        sched,
		PaymentMethods:  sched.Payments.Enabled(),
	}
	if sess.Step == StepSchedule {
		if date, ok := sess.SelectedDate(); ok {
			duration := 0
			if sched.HasDurationChoice() {
				duration = sess.Duration
			}
			v.Slots = slots.Compute(sched, date, duration, now)
		}
	}
	return v
}
