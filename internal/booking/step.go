package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/zyta-booking-widget/internal/payments"
	"github.com/wolfman30/zyta-booking-widget/internal/schedule"
	"github.com/wolfman30/zyta-booking-widget/internal/slots"
)

// Step is the wizard position.
type Step int

const (
	StepSchedule Step = iota + 1
	StepContact
	StepPayment
	StepReview
)

func (s Step) String() string {
	switch s {
	case StepSchedule:
		return "schedule"
	case StepContact:
		return "contact"
	case StepPayment:
		return "payment"
	case StepReview:
		return "review"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Valid reports whether s is one of the four wizard steps.
func (s Step) Valid() bool { return s >= StepSchedule && s <= StepReview }

var (
	ErrTransitionDenied   = errors.New("booking: transition not allowed")
	ErrScheduleIncomplete = errors.New("booking: date, time, and duration must be selected")
	ErrSlotUnavailable    = errors.New("booking: selected time is no longer available")
	ErrInvalidContact     = errors.New("booking: contact form has errors")
	ErrEvaluationRequired = errors.New("booking: calendar requires case evaluation before payment")
	ErrNoEvaluation       = errors.New("booking: calendar does not require case evaluation")
)

// guardInput is what a transition guard may look at.
type guardInput struct {
	session  *Session
	schedule *schedule.CalendarSchedule
	now      time.Time
}

type guard func(guardInput) error

// Transition is one edge of the step machine.
type Transition struct {
	From  Step
	To    Step
	guard guard
}

// forward is ordered: Advance takes the first edge whose guard passes.
var forward = []Transition{
	{From: StepSchedule, To: StepContact, guard: scheduleComplete},
	{From: StepContact, To: StepReview, guard: all(contactValid, evaluationRequired)},
	{From: StepContact, To: StepPayment, guard: all(contactValid, evaluationNotRequired)},
}

var backward = map[Step]Step{
	StepContact: StepSchedule,
	StepPayment: StepContact,
	StepReview:  StepContact,
}

// Transitions lists the forward edges leaving from.
func Transitions(from Step) []Transition {
	var out []Transition
	for _, t := range forward {
		if t.From == from {
			out = append(out, t)
		}
	}
	return out
}

// Advance moves the session one step forward. When no edge is permitted
// the session is left where it is and the first guard's error is returned;
// contact validation errors are also recorded on the session.
func Advance(sess *Session, sched *schedule.CalendarSchedule, now time.Time) (Step, error) {
	in := guardInput{session: sess, schedule: sched, now: now}
	var firstErr error
	for _, t := range Transitions(sess.Step) {
		err := t.guard(in)
		if err == nil {
			sess.Step = t.To
			sess.Errors = nil
			return t.To, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		return sess.Step, fmt.Errorf("%w: no step after %s", ErrTransitionDenied, sess.Step)
	}
	var verr *ValidationError
	if errors.As(firstErr, &verr) {
		sess.Errors = verr.Fields
	}
	return sess.Step, firstErr
}

// Back returns one step without touching entered data.
func Back(sess *Session) (Step, error) {
	prev, ok := backward[sess.Step]
	if !ok {
		return sess.Step, fmt.Errorf("%w: no step before %s", ErrTransitionDenied, sess.Step)
	}
	sess.Step = prev
	return prev, nil
}

// ContinueEnabled reports whether the current step's primary action is
// available: Continue on the schedule and contact steps, Confirm on the
// payment step, and submitting for evaluation on the review step.
func ContinueEnabled(sess *Session, sched *schedule.CalendarSchedule, now time.Time) bool {
	if sess.Submitting {
		return false
	}
	in := guardInput{session: sess, schedule: sched, now: now}
	switch sess.Step {
	case StepSchedule, StepContact:
		for _, t := range Transitions(sess.Step) {
			if t.guard(in) == nil {
				return true
			}
		}
		return false
	case StepPayment:
		return confirmReady(in) == nil
	case StepReview:
		return evaluationReady(in) == nil
	}
	return false
}

func all(guards ...guard) guard {
	return func(in guardInput) error {
		for _, g := range guards {
			if err := g(in); err != nil {
				return err
			}
		}
		return nil
	}
}

func scheduleComplete(in guardInput) error {
	sess, sched := in.session, in.schedule
	date, ok := sess.SelectedDate()
	if !ok || sess.Slot == nil {
		return ErrScheduleIncomplete
	}
	duration := 0
	if sched.HasDurationChoice() {
		if sess.Duration == 0 {
			return ErrScheduleIncomplete
		}
		if !sched.AllowsDuration(sess.Duration) {
			return fmt.Errorf("%w: duration %d not offered", ErrSlotUnavailable, sess.Duration)
		}
		duration = sess.Duration
	}
	if !slots.Selectable(sched, date, sess.Slot.Hour, sess.Slot.Minute, duration, in.now) {
		return ErrSlotUnavailable
	}
	return nil
}

func contactValid(in guardInput) error {
	if verr := ValidateContact(in.session.Contact, in.schedule.Form); verr != nil {
		return verr
	}
	if in.schedule.Form.Attachment.Enabled && in.schedule.Form.Attachment.Required && in.session.Attachment == nil {
		return &ValidationError{Fields: map[string]string{"attachment": "Adjuntá el archivo solicitado"}}
	}
	return nil
}

func evaluationRequired(in guardInput) error {
	if !in.schedule.RequiresEvaluation {
		return ErrNoEvaluation
	}
	return nil
}

func evaluationNotRequired(in guardInput) error {
	if in.schedule.RequiresEvaluation {
		return ErrEvaluationRequired
	}
	return nil
}

// confirmReady is the payment step's Confirm precondition.
func confirmReady(in guardInput) error {
	m := in.session.Payment
	if !m.Selected() {
		return payments.ErrNoMethod
	}
	if !in.schedule.Payments.Allows(m.Kind) {
		return payments.ErrMethodDisabled
	}
	if !payments.ConfirmEnabled(m) {
		return payments.ErrProofRequired
	}
	if err := scheduleComplete(in); err != nil {
		return err
	}
	return contactValid(in)
}

// evaluationReady is the review step's submit precondition.
func evaluationReady(in guardInput) error {
	if err := evaluationRequired(in); err != nil {
		return err
	}
	if err := scheduleComplete(in); err != nil {
		return err
	}
	return contactValid(in)
}
