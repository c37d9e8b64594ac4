package booking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/zyta-booking-widget/internal/attachments"
	"github.com/wolfman30/zyta-booking-widget/internal/outcome"
	"github.com/wolfman30/zyta-booking-widget/internal/payments"
	"github.com/wolfman30/zyta-booking-widget/internal/schedule"
	"github.com/wolfman30/zyta-booking-widget/internal/zyta"
)

// ErrSubmissionInFlight is returned when the visitor already has a
// submission running.
var ErrSubmissionInFlight = errors.New("booking: submission already in progress")

// Result tells the widget where to send the browser after submitting.
type Result struct {
	AppointmentID string       `json:"appointmentId"`
	Outcome       outcome.Kind `json:"outcome"`
	RedirectURL   string       `json:"redirectUrl"`
}

// Confirm books the appointment from the payment step and routes the
// visitor by payment method. Cash never requests a payment preference.
func (s *Service) Confirm(ctx context.Context, visitor string) (*Result, error) {
	return s.submit(ctx, visitor, StepPayment, func(sess *Session, sched *schedule.CalendarSchedule, record *zyta.AppointmentRecord, entry outcome.Entry) (*Result, error) {
		return payments.Dispatch(sess.Payment, payments.Handlers[*Result]{
			Cash: func() (*Result, error) {
				return s.finish(ctx, visitor, outcome.KeyPayment, entry, outcome.KindSuccess, "/payment/success")
			},
			Coordinar: func() (*Result, error) {
				return s.finish(ctx, visitor, outcome.KeyPayment, entry, outcome.KindSuccess, "/payment/success")
			},
			Transfer: func(attachments.Ref) (*Result, error) {
				entry.Transfer = sched.Payments.Transfer
				return s.finish(ctx, visitor, outcome.KeyPayment, entry, outcome.KindPending, "/payment/pending")
			},
			MercadoPago: func() (*Result, error) {
				opt := sched.Payments.MercadoPago
				pref, err := s.preferences.Create(ctx, payments.PreferenceParams{
					CalendarSlug:  sched.Slug,
					AppointmentID: record.ID,
					Amount:        opt.Amount,
					Currency:      opt.Currency,
					Title:         preferenceTitle(opt, sched),
				})
				if err != nil {
					return nil, err
				}
				entry.Amount = opt.Amount
				entry.Currency = opt.Currency
				entry.PreferenceID = pref.ID
				return s.finish(ctx, visitor, outcome.KeyPayment, entry, outcome.KindPendingPayment, pref.RedirectURL)
			},
		})
	})
}

// SubmitForEvaluation books the appointment from the review step as a case
// awaiting the professional's confirmation; payment is arranged later.
func (s *Service) SubmitForEvaluation(ctx context.Context, visitor string) (*Result, error) {
	return s.submit(ctx, visitor, StepReview, func(_ *Session, _ *schedule.CalendarSchedule, _ *zyta.AppointmentRecord, entry outcome.Entry) (*Result, error) {
		return s.finish(ctx, visitor, outcome.KeyEvaluation, entry, outcome.KindUnderReview, "/case-under-review")
	})
}

type completion func(sess *Session, sched *schedule.CalendarSchedule, record *zyta.AppointmentRecord, entry outcome.Entry) (*Result, error)

// submit holds the visitor's submission guard around the backend calls and
// clears the session once the appointment exists. The session is loaded
// under the guard so a submission that already finished is not repeated.
func (s *Service) submit(ctx context.Context, visitor string, step Step, done completion) (res *Result, err error) {
	release, err := s.hold(ctx, visitor)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, sched, err := s.load(ctx, visitor)
	if err != nil {
		return nil, err
	}
	if sess.Step != step {
		return nil, ErrWrongStep
	}
	evaluation := step == StepReview
	ready := confirmReady
	if evaluation {
		ready = evaluationReady
	}
	if err := ready(guardInput{session: sess, schedule: sched, now: s.now()}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfirmDisabled, err)
	}

	method := string(sess.Payment.Kind)
	if evaluation {
		method = "evaluation"
	}
	defer func() {
		result := "error"
		if err == nil {
			result = string(res.Outcome)
		}
		s.observer.ObserveSubmission(method, result)
	}()

	sess.Submitting = true
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}

	req, err := buildRequest(sess, sched, evaluation)
	if err != nil {
		s.clearSubmitting(ctx, sess)
		return nil, err
	}
	record, err := s.createOnce(ctx, sess, sched.Slug, req)
	if err != nil {
		s.clearSubmitting(ctx, sess)
		s.logger.Warn("appointment creation failed", "calendar", sched.Slug, "visitor", visitor, "error", err)
		return nil, err
	}

	start := record.StartTime
	if start.IsZero() {
		start, _ = sess.StartTime(sched.Location())
	}
	entry := outcome.Entry{
		AppointmentID:   record.ID,
		CalendarSlug:    sched.Slug,
		CalendarName:    sched.Name,
		StartTime:       start,
		DurationMinutes: req.DurationMinutes,
		PaymentMethod:   sess.Payment.Kind,
		Name:            req.Name,
		Email:           req.Email,
		CreatedAt:       s.now().UTC(),
	}
	if evaluation {
		entry.PaymentMethod = ""
	}

	res, err = done(sess, sched, record, entry)
	if err != nil {
		// The appointment exists; keep the session so the visitor can retry
		// the payment step without booking the same request twice.
		sess.AppointmentID = record.ID
		sess.AppointmentKey = requestKey(req)
		s.clearSubmitting(ctx, sess)
		return nil, err
	}
	res.AppointmentID = record.ID
	s.keep(ctx, sess, req)

	if err := s.handoffs.Put(ctx, visitor, outcome.StatusKey(record.ID), entry, s.handoffTTL); err != nil {
		s.logger.Warn("status handoff write failed", "appointment_id", record.ID, "error", err)
	}
	if err := s.sessions.Delete(ctx, visitor); err != nil {
		s.logger.Warn("session clear failed", "visitor", visitor, "error", err)
	}
	s.logger.Info("booking submitted",
		"calendar", sched.Slug, "appointment_id", record.ID, "method", method, "outcome", res.Outcome)
	return res, nil
}

// createOnce reuses the appointment of an earlier attempt whose payment
// step failed, as long as the request is the one that created it. Any
// edit since then books a new appointment carrying the new data.
func (s *Service) createOnce(ctx context.Context, sess *Session, slug string, req zyta.AppointmentRequest) (*zyta.AppointmentRecord, error) {
	if sess.AppointmentID != "" {
		if sess.AppointmentKey == requestKey(req) {
			return &zyta.AppointmentRecord{ID: sess.AppointmentID, PaymentMethod: req.PaymentMethod}, nil
		}
		s.logger.Info("booking request changed after failed payment",
			"calendar", slug, "previous_appointment_id", sess.AppointmentID)
	}
	return s.appointments.CreateAppointment(ctx, slug, req)
}

// requestKey fingerprints what an appointment request books.
func requestKey(req zyta.AppointmentRequest) string {
	data, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// finish writes the outcome page's handoff entry.
func (s *Service) finish(ctx context.Context, visitor, key string, entry outcome.Entry, kind outcome.Kind, redirect string) (*Result, error) {
	entry.Kind = kind
	if err := s.handoffs.Put(ctx, visitor, key, entry, s.handoffTTL); err != nil {
		return nil, err
	}
	return &Result{Outcome: kind, RedirectURL: redirect}, nil
}

// keep stops the uploads the appointment references from expiring with
// the session.
func (s *Service) keep(ctx context.Context, sess *Session, req zyta.AppointmentRequest) {
	for _, ref := range sess.uploads() {
		if ref.Key != req.AttachmentKey && ref.Key != req.TransferProofKey {
			continue
		}
		if err := s.files.Keep(ctx, ref); err != nil {
			s.logger.Warn("attachment keep failed", "key", ref.Key, "error", err)
		}
	}
}

func (s *Service) clearSubmitting(ctx context.Context, sess *Session) {
	sess.Submitting = false
	if err := s.save(context.WithoutCancel(ctx), sess); err != nil {
		s.logger.Warn("session save failed", "visitor", sess.ID, "error", err)
	}
}

func buildRequest(sess *Session, sched *schedule.CalendarSchedule, evaluation bool) (zyta.AppointmentRequest, error) {
	start, err := sess.StartTime(sched.Location())
	if err != nil {
		return zyta.AppointmentRequest{}, err
	}
	c := sess.trimmedContact()
	req := zyta.AppointmentRequest{
		Name:          c.Name,
		Email:         c.Email,
		Phone:         c.Phone,
		Notes:         c.Notes,
		StartTime:     start.Format(time.RFC3339),
		PaymentMethod: string(sess.Payment.Kind),
	}
	if len(c.Custom) > 0 {
		req.CustomFields = c.Custom
	}
	if sched.HasDurationChoice() {
		req.DurationMinutes = sess.Duration
	}
	if sess.Attachment != nil {
		req.AttachmentKey = sess.Attachment.Key
	}
	if sess.Payment.Proof != nil {
		req.TransferProofKey = sess.Payment.Proof.Key
	}
	if evaluation {
		req.RequiresEvaluation = true
		req.PaymentMethod = string(payments.KindCoordinar)
		req.TransferProofKey = ""
	}
	return req, nil
}

func preferenceTitle(opt *payments.MercadoPagoOption, sched *schedule.CalendarSchedule) string {
	if opt.Title != "" {
		return opt.Title
	}
	if sched.Name != "" {
		return "Reserva con " + sched.Name
	}
	return ""
}
