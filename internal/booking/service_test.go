package booking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/zyta-booking-widget/internal/attachments"
	"github.com/wolfman30/zyta-booking-widget/internal/outcome"
	"github.com/wolfman30/zyta-booking-widget/internal/payments"
	"github.com/wolfman30/zyta-booking-widget/internal/schedule"
	"github.com/wolfman30/zyta-booking-widget/internal/zyta"
)

const visitor = "visitor-1"

// toContact opens the demo calendar and picks Monday 10:00.
func (h *harness) toContact(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := h.svc.Open(ctx, visitor, "abogado-demo")
	require.NoError(t, err)
	_, err = h.svc.SelectSchedule(ctx, visitor, ScheduleInput{Date: strPtr(testMonday), Hour: intPtr(10), Minute: intPtr(0)})
	require.NoError(t, err)
	view, err := h.svc.Continue(ctx, visitor)
	require.NoError(t, err)
	require.Equal(t, StepContact, view.Session.Step)
}

// toNext fills valid contact data and continues past the contact step.
func (h *harness) toNext(t *testing.T) *View {
	t.Helper()
	h.toContact(t)
	ctx := context.Background()
	_, err := h.svc.UpdateContact(ctx, visitor, ContactInput{Name: strPtr(" Ana Pérez "), Email: strPtr("ana@example.com")})
	require.NoError(t, err)
	view, err := h.svc.Continue(ctx, visitor)
	require.NoError(t, err)
	return view
}

func TestOpenCreatesSessionOnScheduleStep(t *testing.T) {
	h := newHarness()
	view, err := h.svc.Open(context.Background(), visitor, "abogado-demo")
	require.NoError(t, err)

	assert.Equal(t, StepSchedule, view.Session.Step)
	assert.Equal(t, "schedule", view.StepName)
	assert.False(t, view.ContinueEnabled)
	assert.False(t, view.CanGoBack)
	assert.Equal(t, []payments.Kind{payments.KindMercadoPago, payments.KindTransfer, payments.KindCash}, view.PaymentMethods)
}

func TestOpenUnknownCalendar(t *testing.T) {
	h := newHarness()
	_, err := h.svc.Open(context.Background(), visitor, "nadie")
	assert.ErrorIs(t, err, schedule.ErrNotFound)
}

func TestOpenAnotherCalendarStartsOver(t *testing.T) {
	other := testSchedule()
	other.Slug = "psicologa-demo"
	h := newHarness(testSchedule(), other)
	h.toContact(t)

	view, err := h.svc.Open(context.Background(), visitor, "psicologa-demo")
	require.NoError(t, err)
	assert.Equal(t, StepSchedule, view.Session.Step)
	assert.Equal(t, "psicologa-demo", view.Session.CalendarSlug)
	assert.Empty(t, view.Session.Date)
}

func TestOpenSameCalendarKeepsProgress(t *testing.T) {
	h := newHarness()
	h.toContact(t)

	view, err := h.svc.Open(context.Background(), visitor, "abogado-demo")
	require.NoError(t, err)
	assert.Equal(t, StepContact, view.Session.Step)
	assert.Equal(t, testMonday, view.Session.Date)
}

func TestSelectScheduleComputesSlots(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.svc.Open(ctx, visitor, "abogado-demo")
	require.NoError(t, err)

	view, err := h.svc.SelectSchedule(ctx, visitor, ScheduleInput{Date: strPtr(testMonday)})
	require.NoError(t, err)
	require.Len(t, view.Slots, 6)
	assert.Equal(t, "9:00 AM", view.Slots[0].Label)
	assert.False(t, view.ContinueEnabled, "no slot yet")

	view, err = h.svc.SelectSchedule(ctx, visitor, ScheduleInput{Hour: intPtr(9), Minute: intPtr(30)})
	require.NoError(t, err)
	assert.True(t, view.ContinueEnabled)
}

func TestSelectScheduleRejectsDisabledDateAndSlot(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.svc.Open(ctx, visitor, "abogado-demo")
	require.NoError(t, err)

	_, err = h.svc.SelectSchedule(ctx, visitor, ScheduleInput{Date: strPtr("2026-11-10")})
	assert.ErrorIs(t, err, ErrSlotUnavailable, "tuesday is not enabled")

	_, err = h.svc.SelectSchedule(ctx, visitor, ScheduleInput{Date: strPtr("09/11/2026")})
	assert.ErrorIs(t, err, ErrScheduleIncomplete)

	_, err = h.svc.SelectSchedule(ctx, visitor, ScheduleInput{Date: strPtr(testMonday), Hour: intPtr(12), Minute: intPtr(0)})
	assert.ErrorIs(t, err, ErrSlotUnavailable, "12:00 is past the range")

	sess, err := h.sessions.Get(ctx, visitor)
	require.NoError(t, err)
	assert.Empty(t, sess.Date, "failed edits are not saved")
}

func TestChangingDateDropsSlot(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.svc.Open(ctx, visitor, "abogado-demo")
	require.NoError(t, err)
	_, err = h.svc.SelectSchedule(ctx, visitor, ScheduleInput{Date: strPtr(testMonday), Hour: intPtr(10), Minute: intPtr(0)})
	require.NoError(t, err)

	view, err := h.svc.SelectSchedule(ctx, visitor, ScheduleInput{Date: strPtr("2026-11-16")})
	require.NoError(t, err)
	assert.Nil(t, view.Session.Slot)
	assert.False(t, view.ContinueEnabled)
}

func TestContinueDeniedRecordsErrorsUntilCorrected(t *testing.T) {
	h := newHarness()
	h.toContact(t)
	ctx := context.Background()

	_, err := h.svc.UpdateContact(ctx, visitor, ContactInput{Name: strPtr("Ana"), Email: strPtr("ana@")})
	require.NoError(t, err)

	view, err := h.svc.Continue(ctx, visitor)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, FieldEmail)
	assert.Equal(t, StepContact, view.Session.Step)
	assert.Contains(t, view.Session.Errors, FieldEmail)
	assert.False(t, view.ContinueEnabled)

	view, err = h.svc.UpdateContact(ctx, visitor, ContactInput{Email: strPtr("ana@example.com")})
	require.NoError(t, err)
	assert.NotContains(t, view.Session.Errors, FieldEmail, "editing clears the field error")
	assert.True(t, view.ContinueEnabled)

	view, err = h.svc.Continue(ctx, visitor)
	require.NoError(t, err)
	assert.Equal(t, StepPayment, view.Session.Step)
	assert.Contains(t, h.observer.transitions, "contact>contact:denied")
	assert.Contains(t, h.observer.transitions, "contact>payment:allowed")
}

func TestUpdateContactRejectsDisabledField(t *testing.T) {
	h := newHarness()
	h.toContact(t)

	_, err := h.svc.UpdateContact(context.Background(), visitor, ContactInput{Notes: strPtr("hola")})
	assert.ErrorIs(t, err, ErrFieldDisabled)

	_, err = h.svc.UpdateContact(context.Background(), visitor, ContactInput{Custom: map[string]string{"dni": "1"}})
	assert.ErrorIs(t, err, ErrFieldDisabled)
}

func TestBackKeepsEnteredData(t *testing.T) {
	h := newHarness()
	h.toNext(t)

	view, err := h.svc.Back(context.Background(), visitor)
	require.NoError(t, err)
	assert.Equal(t, StepContact, view.Session.Step)
	assert.Equal(t, " Ana Pérez ", view.Session.Contact.Name)

	view, err = h.svc.Back(context.Background(), visitor)
	require.NoError(t, err)
	assert.Equal(t, StepSchedule, view.Session.Step)
	assert.Equal(t, testMonday, view.Session.Date)
	require.NotNil(t, view.Session.Slot)

	_, err = h.svc.Back(context.Background(), visitor)
	assert.ErrorIs(t, err, ErrTransitionDenied)
}

func TestConfirmCashNeverRequestsPreference(t *testing.T) {
	h := newHarness()
	h.toNext(t)
	ctx := context.Background()

	view, err := h.svc.SelectPayment(ctx, visitor, payments.KindCash)
	require.NoError(t, err)
	assert.True(t, view.ContinueEnabled)

	res, err := h.svc.Confirm(ctx, visitor)
	require.NoError(t, err)
	assert.Equal(t, outcome.KindSuccess, res.Outcome)
	assert.Equal(t, "/payment/success", res.RedirectURL)
	assert.Equal(t, "apt-1", res.AppointmentID)
	assert.Empty(t, h.preferences.calls)

	require.Equal(t, 1, h.appointments.count())
	req := h.appointments.calls[0]
	assert.Equal(t, "Ana Pérez", req.Name)
	assert.Equal(t, "ana@example.com", req.Email)
	assert.Equal(t, "2026-11-09T10:00:00Z", req.StartTime)
	assert.Equal(t, "cash", req.PaymentMethod)
	assert.Zero(t, req.DurationMinutes, "no duration choice on this calendar")
	assert.False(t, req.RequiresEvaluation)

	_, err = h.sessions.Get(ctx, visitor)
	assert.ErrorIs(t, err, ErrSessionNotFound, "submission clears the session")

	entry, err := h.handoffs.Take(ctx, visitor, outcome.KeyPayment)
	require.NoError(t, err)
	assert.Equal(t, outcome.KindSuccess, entry.Kind)
	assert.Equal(t, "abogado-demo", entry.CalendarSlug)
	assert.Equal(t, payments.KindCash, entry.PaymentMethod)

	status, err := h.handoffs.Take(ctx, visitor, outcome.StatusKey("apt-1"))
	require.NoError(t, err)
	assert.Equal(t, "abogado-demo", status.CalendarSlug)

	assert.Equal(t, []string{"cash:success"}, h.observer.submissions)
}

func TestConfirmMercadoPagoRedirectsToProvider(t *testing.T) {
	h := newHarness()
	h.toNext(t)
	ctx := context.Background()

	_, err := h.svc.SelectPayment(ctx, visitor, payments.KindMercadoPago)
	require.NoError(t, err)
	res, err := h.svc.Confirm(ctx, visitor)
	require.NoError(t, err)

	assert.Equal(t, outcome.KindPendingPayment, res.Outcome)
	assert.Equal(t, "https://mp.example/checkout/pref-1", res.RedirectURL)
	require.Len(t, h.preferences.calls, 1)
	params := h.preferences.calls[0]
	assert.Equal(t, "apt-1", params.AppointmentID)
	assert.Equal(t, 15000.0, params.Amount)
	assert.Equal(t, "Reserva con Estudio Demo", params.Title)

	entry, err := h.handoffs.Take(ctx, visitor, outcome.KeyPayment)
	require.NoError(t, err)
	assert.Equal(t, "pref-1", entry.PreferenceID)
}

func TestConfirmPreferenceFailureKeepsAppointmentForRetry(t *testing.T) {
	h := newHarness()
	h.toNext(t)
	ctx := context.Background()
	h.preferences.err = payments.ErrMissingRedirectURL

	_, err := h.svc.SelectPayment(ctx, visitor, payments.KindMercadoPago)
	require.NoError(t, err)
	_, err = h.svc.Confirm(ctx, visitor)
	require.ErrorIs(t, err, payments.ErrMissingRedirectURL)

	view, err := h.svc.Current(ctx, visitor)
	require.NoError(t, err)
	assert.Equal(t, StepPayment, view.Session.Step)
	assert.False(t, view.Session.Submitting)
	assert.True(t, view.ContinueEnabled)
	assert.Equal(t, "apt-1", view.Session.AppointmentID)
	assert.NotEmpty(t, view.Session.AppointmentKey)

	h.preferences.err = nil
	res, err := h.svc.Confirm(ctx, visitor)
	require.NoError(t, err)
	assert.Equal(t, "apt-1", res.AppointmentID)
	assert.Equal(t, 1, h.appointments.count(), "an unchanged retry reuses the appointment")
	require.Len(t, h.preferences.calls, 2)
	assert.Equal(t, "apt-1", h.preferences.calls[1].AppointmentID)
	assert.Equal(t, []string{"mercadopago:error", "mercadopago:pending-payment"}, h.observer.submissions)
}

func TestConfirmAfterFailedPaymentBooksEditedRequest(t *testing.T) {
	h := newHarness()
	h.toNext(t)
	ctx := context.Background()
	h.preferences.err = payments.ErrMissingRedirectURL

	_, err := h.svc.SelectPayment(ctx, visitor, payments.KindMercadoPago)
	require.NoError(t, err)
	_, err = h.svc.Confirm(ctx, visitor)
	require.ErrorIs(t, err, payments.ErrMissingRedirectURL)

	_, err = h.svc.Back(ctx, visitor)
	require.NoError(t, err)
	_, err = h.svc.UpdateContact(ctx, visitor, ContactInput{Email: strPtr("nueva@example.com")})
	require.NoError(t, err)
	_, err = h.svc.Continue(ctx, visitor)
	require.NoError(t, err)
	_, err = h.svc.SelectPayment(ctx, visitor, payments.KindCash)
	require.NoError(t, err)

	res, err := h.svc.Confirm(ctx, visitor)
	require.NoError(t, err)
	assert.Equal(t, "apt-2", res.AppointmentID)
	require.Equal(t, 2, h.appointments.count())
	req := h.appointments.calls[1]
	assert.Equal(t, "nueva@example.com", req.Email)
	assert.Equal(t, "cash", req.PaymentMethod)

	entry, err := h.handoffs.Take(ctx, visitor, outcome.KeyPayment)
	require.NoError(t, err)
	assert.Equal(t, "apt-2", entry.AppointmentID)
	assert.Equal(t, "nueva@example.com", entry.Email)
	assert.Equal(t, payments.KindCash, entry.PaymentMethod)
}

func TestRequestKeyTracksBookedFields(t *testing.T) {
	base := zyta.AppointmentRequest{Name: "Ana", Email: "ana@example.com", StartTime: "2026-11-09T10:00:00Z", PaymentMethod: "mercadopago"}
	assert.Equal(t, requestKey(base), requestKey(base))

	for name, edit := range map[string]func(*zyta.AppointmentRequest){
		"email":    func(r *zyta.AppointmentRequest) { r.Email = "otra@example.com" },
		"duration": func(r *zyta.AppointmentRequest) { r.DurationMinutes = 60 },
		"method":   func(r *zyta.AppointmentRequest) { r.PaymentMethod = "cash" },
		"custom":   func(r *zyta.AppointmentRequest) { r.CustomFields = map[string]string{"expediente": "123"} },
		"proof":    func(r *zyta.AppointmentRequest) { r.TransferProofKey = "widget/x.png" },
	} {
		changed := base
		edit(&changed)
		assert.NotEqual(t, requestKey(base), requestKey(changed), name)
	}
}

func TestConfirmBackendErrorLeavesSessionOnPaymentStep(t *testing.T) {
	h := newHarness()
	h.toNext(t)
	ctx := context.Background()
	h.appointments.err = &zyta.APIError{Status: 409, Message: "El horario ya fue reservado"}

	_, err := h.svc.SelectPayment(ctx, visitor, payments.KindCash)
	require.NoError(t, err)
	_, err = h.svc.Confirm(ctx, visitor)
	var apiErr *zyta.APIError
	require.ErrorAs(t, err, &apiErr)

	view, err := h.svc.Current(ctx, visitor)
	require.NoError(t, err)
	assert.Equal(t, StepPayment, view.Session.Step)
	assert.False(t, view.Session.Submitting)
	assert.Empty(t, view.Session.AppointmentID)
}

func TestTransferRequiresProof(t *testing.T) {
	h := newHarness()
	h.toNext(t)
	ctx := context.Background()

	view, err := h.svc.SelectPayment(ctx, visitor, payments.KindTransfer)
	require.NoError(t, err)
	assert.False(t, view.ContinueEnabled, "transfer without proof is never confirmable")

	_, err = h.svc.Confirm(ctx, visitor)
	assert.ErrorIs(t, err, ErrConfirmDisabled)
	assert.Zero(t, h.appointments.count())

	view, err = h.svc.Upload(ctx, visitor, attachments.KindTransferProof, "comprobante.png", pngBytes)
	require.NoError(t, err)
	require.NotNil(t, view.Session.Payment.Proof)
	assert.True(t, view.ContinueEnabled)

	res, err := h.svc.Confirm(ctx, visitor)
	require.NoError(t, err)
	assert.Equal(t, outcome.KindPending, res.Outcome)
	assert.Equal(t, "/payment/pending", res.RedirectURL)
	proofKey := h.appointments.calls[0].TransferProofKey
	assert.NotEmpty(t, proofKey)
	assert.Equal(t, []string{proofKey}, h.files.kept, "the booked proof outlives the session")

	entry, err := h.handoffs.Take(ctx, visitor, outcome.KeyPayment)
	require.NoError(t, err)
	require.NotNil(t, entry.Transfer)
	assert.Equal(t, "estudio.demo", entry.Transfer.Alias)
}

func TestSwitchingAwayFromTransferReleasesProof(t *testing.T) {
	h := newHarness()
	h.toNext(t)
	ctx := context.Background()

	_, err := h.svc.SelectPayment(ctx, visitor, payments.KindTransfer)
	require.NoError(t, err)
	_, err = h.svc.Upload(ctx, visitor, attachments.KindTransferProof, "a.png", pngBytes)
	require.NoError(t, err)
	_, err = h.svc.Upload(ctx, visitor, attachments.KindTransferProof, "b.png", pngBytes)
	require.NoError(t, err)
	assert.Equal(t, 1, h.files.Len(), "replaced proof is released")

	view, err := h.svc.SelectPayment(ctx, visitor, payments.KindCash)
	require.NoError(t, err)
	assert.Nil(t, view.Session.Payment.Proof)
	assert.Zero(t, h.files.Len())
}

func TestFailedSaveKeepsPreviousUpload(t *testing.T) {
	h := newHarness()
	h.toNext(t)
	ctx := context.Background()

	_, err := h.svc.SelectPayment(ctx, visitor, payments.KindTransfer)
	require.NoError(t, err)
	view, err := h.svc.Upload(ctx, visitor, attachments.KindTransferProof, "a.png", pngBytes)
	require.NoError(t, err)
	first := *view.Session.Payment.Proof

	h.sessions.saveErr = errors.New("redis down")
	_, err = h.svc.Upload(ctx, visitor, attachments.KindTransferProof, "b.png", pngBytes)
	require.Error(t, err)
	_, err = h.svc.SelectPayment(ctx, visitor, payments.KindCash)
	require.Error(t, err)
	h.sessions.saveErr = nil

	assert.Equal(t, 1, h.files.Len(), "the rejected upload is released, the stored one kept")
	rc, ref, err := h.svc.OpenUpload(ctx, visitor, attachments.KindTransferProof)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, first.Key, ref.Key)
}

func TestUploadRejectsNonImageProofAndWrongStep(t *testing.T) {
	h := newHarness()
	h.toNext(t)
	ctx := context.Background()

	_, err := h.svc.Upload(ctx, visitor, attachments.KindTransferProof, "nota.txt", []byte("hola"))
	assert.ErrorIs(t, err, attachments.ErrUnsupported)

	_, err = h.svc.Upload(ctx, visitor, attachments.KindCaseFile, "caso.png", pngBytes)
	assert.ErrorIs(t, err, ErrWrongStep)
	assert.Equal(t, []string{"transfer-proof:rejected", "attachment:rejected"}, h.observer.uploads)
}

func TestRequiredAttachmentGatesContact(t *testing.T) {
	sched := testSchedule()
	sched.Form.Attachment = schedule.FieldRule{Enabled: true, Required: true}
	h := newHarness(sched)
	h.toContact(t)
	ctx := context.Background()

	_, err := h.svc.UpdateContact(ctx, visitor, ContactInput{Name: strPtr("Ana"), Email: strPtr("ana@example.com")})
	require.NoError(t, err)
	view, err := h.svc.Continue(ctx, visitor)
	require.ErrorIs(t, err, ErrInvalidContact)
	assert.Contains(t, view.Session.Errors, "attachment")

	view, err = h.svc.Upload(ctx, visitor, attachments.KindCaseFile, "caso.png", pngBytes)
	require.NoError(t, err)
	assert.NotContains(t, view.Session.Errors, "attachment")
	assert.True(t, view.ContinueEnabled)

	rc, ref, err := h.svc.OpenUpload(ctx, visitor, attachments.KindCaseFile)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "image/png", ref.ContentType)
}

func TestEvaluationFlow(t *testing.T) {
	sched := testSchedule()
	sched.RequiresEvaluation = true
	h := newHarness(sched)
	view := h.toNext(t)
	ctx := context.Background()

	assert.Equal(t, StepReview, view.Session.Step, "evaluation skips the payment step")
	assert.True(t, view.ContinueEnabled)

	_, err := h.svc.Confirm(ctx, visitor)
	assert.ErrorIs(t, err, ErrWrongStep)

	res, err := h.svc.SubmitForEvaluation(ctx, visitor)
	require.NoError(t, err)
	assert.Equal(t, outcome.KindUnderReview, res.Outcome)
	assert.Equal(t, "/case-under-review", res.RedirectURL)

	req := h.appointments.calls[0]
	assert.True(t, req.RequiresEvaluation)
	assert.Equal(t, "coordinar", req.PaymentMethod)
	assert.Empty(t, h.preferences.calls)

	entry, err := h.handoffs.Take(ctx, visitor, outcome.KeyEvaluation)
	require.NoError(t, err)
	assert.Equal(t, outcome.KindUnderReview, entry.Kind)
	assert.Equal(t, []string{"evaluation:under-review"}, h.observer.submissions)
}

func TestConfirmWhileSubmissionInFlight(t *testing.T) {
	h := newHarness()
	h.toNext(t)
	ctx := context.Background()
	_, err := h.svc.SelectPayment(ctx, visitor, payments.KindCash)
	require.NoError(t, err)

	held, err := h.sessions.AcquireSubmit(ctx, visitor, h.svc.submitTTL)
	require.NoError(t, err)
	require.True(t, held)

	_, err = h.svc.Confirm(ctx, visitor)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	_, err = h.svc.Reset(ctx, visitor)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	_, err = h.svc.SelectPayment(ctx, visitor, payments.KindMercadoPago)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	_, err = h.svc.Back(ctx, visitor)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	_, err = h.svc.Continue(ctx, visitor)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.Zero(t, h.appointments.count())

	view, err := h.svc.Open(ctx, visitor, "abogado-demo")
	require.NoError(t, err, "a page load during submission shows the session")
	assert.Equal(t, StepPayment, view.Session.Step)
	assert.Equal(t, payments.KindCash, view.Session.Payment.Kind)

	require.NoError(t, h.sessions.ReleaseSubmit(ctx, visitor))
	_, err = h.svc.Confirm(ctx, visitor)
	require.NoError(t, err)
}

func TestEditsRefusedWhileSubmittingFlagSet(t *testing.T) {
	h := newHarness()
	h.toNext(t)
	ctx := context.Background()
	_, err := h.svc.SelectPayment(ctx, visitor, payments.KindCash)
	require.NoError(t, err)

	sess, err := h.sessions.Get(ctx, visitor)
	require.NoError(t, err)
	sess.Submitting = true
	require.NoError(t, h.sessions.Save(ctx, sess))

	_, err = h.svc.SelectPayment(ctx, visitor, payments.KindMercadoPago)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	_, err = h.svc.Back(ctx, visitor)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	stored, err := h.sessions.Get(ctx, visitor)
	require.NoError(t, err)
	assert.Equal(t, payments.KindCash, stored.Payment.Kind)
	assert.Equal(t, StepPayment, stored.Step)

	view, err := h.svc.Open(ctx, visitor, "abogado-demo")
	require.NoError(t, err)
	assert.False(t, view.Session.Submitting, "a page load clears an abandoned submission")
	_, err = h.svc.SelectPayment(ctx, visitor, payments.KindMercadoPago)
	require.NoError(t, err)
}

func TestEditDuringConfirmCannotRecreateSession(t *testing.T) {
	h := newHarness()
	h.toNext(t)
	ctx := context.Background()
	_, err := h.svc.SelectPayment(ctx, visitor, payments.KindCash)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = h.svc.Confirm(ctx, visitor)
		}()
		go func() {
			defer wg.Done()
			_, _ = h.svc.SelectPayment(ctx, visitor, payments.KindCash)
		}()
	}
	wg.Wait()
	if h.appointments.count() == 0 {
		// Every confirm met an edit holding the guard.
		_, err = h.svc.Confirm(ctx, visitor)
		require.NoError(t, err)
	}

	require.Equal(t, 1, h.appointments.count())
	_, err = h.sessions.Get(ctx, visitor)
	assert.ErrorIs(t, err, ErrSessionNotFound, "no edit lands after the booking clears the session")
}

func TestConcurrentConfirmBooksOnce(t *testing.T) {
	h := newHarness()
	h.toNext(t)
	ctx := context.Background()
	_, err := h.svc.SelectPayment(ctx, visitor, payments.KindCash)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.Confirm(ctx, visitor)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrSubmissionInFlight), errors.Is(err, ErrSessionNotFound):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, h.appointments.count())
}

func TestResetReleasesUploads(t *testing.T) {
	sched := testSchedule()
	sched.Form.Attachment = schedule.FieldRule{Enabled: true}
	h := newHarness(sched)
	h.toContact(t)
	ctx := context.Background()

	_, err := h.svc.Upload(ctx, visitor, attachments.KindCaseFile, "caso.png", pngBytes)
	require.NoError(t, err)
	require.Equal(t, 1, h.files.Len())

	view, err := h.svc.Reset(ctx, visitor)
	require.NoError(t, err)
	assert.Equal(t, StepSchedule, view.Session.Step)
	assert.Empty(t, view.Session.Date)
	assert.Nil(t, view.Session.Attachment)
	assert.Zero(t, h.files.Len())

	held, err := h.sessions.AcquireSubmit(ctx, visitor, h.svc.submitTTL)
	require.NoError(t, err)
	assert.True(t, held, "reset releases the submit guard")
}
