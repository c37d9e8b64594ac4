package booking

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/wolfman30/zyta-booking-widget/internal/attachments"
	"github.com/wolfman30/zyta-booking-widget/internal/outcome"
	"github.com/wolfman30/zyta-booking-widget/internal/payments"
	"github.com/wolfman30/zyta-booking-widget/internal/schedule"
	"github.com/wolfman30/zyta-booking-widget/internal/zyta"
	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

var (
	// Sunday before the bookable Monday.
	testNow    = time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)
	testMonday = "2026-11-09"
	pngBytes   = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
)

func quietLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, "error", "json")
}

func testSchedule() *schedule.CalendarSchedule {
	return &schedule.CalendarSchedule{
		Slug:        "abogado-demo",
		Name:        "Estudio Demo",
		Timezone:    "UTC",
		EnabledDays: []time.Weekday{time.Monday},
		Ranges: map[time.Weekday][]schedule.TimeRange{
			time.Monday: {{Start: 9 * 60, End: 12 * 60}},
		},
		SlotMinutes: 30,
		Payments: payments.Options{
			Cash:        &payments.CashOption{},
			Transfer:    &payments.TransferOption{Alias: "estudio.demo", CBU: "0000003100000000000001"},
			MercadoPago: &payments.MercadoPagoOption{Amount: 15000, Currency: "ARS"},
		},
		Form: schedule.FormConfig{
			Phone: schedule.FieldRule{Enabled: true},
		},
	}
}

type stubSchedules map[string]*schedule.CalendarSchedule

func (s stubSchedules) Get(_ context.Context, slug string) (*schedule.CalendarSchedule, error) {
	if sched, ok := s[slug]; ok {
		return sched, nil
	}
	return nil, schedule.ErrNotFound
}

type fakeAppointments struct {
	mu    sync.Mutex
	calls []zyta.AppointmentRequest
	err   error
}

func (f *fakeAppointments) CreateAppointment(_ context.Context, _ string, req zyta.AppointmentRequest) (*zyta.AppointmentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &zyta.AppointmentRecord{ID: fmt.Sprintf("apt-%d", len(f.calls)), PaymentMethod: req.PaymentMethod}, nil
}

func (f *fakeAppointments) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// flakySessions fails Save while saveErr is set.
type flakySessions struct {
	*MemorySessionStore
	saveErr error
}

func (f *flakySessions) Save(ctx context.Context, sess *Session) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemorySessionStore.Save(ctx, sess)
}

// keptFiles records which uploads were kept past the session.
type keptFiles struct {
	*attachments.MemoryStore
	mu   sync.Mutex
	kept []string
}

func (f *keptFiles) Keep(ctx context.Context, ref attachments.Ref) error {
	f.mu.Lock()
	f.kept = append(f.kept, ref.Key)
	f.mu.Unlock()
	return f.MemoryStore.Keep(ctx, ref)
}

type fakePreferences struct {
	calls []payments.PreferenceParams
	err   error
}

func (f *fakePreferences) Create(_ context.Context, params payments.PreferenceParams) (*payments.Preference, error) {
	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	return &payments.Preference{ID: "pref-1", RedirectURL: "https://mp.example/checkout/pref-1"}, nil
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []string
	submissions []string
	uploads     []string
}

func (r *recordingObserver) ObserveTransition(from, to string, allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := "denied"
	if allowed {
		state = "allowed"
	}
	r.transitions = append(r.transitions, from+">"+to+":"+state)
}

func (r *recordingObserver) ObserveSubmission(method, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions = append(r.submissions, method+":"+outcome)
}

func (r *recordingObserver) ObserveUpload(kind, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, kind+":"+status)
}

type harness struct {
	svc          *Service
	sessions     *flakySessions
	files        *keptFiles
	appointments *fakeAppointments
	preferences  *fakePreferences
	handoffs     *outcome.MemoryHandoffStore
	observer     *recordingObserver
}

func newHarness(scheds ...*schedule.CalendarSchedule) *harness {
	if len(scheds) == 0 {
		scheds = []*schedule.CalendarSchedule{testSchedule()}
	}
	getter := stubSchedules{}
	for _, s := range scheds {
		getter[s.Slug] = s
	}
	h := &harness{
		sessions:     &flakySessions{MemorySessionStore: NewMemorySessionStore(time.Hour)},
		files:        &keptFiles{MemoryStore: attachments.NewMemoryStore(attachments.Policy{MaxBytes: 1 << 20, Retention: time.Hour})},
		appointments: &fakeAppointments{},
		preferences:  &fakePreferences{},
		handoffs:     outcome.NewMemoryHandoffStore(),
		observer:     &recordingObserver{},
	}
	h.svc = NewService(Deps{
		Sessions:     h.sessions,
		Schedules:    getter,
		Files:        h.files,
		Appointments: h.appointments,
		Preferences:  h.preferences,
		Handoffs:     h.handoffs,
		Observer:     h.observer,
		Logger:       quietLogger(),
	})
	h.svc.now = func() time.Time { return testNow }
	return h
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
