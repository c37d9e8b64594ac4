package outcome

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/zyta-booking-widget/internal/payments"
	"github.com/wolfman30/zyta-booking-widget/internal/tenancy"
	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

func sampleEntry(kind Kind) Entry {
	return Entry{
		Kind:          kind,
		AppointmentID: "apt-1",
		CalendarSlug:  "abogado-demo",
		CalendarName:  "Estudio Demo",
		StartTime:     time.Date(2026, 11, 9, 10, 0, 0, 0, time.UTC),
		PaymentMethod: payments.KindCash,
		Name:          "Ana Pérez",
		Email:         "ana@example.com",
	}
}

func TestHandoffStores(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stores := map[string]HandoffStore{
		"memory": NewMemoryHandoffStore(),
		"redis":  NewRedisHandoffStore(client),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.Take(ctx, "v1", KeyPayment)
			assert.ErrorIs(t, err, ErrNoEntry)

			require.NoError(t, store.Put(ctx, "v1", KeyPayment, sampleEntry(KindSuccess), time.Hour))
			_, err = store.Take(ctx, "v2", KeyPayment)
			assert.ErrorIs(t, err, ErrNoEntry, "entries are per visitor")

			got, err := store.Take(ctx, "v1", KeyPayment)
			require.NoError(t, err)
			assert.Equal(t, KindSuccess, got.Kind)
			assert.Equal(t, "abogado-demo", got.CalendarSlug)
			assert.True(t, got.StartTime.Equal(sampleEntry(KindSuccess).StartTime))

			_, err = store.Take(ctx, "v1", KeyPayment)
			assert.ErrorIs(t, err, ErrNoEntry, "read at most once")
		})
	}
}

func TestHandoffTakeIsAtMostOnceUnderConcurrency(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisHandoffStore(client)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "v1", KeyEvaluation, sampleEntry(KindUnderReview), time.Hour))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		hits int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Take(ctx, "v1", KeyEvaluation); err == nil {
				mu.Lock()
				hits++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, hits)
}

func TestHandoffExpires(t *testing.T) {
	store := NewMemoryHandoffStore()
	now := time.Date(2026, 11, 9, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "v1", KeyPayment, sampleEntry(KindSuccess), time.Minute))

	now = now.Add(2 * time.Minute)
	_, err := store.Take(ctx, "v1", KeyPayment)
	assert.ErrorIs(t, err, ErrNoEntry)
}

type stubLookup struct {
	slug  string
	err   error
	calls int
}

func (s *stubLookup) LookupCalendarSlug(context.Context, string) (string, error) {
	s.calls++
	return s.slug, s.err
}

func newPagesRouter(p *Pages) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(tenancy.WithSessionID(req.Context(), "v1")))
		})
	})
	r.Get("/", p.Landing)
	r.Get("/payment/success", p.PaymentSuccess)
	r.Get("/payment/pending", p.PaymentPending)
	r.Get("/payment/failure", p.PaymentFailure)
	r.Get("/case-under-review", p.CaseUnderReview)
	r.Get("/zyta/{id}/estado", p.AppointmentStatus)
	return r
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func quietLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, "error", "json")
}

func TestLandingRedirect(t *testing.T) {
	router := newPagesRouter(NewPages(NewMemoryHandoffStore(), nil, "https://zyta.example", quietLogger()))
	rec := get(router, "/")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://zyta.example", rec.Header().Get("Location"))
}

func TestSuccessPageShowsSummaryOnce(t *testing.T) {
	store := NewMemoryHandoffStore()
	require.NoError(t, store.Put(context.Background(), "v1", KeyPayment, sampleEntry(KindSuccess), time.Hour))
	router := newPagesRouter(NewPages(store, nil, "https://zyta.example", quietLogger()))

	rec := get(router, "/payment/success")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Estudio Demo")
	assert.Contains(t, body, "lunes 9 de noviembre, 10:00 AM")
	assert.Contains(t, body, "Efectivo")
	assert.Contains(t, body, "apt-1")

	rec = get(router, "/payment/success")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Estudio Demo", "second visit renders without the summary")
}

func TestPendingPageShowsTransferDetails(t *testing.T) {
	store := NewMemoryHandoffStore()
	entry := sampleEntry(KindPending)
	entry.PaymentMethod = payments.KindTransfer
	entry.Transfer = &payments.TransferOption{Alias: "estudio.demo", CBU: "0000003100000000000001"}
	require.NoError(t, store.Put(context.Background(), "v1", KeyPayment, entry, time.Hour))
	router := newPagesRouter(NewPages(store, nil, "https://zyta.example", quietLogger()))

	body := get(router, "/payment/pending").Body.String()
	assert.Contains(t, body, "estudio.demo")
	assert.Contains(t, body, "0000003100000000000001")
	assert.Contains(t, body, "Transferencia")
}

func TestFailurePageLinksBackToCalendar(t *testing.T) {
	store := NewMemoryHandoffStore()
	require.NoError(t, store.Put(context.Background(), "v1", KeyPayment, sampleEntry(KindPendingPayment), time.Hour))
	router := newPagesRouter(NewPages(store, nil, "https://zyta.example", quietLogger()))

	body := get(router, "/payment/failure").Body.String()
	assert.Contains(t, body, `href="/abogado-demo"`)
}

func TestCaseUnderReviewPage(t *testing.T) {
	store := NewMemoryHandoffStore()
	entry := sampleEntry(KindUnderReview)
	entry.PaymentMethod = ""
	require.NoError(t, store.Put(context.Background(), "v1", KeyEvaluation, entry, time.Hour))
	router := newPagesRouter(NewPages(store, nil, "https://zyta.example", quietLogger()))

	rec := get(router, "/case-under-review")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ana Pérez")
	assert.NotContains(t, rec.Body.String(), "<dt>Pago</dt>")
}

func TestAppointmentStatusResolution(t *testing.T) {
	t.Run("query parameter", func(t *testing.T) {
		lookup := &stubLookup{}
		router := newPagesRouter(NewPages(NewMemoryHandoffStore(), lookup, "https://zyta.example", quietLogger()))
		rec := get(router, "/zyta/apt-9/estado?calendar=abogado-demo&collection_status=approved")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `href="/abogado-demo"`)
		assert.Contains(t, rec.Body.String(), "Pago aprobado")
		assert.Zero(t, lookup.calls)
	})

	t.Run("handoff entry", func(t *testing.T) {
		store := NewMemoryHandoffStore()
		require.NoError(t, store.Put(context.Background(), "v1", StatusKey("apt-1"), sampleEntry(KindSuccess), time.Hour))
		lookup := &stubLookup{}
		router := newPagesRouter(NewPages(store, lookup, "https://zyta.example", quietLogger()))
		rec := get(router, "/zyta/apt-1/estado")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `href="/abogado-demo"`)
		assert.Zero(t, lookup.calls)
	})

	t.Run("backend lookup", func(t *testing.T) {
		lookup := &stubLookup{slug: "psicologa-demo"}
		router := newPagesRouter(NewPages(NewMemoryHandoffStore(), lookup, "https://zyta.example", quietLogger()))
		rec := get(router, "/zyta/apt-2/estado")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `href="/psicologa-demo"`)
		assert.Equal(t, 1, lookup.calls)
	})

	t.Run("lookup failure redirects to landing", func(t *testing.T) {
		lookup := &stubLookup{err: errors.New("boom")}
		router := newPagesRouter(NewPages(NewMemoryHandoffStore(), lookup, "https://zyta.example", quietLogger()))
		rec := get(router, "/zyta/apt-3/estado")
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://zyta.example", rec.Header().Get("Location"))
	})
}
