// Package outcome serves the pages a visitor lands on after submitting a
// booking and the one-shot handoff entries that feed them.
package outcome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/zyta-booking-widget/internal/payments"
)

// Kind is the terminal state a handoff describes.
type Kind string

const (
	KindSuccess        Kind = "success"
	KindPending        Kind = "pending"
	KindPendingPayment Kind = "pending-payment"
	KindUnderReview    Kind = "under-review"
)

// Handoff keys. One entry per key and visitor; reading consumes it.
const (
	KeyPayment    = "payment"
	KeyEvaluation = "evaluation"
)

// StatusKey is the handoff key that remembers which calendar an
// appointment belongs to for the status page.
func StatusKey(appointmentID string) string { return "status:" + appointmentID }

// ErrNoEntry is returned by Take when nothing is waiting under the key.
var ErrNoEntry = errors.New("outcome: no handoff entry")

// Entry is the summary a submission leaves for the page that follows it.
type Entry struct {
	Kind            Kind                     `json:"kind"`
	AppointmentID   string                   `json:"appointmentId"`
	CalendarSlug    string                   `json:"calendarSlug"`
	CalendarName    string                   `json:"calendarName,omitempty"`
	StartTime       time.Time                `json:"startTime"`
	DurationMinutes int                      `json:"durationMinutes,omitempty"`
	PaymentMethod   payments.Kind            `json:"paymentMethod,omitempty"`
	Name            string                   `json:"name,omitempty"`
	Email           string                   `json:"email,omitempty"`
	Transfer        *payments.TransferOption `json:"transfer,omitempty"`
	Amount          float64                  `json:"amount,omitempty"`
	Currency        string                   `json:"currency,omitempty"`
	PreferenceID    string                   `json:"preferenceId,omitempty"`
	CreatedAt       time.Time                `json:"createdAt"`
}

// HandoffStore passes one-shot entries from the wizard to outcome pages.
type HandoffStore interface {
	Put(ctx context.Context, visitor, key string, entry Entry, ttl time.Duration) error
	// Take returns and deletes the entry, so each is displayed at most once.
	Take(ctx context.Context, visitor, key string) (*Entry, error)
}

// RedisHandoffStore uses GETDEL so concurrent readers cannot both get it.
type RedisHandoffStore struct {
	redis *redis.Client
}

func NewRedisHandoffStore(client *redis.Client) *RedisHandoffStore {
	return &RedisHandoffStore{redis: client}
}

func (s *RedisHandoffStore) key(visitor, key string) string {
	return fmt.Sprintf("zyta:widget:handoff:%s:%s", visitor, key)
}

func (s *RedisHandoffStore) Put(ctx context.Context, visitor, key string, entry Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("outcome: marshal handoff: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(visitor, key), data, ttl).Err(); err != nil {
		return fmt.Errorf("outcome: put handoff: %w", err)
	}
	return nil
}

func (s *RedisHandoffStore) Take(ctx context.Context, visitor, key string) (*Entry, error) {
	data, err := s.redis.GetDel(ctx, s.key(visitor, key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNoEntry
	}
	if err != nil {
		return nil, fmt.Errorf("outcome: take handoff: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("outcome: unmarshal handoff: %w", err)
	}
	return &entry, nil
}

// MemoryHandoffStore is a process-local HandoffStore.
type MemoryHandoffStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	entry   Entry
	expires time.Time
}

func NewMemoryHandoffStore() *MemoryHandoffStore {
	return &MemoryHandoffStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryHandoffStore) Put(_ context.Context, visitor, key string, entry Entry, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[visitor+"\x00"+key] = memoryEntry{entry: entry, expires: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryHandoffStore) Take(_ context.Context, visitor, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := visitor + "\x00" + key
	e, ok := m.entries[k]
	delete(m.entries, k)
	if !ok || !m.now().Before(e.expires) {
		return nil, ErrNoEntry
	}
	return &e.entry, nil
}
