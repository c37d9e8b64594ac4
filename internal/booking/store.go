package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned by SessionStore.Get for unknown or expired
// sessions.
var ErrSessionNotFound = errors.New("booking: session not found")

// SessionStore persists booking sessions per visitor and guards submission.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, sess *Session) error
	Delete(ctx context.Context, id string) error
	// AcquireSubmit takes the submission guard for id. It returns false when
	// another submission holds it.
	AcquireSubmit(ctx context.Context, id string, ttl time.Duration) (bool, error)
	ReleaseSubmit(ctx context.Context, id string) error
}

// RedisSessionStore keeps sessions as JSON with a sliding TTL.
type RedisSessionStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisSessionStore{redis: client, ttl: ttl}
}

func (s *RedisSessionStore) key(id string) string {
	return fmt.Sprintf("zyta:widget:session:%s", id)
}

func (s *RedisSessionStore) lockKey(id string) string {
	return fmt.Sprintf("zyta:widget:submit:%s", id)
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("booking: get session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("booking: unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("booking: marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("booking: save session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("booking: delete session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) AcquireSubmit(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.lockKey(id), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("booking: acquire submit lock: %w", err)
	}
	return ok, nil
}

func (s *RedisSessionStore) ReleaseSubmit(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.lockKey(id)).Err(); err != nil {
		return fmt.Errorf("booking: release submit lock: %w", err)
	}
	return nil
}

// MemorySessionStore is a process-local SessionStore.
type MemorySessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]memorySession
	locks    map[string]time.Time
	now      func() time.Time
}

type memorySession struct {
	data    []byte
	expires time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &MemorySessionStore{
		ttl:      ttl,
		sessions: make(map[string]memorySession),
		locks:    make(map[string]time.Time),
		now:      time.Now,
	}
}

// Get returns a copy; callers mutate it and Save it back.
func (m *MemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	entry, ok := m.sessions[id]
	if ok && !m.now().Before(entry.expires) {
		delete(m.sessions, id)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	var sess Session
	if err := json.Unmarshal(entry.data, &sess); err != nil {
		return nil, fmt.Errorf("booking: unmarshal session: %w", err)
	}
	return &sess, nil
}

func (m *MemorySessionStore) Save(_ context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("booking: marshal session: %w", err)
	}
	m.mu.Lock()
	m.sessions[sess.ID] = memorySession{data: data, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemorySessionStore) AcquireSubmit(_ context.Context, id string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if until, held := m.locks[id]; held && now.Before(until) {
		return false, nil
	}
	m.locks[id] = now.Add(ttl)
	return true, nil
}

func (m *MemorySessionStore) ReleaseSubmit(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.locks, id)
	m.mu.Unlock()
	return nil
}
