// Package preferences keeps each visitor's display choices for the widget.
package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
)

// Preferences is the widget's display configuration.
type Preferences struct {
	Theme      string `json:"theme" validate:"oneof=light dark system"`
	Typography string `json:"typography" validate:"oneof=sans serif mono"`
}

// Default is what a visitor without saved choices sees.
func Default() Preferences {
	return Preferences{Theme: "light", Typography: "sans"}
}

var validate = validator.New()

// Validate returns field messages for unsupported values.
func (p Preferences) Validate() map[string]string {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.Field()] = fmt.Sprintf("must be one of: %s", fe.Param())
		}
	}
	return fields
}

// Patch changes the non-nil fields.
type Patch struct {
	Theme      *string `json:"theme"`
	Typography *string `json:"typography"`
}

// Apply returns p with the patch applied.
func (pt Patch) Apply(p Preferences) Preferences {
	if pt.Theme != nil {
		p.Theme = *pt.Theme
	}
	if pt.Typography != nil {
		p.Typography = *pt.Typography
	}
	return p
}

// ErrInvalid wraps rejected updates.
var ErrInvalid = errors.New("preferences: invalid value")

// Store is durable per-visitor storage. Update is the only writer: it reads,
// applies fn, validates, and writes atomically.
type Store interface {
	Get(ctx context.Context, visitor string) (Preferences, error)
	Update(ctx context.Context, visitor string, fn func(Preferences) Preferences) (Preferences, error)
}

func checked(p Preferences) error {
	if fields := p.Validate(); len(fields) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalid, fields)
	}
	return nil
}

// RedisStore keeps preferences for ttl after the visitor was last seen and
// serializes writers with WATCH/MULTI. A zero ttl never expires them.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: client, ttl: ttl}
}

func (s *RedisStore) key(visitor string) string {
	return fmt.Sprintf("zyta:widget:preferences:%s", visitor)
}

// Get reads the visitor's preferences and slides their expiry.
func (s *RedisStore) Get(ctx context.Context, visitor string) (Preferences, error) {
	if s.ttl <= 0 {
		return s.read(ctx, s.redis, s.key(visitor))
	}
	return s.read(ctx, refreshingGetter{client: s.redis, ttl: s.ttl}, s.key(visitor))
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// refreshingGetter reads with GETEX so every read renews the key's TTL.
type refreshingGetter struct {
	client *redis.Client
	ttl    time.Duration
}

func (g refreshingGetter) Get(ctx context.Context, key string) *redis.StringCmd {
	return g.client.GetEx(ctx, key, g.ttl)
}

func (s *RedisStore) read(ctx context.Context, c stringGetter, key string) (Preferences, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return Default(), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("preferences: get: %w", err)
	}
	p := Default()
	if err := json.Unmarshal(data, &p); err != nil {
		return Preferences{}, fmt.Errorf("preferences: unmarshal: %w", err)
	}
	return p, nil
}

func (s *RedisStore) Update(ctx context.Context, visitor string, fn func(Preferences) Preferences) (Preferences, error) {
	key := s.key(visitor)
	var out Preferences
	txf := func(tx *redis.Tx) error {
		current, err := s.read(ctx, tx, key)
		if err != nil {
			return err
		}
		next := fn(current)
		if err := checked(next); err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("preferences: marshal: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		out = next
		return err
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := s.redis.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return Preferences{}, err
		}
		return out, nil
	}
	return Preferences{}, fmt.Errorf("preferences: update %s: concurrent writers", visitor)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.Mutex
	prefs map[string]Preferences
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{prefs: make(map[string]Preferences)}
}

func (m *MemoryStore) Get(_ context.Context, visitor string) (Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.prefs[visitor]; ok {
		return p, nil
	}
	return Default(), nil
}

func (m *MemoryStore) Update(_ context.Context, visitor string, fn func(Preferences) Preferences) (Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.prefs[visitor]
	if !ok {
		current = Default()
	}
	next := fn(current)
	if err := checked(next); err != nil {
		return Preferences{}, err
	}
	m.prefs[visitor] = next
	return next, nil
}
