package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores flattened schedules by slug.
type Cache interface {
	Get(ctx context.Context, slug string) (*CalendarSchedule, bool, error)
	Set(ctx context.Context, slug string, sched *CalendarSchedule, ttl time.Duration) error
}

type memoryEntry struct {
	sched   *CalendarSchedule
	expires time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, slug string) (*CalendarSchedule, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[slug]
	c.mu.RUnlock()
	if !ok || !c.now().Before(entry.expires) {
		return nil, false, nil
	}
	return entry.sched, true, nil
}

func (c *MemoryCache) Set(_ context.Context, slug string, sched *CalendarSchedule, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[slug] = memoryEntry{sched: sched, expires: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// RedisCache shares schedules between replicas.
type RedisCache struct {
	redis *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{redis: client}
}

func (c *RedisCache) key(slug string) string {
	return fmt.Sprintf("zyta:schedule:%s", slug)
}

func (c *RedisCache) Get(ctx context.Context, slug string) (*CalendarSchedule, bool, error) {
	data, err := c.redis.Get(ctx, c.key(slug)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("schedule: cache get: %w", err)
	}
	var sched CalendarSchedule
	if err := json.Unmarshal(data, &sched); err != nil {
		return nil, false, fmt.Errorf("schedule: cache unmarshal: %w", err)
	}
	return &sched, true, nil
}

func (c *RedisCache) Set(ctx context.Context, slug string, sched *CalendarSchedule, ttl time.Duration) error {
	data, err := json.Marshal(sched)
	if err != nil {
		return fmt.Errorf("schedule: cache marshal: %w", err)
	}
	if err := c.redis.Set(ctx, c.key(slug), data, ttl).Err(); err != nil {
		return fmt.Errorf("schedule: cache set: %w", err)
	}
	return nil
}
