package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/zyta-booking-widget/internal/booking"
	appconfig "github.com/wolfman30/zyta-booking-widget/internal/config"
	"github.com/wolfman30/zyta-booking-widget/internal/outcome"
	"github.com/wolfman30/zyta-booking-widget/internal/preferences"
	"github.com/wolfman30/zyta-booking-widget/internal/schedule"
	"github.com/wolfman30/zyta-booking-widget/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// Stores groups the per-visitor state the widget keeps between requests.
type Stores struct {
	Sessions      booking.SessionStore
	Handoffs      outcome.HandoffStore
	Preferences   preferences.Store
	ScheduleCache schedule.Cache
	Backend       string
}

// BuildStores backs every store with Redis when a client is given and with
// process memory otherwise. Memory stores do not survive restarts and are
// not shared between replicas.
func BuildStores(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) Stores {
	if logger == nil {
		logger = logging.Default()
	}
	var sessionTTL, visitorTTL time.Duration
	if cfg != nil {
		sessionTTL = cfg.SessionTTL
		visitorTTL = cfg.VisitorTTL
	}
	if redisClient == nil {
		if cfg != nil && cfg.IsProduction() {
			logger.Warn("redis disabled in production; widget sessions are kept in memory")
		}
		return Stores{
			Sessions:      booking.NewMemorySessionStore(sessionTTL),
			Handoffs:      outcome.NewMemoryHandoffStore(),
			Preferences:   preferences.NewMemoryStore(),
			ScheduleCache: schedule.NewMemoryCache(),
			Backend:       "memory",
		}
	}
	return Stores{
		Sessions:      booking.NewRedisSessionStore(redisClient, sessionTTL),
		Handoffs:      outcome.NewRedisHandoffStore(redisClient),
		Preferences:   preferences.NewRedisStore(redisClient, visitorTTL),
		ScheduleCache: schedule.NewRedisCache(redisClient),
		Backend:       "redis",
	}
}
