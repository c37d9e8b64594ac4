package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	LogFormat     string
	PublicBaseURL string

	// Booking backend
	BackendBaseURL       string
	BackendTimeout       time.Duration
	CalendarSlugFallback string
	ScheduleCacheTTL     time.Duration

	// Navigation targets outside the widget
	LandingURL string
	LoginURL   string

	// Widget sessions and one-shot handoffs
	SessionSecret string
	SessionTTL    time.Duration
	HandoffTTL    time.Duration
	VisitorTTL    time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Attachments (transfer proofs, case files)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	AttachmentsBucket   string
	MaxUploadBytes      int64
	UploadRetention     time.Duration

	PaymentsDryRun     bool
	MercadoPagoMode    string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		BackendBaseURL:       strings.TrimRight(getEnv("BACKEND_BASE_URL", ""), "/"),
		BackendTimeout:       getEnvAsDuration("BACKEND_TIMEOUT", 15*time.Second),
		CalendarSlugFallback: strings.TrimSpace(getEnv("CALENDAR_SLUG_FALLBACK", "")),
		ScheduleCacheTTL:     getEnvAsDuration("SCHEDULE_CACHE_TTL", 5*time.Minute),

		LandingURL: getEnv("LANDING_URL", "https://zyta.app"),
		LoginURL:   getEnv("LOGIN_URL", ""),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 2*time.Hour),
		HandoffTTL:    getEnvAsDuration("HANDOFF_TTL", 24*time.Hour),
		VisitorTTL:    getEnvAsDuration("VISITOR_TTL", 365*24*time.Hour),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		AttachmentsBucket:   getEnv("ATTACHMENTS_BUCKET", ""),
		MaxUploadBytes:      int64(getEnvAsInt("MAX_UPLOAD_BYTES", 5<<20)),
		UploadRetention:     getEnvAsDuration("UPLOAD_RETENTION", 24*time.Hour),

		PaymentsDryRun:     getEnvAsBool("PAYMENTS_DRY_RUN", false),
		MercadoPagoMode:    getEnv("MERCADOPAGO_MODE", "auto"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),
	}
}

// IsProduction reports whether the service runs against live payment providers.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// SessionSigningKey returns the secret used for widget session cookies.
// Outside production an empty secret falls back to a fixed development key.
func (c *Config) SessionSigningKey() []byte {
	if c.SessionSecret != "" {
		return []byte(c.SessionSecret)
	}
	if c.IsProduction() {
		return nil
	}
	return []byte("zyta-widget-dev-secret")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
