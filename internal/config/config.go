package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
)

// Cache backends.
const (
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// Config holds all configuration for the storefront edge.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"STOREFRONT_HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Storefront API
	APIBaseURL    string        `env:"API_BASE_URL" envDefault:"http://localhost:8080/api/v1"`
	APITimeout    time.Duration `env:"API_TIMEOUT" envDefault:"15s"`
	APIMaxAttempt int           `env:"API_MAX_ATTEMPTS" envDefault:"3"`
	APIWaitMin    time.Duration `env:"API_RETRY_WAIT_MIN" envDefault:"300ms"`
	APIWaitMax    time.Duration `env:"API_RETRY_WAIT_MAX" envDefault:"3s"`

	// Circuit breaker around the API
	BreakerTimeout      time.Duration `env:"BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerFailureRatio float64       `env:"BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests  uint32        `env:"BREAKER_MIN_REQUESTS" envDefault:"5"`

	// Local cache store
	CacheBackend string `env:"CACHE_BACKEND" envDefault:"redis"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass    string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB      int    `env:"REDIS_DB" envDefault:"0"`
	CacheTTL     int    `env:"CACHE_TTL_HOURS" envDefault:"720"`
	// Redis commands slower than this are logged; 0 disables.
	CacheSlowThreshold time.Duration `env:"CACHE_SLOW_THRESHOLD" envDefault:"50ms"`

	// Unified operations
	GuestActorID      string        `env:"GUEST_ACTOR_ID" envDefault:"guest"`
	AddToCartInterval time.Duration `env:"ADD_TO_CART_INTERVAL" envDefault:"200ms"`
	SyncTimeout       time.Duration `env:"SYNC_TIMEOUT" envDefault:"30s"`
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY" envDefault:"8"`

	// Auth
	JWTSecret   string        `env:"JWT_SECRET" envDefault:""`
	JWTTokenTTL time.Duration `env:"JWT_TOKEN_TTL" envDefault:"24h"`

	// Kafka activity relay, disabled when no brokers are set.
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envSeparator:","`
	ActivityTopic string   `env:"ACTIVITY_TOPIC" envDefault:"storefront.activity.events"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromMap reads configuration from vars. Used by tests and tooling.
func LoadFromMap(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFromMap(cfg, vars); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CacheTTLDuration returns the cache entry lifetime.
func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Hour
}

// RelayEnabled reports whether bus events are forwarded to Kafka.
func (c *Config) RelayEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL: %q", c.APIBaseURL)
	}
	if c.APIMaxAttempt < 1 {
		return fmt.Errorf("API_MAX_ATTEMPTS must be at least 1, got %d", c.APIMaxAttempt)
	}
	if c.APIWaitMin > c.APIWaitMax {
		return fmt.Errorf("API_RETRY_WAIT_MIN (%s) exceeds API_RETRY_WAIT_MAX (%s)", c.APIWaitMin, c.APIWaitMax)
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("BREAKER_FAILURE_RATIO must be in (0, 1], got %f", c.BreakerFailureRatio)
	}
	switch c.CacheBackend {
	case CacheRedis, CacheMemory:
	default:
		return fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", CacheRedis, CacheMemory, c.CacheBackend)
	}
	if c.CacheTTL < 1 {
		return fmt.Errorf("CACHE_TTL_HOURS must be positive, got %d", c.CacheTTL)
	}
	if c.GuestActorID == "" {
		return fmt.Errorf("GUEST_ACTOR_ID must not be empty")
	}
	if c.AddToCartInterval < 0 {
		return fmt.Errorf("ADD_TO_CART_INTERVAL must not be negative")
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.WorkerConcurrency)
	}
	if c.Environment == "production" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes in production")
	}
	if c.OTELSampleRate < 0.0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}
