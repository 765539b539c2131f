package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Settlement SettlementConfig
	Refund     RefundConfig
	Sweep      SweepConfig
	Events     EventsConfig
	Tracing    TracingConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines session and credential parameters.
type AuthConfig struct {
	SessionTTLMinutes  int
	CookieName         string
	BcryptCost         int
	LoginRatePerMinute int
	LoginBurst         int
	CookieSecure       bool
}

// SettlementConfig holds payment processor credentials.
type SettlementConfig struct {
	OmisePublicKey string
	OmiseSecretKey string
	Currency       string
}

// RefundConfig tunes the refund retry worker.
type RefundConfig struct {
	MaxAttempts         int
	BaseBackoffSeconds  int
	MaxBackoffSeconds   int
	PollIntervalSeconds int
	BatchSize           int
	QueueKey            string
	ClaimLeaseSeconds   int
}

// SweepConfig controls the expired-token maintenance job.
type SweepConfig struct {
	IntervalSeconds int
}

// EventsConfig configures the optional RabbitMQ bridge.
type EventsConfig struct {
	AMQPURL  string
	Exchange string
}

// TracingConfig configures the OTLP exporter. An empty endpoint disables tracing.
type TracingConfig struct {
	OTLPEndpoint string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "booking-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			SessionTTLMinutes:  getEnvAsInt("AUTH_SESSION_TTL_MINUTES", 7*24*60),
			CookieName:         getEnv("AUTH_COOKIE_NAME", "session_token"),
			BcryptCost:         getEnvAsInt("AUTH_BCRYPT_COST", 12),
			LoginRatePerMinute: getEnvAsInt("AUTH_LOGIN_RATE_PER_MINUTE", 10),
			LoginBurst:         getEnvAsInt("AUTH_LOGIN_BURST", 5),
			CookieSecure:       getEnvAsBool("AUTH_COOKIE_SECURE", false),
		},
		Settlement: SettlementConfig{
			OmisePublicKey: os.Getenv("OMISE_PUBLIC_KEY"),
			OmiseSecretKey: os.Getenv("OMISE_SECRET_KEY"),
			Currency:       getEnv("SETTLEMENT_CURRENCY", "thb"),
		},
		Refund: RefundConfig{
			MaxAttempts:         getEnvAsInt("REFUND_MAX_ATTEMPTS", 8),
			BaseBackoffSeconds:  getEnvAsInt("REFUND_BASE_BACKOFF_SECONDS", 5),
			MaxBackoffSeconds:   getEnvAsInt("REFUND_MAX_BACKOFF_SECONDS", 3600),
			PollIntervalSeconds: getEnvAsInt("REFUND_POLL_INTERVAL_SECONDS", 5),
			BatchSize:           getEnvAsInt("REFUND_BATCH_SIZE", 20),
			QueueKey:            getEnv("REFUND_QUEUE_KEY", "booking:refunds"),
			ClaimLeaseSeconds:   getEnvAsInt("REFUND_CLAIM_LEASE_SECONDS", 300),
		},
		Sweep: SweepConfig{
			IntervalSeconds: getEnvAsInt("SESSION_SWEEP_INTERVAL_SECONDS", 900),
		},
		Events: EventsConfig{
			AMQPURL:  os.Getenv("AMQP_URL"),
			Exchange: getEnv("AMQP_EXCHANGE", "booking.events"),
		},
		Tracing: TracingConfig{
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
	}

	if cfg.Auth.SessionTTLMinutes <= 0 {
		return nil, fmt.Errorf("AUTH_SESSION_TTL_MINUTES must be positive, got %d", cfg.Auth.SessionTTLMinutes)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SessionTTL is the fixed lifetime of every issued session token.
func (a AuthConfig) SessionTTL() time.Duration {
	return time.Duration(a.SessionTTLMinutes) * time.Minute
}

// Backoff returns the retry delay after the given number of failed attempts.
func (r RefundConfig) Backoff(attempts int) time.Duration {
	base := time.Duration(r.BaseBackoffSeconds) * time.Second
	if base <= 0 {
		base = time.Second
	}
	ceiling := time.Duration(r.MaxBackoffSeconds) * time.Second
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if ceiling > 0 && delay >= ceiling {
			return ceiling
		}
	}
	return delay
}

// PollInterval returns how often the refund worker looks for due jobs.
func (r RefundConfig) PollInterval() time.Duration {
	if r.PollIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.PollIntervalSeconds) * time.Second
}

// ClaimLease returns how long a worker owns a refund before another worker may
// take it over. Provider calls are bounded by it.
func (r RefundConfig) ClaimLease() time.Duration {
	if r.ClaimLeaseSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(r.ClaimLeaseSeconds) * time.Second
}

// Interval returns the pause between token sweeps.
func (s SweepConfig) Interval() time.Duration {
	if s.IntervalSeconds <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.IntervalSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
