// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Audit persistence modes. Strict aborts the caller's operation when the
// primary store rejects a write; degraded diverts the entry to the fallback
// sink and lets the operation proceed.
const (
	AuditModeStrict   = "strict"
	AuditModeDegraded = "degraded"
)

// Config is the full process configuration, assembled from the environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	JWT      JWTConfig
	Auth     AuthConfig
	Audit    AuditConfig
	OTel     OTelConfig

	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// DatabaseConfig holds PostgreSQL settings. An empty URL means the process
// runs without a durable store: users and sessions live in memory and audit
// entries go to an in-memory store with the log sink as fallback.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// Enabled reports whether a database was configured.
func (c DatabaseConfig) Enabled() bool { return c.URL != "" }

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// Enabled reports whether Redis was configured.
func (c RedisConfig) Enabled() bool { return c.URL != "" }

// KafkaConfig holds settings for the audit stream producer and consumer.
// No brokers means the stream pipeline stays unwired.
type KafkaConfig struct {
	Brokers       []string `env:"KAFKA_BROKERS" envSeparator:","`
	ClientID      string   `env:"KAFKA_CLIENT_ID" envDefault:"cradle"`
	ConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"cradle-audit"`
	AuditTopic    string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"cradle.audit.entries"`
	Partitions    int32    `env:"KAFKA_TOPIC_PARTITIONS" envDefault:"3"`
	Replication   int16    `env:"KAFKA_TOPIC_REPLICATION" envDefault:"1"`
}

// Enabled reports whether Kafka brokers were configured.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// JWTConfig holds token signing and verification settings.
type JWTConfig struct {
	// Secret has a development default and must be overridden in production.
	Secret     string        `env:"JWT_SECRET" envDefault:"dev-secret-key-change-in-production"`
	Issuer     string        `env:"JWT_ISSUER" envDefault:"cradle"`
	Audience   string        `env:"JWT_AUDIENCE" envDefault:"cradle"`
	AccessTTL  time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"JWT_REFRESH_TTL" envDefault:"720h"`
}

// AuthConfig holds session, device-binding, and login-lockout settings.
type AuthConfig struct {
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	DeviceBinding    bool          `env:"DEVICE_BINDING" envDefault:"true"`
	LockoutThreshold int           `env:"LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutWindow    time.Duration `env:"LOCKOUT_WINDOW" envDefault:"15m"`
	LockoutDuration  time.Duration `env:"LOCKOUT_DURATION" envDefault:"30m"`
}

// AuditConfig selects the audit persistence mode.
type AuditConfig struct {
	Mode string `env:"AUDIT_MODE" envDefault:"strict"`
}

// Strict reports whether audit persistence failures abort the caller's
// operation.
func (c AuditConfig) Strict() bool { return c.Mode == AuditModeStrict }

// OTelConfig holds trace exporter settings. Tracing is a no-op unless an
// endpoint is set.
type OTelConfig struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"true"`
	Endpoint    string `env:"OTEL_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"cradle"`
}

// Load parses configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Audit.Mode {
	case AuditModeStrict, AuditModeDegraded:
	default:
		return fmt.Errorf("invalid AUDIT_MODE %q: must be %q or %q", c.Audit.Mode, AuditModeStrict, AuditModeDegraded)
	}
	if c.Auth.LockoutThreshold < 1 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be at least 1, got %d", c.Auth.LockoutThreshold)
	}
	return nil
}
