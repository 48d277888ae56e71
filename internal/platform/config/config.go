package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates all service configuration, one struct per concern so main
// stays lean.
type Config struct {
	Server   Server
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
	Audit    Audit
	Session  Session
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
}

// Postgres captures connection settings for the audit store.
type Postgres struct {
	URL string
}

// Redis captures connection settings for the session activity store.
type Redis struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures settings for the optional audit entry fan-out.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Audit tunes the entry write path. Reads are persisted only for the listed
// sensitive resource types unless AuditAllReads is set.
type Audit struct {
	QueueSize       int
	Workers         int
	SlowThresholdMs int64
	MaxBodyCapture  int64
	AuditAllReads   bool
	ReadAuditTypes  []string
}

// Session bounds per-session activity records.
type Session struct {
	MaxActivities int
	TTL           time.Duration
}

// FromEnv builds the full configuration from environment variables.
func FromEnv() Config {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Config{
		Server: Server{
			Addr:          envString("HELPDESK_ADDR", ":8080"),
			JWTSigningKey: jwtSigningKey,
		},
		Postgres: Postgres{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   envString("AUDIT_KAFKA_TOPIC", "audit.entries"),
		},
		Audit: Audit{
			QueueSize:       envInt("AUDIT_QUEUE_SIZE", 1024),
			Workers:         envInt("AUDIT_WORKERS", 2),
			SlowThresholdMs: int64(envInt("AUDIT_SLOW_THRESHOLD_MS", 10000)),
			MaxBodyCapture:  int64(envInt("AUDIT_MAX_BODY_CAPTURE", 64*1024)),
			AuditAllReads:   os.Getenv("AUDIT_ALL_READS") == "true",
			ReadAuditTypes:  envListDefault("AUDIT_READ_RESOURCES", []string{"user"}),
		},
		Session: Session{
			MaxActivities: envInt("SESSION_MAX_ACTIVITIES", 200),
			TTL:           envDuration("SESSION_TTL", 24*time.Hour),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envListDefault(key string, fallback []string) []string {
	if v := envList(key); v != nil {
		return v
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
