package config

import (
	"fmt"
	"os"
	"time"
)

// Config is the root configuration for one relay node.
type Config struct {
	Store     StoreConfig     `json:"store"`
	Bus       BusConfig       `json:"bus"`
	PubSub    PubSubConfig    `json:"pubsub"`
	Auth      AuthConfig      `json:"auth"`
	Hub       HubConfig       `json:"hub"`
	Media     MediaConfig     `json:"media,omitempty"`
	Cron      CronConfig      `json:"cron,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// StoreConfig configures the Postgres message store.
// Password is NEVER read from the config file — env RELAY_POSTGRES_PASSWORD
// only. RELAY_POSTGRES_DSN overrides the assembled DSN entirely.
type StoreConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Database    string `json:"database"`
	User        string `json:"user"`
	Password    string `json:"-"`
	MaxPoolSize int    `json:"max_pool_size,omitempty"`
	AutoMigrate bool   `json:"auto_migrate,omitempty"`
	dsnOverride string
}

// DSN returns the connection string, honoring the env override.
func (s StoreConfig) DSN() string {
	if s.dsnOverride != "" {
		return s.dsnOverride
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		s.User, s.Password, s.Host, s.Port, s.Database)
}

// BusConfig configures the durable topic exchange.
// The queue name must be unique per node; empty derives it from the hostname.
type BusConfig struct {
	URL      string `json:"-"` // from env RELAY_AMQP_URL only
	Exchange string `json:"exchange,omitempty"`
	Queue    string `json:"queue,omitempty"`
}

// QueueName returns the per-node durable queue name.
func (b BusConfig) QueueName() string {
	if b.Queue != "" {
		return b.Queue
	}
	host, err := os.Hostname()
	if err != nil {
		host = "node"
	}
	return "relay_events_" + host
}

// PubSubConfig configures the ephemeral per-user fan-out layer.
type PubSubConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"-"` // from env RELAY_REDIS_PASSWORD only
	DB       int    `json:"db,omitempty"`
}

// AuthConfig configures bearer-token validation.
// Secret comes from env RELAY_JWT_SECRET only and should be ≥32 bytes.
type AuthConfig struct {
	Secret      string `json:"-"`
	ExpiryHours int    `json:"expiry_hours,omitempty"`
}

// Expiry returns the token lifetime.
func (a AuthConfig) Expiry() time.Duration {
	if a.ExpiryHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.ExpiryHours) * time.Hour
}

// HubConfig configures the session layer.
type HubConfig struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	PingIntervalSec int      `json:"ping_interval_sec,omitempty"`
	WriteTimeoutSec int      `json:"write_timeout_sec,omitempty"`
	MaxMessageBytes int64    `json:"max_message_bytes,omitempty"`
	AllowedOrigins  []string `json:"allowed_origins,omitempty"`
}

// PingInterval returns the ping cadence for live sessions.
func (h HubConfig) PingInterval() time.Duration {
	if h.PingIntervalSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(h.PingIntervalSec) * time.Second
}

// WriteTimeout bounds a single socket write.
func (h HubConfig) WriteTimeout() time.Duration {
	if h.WriteTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(h.WriteTimeoutSec) * time.Second
}

// MediaConfig configures pre-signed S3 uploads. Empty bucket disables the
// upload-url endpoint.
type MediaConfig struct {
	Bucket        string `json:"bucket,omitempty"`
	Region        string `json:"region,omitempty"`
	Endpoint      string `json:"endpoint,omitempty"` // S3-compatible override (MinIO etc.)
	PublicBaseURL string `json:"public_base_url,omitempty"`
	PresignTTLMin int    `json:"presign_ttl_min,omitempty"`
}

// PresignTTL returns how long an upload URL stays valid.
func (m MediaConfig) PresignTTL() time.Duration {
	if m.PresignTTLMin <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(m.PresignTTLMin) * time.Minute
}

// CronConfig holds cron expressions for background maintenance.
type CronConfig struct {
	StoryPurge string `json:"story_purge,omitempty"` // default: hourly
}

// TelemetryConfig configures optional OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // local dev only
	ServiceName string            `json:"service_name,omitempty"` // default "relay"
	Headers     map[string]string `json:"headers,omitempty"`
}
