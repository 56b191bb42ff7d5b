package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Host:        "localhost",
			Port:        5432,
			Database:    "relay",
			User:        "relay",
			MaxPoolSize: 25,
			AutoMigrate: true,
		},
		Bus: BusConfig{
			Exchange: "chat_events",
		},
		PubSub: PubSubConfig{
			Addr: "localhost:6379",
		},
		Auth: AuthConfig{
			ExpiryHours: 24,
		},
		Hub: HubConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			PingIntervalSec: 30,
			WriteTimeoutSec: 10,
			MaxMessageBytes: 64 * 1024,
		},
		Cron: CronConfig{
			StoryPurge: "0 * * * *",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values; secrets only exist here.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("RELAY_POSTGRES_DSN", &c.Store.dsnOverride)
	envStr("RELAY_POSTGRES_PASSWORD", &c.Store.Password)
	envStr("RELAY_POSTGRES_HOST", &c.Store.Host)
	envStr("RELAY_POSTGRES_DB", &c.Store.Database)
	envStr("RELAY_POSTGRES_USER", &c.Store.User)
	envStr("RELAY_AMQP_URL", &c.Bus.URL)
	envStr("RELAY_BUS_EXCHANGE", &c.Bus.Exchange)
	envStr("RELAY_BUS_QUEUE", &c.Bus.Queue)
	envStr("RELAY_REDIS_ADDR", &c.PubSub.Addr)
	envStr("RELAY_REDIS_PASSWORD", &c.PubSub.Password)
	envStr("RELAY_JWT_SECRET", &c.Auth.Secret)
	envStr("RELAY_MEDIA_BUCKET", &c.Media.Bucket)
	envStr("RELAY_MEDIA_REGION", &c.Media.Region)
	envStr("RELAY_MEDIA_ENDPOINT", &c.Media.Endpoint)

	if v := os.Getenv("RELAY_POSTGRES_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Store.Port = p
		}
	}
	if v := os.Getenv("RELAY_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Hub.Port = p
		}
	}
	if v := os.Getenv("RELAY_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = v
	}
}

// Validate rejects configurations the node cannot run with.
func (c *Config) Validate() error {
	if len(c.Auth.Secret) < 32 {
		return fmt.Errorf("auth secret must be at least 32 bytes (set RELAY_JWT_SECRET)")
	}
	if c.Bus.URL == "" {
		return fmt.Errorf("bus URL is required (set RELAY_AMQP_URL)")
	}
	return nil
}
