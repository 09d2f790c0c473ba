package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration. Every value can come from the
// environment with the AUTHGATE_ prefix (AUTHGATE_LISTEN_ADDR and so on).
type Config struct {
	ListenAddr string
	RedisURL   string

	// StoreBackend selects the durable tier: "redis" or "bolt".
	StoreBackend string
	BoltPath     string

	// AuditBackend selects the sink: "stream" (Watermill over Redis) or "log".
	AuditBackend string

	// UpstreamKey authenticates the identity layer calling the login
	// endpoint. Empty disables the check; only do that on a private network.
	UpstreamKey string

	StalePendingWindow    time.Duration
	FreshLoginWindow      time.Duration
	SessionValidityWindow time.Duration
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AUTHGATE")
	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":9000")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("STORE_BACKEND", "redis")
	v.SetDefault("BOLT_PATH", "authgate.db")
	v.SetDefault("AUDIT_BACKEND", "stream")
	v.SetDefault("UPSTREAM_KEY", "")
	v.SetDefault("STALE_PENDING_WINDOW", 10*time.Minute)
	v.SetDefault("FRESH_LOGIN_WINDOW", time.Second)
	v.SetDefault("SESSION_VALIDITY_WINDOW", 30*time.Minute)

	cfg := &Config{
		ListenAddr:            v.GetString("LISTEN_ADDR"),
		RedisURL:              v.GetString("REDIS_URL"),
		StoreBackend:          v.GetString("STORE_BACKEND"),
		BoltPath:              v.GetString("BOLT_PATH"),
		AuditBackend:          v.GetString("AUDIT_BACKEND"),
		UpstreamKey:           v.GetString("UPSTREAM_KEY"),
		StalePendingWindow:    v.GetDuration("STALE_PENDING_WINDOW"),
		FreshLoginWindow:      v.GetDuration("FRESH_LOGIN_WINDOW"),
		SessionValidityWindow: v.GetDuration("SESSION_VALIDITY_WINDOW"),
	}

	switch cfg.StoreBackend {
	case "redis", "bolt":
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	switch cfg.AuditBackend {
	case "stream", "log":
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.AuditBackend)
	}

	return cfg, nil
}
