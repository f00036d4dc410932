package config

import (
	"os"
	"time"
)

// Service captures process-level configuration for the admission service.
type Service struct {
	Addr string

	// Policy source selection: postgres when DatabaseURL is set, redis when
	// RedisURL is set, YAML file when PolicyFile is set. First match wins;
	// with none set the engine runs on built-in defaults.
	DatabaseURL string
	RedisURL    string
	PolicyFile  string

	PolicyCacheTTL  time.Duration
	JanitorInterval time.Duration
	IdleEvictionAge time.Duration
}

// Reference behavior constants; overridable through the environment.
var (
	DefaultPolicyCacheTTL  = 60 * time.Second
	DefaultJanitorInterval = 5 * time.Minute
	DefaultIdleEvictionAge = time.Hour
)

// FromEnv builds a Service config from environment variables so main stays lean.
func FromEnv() Service {
	addr := os.Getenv("BASTION_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	return Service{
		Addr:            addr,
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		PolicyFile:      os.Getenv("POLICY_FILE"),
		PolicyCacheTTL:  durationFromEnv("POLICY_CACHE_TTL", DefaultPolicyCacheTTL),
		JanitorInterval: durationFromEnv("JANITOR_INTERVAL", DefaultJanitorInterval),
		IdleEvictionAge: durationFromEnv("IDLE_EVICTION_AGE", DefaultIdleEvictionAge),
	}
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return fallback
}
