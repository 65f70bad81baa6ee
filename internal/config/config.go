package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is assembled once at process start and handed to constructors by
// value. Core packages never read the environment themselves.
type Config struct {
	ListenAddr string
	PostgresDSN string

	// AuthSecret signs and verifies bearer credentials. Required whenever the
	// API is expected to authenticate requests.
	AuthSecret string
	Issuer     string

	// RevokedTokenRetention bounds blacklist growth: entries older than this
	// window are dropped by the compaction loop. Zero disables compaction.
	RevokedTokenRetention time.Duration

	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

const envPrefix = "FIELDOPS_"

// Load reads configuration from the environment and applies defaults.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:            getenv("ADDR", ":8080"),
		PostgresDSN:           getenv("PG_DSN", ""),
		AuthSecret:            getenv("AUTH_SECRET", ""),
		Issuer:                getenv("ISSUER", "fieldops"),
		RateLimitPerSecond:    10,
		RateLimitBurst:        20,
		MaxBodyBytes:          1 << 20,
		RevokedTokenRetention: 0,
	}

	if raw := getenv("REVOKED_RETENTION", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %sREVOKED_RETENTION: %w", envPrefix, err)
		}
		if d < 0 {
			return Config{}, errors.New("revoked token retention must not be negative")
		}
		cfg.RevokedTokenRetention = d
	}
	if raw := getenv("RATE_LIMIT_RPS", ""); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid %sRATE_LIMIT_RPS: %q", envPrefix, raw)
		}
		cfg.RateLimitPerSecond = n
	}
	if raw := getenv("RATE_LIMIT_BURST", ""); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid %sRATE_LIMIT_BURST: %q", envPrefix, raw)
		}
		cfg.RateLimitBurst = n
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
		return v
	}
	return fallback
}
