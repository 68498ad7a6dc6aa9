package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Source documents are opened from under SourceDir only.
	SourceDir string

	// Sidecar directory
	MetaDir string

	// Sessions
	SessionTTL  time.Duration
	MaxSessions int

	// Lease backend. Empty RedisURL selects the in-process lease.
	RedisURL string
	LeaseTTL time.Duration

	// Source limits
	MaxSourceBytes int64

	// PDF
	PDFFallbackPdftotext bool

	LogLevel string
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("PAGEMARK_API_KEY"),

		SourceDir: envOr("SOURCE_DIR", "sources"),
		MetaDir:   envOr("META_DIR", "meta"),

		SessionTTL:  envDuration("SESSION_TTL", 1*time.Hour),
		MaxSessions: envInt("MAX_SESSIONS", 32),

		RedisURL: os.Getenv("REDIS_URL"),
		LeaseTTL: envDuration("LEASE_TTL", 10*time.Minute),

		MaxSourceBytes: envInt64("MAX_SOURCE_BYTES", 209715200), // 200MB

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		LogLevel: envOr("LOG_LEVEL", "info"),
	}

	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 1 * time.Hour
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 32
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 10 * time.Minute
	}
	if cfg.MaxSourceBytes <= 0 {
		cfg.MaxSourceBytes = 209715200
	}

	return cfg
}

// minLeaseTTL keeps the renewal loop from spinning.
const minLeaseTTL = time.Second

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("PAGEMARK_API_KEY is required")
	}
	if c.SourceDir == "" {
		return fmt.Errorf("SOURCE_DIR is required")
	}
	if fi, err := os.Stat(c.SourceDir); err != nil || !fi.IsDir() {
		return fmt.Errorf("SOURCE_DIR %q is not a directory", c.SourceDir)
	}
	if c.MetaDir == "" {
		return fmt.Errorf("META_DIR is required")
	}
	if fi, err := os.Stat(c.MetaDir); err == nil && !fi.IsDir() {
		return fmt.Errorf("META_DIR %q is not a directory", c.MetaDir)
	}
	if c.LeaseTTL < minLeaseTTL {
		return fmt.Errorf("LEASE_TTL must be at least %s", minLeaseTTL)
	}
	if c.RedisURL != "" && !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

func envOr(key, fallback string) string {
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

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
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
