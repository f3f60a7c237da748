package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates application configuration values.
type Config struct {
	Env        string
	ListenAddr string

	DatabaseURL string
	RedisAddr   string

	Logging LoggingConfig

	Promotion PromotionConfig
	Resolver  ResolverConfig
	Dispatch  DispatchConfig
	Inbound   InboundConfig

	Telegram TelegramConfig
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level  string
	Format string // text|json
}

// PromotionConfig tunes the report-to-confirmed promotion rule.
type PromotionConfig struct {
	// MinReporters is the distinct-reporter threshold (N_min).
	MinReporters int
	// RecentLimit caps the recent-cases listing.
	RecentLimit int
}

// ResolverConfig tunes reputation lookups and verdict caching.
type ResolverConfig struct {
	SourceTimeout time.Duration
	VerdictTTL    time.Duration
	// FailureTTL bounds how long a failure-produced unknown is cached,
	// so transient outages self-heal quickly.
	FailureTTL       time.Duration
	PhishtankAPIKey  string
	OpenPhishFeedURL string
	DNSBLZone        string
}

// DispatchConfig tunes the alert fan-out.
type DispatchConfig struct {
	Workers         int
	RatePerSecond   float64
	Burst           int
	MaxAttempts     int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	DeliveryTimeout time.Duration
	ReplayInterval  time.Duration
}

// InboundConfig governs the per-requester report rate limit.
type InboundConfig struct {
	ReportsPerWindow int
	Window           time.Duration
}

// TelegramConfig configures the Bot API transport.
type TelegramConfig struct {
	Token   string
	BaseURL string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return out
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if out, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return out
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if out, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return out
		}
	}
	return def
}

// Load reads configuration from the environment, applying defaults.
// A .env file in the working directory is honored if present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:         getenv("APP_ENV", "development"),
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		Logging: LoggingConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "text"),
		},
		Promotion: PromotionConfig{
			MinReporters: getenvInt("PROMOTION_MIN_REPORTERS", 3),
			RecentLimit:  getenvInt("RECENT_LIMIT", 25),
		},
		Resolver: ResolverConfig{
			SourceTimeout:    getenvDuration("SOURCE_TIMEOUT", 12*time.Second),
			VerdictTTL:       getenvDuration("VERDICT_TTL", time.Hour),
			FailureTTL:       getenvDuration("VERDICT_FAILURE_TTL", 2*time.Minute),
			PhishtankAPIKey:  os.Getenv("PHISHTANK_API_KEY"),
			OpenPhishFeedURL: getenv("OPENPHISH_FEED_URL", "https://openphish.com/feed.txt"),
			DNSBLZone:        os.Getenv("DNSBL_ZONE"),
		},
		Dispatch: DispatchConfig{
			Workers:         getenvInt("DISPATCH_WORKERS", 4),
			RatePerSecond:   getenvFloat("DISPATCH_RATE", 25),
			Burst:           getenvInt("DISPATCH_BURST", 25),
			MaxAttempts:     getenvInt("DELIVERY_MAX_ATTEMPTS", 4),
			BaseBackoff:     getenvDuration("DELIVERY_BASE_BACKOFF", 500*time.Millisecond),
			MaxBackoff:      getenvDuration("DELIVERY_MAX_BACKOFF", 8*time.Second),
			DeliveryTimeout: getenvDuration("DELIVERY_TIMEOUT", 10*time.Second),
			ReplayInterval:  getenvDuration("DISPATCH_REPLAY_INTERVAL", time.Minute),
		},
		Inbound: InboundConfig{
			ReportsPerWindow: getenvInt("USER_RATE_LIMIT_N", 5),
			Window:           getenvDuration("USER_RATE_LIMIT_WINDOW", time.Minute),
		},
		Telegram: TelegramConfig{
			Token:   os.Getenv("TELEGRAM_BOT_TOKEN"),
			BaseURL: getenv("TELEGRAM_API_BASE", "https://api.telegram.org"),
		},
	}

	if cfg.Promotion.MinReporters < 1 {
		return cfg, fmt.Errorf("PROMOTION_MIN_REPORTERS must be >= 1")
	}
	if cfg.Dispatch.MaxAttempts < 1 {
		return cfg, fmt.Errorf("DELIVERY_MAX_ATTEMPTS must be >= 1")
	}
	return cfg, nil
}
