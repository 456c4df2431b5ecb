// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as storage paths, Redis connectivity, challenge timing, moderation
// thresholds, logging, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// RedisConfig defines connectivity for the ephemeral cache.
type RedisConfig struct {
	Addr     string // REDIS_ADDR (e.g. "localhost:6379")
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
	PoolSize int    // REDIS_POOL_SIZE
}

// VisionConfig defines the image classifier / OCR service settings.
type VisionConfig struct {
	Endpoint  string        // VISION_ENDPOINT (analyze API base URL)
	APIKey    string        // VISION_API_KEY
	Threshold float64       // VISION_THRESHOLD in [0..1]
	Timeout   time.Duration // VISION_TIMEOUT per call
	OCR       bool          // VISION_OCR (run text extraction as a sub-check)
}

// ChallengeConfig defines timing and budget for join-request challenges.
type ChallengeConfig struct {
	MessageTTL  time.Duration // CHALLENGE_MESSAGE_TTL (in-conversation flow)
	PMTTL       time.Duration // CHALLENGE_PM_TTL (direct-message visual flow)
	MaxAttempts int           // CHALLENGE_MAX_ATTEMPTS
	Cooldown    time.Duration // CHALLENGE_COOLDOWN after exhausted attempts
}

// PlatformConfig defines connectivity to the chat platform's bot API.
type PlatformConfig struct {
	Token       string        // BOT_TOKEN
	APIBase     string        // BOT_API_BASE (override for test doubles / local servers)
	PollTimeout time.Duration // BOT_POLL_TIMEOUT for long-poll update fetches
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Ops HTTP server
	OpsPort           string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Chat platform
	Platform PlatformConfig

	// Storage
	DBPath string // SQLite path
	Redis  RedisConfig

	// Challenge timing
	Challenge ChallengeConfig

	// Moderation
	Vision           VisionConfig
	NoticeSelfDelete time.Duration // in-group moderation notice lifetime
	LogChannelID     int64         // admin channel receiving audit events (0 = log only)
	DenylistFile     string        // optional file of terms overriding the built-in denylist

	// Ops rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Ops HTTP server
		OpsPort:           getenv("OPS_PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Chat platform
		Platform: PlatformConfig{
			Token:       getenv("BOT_TOKEN", ""),
			APIBase:     getenv("BOT_API_BASE", "https://api.telegram.org"),
			PollTimeout: getdur("BOT_POLL_TIMEOUT", 30*time.Second),
		},

		// Storage
		DBPath: getenv("DB_PATH", "warden.db"),
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
			PoolSize: getint("REDIS_POOL_SIZE", 10),
		},

		// Challenge timing
		Challenge: ChallengeConfig{
			MessageTTL:  getdur("CHALLENGE_MESSAGE_TTL", 70*time.Second),
			PMTTL:       getdur("CHALLENGE_PM_TTL", 180*time.Second),
			MaxAttempts: getint("CHALLENGE_MAX_ATTEMPTS", 3),
			Cooldown:    getdur("CHALLENGE_COOLDOWN", 60*time.Second),
		},

		// Moderation
		Vision: VisionConfig{
			Endpoint:  getenv("VISION_ENDPOINT", ""),
			APIKey:    getenv("VISION_API_KEY", ""),
			Threshold: getfloat("VISION_THRESHOLD", 0.7),
			Timeout:   getdur("VISION_TIMEOUT", 10*time.Second),
			OCR:       getbool("VISION_OCR", false),
		},
		NoticeSelfDelete: getdur("NOTICE_SELF_DELETE", 30*time.Second),
		LogChannelID:     getint64("LOG_CHANNEL_ID", 0),
		DenylistFile:     getenv("DENYLIST_FILE", ""),

		// Ops rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-group-warden"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.OpsPort) == "" {
		return cfg, errors.New("OPS_PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if strings.TrimSpace(cfg.Platform.Token) == "" {
		return cfg, errors.New("BOT_TOKEN must not be empty")
	}
	if cfg.Platform.PollTimeout <= 0 {
		return cfg, errors.New("BOT_POLL_TIMEOUT must be a positive duration")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return cfg, errors.New("REDIS_ADDR must not be empty")
	}
	if cfg.Challenge.MessageTTL <= 0 || cfg.Challenge.PMTTL <= 0 {
		return cfg, errors.New("challenge TTLs must be positive durations")
	}
	if cfg.Challenge.MaxAttempts < 1 {
		return cfg, errors.New("CHALLENGE_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Challenge.Cooldown <= 0 {
		return cfg, errors.New("CHALLENGE_COOLDOWN must be > 0")
	}
	if cfg.Vision.Threshold < 0 || cfg.Vision.Threshold > 1 {
		return cfg, errors.New("VISION_THRESHOLD must be between 0 and 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
