// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay server.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultMaxClients      = 10
	defaultBufferSize      = 2048
	defaultFirstIdentity   = 10
	defaultIdleTimeout     = 30 * time.Minute
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultRefillInterval  = time.Second
)

// RateLimitConfig defines the parameters for per-connection message rate
// limiting. A zero Burst disables the limiter.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the relay server settings. The zero value is not usable;
// start from NewConfig or NewConfigFromEnv.
type Config struct {
	Port            string
	MaxClients      int
	BufferSize      int
	FirstIdentity   int
	IdleTimeout     time.Duration
	WriteTimeout    time.Duration
	AdmissionDelay  time.Duration
	ShutdownTimeout time.Duration
	RateLimit       RateLimitConfig

	// WebSocketAddr enables the WebSocket bridge when non-empty.
	WebSocketAddr  string
	AllowedOrigins []string
	Operator       string
}

func defaultConfig() Config {
	return Config{
		Port:            "9000",
		MaxClients:      defaultMaxClients,
		BufferSize:      defaultBufferSize,
		FirstIdentity:   defaultFirstIdentity,
		IdleTimeout:     defaultIdleTimeout,
		WriteTimeout:    defaultWriteTimeout,
		ShutdownTimeout: defaultShutdownTimeout,
		RateLimit: RateLimitConfig{
			RefillInterval: defaultRefillInterval,
		},
		AllowedOrigins: []string{"http://localhost:8080"},
		Operator:       "console",
	}
}

// sanitizeConfig replaces invalid values with defaults. IdleTimeout,
// AdmissionDelay and RateLimit.Burst accept zero, which disables them.
func sanitizeConfig(cfg Config) Config {
	defaults := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = defaults.MaxClients
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.FirstIdentity <= 0 {
		cfg.FirstIdentity = defaults.FirstIdentity
	}
	if cfg.IdleTimeout < 0 {
		cfg.IdleTimeout = 0
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.AdmissionDelay < 0 {
		cfg.AdmissionDelay = 0
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.RateLimit.Burst < 0 {
		cfg.RateLimit.Burst = 0
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	if cfg.Operator == "" {
		cfg.Operator = defaults.Operator
	}
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set or invalid.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if maxClients := os.Getenv("CHAT_MAX_CLIENTS"); maxClients != "" {
		cfg.MaxClients = parseIntValue(maxClients, cfg.MaxClients)
	}

	if size := os.Getenv("CHAT_BUFFER_SIZE"); size != "" {
		cfg.BufferSize = parseIntValue(size, cfg.BufferSize)
	}

	if first := os.Getenv("CHAT_FIRST_ID"); first != "" {
		cfg.FirstIdentity = parseIntValue(first, cfg.FirstIdentity)
	}

	if idle := os.Getenv("CHAT_IDLE_TIMEOUT"); idle != "" {
		cfg.IdleTimeout = parseSeconds(idle, cfg.IdleTimeout, true)
	}

	if write := os.Getenv("CHAT_WRITE_TIMEOUT"); write != "" {
		cfg.WriteTimeout = parseSeconds(write, cfg.WriteTimeout, false)
	}

	if delay := os.Getenv("CHAT_ADMISSION_DELAY"); delay != "" {
		cfg.AdmissionDelay = parseMillis(delay, cfg.AdmissionDelay)
	}

	if shutdown := os.Getenv("CHAT_SHUTDOWN_TIMEOUT"); shutdown != "" {
		cfg.ShutdownTimeout = parseSeconds(shutdown, cfg.ShutdownTimeout, false)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval, false)
	}

	cfg.WebSocketAddr = strings.TrimSpace(os.Getenv("CHAT_WS_ADDR"))

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if operator := os.Getenv("CHAT_OPERATOR"); operator != "" {
		cfg.Operator = strings.ToLower(strings.TrimSpace(operator))
	}

	return &cfg
}

// ParsePort validates a TCP port given on the command line.
func ParsePort(value string) (string, bool) {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || port < 1 || port > 65535 {
		return "", false
	}
	return strconv.Itoa(port), true
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration, allowZero bool) time.Duration {
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 || (seconds == 0 && !allowZero) {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}

func parseMillis(value string, defaultValue time.Duration) time.Duration {
	if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
