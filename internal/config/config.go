package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the process-wide configuration, entirely environment-driven via
// getEnv/parseDuration helpers.
type Config struct {
	HTTPAddr       string
	LogLevel       string
	SessionTTL     time.Duration
	RequestTimeout time.Duration

	Engine   EngineConfig
	Storage  StorageConfig
	Calendar CalendarConfig
}

// EngineConfig mirrors the configuration surface the conversation pipeline
// itself consults.
type EngineConfig struct {
	BusinessName          string
	Language              string
	FAQThreshold          float64
	MaxMessageLength      int
	MaxSlotsProposed      int
	ConfirmRetryMax       int
	MaxTurnsAntiLoop      int
	MaxContextFails       int
	ContactConfirmEnabled bool
}

// StorageConfig points at the durable backends: sqlite for sessions/audit,
// redis for the calendar's local fallback store. Either may be left empty
// to fall back to the in-memory reference implementations.
type StorageConfig struct {
	SQLitePath string
	RedisAddr  string
}

// CalendarConfig configures the HTTP-backed reference calendar.Backend.
// BaseURL empty means no primary backend is configured; the engine then
// relies on the redis fallback alone.
type CalendarConfig struct {
	BaseURL string
	Timeout time.Duration
}

func Load() (Config, error) {
	var cfg Config

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	sessionTTL, err := parseDuration(getEnv("SESSION_TTL_MINUTES", "15m"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SESSION_TTL_MINUTES: %w", err)
	}
	cfg.SessionTTL = sessionTTL

	reqTimeout, err := parseDuration(getEnv("HTTP_CLIENT_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse HTTP_CLIENT_TIMEOUT: %w", err)
	}
	cfg.RequestTimeout = reqTimeout

	faqThreshold, err := parseFloatDefault(getEnv("FAQ_THRESHOLD", ""), 0.80)
	if err != nil {
		return Config{}, fmt.Errorf("parse FAQ_THRESHOLD: %w", err)
	}

	maxMessageLength, err := parseIntDefault(getEnv("MAX_MESSAGE_LENGTH", ""), 500)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_MESSAGE_LENGTH: %w", err)
	}

	maxSlotsProposed, err := parseIntDefault(getEnv("MAX_SLOTS_PROPOSED", ""), 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_SLOTS_PROPOSED: %w", err)
	}

	confirmRetryMax, err := parseIntDefault(getEnv("CONFIRM_RETRY_MAX", ""), 1)
	if err != nil {
		return Config{}, fmt.Errorf("parse CONFIRM_RETRY_MAX: %w", err)
	}

	maxTurnsAntiLoop, err := parseIntDefault(getEnv("MAX_TURNS_ANTI_LOOP", ""), 25)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_TURNS_ANTI_LOOP: %w", err)
	}

	maxContextFails, err := parseIntDefault(getEnv("MAX_CONTEXT_FAILS", ""), 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_CONTEXT_FAILS: %w", err)
	}

	contactConfirmEnabled, err := parseBoolDefault(getEnv("CONTACT_CONFIRM_ENABLED", ""), true)
	if err != nil {
		return Config{}, fmt.Errorf("parse CONTACT_CONFIRM_ENABLED: %w", err)
	}

	cfg.Engine = EngineConfig{
		BusinessName:          getEnv("BUSINESS_NAME", "le cabinet"),
		Language:              getEnv("LANGUAGE", "fr"),
		FAQThreshold:          faqThreshold,
		MaxMessageLength:      maxMessageLength,
		MaxSlotsProposed:      maxSlotsProposed,
		ConfirmRetryMax:       confirmRetryMax,
		MaxTurnsAntiLoop:      maxTurnsAntiLoop,
		MaxContextFails:       maxContextFails,
		ContactConfirmEnabled: contactConfirmEnabled,
	}

	cfg.Storage = StorageConfig{
		SQLitePath: getEnv("SQLITE_PATH", ""),
		RedisAddr:  getEnv("REDIS_ADDR", ""),
	}

	calendarTimeout, err := parseDuration(getEnv("CALENDAR_HTTP_TIMEOUT", "2s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CALENDAR_HTTP_TIMEOUT: %w", err)
	}
	cfg.Calendar = CalendarConfig{
		BaseURL: getEnv("CALENDAR_BASE_URL", ""),
		Timeout: calendarTimeout,
	}

	return cfg, nil
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("duration is empty")
	}
	return time.ParseDuration(value)
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

// parseBoolDefault parses an optional boolean with a default value.
func parseBoolDefault(value string, def bool) (bool, error) {
	if value == "" {
		return def, nil
	}
	return strconv.ParseBool(value)
}

// parseIntDefault parses an optional integer with a default value.
func parseIntDefault(value string, def int) (int, error) {
	if value == "" {
		return def, nil
	}
	return strconv.Atoi(value)
}

// parseFloatDefault parses an optional float with a default value.
func parseFloatDefault(value string, def float64) (float64, error) {
	if value == "" {
		return def, nil
	}
	return strconv.ParseFloat(value, 64)
}
