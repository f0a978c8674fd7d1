// Package config loads the bot configuration from environment variables.
// Intervals accept human-readable durations like "45s", "30m", "1h" or "7d".
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every runtime setting of the guard bot.
type Config struct {
	BotToken string

	// PostgreSQL connection settings.
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	// Redis connection settings.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Blacklist snapshot sources.
	ExportURL             string
	LolsURL               string
	SourceRefreshInterval time.Duration

	// Detection settings.
	CASBaseURL      string
	CacheTTL        time.Duration
	RecheckInterval time.Duration
	SeenTTL         time.Duration
	HTTPTimeout     time.Duration

	MessageCacheLimit int
	BannedLogPath     string

	// Admin dashboard settings.
	AdminEnabled       bool
	AdminAddr          string
	AdminToken         string
	AdminSessionSecret string
	AdminSessionTTL    time.Duration
}

// Load reads the configuration from the environment. Only BOT_TOKEN is
// mandatory; everything else falls back to a sensible default.
func Load() (*Config, error) {
	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("BOT_TOKEN is not set")
	}

	cfg := &Config{
		BotToken: token,

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "user"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "casguarddb"),
		DBPort:     getEnv("DB_PORT", "5432"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		ExportURL: getEnv("EXPORT_URL", "https://api.cas.chat/export.csv"),
		LolsURL:   getEnv("LOLS_URL", "https://lols.bot/scammers.txt"),

		CASBaseURL: getEnv("CAS_BASE_URL", "https://api.cas.chat"),

		BannedLogPath: getEnv("BANNED_LOG_PATH", "/data/banned.txt"),

		AdminEnabled:       parseBool(os.Getenv("ADMIN_ENABLED")),
		AdminAddr:          getEnv("ADMIN_ADDR", ":9005"),
		AdminToken:         strings.TrimSpace(os.Getenv("ADMIN_TOKEN")),
		AdminSessionSecret: strings.TrimSpace(os.Getenv("ADMIN_SESSION_SECRET")),
	}
	if cfg.AdminSessionSecret == "" {
		cfg.AdminSessionSecret = cfg.AdminToken
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.MessageCacheLimit, err = getEnvInt("MESSAGE_CACHE_LIMIT", 50); err != nil {
		return nil, err
	}

	durations := []struct {
		dst  *time.Duration
		name string
		def  string
	}{
		{&cfg.SourceRefreshInterval, "SOURCE_REFRESH_INTERVAL", "30m"},
		{&cfg.CacheTTL, "CACHE_TTL", "10m"},
		{&cfg.RecheckInterval, "RECHECK_INTERVAL", "15m"},
		{&cfg.SeenTTL, "SEEN_TTL", "7d"},
		{&cfg.HTTPTimeout, "HTTP_TIMEOUT", "7s"},
		{&cfg.AdminSessionTTL, "ADMIN_SESSION_TTL", "12h"},
	}
	for _, d := range durations {
		if *d.dst, err = ParseDuration(getEnv(d.name, d.def)); err != nil {
			return nil, fmt.Errorf("%s: %w", d.name, err)
		}
	}

	return cfg, nil
}

// ParseDuration parses a duration string. In addition to the standard
// time.ParseDuration units it accepts a "d" suffix for days ("7d" == 168h).
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// FormatDuration renders a duration in the compact form used by /status
// replies ("45s", "15m", "6h", "7d").
func FormatDuration(d time.Duration) string {
	secs := int64(d.Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh", secs/3600)
	default:
		return fmt.Sprintf("%dd", secs/86400)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: expected integer, got %q", key, v)
	}
	return n, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
