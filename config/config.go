package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goodsign/monday"
	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Session  SessionConfig
	Stream   StreamConfig
	Stats    StatsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int // 0 disables the write deadline; streams stay open for hours
	ShutdownTimeout    int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings. Redis only carries wake-up
// signals, so the service runs without it when disabled.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// SessionConfig describes the session cookie carrying the JWT.
type SessionConfig struct {
	CookieName   string
	CookieDomain string
	CookieSecure bool
}

// StreamConfig holds cadence and failure policy for event streams.
type StreamConfig struct {
	StatsPollInterval        time.Duration
	NotificationPollInterval time.Duration
	HeartbeatInterval        time.Duration
	// MaxConsecutiveFailures closes a stream after that many failed polls in a
	// row. Zero keeps polling forever at the normal cadence.
	MaxConsecutiveFailures int
	NotificationLimit      int
}

// StatsConfig controls how the dashboard histogram is bucketed and labeled.
type StatsConfig struct {
	TimeZone string
	Locale   string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Location resolves the configured time zone. The name is also handed to
// PostgreSQL, so it must be an IANA name rather than the host's "Local".
func (c StatsConfig) Location() (*time.Location, error) {
	switch c.TimeZone {
	case "":
		return time.UTC, nil
	case "Local":
		return nil, errors.New(`"Local" is not an IANA time zone name`)
	}
	return time.LoadLocation(c.TimeZone)
}

// FormatLocale resolves the configured locale for weekday labels. Both
// "de-DE" and "de_DE" are accepted. A bare language such as "de" picks its
// home region, or the first supported region when there is none.
func (c StatsConfig) FormatLocale() (monday.Locale, error) {
	name := strings.ReplaceAll(c.Locale, "-", "_")
	if name == "" {
		return monday.LocaleEnUS, nil
	}
	if strings.EqualFold(name, "en") {
		return monday.LocaleEnUS, nil
	}

	var candidates []monday.Locale
	for _, l := range monday.ListLocales() {
		if strings.EqualFold(string(l), name) {
			return l, nil
		}
		lang, _, _ := strings.Cut(string(l), "_")
		if strings.EqualFold(lang, name) {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("unsupported locale %q", c.Locale)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	home := strings.ToLower(name) + "_" + strings.ToUpper(name)
	for _, l := range candidates {
		if string(l) == home {
			return l, nil
		}
	}
	return candidates[0], nil
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 0),
			ShutdownTimeout:    getEnvInt("SHUTDOWN_TIMEOUT_SEC", 15),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "quillpress"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24*7),
		},
		Session: SessionConfig{
			CookieName:   getEnv("SESSION_COOKIE_NAME", "token"),
			CookieDomain: getEnv("SESSION_COOKIE_DOMAIN", ""),
			CookieSecure: getEnvBool("SESSION_COOKIE_SECURE", false),
		},
		Stream: StreamConfig{
			StatsPollInterval:        getEnvDuration("STREAM_STATS_POLL_INTERVAL", 10*time.Second),
			NotificationPollInterval: getEnvDuration("STREAM_NOTIFICATION_POLL_INTERVAL", 5*time.Second),
			HeartbeatInterval:        getEnvDuration("STREAM_HEARTBEAT_INTERVAL", 15*time.Second),
			MaxConsecutiveFailures:   getEnvInt("STREAM_MAX_CONSECUTIVE_FAILURES", 0),
			NotificationLimit:        getEnvInt("STREAM_NOTIFICATION_LIMIT", 20),
		},
		Stats: StatsConfig{
			TimeZone: getEnv("STATS_TIMEZONE", "UTC"),
			Locale:   getEnv("STATS_LOCALE", "en_US"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.Stream.StatsPollInterval <= 0 || c.Stream.NotificationPollInterval <= 0 || c.Stream.HeartbeatInterval <= 0 {
		return errors.New("stream intervals must be positive")
	}
	if c.Stream.MaxConsecutiveFailures < 0 {
		return errors.New("STREAM_MAX_CONSECUTIVE_FAILURES must not be negative")
	}
	if c.Stream.NotificationLimit <= 0 {
		return errors.New("STREAM_NOTIFICATION_LIMIT must be positive")
	}
	if _, err := c.Stats.Location(); err != nil {
		return fmt.Errorf("STATS_TIMEZONE: %w", err)
	}
	if _, err := c.Stats.FormatLocale(); err != nil {
		return fmt.Errorf("STATS_LOCALE: %w", err)
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("15s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
