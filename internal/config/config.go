package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures the API server configuration derived from environment variables.
type Config struct {
	Port              string
	JWTSecret         string
	DBURL             string
	ReadTimeoutSecs   int
	WriteTimeoutSecs  int
	IdleTimeoutSecs   int
	DBMaxConns        int
	DBMinConns        int
	DBMaxIdleSecs     int
	DBMaxLifeSecs     int
	DBConnTimeoutSecs int
	DBStatementCache  int
	MigrationsDir     string
	MigrateOnStart    bool
	RedisURL          string
	ModeratorSetKey   string
	ModeratorIDs      []string
	SupportContact    string
	FanoutTimeoutSecs int
	LogLevel          string
}

// AggregatorConfig configures a notification aggregator session.
type AggregatorConfig struct {
	APIURL           string
	APIToken         string
	APITimeoutSecs   int
	PollIntervalSecs int
	PollTimeoutSecs  int
	EmailWindowSecs  int
	EmailTo          string
	EmailRatePerSec  float64
	EmailBurst       int
	RedisURL         string
	LedgerTTLHours   int
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPass         string
	SMTPFrom         string
	LogLevel         string
}

// ClientConfig configures API consumers such as the moderation CLI.
type ClientConfig struct {
	APIURL         string
	APIToken       string
	APITimeoutSecs int
}

// LoadDotEnv loads variables from the given files (".env" when none are
// named) without overriding the environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the server configuration, applying defaults and validation.
func Load() (Config, error) {
	cfg := Config{
		Port:              getEnv("PORT", "8080"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		DBURL:             os.Getenv("DB_URL"),
		ReadTimeoutSecs:   getEnvInt("SERVER_READ_TIMEOUT", 15),
		WriteTimeoutSecs:  getEnvInt("SERVER_WRITE_TIMEOUT", 15),
		IdleTimeoutSecs:   getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		DBMaxConns:        getEnvInt("DB_MAX_CONNS", 20),
		DBMinConns:        getEnvInt("DB_MIN_CONNS", 2),
		DBMaxIdleSecs:     getEnvInt("DB_MAX_CONN_IDLE_SECS", 300),
		DBMaxLifeSecs:     getEnvInt("DB_MAX_CONN_LIFETIME_SECS", 3600),
		DBConnTimeoutSecs: getEnvInt("DB_CONN_TIMEOUT_SECS", 10),
		DBStatementCache:  getEnvInt("DB_STATEMENT_CACHE_CAPACITY", 256),
		MigrationsDir:     getEnv("MIGRATIONS_DIR", "db/migrations"),
		MigrateOnStart:    getEnvBool("MIGRATE_ON_START", false),
		RedisURL:          os.Getenv("REDIS_URL"),
		ModeratorSetKey:   getEnv("MODERATOR_SET_KEY", "moderators"),
		ModeratorIDs:      getEnvList("MODERATOR_IDS"),
		SupportContact:    getEnv("SUPPORT_CONTACT", "support@example.com"),
		FanoutTimeoutSecs: getEnvInt("FANOUT_TIMEOUT_SECS", 5),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.DBURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required")
	}
	if cfg.RedisURL == "" && len(cfg.ModeratorIDs) == 0 {
		return Config{}, fmt.Errorf("MODERATOR_IDS or REDIS_URL is required")
	}
	if cfg.FanoutTimeoutSecs <= 0 {
		return Config{}, fmt.Errorf("FANOUT_TIMEOUT_SECS must be positive")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}

	return cfg, nil
}

// LoadAggregator reads the aggregator configuration.
func LoadAggregator() (AggregatorConfig, error) {
	cfg := AggregatorConfig{
		APIURL:           os.Getenv("API_URL"),
		APIToken:         os.Getenv("API_TOKEN"),
		APITimeoutSecs:   getEnvInt("API_TIMEOUT_SECS", 5),
		PollIntervalSecs: getEnvInt("POLL_INTERVAL_SECS", 10),
		PollTimeoutSecs:  getEnvInt("POLL_TIMEOUT_SECS", 8),
		EmailWindowSecs:  getEnvInt("EMAIL_WINDOW_SECS", 10),
		EmailTo:          os.Getenv("EMAIL_TO"),
		EmailRatePerSec:  getEnvFloat("EMAIL_RATE_PER_SEC", 1),
		EmailBurst:       getEnvInt("EMAIL_BURST", 5),
		RedisURL:         os.Getenv("REDIS_URL"),
		LedgerTTLHours:   getEnvInt("EMAIL_LEDGER_TTL_HOURS", 168),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         getEnvInt("SMTP_PORT", 587),
		SMTPUser:         os.Getenv("SMTP_USER"),
		SMTPPass:         os.Getenv("SMTP_PASS"),
		SMTPFrom:         getEnv("SMTP_FROM", "alerts@example.com"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	if cfg.APIURL == "" {
		return AggregatorConfig{}, fmt.Errorf("API_URL is required")
	}
	if cfg.APIToken == "" {
		return AggregatorConfig{}, fmt.Errorf("API_TOKEN is required")
	}
	if cfg.PollIntervalSecs <= 0 {
		return AggregatorConfig{}, fmt.Errorf("POLL_INTERVAL_SECS must be positive")
	}
	if cfg.PollTimeoutSecs <= 0 || cfg.PollTimeoutSecs > cfg.PollIntervalSecs {
		return AggregatorConfig{}, fmt.Errorf("POLL_TIMEOUT_SECS must be positive and at most POLL_INTERVAL_SECS")
	}
	if cfg.EmailWindowSecs <= 0 {
		return AggregatorConfig{}, fmt.Errorf("EMAIL_WINDOW_SECS must be positive")
	}
	if cfg.EmailRatePerSec <= 0 {
		return AggregatorConfig{}, fmt.Errorf("EMAIL_RATE_PER_SEC must be positive")
	}
	if cfg.SMTPHost != "" && cfg.EmailTo == "" {
		return AggregatorConfig{}, fmt.Errorf("EMAIL_TO is required when SMTP_HOST is set")
	}

	return cfg, nil
}

// LoadClient reads the API client configuration.
func LoadClient() (ClientConfig, error) {
	cfg := ClientConfig{
		APIURL:         getEnv("API_URL", "http://localhost:8080"),
		APIToken:       os.Getenv("API_TOKEN"),
		APITimeoutSecs: getEnvInt("API_TIMEOUT_SECS", 5),
	}
	if cfg.APIToken == "" {
		return ClientConfig{}, fmt.Errorf("API_TOKEN is required")
	}
	if cfg.APITimeoutSecs <= 0 {
		return ClientConfig{}, fmt.Errorf("API_TIMEOUT_SECS must be positive")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
