package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Development bool
	// API configuration
	APIPort int
	// Postgres configuration
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string

	// Fanvue API configuration
	FanvueAPIURL       string
	FanvueAuthURL      string
	FanvueTokenURL     string
	FanvueAPIVersion   string
	FanvueClientID     string
	FanvueClientSecret string
	FanvueRedirectURL  string
	FanvueScopes       []string
	// ConnectedRedirectURL receives the browser after a successful connect.
	ConnectedRedirectURL string
	// Rate-limit header names are upstream specific and treated as opaque.
	RateLimitLimitHeader     string
	RateLimitRemainingHeader string
	RateLimitResetHeader     string
	MaxRateLimitRetries      int
	FanvueRequestsPerSecond  float64

	// Sync configuration
	SyncStaleness      time.Duration
	SyncBatchSize      int
	SyncItemDelay      time.Duration
	SyncOverlap        time.Duration
	MaxPages           int
	PageSize           int
	TokenRefreshWindow time.Duration
	TokenExpiryBuffer  time.Duration
	JobTimeout         time.Duration

	// Queue configuration
	QueueBatchSize   int
	QueueMaxAttempts int
	QueueRetryDelay  time.Duration
	QueueMinPause    time.Duration
	QueueMaxPause    time.Duration

	// Checks configuration
	LateShiftGrace  time.Duration
	MissedPostGrace time.Duration

	// Security configuration
	CronSecret    string
	WebhookSecret string

	// Cache configuration
	CacheSize  int
	CacheTTL   time.Duration
	RedisAddr  string
	RedisDB    int
	RedisToken string

	// Notification configuration
	TelegramBotToken string
	TelegramChatIDs  []string

	// CronEnabled runs jobs in-process instead of waiting for external triggers.
	CronEnabled bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:      getEnvAsBool("DEVELOPMENT", false),
		APIPort:          getEnvAsInt("API_PORT", 8080),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "onyx"),

		FanvueAPIURL:       getEnv("FANVUE_API_URL", "https://api.fanvue.com"),
		FanvueAuthURL:      getEnv("FANVUE_AUTH_URL", "https://auth.fanvue.com/oauth2/auth"),
		FanvueTokenURL:     getEnv("FANVUE_TOKEN_URL", "https://auth.fanvue.com/oauth2/token"),
		FanvueAPIVersion:   getEnv("FANVUE_API_VERSION", "2025-06-26"),
		FanvueClientID:     getEnv("FANVUE_CLIENT_ID", ""),
		FanvueClientSecret: getEnv("FANVUE_CLIENT_SECRET", ""),
		FanvueRedirectURL:  getEnv("FANVUE_REDIRECT_URL", "http://localhost:8080/oauth/fanvue/callback"),
		FanvueScopes:       getEnvAsList("FANVUE_SCOPES", []string{"openid", "offline_access", "read:self", "read:creator", "read:insights", "write:chat"}),

		ConnectedRedirectURL: getEnv("CONNECTED_REDIRECT_URL", ""),

		RateLimitLimitHeader:     getEnv("RATE_LIMIT_LIMIT_HEADER", "X-RateLimit-Limit"),
		RateLimitRemainingHeader: getEnv("RATE_LIMIT_REMAINING_HEADER", "X-RateLimit-Remaining"),
		RateLimitResetHeader:     getEnv("RATE_LIMIT_RESET_HEADER", "X-RateLimit-Reset"),
		MaxRateLimitRetries:      getEnvAsInt("MAX_RATE_LIMIT_RETRIES", 3),
		FanvueRequestsPerSecond:  getEnvAsFloat("FANVUE_REQUESTS_PER_SECOND", 5),

		SyncStaleness:      getEnvAsDuration("SYNC_STALENESS", time.Hour),
		SyncBatchSize:      getEnvAsInt("SYNC_BATCH_SIZE", 50),
		SyncItemDelay:      getEnvAsDuration("SYNC_ITEM_DELAY", 2*time.Second),
		SyncOverlap:        getEnvAsDuration("SYNC_OVERLAP", 24*time.Hour),
		MaxPages:           getEnvAsInt("SYNC_MAX_PAGES", 200),
		PageSize:           getEnvAsInt("SYNC_PAGE_SIZE", 50),
		TokenRefreshWindow: getEnvAsDuration("TOKEN_REFRESH_WINDOW", 30*time.Minute),
		TokenExpiryBuffer:  getEnvAsDuration("TOKEN_EXPIRY_BUFFER", 5*time.Minute),
		JobTimeout:         getEnvAsDuration("JOB_TIMEOUT", 300*time.Second),

		QueueBatchSize:   getEnvAsInt("QUEUE_BATCH_SIZE", 20),
		QueueMaxAttempts: getEnvAsInt("QUEUE_MAX_ATTEMPTS", 3),
		QueueRetryDelay:  getEnvAsDuration("QUEUE_RETRY_DELAY", 5*time.Minute),
		QueueMinPause:    getEnvAsDuration("QUEUE_MIN_PAUSE", time.Second),
		QueueMaxPause:    getEnvAsDuration("QUEUE_MAX_PAUSE", 5*time.Second),

		LateShiftGrace:  getEnvAsDuration("LATE_SHIFT_GRACE", 15*time.Minute),
		MissedPostGrace: getEnvAsDuration("MISSED_POST_GRACE", 30*time.Minute),

		CronSecret:    getEnv("CRON_SECRET", ""),
		WebhookSecret: getEnv("FANVUE_WEBHOOK_SECRET", ""),

		CacheSize:  getEnvAsInt("CACHE_SIZE", 1024),
		CacheTTL:   getEnvAsDuration("CACHE_TTL", 5*time.Minute),
		RedisAddr:  getEnv("REDIS_ADDR", ""),
		RedisDB:    getEnvAsInt("REDIS_DB", 0),
		RedisToken: getEnv("REDIS_PASSWORD", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatIDs:  getEnvAsList("TELEGRAM_ALERT_CHAT_IDS", nil),

		CronEnabled: getEnvAsBool("CRON_ENABLED", false),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.FanvueClientID == "" {
		return fmt.Errorf("FANVUE_CLIENT_ID is required")
	}

	if c.FanvueClientSecret == "" {
		return fmt.Errorf("FANVUE_CLIENT_SECRET is required")
	}

	if c.FanvueAPIURL == "" || c.FanvueTokenURL == "" {
		return fmt.Errorf("FANVUE_API_URL and FANVUE_TOKEN_URL are required")
	}

	if c.CronSecret == "" {
		return fmt.Errorf("CRON_SECRET is required")
	}

	if c.PostgresDB == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}

	if c.MaxPages <= 0 {
		return fmt.Errorf("SYNC_MAX_PAGES must be positive")
	}

	if c.QueueMaxPause < c.QueueMinPause {
		return fmt.Errorf("QUEUE_MAX_PAUSE must not be lower than QUEUE_MIN_PAUSE")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsFloat(name string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping empty entries.
func getEnvAsList(name string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(name)
	if !exists {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
