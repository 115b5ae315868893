package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the confirmation worker configuration loaded from the
// environment.
type Config struct {
	AppName   string
	LogLevel  string
	LogFormat string
	HTTPPort  string

	RabbitURL       string
	DepositQueue    string
	ResultQueue     string
	DeadLetterQueue string
	PrefetchCount   int
	WorkerCount     int
	MaxDeliveries   int

	RedisURL string

	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
	OAuthURL       string
	PushURL        string
	QueryURL       string
	CountryCode    string
	GatewayTimeout time.Duration

	TokenSafetyMargin time.Duration
	MaxAttempts       int
	PollInterval      time.Duration
	RateLimitInterval time.Duration

	PendingPatternsFile string
	PendingPatterns     []string

	PublishMaxAttempts    int
	PublishInitialBackoff time.Duration
	PublishMaxBackoff     time.Duration
}

// Load loads configuration and performs basic validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:   getEnv("APP_NAME", "deposit_confirmation"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		HTTPPort:  getEnv("HTTP_PORT", "8084"),

		RabbitURL:       getEnv("RABBITMQ_URL", ""),
		DepositQueue:    getEnv("DEPOSIT_QUEUE", "deposit.confirm.queue"),
		ResultQueue:     getEnv("RESULT_QUEUE", "deposit.result.queue"),
		DeadLetterQueue: getEnv("DEPOSIT_DLQ", "deposit.failed.queue"),
		PrefetchCount:   getEnvAsInt("DEPOSIT_PREFETCH", 50),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 5),
		MaxDeliveries:   getEnvAsInt("MAX_DELIVERIES", 5),

		RedisURL: getEnv("REDIS_URL", ""),

		ConsumerKey:    getEnv("DARAJA_CONSUMER_KEY", ""),
		ConsumerSecret: getEnv("DARAJA_CONSUMER_SECRET", ""),
		Shortcode:      getEnv("DARAJA_SHORTCODE", ""),
		Passkey:        getEnv("DARAJA_PASSKEY", ""),
		CallbackURL:    getEnv("DARAJA_CALLBACK_URL", ""),
		OAuthURL:       getEnv("DARAJA_OAUTH_URL", ""),
		PushURL:        getEnv("DARAJA_PUSH_URL", ""),
		QueryURL:       getEnv("DARAJA_QUERY_URL", ""),
		CountryCode:    getEnv("DARAJA_COUNTRY_CODE", "254"),
		GatewayTimeout: getEnvAsDuration("DARAJA_TIMEOUT", 30*time.Second),

		TokenSafetyMargin: getEnvAsDuration("TOKEN_SAFETY_MARGIN", 100*time.Second),
		MaxAttempts:       getEnvAsInt("CONFIRM_MAX_ATTEMPTS", 30),
		PollInterval:      getEnvAsDuration("CONFIRM_POLL_INTERVAL", 15*time.Second),
		RateLimitInterval: getEnvAsDuration("CONFIRM_RATE_LIMIT_INTERVAL", 20*time.Second),

		PendingPatternsFile: getEnv("PENDING_PATTERNS_FILE", ""),

		PublishMaxAttempts:    getEnvAsInt("PUBLISH_MAX_ATTEMPTS", 4),
		PublishInitialBackoff: getEnvAsDuration("PUBLISH_INITIAL_BACKOFF", time.Second),
		PublishMaxBackoff:     getEnvAsDuration("PUBLISH_MAX_BACKOFF", 15*time.Second),
	}

	if cfg.PendingPatternsFile != "" {
		patterns, err := loadPendingPatterns(cfg.PendingPatternsFile)
		if err != nil {
			return nil, err
		}
		cfg.PendingPatterns = patterns
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.RabbitURL == "" {
		missing = append(missing, "RABBITMQ_URL")
	}
	if c.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if c.ConsumerKey == "" {
		missing = append(missing, "DARAJA_CONSUMER_KEY")
	}
	if c.ConsumerSecret == "" {
		missing = append(missing, "DARAJA_CONSUMER_SECRET")
	}
	if c.Shortcode == "" {
		missing = append(missing, "DARAJA_SHORTCODE")
	}
	if c.Passkey == "" {
		missing = append(missing, "DARAJA_PASSKEY")
	}
	if c.CallbackURL == "" {
		missing = append(missing, "DARAJA_CALLBACK_URL")
	}
	if c.OAuthURL == "" {
		missing = append(missing, "DARAJA_OAUTH_URL")
	}
	if c.PushURL == "" {
		missing = append(missing, "DARAJA_PUSH_URL")
	}
	if c.QueryURL == "" {
		missing = append(missing, "DARAJA_QUERY_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	if c.RateLimitInterval <= c.PollInterval {
		return fmt.Errorf("CONFIRM_RATE_LIMIT_INTERVAL (%s) must be longer than CONFIRM_POLL_INTERVAL (%s)",
			c.RateLimitInterval, c.PollInterval)
	}
	return nil
}

// loadPendingPatterns reads the "still processing" phrase list from a
// YAML file so the match list can change without a redeploy.
func loadPendingPatterns(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pending patterns: %w", err)
	}
	var doc struct {
		PendingPatterns []string `yaml:"pending_patterns"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse pending patterns: %w", err)
	}
	return doc.PendingPatterns, nil
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}
