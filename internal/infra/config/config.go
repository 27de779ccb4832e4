package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken      string
	DatabaseURL        string
	LogLevel           string
	Environment        string
	CronSpecReminder   string        // Schedule for the reminder check cycle
	ExamMinAge         time.Duration // Staleness guard: minimum exam age before any reminder
	SendDelay          time.Duration // Pause after each direct message, for rate limits
	SendTimeout        time.Duration // Per-send deadline
	MaxConcurrentSends int
	CycleErrorBackoff  time.Duration // Wait after a failed cycle before the next attempt
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.CronSpecReminder = os.Getenv("CRON_SPEC_REMINDER_CHECK")
	if cfg.CronSpecReminder == "" {
		cfg.CronSpecReminder = "@every 1h" // Default: hourly threshold check
	}

	if cfg.ExamMinAge, err = durationEnv("EXAM_MIN_AGE", 2*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SendDelay, err = durationEnv("SEND_DELAY", 50*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.SendTimeout, err = durationEnv("SEND_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.CycleErrorBackoff, err = durationEnv("CYCLE_ERROR_BACKOFF", 5*time.Minute); err != nil {
		return nil, err
	}

	if cfg.MaxConcurrentSends, err = intEnv("MAX_CONCURRENT_SENDS", 20); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentSends < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_SENDS must be at least 1")
	}

	return cfg, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
