package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	Port              string
	DatabaseURL       string
	JWTSecret         string
	VideoGenBaseURL   string
	VideoGenAPIKey    string
	VideoGenModel     string
	TranslateBaseURL  string
	TranslateAPIKey   string
	TranslateTarget   string
	AlertWebhookURL   string
	VideoCreditCost   int
	PromptMaxChars    int
	SweepInterval     time.Duration
	SweepBatch        int
	RateLimitPerMin   int
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	ProviderTimeout   time.Duration
	TranslateTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		VideoGenBaseURL:  getEnv("VIDEOGEN_BASE_URL", "https://api.videogen.example.com"),
		VideoGenAPIKey:   os.Getenv("VIDEOGEN_API_KEY"),
		VideoGenModel:    getEnv("VIDEOGEN_MODEL", "vgen-1.2"),
		TranslateBaseURL: getEnv("TRANSLATE_BASE_URL", "https://api.translate.example.com"),
		TranslateAPIKey:  os.Getenv("TRANSLATE_API_KEY"),
		TranslateTarget:  getEnv("TRANSLATE_TARGET_LANG", "en"),
		AlertWebhookURL:  os.Getenv("ALERT_WEBHOOK_URL"),
		VideoCreditCost:  getEnvInt("VIDEO_CREDIT_COST", 300),
		PromptMaxChars:   getEnvInt("PROMPT_MAX_CHARS", 2000),
		SweepInterval:    time.Second * time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 15)),
		SweepBatch:       getEnvInt("SWEEP_BATCH", 25),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		ProviderTimeout:  time.Second * time.Duration(getEnvInt("VIDEOGEN_TIMEOUT_SECONDS", 30)),
		TranslateTimeout: time.Second * time.Duration(getEnvInt("TRANSLATE_TIMEOUT_SECONDS", 15)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.VideoCreditCost <= 0 {
		return nil, fmt.Errorf("VIDEO_CREDIT_COST must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
