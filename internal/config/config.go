package config

import (
	"os"
	"strconv"
)

// Config centralizes runtime settings for the pipeline, the worker pool and
// the operational API.
type Config struct {
	Port      string
	AuthToken string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAITimeoutMS  int
	OpenAIMaxRetries int

	OpenRouterAPIKey     string
	OpenRouterBaseURL    string
	OpenRouterTimeoutMS  int
	OpenRouterMaxRetries int
	OpenRouterSiteURL    string
	OpenRouterAppName    string

	DefaultProvider   string
	ProviderRateRPS   float64
	ProviderRateBurst int

	ModelRoutesFile         string
	ModelDefault            string
	ModelDefaultChinese     string
	ModelDefaultPreliminary string

	WorkerEnabled       bool
	WorkerConcurrency   int
	WorkerIdlePollMS    int
	WorkerErrorSleepMS  int
	JobMaxRetries       int
	JobRetryBaseDelayMS int

	PreliminaryEnabled     bool
	PreliminaryMinValue    int
	PreliminaryMaxChars    int
	PreliminaryCacheTTLSec int

	MetricRetentionDays int

	AlertMaxProcessingMS int
	AlertMaxCost         float64
	AlertMaxErrorRate    float64
	AlertMaxBacklog      int

	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() Config {
	return Config{
		Port:      getEnv("PORT", "8080"),
		AuthToken: getEnv("API_AUTH_TOKEN", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisChannel:  getEnv("REDIS_NOTIFY_CHANNEL", "analysis_events"),

		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAITimeoutMS:  getEnvInt("OPENAI_TIMEOUT_MS", 30000),
		OpenAIMaxRetries: getEnvInt("OPENAI_MAX_RETRIES", 2),

		OpenRouterAPIKey:     getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL:    getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterTimeoutMS:  getEnvInt("OPENROUTER_TIMEOUT_MS", 30000),
		OpenRouterMaxRetries: getEnvInt("OPENROUTER_MAX_RETRIES", 2),
		OpenRouterSiteURL:    getEnv("OPENROUTER_SITE_URL", ""),
		OpenRouterAppName:    getEnv("OPENROUTER_APP_NAME", "Feedwise Analyzer"),

		DefaultProvider:   getEnv("PROVIDER_DEFAULT", "openai"),
		ProviderRateRPS:   getEnvFloat("PROVIDER_RATE_RPS", 2),
		ProviderRateBurst: getEnvInt("PROVIDER_RATE_BURST", 4),

		ModelRoutesFile:         getEnv("MODEL_ROUTES_FILE", ""),
		ModelDefault:            getEnv("MODEL_DEFAULT", "gpt-4.1-mini"),
		ModelDefaultChinese:     getEnv("MODEL_DEFAULT_ZH", "qwen-plus"),
		ModelDefaultPreliminary: getEnv("MODEL_DEFAULT_PRELIMINARY", "gpt-4.1-nano"),

		WorkerEnabled:       getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:   getEnvInt("WORKER_CONCURRENCY", 3),
		WorkerIdlePollMS:    getEnvInt("WORKER_IDLE_POLL_MS", 5000),
		WorkerErrorSleepMS:  getEnvInt("WORKER_ERROR_SLEEP_MS", 10000),
		JobMaxRetries:       getEnvInt("JOB_MAX_RETRIES", 3),
		JobRetryBaseDelayMS: getEnvInt("JOB_RETRY_BASE_DELAY_MS", 60000),

		PreliminaryEnabled:     getEnvBool("PRELIMINARY_ENABLED", true),
		PreliminaryMinValue:    getEnvInt("PRELIMINARY_MIN_VALUE", 3),
		PreliminaryMaxChars:    getEnvInt("PRELIMINARY_MAX_CHARS", 2000),
		PreliminaryCacheTTLSec: getEnvInt("PRELIMINARY_CACHE_TTL_SECONDS", 900),

		MetricRetentionDays: getEnvInt("METRIC_RETENTION_DAYS", 30),

		AlertMaxProcessingMS: getEnvInt("ALERT_MAX_PROCESSING_MS", 30000),
		AlertMaxCost:         getEnvFloat("ALERT_MAX_COST", 0.05),
		AlertMaxErrorRate:    getEnvFloat("ALERT_MAX_ERROR_RATE", 0.1),
		AlertMaxBacklog:      getEnvInt("ALERT_MAX_BACKLOG", 100),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
