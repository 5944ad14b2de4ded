package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderMistral = "mistral"
	ProviderOllama  = "ollama"

	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	HTTPAddr string

	// AI provider
	AIProvider     string
	MistralAPIKey  string
	MistralBaseURL string
	OllamaBaseURL  string
	DefaultModel   string
	Temperature    float64
	MaxTokens      int

	// client side
	ChatAPIURL   string
	StoreBackend string
	StoreKey     string

	DBDSN         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CatalogCacheTTL time.Duration

	// rabbitMQ
	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int

	LogDir           string
	LogLevel         string
	TelemetryEnabled bool
}

func Load() Config {
	return Config{
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),

		AIProvider:     strings.ToLower(envOr("AI_PROVIDER", ProviderMistral)),
		MistralAPIKey:  strings.TrimSpace(os.Getenv("MISTRAL_API_KEY")),
		MistralBaseURL: envOr("MISTRAL_BASE_URL", "https://api.mistral.ai/v1"),
		OllamaBaseURL:  envOr("OLLAMA_BASE_URL", "http://localhost:11434"),
		DefaultModel:   envOr("DEFAULT_MODEL", "mistral-large-latest"),
		Temperature:    envFloat("CHAT_TEMPERATURE", 0.7),
		MaxTokens:      envInt("CHAT_MAX_TOKENS", 1000),

		ChatAPIURL:   envOr("CHAT_API_URL", "http://localhost:8080"),
		StoreBackend: strings.ToLower(envOr("STORE_BACKEND", BackendSQLite)),
		StoreKey:     envOr("STORE_KEY", "mistral-chat-sessions"),

		DBDSN:         envOr("DB_DSN", "sqlite:chat.db"),
		RedisAddr:     envOr("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		CatalogCacheTTL: envDuration("CATALOG_CACHE_TTL", 5*time.Minute),

		RabbitURL:         os.Getenv("RABBIT_URL"),
		RabbitQueue:       envOr("RABBIT_QUEUE", "chat_exchanges"),
		WorkerConcurrency: clamp(envInt("WORKER_CONCURRENCY", 2), 1, 50),

		LogDir:           envOr("LOG_DIR", "logs"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		TelemetryEnabled: envBool("TELEMETRY_ENABLED", false),
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
