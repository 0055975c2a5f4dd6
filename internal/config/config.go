package config

import (
	"os"
	"strconv"
)

// Config holds the application configuration, loaded from environment
// variables with sensible defaults.
type Config struct {
	Port      string
	CachePath string
	JWTSecret string // empty disables API auth
	Timezone  string // IANA name for the batch-local time view
	RateLimit int    // requests per minute per IP

	// External model endpoint (OpenAI-compatible). Empty APIKey runs
	// the pipeline heuristic-only with prediction disabled.
	APIKey      string
	APIModel    string
	APIBaseURL  string
	Temperature float64

	AssignConcurrency int
	MaxRound          int
}

// Load reads the configuration from the environment.
func Load() *Config {
	return &Config{
		Port:      envOr("PORT", ":8080"),
		CachePath: envOr("MRRA_CACHE_PATH", "./data/cache/artifacts.db"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		Timezone:  envOr("MRRA_TIMEZONE", "UTC"),
		RateLimit: envInt("MRRA_RATE_LIMIT", 120),

		APIKey:      os.Getenv("MRRA_API_KEY"),
		APIModel:    envOr("MRRA_API_MODEL", "qwen-plus"),
		APIBaseURL:  envOr("MRRA_API_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1"),
		Temperature: envFloat("MRRA_API_TEMPERATURE", 0.2),

		AssignConcurrency: envInt("MRRA_ASSIGN_CONCURRENCY", 8),
		MaxRound:          envInt("MRRA_MAX_ROUND", 2),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
