package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"accesscore-service/internal/service/oauth"
)

type AppConfig struct {
	// Server
	HTTPAddr    string
	RedisAddr   string
	RedisPass   string
	RedisDB     int
	DatabaseURL string

	// Session tokens
	AppSecret     string
	SessionWindow time.Duration

	// Policy engine
	PolicyEngineURL     string
	PolicyDecisionPath  string
	PolicyEngineTimeout time.Duration

	// Decision cache; zero TTL disables caching entirely
	DecisionCacheTTL time.Duration

	// Audit recent-history bound
	RecentHistoryMax int64

	// Provider token exchange
	Retry  oauth.RetryConfig
	Google oauth.ProviderConfig
	GitHub oauth.ProviderConfig
}

// Load loads environment variables into AppConfig. APP_SECRET has no
// default: session tokens derive their keys from it.
func Load() (AppConfig, error) {
	secret := os.Getenv("APP_SECRET")
	if secret == "" {
		return AppConfig{}, fmt.Errorf("APP_SECRET is required")
	}

	return AppConfig{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8000"),
		RedisAddr:   getEnv("REDIS_ADDR", "redis-accesscore:6379"),
		RedisPass:   getEnv("REDIS_PASS", ""),
		RedisDB:     getEnvInt("REDIS_DB", 0),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		AppSecret:     secret,
		SessionWindow: getEnvDuration("SESSION_WINDOW", 24*time.Hour),

		PolicyEngineURL:     getEnv("POLICY_ENGINE_URL", "http://policy-engine:8181"),
		PolicyDecisionPath:  getEnv("POLICY_DECISION_PATH", "/v1/decision"),
		PolicyEngineTimeout: getEnvDuration("POLICY_ENGINE_TIMEOUT", 3*time.Second),

		DecisionCacheTTL: getEnvDuration("DECISION_CACHE_TTL", 0),
		RecentHistoryMax: int64(getEnvInt("RECENT_HISTORY_MAX", 1000)),

		Retry: oauth.RetryConfig{
			MaxAttempts:    getEnvInt("OAUTH_MAX_ATTEMPTS", 3),
			BaseDelay:      getEnvDuration("OAUTH_BASE_DELAY", 250*time.Millisecond),
			AttemptTimeout: getEnvDuration("OAUTH_ATTEMPT_TIMEOUT", 5*time.Second),
		},
		Google: oauth.ProviderConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
			Scopes:       getEnvSlice("GOOGLE_SCOPES", nil),
		},
		GitHub: oauth.ProviderConfig{
			ClientID:     getEnv("GITHUB_CLIENT_ID", ""),
			ClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GITHUB_REDIRECT_URL", ""),
			Scopes:       getEnvSlice("GITHUB_SCOPES", nil),
		},
	}, nil
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
