// Package config provides configuration management for the CRM insights
// service. Configuration is loaded from environment variables with sensible
// defaults and validated before the application starts.
//
// Environment Variables:
//
// Application settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - APP_BASE_URL: Public base URL used for OAuth redirects
//
// HubSpot integration:
//   - AUTH_MODE: Credential mode - "oauth" or "static" (default: static)
//   - HUBSPOT_CLIENT_ID: OAuth app client id (required in oauth mode)
//   - HUBSPOT_CLIENT_SECRET: OAuth app client secret (required in oauth mode)
//   - HUBSPOT_REDIRECT_URI: OAuth callback URL (default: APP_BASE_URL/oauth/callback)
//   - HUBSPOT_SCOPES: Space- or comma-separated OAuth scopes
//   - HUBSPOT_WEBHOOK_SECRET: Webhook signing secret (required)
//   - HUBSPOT_PRIVATE_APP_TOKEN: Static token (required in static mode)
//   - HUBSPOT_BASE_URL: Platform API base URL (default: https://api.hubapi.com)
//
// Summarizer:
//   - OPENAI_API_KEY: API key; the deterministic stub is used when empty
//   - OPENAI_MODEL: Model name (default: gpt-4o-mini)
//   - OPENAI_BASE_URL: API base URL (default: https://api.openai.com/v1)
//
// Pipeline:
//   - QUEUE_CAPACITY: Dispatch queue bound (default: 256)
//   - DEDUP_TTL: How long event identities are remembered (default: 24h)
//   - INSIGHT_TTL: How long cached insights are kept (default: 72h)
//   - CACHE_BACKEND: Store backend - "memory" or "redis" (default: memory)
//   - REDIS_ADDRESS: Redis server address (required when CACHE_BACKEND=redis)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Auth modes selecting the credential provider at startup.
const (
	AuthModeOAuth  = "oauth"
	AuthModeStatic = "static"
)

// Config holds all configuration values for the service.
// Load it with Load() and check it with Validate() before use.
type Config struct {
	// Application settings
	Port       string
	LogLevel   string
	AppBaseURL string

	// HubSpot integration
	AuthMode        string
	ClientID        string
	ClientSecret    string
	RedirectURI     string
	Scopes          string
	WebhookSecret   string
	PrivateAppToken string
	HubSpotBaseURL  string

	// Summarizer
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Pipeline settings
	QueueCapacity int
	DedupTTL      time.Duration
	InsightTTL    time.Duration
	CacheBackend  string
	RedisAddress  string
	RedisPassword string
	RedisDB       string
}

// Load creates a new Config instance with values loaded from environment
// variables, falling back to defaults. Call Validate() before use.
func Load() *Config {
	return &Config{
		Port:       getEnv("PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		AppBaseURL: getEnv("APP_BASE_URL", ""),

		AuthMode:        getEnv("AUTH_MODE", AuthModeStatic),
		ClientID:        getEnv("HUBSPOT_CLIENT_ID", ""),
		ClientSecret:    getEnv("HUBSPOT_CLIENT_SECRET", ""),
		RedirectURI:     getEnv("HUBSPOT_REDIRECT_URI", ""),
		Scopes:          getEnv("HUBSPOT_SCOPES", ""),
		WebhookSecret:   getEnv("HUBSPOT_WEBHOOK_SECRET", ""),
		PrivateAppToken: getEnv("HUBSPOT_PRIVATE_APP_TOKEN", ""),
		HubSpotBaseURL:  getEnv("HUBSPOT_BASE_URL", "https://api.hubapi.com"),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		QueueCapacity: getIntEnv("QUEUE_CAPACITY", 256),
		DedupTTL:      getDurationEnv("DEDUP_TTL", 24*time.Hour),
		InsightTTL:    getDurationEnv("INSIGHT_TTL", 72*time.Hour),
		CacheBackend:  getEnv("CACHE_BACKEND", "memory"),
		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks required fields and cross-field dependencies. It should be
// called after Load() and before the server starts.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if c.WebhookSecret == "" {
		return fmt.Errorf("HUBSPOT_WEBHOOK_SECRET environment variable is required")
	}

	switch c.AuthMode {
	case AuthModeOAuth:
		if c.ClientID == "" {
			return fmt.Errorf("HUBSPOT_CLIENT_ID is required when AUTH_MODE=oauth")
		}
		if c.ClientSecret == "" {
			return fmt.Errorf("HUBSPOT_CLIENT_SECRET is required when AUTH_MODE=oauth")
		}
		if c.AppBaseURL == "" && c.RedirectURI == "" {
			return fmt.Errorf("APP_BASE_URL or HUBSPOT_REDIRECT_URI is required when AUTH_MODE=oauth")
		}
	case AuthModeStatic:
		if c.PrivateAppToken == "" {
			return fmt.Errorf("HUBSPOT_PRIVATE_APP_TOKEN is required when AUTH_MODE=static")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be 'oauth' or 'static'")
	}

	switch c.CacheBackend {
	case "memory":
	case "redis":
		if c.RedisAddress == "" {
			return fmt.Errorf("REDIS_ADDRESS is required when CACHE_BACKEND=redis")
		}
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be 'memory' or 'redis'")
	}

	if c.QueueCapacity < 1 {
		return fmt.Errorf("QUEUE_CAPACITY must be a positive number")
	}

	if c.DedupTTL <= 0 || c.InsightTTL <= 0 {
		return fmt.Errorf("DEDUP_TTL and INSIGHT_TTL must be positive durations")
	}

	return nil
}
