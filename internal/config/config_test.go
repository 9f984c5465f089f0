package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validStatic() *Config {
	cfg := Load()
	cfg.WebhookSecret = "secret"
	cfg.AuthMode = AuthModeStatic
	cfg.PrivateAppToken = "pat-na1-test"
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, AuthModeStatic, cfg.AuthMode)
	assert.Equal(t, "https://api.hubapi.com", cfg.HubSpotBaseURL)
	assert.Equal(t, "memory", cfg.CacheBackend)
	assert.Equal(t, 256, cfg.QueueCapacity)
	assert.Equal(t, 24*time.Hour, cfg.DedupTTL)
}

func TestValidate_StaticMode(t *testing.T) {
	cfg := validStatic()
	require.NoError(t, cfg.Validate())

	cfg.PrivateAppToken = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RequiresWebhookSecret(t *testing.T) {
	cfg := validStatic()
	cfg.WebhookSecret = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_OAuthMode(t *testing.T) {
	cfg := validStatic()
	cfg.AuthMode = AuthModeOAuth
	assert.Error(t, cfg.Validate(), "missing client credentials")

	cfg.ClientID = "client-id"
	cfg.ClientSecret = "client-secret"
	assert.Error(t, cfg.Validate(), "missing redirect base")

	cfg.AppBaseURL = "https://insights.example.com"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidAuthMode(t *testing.T) {
	cfg := validStatic()
	cfg.AuthMode = "both"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RedisBackend(t *testing.T) {
	cfg := validStatic()
	cfg.CacheBackend = "redis"
	assert.Error(t, cfg.Validate(), "missing address")

	cfg.RedisAddress = "localhost:6379"
	assert.NoError(t, cfg.Validate())

	cfg.RedisDB = "99"
	assert.Error(t, cfg.Validate())
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validStatic()
	cfg.Port = "notaport"
	assert.Error(t, cfg.Validate())
}

func TestValidate_QueueCapacity(t *testing.T) {
	cfg := validStatic()
	cfg.QueueCapacity = 0
	assert.Error(t, cfg.Validate())
}
