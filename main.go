package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"crm-insights/internal/common/cache"
	"crm-insights/internal/common/logging"
	"crm-insights/internal/config"
	"crm-insights/internal/credentials"
	"crm-insights/internal/dispatch"
	"crm-insights/internal/enrichment"
	"crm-insights/internal/events"
	"crm-insights/internal/handlers"
	"crm-insights/internal/hubspot"
	"crm-insights/internal/insightcache"
	"crm-insights/internal/server"
	"crm-insights/internal/signature"
	"crm-insights/internal/summarizer"
	"crm-insights/internal/writeback"
)

func main() {
	_ = godotenv.Load()

	logging.InitGlobalLogger()
	defer logging.MustSync()
	logger := logging.GetGlobalLogger()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", err)
		os.Exit(1)
	}

	store, err := newStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize store", err)
		os.Exit(1)
	}

	provider, oauthHandler := newCredentials(cfg, logger)
	crm := hubspot.NewClient(cfg.HubSpotBaseURL, provider, logger)
	insights := insightcache.New(store, cfg.InsightTTL, logger)
	writer := writeback.NewWriter(crm, logger)
	enricher := enrichment.New(provider, crm, newSummarizer(cfg, logger), writer, insights, logger)

	queue := dispatch.NewQueue(cfg.QueueCapacity, logger)
	queue.Start()
	gate := events.NewGate(store, cfg.DedupTTL, logger)
	verifier := signature.NewVerifier(cfg.WebhookSecret, logger)

	router := handlers.NewRouter(handlers.Deps{
		Webhook: handlers.NewWebhookHandler(verifier, gate, queue, enricher, logger),
		Card:    handlers.NewCardHandler(insights, logger),
		Health:  handlers.NewHealthHandler(queue),
		OAuth:   oauthHandler,
	})

	srv := server.New(router, cfg.Port)
	serverErr := srv.Start()
	logger.Info("Server started",
		logging.Field{Key: "port", Value: cfg.Port},
		logging.Field{Key: "auth_mode", Value: cfg.AuthMode},
		logging.Field{Key: "cache_backend", Value: cfg.CacheBackend},
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info("Shutting down", logging.Field{Key: "signal", Value: sig.String()})
	case err := <-serverErr:
		logger.Error("Server failed", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", err)
	}

	// drain whatever the webhook handler already accepted
	queue.Close()
	logger.Info("Shutdown complete",
		logging.Field{Key: "dropped_jobs", Value: queue.Dropped()},
	)
}

func newStore(cfg *config.Config) (cache.Store, error) {
	if cfg.CacheBackend == "redis" {
		db, err := strconv.Atoi(cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       db,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, err
		}
		return cache.NewRedisStore(client, "crm-insights:"), nil
	}
	return cache.NewLocalStore(cfg.InsightTTL, 10*time.Minute), nil
}

func newCredentials(cfg *config.Config, logger logging.Logger) (credentials.Provider, *handlers.OAuthHandler) {
	if cfg.AuthMode == config.AuthModeStatic {
		return credentials.NewStaticProvider(cfg.PrivateAppToken), nil
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = cfg.AppBaseURL + "/oauth/callback"
	}
	client := credentials.NewOAuthClient(credentials.OAuthClientConfig{
		TokenURL:     cfg.HubSpotBaseURL + "/oauth/v1/token",
		APIBaseURL:   cfg.HubSpotBaseURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  redirectURI,
		Scopes:       cfg.Scopes,
	}, logger)
	provider := credentials.NewOAuthProvider(client, logger)
	return provider, handlers.NewOAuthHandler(client, provider, logger)
}

func newSummarizer(cfg *config.Config, logger logging.Logger) summarizer.Summarizer {
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("No OpenAI API key configured, using the deterministic summarizer")
		return summarizer.NewStub()
	}
	return summarizer.NewOpenAIClient(summarizer.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	}, logger)
}
