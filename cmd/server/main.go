// Package main is the entry point for the UnifiedUI Live Chat Service.
// @title UnifiedUI Live Chat Service API
// @version 1.0
// @description Real-time customer chat sessions over websocket with an AI responder per business
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/unifiedui/livechat-service
// @contact.email support@unifiedui.io

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/unifiedui/livechat-service/internal/api/handlers"
	"github.com/unifiedui/livechat-service/internal/api/middleware"
	"github.com/unifiedui/livechat-service/internal/api/protocol"
	"github.com/unifiedui/livechat-service/internal/api/routes"
	"github.com/unifiedui/livechat-service/internal/api/ws"
	"github.com/unifiedui/livechat-service/internal/config"
	corebusiness "github.com/unifiedui/livechat-service/internal/core/business"
	"github.com/unifiedui/livechat-service/internal/core/cache"
	"github.com/unifiedui/livechat-service/internal/core/docdb"
	"github.com/unifiedui/livechat-service/internal/core/responder"
	"github.com/unifiedui/livechat-service/internal/core/vault"
	"github.com/unifiedui/livechat-service/internal/infrastructure/business/gormstore"
	rediscache "github.com/unifiedui/livechat-service/internal/infrastructure/cache/redis"
	"github.com/unifiedui/livechat-service/internal/infrastructure/docdb/mongodb"
	anthropicresponder "github.com/unifiedui/livechat-service/internal/infrastructure/responder/anthropic"
	"github.com/unifiedui/livechat-service/internal/infrastructure/responder/echo"
	"github.com/unifiedui/livechat-service/internal/infrastructure/responder/httpresponder"
	openairesponder "github.com/unifiedui/livechat-service/internal/infrastructure/responder/openai"
	dotenvvault "github.com/unifiedui/livechat-service/internal/infrastructure/vault/dotenv"
	"github.com/unifiedui/livechat-service/internal/services/business"
	"github.com/unifiedui/livechat-service/internal/services/chat/gateway"
	"github.com/unifiedui/livechat-service/internal/services/chat/pipeline"
	"github.com/unifiedui/livechat-service/internal/services/chat/reaper"
	"github.com/unifiedui/livechat-service/internal/services/chat/registry"
	"github.com/unifiedui/livechat-service/internal/services/chat/typing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	setupLogger(cfg.Log)

	ctx := context.Background()

	// Initialize vault using factory pattern
	vaultClient, err := createVault(cfg.Vault)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize vault")
	}
	defer vaultClient.Close()

	// Initialize cache client using factory pattern
	cacheClient, err := createCacheClient(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache client")
	}
	if cacheClient != nil {
		defer cacheClient.Close()
	}

	// Initialize document db client using factory pattern
	docDBClient, err := createDocDBClient(ctx, cfg.DocDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize document db client")
	}
	var archive docdb.MessagesCollection
	if docDBClient != nil {
		defer docDBClient.Close(context.Background())

		if err := docDBClient.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to ensure indexes")
		}
		archive = docDBClient.Messages()
	}

	// Initialize business context store and resolver
	businessStore, err := createBusinessStore(cfg.Business)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize business store")
	}
	defer businessStore.Close()

	businessService, err := business.NewService(&business.Config{
		Store:       businessStore,
		CacheClient: cacheClient,
		TTL:         cfg.Cache.TTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize business service")
	}

	// Initialize responder
	replyBackend, err := createResponder(ctx, cfg.Responder, vaultClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize responder")
	}

	// Chat core
	sessions := registry.New(nil)

	typingCoordinator, err := typing.NewCoordinator(&typing.Config{
		Broadcaster: sessions,
		Timeout:     cfg.Chat.TypingTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize typing coordinator")
	}

	pipelineService, err := pipeline.NewService(&pipeline.Config{
		Registry:         sessions,
		Typing:           typingCoordinator,
		Responder:        replyBackend,
		Resolver:         businessService,
		Archive:          archive,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		HistoryLimit:     cfg.Chat.HistoryLimit,
		ResponderTimeout: cfg.Responder.Timeout,
		QueueSize:        cfg.Chat.QueueSize,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize pipeline")
	}

	chatGateway, err := gateway.New(&gateway.Config{
		Registry:       sessions,
		Pipeline:       pipelineService,
		Typing:         typingCoordinator,
		Resolver:       businessService,
		JoinGrace:      cfg.Chat.JoinGrace,
		ResolveTimeout: cfg.Chat.ResolveTimeout,
		HistoryLimit:   cfg.Chat.HistoryLimit,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize gateway")
	}

	sessionReaper, err := reaper.New(&reaper.Config{
		Registry:   sessions,
		Typing:     typingCoordinator,
		Interval:   cfg.Chat.SweepInterval,
		Inactivity: cfg.Chat.InactivityWindow,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize reaper")
	}
	if err := sessionReaper.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start reaper")
	}

	wsHandler, err := ws.NewHandler(&ws.Config{
		Gateway:        chatGateway,
		SendBuffer:     cfg.Chat.SendBuffer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize websocket handler")
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	// Setup router
	router := gin.New()
	routes.SetupWithMiddleware(router, &routes.Config{
		HealthHandler: handlers.NewHealthHandler(cacheClient, docDBClient, businessStore, sessions, pipelineService),
		SessionsHandler: handlers.NewSessionsHandler(&handlers.SessionsHandlerConfig{
			Sessions:    sessions,
			Typing:      typingCoordinator,
			Terminator:  chatGateway,
			Archive:     archive,
			RecentLimit: cfg.Chat.HistoryLimit,
		}),
		BusinessesHandler: handlers.NewBusinessesHandler(businessService),
		WSHandler:         wsHandler,
		CORS:              middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins),
	}, middleware.NewLoggingMiddleware(), middleware.NewErrorMiddleware())

	// Create HTTP server
	srv := &http.Server{
		Addr:    cfg.Server.Address(),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("address", cfg.Server.Address()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	sessionReaper.Stop()
	chatGateway.Shutdown(protocol.CloseReasonShutdown)
	if err := pipelineService.Drain(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("pipeline did not drain in time")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

// setupLogger configures the global zerolog logger.
func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", "livechat").Logger()
}

// createVault creates a vault based on the configuration.
func createVault(cfg config.VaultConfig) (vault.Vault, error) {
	switch vault.Type(cfg.Type) {
	case vault.TypeDotEnv:
		return dotenvvault.NewVault(), nil
	default:
		return nil, fmt.Errorf("unsupported vault type: %s", cfg.Type)
	}
}

// createCacheClient creates a cache client based on the configuration.
// A nil client disables caching.
func createCacheClient(cfg config.CacheConfig) (cache.Client, error) {
	switch cache.Type(cfg.Type) {
	case cache.TypeRedis:
		return rediscache.NewClient(rediscache.Config{
			Host:       cfg.Host,
			Port:       cfg.Port,
			Password:   cfg.Password,
			DB:         cfg.DB,
			DefaultTTL: cfg.TTL,
		})
	case cache.TypeNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// createDocDBClient creates a document database client based on the configuration.
// A nil client disables the history archive.
func createDocDBClient(ctx context.Context, cfg config.DocDBConfig) (docdb.Client, error) {
	switch docdb.Type(cfg.Type) {
	case docdb.TypeMongoDB, docdb.TypeCosmosDB:
		// CosmosDB uses MongoDB protocol, so we can use the same client
		return mongodb.NewClient(ctx, &mongodb.ClientConfig{
			URI:          cfg.URI,
			DatabaseName: cfg.Database,
		})
	case docdb.TypeNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported docdb type: %s", cfg.Type)
	}
}

// createBusinessStore opens the business context store.
func createBusinessStore(cfg config.BusinessConfig) (corebusiness.Store, error) {
	return gormstore.NewStore(&gormstore.Config{
		Driver: cfg.Driver,
		DSN:    cfg.DSN,
	})
}

// createResponder creates the reply backend. The API key may be a vault reference.
func createResponder(ctx context.Context, cfg config.ResponderConfig, v vault.Vault) (responder.Responder, error) {
	apiKey, err := vault.Resolve(ctx, v, cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve responder API key: %w", err)
	}

	switch responder.Type(cfg.Type) {
	case responder.TypeOpenAI:
		return openairesponder.New(&openairesponder.Config{
			APIKey:  apiKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case responder.TypeAnthropic:
		return anthropicresponder.New(&anthropicresponder.Config{
			APIKey:    apiKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			MaxTokens: int64(cfg.MaxTokens),
		})
	case responder.TypeHTTP:
		return httpresponder.NewClient(&httpresponder.ClientConfig{
			URL:    cfg.BaseURL,
			APIKey: apiKey,
		})
	case responder.TypeEcho:
		return echo.New(), nil
	default:
		return nil, fmt.Errorf("unsupported responder type: %s", cfg.Type)
	}
}
