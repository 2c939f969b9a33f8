// Package main is the entry point for the Esoteric Oracle service.
// @title Esoteric Oracle API
// @version 1.0
// @description Session lifecycle and streaming oracle backend for the Esoteric Oracle web client
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/esoteric-oracle/oracle-service

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey SessionCookie
// @in cookie
// @name sb-access-token
// @description Access token cookie set by /api/auth/login
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

	"github.com/common-nighthawk/go-figure"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/esoteric-oracle/oracle-service/docs"
	"github.com/esoteric-oracle/oracle-service/internal/api/guard"
	"github.com/esoteric-oracle/oracle-service/internal/api/handlers"
	"github.com/esoteric-oracle/oracle-service/internal/api/middleware"
	"github.com/esoteric-oracle/oracle-service/internal/api/routes"
	"github.com/esoteric-oracle/oracle-service/internal/config"
	"github.com/esoteric-oracle/oracle-service/internal/core/cache"
	"github.com/esoteric-oracle/oracle-service/internal/core/completion"
	"github.com/esoteric-oracle/oracle-service/internal/core/docdb"
	"github.com/esoteric-oracle/oracle-service/internal/core/vault"
	rediscache "github.com/esoteric-oracle/oracle-service/internal/infrastructure/cache/redis"
	"github.com/esoteric-oracle/oracle-service/internal/infrastructure/completion/httpstream"
	"github.com/esoteric-oracle/oracle-service/internal/infrastructure/completion/openai"
	"github.com/esoteric-oracle/oracle-service/internal/infrastructure/docdb/mongodb"
	dotenvvault "github.com/esoteric-oracle/oracle-service/internal/infrastructure/vault/dotenv"
	"github.com/esoteric-oracle/oracle-service/internal/pkg/encryption"
	"github.com/esoteric-oracle/oracle-service/internal/pkg/logging"
	"github.com/esoteric-oracle/oracle-service/internal/services/clientctx"
	"github.com/esoteric-oracle/oracle-service/internal/services/identity"
	"github.com/esoteric-oracle/oracle-service/internal/services/identity/gotrue"
	"github.com/esoteric-oracle/oracle-service/internal/services/lifecycle"
	"github.com/esoteric-oracle/oracle-service/internal/services/session"
)

const appName = "oracle"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure logging")
	}
	defer logCloser.Close()

	printBanner()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize vault client using factory pattern
	vaultClient, err := createVault(cfg.Vault)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize vault")
	}
	defer vaultClient.Close()

	if err := resolveSecrets(ctx, cfg, vaultClient); err != nil {
		log.Fatal().Err(err).Msg("failed to resolve secrets")
	}

	// Initialize cache client using factory pattern
	cacheClient, err := createCacheClient(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache client")
	}
	defer cacheClient.Close()

	// Initialize document db client using factory pattern
	docDBClient, err := createDocDBClient(ctx, cfg.DocDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize document db client")
	}
	defer docDBClient.Close(context.Background())

	// Ensure database indexes
	if err := docDBClient.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to ensure indexes")
	}

	encryptor, err := createEncryptor(cfg.Vault)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize encryptor")
	}

	completionClient, err := createCompletionClient(cfg.Completion)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize completion client")
	}
	defer completionClient.Close()
	if missing := cfg.Completion.MissingVars(); len(missing) > 0 {
		log.Warn().Strs("missing", missing).Msg("completion backend is not fully configured")
	}

	// Auth events from other instances arrive through the cache relay.
	bus := identity.NewBus(cacheClient, encryptor)
	go func() {
		if err := bus.Run(ctx); err != nil {
			log.Error().Err(err).Msg("auth event relay stopped")
		}
	}()

	backend, err := gotrue.Shared(gotrue.Config{
		URL:     cfg.Identity.URL,
		AnonKey: cfg.Identity.AnonKey,
		SiteURL: cfg.Identity.SiteURL,
		Bus:     bus,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize identity backend")
	}

	fallback, err := session.NewFallbackStore(&session.FallbackConfig{
		CacheClient: cacheClient,
		Encryptor:   encryptor,
		TTL:         cfg.Session.RefreshTokenTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token fallback")
	}
	cookies := session.NewCookiePolicy(cfg.Session.SecureCookies)

	activity, err := lifecycle.NewCacheActivityStore(cacheClient, cfg.Session.ActivityTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize activity store")
	}

	registry, err := clientctx.NewRegistry(&clientctx.Dependencies{
		Backend:      backend,
		Tokens:       session.NewTokens(cookies, fallback),
		Activity:     activity,
		Completion:   completionClient,
		Interactions: docDBClient.Interactions(),
		Session:      cfg.Session,
		Identity:     cfg.Identity,
		Oracle:       cfg.Oracle,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize client contexts")
	}
	defer registry.Close()
	go registry.Run(ctx)

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	router := setupRouter(cfg, cacheClient, docDBClient, completionClient, registry, cookies)

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Address()).Str("env", cfg.Server.Environment).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Unmount monitors and cancel open streams before draining connections.
	registry.Close()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func printBanner() {
	banner := figure.NewFigure(appName, "cybermedium", true)
	fmt.Println(banner.String())
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

// resolveSecrets fills secrets left empty in the environment from the vault.
func resolveSecrets(ctx context.Context, cfg *config.Config, v vault.Vault) error {
	secrets := []struct {
		key    string
		target *string
	}{
		{"IDENTITY_ANON_KEY", &cfg.Identity.AnonKey},
		{"IDENTITY_JWT_SECRET", &cfg.Identity.JWTSecret},
		{"LLM_API_KEY", &cfg.Completion.APIKey},
		{"SECRETS_ENCRYPTION_KEY", &cfg.Vault.EncryptionKey},
	}
	for _, s := range secrets {
		value, err := vault.Resolve(ctx, v, *s.target, s.key)
		if err != nil {
			return err
		}
		*s.target = value
	}
	return nil
}

// createCacheClient creates a cache client based on the configuration.
func createCacheClient(cfg config.CacheConfig) (cache.Client, error) {
	switch cache.Type(cfg.Type) {
	case cache.TypeRedis:
		return rediscache.NewClient(rediscache.Config{
			Host:           cfg.Host,
			Port:           cfg.Port,
			Password:       cfg.Password,
			DB:             cfg.DB,
			DefaultTTL:     cfg.TTL,
			KeyPrefix:      cfg.KeyPrefix,
			ConnectTimeout: cfg.ConnectTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// createDocDBClient creates a document database client based on the configuration.
func createDocDBClient(ctx context.Context, cfg config.DocDBConfig) (docdb.Client, error) {
	switch docdb.Type(cfg.Type) {
	case docdb.TypeMongoDB:
		return mongodb.NewClient(ctx, &mongodb.ClientConfig{
			URI:            cfg.URI,
			DatabaseName:   cfg.Database,
			AppName:        appName,
			ConnectTimeout: cfg.ConnectTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported docdb type: %s", cfg.Type)
	}
}

// createEncryptor seals cached tokens and relayed auth events.
func createEncryptor(cfg config.VaultConfig) (encryption.Encryptor, error) {
	if cfg.EncryptionKey == "" {
		log.Warn().Msg("SECRETS_ENCRYPTION_KEY not set, using NoOp encryptor")
		return encryption.NewNoOpEncryptor(), nil
	}
	return encryption.NewAESEncryptor(cfg.EncryptionKey)
}

// createCompletionClient creates the completion source based on the configuration.
func createCompletionClient(cfg config.CompletionConfig) (completion.Client, error) {
	switch cfg.Type {
	case "http":
		return httpstream.NewClient(&httpstream.Config{
			URL:    cfg.URL,
			APIKey: cfg.APIKey,
		})
	case "openai":
		return openai.NewClient(&openai.Config{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.APIBase,
			Model:        cfg.Model,
			SystemPrompt: cfg.SystemPrompt,
			Temperature:  cfg.Temperature,
			MaxTokens:    cfg.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unsupported completion type: %s", cfg.Type)
	}
}

// setupRouter creates and configures the Gin router.
func setupRouter(
	cfg *config.Config,
	cacheClient cache.Client,
	docDBClient docdb.Client,
	completionClient completion.Client,
	registry *clientctx.Registry,
	cookies session.CookiePolicy,
) *gin.Engine {
	router := gin.New()

	// Create middleware
	loggingMw := middleware.NewLoggingMiddleware()
	errorMw := middleware.NewErrorMiddleware()
	security := middleware.DefaultSecurityHeaders(connectSources(cfg), cfg.Server.IsProduction())
	cors := middleware.DefaultCORSConfig(cfg.Server.CORSOrigins)

	routesCfg := &routes.Config{
		HealthHandler:       handlers.NewHealthHandler(cacheClient, docDBClient, completionClient, cfg.Completion),
		AuthHandler:         handlers.NewAuthHandler(cookies, nil),
		SessionHandler:      handlers.NewSessionHandler(nil),
		PreferencesHandler:  handlers.NewPreferencesHandler(cookies),
		OracleHandler:       handlers.NewOracleHandler(nil),
		InteractionsHandler: handlers.NewInteractionsHandler(),
		PagesHandler:        handlers.NewPagesHandler(),
		ClientContext:       middleware.NewClientContextMiddleware(registry, cookies),
		GuardRules:          guard.DefaultRules(),
	}

	routes.SetupWithMiddleware(router, routesCfg, loggingMw, errorMw, security, cors)

	// Swagger documentation endpoint
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return router
}

// connectSources lists the origins the browser may call besides this service.
func connectSources(cfg *config.Config) string {
	return cfg.Identity.URL
}
