// Package routes defines the HTTP routes for the Esoteric Oracle service.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/esoteric-oracle/oracle-service/internal/api/guard"
	"github.com/esoteric-oracle/oracle-service/internal/api/handlers"
	"github.com/esoteric-oracle/oracle-service/internal/api/middleware"
)

// Config holds the dependencies for setting up routes.
type Config struct {
	HealthHandler       *handlers.HealthHandler
	AuthHandler         *handlers.AuthHandler
	SessionHandler      *handlers.SessionHandler
	PreferencesHandler  *handlers.PreferencesHandler
	OracleHandler       *handlers.OracleHandler
	InteractionsHandler *handlers.InteractionsHandler
	PagesHandler        *handlers.PagesHandler

	ClientContext *middleware.ClientContextMiddleware
	GuardRules    guard.Rules
}

// Setup configures all routes on the Gin engine.
func Setup(r *gin.Engine, cfg *Config) {
	// Health checks stay outside client context resolution.
	r.GET("/health", cfg.HealthHandler.Health)
	r.GET("/ready", cfg.HealthHandler.Ready)
	r.GET("/live", cfg.HealthHandler.Live)

	app := r.Group("")
	app.Use(cfg.ClientContext.Resolve())
	app.Use(middleware.Guard(cfg.GuardRules, nil))
	{
		// Screens
		app.GET("/", cfg.PagesHandler.Home)
		app.GET("/login", cfg.PagesHandler.Login)
		app.GET("/signup", cfg.PagesHandler.Signup)
		app.GET("/profile", cfg.PagesHandler.Profile)

		// Email links
		app.GET("/auth/callback", cfg.AuthHandler.Callback)

		api := app.Group("/api")
		{
			auth := api.Group("/auth")
			{
				auth.POST("/login", middleware.LoginRateLimit(), cfg.AuthHandler.Login)
				auth.POST("/signup", middleware.LoginRateLimit(), cfg.AuthHandler.Signup)
				auth.POST("/logout", cfg.AuthHandler.Logout)
				auth.POST("/refresh", cfg.AuthHandler.Refresh)
				auth.POST("/reset-password", middleware.LoginRateLimit(), cfg.AuthHandler.ResetPassword)
				auth.POST("/update-password", cfg.AuthHandler.UpdatePassword)
			}

			sess := api.Group("/session")
			{
				sess.GET("", cfg.SessionHandler.Get)
				sess.POST("/activity", cfg.SessionHandler.Activity)
				sess.POST("/continue", cfg.SessionHandler.Continue)
				sess.POST("/extend", cfg.SessionHandler.Extend)
			}

			api.GET("/preferences", cfg.PreferencesHandler.Get)
			api.PUT("/preferences", cfg.PreferencesHandler.Put)

			oracle := api.Group("/oracle")
			{
				oracle.GET("/health", cfg.HealthHandler.Oracle)
				oracle.GET("", cfg.OracleHandler.Current)
				oracle.POST("", cfg.OracleHandler.Ask)
				oracle.DELETE("", cfg.OracleHandler.Cancel)
			}

			interactions := api.Group("/interactions")
			{
				interactions.GET("", cfg.InteractionsHandler.List)
				interactions.PATCH("/:id/favorite", cfg.InteractionsHandler.SetFavorite)
				interactions.DELETE("/:id", cfg.InteractionsHandler.Delete)
			}
		}
	}
}

// SetupWithMiddleware sets up routes with common middleware.
func SetupWithMiddleware(r *gin.Engine, cfg *Config, loggingMw *middleware.LoggingMiddleware, errorMw *middleware.ErrorMiddleware, security middleware.SecurityHeadersConfig, cors middleware.CORSConfig) {
	r.Use(loggingMw.RequestLogger())
	r.Use(loggingMw.Logger())
	r.Use(errorMw.Recovery())
	r.Use(middleware.SecurityHeaders(security))
	r.Use(middleware.NewCORSMiddleware(cors))

	r.NoRoute(middleware.NotFound())
	r.NoMethod(middleware.MethodNotAllowed())
	r.HandleMethodNotAllowed = true

	Setup(r, cfg)
	middleware.SetupCORSRoutes(r, cors)
}
