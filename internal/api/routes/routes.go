// Package routes defines the HTTP routes for the live chat service.
package routes

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/unifiedui/livechat-service/internal/api/handlers"
	"github.com/unifiedui/livechat-service/internal/api/middleware"
	"github.com/unifiedui/livechat-service/internal/api/ws"
)

// Config holds the dependencies for setting up routes.
type Config struct {
	HealthHandler     *handlers.HealthHandler
	SessionsHandler   *handlers.SessionsHandler
	BusinessesHandler *handlers.BusinessesHandler
	WSHandler         *ws.Handler
	CORS              middleware.CORSConfig
}

// Setup configures all routes on the Gin engine.
func Setup(r *gin.Engine, cfg *Config) {
	// API v1 routes - all routes under /api/v1/chat
	v1 := r.Group("/api/v1/chat")
	{
		v1.GET("/health", cfg.HealthHandler.Health)
		v1.GET("/ready", cfg.HealthHandler.Ready)
		v1.GET("/live", cfg.HealthHandler.Live)

		sessions := v1.Group("/sessions/:sessionId")
		{
			sessions.GET("", cfg.SessionsHandler.GetSession)
			sessions.DELETE("", cfg.SessionsHandler.DeleteSession)
			sessions.GET("/history", cfg.SessionsHandler.GetHistory)
		}

		businesses := v1.Group("/businesses")
		{
			businesses.GET("", cfg.BusinessesHandler.ListBusinesses)
			businesses.GET("/:businessId", cfg.BusinessesHandler.GetBusiness)
			businesses.PUT("/:businessId", cfg.BusinessesHandler.SaveBusiness)
			businesses.DELETE("/:businessId", cfg.BusinessesHandler.DeleteBusiness)
		}
	}

	// Websocket endpoint; the origin check happens during the upgrade.
	r.GET("/ws", cfg.WSHandler.Serve)

	// Swagger documentation endpoint
	r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.NoRoute(middleware.NotFound())
	r.NoMethod(middleware.MethodNotAllowed())
}

// SetupWithMiddleware sets up routes with common middleware.
func SetupWithMiddleware(r *gin.Engine, cfg *Config, loggingMw *middleware.LoggingMiddleware, errorMw *middleware.ErrorMiddleware) {
	// Apply global middleware
	r.Use(loggingMw.Logger())
	r.Use(loggingMw.RequestLogger())
	r.Use(errorMw.Recovery())
	r.Use(middleware.NewCORSMiddleware(cfg.CORS))

	middleware.SetupCORSRoutes(r, cfg.CORS)

	// Setup routes
	Setup(r, cfg)
}
