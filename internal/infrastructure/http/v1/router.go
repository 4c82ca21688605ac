// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"conteo/internal/domain/auth"
	"conteo/internal/domain/count"
	"conteo/internal/infrastructure/http/v1/handlers"
	"conteo/internal/infrastructure/http/v1/middleware"
	"conteo/internal/infrastructure/storage/postgres"
	"conteo/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Pool is the database connection pool (for health checks).
	Pool *postgres.Pool

	// Logger for request logging.
	Logger *logger.Logger

	// JWTValidator for token validation.
	JWTValidator middleware.JWTValidator

	// AuthService for authentication endpoints.
	AuthService *auth.Service

	// CountService drives the count workflow endpoints.
	CountService *count.Service

	// AuditService serves the per-document audit trail (optional).
	AuditService *postgres.AuditService
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	baseHandler := handlers.NewBaseHandler()
	authHandler := handlers.NewAuthHandler(baseHandler, cfg.AuthService)
	countHandler := handlers.NewCountHandler(baseHandler, cfg.CountService, cfg.AuditService)

	v1 := router.Group("/api/v1")
	{
		// Public auth endpoints
		public := v1.Group("/auth")
		{
			public.POST("/login", authHandler.Login)
			public.POST("/refresh", authHandler.Refresh)
		}

		// Everything else requires a valid token
		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))

		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/auth/me", authHandler.Me)

		counts := protected.Group("/counts")
		{
			counts.GET("", countHandler.List)
			counts.GET("/:id", countHandler.Get)
			counts.PUT("/:id", countHandler.Save)

			counts.POST("/:id/materials/:matnr/cases", countHandler.RegisterCase)
			counts.PUT("/:id/materials/:matnr/cases/:case", countHandler.EditCase)
			counts.DELETE("/:id/materials/:matnr/cases/:case", countHandler.DeleteCase)

			counts.POST("/:id/process",
				middleware.RequireRole(auth.RoleSupervisor), countHandler.Process)
			counts.POST("/:id/post",
				middleware.RequireAdmin(), countHandler.Post)

			counts.GET("/:id/audit",
				middleware.RequireRole(auth.RoleSupervisor), countHandler.AuditTrail)
		}

		// Operator management (admin only)
		users := protected.Group("/users")
		users.Use(middleware.RequireAdmin())
		{
			users.POST("", authHandler.CreateUser)
			users.GET("", authHandler.ListUsers)
			users.GET("/:id", authHandler.GetUser)
			users.PUT("/:id", authHandler.UpdateUser)
			users.DELETE("/:id", authHandler.DeactivateUser)
		}
	}

	return router
}
