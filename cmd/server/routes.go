package main

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/tokengate/internal/config"
	"github.com/huangang/tokengate/internal/handlers"
	"github.com/huangang/tokengate/internal/middleware"
	"github.com/huangang/tokengate/internal/models"
	"github.com/huangang/tokengate/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices, cfg *config.Config) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Rate limiter for credential-bearing endpoints
	loginLimiter := middleware.NewRateLimiter(5, 10)

	// Health check
	healthHandler := handlers.NewHealthHandler()
	r.GET("/health", healthHandler.CheckHealth)

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/login", loginLimiter.Middleware(), svc.authHandler.Login)
			auth.GET("/config", svc.authHandler.GetAuthConfig)
		}

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.TokenAuthRequired(svc.tokenService, cfg.Token.AuthHeaderPrefix))
		protected.Use(middleware.AuditLog())
		{
			// Auth
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.POST("/auth/logout-all", svc.authHandler.LogoutAll)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)

			// Token inventory
			protected.GET("/auth/tokens", svc.tokenHandler.List)
			protected.DELETE("/auth/tokens/:id", svc.tokenHandler.Revoke)

			// Audit trail (admin)
			admin := protected.Group("")
			admin.Use(middleware.AdminRequired(svc.authHandler.Service()))
			{
				systemLogHandler := handlers.NewSystemLogHandler(models.GetDB())
				admin.GET("/system-logs", systemLogHandler.List)
			}
		}
	}
}
