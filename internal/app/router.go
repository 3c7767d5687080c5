// internal/app/router.go
package app

import (
	authHandler "accesscore-service/internal/handlers/auth"
	authzHandler "accesscore-service/internal/handlers/authz"
	"accesscore-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	AuthHandler    *authHandler.AuthHandler
	AuthzHandler   *authzHandler.AuthzHandler
	AuthMiddleware *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Public Auth Routes ====================
	authPublic := api.Group("/auth")
	{
		authPublic.GET("/:provider/url", h.AuthHandler.SignInURL)
		authPublic.POST("/:provider/exchange", h.AuthHandler.Exchange)
	}

	// ==================== Authenticated Auth Routes ====================
	authProtected := api.Group("/auth")
	authProtected.Use(h.AuthMiddleware.Auth())
	{
		authProtected.POST("/logout", h.AuthHandler.Logout)
		authProtected.POST("/logout-all", h.AuthHandler.LogoutAll)
		authProtected.POST("/refresh", h.AuthHandler.Refresh)
		authProtected.GET("/me", h.AuthHandler.Me)
	}

	// ==================== Authorization ====================
	authz := api.Group("/authz")
	authz.Use(h.AuthMiddleware.Auth())
	{
		authz.POST("/check", h.AuthzHandler.Check)
		authz.GET("/history", h.AuthzHandler.History)
	}

	// Cache invalidation is an operator action.
	authzAdmin := api.Group("/authz")
	authzAdmin.Use(h.AuthMiddleware.AdminOnly()...)
	{
		authzAdmin.DELETE("/cache/:subject", h.AuthzHandler.InvalidateCache)
	}
}
