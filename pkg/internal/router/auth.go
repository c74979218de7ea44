package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/cloudvault/pkg/internal/handle"
)

// RegisterAuthRoutes 注册账户相关路由.
func RegisterAuthRoutes(g *gin.RouterGroup, h *handle.Handler) {
	authRoutes := g.Group("/auth")
	{
		authRoutes.POST("/signup", h.Signup)
		authRoutes.POST("/login", h.Login)
		authRoutes.GET("/me", h.Me)
	}
}
