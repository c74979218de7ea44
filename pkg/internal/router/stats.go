package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/cloudvault/pkg/internal/handle"
)

// RegisterStatsRoutes 注册统计相关路由，summary 与 types 挂载响应缓存.
func RegisterStatsRoutes(g *gin.RouterGroup, h *handle.Handler, cache gin.HandlerFunc) {
	statsRoutes := g.Group("/stats")
	{
		statsRoutes.GET("/usage", h.GetUsage)

		cached := statsRoutes.Group("")
		if cache != nil {
			cached.Use(cache)
		}

		cached.GET("/summary", h.GetSummary)
		cached.GET("/types", h.GetTypes)
	}
}
