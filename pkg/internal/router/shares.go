package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/cloudvault/pkg/internal/handle"
)

// RegisterSharesRoutes 注册分享相关路由.
// /shares 需要认证，/shared 为公开访问，认证中间件通过 skip_paths 放行.
func RegisterSharesRoutes(g *gin.RouterGroup, h *handle.Handler) {
	sharesRoutes := g.Group("/shares")
	{
		sharesRoutes.GET("", h.ListShares)
		sharesRoutes.DELETE("/:shareId", h.RevokeShare)
		sharesRoutes.GET("/:shareId/access-log", h.ShareAccessLog)
	}

	sharedRoutes := g.Group("/shared")
	{
		sharedRoutes.GET("/:shareId", h.ResolveShared)
		sharedRoutes.POST("/:shareId/verify", h.VerifyShared)
		sharedRoutes.POST("/:shareId/download", h.DownloadShared)
	}
}
