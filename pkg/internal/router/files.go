package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/cloudvault/pkg/internal/handle"
)

// RegisterFilesRoutes 注册上传与文件操作相关路由.
func RegisterFilesRoutes(g *gin.RouterGroup, h *handle.Handler) {
	// 批量上传，multipart 字段 files[]
	g.POST("/upload", h.Upload)

	filesRoutes := g.Group("/files")
	{
		filesRoutes.GET("", h.ListFiles)

		singleGroup := filesRoutes.Group("/:id")
		{
			singleGroup.GET("", h.GetFile)
			singleGroup.DELETE("", h.DeleteFile)
			singleGroup.GET("/download", h.DownloadFile)
			singleGroup.GET("/thumbnail", h.ThumbnailFile)
			singleGroup.POST("/share", h.CreateShare)
		}
	}
}
