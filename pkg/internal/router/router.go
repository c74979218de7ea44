// Package router 管理路由配置，把 /api/v1 下的路径绑定到 handle.Handler.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/cloudvault/pkg/internal/handle"
)

// Options 路由可选项.
type Options struct {
	// StatsCache 统计接口的响应缓存中间件，可为空
	StatsCache gin.HandlerFunc
}

// Register 注册全部业务路由到 /api/v1.
//
//	/auth      注册、登录、当前用户
//	/upload    批量上传
//	/files     文件列表、详情、下载、删除、创建分享
//	/shares    分享管理（所有者）
//	/shared    公开分享访问（免认证）
//	/stats     统计
//	/health    健康检查
//	/scheduler 定时任务
func Register(r *gin.Engine, h *handle.Handler, opts Options) *gin.RouterGroup {
	v1 := r.Group("/api/v1")

	RegisterAuthRoutes(v1, h)
	RegisterFilesRoutes(v1, h)
	RegisterSharesRoutes(v1, h)
	RegisterStatsRoutes(v1, h, opts.StatsCache)
	RegisterHealthCheckRoute(v1, h)
	RegisterSchedulerRoutes(v1, h)

	return v1
}
