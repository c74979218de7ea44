// Package api 组装 HTTP 引擎：全局中间件、业务路由、指标与 Swagger.
package api

import (
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	appcache "github.com/yeisme/cloudvault/pkg/cache"
	"github.com/yeisme/cloudvault/pkg/configs"
	"github.com/yeisme/cloudvault/pkg/internal/handle"
	"github.com/yeisme/cloudvault/pkg/internal/router"
	"github.com/yeisme/cloudvault/pkg/internal/service"
	"github.com/yeisme/cloudvault/pkg/internal/storage/kv"
	"github.com/yeisme/cloudvault/pkg/metrics"
	"github.com/yeisme/cloudvault/pkg/middleware"
)

// statsCacheTTL 统计接口响应缓存时长，上传或删除后最多延迟这么久可见.
const statsCacheTTL = 15 * time.Second

// Deps 引擎依赖.
type Deps struct {
	Config   *configs.AppConfig
	Services *service.Services
	// Cache 响应缓存后端，可为空
	Cache   kv.KVStore
	Handler handle.Options
}

// NewEngine 创建 gin 引擎并注册全部路由.
//
// 中间件顺序：recovery -> cors -> tracing -> metrics -> access log -> 熔断 -> gzip -> 认证 -> 限流.
// 限流放在认证之后，便于按用户维度限流.
func NewEngine(d Deps) *gin.Engine {
	cfg := d.Config

	engine := gin.New()
	engine.MaxMultipartMemory = 32 << 20

	engine.Use(
		gin.Recovery(),
		middleware.CORSMiddleware(cfg.Server),
		middleware.TracingMiddleware(),
		middleware.PrometheusMiddleware(),
		middleware.GinLoggerMiddleware(),
		middleware.CircuitBreakerMiddleware(cfg.CircuitBreaker),
	)

	if cfg.Server.EnableGzip {
		// 上传请求体与重定向无需压缩
		engine.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/upload"})))
	}

	engine.Use(
		middleware.AuthMiddleware(cfg.Auth, d.Services.Auth),
		middleware.RateLimitMiddleware(cfg.RateLimit),
	)

	h := handle.New(cfg, d.Services, d.Handler)

	var statsCache gin.HandlerFunc
	if d.Cache != nil {
		statsCache = middleware.CacheMiddleware(middleware.DefaultCacheConfig(appcache.New(d.Cache, "http", statsCacheTTL)))
	}

	router.Register(engine, h, router.Options{StatsCache: statsCache})
	router.RegisterSwaggerRoute(engine, cfg.Server)

	// 未配置独立监听地址时，指标挂在业务端口上
	if cfg.Metrics.Endpoint == "" {
		_ = metrics.StartMetricsServer(cfg.Metrics, engine)
	}

	return engine
}
