// Package middleware 提供 gin 中间件：认证、指标、追踪、限流、熔断、缓存与访问日志.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/cloudvault/pkg/metrics"
)

// PrometheusMiddleware 创建Gin的Prometheus中间件.
// endpoint 使用路由模板（如 /api/v1/files/:id），避免按具体 ID 产生高基数标签.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		metrics.ActiveConnections.Inc()
		defer metrics.ActiveConnections.Dec()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		method := c.Request.Method
		metrics.RequestCounter.WithLabelValues(method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.RequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}
