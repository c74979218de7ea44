package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/yeisme/cloudvault/pkg/configs"
)

const (
	maxLimiterEntries = 10000
	limiterIdleTTL    = 10 * time.Minute
)

// RateLimitMiddleware 返回一个基于配置的限流中间件.
// Key 支持 global、ip、user（已认证用户，未认证回退 IP）与 header:Header-Name.
func RateLimitMiddleware(cfg configs.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	keyMode := strings.ToLower(strings.TrimSpace(cfg.Key))
	if keyMode == "global" || keyMode == "" {
		limiter := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)

		return func(c *gin.Context) {
			if !limiter.Allow() {
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})

				return
			}

			c.Next()
		}
	}

	// 闲置的 limiter 过期淘汰，容量有上限
	limiters := expirable.NewLRU[string, *rate.Limiter](maxLimiterEntries, nil, limiterIdleTTL)

	getLimiter := func(key string) *rate.Limiter {
		if l, ok := limiters.Get(key); ok {
			return l
		}

		l := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
		limiters.Add(key, l)

		return l
	}

	return func(c *gin.Context) {
		key := limitKey(c, keyMode)
		if key == "" {
			key = "unknown"
		}

		if !getLimiter(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				gin.H{"error": "rate limit exceeded, request too frequent, please try again later"})

			return
		}

		c.Next()
	}
}

func limitKey(c *gin.Context, mode string) string {
	switch {
	case strings.HasPrefix(mode, "header:"):
		if v := c.GetHeader(strings.TrimPrefix(mode, "header:")); v != "" {
			return "h:" + v
		}
	case mode == "user":
		if id := UserID(c); id != "" {
			return "u:" + id
		}
	}

	return "ip:" + clientIP(c)
}

func clientIP(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err == nil {
			ip = host
		} else {
			ip = c.Request.RemoteAddr
		}
	}

	return ip
}
