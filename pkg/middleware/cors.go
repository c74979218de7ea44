package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/cloudvault/pkg/configs"
)

// CORSMiddleware CORS中间件，允许前端携带 Authorization 头跨域访问.
func CORSMiddleware(cfg configs.ServerConfig) gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = append(config.AllowHeaders, "Authorization")
	config.ExposeHeaders = []string{"Content-Disposition", "ETag", "X-Cache"}
	config.AllowFiles = true

	if cfg.Debug {
		config.AllowWebSockets = true
	}

	return cors.New(config)
}
