package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/cloudvault/pkg/configs"
	ctxPkg "github.com/yeisme/cloudvault/pkg/context"
)

// ContextUserIDKey gin.Context 中保存已认证用户 ID 的键.
const ContextUserIDKey = "user_id"

// Authenticator 校验访问令牌并返回用户 ID.
type Authenticator interface {
	Authenticate(raw string) (string, error)
}

// AuthMiddleware 校验 Authorization: Bearer <token>，通过后把用户 ID 写入 gin 与 request context.
//   - 支持通过配置跳过某些路径（如 /metrics, /api/v1/health, 公开分享）
//   - 开发模式可允许 ?user_id= 兜底（由 auth.dev_allow_query 控制）
//   - 认证关闭时仅解析可选的令牌，不拒绝请求
func AuthMiddleware(conf configs.AuthConfig, auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSkippedPath(c.Request.URL.Path, conf.SkipPaths) {
			c.Next()

			return
		}

		if raw := bearerToken(c.GetHeader("Authorization")); raw != "" {
			userID, err := auth.Authenticate(raw)
			if err == nil {
				setUser(c, userID)
				c.Next()

				return
			}

			if conf.Enabled {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})

				return
			}
		}

		if (conf.DevAllowQuery || !conf.Enabled) && c.Query("user_id") != "" {
			setUser(c, c.Query("user_id"))
			c.Next()

			return
		}

		if conf.Enabled {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})

			return
		}

		c.Next()
	}
}

// UserID 返回当前请求的用户 ID.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserIDKey)
}

func setUser(c *gin.Context, userID string) {
	c.Set(ContextUserIDKey, userID)
	c.Request = c.Request.WithContext(ctxPkg.WithUserID(c.Request.Context(), userID))
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}

func isSkippedPath(path string, skips []string) bool {
	if path == "" || len(skips) == 0 {
		return false
	}

	for _, p := range skips {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if strings.HasPrefix(path, p) {
			return true
		}
	}

	return false
}
