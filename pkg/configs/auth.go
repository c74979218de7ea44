package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultTokenTTL    = 24 * time.Hour
	DefaultTokenIssuer = "cloudvault"
)

// AuthConfig 控制 JWT 认证.
type AuthConfig struct {
	Enabled   bool          `mapstructure:"enabled"`    // 开启认证校验
	Secret    string        `mapstructure:"secret"`     // HS256 签名密钥，生产环境必须通过配置或环境变量覆盖
	Issuer    string        `mapstructure:"issuer"`     // 令牌签发者
	TokenTTL  time.Duration `mapstructure:"token_ttl"`  // 令牌有效期
	SkipPaths []string      `mapstructure:"skip_paths"` // 跳过认证的路径前缀（如 /metrics、/api/v1/health）
	// DevAllowQuery 开发模式允许用 ?user_id= 直接指定用户，便于本地调试
	DevAllowQuery bool `mapstructure:"dev_allow_query"`
}

func (c *AuthConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.secret", "change-me-in-production")
	v.SetDefault("auth.issuer", DefaultTokenIssuer)
	v.SetDefault("auth.token_ttl", DefaultTokenTTL)
	v.SetDefault("auth.dev_allow_query", false)
	v.SetDefault("auth.skip_paths", []string{
		"/metrics",
		"/debug/pprof",
		"/swagger",
		"/api/v1/health",
		"/api/v1/auth/signup",
		"/api/v1/auth/login",
		"/api/v1/shared",
	})
}
