package configs

import (
	"time"

	"github.com/spf13/viper"
)

// ShareConfig 分享链接配置.
type ShareConfig struct {
	// DefaultExpiresIn 创建分享时未指定有效期使用的值，如 "7d"、"12h"、"never"
	DefaultExpiresIn string        `mapstructure:"default_expires_in" rule:"required"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	// PublicBaseURL 对外访问地址，用于拼接分享页链接
	PublicBaseURL string `mapstructure:"public_base_url"`
	// RecordUserAgent 访问日志是否记录 User-Agent
	RecordUserAgent bool `mapstructure:"record_user_agent"`
}

func (c *ShareConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("share.default_expires_in", "7d")
	v.SetDefault("share.cache_ttl", 5*time.Minute)
	v.SetDefault("share.public_base_url", "http://localhost:8080")
	v.SetDefault("share.record_user_agent", true)
}
