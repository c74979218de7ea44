package configs

import "github.com/spf13/viper"

const (
	// 默认熔断器配置.
	DefaultCBEnabled           = false
	DefaultCBFailureRate       = 0.5
	DefaultCBMinRequests       = 20
	DefaultCBIntervalSeconds   = 60
	DefaultCBTimeoutSeconds    = 30
	DefaultCBMaxRequestsInHalf = 5
)

// DefaultCBSkipPaths 不参与熔断统计的路径前缀，健康检查在降级时本身就返回 503.
var DefaultCBSkipPaths = []string{"/api/v1/health", "/metrics", "/swagger"}

// CircuitBreakerConfig HTTP 熔断器配置，5xx 计为失败.
type CircuitBreakerConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	FailureRate       float64  `mapstructure:"failure_rate"         rule:"gte=0,lte=1"` // 窗口内失败比例阈值
	MinRequests       uint32   `mapstructure:"min_requests"`                            // 进入统计的最小请求数
	IntervalSeconds   int      `mapstructure:"interval_seconds"     rule:"gte=0"`       // 统计周期，0 表示不清零
	TimeoutSeconds    int      `mapstructure:"timeout_seconds"      rule:"gte=0"`       // 打开状态持续时间（之后半开）
	MaxRequestsInHalf uint32   `mapstructure:"max_requests_in_half"`                    // 半开状态允许的请求数
	SkipPaths         []string `mapstructure:"skip_paths"`
}

func (c *CircuitBreakerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("circuit_breaker.enabled", DefaultCBEnabled)
	v.SetDefault("circuit_breaker.failure_rate", DefaultCBFailureRate)
	v.SetDefault("circuit_breaker.min_requests", DefaultCBMinRequests)
	v.SetDefault("circuit_breaker.interval_seconds", DefaultCBIntervalSeconds)
	v.SetDefault("circuit_breaker.timeout_seconds", DefaultCBTimeoutSeconds)
	v.SetDefault("circuit_breaker.max_requests_in_half", DefaultCBMaxRequestsInHalf)
	v.SetDefault("circuit_breaker.skip_paths", DefaultCBSkipPaths)
}
