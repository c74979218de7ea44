package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	RescanPolicySignature = "signature" // 复扫时重新执行签名扫描
	RescanPolicyDeep      = "deep"      // 签名扫描 + 内容嗅探

	DefaultRescanDelay   = 30 * time.Second
	DefaultRescanMaxWait = 5 * time.Minute
)

// ScanConfig 内容扫描与后台复扫配置.
type ScanConfig struct {
	RescanEnabled bool          `mapstructure:"rescan_enabled"`
	RescanDelay   time.Duration `mapstructure:"rescan_delay"    rule:"min=0"`
	RescanPolicy  string        `mapstructure:"rescan_policy"   rule:"oneof=signature deep"`
	// RescanMaxWait worker 等待延迟任务到期的最长时间，超过则立即处理
	RescanMaxWait time.Duration `mapstructure:"rescan_max_wait" rule:"min=0"`
	// RescanMaxBytes 复扫时最多拉取的字节数，0 表示整个对象
	RescanMaxBytes int64 `mapstructure:"rescan_max_bytes" rule:"min=0"`
	// StrictPE 内嵌的 MZ 需要有效 PE 头才判定感染
	StrictPE bool `mapstructure:"strict_pe"`
}

func (c *ScanConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("scan.rescan_enabled", true)
	v.SetDefault("scan.rescan_delay", DefaultRescanDelay)
	v.SetDefault("scan.rescan_policy", RescanPolicyDeep)
	v.SetDefault("scan.rescan_max_wait", DefaultRescanMaxWait)
	v.SetDefault("scan.rescan_max_bytes", DefaultMaxFileSize)
	v.SetDefault("scan.strict_pe", false)
}
