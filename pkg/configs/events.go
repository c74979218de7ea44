package configs

import "github.com/spf13/viper"

// EventsConfig 控制领域事件发布的开关（全局与分主题）。
type EventsConfig struct {
	Enabled bool              `mapstructure:"enabled"` // 总开关
	File    FileEventsConfig  `mapstructure:"file"`
	Share   ShareEventsConfig `mapstructure:"share"`
}

// FileEventsConfig 文件相关事件开关。
type FileEventsConfig struct {
	Stored   bool `mapstructure:"stored"`
	Deleted  bool `mapstructure:"deleted"`
	Infected bool `mapstructure:"infected"`
}

// ShareEventsConfig 分享相关事件开关。
type ShareEventsConfig struct {
	Accessed bool `mapstructure:"accessed"`
}

func (c *EventsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("events.enabled", true)

	v.SetDefault("events.file.stored", true)
	v.SetDefault("events.file.deleted", true)
	v.SetDefault("events.file.infected", true)

	// 访问事件量可能很大，默认关闭
	v.SetDefault("events.share.accessed", false)
}
