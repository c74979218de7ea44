package configs

import "github.com/spf13/viper"

// JobsConfig 定时任务配置，值为 cron 表达式（支持秒字段）.
type JobsConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	QuotaAuditCron    string `mapstructure:"quota_audit_cron"    rule:"required"`
	PurgeInfectedCron string `mapstructure:"purge_infected_cron" rule:"required"`
	ShareSweepCron    string `mapstructure:"share_sweep_cron"    rule:"required"`
}

func (c *JobsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.quota_audit_cron", "0 30 3 * * *")
	v.SetDefault("jobs.purge_infected_cron", "0 */10 * * * *")
	v.SetDefault("jobs.share_sweep_cron", "0 5 * * * *")
}
