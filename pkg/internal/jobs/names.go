package jobs

// 任务名称常量，便于统一管理与引用.
const (
	JobQuotaAudit    = "quota.audit"
	JobPurgeInfected = "scan.purge_infected"
	JobShareSweep    = "share.expire_sweep"
)
