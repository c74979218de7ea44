// Package jobs 负责注册与实现业务定时任务（基于 scheduler）。
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/yeisme/cloudvault/pkg/configs"
	"github.com/yeisme/cloudvault/pkg/internal/service"
	"github.com/yeisme/cloudvault/pkg/log"
	"github.com/yeisme/cloudvault/pkg/scheduler"
)

// RegisterCronJobs 配置业务定时任务：
//   - 配额对账，修正已用空间与实际文件大小之和的偏差
//   - 重试删除感染文件遗留的对象
//   - 停用已过期的分享链接
func RegisterCronJobs(sched *scheduler.Scheduler, svcs *service.Services, cfg configs.JobsConfig) error {
	if sched == nil {
		return fmt.Errorf("scheduler is nil")
	}

	if svcs == nil {
		return fmt.Errorf("services is nil")
	}

	if !cfg.Enabled {
		l := log.Component("jobs")
		l.Info().Msg("cron jobs disabled")

		return nil
	}

	return errors.Join(
		sched.AddCron(JobQuotaAudit, cfg.QuotaAuditCron, QuotaAudit(svcs.Quota)),
		sched.AddCron(JobPurgeInfected, cfg.PurgeInfectedCron, PurgeInfected(svcs.Maintenance)),
		sched.AddCron(JobShareSweep, cfg.ShareSweepCron, ShareSweep(svcs.Maintenance)),
	)
}

// QuotaAudit 遍历所有用户执行配额对账.
func QuotaAudit(q *service.QuotaAuditor) scheduler.Task {
	return func(ctx context.Context) error {
		fixes, err := q.Reconcile(ctx)
		if err != nil {
			return err
		}

		l := log.Component("jobs")
		l.Info().Str("job", JobQuotaAudit).Int("corrected", len(fixes)).Msg("quota audit done")

		return nil
	}
}

// PurgeInfected 清理感染文件残留对象.
func PurgeInfected(m *service.MaintenanceService) scheduler.Task {
	return func(ctx context.Context) error {
		n, err := m.PurgeInfected(ctx, service.DefaultSweepBatch)
		if n > 0 {
			l := log.Component("jobs")
			l.Info().Str("job", JobPurgeInfected).Int("purged", n).Msg("infected objects purged")
		}

		return err
	}
}

// ShareSweep 停用过期分享.
func ShareSweep(m *service.MaintenanceService) scheduler.Task {
	return func(ctx context.Context) error {
		n, err := m.SweepExpiredShares(ctx, service.DefaultSweepBatch)
		if n > 0 {
			l := log.Component("jobs")
			l.Info().Str("job", JobShareSweep).Int("deactivated", n).Msg("expired shares swept")
		}

		return err
	}
}
