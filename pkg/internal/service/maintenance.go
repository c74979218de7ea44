package service

import (
	"context"
	"time"

	"github.com/yeisme/cloudvault/pkg/internal/storage/s3"
	"github.com/yeisme/cloudvault/pkg/internal/store"
	nlog "github.com/yeisme/cloudvault/pkg/log"
)

// DefaultSweepBatch 每轮清理处理的最大记录数.
const DefaultSweepBatch = 500

// MaintenanceService 定时清理：重试删除感染文件残留对象、停用过期分享.
type MaintenanceService struct {
	store   *store.Store
	objects s3.Gateway
	shares  *ShareService
	now     func() time.Time
}

// PurgeInfected 删除感染但对象仍残留的文件，返回本轮清除数量.
func (m *MaintenanceService) PurgeInfected(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = DefaultSweepBatch
	}

	recs, err := m.store.ListInfectedUnpurged(ctx, batch)
	if err != nil {
		return 0, fault("list infected files", err)
	}

	l := logger(ctx, "maintenance")
	purged := 0

	for _, rec := range recs {
		if len(removeObjects(ctx, m.objects, *l, rec.StorageKey, rec.ThumbnailKey)) > 0 {
			continue
		}

		if err := m.store.MarkPurged(ctx, rec.ID); err != nil {
			l.Warn().Err(err).Str("file_id", rec.ID).Msg("mark purged failed")

			continue
		}

		nlog.Audit().
			Str("event", "file.purged").
			Str("file_id", rec.ID).
			Str("owner_id", rec.OwnerID).
			Str("key", rec.StorageKey).
			Msg("infected object purged")

		purged++
	}

	if len(recs) > 0 {
		l.Info().Int("candidates", len(recs)).Int("purged", purged).Msg("infected purge finished")
	}

	return purged, nil
}

// SweepExpiredShares 停用已过期的分享链接.
func (m *MaintenanceService) SweepExpiredShares(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = DefaultSweepBatch
	}

	n, err := m.shares.SweepExpired(ctx, batch)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		logger(ctx, "maintenance").Info().Int("deactivated", n).Time("now", m.now()).Msg("expired shares swept")
	}

	return n, nil
}
