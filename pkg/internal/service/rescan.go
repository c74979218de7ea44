package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/cloudvault/pkg/internal/model"
	"github.com/yeisme/cloudvault/pkg/internal/scan"
	"github.com/yeisme/cloudvault/pkg/internal/storage/s3"
	"github.com/yeisme/cloudvault/pkg/internal/store"
	nlog "github.com/yeisme/cloudvault/pkg/log"
	"github.com/yeisme/cloudvault/pkg/metrics"
	"github.com/yeisme/cloudvault/pkg/queue"
	"github.com/yeisme/cloudvault/pkg/tracing"
)

// RescanTarget 复扫目标.
type RescanTarget struct {
	FileID     string
	OwnerID    string
	StorageKey string
}

// RescanScheduler 调度延迟复扫，调用方不等待复扫结果.
type RescanScheduler interface {
	Schedule(ctx context.Context, t RescanTarget) error
}

// MQRescanScheduler 把复扫请求发布到 cv.scan.rescan.requested，由 worker 在 not_before 之后处理.
type MQRescanScheduler struct {
	pub   message.Publisher
	delay time.Duration
	now   func() time.Time
}

// NewMQRescanScheduler 创建基于消息队列的调度器.
func NewMQRescanScheduler(pub message.Publisher, delay time.Duration, now func() time.Time) *MQRescanScheduler {
	if now == nil {
		now = time.Now
	}

	return &MQRescanScheduler{pub: pub, delay: delay, now: now}
}

// Schedule 实现 RescanScheduler.
func (m *MQRescanScheduler) Schedule(ctx context.Context, t RescanTarget) error {
	opts := []func(*queue.EventHeader){}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		opts = append(opts, queue.WithTraceID(sc.TraceID().String()))
	}

	return queue.PublishRescanRequested(ctx, m.pub, queue.RescanRequestedPayload{
		FileID:     t.FileID,
		OwnerID:    t.OwnerID,
		StorageKey: t.StorageKey,
		NotBefore:  m.now().Add(m.delay).UTC(),
	}, opts...)
}

// RescanResult 复扫处理结果.
type RescanResult struct {
	FileID  string       `json:"file_id"`
	Skipped string       `json:"skipped,omitempty"` // 跳过原因
	Verdict scan.Verdict `json:"verdict"`
	Purged  bool         `json:"purged"`
}

// RescanService 执行复扫：重新读取记录与对象，按策略判定，感染时隔离.
type RescanService struct {
	store    *store.Store
	objects  s3.Gateway
	policy   scan.RescanPolicy
	shares   *ShareService
	events   *events
	maxBytes int64
	now      func() time.Time
}

// Policy 返回当前复扫策略.
func (s *RescanService) Policy() scan.RescanPolicy { return s.policy }

// Process 复扫单个文件.
// 记录已删除、非 clean 状态或对象已不存在时跳过并返回 nil 错误；基础设施故障返回错误以便重试.
func (s *RescanService) Process(ctx context.Context, fileID string) (*RescanResult, error) {
	ctx, span := tracing.StartSpan(ctx, "scan.rescan", trace.WithAttributes(
		attribute.String("file.id", fileID),
		attribute.String("scan.policy", s.policy.Name()),
	))
	defer span.End()

	l := logger(ctx, "rescan").With().Str("file_id", fileID).Str("policy", s.policy.Name()).Logger()
	res := &RescanResult{FileID: fileID}

	rec, err := s.store.GetFile(ctx, fileID)
	if errors.Is(err, store.ErrNotFound) {
		res.Skipped = "record deleted"
		l.Debug().Msg("rescan skipped, record no longer active")

		return res, nil
	}

	if err != nil {
		return nil, fault("load file", err)
	}

	if rec.ScanStatus != model.ScanClean {
		res.Skipped = "status " + string(rec.ScanStatus)

		return res, nil
	}

	data, err := s.objects.Get(ctx, rec.StorageKey, s.maxBytes)
	if errors.Is(err, s3.ErrObjectNotFound) {
		res.Skipped = "object missing"
		l.Warn().Str("key", rec.StorageKey).Msg("rescan skipped, object missing from store")

		return res, nil
	}

	if err != nil {
		return nil, fault("fetch object", err)
	}

	res.Verdict = s.policy.Evaluate(ctx, data, scan.Target{Name: rec.DisplayName, ContentType: rec.ContentType})
	metrics.ScanVerdicts.WithLabelValues("rescan", string(res.Verdict.Status)).Inc()
	span.SetAttributes(attribute.String("scan.status", string(res.Verdict.Status)))

	switch res.Verdict.Status {
	case scan.StatusClean:
		ok, err := s.store.TransitionScanStatus(ctx, rec.ID, model.ScanClean, model.ScanClean, "", s.now())
		if err != nil {
			return nil, fault("update scan status", err)
		}

		if !ok {
			res.Skipped = "changed during rescan"
		}
	case scan.StatusError:
		ok, err := s.store.TransitionScanStatus(ctx, rec.ID, model.ScanClean, model.ScanError, res.Verdict.Reason, s.now())
		if err != nil {
			return nil, fault("update scan status", err)
		}

		if !ok {
			res.Skipped = "changed during rescan"

			break
		}

		l.Warn().Str("reason", res.Verdict.Reason).Msg("rescan fault, file flagged for review")
	case scan.StatusInfected:
		purged, applied, err := s.quarantine(ctx, rec, res.Verdict)
		if err != nil {
			return nil, err
		}

		if !applied {
			res.Skipped = "changed during rescan"
			l.Info().Msg("file deleted or rescanned concurrently, quarantine skipped")

			break
		}

		res.Purged = purged
	}

	return res, nil
}

// quarantine 隔离感染文件.
// 先标记 infected 使下载立即失效，再删除对象、释放配额、停用分享并留下审计日志.
// 对象删除失败时由清理任务重试.
// 记录在复扫期间被删除或状态已变化时不做任何处理，applied 为 false，配额由删除流程释放.
func (s *RescanService) quarantine(ctx context.Context, rec *model.FileRecord, v scan.Verdict) (purged, applied bool, err error) {
	l := logger(ctx, "rescan").With().Str("file_id", rec.ID).Str("owner_id", rec.OwnerID).Logger()

	applied, err = s.store.TransitionScanStatus(ctx, rec.ID, model.ScanClean, model.ScanInfected, v.Reason, s.now())
	if err != nil {
		return false, false, fault("mark infected", err)
	}

	if !applied {
		return false, false, nil
	}

	purged = len(removeObjects(ctx, s.objects, l, rec.StorageKey, rec.ThumbnailKey)) == 0
	if purged {
		if err := s.store.MarkPurged(ctx, rec.ID); err != nil {
			l.Warn().Err(err).Msg("mark purged failed")
		}
	}

	if err := s.store.ReleaseQuota(ctx, rec.OwnerID, rec.Size); err != nil {
		l.Warn().Err(err).Msg("release quota failed, left to reconciliation")
	}

	deactivated, err := s.shares.deactivateForFile(ctx, rec.ID)
	if err != nil {
		l.Warn().Err(err).Msg("deactivate shares failed")
	}

	nlog.Audit().
		Str("event", "file.infected").
		Str("file_id", rec.ID).
		Str("owner_id", rec.OwnerID).
		Str("key", rec.StorageKey).
		Str("policy", s.policy.Name()).
		Str("signature", v.Signature).
		Str("reason", v.Reason).
		Bool("purged", purged).
		Strs("deactivated_shares", deactivated).
		Msg("infected file quarantined by rescan")

	s.events.fileInfected(ctx, queue.FileInfectedPayload{
		FileID:            rec.ID,
		OwnerID:           rec.OwnerID,
		Object:            queue.ObjectRef{Key: rec.StorageKey, ETag: rec.ETag, Size: rec.Size, ContentType: rec.ContentType, Checksum: rec.Checksum},
		Policy:            s.policy.Name(),
		Reason:            v.Reason,
		Signature:         v.Signature,
		Purged:            purged,
		DeactivatedShares: deactivated,
	})

	return purged, true, nil
}

// String 便于日志输出.
func (r *RescanResult) String() string {
	if r.Skipped != "" {
		return fmt.Sprintf("%s skipped (%s)", r.FileID, r.Skipped)
	}

	return fmt.Sprintf("%s %s", r.FileID, r.Verdict.Status)
}
