package service

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/yeisme/cloudvault/pkg/configs"
	"github.com/yeisme/cloudvault/pkg/queue"
)

// events 按配置开关发布领域事件，发布失败只记录日志.
type events struct {
	pub message.Publisher
	cfg configs.EventsConfig
}

func newEvents(pub message.Publisher, cfg configs.EventsConfig) *events {
	return &events{pub: pub, cfg: cfg}
}

func (e *events) on(flag bool) bool {
	return e != nil && e.pub != nil && e.cfg.Enabled && flag
}

func (e *events) fileStored(ctx context.Context, p queue.FileStoredPayload) {
	if e.on(e.cfg.File.Stored) {
		e.report(ctx, queue.TopicFileStored, queue.PublishFileStored(ctx, e.pub, p))
	}
}

func (e *events) fileDeleted(ctx context.Context, p queue.FileDeletedPayload) {
	if e.on(e.cfg.File.Deleted) {
		e.report(ctx, queue.TopicFileDeleted, queue.PublishFileDeleted(ctx, e.pub, p))
	}
}

func (e *events) fileInfected(ctx context.Context, p queue.FileInfectedPayload) {
	if e.on(e.cfg.File.Infected) {
		e.report(ctx, queue.TopicFileInfected, queue.PublishFileInfected(ctx, e.pub, p))
	}
}

func (e *events) shareAccessed(ctx context.Context, p queue.ShareAccessedPayload) {
	if e.on(e.cfg.Share.Accessed) {
		e.report(ctx, queue.TopicShareAccessed, queue.PublishShareAccessed(ctx, e.pub, p))
	}
}

func (e *events) quotaReconciled(ctx context.Context, p queue.QuotaReconciledPayload) {
	if e.on(true) {
		e.report(ctx, queue.TopicQuotaReconciled, queue.PublishQuotaReconciled(ctx, e.pub, p))
	}
}

func (e *events) report(ctx context.Context, topic string, err error) {
	if err != nil {
		logger(ctx, "events").Warn().Err(err).Str("topic", topic).Msg("publish event failed")
	}
}
