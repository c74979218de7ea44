// Package worker 后台消息消费者：延迟复扫与领域事件审计.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/yeisme/cloudvault/pkg/configs"
	"github.com/yeisme/cloudvault/pkg/internal/service"
	nlog "github.com/yeisme/cloudvault/pkg/log"
	"github.com/yeisme/cloudvault/pkg/queue"
)

// Rescanner 执行单个文件的复扫.
type Rescanner interface {
	Process(ctx context.Context, fileID string) (*service.RescanResult, error)
}

// RescanWorker 消费 cv.scan.rescan.requested.
type RescanWorker struct {
	rescan  Rescanner
	maxWait time.Duration
	now     func() time.Time
}

// NewRescanWorker 创建复扫消费者，maxWait 为等待 not_before 的上限.
func NewRescanWorker(r Rescanner, maxWait time.Duration, now func() time.Time) *RescanWorker {
	if now == nil {
		now = time.Now
	}

	return &RescanWorker{rescan: r, maxWait: maxWait, now: now}
}

// Handle 处理一条复扫请求.
// 无法解析的消息直接确认丢弃；仅基础设施故障返回错误，由重试中间件重新投递.
func (w *RescanWorker) Handle(msg *message.Message) error {
	l := nlog.Component("worker").With().Str("message_id", msg.UUID).Logger()

	env, err := queue.ParseRescanRequested(msg)
	if err != nil || env.Payload.FileID == "" {
		l.Warn().Err(err).Msg("drop malformed rescan request")

		return nil
	}

	ctx := msg.Context()

	if wait := w.waitFor(env.Payload.NotBefore); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		}
	}

	res, err := w.rescan.Process(ctx, env.Payload.FileID)
	if err != nil {
		if errors.Is(err, service.ErrInternal) {
			return err
		}

		l.Warn().Err(err).Str("file_id", env.Payload.FileID).Msg("rescan rejected")

		return nil
	}

	l.Debug().Str("result", res.String()).Msg("rescan handled")

	return nil
}

func (w *RescanWorker) waitFor(notBefore time.Time) time.Duration {
	if notBefore.IsZero() {
		return 0
	}

	return min(notBefore.Sub(w.now()), w.maxWait)
}

// AuditEvent 把领域事件写入审计日志.
func AuditEvent(msg *message.Message) error {
	env, err := queue.ParseWatermillMessage[map[string]any](msg)
	if err != nil {
		l := nlog.Component("worker")
		l.Warn().Err(err).Str("message_id", msg.UUID).Msg("drop malformed event")

		return nil
	}

	nlog.Audit().
		Str("event", env.Header.Topic).
		Str("producer", env.Header.Producer).
		Str("trace_id", env.Header.TraceID).
		Time("occurred_at", env.Header.OccurredAt).
		Interface("payload", env.Payload).
		Msg("domain event")

	return nil
}

// Options 消费者注册参数.
type Options struct {
	Scan       configs.ScanConfig
	Events     configs.EventsConfig
	MaxRetries int
	Now        func() time.Time
}

// Register 在 router 上注册复扫与事件审计 handler.
func Register(router *message.Router, sub message.Subscriber, rescan Rescanner, opts Options, logger watermill.LoggerAdapter) error {
	if router == nil || sub == nil {
		return fmt.Errorf("router and subscriber are required")
	}

	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      opts.MaxRetries,
			InitialInterval: time.Second,
			Multiplier:      2,
			MaxInterval:     30 * time.Second,
			Logger:          logger,
		}.Middleware,
	)

	if opts.Scan.RescanEnabled && rescan != nil {
		w := NewRescanWorker(rescan, opts.Scan.RescanMaxWait, opts.Now)
		router.AddNoPublisherHandler("scan.rescan", queue.TopicScanRescanRequested, sub, w.Handle)
	}

	if opts.Events.Enabled {
		for _, topic := range []string{queue.TopicFileInfected, queue.TopicFileDeleted, queue.TopicQuotaReconciled} {
			router.AddNoPublisherHandler("audit."+topic, topic, sub, AuditEvent)
		}
	}

	return nil
}
