package queue

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// -------------------------- 基于业务封装 events --------------------------

// Publish 构造消息并发布到 topic，消息携带 ctx.
func Publish[T any](ctx context.Context, pub message.Publisher, topic string, payload T, opts ...func(*EventHeader)) error {
	msg, err := NewWatermillMessage(topic, payload, opts...)
	if err != nil {
		return err
	}

	msg.SetContext(ctx)

	return pub.Publish(topic, msg)
}

// PublishRescanRequested 发布 cv.scan.rescan.requested.
func PublishRescanRequested(ctx context.Context, pub message.Publisher, payload RescanRequestedPayload, opts ...func(*EventHeader)) error {
	return Publish(ctx, pub, TopicScanRescanRequested, payload, opts...)
}

// ParseRescanRequested 解析复扫请求.
func ParseRescanRequested(msg *message.Message) (Message[RescanRequestedPayload], error) {
	return ParseWatermillMessage[RescanRequestedPayload](msg)
}

// PublishFileStored 发布 cv.file.stored.
func PublishFileStored(ctx context.Context, pub message.Publisher, payload FileStoredPayload, opts ...func(*EventHeader)) error {
	return Publish(ctx, pub, TopicFileStored, payload, opts...)
}

// PublishFileDeleted 发布 cv.file.deleted.
func PublishFileDeleted(ctx context.Context, pub message.Publisher, payload FileDeletedPayload, opts ...func(*EventHeader)) error {
	return Publish(ctx, pub, TopicFileDeleted, payload, opts...)
}

// PublishFileInfected 发布 cv.file.infected.
func PublishFileInfected(ctx context.Context, pub message.Publisher, payload FileInfectedPayload, opts ...func(*EventHeader)) error {
	return Publish(ctx, pub, TopicFileInfected, payload, opts...)
}

// ParseFileInfected 解析感染事件.
func ParseFileInfected(msg *message.Message) (Message[FileInfectedPayload], error) {
	return ParseWatermillMessage[FileInfectedPayload](msg)
}

// PublishShareAccessed 发布 cv.share.accessed.
func PublishShareAccessed(ctx context.Context, pub message.Publisher, payload ShareAccessedPayload, opts ...func(*EventHeader)) error {
	return Publish(ctx, pub, TopicShareAccessed, payload, opts...)
}

// PublishQuotaReconciled 发布 cv.quota.reconciled.
func PublishQuotaReconciled(ctx context.Context, pub message.Publisher, payload QuotaReconciledPayload, opts ...func(*EventHeader)) error {
	return Publish(ctx, pub, TopicQuotaReconciled, payload, opts...)
}
