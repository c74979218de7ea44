package queue

import "time"

// EventHeader 定义所有事件的通用头部元数据.
type EventHeader struct {
	// Topic 冗余记录消息主题，便于离线处理或转储后定位来源主题.
	Topic string `json:"topic"`
	// TraceID 分布式追踪/关联 ID.
	TraceID string `json:"trace_id,omitempty"`
	// Producer 生产者服务名或节点标识.
	Producer string `json:"producer,omitempty"`
	// OccurredAt 事件发生时间（UTC）.
	OccurredAt time.Time `json:"occurred_at"`
	// Version 事件负载版本.
	Version string `json:"version,omitempty"`
}

// Message 是统一的消息封装，Header + Payload.
type Message[T any] struct {
	Header  EventHeader `json:"header"`
	Payload T           `json:"payload"`
}

// -------------------------- 文件领域 --------------------------

// ObjectRef 标识对象存储中的对象.
type ObjectRef struct {
	Key         string `json:"key"`
	ETag        string `json:"etag,omitempty"`
	Size        int64  `json:"size,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Checksum    string `json:"checksum,omitempty"` // sha256 hex
}

// FileStoredPayload 文件已存储并落库.
type FileStoredPayload struct {
	FileID       string    `json:"file_id"`
	OwnerID      string    `json:"owner_id"`
	FileName     string    `json:"file_name"`
	Object       ObjectRef `json:"object"`
	ThumbnailKey string    `json:"thumbnail_key,omitempty"`
	ScanStatus   string    `json:"scan_status"`
}

// FileDeletedPayload 文件被删除.
type FileDeletedPayload struct {
	FileID        string   `json:"file_id"`
	OwnerID       string   `json:"owner_id"`
	Keys          []string `json:"keys"`
	ReleasedBytes int64    `json:"released_bytes"`
	// Orphaned 删除失败、可能残留在对象存储中的键.
	Orphaned []string `json:"orphaned,omitempty"`
}

// FileInfectedPayload 复扫判定感染.
type FileInfectedPayload struct {
	FileID            string    `json:"file_id"`
	OwnerID           string    `json:"owner_id"`
	Object            ObjectRef `json:"object"`
	Policy            string    `json:"policy"`
	Reason            string    `json:"reason"`
	Signature         string    `json:"signature,omitempty"`
	Purged            bool      `json:"purged"`
	DeactivatedShares []string  `json:"deactivated_shares,omitempty"`
}

// -------------------------- 扫描领域 --------------------------

// RescanRequestedPayload 延迟复扫请求.
// 消费者在 NotBefore 之前不执行扫描，执行时重新读取记录而不依赖消息中的状态.
type RescanRequestedPayload struct {
	FileID     string    `json:"file_id"`
	OwnerID    string    `json:"owner_id"`
	StorageKey string    `json:"storage_key"`
	NotBefore  time.Time `json:"not_before"`
}

// -------------------------- 分享领域 --------------------------

// ShareAccessedPayload 分享下载授权成功.
type ShareAccessedPayload struct {
	ShareID     string    `json:"share_id"`
	FileID      string    `json:"file_id"`
	OwnerID     string    `json:"owner_id"`
	Origin      string    `json:"origin,omitempty"`
	AccessCount int64     `json:"access_count"`
	AccessedAt  time.Time `json:"accessed_at"`
}

// -------------------------- 配额领域 --------------------------

// QuotaReconciledPayload 对账修正.
type QuotaReconciledPayload struct {
	UserID   string `json:"user_id"`
	Previous int64  `json:"previous"`
	Actual   int64  `json:"actual"`
}
