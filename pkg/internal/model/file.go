package model

import (
	"time"

	"gorm.io/gorm"
)

// ScanStatus 文件扫描状态.
type ScanStatus string

const (
	ScanPending  ScanStatus = "pending"  // 内联扫描出错，等待人工或复扫确认
	ScanClean    ScanStatus = "clean"    // 扫描通过
	ScanInfected ScanStatus = "infected" // 检出恶意内容，禁止下载，对象需清理
	ScanError    ScanStatus = "error"    // 复扫过程出错
)

// FileRecord 文件元数据记录，对象字节位于对象存储的 StorageKey 下.
type FileRecord struct {
	ID           string `gorm:"primaryKey;size:36"             json:"id"`
	OwnerID      string `gorm:"size:36;index;not null"         json:"owner_id"`
	OriginalName string `gorm:"size:1024"                      json:"original_name"`
	DisplayName  string `gorm:"size:255;index"                 json:"display_name"`
	Size         int64  `gorm:"not null"                       json:"size"`
	ContentType  string `gorm:"size:255;index"                 json:"content_type"`
	StorageKey   string `gorm:"size:1024;uniqueIndex"          json:"storage_key"`
	ThumbnailKey string `gorm:"size:1024"                      json:"thumbnail_key,omitempty"`
	// 派生元数据
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Format   string `gorm:"size:64"  json:"format,omitempty"`
	Checksum string `gorm:"size:64"  json:"checksum"` // sha256 hex
	ETag     string `gorm:"size:128" json:"etag"`
	// 扫描
	ScanStatus   ScanStatus `gorm:"size:16;index;not null" json:"scan_status"`
	ScanReason   string     `gorm:"size:255"               json:"scan_reason,omitempty"`
	ScannedAt    *time.Time `json:"scanned_at,omitempty"`
	ObjectPurged bool       `gorm:"not null;default:false" json:"-"`
	// 分享快照，仅供快速读取；过期与密码校验始终以 ShareLink 为准
	IsShared      bool           `gorm:"not null;default:false"   json:"is_shared"`
	ShareSettings *ShareSettings `gorm:"type:text"                json:"share_settings,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName 指定表名.
func (FileRecord) TableName() string {
	return "files"
}

// Downloadable 感染文件不可下载.
func (f *FileRecord) Downloadable() bool {
	return f.ScanStatus != ScanInfected
}
