package model

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// ShareSettings 分享设置快照，冗余存储在 FileRecord 上.
type ShareSettings struct {
	ShareID           string     `json:"share_id"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	AllowDownload     bool       `json:"allow_download"`
	AllowPreview      bool       `json:"allow_preview"`
	PasswordProtected bool       `json:"password_protected"`
}

// Value 实现 driver.Valuer，以 JSON 文本存储.
func (s ShareSettings) Value() (driver.Value, error) {
	b, err := sonic.Marshal(s)
	if err != nil {
		return nil, err
	}

	return string(b), nil
}

// Scan 实现 sql.Scanner.
func (s *ShareSettings) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = ShareSettings{}

		return nil
	case []byte:
		return sonic.Unmarshal(v, s)
	case string:
		return sonic.UnmarshalString(v, s)
	default:
		return fmt.Errorf("share settings: unsupported scan type %T", src)
	}
}

// ShareLink 分享链接，访问计数与过期判断的真源.
type ShareLink struct {
	ID            string     `gorm:"primaryKey;size:64"       json:"id"`
	FileID        string     `gorm:"size:36;index;not null"   json:"file_id"`
	OwnerID       string     `gorm:"size:36;index;not null"   json:"owner_id"`
	PasswordHash  string     `gorm:"size:255"                 json:"-"`
	ExpiresAt     *time.Time `gorm:"index"                    json:"expires_at,omitempty"`
	AllowDownload bool       `gorm:"not null"                 json:"allow_download"`
	AllowPreview  bool       `gorm:"not null"                 json:"allow_preview"`
	AccessCount   int64      `gorm:"not null;default:0"       json:"access_count"`
	IsActive      bool       `gorm:"not null;default:true"    json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Expired 判断在 now 时刻是否已过期，未设置过期时间的链接永不过期.
func (s *ShareLink) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// HasPassword 是否设置了访问密码.
func (s *ShareLink) HasPassword() bool {
	return s.PasswordHash != ""
}

// Settings 生成写入 FileRecord 的快照.
func (s *ShareLink) Settings() *ShareSettings {
	return &ShareSettings{
		ShareID:           s.ID,
		ExpiresAt:         s.ExpiresAt,
		AllowDownload:     s.AllowDownload,
		AllowPreview:      s.AllowPreview,
		PasswordProtected: s.HasPassword(),
	}
}

// ShareAccess 分享访问日志，按自增 ID 保持验证通过的先后顺序.
type ShareAccess struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ShareID    string    `gorm:"size:64;index;not null"   json:"share_id"`
	AccessedAt time.Time `gorm:"index"                    json:"accessed_at"`
	Origin     string    `gorm:"size:255"                 json:"origin"`
	UserAgent  string    `gorm:"size:512"                 json:"user_agent,omitempty"`
}

// All 返回需要迁移的全部模型.
func All() []any {
	return []any{&User{}, &FileRecord{}, &ShareLink{}, &ShareAccess{}}
}
