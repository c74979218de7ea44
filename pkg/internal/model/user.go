// Package model 定义元数据库中的用户、文件记录、分享链接与访问日志.
package model

import "time"

// User 用户账户与配额.
// StorageUsed 只通过条件更新原子增减，见 store.ChargeQuota / store.ReleaseQuota.
type User struct {
	ID           string    `gorm:"primaryKey;size:36"        json:"id"`
	Email        string    `gorm:"size:255;uniqueIndex"      json:"email"`
	Name         string    `gorm:"size:255"                  json:"name"`
	PasswordHash string    `gorm:"size:255"                  json:"-"`
	StorageUsed  int64     `gorm:"not null;default:0"        json:"storage_used"`
	StorageLimit int64     `gorm:"not null;default:0"        json:"storage_limit"`
	IsActive     bool      `gorm:"not null;default:true"     json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Remaining 返回剩余可用字节数，不小于 0.
func (u *User) Remaining() int64 {
	if r := u.StorageLimit - u.StorageUsed; r > 0 {
		return r
	}

	return 0
}
