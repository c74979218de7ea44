// Package store 基于 GORM 实现元数据存储：用户、文件记录、分享链接与访问日志.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yeisme/cloudvault/pkg/internal/model"
)

var (
	// ErrNotFound 记录不存在.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicate 唯一约束冲突.
	ErrDuplicate = errors.New("store: duplicate record")
	// ErrQuotaExceeded 条件扣减失败，剩余配额不足.
	ErrQuotaExceeded = errors.New("store: quota exceeded")
)

// Store 元数据存储，所有方法都可并发调用.
type Store struct {
	db *gorm.DB
}

// New 创建 Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB 返回底层 *gorm.DB.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Migrate 自动迁移全部模型.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	return nil
}

// Transaction 在事务中执行 fn，fn 收到绑定事务的 Store.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// translate 统一转换 GORM 错误.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
