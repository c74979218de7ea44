package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yeisme/cloudvault/pkg/internal/model"
)

// CreateUser 创建用户，邮箱统一小写并保持唯一.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	var n int64
	if err := s.conn(ctx).Model(&model.User{}).Where("email = ?", u.Email).Count(&n).Error; err != nil {
		return fmt.Errorf("count users by email: %w", err)
	}

	if n > 0 {
		return ErrDuplicate
	}

	if err := s.conn(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("create user: %w", translate(err))
	}

	return nil
}

// GetUser 按 ID 查询用户.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := s.conn(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, translate(err)
	}

	return &u, nil
}

// GetUserByEmail 按邮箱查询用户.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := s.conn(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error; err != nil {
		return nil, translate(err)
	}

	return &u, nil
}

// ListUserIDs 返回全部用户 ID.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.conn(ctx).Model(&model.User{}).Order("created_at").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}

	return ids, nil
}

// ChargeQuota 以单条条件 UPDATE 原子增加已用空间.
// 影响行数为 0 时区分用户不存在与配额不足.
func (s *Store) ChargeQuota(ctx context.Context, userID string, bytes int64) error {
	if bytes <= 0 {
		return nil
	}

	res := s.conn(ctx).Model(&model.User{}).
		Where("id = ? AND storage_used + ? <= storage_limit", userID, bytes).
		Update("storage_used", gorm.Expr("storage_used + ?", bytes))
	if res.Error != nil {
		return fmt.Errorf("charge quota: %w", res.Error)
	}

	if res.RowsAffected == 1 {
		return nil
	}

	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}

	return ErrQuotaExceeded
}

// ReleaseQuota 原子减少已用空间，结果不小于 0.
func (s *Store) ReleaseQuota(ctx context.Context, userID string, bytes int64) error {
	if bytes <= 0 {
		return nil
	}

	res := s.conn(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("storage_used", gorm.Expr("CASE WHEN storage_used > ? THEN storage_used - ? ELSE 0 END", bytes, bytes))
	if res.Error != nil {
		return fmt.Errorf("release quota: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// SwapStorageUsed 仅当已用空间仍等于 expected 时写入 actual，返回是否写入.
// 对账期间有并发扣减时放弃本次修正，留给下一轮.
func (s *Store) SwapStorageUsed(ctx context.Context, userID string, expected, actual int64) (bool, error) {
	if actual < 0 {
		actual = 0
	}

	res := s.conn(ctx).Model(&model.User{}).
		Where("id = ? AND storage_used = ?", userID, expected).
		Update("storage_used", actual)
	if res.Error != nil {
		return false, fmt.Errorf("swap storage used: %w", res.Error)
	}

	return res.RowsAffected == 1, nil
}
