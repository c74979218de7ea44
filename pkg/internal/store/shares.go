package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yeisme/cloudvault/pkg/internal/model"
)

// CreateShare 在事务中写入分享链接并刷新文件上的分享快照.
func (s *Store) CreateShare(ctx context.Context, link *model.ShareLink) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(link).Error; err != nil {
			return fmt.Errorf("create share link: %w", translate(err))
		}

		return stampSnapshot(tx, link.FileID, link.Settings())
	})
}

// GetShare 按 ID 查询分享链接.
func (s *Store) GetShare(ctx context.Context, id string) (*model.ShareLink, error) {
	var l model.ShareLink
	if err := s.conn(ctx).Where("id = ?", id).First(&l).Error; err != nil {
		return nil, translate(err)
	}

	return &l, nil
}

// ListShares 列出用户创建的分享链接，最新的在前.
func (s *Store) ListShares(ctx context.Context, ownerID string, activeOnly bool) ([]model.ShareLink, error) {
	tx := s.conn(ctx).Where("owner_id = ?", ownerID)
	if activeOnly {
		tx = tx.Where("is_active = ?", true)
	}

	var links []model.ShareLink
	if err := tx.Order("created_at DESC").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}

	return links, nil
}

// DeactivateShare 停用单个分享链接，并按剩余有效链接重建文件快照.
func (s *Store) DeactivateShare(ctx context.Context, id string) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var l model.ShareLink
		if err := tx.Where("id = ?", id).First(&l).Error; err != nil {
			return translate(err)
		}

		if err := tx.Model(&model.ShareLink{}).Where("id = ?", id).Update("is_active", false).Error; err != nil {
			return fmt.Errorf("deactivate share: %w", err)
		}

		return refreshSnapshot(tx, l.FileID)
	})
}

// DeactivateSharesForFile 停用文件的全部有效链接并清空快照，返回被停用的链接 ID.
func (s *Store) DeactivateSharesForFile(ctx context.Context, fileID string) ([]string, error) {
	var ids []string

	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.ShareLink{}).
			Where("file_id = ? AND is_active = ?", fileID, true).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("list file shares: %w", err)
		}

		if len(ids) > 0 {
			if err := tx.Model(&model.ShareLink{}).Where("id IN ?", ids).
				Update("is_active", false).Error; err != nil {
				return fmt.Errorf("deactivate file shares: %w", err)
			}
		}

		return stampSnapshot(tx, fileID, nil)
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// RecordAccess 在同一事务中递增访问计数并追加访问日志，返回递增后的计数.
// 链接已停用时返回 ErrNotFound.
func (s *Store) RecordAccess(ctx context.Context, shareID string, entry model.ShareAccess) (int64, error) {
	var count int64

	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ShareLink{}).
			Where("id = ? AND is_active = ?", shareID, true).
			Update("access_count", gorm.Expr("access_count + 1"))
		if res.Error != nil {
			return fmt.Errorf("increment access count: %w", res.Error)
		}

		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		entry.ID = 0
		entry.ShareID = shareID
		if entry.AccessedAt.IsZero() {
			entry.AccessedAt = time.Now()
		}

		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("append access log: %w", err)
		}

		return tx.Model(&model.ShareLink{}).Where("id = ?", shareID).Pluck("access_count", &count).Error
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// ListAccessLog 按验证先后顺序返回访问日志.
func (s *Store) ListAccessLog(ctx context.Context, shareID string, limit int) ([]model.ShareAccess, error) {
	tx := s.conn(ctx).Where("share_id = ?", shareID).Order("id ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var entries []model.ShareAccess
	if err := tx.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list access log: %w", err)
	}

	return entries, nil
}

// ListExpiredActive 列出已过期但仍为 active 的链接.
func (s *Store) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]model.ShareLink, error) {
	tx := s.conn(ctx).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
		Order("expires_at")
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var links []model.ShareLink
	if err := tx.Find(&links).Error; err != nil {
		return nil, fmt.Errorf("list expired shares: %w", err)
	}

	return links, nil
}

// refreshSnapshot 以最新的有效链接重建文件快照；没有有效链接时清空.
func refreshSnapshot(tx *gorm.DB, fileID string) error {
	var latest model.ShareLink

	err := tx.Where("file_id = ? AND is_active = ?", fileID, true).
		Order("created_at DESC").First(&latest).Error
	switch {
	case err == nil:
		return stampSnapshot(tx, fileID, latest.Settings())
	case errors.Is(err, gorm.ErrRecordNotFound):
		return stampSnapshot(tx, fileID, nil)
	default:
		return fmt.Errorf("load latest share: %w", err)
	}
}

func stampSnapshot(tx *gorm.DB, fileID string, settings *model.ShareSettings) error {
	updates := map[string]any{"is_shared": settings != nil}
	if settings != nil {
		updates["share_settings"] = settings
	} else {
		updates["share_settings"] = gorm.Expr("NULL")
	}

	if err := tx.Unscoped().Model(&model.FileRecord{}).Where("id = ?", fileID).Updates(updates).Error; err != nil {
		return fmt.Errorf("stamp share snapshot: %w", err)
	}

	return nil
}
