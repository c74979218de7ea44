package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yeisme/cloudvault/pkg/internal/model"
)

// FileQuery 文件列表查询条件.
type FileQuery struct {
	OwnerID string
	Search  string // 名称模糊匹配，大小写不敏感
	Status  model.ScanStatus
	Limit   int
	Offset  int
	Desc    bool // 按创建时间倒序
}

// FileSummary 用户文件汇总.
type FileSummary struct {
	Count     int64                      `json:"count"`
	TotalSize int64                      `json:"total_size"`
	ByStatus  map[model.ScanStatus]int64 `json:"by_status"`
}

// TypeStat 按内容类别统计.
type TypeStat struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
	Size     int64  `json:"size"`
}

// CreateFile 写入文件记录.
func (s *Store) CreateFile(ctx context.Context, f *model.FileRecord) error {
	if err := s.conn(ctx).Create(f).Error; err != nil {
		return fmt.Errorf("create file record: %w", translate(err))
	}

	return nil
}

// GetFile 按 ID 查询未删除的文件，不校验归属.
func (s *Store) GetFile(ctx context.Context, id string) (*model.FileRecord, error) {
	var f model.FileRecord
	if err := s.conn(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, translate(err)
	}

	return &f, nil
}

// GetOwnedFile 按 ID 与属主查询未删除的文件.
func (s *Store) GetOwnedFile(ctx context.Context, ownerID, id string) (*model.FileRecord, error) {
	var f model.FileRecord
	if err := s.conn(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&f).Error; err != nil {
		return nil, translate(err)
	}

	return &f, nil
}

// GetFileUnscoped 查询文件，包含已软删除的记录.
func (s *Store) GetFileUnscoped(ctx context.Context, id string) (*model.FileRecord, error) {
	var f model.FileRecord
	if err := s.conn(ctx).Unscoped().Where("id = ?", id).First(&f).Error; err != nil {
		return nil, translate(err)
	}

	return &f, nil
}

// ListFiles 分页查询用户文件，返回当前页与总数.
func (s *Store) ListFiles(ctx context.Context, q FileQuery) ([]model.FileRecord, int64, error) {
	tx := s.conn(ctx).Model(&model.FileRecord{}).Where("owner_id = ?", q.OwnerID)

	if term := strings.TrimSpace(q.Search); term != "" {
		tx = tx.Where("LOWER(display_name) LIKE ?", "%"+strings.ToLower(term)+"%")
	}

	if q.Status != "" {
		tx = tx.Where("scan_status = ?", q.Status)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count files: %w", err)
	}

	order := "created_at ASC"
	if q.Desc {
		order = "created_at DESC"
	}

	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}

	var files []model.FileRecord
	if err := tx.Order(order).Find(&files).Error; err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}

	return files, total, nil
}

// TransitionScanStatus 仅当记录未删除且状态仍为 from 时更新扫描状态，返回是否生效.
// 复扫与用户删除并发时以此保证只有一方释放配额.
func (s *Store) TransitionScanStatus(ctx context.Context, id string, from, to model.ScanStatus, reason string, at time.Time) (bool, error) {
	res := s.conn(ctx).Model(&model.FileRecord{}).
		Where("id = ? AND scan_status = ?", id, from).
		Updates(map[string]any{
			"scan_status": to,
			"scan_reason": reason,
			"scanned_at":  at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("transition scan status: %w", res.Error)
	}

	return res.RowsAffected == 1, nil
}

// DeleteFile 软删除单个文件，release 表示调用方应释放其配额.
// 已判定感染的文件配额在隔离时已释放，删除时 release 为 false；记录不存在或已删除返回 ErrNotFound.
func (s *Store) DeleteFile(ctx context.Context, id string) (release bool, err error) {
	res := s.conn(ctx).Where("id = ? AND scan_status <> ?", id, model.ScanInfected).Delete(&model.FileRecord{})
	if res.Error != nil {
		return false, fmt.Errorf("delete file: %w", res.Error)
	}

	if res.RowsAffected == 1 {
		return true, nil
	}

	res = s.conn(ctx).Where("id = ?", id).Delete(&model.FileRecord{})
	if res.Error != nil {
		return false, fmt.Errorf("delete file: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return false, ErrNotFound
	}

	return false, nil
}

// SoftDeleteFiles 软删除文件记录，保留审计历史.
func (s *Store) SoftDeleteFiles(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	if err := s.conn(ctx).Where("id IN ?", ids).Delete(&model.FileRecord{}).Error; err != nil {
		return fmt.Errorf("soft delete files: %w", err)
	}

	return nil
}

// MarkPurged 标记对象已从对象存储清除.
func (s *Store) MarkPurged(ctx context.Context, id string) error {
	if err := s.conn(ctx).Unscoped().Model(&model.FileRecord{}).Where("id = ?", id).
		Update("object_purged", true).Error; err != nil {
		return fmt.Errorf("mark purged: %w", err)
	}

	return nil
}

// ListInfectedUnpurged 列出已判定感染但对象尚未清除的记录（含已软删除）.
func (s *Store) ListInfectedUnpurged(ctx context.Context, limit int) ([]model.FileRecord, error) {
	tx := s.conn(ctx).Unscoped().
		Where("scan_status = ? AND object_purged = ?", model.ScanInfected, false).
		Order("updated_at")
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var files []model.FileRecord
	if err := tx.Find(&files).Error; err != nil {
		return nil, fmt.Errorf("list infected files: %w", err)
	}

	return files, nil
}

// SumActiveUsage 计算用户未删除且未感染文件的总字节数.
func (s *Store) SumActiveUsage(ctx context.Context, ownerID string) (int64, error) {
	var total int64
	if err := s.conn(ctx).Model(&model.FileRecord{}).
		Where("owner_id = ? AND scan_status <> ?", ownerID, model.ScanInfected).
		Select("COALESCE(SUM(size), 0)").Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("sum usage: %w", err)
	}

	return total, nil
}

// Summary 汇总用户文件数量、总大小与各扫描状态数量.
func (s *Store) Summary(ctx context.Context, ownerID string) (*FileSummary, error) {
	var rows []struct {
		ScanStatus model.ScanStatus
		Count      int64
		Size       int64
	}

	if err := s.conn(ctx).Model(&model.FileRecord{}).
		Select("scan_status, COUNT(*) AS count, COALESCE(SUM(size), 0) AS size").
		Where("owner_id = ?", ownerID).
		Group("scan_status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("file summary: %w", err)
	}

	sum := &FileSummary{ByStatus: make(map[model.ScanStatus]int64, len(rows))}
	for _, r := range rows {
		sum.Count += r.Count
		sum.TotalSize += r.Size
		sum.ByStatus[r.ScanStatus] = r.Count
	}

	return sum, nil
}

// TypeDistribution 按内容类别（image、video、application 等）统计.
func (s *Store) TypeDistribution(ctx context.Context, ownerID string) ([]TypeStat, error) {
	var rows []struct {
		ContentType string
		Count       int64
		Size        int64
	}

	if err := s.conn(ctx).Model(&model.FileRecord{}).
		Select("content_type, COUNT(*) AS count, COALESCE(SUM(size), 0) AS size").
		Where("owner_id = ?", ownerID).
		Group("content_type").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("type distribution: %w", err)
	}

	byCat := make(map[string]*TypeStat)
	for _, r := range rows {
		cat := Category(r.ContentType)

		st, ok := byCat[cat]
		if !ok {
			st = &TypeStat{Category: cat}
			byCat[cat] = st
		}

		st.Count += r.Count
		st.Size += r.Size
	}

	out := make([]TypeStat, 0, len(byCat))
	for _, st := range byCat {
		out = append(out, *st)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Size != out[j].Size {
			return out[i].Size > out[j].Size
		}

		return out[i].Category < out[j].Category
	})

	return out, nil
}

// Category 返回内容类型的顶级类别，未知时为 other.
func Category(contentType string) string {
	top, _, ok := strings.Cut(strings.ToLower(contentType), "/")
	if !ok || top == "" {
		return "other"
	}

	return top
}
