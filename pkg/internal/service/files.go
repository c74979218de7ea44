package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/cloudvault/pkg/configs"
	"github.com/yeisme/cloudvault/pkg/internal/model"
	"github.com/yeisme/cloudvault/pkg/internal/storage/s3"
	"github.com/yeisme/cloudvault/pkg/internal/store"
	"github.com/yeisme/cloudvault/pkg/queue"
	"github.com/yeisme/cloudvault/pkg/tracing"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListFilesInput 列表与搜索参数，Page 从 1 开始.
type ListFilesInput struct {
	Search   string           `form:"q"`
	Status   model.ScanStatus `form:"status"`
	Page     int              `form:"page"`
	PageSize int              `form:"page_size"`
	Desc     bool             `form:"desc"`
}

// FileList 分页结果.
type FileList struct {
	Items    []model.FileRecord `json:"items"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// DownloadLink 临时下载链接.
type DownloadLink struct {
	URL       string `json:"download_url"`
	FileName  string `json:"file_name"`
	ExpiresIn int64  `json:"expires_in"`
}

// DeleteResult 删除结果，Orphaned 为未能删除的对象键.
type DeleteResult struct {
	FileID            string   `json:"file_id"`
	ReleasedBytes     int64    `json:"released_bytes"`
	DeactivatedShares []string `json:"deactivated_shares,omitempty"`
	Orphaned          []string `json:"orphaned,omitempty"`
}

// FileService 文件列表、详情、下载链接与删除.
type FileService struct {
	cfg     configs.UploadConfig
	store   *store.Store
	objects s3.Gateway
	shares  *ShareService
	events  *events
}

// List 分页列出用户文件，Search 非空时按名称模糊匹配.
func (s *FileService) List(ctx context.Context, ownerID string, in ListFilesInput) (*FileList, error) {
	page := max(in.Page, 1)

	size := in.PageSize
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}

	items, total, err := s.store.ListFiles(ctx, store.FileQuery{
		OwnerID: ownerID,
		Search:  in.Search,
		Status:  in.Status,
		Limit:   size,
		Offset:  (page - 1) * size,
		Desc:    in.Desc,
	})
	if err != nil {
		return nil, fault("list files", err)
	}

	if items == nil {
		items = []model.FileRecord{}
	}

	return &FileList{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// Get 返回用户自己的文件记录.
func (s *FileService) Get(ctx context.Context, ownerID, fileID string) (*model.FileRecord, error) {
	rec, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("file %s: %w", fileID, ErrNotFound)
		}

		return nil, fault("load file", err)
	}

	if rec.OwnerID != ownerID {
		return nil, fmt.Errorf("file %s: %w", fileID, ErrForbidden)
	}

	return rec, nil
}

// DownloadURL 为原始对象签发临时链接，感染文件拒绝.
func (s *FileService) DownloadURL(ctx context.Context, ownerID, fileID string) (*DownloadLink, error) {
	rec, err := s.Get(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	if !rec.Downloadable() {
		return nil, fmt.Errorf("file %s is quarantined: %w", fileID, ErrForbidden)
	}

	return s.sign(ctx, rec.StorageKey, rec.DisplayName)
}

// ThumbnailURL 为缩略图签发临时链接，没有缩略图时返回 ErrNotFound.
func (s *FileService) ThumbnailURL(ctx context.Context, ownerID, fileID string) (*DownloadLink, error) {
	rec, err := s.Get(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	if !rec.Downloadable() {
		return nil, fmt.Errorf("file %s is quarantined: %w", fileID, ErrForbidden)
	}

	if rec.ThumbnailKey == "" {
		return nil, fmt.Errorf("file %s has no thumbnail: %w", fileID, ErrNotFound)
	}

	return s.sign(ctx, rec.ThumbnailKey, "")
}

func (s *FileService) sign(ctx context.Context, key, name string) (*DownloadLink, error) {
	url, err := s.objects.SignedDownloadURL(ctx, key, s.cfg.DownloadURLTTL, name)
	if err != nil {
		return nil, fault("sign download url", err)
	}

	return &DownloadLink{URL: url, FileName: name, ExpiresIn: int64(s.cfg.DownloadURLTTL.Seconds())}, nil
}

// Delete 删除文件：尽力删除对象，软删除记录，停用分享并释放配额.
// 感染文件的配额已在隔离时释放，不重复释放；与复扫并发时只有一方释放.
func (s *FileService) Delete(ctx context.Context, ownerID, fileID string) (*DeleteResult, error) {
	ctx, span := tracing.StartSpan(ctx, "file.delete", trace.WithAttributes(attribute.String("file.id", fileID)))
	defer span.End()

	rec, err := s.Get(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	l := logger(ctx, "files").With().Str("file_id", rec.ID).Str("owner_id", ownerID).Logger()
	res := &DeleteResult{FileID: rec.ID}

	// 以删除时的状态为准，读取后才被复扫判定感染的文件由隔离流程释放配额
	release, err := s.store.DeleteFile(ctx, rec.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("file %s: %w", fileID, ErrNotFound)
		}

		return nil, fault("delete file record", err)
	}

	if !rec.ObjectPurged {
		res.Orphaned = removeObjects(ctx, s.objects, l, rec.StorageKey, rec.ThumbnailKey)
	}

	if ids, err := s.shares.deactivateForFile(ctx, rec.ID); err != nil {
		l.Warn().Err(err).Msg("deactivate shares failed")
	} else {
		res.DeactivatedShares = ids
	}

	if release {
		if err := s.store.ReleaseQuota(ctx, ownerID, rec.Size); err != nil {
			l.Warn().Err(err).Msg("release quota failed, left to reconciliation")
		} else {
			res.ReleasedBytes = rec.Size
		}
	}

	keys := []string{rec.StorageKey}
	if rec.ThumbnailKey != "" {
		keys = append(keys, rec.ThumbnailKey)
	}

	s.events.fileDeleted(ctx, queue.FileDeletedPayload{
		FileID:        rec.ID,
		OwnerID:       ownerID,
		Keys:          keys,
		ReleasedBytes: res.ReleasedBytes,
		Orphaned:      res.Orphaned,
	})

	l.Info().Int64("released", res.ReleasedBytes).Strs("orphaned", res.Orphaned).Msg("file deleted")

	return res, nil
}
