package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/cloudvault/pkg/configs"
	"github.com/yeisme/cloudvault/pkg/internal/media"
	"github.com/yeisme/cloudvault/pkg/internal/model"
	"github.com/yeisme/cloudvault/pkg/internal/scan"
	"github.com/yeisme/cloudvault/pkg/internal/storage/s3"
	"github.com/yeisme/cloudvault/pkg/internal/store"
	"github.com/yeisme/cloudvault/pkg/metrics"
	"github.com/yeisme/cloudvault/pkg/queue"
	"github.com/yeisme/cloudvault/pkg/tracing"
)

// FileState 批次中单个文件的处理状态.
//
//	pending -> scanning -> blocked
//	                    -> processing -> stored -> recorded
//	                                  -> failed
type FileState string

const (
	StatePending    FileState = "pending"
	StateScanning   FileState = "scanning"
	StateBlocked    FileState = "blocked"
	StateProcessing FileState = "processing"
	StateStored     FileState = "stored"
	StateRecorded   FileState = "recorded"
	StateFailed     FileState = "failed"
)

// 拦截原因.
const (
	ReasonInfected    = "Virus/malware detected"
	ReasonUploadError = "Upload error"
)

// Incoming 一个待上传文件，Open 每次调用返回新的读取器.
type Incoming struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// UploadedFile 上传成功的文件.
type UploadedFile struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	ContentType  string           `json:"content_type"`
	Size         int64            `json:"size"`
	ScanStatus   model.ScanStatus `json:"scan_status"`
	Width        int              `json:"width,omitempty"`
	Height       int              `json:"height,omitempty"`
	DownloadURL  string           `json:"download_url,omitempty"`
	ThumbnailURL string           `json:"thumbnail_url,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// BlockedFile 被拦截的文件.
type BlockedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Size   int64  `json:"size"`
	Detail string `json:"detail,omitempty"`
}

// UploadSummary 批次汇总.
type UploadSummary struct {
	Success       bool           `json:"success"`
	Message       string         `json:"message"`
	UploadedCount int            `json:"uploaded_count"`
	BlockedCount  int            `json:"blocked_count"`
	UploadedBytes int64          `json:"uploaded_bytes"`
	Uploaded      []UploadedFile `json:"uploaded"`
	Blocked       []BlockedFile  `json:"blocked"`
}

// UploadService 上传编排：校验、配额预检、逐文件扫描/处理/落库、一次性扣减配额.
type UploadService struct {
	cfg       configs.UploadConfig
	store     *store.Store
	objects   s3.Gateway
	scanner   *scan.Scanner
	processor *media.Processor
	rescans   RescanScheduler
	events    *events
	now       func() time.Time
}

// UploadBatch 处理一个上传批次.
// 校验失败返回 *ValidationError，配额不足返回 *QuotaError，二者都发生在任何写入之前.
// 单个文件的拦截或失败只记入汇总，不影响同批其他文件.
func (s *UploadService) UploadBatch(ctx context.Context, userID string, files []Incoming) (*UploadSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "upload.batch", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int("batch.files", len(files)),
	))
	defer span.End()

	l := logger(ctx, "upload").With().Str("user_id", userID).Logger()

	candidates := make([]Candidate, len(files))
	for i, f := range files {
		candidates[i] = Candidate{Name: f.Name, ContentType: f.ContentType, Size: f.Size}
	}

	if errs := s.admissionErrors(candidates); len(errs) > 0 {
		metrics.UploadBatches.WithLabelValues("rejected").Inc()
		span.SetStatus(codes.Error, "validation")
		l.Info().Strs("errors", errs).Msg("upload batch rejected by validation")

		return nil, &ValidationError{Errors: errs}
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}

		return nil, fault("load user", err)
	}

	if !user.IsActive {
		return nil, fmt.Errorf("user %s is inactive: %w", userID, ErrForbidden)
	}

	var attempted int64
	for _, f := range files {
		attempted += f.Size
	}

	if available := user.Remaining(); attempted > available {
		metrics.UploadBatches.WithLabelValues("rejected").Inc()
		l.Info().Int64("attempted", attempted).Int64("available", available).Msg("upload batch exceeds quota")

		return nil, &QuotaError{Attempted: attempted, Available: available}
	}

	sum := &UploadSummary{Uploaded: []UploadedFile{}, Blocked: []BlockedFile{}}

	var recorded []*model.FileRecord

	for _, f := range files {
		rec, blocked := s.processOne(ctx, l, userID, f)
		if blocked != nil {
			sum.Blocked = append(sum.Blocked, *blocked)

			continue
		}

		recorded = append(recorded, rec)
		sum.UploadedBytes += rec.Size
	}

	if sum.UploadedBytes > 0 {
		if err := s.store.ChargeQuota(ctx, userID, sum.UploadedBytes); err != nil {
			s.rollback(ctx, l, recorded)
			metrics.FilesBlocked.WithLabelValues("rollback").Add(float64(len(recorded)))
			tracing.Fail(span, err)

			if errors.Is(err, store.ErrQuotaExceeded) {
				available := int64(0)
				if fresh, gerr := s.store.GetUser(ctx, userID); gerr == nil {
					available = fresh.Remaining()
				}

				l.Warn().Int64("uploaded", sum.UploadedBytes).Int64("available", available).
					Msg("quota charge lost a race with a concurrent batch, rolled back")

				return nil, &QuotaError{Attempted: sum.UploadedBytes, Available: available}
			}

			return nil, fault("charge quota", err)
		}

		metrics.BytesStored.Add(float64(sum.UploadedBytes))
	}

	for _, rec := range recorded {
		sum.Uploaded = append(sum.Uploaded, s.describe(ctx, l, rec))
		s.afterCommit(ctx, l, rec)
	}

	sum.UploadedCount = len(sum.Uploaded)
	sum.BlockedCount = len(sum.Blocked)
	sum.Success = sum.UploadedCount > 0
	sum.Message = summaryMessage(sum.UploadedCount, sum.BlockedCount)

	metrics.FilesUploaded.Add(float64(sum.UploadedCount))
	metrics.UploadBatches.WithLabelValues(batchOutcome(sum)).Inc()

	span.SetAttributes(
		attribute.Int("batch.uploaded", sum.UploadedCount),
		attribute.Int("batch.blocked", sum.BlockedCount),
		attribute.Int64("batch.bytes", sum.UploadedBytes),
	)

	l.Info().Int("uploaded", sum.UploadedCount).Int("blocked", sum.BlockedCount).
		Int64("bytes", sum.UploadedBytes).Msg("upload batch finished")

	return sum, nil
}

// admissionErrors 返回拒绝整个批次的校验错误.
// 仅因危险扩展名不合格的文件不拒绝批次，交由扫描器逐文件拦截，同批其他文件照常上传.
func (s *UploadService) admissionErrors(candidates []Candidate) []string {
	issues, batchErr := checkBatch(candidates, s.cfg)

	var errs []string

	for _, is := range issues {
		if !is.dangerousOnly {
			errs = append(errs, is.message)
		}
	}

	if batchErr != "" {
		errs = append(errs, batchErr)
	}

	return errs
}

// processOne 推进单个文件的状态机，返回落库的记录或拦截项.
func (s *UploadService) processOne(ctx context.Context, bl zerolog.Logger, userID string, f Incoming) (*model.FileRecord, *BlockedFile) {
	l := bl.With().Str("file", f.Name).Logger()
	state := StatePending

	move := func(next FileState) {
		l.Debug().Str("from", string(state)).Str("to", string(next)).Msg("file state")
		state = next
	}

	block := func(reason, detail string, size int64) *BlockedFile {
		if reason == ReasonInfected {
			move(StateBlocked)
			metrics.FilesBlocked.WithLabelValues("scan").Inc()
		} else {
			move(StateFailed)
			metrics.FilesBlocked.WithLabelValues("error").Inc()
		}

		return &BlockedFile{Name: f.Name, Reason: reason, Size: size, Detail: detail}
	}

	data, err := readIncoming(f, s.cfg.MaxFileSize)
	if err != nil {
		l.Warn().Err(err).Msg("read upload failed")

		return nil, block(ReasonUploadError, err.Error(), f.Size)
	}

	size := int64(len(data))

	move(StateScanning)

	verdict := s.scanner.Scan(data, f.Name)
	metrics.ScanVerdicts.WithLabelValues("inline", string(verdict.Status)).Inc()

	switch verdict.Status {
	case scan.StatusInfected:
		l.Warn().Str("class", string(verdict.Class)).Str("reason", verdict.Reason).Msg("upload blocked by scanner")

		return nil, block(ReasonInfected, verdict.Reason, size)
	case scan.StatusError:
		l.Warn().Str("reason", verdict.Reason).Msg("inline scan failed, file recorded as pending")
	}

	move(StateProcessing)

	ct := NormalizeContentType(f.ContentType)
	digest := sha256.Sum256(data)
	checksum := hex.EncodeToString(digest[:])
	key := s3.OriginalKey(userID, s.now(), f.Name)
	meta := map[string]string{"owner-id": userID, "sha256": checksum}

	rec := &model.FileRecord{
		ID:           uuid.NewString(),
		OwnerID:      userID,
		OriginalName: f.Name,
		DisplayName:  displayName(f.Name),
		Size:         size,
		ContentType:  ct,
		StorageKey:   key,
		Checksum:     checksum,
		ScanStatus:   model.ScanClean,
	}

	if verdict.Status == scan.StatusError {
		rec.ScanStatus = model.ScanPending
		rec.ScanReason = verdict.Reason
	} else {
		at := s.now()
		rec.ScannedAt = &at
	}

	if media.NeedsProcessing(ct) {
		res, err := s.processor.Process(ctx, media.Input{Data: data, ContentType: ct, Key: key, Meta: meta})
		if err != nil {
			l.Warn().Err(err).Msg("media processing failed")

			return nil, block(ReasonUploadError, fmt.Errorf("%w: %w", ErrProcessing, err).Error(), size)
		}

		rec.ETag = res.Original.ETag
		rec.ThumbnailKey = res.ThumbnailKey
		rec.Width = res.Metadata.Width
		rec.Height = res.Metadata.Height
		rec.Format = res.Metadata.Format
	} else {
		put, err := s.objects.Put(ctx, key, bytes.NewReader(data), size, ct, meta)
		if err != nil {
			l.Warn().Err(err).Msg("store object failed")

			return nil, block(ReasonUploadError, err.Error(), size)
		}

		rec.ETag = put.ETag
		rec.Format = strings.TrimPrefix(scan.Ext(f.Name), ".")
	}

	move(StateStored)

	if err := s.store.CreateFile(ctx, rec); err != nil {
		l.Error().Err(err).Msg("record file failed, removing stored objects")
		removeObjects(ctx, s.objects, l, rec.StorageKey, rec.ThumbnailKey)

		return nil, block(ReasonUploadError, "metadata write failed", size)
	}

	move(StateRecorded)

	return rec, nil
}

// afterCommit 配额扣减成功后调度复扫并发布事件.
func (s *UploadService) afterCommit(ctx context.Context, l zerolog.Logger, rec *model.FileRecord) {
	if rec.ScanStatus == model.ScanClean && s.rescans != nil {
		if err := s.rescans.Schedule(ctx, RescanTarget{FileID: rec.ID, OwnerID: rec.OwnerID, StorageKey: rec.StorageKey}); err != nil {
			l.Warn().Err(err).Str("file_id", rec.ID).Msg("schedule rescan failed")
		}
	}

	s.events.fileStored(ctx, queue.FileStoredPayload{
		FileID:   rec.ID,
		OwnerID:  rec.OwnerID,
		FileName: rec.DisplayName,
		Object: queue.ObjectRef{
			Key: rec.StorageKey, ETag: rec.ETag, Size: rec.Size,
			ContentType: rec.ContentType, Checksum: rec.Checksum,
		},
		ThumbnailKey: rec.ThumbnailKey,
		ScanStatus:   string(rec.ScanStatus),
	})
}

// describe 生成带临时下载链接的响应项，签名失败时链接留空.
func (s *UploadService) describe(ctx context.Context, l zerolog.Logger, rec *model.FileRecord) UploadedFile {
	out := UploadedFile{
		ID:          rec.ID,
		Name:        rec.DisplayName,
		ContentType: rec.ContentType,
		Size:        rec.Size,
		ScanStatus:  rec.ScanStatus,
		Width:       rec.Width,
		Height:      rec.Height,
		CreatedAt:   rec.CreatedAt,
	}

	url, err := s.objects.SignedDownloadURL(ctx, rec.StorageKey, s.cfg.DownloadURLTTL, rec.DisplayName)
	if err != nil {
		l.Warn().Err(err).Str("file_id", rec.ID).Msg("sign download url failed")
	}

	out.DownloadURL = url

	if rec.ThumbnailKey != "" {
		if turl, err := s.objects.SignedDownloadURL(ctx, rec.ThumbnailKey, s.cfg.DownloadURLTTL, ""); err == nil {
			out.ThumbnailURL = turl
		}
	}

	return out
}

// rollback 撤销本批已落库的文件：删除对象并软删除记录.
func (s *UploadService) rollback(ctx context.Context, l zerolog.Logger, recs []*model.FileRecord) {
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		removeObjects(ctx, s.objects, l, rec.StorageKey, rec.ThumbnailKey)
		ids = append(ids, rec.ID)
	}

	if err := s.store.SoftDeleteFiles(ctx, ids...); err != nil {
		l.Error().Err(err).Strs("file_ids", ids).Msg("rollback soft delete failed")
	}
}

// removeObjects 尽力删除对象，失败只记录日志（可能残留孤儿对象）.
func removeObjects(ctx context.Context, objects s3.Gateway, l zerolog.Logger, keys ...string) []string {
	var orphaned []string

	for _, k := range keys {
		if k == "" {
			continue
		}

		if err := objects.Delete(ctx, k); err != nil {
			l.Warn().Err(err).Str("key", k).Msg("delete object failed, object may be orphaned")
			orphaned = append(orphaned, k)
		}
	}

	return orphaned
}

func readIncoming(f Incoming, limit int64) ([]byte, error) {
	if f.Open == nil {
		return nil, errors.New("no content")
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	if int64(len(data)) > limit {
		return nil, fmt.Errorf("content exceeds %d bytes", limit)
	}

	return data, nil
}

func displayName(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" {
		return "file"
	}

	return base
}

func summaryMessage(uploaded, blocked int) string {
	total := uploaded + blocked

	switch {
	case blocked == 0:
		return fmt.Sprintf("All %d %s uploaded successfully", uploaded, plural(uploaded))
	case uploaded == 0:
		return fmt.Sprintf("No files uploaded: %d %s blocked", blocked, plural(blocked))
	default:
		return fmt.Sprintf("Partial success: %d of %d %s uploaded, %d blocked", uploaded, total, plural(total), blocked)
	}
}

func plural(n int) string {
	if n == 1 {
		return "file"
	}

	return "files"
}

func batchOutcome(s *UploadSummary) string {
	switch {
	case s.BlockedCount == 0:
		return "ok"
	case s.UploadedCount == 0:
		return "blocked"
	default:
		return "partial"
	}
}
