package service

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/cloudvault/pkg/cache"
	"github.com/yeisme/cloudvault/pkg/configs"
	"github.com/yeisme/cloudvault/pkg/internal/model"
	"github.com/yeisme/cloudvault/pkg/internal/storage/s3"
	"github.com/yeisme/cloudvault/pkg/internal/store"
	"github.com/yeisme/cloudvault/pkg/metrics"
	"github.com/yeisme/cloudvault/pkg/password"
	"github.com/yeisme/cloudvault/pkg/queue"
	"github.com/yeisme/cloudvault/pkg/tracing"
)

// ExpiryUnit 分享有效期单位.
type ExpiryUnit string

const (
	ExpiryHours ExpiryUnit = "hours"
	ExpiryDays  ExpiryUnit = "days"
	ExpiryNever ExpiryUnit = "never"
)

// ExpiresIn 分享有效期：N 小时、N 天或永不过期.
type ExpiresIn struct {
	Unit ExpiryUnit
	N    int
}

var expiresInPattern = regexp.MustCompile(`^(\d+)\s*([a-z]*)$`)

// MaxExpiryDays 有效期上限（约 100 年），超出会导致 time.Duration 溢出.
const MaxExpiryDays = 36500

// ParseExpiresIn 解析 "12h"、"7d"、"never" 形式的有效期.
// 未识别的单位按天处理；数字必须为正.
func ParseExpiresIn(raw string) (ExpiresIn, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == string(ExpiryNever) {
		return ExpiresIn{Unit: ExpiryNever}, nil
	}

	m := expiresInPattern.FindStringSubmatch(s)
	if m == nil {
		return ExpiresIn{}, &ValidationError{Errors: []string{fmt.Sprintf("invalid expires_in %q", raw)}}
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return ExpiresIn{}, &ValidationError{Errors: []string{fmt.Sprintf("expires_in must be positive, got %q", raw)}}
	}

	unit, limit := ExpiryDays, MaxExpiryDays
	if m[2] == "h" || m[2] == "hour" || m[2] == "hours" {
		unit, limit = ExpiryHours, MaxExpiryDays*24
	}

	if n > limit {
		return ExpiresIn{}, &ValidationError{Errors: []string{
			fmt.Sprintf("expires_in %q exceeds the maximum of %d days", raw, MaxExpiryDays)}}
	}

	return ExpiresIn{Unit: unit, N: n}, nil
}

// Duration 返回有效期长度，never 返回 0.
func (e ExpiresIn) Duration() time.Duration {
	switch e.Unit {
	case ExpiryHours:
		return time.Duration(e.N) * time.Hour
	case ExpiryDays:
		return time.Duration(e.N) * 24 * time.Hour
	default:
		return 0
	}
}

// ExpiresAt 以 now 为起点计算过期时间，never 返回 nil.
func (e ExpiresIn) ExpiresAt(now time.Time) *time.Time {
	if e.Unit == ExpiryNever {
		return nil
	}

	at := now.Add(e.Duration()).UTC()

	return &at
}

func (e ExpiresIn) String() string {
	switch e.Unit {
	case ExpiryHours:
		return strconv.Itoa(e.N) + "h"
	case ExpiryDays:
		return strconv.Itoa(e.N) + "d"
	default:
		return string(ExpiryNever)
	}
}

// CreateShareInput 创建分享的参数，权限为空时默认允许.
type CreateShareInput struct {
	Password      string `json:"password,omitempty"`
	ExpiresIn     string `json:"expires_in,omitempty"`
	AllowDownload *bool  `json:"allow_download,omitempty"`
	AllowPreview  *bool  `json:"allow_preview,omitempty"`
}

// ShareInfo 所有者视角的分享链接.
type ShareInfo struct {
	ID                string     `json:"id"`
	FileID            string     `json:"file_id"`
	URL               string     `json:"url"`
	ExpiresAt         *time.Time `json:"expires_at"`
	AllowDownload     bool       `json:"allow_download"`
	AllowPreview      bool       `json:"allow_preview"`
	PasswordProtected bool       `json:"password_protected"`
	AccessCount       int64      `json:"access_count"`
	IsActive          bool       `json:"is_active"`
	Status            string     `json:"status"` // active / expired / revoked
	CreatedAt         time.Time  `json:"created_at"`
}

// SharedFile 公开访问者看到的分享信息，不含访问计数与密码.
type SharedFile struct {
	ShareID          string     `json:"share_id"`
	Name             string     `json:"name"`
	Size             int64      `json:"size"`
	ContentType      string     `json:"content_type"`
	Width            int        `json:"width,omitempty"`
	Height           int        `json:"height,omitempty"`
	AllowDownload    bool       `json:"allow_download"`
	AllowPreview     bool       `json:"allow_preview"`
	RequiresPassword bool       `json:"requires_password"`
	ExpiresAt        *time.Time `json:"expires_at"`
}

// ShareDownload 分享下载结果.
type ShareDownload struct {
	URL         string `json:"download_url"`
	FileName    string `json:"file_name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	ExpiresIn   int64  `json:"expires_in"` // 链接有效秒数
	AccessCount int64  `json:"access_count"`
}

// shareView 缓存中的分享快照，只用于公开展示；过期与停用状态在每次读取时重新判定.
type shareView struct {
	File     SharedFile `json:"file"`
	Active   bool       `json:"active"`
	Infected bool       `json:"infected"`
}

// ShareService 分享链接：创建、公开解析、口令校验、计数下载、撤销与访问日志.
type ShareService struct {
	store   *store.Store
	objects s3.Gateway
	cache   *cache.Cache
	cfg     configs.ShareConfig
	urlTTL  time.Duration
	events  *events
	now     func() time.Time

	idMu    sync.Mutex
	entropy io.Reader // ulid.Monotonic，非并发安全，由 idMu 保护
}

func newShareService(d Deps, ev *events) *ShareService {
	return &ShareService{
		store:   d.Store,
		objects: d.Objects,
		cache:   cache.New(d.Cache, "share", d.Config.Share.CacheTTL),
		cfg:     d.Config.Share,
		urlTTL:  d.Config.Upload.DownloadURLTTL,
		events:  ev,
		now:     d.Now,
		entropy: ulid.Monotonic(crand.Reader, 0),
	}
}

// newID 生成 "sh_" 前缀的 ULID，同一毫秒内单调递增.
func (s *ShareService) newID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()

	return "sh_" + ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

// Create 为所有者的文件创建分享链接.
func (s *ShareService) Create(ctx context.Context, ownerID, fileID string, in CreateShareInput) (*ShareInfo, error) {
	ctx, span := tracing.StartSpan(ctx, "share.create", trace.WithAttributes(attribute.String("file.id", fileID)))
	defer span.End()

	rec, err := s.ownedFile(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}

	if !rec.Downloadable() {
		return nil, fmt.Errorf("file %s is quarantined: %w", fileID, ErrForbidden)
	}

	raw := in.ExpiresIn
	if strings.TrimSpace(raw) == "" {
		raw = s.cfg.DefaultExpiresIn
	}

	exp, err := ParseExpiresIn(raw)
	if err != nil {
		return nil, err
	}

	link := &model.ShareLink{
		ID:            s.newID(),
		FileID:        rec.ID,
		OwnerID:       ownerID,
		ExpiresAt:     exp.ExpiresAt(s.now()),
		AllowDownload: boolOr(in.AllowDownload, true),
		AllowPreview:  boolOr(in.AllowPreview, true),
		IsActive:      true,
	}

	if in.Password != "" {
		hash, err := password.Hash(in.Password)
		if err != nil {
			return nil, fault("hash share password", err)
		}

		link.PasswordHash = hash
	}

	if err := s.store.CreateShare(ctx, link); err != nil {
		return nil, fault("create share", err)
	}

	logger(ctx, "share").Info().Str("share_id", link.ID).Str("file_id", rec.ID).
		Str("expires_in", exp.String()).Bool("password", link.HasPassword()).Msg("share created")

	info := s.info(link)

	return &info, nil
}

// Resolve 公开解析分享，不校验口令也不计数.
func (s *ShareService) Resolve(ctx context.Context, shareID string) (*SharedFile, error) {
	v, err := cache.Load(ctx, s.cache, shareID, func(ctx context.Context) (shareView, error) {
		return s.loadView(ctx, shareID)
	})
	if err != nil {
		metrics.ShareAccesses.WithLabelValues(accessResult(err)).Inc()

		return nil, err
	}

	if err := s.checkView(v); err != nil {
		metrics.ShareAccesses.WithLabelValues(accessResult(err)).Inc()

		return nil, err
	}

	metrics.ShareAccesses.WithLabelValues("resolved").Inc()

	return &v.File, nil
}

// Verify 校验分享口令，不计数；无口令的分享总是通过.
func (s *ShareService) Verify(ctx context.Context, shareID, pw string) error {
	link, _, err := s.accessible(ctx, shareID)
	if err != nil {
		metrics.ShareAccesses.WithLabelValues(accessResult(err)).Inc()

		return err
	}

	if err := checkPassword(link, pw); err != nil {
		metrics.ShareAccesses.WithLabelValues(accessResult(err)).Inc()

		return err
	}

	return nil
}

// Download 校验口令与下载权限后记录一次访问并返回临时下载链接.
// 每次成功调用 access_count 恰好加一.
func (s *ShareService) Download(ctx context.Context, shareID, pw, origin, userAgent string) (*ShareDownload, error) {
	ctx, span := tracing.StartSpan(ctx, "share.download", trace.WithAttributes(attribute.String("share.id", shareID)))
	defer span.End()

	out, err := s.download(ctx, shareID, pw, origin, userAgent)
	metrics.ShareAccesses.WithLabelValues(accessResult(err)).Inc()

	return out, err
}

func (s *ShareService) download(ctx context.Context, shareID, pw, origin, userAgent string) (*ShareDownload, error) {
	link, rec, err := s.accessible(ctx, shareID)
	if err != nil {
		return nil, err
	}

	if err := checkPassword(link, pw); err != nil {
		return nil, err
	}

	if !link.AllowDownload {
		return nil, fmt.Errorf("share %s does not allow download: %w", shareID, ErrForbidden)
	}

	url, err := s.objects.SignedDownloadURL(ctx, rec.StorageKey, s.urlTTL, rec.DisplayName)
	if err != nil {
		return nil, fault("sign download url", err)
	}

	entry := model.ShareAccess{AccessedAt: s.now().UTC(), Origin: origin}
	if s.cfg.RecordUserAgent {
		entry.UserAgent = truncate(userAgent, 512)
	}

	count, err := s.store.RecordAccess(ctx, link.ID, entry)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("share %s: %w", shareID, ErrNotFound)
		}

		return nil, fault("record share access", err)
	}

	s.events.shareAccessed(ctx, queue.ShareAccessedPayload{
		ShareID:     link.ID,
		FileID:      rec.ID,
		OwnerID:     link.OwnerID,
		Origin:      origin,
		AccessCount: count,
		AccessedAt:  entry.AccessedAt,
	})

	return &ShareDownload{
		URL:         url,
		FileName:    rec.DisplayName,
		Size:        rec.Size,
		ContentType: rec.ContentType,
		ExpiresIn:   int64(s.urlTTL / time.Second),
		AccessCount: count,
	}, nil
}

// List 列出所有者的分享链接.
func (s *ShareService) List(ctx context.Context, ownerID string, activeOnly bool) ([]ShareInfo, error) {
	links, err := s.store.ListShares(ctx, ownerID, activeOnly)
	if err != nil {
		return nil, fault("list shares", err)
	}

	out := make([]ShareInfo, 0, len(links))
	for i := range links {
		out = append(out, s.info(&links[i]))
	}

	return out, nil
}

// Revoke 停用分享链接，重复撤销不报错.
func (s *ShareService) Revoke(ctx context.Context, ownerID, shareID string) error {
	link, err := s.ownedShare(ctx, ownerID, shareID)
	if err != nil {
		return err
	}

	if link.IsActive {
		if err := s.store.DeactivateShare(ctx, link.ID); err != nil {
			return fault("deactivate share", err)
		}

		logger(ctx, "share").Info().Str("share_id", link.ID).Msg("share revoked")
	}

	s.invalidate(ctx, link.ID)

	return nil
}

// AccessLog 返回分享的访问记录，仅所有者可见.
func (s *ShareService) AccessLog(ctx context.Context, ownerID, shareID string, limit int) ([]model.ShareAccess, error) {
	if _, err := s.ownedShare(ctx, ownerID, shareID); err != nil {
		return nil, err
	}

	entries, err := s.store.ListAccessLog(ctx, shareID, limit)
	if err != nil {
		return nil, fault("list access log", err)
	}

	return entries, nil
}

// SweepExpired 停用已过期但仍标记为有效的链接，返回处理数量.
func (s *ShareService) SweepExpired(ctx context.Context, batch int) (int, error) {
	links, err := s.store.ListExpiredActive(ctx, s.now(), batch)
	if err != nil {
		return 0, fault("list expired shares", err)
	}

	n := 0

	for _, link := range links {
		if err := s.store.DeactivateShare(ctx, link.ID); err != nil {
			logger(ctx, "share").Warn().Err(err).Str("share_id", link.ID).Msg("deactivate expired share failed")

			continue
		}

		s.invalidate(ctx, link.ID)
		n++
	}

	return n, nil
}

// deactivateForFile 停用文件上的全部链接并清理缓存.
func (s *ShareService) deactivateForFile(ctx context.Context, fileID string) ([]string, error) {
	ids, err := s.store.DeactivateSharesForFile(ctx, fileID)
	if err != nil {
		return nil, fault("deactivate shares", err)
	}

	s.invalidate(ctx, ids...)

	return ids, nil
}

func (s *ShareService) invalidate(ctx context.Context, ids ...string) {
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		logger(ctx, "share").Warn().Err(err).Strs("share_ids", ids).Msg("invalidate share cache failed")
	}
}

// accessible 从数据库读取链接与文件并判定可访问性，依次检查过期、文件隔离、停用.
func (s *ShareService) accessible(ctx context.Context, shareID string) (*model.ShareLink, *model.FileRecord, error) {
	link, err := s.store.GetShare(ctx, shareID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("share %s: %w", shareID, ErrNotFound)
		}

		return nil, nil, fault("load share", err)
	}

	if link.Expired(s.now()) {
		return nil, nil, fmt.Errorf("share %s: %w", shareID, ErrExpired)
	}

	rec, err := s.store.GetFile(ctx, link.FileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("shared file %s: %w", link.FileID, ErrNotFound)
		}

		return nil, nil, fault("load shared file", err)
	}

	if !rec.Downloadable() {
		return nil, nil, fmt.Errorf("shared file %s is quarantined: %w", rec.ID, ErrForbidden)
	}

	if !link.IsActive {
		return nil, nil, fmt.Errorf("share %s: %w", shareID, ErrNotFound)
	}

	return link, rec, nil
}

// loadView 构造缓存快照；链接或文件不存在返回 ErrNotFound.
func (s *ShareService) loadView(ctx context.Context, shareID string) (shareView, error) {
	link, err := s.store.GetShare(ctx, shareID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return shareView{}, fmt.Errorf("share %s: %w", shareID, ErrNotFound)
		}

		return shareView{}, fault("load share", err)
	}

	rec, err := s.store.GetFile(ctx, link.FileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return shareView{}, fmt.Errorf("shared file %s: %w", link.FileID, ErrNotFound)
		}

		return shareView{}, fault("load shared file", err)
	}

	return shareView{
		File: SharedFile{
			ShareID:          link.ID,
			Name:             rec.DisplayName,
			Size:             rec.Size,
			ContentType:      rec.ContentType,
			Width:            rec.Width,
			Height:           rec.Height,
			AllowDownload:    link.AllowDownload,
			AllowPreview:     link.AllowPreview,
			RequiresPassword: link.HasPassword(),
			ExpiresAt:        link.ExpiresAt,
		},
		Active:   link.IsActive,
		Infected: !rec.Downloadable(),
	}, nil
}

func (s *ShareService) checkView(v shareView) error {
	if exp := v.File.ExpiresAt; exp != nil && !s.now().Before(*exp) {
		return fmt.Errorf("share %s: %w", v.File.ShareID, ErrExpired)
	}

	if v.Infected {
		return fmt.Errorf("share %s: %w", v.File.ShareID, ErrForbidden)
	}

	if !v.Active {
		return fmt.Errorf("share %s: %w", v.File.ShareID, ErrNotFound)
	}

	return nil
}

func (s *ShareService) ownedFile(ctx context.Context, ownerID, fileID string) (*model.FileRecord, error) {
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

func (s *ShareService) ownedShare(ctx context.Context, ownerID, shareID string) (*model.ShareLink, error) {
	link, err := s.store.GetShare(ctx, shareID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("share %s: %w", shareID, ErrNotFound)
		}

		return nil, fault("load share", err)
	}

	if link.OwnerID != ownerID {
		return nil, fmt.Errorf("share %s: %w", shareID, ErrForbidden)
	}

	return link, nil
}

func (s *ShareService) info(l *model.ShareLink) ShareInfo {
	status := "active"

	switch {
	case l.Expired(s.now()):
		status = "expired"
	case !l.IsActive:
		status = "revoked"
	}

	return ShareInfo{
		ID:                l.ID,
		FileID:            l.FileID,
		URL:               strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/api/v1/shared/" + l.ID,
		ExpiresAt:         l.ExpiresAt,
		AllowDownload:     l.AllowDownload,
		AllowPreview:      l.AllowPreview,
		PasswordProtected: l.HasPassword(),
		AccessCount:       l.AccessCount,
		IsActive:          l.IsActive,
		Status:            status,
		CreatedAt:         l.CreatedAt,
	}
}

func checkPassword(link *model.ShareLink, pw string) error {
	if !link.HasPassword() {
		return nil
	}

	ok, err := password.Verify(pw, link.PasswordHash)
	if err != nil || !ok {
		return fmt.Errorf("share %s: wrong password: %w", link.ID, ErrUnauthorized)
	}

	return nil
}

func accessResult(err error) string {
	switch {
	case err == nil:
		return "granted"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrUnauthorized):
		return "bad_password"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}

	return *p
}

// truncate 截断到至多 n 字节，不拆分多字节字符.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n]
}
