// Package media 为图片与视频生成规范化元数据与缩略图，并通过对象存储持久化原件与派生产物.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp" // 注册 webp 解码器

	"github.com/yeisme/cloudvault/pkg/internal/storage/s3"
)

const (
	// DefaultMaxSide 缩略图最大边长.
	DefaultMaxSide = 300
	// DefaultQuality 缩略图 JPEG 质量.
	DefaultQuality = 80
	// ThumbnailContentType 缩略图统一编码为 JPEG.
	ThumbnailContentType = "image/jpeg"
	// DefaultMaxPixels 超过该像素数的图片不解码，只保留原件.
	DefaultMaxPixels = 50_000_000
)

// ErrDecode 声明为图片但无法解码.
var ErrDecode = errors.New("media: decode image")

// Metadata 规范化的媒体元数据.
type Metadata struct {
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Format string `json:"format"`
	Size   int64  `json:"size"`
}

// Input 待处理的文件.
type Input struct {
	Data        []byte
	ContentType string
	Key         string // 原件键，缩略图键由此推导
	Meta        map[string]string
}

// Result 处理结果.
type Result struct {
	Original     s3.PutResult
	ThumbnailKey string
	Metadata     Metadata
}

// Processor 媒体处理器.
type Processor struct {
	store     s3.Gateway
	maxSide   int
	quality   int
	maxPixels int64
}

// Option 处理器可选项.
type Option func(*Processor)

// WithMaxPixels 设置可解码的最大像素数，非正时使用默认值.
func WithMaxPixels(n int64) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxPixels = n
		}
	}
}

// New 创建处理器，maxSide 与 quality 非正时使用默认值.
func New(store s3.Gateway, maxSide, quality int, opts ...Option) *Processor {
	if maxSide <= 0 {
		maxSide = DefaultMaxSide
	}

	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	p := &Processor{store: store, maxSide: maxSide, quality: quality, maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// NeedsProcessing image/* 与 video/* 需要处理.
func NeedsProcessing(contentType string) bool {
	ct := strings.ToLower(contentType)

	return strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "video/")
}

// thumbnailable 可解码并生成缩略图的图片类型.
var thumbnailable = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
	"image/tiff": true,
}

// Process 生成元数据，按需生成缩略图，并写入原件与缩略图.
// 写入缩略图失败时会尽力删除已写入的原件.
func (p *Processor) Process(ctx context.Context, in Input) (*Result, error) {
	ct := strings.ToLower(in.ContentType)

	res := &Result{Metadata: Metadata{Size: int64(len(in.Data)), Format: sniffFormat(in.Data)}}

	var thumb []byte

	if thumbnailable[ct] {
		md, data, err := p.thumbnail(in.Data)
		if err != nil {
			return nil, err
		}

		md.Size = res.Metadata.Size
		res.Metadata = md
		thumb = data
	}

	orig, err := p.store.Put(ctx, in.Key, bytes.NewReader(in.Data), int64(len(in.Data)), in.ContentType, in.Meta)
	if err != nil {
		return nil, fmt.Errorf("store original: %w", err)
	}

	res.Original = orig

	if thumb == nil {
		return res, nil
	}

	tk := s3.ThumbnailKey(in.Key)
	if _, err := p.store.Put(ctx, tk, bytes.NewReader(thumb), int64(len(thumb)), ThumbnailContentType, nil); err != nil {
		if derr := p.store.Delete(ctx, in.Key); derr != nil {
			err = errors.Join(err, fmt.Errorf("cleanup original: %w", derr))
		}

		return nil, fmt.Errorf("store thumbnail: %w", err)
	}

	res.ThumbnailKey = tk

	return res, nil
}

// thumbnail 解码图片并等比缩放到 maxSide 边界内，重新编码为 JPEG.
// 像素数超过 maxPixels 时只返回头部尺寸，不生成缩略图.
func (p *Processor) thumbnail(data []byte) (Metadata, []byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Metadata{}, nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	md := Metadata{Width: cfg.Width, Height: cfg.Height, Format: format}
	if int64(cfg.Width)*int64(cfg.Height) > p.maxPixels {
		return md, nil, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Metadata{}, nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	fitted := imaging.Fit(img, p.maxSide, p.maxSide, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(p.quality)); err != nil {
		return Metadata{}, nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	return md, buf.Bytes(), nil
}

// sniffFormat 由内容嗅探格式，返回不带点的扩展名.
func sniffFormat(data []byte) string {
	ext := strings.TrimPrefix(mimetype.Detect(data).Extension(), ".")
	if ext == "" {
		return "unknown"
	}

	return ext
}
