package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	MiB = int64(1) << 20
	GiB = int64(1) << 30

	DefaultMaxFileSize      = 100 * MiB // 单文件上限
	DefaultMaxBatchSize     = 500 * MiB // 单批总量上限
	DefaultMaxNameLength    = 255       // 文件名最大长度（字符）
	DefaultDownloadURLTTL   = 15 * time.Minute
	DefaultStorageLimit     = 5 * GiB // 新用户默认配额
	DefaultThumbnailMaxSide = 300     // 缩略图最长边（像素）
	DefaultThumbnailQuality = 80
	DefaultMaxImagePixels   = 50_000_000 // 超过则不生成缩略图
)

// DefaultAllowedTypes 默认允许上传的媒体类型.
var DefaultAllowedTypes = []string{
	// 图片
	"image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp", "image/tiff", "image/svg+xml",
	// 视频
	"video/mp4", "video/mpeg", "video/quicktime", "video/webm", "video/x-msvideo", "video/x-matroska",
	// 音频
	"audio/mpeg", "audio/wav", "audio/ogg", "audio/aac", "audio/flac", "audio/webm", "audio/mp4",
	// 文档
	"application/pdf", "text/plain", "text/csv", "text/markdown", "application/json", "application/rtf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	// 压缩包
	"application/zip", "application/x-zip-compressed", "application/x-rar-compressed",
	"application/x-7z-compressed", "application/gzip", "application/x-tar",
}

// DefaultBlockedExtensions 默认拒绝的危险扩展名.
var DefaultBlockedExtensions = []string{".exe", ".bat", ".cmd", ".scr"}

// UploadConfig 上传校验、下载链接与配额配置.
type UploadConfig struct {
	MaxFileSize       int64         `mapstructure:"max_file_size"       rule:"min=1"`
	MaxBatchSize      int64         `mapstructure:"max_batch_size"      rule:"min=1,gtefield=MaxFileSize"`
	MaxNameLength     int           `mapstructure:"max_name_length"     rule:"min=1,max=1024"`
	AllowedTypes      []string      `mapstructure:"allowed_types"       rule:"min=1"`
	BlockedExtensions []string      `mapstructure:"blocked_extensions"`
	DownloadURLTTL    time.Duration `mapstructure:"download_url_ttl"    rule:"min=1s"`
	// DefaultStorageLimit 注册时分配给用户的配额（字节）
	DefaultStorageLimit int64 `mapstructure:"default_storage_limit" rule:"min=0"`
	ThumbnailMaxSide    int   `mapstructure:"thumbnail_max_side"    rule:"min=16,max=4096"`
	ThumbnailQuality    int   `mapstructure:"thumbnail_quality"     rule:"min=1,max=100"`
	MaxImagePixels      int64 `mapstructure:"max_image_pixels"      rule:"min=1"`
}

func (c *UploadConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("upload.max_file_size", DefaultMaxFileSize)
	v.SetDefault("upload.max_batch_size", DefaultMaxBatchSize)
	v.SetDefault("upload.max_name_length", DefaultMaxNameLength)
	v.SetDefault("upload.allowed_types", DefaultAllowedTypes)
	v.SetDefault("upload.blocked_extensions", DefaultBlockedExtensions)
	v.SetDefault("upload.download_url_ttl", DefaultDownloadURLTTL)
	v.SetDefault("upload.default_storage_limit", DefaultStorageLimit)
	v.SetDefault("upload.thumbnail_max_side", DefaultThumbnailMaxSide)
	v.SetDefault("upload.thumbnail_quality", DefaultThumbnailQuality)
	v.SetDefault("upload.max_image_pixels", DefaultMaxImagePixels)
}
