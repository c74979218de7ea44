package s3

import (
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// FilesPrefix 原始文件键前缀.
	FilesPrefix = "files/"
	// ThumbnailsPrefix 缩略图键前缀.
	ThumbnailsPrefix = "thumbnails/"
	// ThumbnailNamePrefix 缩略图文件名前缀.
	ThumbnailNamePrefix = "thumb-"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeName 把文件名中除字母、数字、点、下划线、连字符外的字符替换为下划线.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}

	return unsafeNameChars.ReplaceAllString(name, "_")
}

// OriginalKey 生成原始文件键: files/<userId>/<unixNano>-<sanitizedName>.
func OriginalKey(userID string, ts time.Time, name string) string {
	return FilesPrefix + userID + "/" + strconv.FormatInt(ts.UnixNano(), 10) + "-" + SanitizeName(name)
}

// ThumbnailKey 由原始文件键确定性推导缩略图键:
// files/<userId>/<ts>-<name> -> thumbnails/<userId>/thumb-<ts>-<name>.
func ThumbnailKey(originalKey string) string {
	rest := strings.TrimPrefix(originalKey, FilesPrefix)
	dir, file := path.Split(rest)

	return ThumbnailsPrefix + dir + ThumbnailNamePrefix + file
}
