// Package scan 启发式内容扫描：按扩展名分类，再在字节流中查找可执行文件头签名.
//
// 扫描器只是占位实现，不追求真实的检出率；复扫阶段的判定策略通过 RescanPolicy 注入.
package scan

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Status 扫描结论.
type Status string

const (
	StatusClean    Status = "clean"
	StatusInfected Status = "infected"
	StatusError    Status = "error"
)

// Class 按扩展名得到的文件分类.
type Class string

const (
	ClassDangerous    Class = "dangerous-extension"
	ClassSafe         Class = "safe-container"
	ClassUnrecognized Class = "unrecognized"
)

// Verdict 单个文件的扫描结果.
type Verdict struct {
	Status    Status `json:"status"`
	Class     Class  `json:"class"`
	Reason    string `json:"reason,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// Infected 是否判定为感染.
func (v Verdict) Infected() bool { return v.Status == StatusInfected }

// DefaultDangerousExtensions 可执行程序、脚本与安装包.
var DefaultDangerousExtensions = []string{
	".exe", ".bat", ".cmd", ".scr", ".com", ".pif", ".cpl", ".dll", ".sys",
	".msi", ".msp", ".vbs", ".vbe", ".wsf", ".wsh", ".hta", ".ps1", ".psm1",
	".jse", ".reg", ".lnk", ".jar", ".apk", ".app", ".dmg", ".pkg", ".deb", ".rpm", ".run",
}

// DefaultSafeContainers 常见图片、文档与媒体格式.
var DefaultSafeContainers = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff", ".svg", ".ico", ".heic",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".odt", ".ods", ".odp", ".rtf",
	".txt", ".csv", ".md", ".json", ".xml",
	".mp3", ".wav", ".ogg", ".flac", ".aac", ".m4a",
	".mp4", ".mov", ".avi", ".mkv", ".webm",
	".zip", ".gz", ".tar", ".7z", ".rar",
}

// Scanner 同步扫描器，可并发使用.
type Scanner struct {
	dangerous  map[string]struct{}
	safe       map[string]struct{}
	signatures []Signature
}

// Option 扫描器选项.
type Option func(*Scanner)

// WithDangerousExtensions 替换危险扩展名集合.
func WithDangerousExtensions(exts ...string) Option {
	return func(s *Scanner) { s.dangerous = toSet(exts) }
}

// WithSafeContainers 替换安全容器扩展名集合.
func WithSafeContainers(exts ...string) Option {
	return func(s *Scanner) { s.safe = toSet(exts) }
}

// WithSignatures 替换签名集合.
func WithSignatures(sigs ...Signature) Option {
	return func(s *Scanner) { s.signatures = sigs }
}

// WithStrictPE 内嵌 PE 需要完整的 DOS/PE 头才判定感染.
func WithStrictPE() Option {
	return func(s *Scanner) { s.signatures = StrictExecutableSignatures() }
}

// New 创建扫描器.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		dangerous:  toSet(DefaultDangerousExtensions),
		safe:       toSet(DefaultSafeContainers),
		signatures: ExecutableSignatures(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Classify 按扩展名分类，大小写不敏感.
func (s *Scanner) Classify(fileName string) Class {
	ext := Ext(fileName)

	if _, ok := s.dangerous[ext]; ok {
		return ClassDangerous
	}

	if _, ok := s.safe[ext]; ok {
		return ClassSafe
	}

	return ClassUnrecognized
}

// Scan 扫描内容.
// 危险扩展名直接判定感染，不检查字节；其余类别查找可执行文件头签名.
// 检查过程中的任何 panic 转换为 StatusError.
func (s *Scanner) Scan(data []byte, fileName string) (v Verdict) {
	class := s.Classify(fileName)

	if class == ClassDangerous {
		return Verdict{Status: StatusInfected, Class: class, Reason: "dangerous file extension " + Ext(fileName)}
	}

	defer func() {
		if r := recover(); r != nil {
			v = Verdict{Status: StatusError, Class: class, Reason: fmt.Sprintf("scan fault: %v", r)}
		}
	}()

	if sig, ok := s.match(data); ok {
		return Verdict{Status: StatusInfected, Class: class, Signature: sig, Reason: "embedded " + sig + " executable header"}
	}

	return Verdict{Status: StatusClean, Class: class}
}

// match 依次尝试各签名，命中即返回.
func (s *Scanner) match(data []byte) (string, bool) {
	for _, sig := range s.signatures {
		if sig.Match(data) {
			return sig.Name, true
		}
	}

	return "", false
}

// Ext 返回小写扩展名（含点）.
func Ext(fileName string) string {
	return strings.ToLower(filepath.Ext(strings.TrimSpace(fileName)))
}

func toSet(exts []string) map[string]struct{} {
	m := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}

		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}

		m[e] = struct{}{}
	}

	return m
}
