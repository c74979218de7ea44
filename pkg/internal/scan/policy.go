package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Target 复扫对象的描述.
type Target struct {
	Name        string
	ContentType string
}

// RescanPolicy 后台复扫的判定策略.
type RescanPolicy interface {
	Name() string
	Evaluate(ctx context.Context, data []byte, t Target) Verdict
}

// PolicyFunc 将函数适配为 RescanPolicy，便于测试注入.
type PolicyFunc func(ctx context.Context, data []byte, t Target) Verdict

// Name 实现 RescanPolicy.
func (PolicyFunc) Name() string { return "func" }

// Evaluate 实现 RescanPolicy.
func (f PolicyFunc) Evaluate(ctx context.Context, data []byte, t Target) Verdict {
	return f(ctx, data, t)
}

// SignaturePolicy 复用同步扫描器.
type SignaturePolicy struct {
	Scanner *Scanner
}

// Name 实现 RescanPolicy.
func (SignaturePolicy) Name() string { return "signature" }

// Evaluate 实现 RescanPolicy.
func (p SignaturePolicy) Evaluate(_ context.Context, data []byte, t Target) Verdict {
	return p.Scanner.Scan(data, t.Name)
}

// DeepPolicy 在签名扫描之外嗅探真实内容类型，识别伪装成普通文件的可执行内容.
type DeepPolicy struct {
	Scanner *Scanner
}

// executableMIMEs 嗅探结果中视为可执行的类型.
var executableMIMEs = []string{
	"application/vnd.microsoft.portable-executable",
	"application/x-msdownload",
	"application/x-executable",
	"application/x-elf",
	"application/x-sharedlib",
	"application/x-mach-binary",
	"application/x-object",
}

// Name 实现 RescanPolicy.
func (DeepPolicy) Name() string { return "deep" }

// Evaluate 实现 RescanPolicy.
func (p DeepPolicy) Evaluate(ctx context.Context, data []byte, t Target) (v Verdict) {
	if v = p.Scanner.Scan(data, t.Name); v.Status != StatusClean {
		return v
	}

	if err := ctx.Err(); err != nil {
		return Verdict{Status: StatusError, Class: v.Class, Reason: err.Error()}
	}

	defer func() {
		if r := recover(); r != nil {
			v = Verdict{Status: StatusError, Class: v.Class, Reason: fmt.Sprintf("sniff fault: %v", r)}
		}
	}()

	detected := mimetype.Detect(data)
	for _, m := range executableMIMEs {
		if detected.Is(m) {
			return Verdict{Status: StatusInfected, Class: v.Class, Signature: m, Reason: "content sniffed as " + m}
		}
	}

	if bytes.HasPrefix(data, []byte("#!")) && !strings.HasPrefix(strings.ToLower(t.ContentType), "text/") {
		return Verdict{Status: StatusInfected, Class: v.Class, Signature: "shebang", Reason: "script disguised as " + t.ContentType}
	}

	return v
}

// ErrUnknownPolicy 未知的复扫策略名称.
var ErrUnknownPolicy = errors.New("scan: unknown rescan policy")

// NewPolicy 按名称创建策略，名称为空时使用 deep.
func NewPolicy(name string, s *Scanner) (RescanPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "deep":
		return DeepPolicy{Scanner: s}, nil
	case "signature":
		return SignaturePolicy{Scanner: s}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}
