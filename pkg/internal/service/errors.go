package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// 领域错误分类，HTTP 层通过 errors.Is 映射状态码.
var (
	ErrValidation    = errors.New("validation failed")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrScanBlocked   = errors.New("blocked by content scan")
	ErrProcessing    = errors.New("processing failed")
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrExpired       = errors.New("expired")
	ErrConflict      = errors.New("conflict")
	ErrInternal      = errors.New("internal fault")
)

// ValidationError 批次在任何 I/O 之前被拒绝，Errors 为逐项原因.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// Unwrap 返回 ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// QuotaError 配额不足，Attempted 为本次需要的字节数，Available 为剩余字节数.
type QuotaError struct {
	Attempted int64
	Available int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("storage quota exceeded: attempted %s, available %s",
		humanize.IBytes(uint64(max(e.Attempted, 0))), humanize.IBytes(uint64(max(e.Available, 0))))
}

// Unwrap 返回 ErrQuotaExceeded.
func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// fault 把基础设施错误包装为 ErrInternal，保留原始错误链.
func fault(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
}
