package service

import (
	"fmt"
	"mime"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"

	"github.com/yeisme/cloudvault/pkg/configs"
	"github.com/yeisme/cloudvault/pkg/rule"
)

// Candidate 待校验的文件描述.
type Candidate struct {
	Name        string
	ContentType string
	Size        int64
}

// ValidationResult 校验结果，Errors 每个失败文件一条，批次级错误单独一条.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

var registerOnce sync.Once

// registerRules 注册上传相关的自定义规则.
//
//	allowed_type=<空格分隔的 MIME 列表>  声明类型（忽略参数与大小写）在列表中
//	safe_ext=<空格分隔的扩展名列表>      文件名不以列表中的扩展名结尾
func registerRules() {
	registerOnce.Do(func() {
		_ = rule.RegisterValidation("allowed_type", func(fl validator.FieldLevel) bool {
			ct := NormalizeContentType(fl.Field().String())
			for _, allowed := range strings.Fields(fl.Param()) {
				if strings.EqualFold(ct, allowed) {
					return true
				}
			}

			return false
		})
		_ = rule.RegisterValidation("safe_ext", func(fl validator.FieldLevel) bool {
			name := strings.ToLower(strings.TrimSpace(fl.Field().String()))
			for _, ext := range strings.Fields(strings.ToLower(fl.Param())) {
				if strings.HasSuffix(name, ext) {
					return false
				}
			}

			return true
		})
	})
}

// NormalizeContentType 去掉参数并转小写，如 "Image/PNG; q=1" -> "image/png".
func NormalizeContentType(ct string) string {
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}

	return strings.ToLower(strings.TrimSpace(ct))
}

// fileIssue 单个文件的校验问题；dangerousOnly 表示唯一问题是危险扩展名.
type fileIssue struct {
	message       string
	dangerousOnly bool
}

// ValidateBatch 对候选文件做纯校验，不产生任何副作用.
// 逐文件检查大小、类型、名称长度与危险扩展名，另外检查批次总大小.
func ValidateBatch(files []Candidate, cfg configs.UploadConfig) ValidationResult {
	issues, batchErr := checkBatch(files, cfg)

	errs := make([]string, 0, len(issues)+1)
	for _, is := range issues {
		errs = append(errs, is.message)
	}

	if batchErr != "" {
		errs = append(errs, batchErr)
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// checkBatch 返回逐文件问题与批次级错误.
func checkBatch(files []Candidate, cfg configs.UploadConfig) ([]fileIssue, string) {
	registerRules()

	if len(files) == 0 {
		return nil, "no files provided"
	}

	var (
		issues []fileIssue
		total  int64
	)

	allowed := "allowed_type=" + strings.Join(cfg.AllowedTypes, " ")
	blocked := "safe_ext=" + strings.Join(cfg.BlockedExtensions, " ")

	for i, f := range files {
		total += f.Size

		var (
			reasons   []string
			dangerous bool
		)

		if f.Size < 0 || rule.ValidateVar(f.Size, fmt.Sprintf("lte=%d", cfg.MaxFileSize)) != nil {
			reasons = append(reasons, fmt.Sprintf("file size %s exceeds the %s limit",
				humanize.IBytes(uint64(max(f.Size, 0))), humanize.IBytes(uint64(cfg.MaxFileSize))))
		}

		if rule.ValidateVar(f.ContentType, allowed) != nil {
			reasons = append(reasons, fmt.Sprintf("file type %q is not allowed", f.ContentType))
		}

		if rule.ValidateVar(f.Name, "required") != nil {
			reasons = append(reasons, "file name is required")
		} else if rule.ValidateVar(f.Name, fmt.Sprintf("max=%d", cfg.MaxNameLength)) != nil {
			reasons = append(reasons, fmt.Sprintf("file name exceeds %d characters", cfg.MaxNameLength))
		}

		if len(cfg.BlockedExtensions) > 0 && rule.ValidateVar(f.Name, blocked) != nil {
			reasons = append(reasons, "file extension is not allowed for security reasons")
			dangerous = true
		}

		if len(reasons) > 0 {
			label := f.Name
			if label == "" {
				label = fmt.Sprintf("file #%d", i+1)
			}

			issues = append(issues, fileIssue{
				message:       label + ": " + strings.Join(reasons, ", "),
				dangerousOnly: dangerous && len(reasons) == 1,
			})
		}
	}

	if total > cfg.MaxBatchSize {
		return issues, fmt.Sprintf("total batch size %s exceeds the %s limit",
			humanize.IBytes(uint64(total)), humanize.IBytes(uint64(cfg.MaxBatchSize)))
	}

	return issues, ""
}
