// Package handle 提供 HTTP 请求处理器，把请求转换为 service 调用并映射领域错误.
package handle

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/cloudvault/pkg/configs"
	ctxPkg "github.com/yeisme/cloudvault/pkg/context"
	"github.com/yeisme/cloudvault/pkg/internal/service"
	"github.com/yeisme/cloudvault/pkg/log"
	"github.com/yeisme/cloudvault/pkg/middleware"
	"github.com/yeisme/cloudvault/pkg/scheduler"
)

// HealthChecker 可做连通性检查的存储客户端.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler 聚合处理器依赖.
type Handler struct {
	cfg    *configs.AppConfig
	svc    *service.Services
	sched  *scheduler.Scheduler
	health map[string]HealthChecker
}

// Options 处理器可选依赖.
type Options struct {
	Scheduler *scheduler.Scheduler
	// Health 组件名到健康检查的映射，如 db/s3/kv/mq
	Health map[string]HealthChecker
}

// New 创建处理器.
func New(cfg *configs.AppConfig, svc *service.Services, opts Options) *Handler {
	return &Handler{cfg: cfg, svc: svc, sched: opts.Scheduler, health: opts.Health}
}

// ErrorResponse 错误响应.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
	// 配额不足时返回
	Attempted *int64 `json:"attempted_bytes,omitempty"`
	Available *int64 `json:"available_bytes,omitempty"`
}

// statusOf 领域错误到 HTTP 状态码.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrScanBlocked):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrQuotaExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrProcessing):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail 输出错误响应. 5xx 不向客户端暴露内部细节.
func fail(c *gin.Context, err error) {
	status := statusOf(err)
	resp := ErrorResponse{Error: err.Error()}

	var verr *service.ValidationError
	if errors.As(err, &verr) {
		resp.Error = service.ErrValidation.Error()
		resp.Details = verr.Errors
	}

	var qerr *service.QuotaError
	if errors.As(err, &qerr) {
		resp.Attempted, resp.Available = &qerr.Attempted, &qerr.Available
	}

	l := ctxPkg.WithTraceContext(c.Request.Context(), log.Component("handle"))
	if status >= http.StatusInternalServerError {
		l.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")

		resp.Error = "internal server error"
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

// currentUser 返回认证中间件写入的用户 ID，缺失时响应 401.
func currentUser(c *gin.Context) (string, bool) {
	uid := middleware.UserID(c)
	if uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})

		return "", false
	}

	return uid, true
}
