package handle

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/cloudvault/pkg/internal/service"
)

// CreateShare 为文件创建分享链接.
//
//	@Summary		创建分享
//	@Description	expires_in 支持 <N>h、<N>d 与 never，缺省按配置；密码只保存哈希
//	@Tags			分享
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string						true	"文件 ID"
//	@Param			body	body		service.CreateShareInput	false	"分享参数"
//	@Success		201		{object}	service.ShareInfo
//	@Failure		403		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/v1/files/{id}/share [post]
func (h *Handler) CreateShare(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	var in service.CreateShareInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)

			return
		}
	}

	info, err := h.svc.Shares.Create(c.Request.Context(), uid, c.Param("id"), in)
	if err != nil {
		fail(c, err)

		return
	}

	c.JSON(http.StatusCreated, info)
}

// ListShares 当前用户的分享列表.
//
//	@Summary	分享列表
//	@Tags		分享
//	@Produce	json
//	@Security	BearerAuth
//	@Param		active	query		bool	false	"仅返回有效链接"
//	@Success	200		{object}	map[string][]service.ShareInfo
//	@Router		/api/v1/shares [get]
func (h *Handler) ListShares(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	activeOnly, _ := strconv.ParseBool(c.Query("active"))

	items, err := h.svc.Shares.List(c.Request.Context(), uid, activeOnly)
	if err != nil {
		fail(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// RevokeShare 撤销分享，重复撤销返回成功.
//
//	@Summary	撤销分享
//	@Tags		分享
//	@Security	BearerAuth
//	@Param		shareId	path	string	true	"分享 ID"
//	@Success	204
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/v1/shares/{shareId} [delete]
func (h *Handler) RevokeShare(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.svc.Shares.Revoke(c.Request.Context(), uid, c.Param("shareId")); err != nil {
		fail(c, err)

		return
	}

	c.Status(http.StatusNoContent)
}

// ShareAccessLog 分享访问日志，按访问顺序返回.
//
//	@Summary	访问日志
//	@Tags		分享
//	@Produce	json
//	@Security	BearerAuth
//	@Param		shareId	path		string	true	"分享 ID"
//	@Param		limit	query		int		false	"最多条数"
//	@Success	200		{object}	map[string][]model.ShareAccess
//	@Router		/api/v1/shares/{shareId}/access-log [get]
func (h *Handler) ShareAccessLog(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))

	items, err := h.svc.Shares.AccessLog(c.Request.Context(), uid, c.Param("shareId"), limit)
	if err != nil {
		fail(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// PasswordRequest 分享口令.
type PasswordRequest struct {
	Password string `json:"password"`
}

// ResolveShared 公开解析分享链接，不计访问次数.
//
//	@Summary	分享落地页信息
//	@Tags		公开分享
//	@Produce	json
//	@Param		shareId	path		string	true	"分享 ID"
//	@Success	200		{object}	service.SharedFile
//	@Failure	403		{object}	ErrorResponse	"文件被隔离"
//	@Failure	404		{object}	ErrorResponse
//	@Failure	410		{object}	ErrorResponse	"已过期"
//	@Router		/api/v1/shared/{shareId} [get]
func (h *Handler) ResolveShared(c *gin.Context) {
	f, err := h.svc.Shares.Resolve(c.Request.Context(), c.Param("shareId"))
	if err != nil {
		fail(c, err)

		return
	}

	c.JSON(http.StatusOK, f)
}

// VerifyShared 校验分享口令.
//
//	@Summary	校验口令
//	@Tags		公开分享
//	@Accept		json
//	@Produce	json
//	@Param		shareId	path		string			true	"分享 ID"
//	@Param		body	body		PasswordRequest	false	"口令"
//	@Success	200		{object}	map[string]bool
//	@Failure	401		{object}	ErrorResponse	"口令错误"
//	@Router		/api/v1/shared/{shareId}/verify [post]
func (h *Handler) VerifyShared(c *gin.Context) {
	pw, ok := password(c)
	if !ok {
		return
	}

	if err := h.svc.Shares.Verify(c.Request.Context(), c.Param("shareId"), pw); err != nil {
		fail(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// DownloadShared 校验口令、下载权限与有效期后签发下载链接并计数，?redirect=1 时直接 302.
//
//	@Summary	分享下载
//	@Tags		公开分享
//	@Accept		json
//	@Produce	json
//	@Param		shareId		path		string			true	"分享 ID"
//	@Param		redirect	query		bool			false	"是否重定向"
//	@Param		body		body		PasswordRequest	false	"口令"
//	@Success	200			{object}	service.ShareDownload
//	@Failure	401			{object}	ErrorResponse	"口令错误"
//	@Failure	403			{object}	ErrorResponse	"禁止下载或文件被隔离"
//	@Failure	410			{object}	ErrorResponse	"已过期"
//	@Router		/api/v1/shared/{shareId}/download [post]
func (h *Handler) DownloadShared(c *gin.Context) {
	pw, ok := password(c)
	if !ok {
		return
	}

	dl, err := h.svc.Shares.Download(c.Request.Context(), c.Param("shareId"), pw, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		fail(c, err)

		return
	}

	respondLink(c, dl.URL, dl)
}

// password 读取可选的 JSON 口令；表单提交时读取 password 字段.
func password(c *gin.Context) (string, bool) {
	if c.Request.ContentLength == 0 {
		return "", true
	}

	var req PasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)

		return "", false
	}

	if req.Password == "" {
		req.Password = c.PostForm("password")
	}

	return req.Password, true
}
