package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/cloudvault/pkg/internal/service"
)

// ListFiles 列出当前用户的文件.
//
//	@Summary	文件列表
//	@Tags		文件
//	@Produce	json
//	@Security	BearerAuth
//	@Param		q			query		string	false	"按文件名搜索"
//	@Param		status		query		string	false	"扫描状态过滤"
//	@Param		page		query		int		false	"页码，从 1 开始"
//	@Param		page_size	query		int		false	"每页条数，最大 100"
//	@Success	200			{object}	service.FileList
//	@Router		/api/v1/files [get]
func (h *Handler) ListFiles(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	var in service.ListFilesInput
	if err := c.ShouldBindQuery(&in); err != nil {
		badRequest(c, err)

		return
	}

	list, err := h.svc.Files.List(c.Request.Context(), uid, in)
	if err != nil {
		fail(c, err)

		return
	}

	c.JSON(http.StatusOK, list)
}

// GetFile 获取文件元数据.
//
//	@Summary	文件详情
//	@Tags		文件
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"文件 ID"
//	@Success	200	{object}	model.FileRecord
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/v1/files/{id} [get]
func (h *Handler) GetFile(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	rec, err := h.svc.Files.Get(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		fail(c, err)

		return
	}

	c.JSON(http.StatusOK, rec)
}

// DownloadFile 生成文件的预签名下载链接，?redirect=1 时直接 302.
//
//	@Summary	下载链接
//	@Tags		文件
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id			path		string	true	"文件 ID"
//	@Param		redirect	query		bool	false	"是否重定向"
//	@Success	200			{object}	service.DownloadLink
//	@Failure	403			{object}	ErrorResponse	"文件被隔离"
//	@Router		/api/v1/files/{id}/download [get]
func (h *Handler) DownloadFile(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	link, err := h.svc.Files.DownloadURL(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		fail(c, err)

		return
	}

	respondLink(c, link.URL, link)
}

// ThumbnailFile 生成缩略图链接.
//
//	@Summary	缩略图链接
//	@Tags		文件
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id			path		string	true	"文件 ID"
//	@Param		redirect	query		bool	false	"是否重定向"
//	@Success	200			{object}	service.DownloadLink
//	@Failure	404			{object}	ErrorResponse	"无缩略图"
//	@Router		/api/v1/files/{id}/thumbnail [get]
func (h *Handler) ThumbnailFile(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	link, err := h.svc.Files.ThumbnailURL(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		fail(c, err)

		return
	}

	respondLink(c, link.URL, link)
}

// DeleteFile 删除文件：删除对象与缩略图、软删除记录、释放配额、停用分享.
//
//	@Summary	删除文件
//	@Tags		文件
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"文件 ID"
//	@Success	200	{object}	service.DeleteResult
//	@Failure	403	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/v1/files/{id} [delete]
func (h *Handler) DeleteFile(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	res, err := h.svc.Files.Delete(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		fail(c, err)

		return
	}

	c.JSON(http.StatusOK, res)
}

func respondLink(c *gin.Context, url string, body any) {
	if c.Query("redirect") == "1" || c.Query("redirect") == "true" {
		c.Redirect(http.StatusFound, url)

		return
	}

	c.JSON(http.StatusOK, body)
}
