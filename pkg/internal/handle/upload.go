package handle

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/cloudvault/pkg/configs"
	"github.com/yeisme/cloudvault/pkg/internal/service"
)

// 接受的 multipart 字段名.
var uploadFields = []string{"files[]", "files"}

// Upload 批量上传文件.
// 批次校验失败或配额不足时整体拒绝；单个文件被拦截或处理失败只记入汇总，仍返回 200.
//
//	@Summary		批量上传
//	@Description	multipart 上传，字段名 files[]；返回上传成功与被拦截文件的汇总
//	@Tags			文件上传
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			files[]	formData	file	true	"文件，可多个"
//	@Success		200		{object}	service.UploadSummary
//	@Failure		400		{object}	ErrorResponse	"批次校验失败"
//	@Failure		413		{object}	ErrorResponse	"配额不足"
//	@Router			/api/v1/upload [post]
func (h *Handler) Upload(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	if mb := h.cfg.Server.MaxBodyMB; mb > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, mb*configs.MiB)
	}

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})

			return
		}

		badRequest(c, fmt.Errorf("invalid multipart form: %w", err))

		return
	}

	defer func() { _ = form.RemoveAll() }()

	var headers []*multipart.FileHeader
	for _, field := range uploadFields {
		headers = append(headers, form.File[field]...)
	}

	sum, err := h.svc.Upload.UploadBatch(c.Request.Context(), uid, incomingFiles(headers))
	if err != nil {
		fail(c, err)

		return
	}

	c.JSON(http.StatusOK, sum)
}

func incomingFiles(headers []*multipart.FileHeader) []service.Incoming {
	files := make([]service.Incoming, 0, len(headers))

	for _, fh := range headers {
		files = append(files, service.Incoming{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}

	return files
}
