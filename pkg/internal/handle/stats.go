package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetUsage 配额使用情况，不走响应缓存.
//
//	@Summary	配额使用
//	@Tags		统计
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	service.Usage
//	@Router		/api/v1/stats/usage [get]
func (h *Handler) GetUsage(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	u, err := h.svc.Stats.Usage(c.Request.Context(), uid)
	if err != nil {
		fail(c, err)

		return
	}

	c.JSON(http.StatusOK, u)
}

// GetSummary 配额、扫描状态汇总与类型分布.
//
//	@Summary	统计汇总
//	@Tags		统计
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	service.Overview
//	@Router		/api/v1/stats/summary [get]
func (h *Handler) GetSummary(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	ov, err := h.svc.Stats.Overview(c.Request.Context(), uid)
	if err != nil {
		fail(c, err)

		return
	}

	c.JSON(http.StatusOK, ov)
}

// GetTypes 按类别的文件数量与大小.
//
//	@Summary	类型分布
//	@Tags		统计
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	map[string][]store.TypeStat
//	@Router		/api/v1/stats/types [get]
func (h *Handler) GetTypes(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	ov, err := h.svc.Stats.Overview(c.Request.Context(), uid)
	if err != nil {
		fail(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"items": ov.Types})
}
