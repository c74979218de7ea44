package handle

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

const timeout = 2 * time.Second

// Health 检查单个组件，路径参数 component 为 db/s3/kv/mq.
//
//	@Summary	组件健康检查
//	@Tags		健康检查
//	@Produce	json
//	@Param		component	path		string	true	"组件"	Enums(db, s3, kv, mq)
//	@Success	200			{object}	map[string]string
//	@Failure	503			{object}	map[string]string
//	@Router		/api/v1/health/{component} [get]
func (h *Handler) Health(c *gin.Context) {
	name := c.Param("component")

	checker, ok := h.health[name]
	if !ok || checker == nil {
		c.JSON(http.StatusNotFound, gin.H{"component": name, "status": "unknown"})

		return
	}

	if err := check(c.Request.Context(), checker); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"component": name, "status": "unhealthy", "error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{"component": name, "status": "ok"})
}

// HealthAll 汇总全部组件，任一异常返回 503.
//
//	@Summary	健康检查
//	@Tags		健康检查
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Failure	503	{object}	map[string]any
//	@Router		/api/v1/health [get]
func (h *Handler) HealthAll(c *gin.Context) {
	names := make([]string, 0, len(h.health))
	for name := range h.health {
		names = append(names, name)
	}

	sort.Strings(names)

	status := http.StatusOK
	components := make(map[string]string, len(names))

	for _, name := range names {
		if err := check(c.Request.Context(), h.health[name]); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable

			continue
		}

		components[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	c.JSON(status, gin.H{"status": overall, "components": components})
}

func check(ctx context.Context, checker HealthChecker) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return checker.HealthCheck(ctx)
}
