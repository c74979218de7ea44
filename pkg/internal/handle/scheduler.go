package handle

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/cloudvault/pkg/scheduler"
)

// SchedulerJobs 返回所有定时任务信息.
//
//	@Summary	定时任务列表
//	@Tags		调度
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	map[string][]scheduler.JobInfo
//	@Router		/api/v1/scheduler/jobs [get]
func (h *Handler) SchedulerJobs(c *gin.Context) {
	if h.sched == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []scheduler.JobInfo{}})

		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": h.sched.Infos()})
}

// SchedulerRunJob 立即触发一次任务.
//
//	@Summary	触发任务
//	@Tags		调度
//	@Produce	json
//	@Security	BearerAuth
//	@Param		name	path		string	true	"任务名"
//	@Success	202		{object}	map[string]string
//	@Failure	404		{object}	ErrorResponse
//	@Router		/api/v1/scheduler/jobs/{name}/run [post]
func (h *Handler) SchedulerRunJob(c *gin.Context) {
	if h.sched == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "scheduler disabled"})

		return
	}

	name := c.Param("name")
	if err := h.sched.RunNow(name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, scheduler.ErrJobNotFound) {
			status = http.StatusNotFound
		}

		c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})

		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job": name, "status": "triggered"})
}
