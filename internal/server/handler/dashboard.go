package handler

import (
	"gantry/internal/common"
	"gantry/internal/server/dao"
	"gantry/pkg/api"

	"github.com/gin-gonic/gin"
)

// Dashboard is the read-only aggregate a monitoring UI polls. Running
// pipelines sort first, the way operators want them.
func Dashboard(c *gin.Context) {
	pipelines, err := dao.NewPipelineDao().ListAll(c)
	if err != nil {
		common.Error(c, err)
		return
	}

	summary := api.DashboardSummary{
		StatusCounts: make(map[string]int),
	}
	active := make([]api.PipelineBrief, 0)
	rest := make([]api.PipelineBrief, 0)
	for _, p := range pipelines {
		brief := pipelineBrief(p)
		summary.StatusCounts[brief.Status]++
		if p.Status.Active() {
			active = append(active, brief)
		} else {
			rest = append(rest, brief)
		}
	}
	summary.Pipelines = append(active, rest...)
	common.Success(c, summary)
}
