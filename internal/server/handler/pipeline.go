package handler

import (
	"context"
	"strconv"

	"gantry/internal/common"
	"gantry/internal/server/dao"
	"gantry/internal/server/model"
	"gantry/pkg/api"
	"gantry/pkg/workflow"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CreatePipeline launches a workflow from a YAML definition in the
// request body.
func CreatePipeline(c *gin.Context) {
	yamlContent, err := c.GetRawData()
	if err != nil {
		common.Error(c, common.NewErrNo(common.Validation))
		return
	}
	def, err := workflow.Parse(yamlContent)
	if err != nil {
		common.Error(c, common.NewErrNoMsg(common.Validation, "invalid workflow yaml: %s", err.Error()))
		return
	}

	pipeline, steps, err := eng.CreatePipeline(c, def)
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, pipelineDetail(c, pipeline, steps))
}

func GetPipeline(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		common.Error(c, common.NewErrNo(common.Validation))
		return
	}
	pipeline, steps, err := eng.GetPipelineWithSteps(c, uint(id))
	if err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, pipelineDetail(c, pipeline, steps))
}

func ListPipelines(c *gin.Context) {
	pipelines, err := dao.NewPipelineDao().ListAll(c)
	if err != nil {
		common.Error(c, err)
		return
	}
	briefs := make([]api.PipelineBrief, 0, len(pipelines))
	for _, p := range pipelines {
		briefs = append(briefs, pipelineBrief(p))
	}
	common.Success(c, briefs)
}

func DeletePipeline(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		common.Error(c, common.NewErrNo(common.Validation))
		return
	}
	if err := eng.DeletePipeline(c, uint(id)); err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, nil)
}

func pipelineBrief(p *model.Pipeline) api.PipelineBrief {
	return api.PipelineBrief{
		ID:        p.ID,
		UUID:      p.UUID,
		Name:      p.Name,
		EnvHandle: p.EnvHandle,
		Status:    string(p.Status),
		Cursor:    p.Cursor,
	}
}

func pipelineDetail(ctx context.Context, p *model.Pipeline, steps []*model.Step) api.PipelineDetail {
	detail := api.PipelineDetail{PipelineBrief: pipelineBrief(p)}
	taskDao := dao.NewTaskDao()
	for _, step := range steps {
		stepDetail := api.StepDetail{
			ID:         step.ID,
			OrderIndex: step.OrderIndex,
			Name:       step.Name,
			Kind:       string(step.Kind),
			Status:     string(step.Status),
			Feedback:   step.Feedback,
		}
		if task, err := taskDao.GetLatestByStep(ctx, step.ID); err == nil {
			stepDetail.TaskID = task.ID
		} else if err != gorm.ErrRecordNotFound {
			common.GetLogger().Sugar().Errorf("load task for step %d: %v", step.ID, err)
		}
		detail.Steps = append(detail.Steps, stepDetail)
	}
	return detail
}
