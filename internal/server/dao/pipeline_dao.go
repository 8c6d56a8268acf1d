package dao

import (
	"context"

	"gantry/internal/server/model"

	"gorm.io/gorm"
)

type PipelineDao interface {
	// CreateWithSteps persists the pipeline and its ordered steps in one
	// transaction.
	CreateWithSteps(ctx context.Context, pipeline *model.Pipeline, steps []*model.Step) error
	GetByID(ctx context.Context, id uint) (*model.Pipeline, error)
	ListAll(ctx context.Context) ([]*model.Pipeline, error)
	UpdateStatus(ctx context.Context, id uint, status model.PipelineStatus) error
	// SetCursor moves the cursor and status together.
	SetCursor(ctx context.Context, id uint, cursor int, status model.PipelineStatus) error
	// Delete removes the pipeline with its steps, tasks and events. No
	// orphaned rows survive.
	Delete(ctx context.Context, id uint) error
}

type pipelineDAO struct {
	db *gorm.DB
}

func NewPipelineDao() PipelineDao {
	return &pipelineDAO{db: db}
}

func NewPipelineDaoTx(tx *gorm.DB) PipelineDao {
	return &pipelineDAO{db: tx}
}

func (p *pipelineDAO) CreateWithSteps(ctx context.Context, pipeline *model.Pipeline, steps []*model.Step) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(pipeline).Error; err != nil {
			return err
		}
		for _, step := range steps {
			step.PipelineID = pipeline.ID
			if err := tx.Create(step).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *pipelineDAO) GetByID(ctx context.Context, id uint) (*model.Pipeline, error) {
	var pipeline model.Pipeline
	if err := p.db.WithContext(ctx).Take(&pipeline, id).Error; err != nil {
		return nil, err
	}
	return &pipeline, nil
}

func (p *pipelineDAO) ListAll(ctx context.Context) ([]*model.Pipeline, error) {
	var pipelines []*model.Pipeline
	if err := p.db.WithContext(ctx).Order("id").Find(&pipelines).Error; err != nil {
		return nil, err
	}
	return pipelines, nil
}

func (p *pipelineDAO) UpdateStatus(ctx context.Context, id uint, status model.PipelineStatus) error {
	return p.db.WithContext(ctx).Model(&model.Pipeline{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (p *pipelineDAO) SetCursor(ctx context.Context, id uint, cursor int, status model.PipelineStatus) error {
	return p.db.WithContext(ctx).Model(&model.Pipeline{}).
		Where("id = ?", id).
		Updates(map[string]any{"cursor": cursor, "status": status}).Error
}

func (p *pipelineDAO) Delete(ctx context.Context, id uint) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stepIDs []uint
		if err := tx.Model(&model.Step{}).Where("pipeline_id = ?", id).Pluck("id", &stepIDs).Error; err != nil {
			return err
		}
		if len(stepIDs) > 0 {
			var taskIDs []uint
			if err := tx.Model(&model.Task{}).Where("step_id IN ?", stepIDs).Pluck("id", &taskIDs).Error; err != nil {
				return err
			}
			if len(taskIDs) > 0 {
				if err := tx.Unscoped().Where("task_id IN ?", taskIDs).Delete(&model.Event{}).Error; err != nil {
					return err
				}
				if err := tx.Unscoped().Where("step_id IN ?", stepIDs).Delete(&model.Task{}).Error; err != nil {
					return err
				}
			}
			if err := tx.Unscoped().Where("pipeline_id = ?", id).Delete(&model.Step{}).Error; err != nil {
				return err
			}
		}
		return tx.Unscoped().Delete(&model.Pipeline{}, id).Error
	})
}
