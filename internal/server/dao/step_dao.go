package dao

import (
	"context"

	"gantry/internal/server/model"

	"gorm.io/gorm"
)

type StepDao interface {
	GetByID(ctx context.Context, id uint) (*model.Step, error)
	// ListByPipeline returns the pipeline's steps in order_index order.
	ListByPipeline(ctx context.Context, pipelineID uint) ([]*model.Step, error)
	UpdateStatus(ctx context.Context, id uint, status model.StepStatus) error
	// CasStatus transitions status only if the row still holds from.
	// The rows-affected result is the race detector: false means a
	// concurrent writer got there first.
	CasStatus(ctx context.Context, id uint, from, to model.StepStatus) (bool, error)
	SetFeedback(ctx context.Context, id uint, feedback string) error
	// ResetForRevision returns the step to pending and attaches the
	// reviser's feedback.
	ResetForRevision(ctx context.Context, id uint, feedback string) error
	// InvalidateBetween marks steps of the pipeline with
	// fromIndex < order_index < toIndex as invalidated. Completed steps
	// in the window lose their place in the execution path too; their
	// events stay queryable.
	InvalidateBetween(ctx context.Context, pipelineID uint, fromIndex, toIndex int) error
}

type stepDAO struct {
	db *gorm.DB
}

func NewStepDao() StepDao {
	return &stepDAO{db: db}
}

func NewStepDaoTx(tx *gorm.DB) StepDao {
	return &stepDAO{db: tx}
}

func (s *stepDAO) GetByID(ctx context.Context, id uint) (*model.Step, error) {
	var step model.Step
	if err := s.db.WithContext(ctx).Take(&step, id).Error; err != nil {
		return nil, err
	}
	return &step, nil
}

func (s *stepDAO) ListByPipeline(ctx context.Context, pipelineID uint) ([]*model.Step, error) {
	var steps []*model.Step
	if err := s.db.WithContext(ctx).
		Where("pipeline_id = ?", pipelineID).
		Order("order_index").
		Find(&steps).Error; err != nil {
		return nil, err
	}
	return steps, nil
}

func (s *stepDAO) UpdateStatus(ctx context.Context, id uint, status model.StepStatus) error {
	return s.db.WithContext(ctx).Model(&model.Step{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (s *stepDAO) CasStatus(ctx context.Context, id uint, from, to model.StepStatus) (bool, error) {
	result := s.db.WithContext(ctx).Model(&model.Step{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *stepDAO) SetFeedback(ctx context.Context, id uint, feedback string) error {
	return s.db.WithContext(ctx).Model(&model.Step{}).
		Where("id = ?", id).
		Update("feedback", feedback).Error
}

func (s *stepDAO) ResetForRevision(ctx context.Context, id uint, feedback string) error {
	return s.db.WithContext(ctx).Model(&model.Step{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": model.StepPending, "feedback": feedback}).Error
}

func (s *stepDAO) InvalidateBetween(ctx context.Context, pipelineID uint, fromIndex, toIndex int) error {
	return s.db.WithContext(ctx).Model(&model.Step{}).
		Where("pipeline_id = ? AND order_index > ? AND order_index < ? AND status <> ?",
			pipelineID, fromIndex, toIndex, model.StepInvalidated).
		Update("status", model.StepInvalidated).Error
}
