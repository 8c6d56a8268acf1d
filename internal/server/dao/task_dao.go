package dao

import (
	"context"
	"time"

	"gantry/internal/server/model"

	"gorm.io/gorm"
)

type TaskDao interface {
	Create(ctx context.Context, task *model.Task) error
	GetByID(ctx context.Context, id uint) (*model.Task, error)
	// GetActiveByStep returns the step's non-terminal task, or
	// gorm.ErrRecordNotFound if the step owns none.
	GetActiveByStep(ctx context.Context, stepID uint) (*model.Task, error)
	GetLatestByStep(ctx context.Context, stepID uint) (*model.Task, error)
	MarkRunning(ctx context.Context, id uint) error
	MarkFinished(ctx context.Context, id uint, status model.TaskStatus) error
	// FindStaleRunning returns running tasks last touched before the
	// deadline. Used by the recovery sweep after a crash or restart.
	FindStaleRunning(ctx context.Context, deadline time.Time) ([]*model.Task, error)
}

type taskDAO struct {
	db *gorm.DB
}

func NewTaskDao() TaskDao {
	return &taskDAO{db: db}
}

func NewTaskDaoTx(tx *gorm.DB) TaskDao {
	return &taskDAO{db: tx}
}

func (t *taskDAO) Create(ctx context.Context, task *model.Task) error {
	return t.db.WithContext(ctx).Create(task).Error
}

func (t *taskDAO) GetByID(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := t.db.WithContext(ctx).Take(&task, id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (t *taskDAO) GetActiveByStep(ctx context.Context, stepID uint) (*model.Task, error) {
	var task model.Task
	err := t.db.WithContext(ctx).
		Where("step_id = ? AND status IN ?", stepID,
			[]model.TaskStatus{model.TaskQueued, model.TaskRunning}).
		Take(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (t *taskDAO) GetLatestByStep(ctx context.Context, stepID uint) (*model.Task, error) {
	var task model.Task
	err := t.db.WithContext(ctx).
		Where("step_id = ?", stepID).
		Order("id DESC").
		Take(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (t *taskDAO) MarkRunning(ctx context.Context, id uint) error {
	now := time.Now()
	return t.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": model.TaskRunning, "started_at": &now}).Error
}

func (t *taskDAO) MarkFinished(ctx context.Context, id uint, status model.TaskStatus) error {
	now := time.Now()
	return t.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "finished_at": &now}).Error
}

func (t *taskDAO) FindStaleRunning(ctx context.Context, deadline time.Time) ([]*model.Task, error) {
	var tasks []*model.Task
	err := t.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.TaskRunning, deadline).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}
