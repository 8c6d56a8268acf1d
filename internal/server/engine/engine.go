// Package engine owns pipelines: the ordered steps, the execution
// cursor, advancement on success, failure propagation, and the gate
// decision protocol. All step status writes happen here or in the
// behaviors it dispatches to.
package engine

import (
	"context"
	"sync"

	"gantry/internal/common"
	"gantry/internal/server/dao"
	"gantry/internal/server/executor"
	"gantry/internal/server/model"
	"gantry/pkg/workflow"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Engine struct {
	exec   *executor.Executor
	logger *zap.Logger

	// Per-pipeline critical section: a gate decision and a concurrent
	// advance on the same pipeline must serialize. The map is an
	// in-process cache of that constraint, not state; everything it
	// guards lives in the database.
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func New(exec *executor.Executor, logger *zap.Logger) *Engine {
	e := &Engine{
		exec:   exec,
		logger: logger,
		locks:  make(map[uint]*sync.Mutex),
	}
	exec.Bind(e)
	return e
}

func (e *Engine) pipelineLock(pipelineID uint) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[pipelineID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[pipelineID] = lock
	}
	return lock
}

// CreatePipeline persists a pipeline from a validated workflow
// definition and activates its first step.
func (e *Engine) CreatePipeline(ctx context.Context, def *workflow.Definition) (*model.Pipeline, []*model.Step, error) {
	if err := def.Validate(); err != nil {
		return nil, nil, common.NewErrNoMsg(common.Validation, "%s", err.Error())
	}

	pipeline := &model.Pipeline{
		UUID:      uuid.NewString(),
		Name:      def.Name,
		EnvHandle: def.Environment,
		Status:    model.PipelineRunning,
		Cursor:    0,
	}
	steps := make([]*model.Step, 0, len(def.Steps))
	for i, spec := range def.Steps {
		steps = append(steps, &model.Step{
			OrderIndex: i,
			Name:       spec.Name,
			Kind:       model.StepKind(spec.Kind),
			Command:    spec.Command,
			Status:     model.StepPending,
		})
	}

	if err := dao.NewPipelineDao().CreateWithSteps(ctx, pipeline, steps); err != nil {
		return nil, nil, err
	}

	lock := e.pipelineLock(pipeline.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := e.activate(ctx, pipeline, steps[0]); err != nil {
		return nil, nil, err
	}
	return e.GetPipelineWithSteps(ctx, pipeline.ID)
}

func (e *Engine) GetPipelineWithSteps(ctx context.Context, id uint) (*model.Pipeline, []*model.Step, error) {
	pipeline, err := dao.NewPipelineDao().GetByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, common.NewErrNo(common.NotFound)
		}
		return nil, nil, err
	}
	steps, err := dao.NewStepDao().ListByPipeline(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return pipeline, steps, nil
}

// DeletePipeline removes the pipeline with everything it owns. An
// active pipeline (running or awaiting a gate) cannot be deleted.
func (e *Engine) DeletePipeline(ctx context.Context, id uint) error {
	lock := e.pipelineLock(id)
	lock.Lock()
	defer lock.Unlock()

	pipelineDao := dao.NewPipelineDao()
	pipeline, err := pipelineDao.GetByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return common.NewErrNo(common.NotFound)
		}
		return err
	}
	if pipeline.Status.Active() {
		return common.NewErrNoMsg(common.InvalidState, "pipeline %d is %s", id, pipeline.Status)
	}
	if err := pipelineDao.Delete(ctx, id); err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.locks, id)
	e.mu.Unlock()
	return nil
}

// activate enters a step. Caller holds the pipeline lock.
func (e *Engine) activate(ctx context.Context, pipeline *model.Pipeline, step *model.Step) error {
	return behaviorFor(step.Kind).onEntry(ctx, e, pipeline, step)
}

// advance moves the cursor past fromIndex to the next step still on
// the execution path. Invalidated steps are skipped; if nothing
// remains the pipeline completes. Caller holds the pipeline lock.
func (e *Engine) advance(ctx context.Context, pipeline *model.Pipeline, fromIndex int) error {
	steps, err := dao.NewStepDao().ListByPipeline(ctx, pipeline.ID)
	if err != nil {
		return err
	}
	for _, step := range steps {
		if step.OrderIndex > fromIndex && step.Status == model.StepPending {
			return e.activate(ctx, pipeline, step)
		}
	}
	return dao.NewPipelineDao().UpdateStatus(ctx, pipeline.ID, model.PipelineCompleted)
}

// TaskFinished implements executor.Notifier. It runs on the executor's
// goroutine and is the only path from task outcome to step state.
func (e *Engine) TaskFinished(ctx context.Context, stepID, taskID uint, succeeded bool) {
	step, err := dao.NewStepDao().GetByID(ctx, stepID)
	if err != nil {
		e.logger.Error("load step for finished task", zap.Uint("step", stepID), zap.Error(err))
		return
	}

	lock := e.pipelineLock(step.PipelineID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock; a revision may have invalidated the step
	// while the task was in flight.
	step, err = dao.NewStepDao().GetByID(ctx, stepID)
	if err != nil {
		e.logger.Error("reload step for finished task", zap.Uint("step", stepID), zap.Error(err))
		return
	}
	if step.Status != model.StepRunning {
		e.logger.Warn("dropping task outcome for non-running step",
			zap.Uint("step", stepID),
			zap.Uint("task", taskID),
			zap.String("status", string(step.Status)))
		return
	}

	pipeline, err := dao.NewPipelineDao().GetByID(ctx, step.PipelineID)
	if err != nil {
		e.logger.Error("load pipeline for finished task", zap.Uint("pipeline", step.PipelineID), zap.Error(err))
		return
	}

	if err := behaviorFor(step.Kind).onRemoteCompletion(ctx, e, pipeline, step, succeeded); err != nil {
		e.logger.Error("apply task outcome",
			zap.Uint("pipeline", pipeline.ID),
			zap.Uint("step", stepID),
			zap.Error(err))
	}
}

// failPipeline marks the pipeline failed. Steps past the cursor stay
// pending so a later revision can still target them explicitly.
func (e *Engine) failPipeline(ctx context.Context, pipelineID uint) error {
	return dao.NewPipelineDao().UpdateStatus(ctx, pipelineID, model.PipelineFailed)
}
