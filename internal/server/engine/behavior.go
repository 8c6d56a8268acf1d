package engine

import (
	"context"

	"gantry/internal/common"
	"gantry/internal/server/dao"
	"gantry/internal/server/model"
)

// behavior is the per-kind half of the step state machine. Automated
// and gated steps share the same lifecycle but differ in what happens
// on entry, when the remote command finishes, and when a human
// decides. All callers hold the pipeline lock.
type behavior interface {
	onEntry(ctx context.Context, e *Engine, pipeline *model.Pipeline, step *model.Step) error
	onRemoteCompletion(ctx context.Context, e *Engine, pipeline *model.Pipeline, step *model.Step, succeeded bool) error
	onGateDecision(ctx context.Context, e *Engine, pipeline *model.Pipeline, step *model.Step, decision GateDecision) error
}

func behaviorFor(kind model.StepKind) behavior {
	if kind == model.StepGated {
		return gatedStep{}
	}
	return automatedStep{}
}

type automatedStep struct{}

func (automatedStep) onEntry(ctx context.Context, e *Engine, pipeline *model.Pipeline, step *model.Step) error {
	// The CAS is the double-dispatch guard: a duplicate advance finds
	// the step already running and loses here.
	ok, err := dao.NewStepDao().CasStatus(ctx, step.ID, model.StepPending, model.StepRunning)
	if err != nil {
		return err
	}
	if !ok {
		return common.NewErrNoMsg(common.Conflict, "step %d is no longer pending", step.ID)
	}
	if err := dao.NewPipelineDao().SetCursor(ctx, pipeline.ID, step.OrderIndex, model.PipelineRunning); err != nil {
		return err
	}

	if _, err := e.exec.Start(ctx, step, pipeline.EnvHandle); err != nil {
		// The step cannot run and nothing will call back; fail the
		// pipeline now rather than leave it stuck.
		if derr := dao.NewStepDao().UpdateStatus(ctx, step.ID, model.StepFailed); derr != nil {
			return derr
		}
		if derr := e.failPipeline(ctx, pipeline.ID); derr != nil {
			return derr
		}
		return err
	}
	return nil
}

func (automatedStep) onRemoteCompletion(ctx context.Context, e *Engine, pipeline *model.Pipeline, step *model.Step, succeeded bool) error {
	if !succeeded {
		if err := dao.NewStepDao().UpdateStatus(ctx, step.ID, model.StepFailed); err != nil {
			return err
		}
		return e.failPipeline(ctx, pipeline.ID)
	}
	if err := dao.NewStepDao().UpdateStatus(ctx, step.ID, model.StepCompleted); err != nil {
		return err
	}
	return e.advance(ctx, pipeline, step.OrderIndex)
}

func (automatedStep) onGateDecision(ctx context.Context, e *Engine, pipeline *model.Pipeline, step *model.Step, decision GateDecision) error {
	return common.NewErrNoMsg(common.InvalidState, "step %d is not awaiting a gate", step.ID)
}

type gatedStep struct{}

func (gatedStep) onEntry(ctx context.Context, e *Engine, pipeline *model.Pipeline, step *model.Step) error {
	ok, err := dao.NewStepDao().CasStatus(ctx, step.ID, model.StepPending, model.StepAwaitingGate)
	if err != nil {
		return err
	}
	if !ok {
		return common.NewErrNoMsg(common.Conflict, "step %d is no longer pending", step.ID)
	}
	// Parks here; no task is started until a human decides.
	return dao.NewPipelineDao().SetCursor(ctx, pipeline.ID, step.OrderIndex, model.PipelineAwaitingGate)
}

func (gatedStep) onRemoteCompletion(ctx context.Context, e *Engine, pipeline *model.Pipeline, step *model.Step, succeeded bool) error {
	// Gated steps never own a task, so nothing should ever complete
	// remotely for one.
	return common.NewErrNoMsg(common.InvalidState, "gated step %d cannot finish a task", step.ID)
}

func (gatedStep) onGateDecision(ctx context.Context, e *Engine, pipeline *model.Pipeline, step *model.Step, decision GateDecision) error {
	return applyGateDecision(ctx, e, pipeline, step, decision)
}
