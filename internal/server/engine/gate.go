package engine

import (
	"context"

	"gantry/internal/common"
	"gantry/internal/server/dao"
	"gantry/internal/server/model"

	"gorm.io/gorm"
)

// GateDecision is a human decision applied to a step awaiting a gate.
type GateDecision struct {
	Action         string // approve, reject or revise
	Feedback       string
	ReviseToStepID uint // required for revise; must be an earlier step
}

const (
	GateApprove = "approve"
	GateReject  = "reject"
	GateRevise  = "revise"
)

// HandleGateDecision validates and applies a decision against the
// pipeline's current gate. Resolution is first-committer-wins: the
// decision lands through a compare-and-swap on the step status, so of
// two concurrent decisions exactly one succeeds and the other gets
// CONFLICT.
func (e *Engine) HandleGateDecision(ctx context.Context, pipelineID, stepID uint, decision GateDecision) error {
	pipeline, err := dao.NewPipelineDao().GetByID(ctx, pipelineID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return common.NewErrNo(common.NotFound)
		}
		return err
	}
	step, err := dao.NewStepDao().GetByID(ctx, stepID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return common.NewErrNo(common.NotFound)
		}
		return err
	}
	if step.PipelineID != pipelineID {
		return common.NewErrNo(common.NotFound)
	}

	lock := e.pipelineLock(pipelineID)
	lock.Lock()
	defer lock.Unlock()

	return behaviorFor(step.Kind).onGateDecision(ctx, e, pipeline, step, decision)
}

func applyGateDecision(ctx context.Context, e *Engine, pipeline *model.Pipeline, step *model.Step, decision GateDecision) error {
	// The status read here is advisory; the compare-and-swap inside
	// each action is what actually decides races. A caller that read
	// awaiting_gate but loses the swap gets CONFLICT, one that never
	// saw a gate gets INVALID_STATE.
	if step.Status != model.StepAwaitingGate {
		return common.NewErrNoMsg(common.InvalidState, "step %d is %s, not awaiting_gate", step.ID, step.Status)
	}

	switch decision.Action {
	case GateApprove:
		return approveGate(ctx, e, pipeline, step, decision)
	case GateReject:
		return rejectGate(ctx, e, pipeline, step, decision)
	case GateRevise:
		return reviseGate(ctx, e, pipeline, step, decision)
	default:
		return common.NewErrNoMsg(common.Validation, "unknown gate action %q", decision.Action)
	}
}

func approveGate(ctx context.Context, e *Engine, pipeline *model.Pipeline, step *model.Step, decision GateDecision) error {
	stepDao := dao.NewStepDao()
	ok, err := stepDao.CasStatus(ctx, step.ID, model.StepAwaitingGate, model.StepApproved)
	if err != nil {
		return err
	}
	if !ok {
		return common.NewErrNoMsg(common.Conflict, "gate on step %d already resolved", step.ID)
	}
	if decision.Feedback != "" {
		if err := setFeedback(ctx, step.ID, decision.Feedback); err != nil {
			return err
		}
	}
	if err := stepDao.UpdateStatus(ctx, step.ID, model.StepCompleted); err != nil {
		return err
	}
	return e.advance(ctx, pipeline, step.OrderIndex)
}

func rejectGate(ctx context.Context, e *Engine, pipeline *model.Pipeline, step *model.Step, decision GateDecision) error {
	ok, err := dao.NewStepDao().CasStatus(ctx, step.ID, model.StepAwaitingGate, model.StepRejected)
	if err != nil {
		return err
	}
	if !ok {
		return common.NewErrNoMsg(common.Conflict, "gate on step %d already resolved", step.ID)
	}
	if decision.Feedback != "" {
		if err := setFeedback(ctx, step.ID, decision.Feedback); err != nil {
			return err
		}
	}
	// Terminal: a rejected gate fails the pipeline and nothing
	// advances past it.
	return e.failPipeline(ctx, pipeline.ID)
}

// reviseGate rewinds the pipeline: the current gate and every step
// strictly after the target are invalidated, the target returns to
// pending carrying the reviser's feedback, and the cursor follows it.
// Revision only goes backward; skipping forward past a gate would
// defeat the gate.
func reviseGate(ctx context.Context, e *Engine, pipeline *model.Pipeline, step *model.Step, decision GateDecision) error {
	if decision.ReviseToStepID == 0 {
		return common.NewErrNoMsg(common.Validation, "revise requires revise_to_step_id")
	}
	target, err := dao.NewStepDao().GetByID(ctx, decision.ReviseToStepID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return common.NewErrNoMsg(common.InvalidState, "revision target %d does not exist", decision.ReviseToStepID)
		}
		return err
	}
	if target.PipelineID != pipeline.ID {
		return common.NewErrNoMsg(common.InvalidState, "revision target %d belongs to another pipeline", target.ID)
	}
	if target.OrderIndex > step.OrderIndex {
		return common.NewErrNoMsg(common.InvalidState, "revision target %d is ahead of the current step", target.ID)
	}

	err = dao.Transaction(ctx, func(tx *gorm.DB) error {
		txSteps := dao.NewStepDaoTx(tx)
		ok, err := txSteps.CasStatus(ctx, step.ID, model.StepAwaitingGate, model.StepInvalidated)
		if err != nil {
			return err
		}
		if !ok {
			return common.NewErrNoMsg(common.Conflict, "gate on step %d already resolved", step.ID)
		}
		if err := txSteps.InvalidateBetween(ctx, pipeline.ID, target.OrderIndex, step.OrderIndex); err != nil {
			return err
		}
		if err := txSteps.ResetForRevision(ctx, target.ID, decision.Feedback); err != nil {
			return err
		}
		return dao.NewPipelineDaoTx(tx).SetCursor(ctx, pipeline.ID, target.OrderIndex, model.PipelineRunning)
	})
	if err != nil {
		return err
	}

	// Re-execute from the target with a fresh task (or a fresh gate).
	target, err = dao.NewStepDao().GetByID(ctx, target.ID)
	if err != nil {
		return err
	}
	return e.activate(ctx, pipeline, target)
}

func setFeedback(ctx context.Context, stepID uint, feedback string) error {
	return dao.NewStepDao().SetFeedback(ctx, stepID, feedback)
}
