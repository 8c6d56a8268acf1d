package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"gantry/internal/common"
	"gantry/internal/server/dao"
	"gantry/internal/server/model"
	"gantry/pkg/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_UnknownPipelineOrStep(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	err := eng.HandleGateDecision(ctx, 404, 1, GateDecision{Action: GateApprove})
	assert.True(t, common.IsErrCode(err, common.NotFound))

	pipeline, steps, err := eng.CreatePipeline(ctx, abcDefinition())
	require.NoError(t, err)
	waitStepStatus(t, steps[1].ID, model.StepAwaitingGate)

	err = eng.HandleGateDecision(ctx, pipeline.ID, 404, GateDecision{Action: GateApprove})
	assert.True(t, common.IsErrCode(err, common.NotFound))

	// A real step addressed through the wrong pipeline is also not found.
	other, otherSteps, err := eng.CreatePipeline(ctx, abcDefinition())
	require.NoError(t, err)
	waitStepStatus(t, otherSteps[1].ID, model.StepAwaitingGate)

	err = eng.HandleGateDecision(ctx, other.ID, steps[1].ID, GateDecision{Action: GateApprove})
	assert.True(t, common.IsErrCode(err, common.NotFound))
}

func TestGate_DecisionOnNonGateStep(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	pipeline, steps, err := eng.CreatePipeline(ctx, abcDefinition())
	require.NoError(t, err)
	waitStepStatus(t, steps[0].ID, model.StepCompleted)

	err = eng.HandleGateDecision(ctx, pipeline.ID, steps[0].ID, GateDecision{Action: GateApprove})
	assert.True(t, common.IsErrCode(err, common.InvalidState))
}

func TestGate_Reject(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	pipeline, steps, err := eng.CreatePipeline(ctx, abcDefinition())
	require.NoError(t, err)
	waitStepStatus(t, steps[1].ID, model.StepAwaitingGate)

	err = eng.HandleGateDecision(ctx, pipeline.ID, steps[1].ID, GateDecision{
		Action:   GateReject,
		Feedback: "release window closed",
	})
	require.NoError(t, err)

	waitPipelineStatus(t, pipeline.ID, model.PipelineFailed)

	review, err := dao.NewStepDao().GetByID(ctx, steps[1].ID)
	require.NoError(t, err)
	assert.Equal(t, model.StepRejected, review.Status)
	assert.Equal(t, "release window closed", review.Feedback)

	release, err := dao.NewStepDao().GetByID(ctx, steps[2].ID)
	require.NoError(t, err)
	assert.Equal(t, model.StepPending, release.Status)
}

func TestGate_DecisionAfterResolutionConflicts(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	pipeline, steps, err := eng.CreatePipeline(ctx, abcDefinition())
	require.NoError(t, err)
	waitStepStatus(t, steps[1].ID, model.StepAwaitingGate)

	require.NoError(t, eng.HandleGateDecision(ctx, pipeline.ID, steps[1].ID, GateDecision{Action: GateApprove}))

	err = eng.HandleGateDecision(ctx, pipeline.ID, steps[1].ID, GateDecision{Action: GateReject})
	require.Error(t, err)
	assert.True(t, common.IsErrCode(err, common.InvalidState))
}

func TestGate_ConcurrentDecisionsOneWins(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	// Both racers read the step in awaiting_gate before either commits,
	// so the row-level compare-and-set is what breaks the tie.
	pipeline, steps, err := eng.CreatePipeline(ctx, &workflow.Definition{
		Name:        "race",
		Environment: "env-1",
		Steps: []workflow.StepSpec{
			{Name: "review", Kind: workflow.KindGated},
		},
	})
	require.NoError(t, err)
	waitStepStatus(t, steps[0].ID, model.StepAwaitingGate)

	decisions := []GateDecision{
		{Action: GateApprove},
		{Action: GateReject, Feedback: "no"},
	}
	errs := make([]error, len(decisions))
	var wg sync.WaitGroup
	for i, decision := range decisions {
		wg.Add(1)
		go func(i int, decision GateDecision) {
			defer wg.Done()
			errs[i] = eng.HandleGateDecision(ctx, pipeline.ID, steps[0].ID, decision)
		}(i, decision)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		lost++
		assert.True(t, common.IsErrCode(err, common.Conflict) || common.IsErrCode(err, common.InvalidState),
			"loser got unexpected error: %v", err)
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	review, err := dao.NewStepDao().GetByID(ctx, steps[0].ID)
	require.NoError(t, err)
	assert.Contains(t, []model.StepStatus{model.StepCompleted, model.StepRejected}, review.Status)
}

func TestGate_ReviseRequiresTarget(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	pipeline, steps, err := eng.CreatePipeline(ctx, abcDefinition())
	require.NoError(t, err)
	waitStepStatus(t, steps[1].ID, model.StepAwaitingGate)

	err = eng.HandleGateDecision(ctx, pipeline.ID, steps[1].ID, GateDecision{Action: GateRevise})
	assert.True(t, common.IsErrCode(err, common.Validation))
}

func TestGate_ReviseForwardRejected(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	pipeline, steps, err := eng.CreatePipeline(ctx, abcDefinition())
	require.NoError(t, err)
	waitStepStatus(t, steps[1].ID, model.StepAwaitingGate)

	err = eng.HandleGateDecision(ctx, pipeline.ID, steps[1].ID, GateDecision{
		Action:         GateRevise,
		ReviseToStepID: steps[2].ID,
	})
	assert.True(t, common.IsErrCode(err, common.InvalidState))
}

func TestGate_ReviseTargetInOtherPipeline(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	pipeline, steps, err := eng.CreatePipeline(ctx, abcDefinition())
	require.NoError(t, err)
	waitStepStatus(t, steps[1].ID, model.StepAwaitingGate)

	_, otherSteps, err := eng.CreatePipeline(ctx, abcDefinition())
	require.NoError(t, err)
	waitStepStatus(t, otherSteps[1].ID, model.StepAwaitingGate)

	err = eng.HandleGateDecision(ctx, pipeline.ID, steps[1].ID, GateDecision{
		Action:         GateRevise,
		ReviseToStepID: otherSteps[0].ID,
	})
	assert.True(t, common.IsErrCode(err, common.InvalidState))
}

func TestGate_ReviseReplaysEarlierStep(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	pipeline, steps, err := eng.CreatePipeline(ctx, abcDefinition())
	require.NoError(t, err)
	build, review, release := steps[0], steps[1], steps[2]
	waitStepStatus(t, review.ID, model.StepAwaitingGate)

	firstTask, err := dao.NewTaskDao().GetLatestByStep(ctx, build.ID)
	require.NoError(t, err)

	err = eng.HandleGateDecision(ctx, pipeline.ID, review.ID, GateDecision{
		Action:         GateRevise,
		Feedback:       "rebuild with the new toolchain",
		ReviseToStepID: build.ID,
	})
	require.NoError(t, err)

	// The gate that ordered the revision is invalidated and the target
	// re-executes with the feedback attached, on a fresh task.
	require.Eventually(t, func() bool {
		task, err := dao.NewTaskDao().GetLatestByStep(ctx, build.ID)
		return err == nil && task.ID != firstTask.ID && task.Status == model.TaskSucceeded
	}, 5*time.Second, 10*time.Millisecond)

	gotReview, err := dao.NewStepDao().GetByID(ctx, review.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StepInvalidated, gotReview.Status)

	gotBuild, err := dao.NewStepDao().GetByID(ctx, build.ID)
	require.NoError(t, err)
	assert.Equal(t, "rebuild with the new toolchain", gotBuild.Feedback)

	// With the gate invalidated, execution continues past it.
	waitStepStatus(t, release.ID, model.StepCompleted)
	waitPipelineStatus(t, pipeline.ID, model.PipelineCompleted)
}

func TestGate_ReviseToSelfReplaysGate(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	pipeline, steps, err := eng.CreatePipeline(ctx, abcDefinition())
	require.NoError(t, err)
	review := steps[1]
	waitStepStatus(t, review.ID, model.StepAwaitingGate)

	err = eng.HandleGateDecision(ctx, pipeline.ID, review.ID, GateDecision{
		Action:         GateRevise,
		Feedback:       "look again",
		ReviseToStepID: review.ID,
	})
	require.NoError(t, err)

	// The gate re-arms itself with the feedback attached.
	waitStepStatus(t, review.ID, model.StepAwaitingGate)
	gotReview, err := dao.NewStepDao().GetByID(ctx, review.ID)
	require.NoError(t, err)
	assert.Equal(t, "look again", gotReview.Feedback)

	got, err := dao.NewPipelineDao().GetByID(ctx, pipeline.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PipelineAwaitingGate, got.Status)

	// The replayed gate still resolves normally.
	require.NoError(t, eng.HandleGateDecision(ctx, pipeline.ID, review.ID, GateDecision{Action: GateApprove}))
	waitPipelineStatus(t, pipeline.ID, model.PipelineCompleted)
}
