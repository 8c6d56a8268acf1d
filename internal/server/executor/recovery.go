package executor

import (
	"context"
	"fmt"
	"time"

	"gantry/internal/server/dao"
	"gantry/internal/server/model"

	"go.uber.org/zap"
)

// ReapStale fails running tasks that no executor goroutine is driving
// anymore. After a crash or restart a task row can be stuck in
// "running" forever; once it has been untouched longer than the
// recovery timeout it is forced to failed with a synthesized error
// event, so pollers never see a silently stuck pipeline.
func (e *Executor) ReapStale(ctx context.Context) {
	taskDao := dao.NewTaskDao()
	deadline := time.Now().Add(-e.recoveryTimeout)
	tasks, err := taskDao.FindStaleRunning(ctx, deadline)
	if err != nil {
		e.logger.Error("find stale tasks", zap.Error(err))
		return
	}

	for _, task := range tasks {
		e.mu.Lock()
		_, attached := e.running[task.ID]
		e.mu.Unlock()
		if attached {
			continue
		}

		if err := taskDao.MarkFinished(ctx, task.ID, model.TaskFailed); err != nil {
			e.logger.Error("reap stale task", zap.Uint("task", task.ID), zap.Error(err))
			continue
		}
		e.appendEvent(ctx, task.ID, model.EventError,
			fmt.Sprintf("no executor attached for over %s; task failed during recovery", e.recoveryTimeout))
		e.logger.Warn("reaped stale task", zap.Uint("task", task.ID))
		e.notify(task.StepID, task.ID, false)
	}
}
