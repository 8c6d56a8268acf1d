// Package executor drives one asynchronous remote execution per
// automated step: it owns the task lifecycle, streams progress into
// the event log, and reports the outcome back to the engine. Channel
// failures never escape this package as errors; they always become a
// terminal task state plus an explanatory event.
package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gantry/internal/common"
	"gantry/internal/server/channel"
	"gantry/internal/server/dao"
	"gantry/internal/server/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier receives the terminal outcome of a task. The engine
// implements it; the indirection keeps this package free of engine
// imports.
type Notifier interface {
	TaskFinished(ctx context.Context, stepID, taskID uint, succeeded bool)
}

type runHandle struct {
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

type Executor struct {
	ch              channel.Channel
	logger          *zap.Logger
	cmdTimeout      time.Duration
	recoveryTimeout time.Duration

	mu      sync.Mutex
	running map[uint]*runHandle

	notifier Notifier
}

func New(ch channel.Channel, logger *zap.Logger, cmdTimeout, recoveryTimeout time.Duration) *Executor {
	return &Executor{
		ch:              ch,
		logger:          logger,
		cmdTimeout:      cmdTimeout,
		recoveryTimeout: recoveryTimeout,
		running:         make(map[uint]*runHandle),
	}
}

// Bind installs the outcome receiver. Must be called before Start.
func (e *Executor) Bind(n Notifier) {
	e.notifier = n
}

// Start creates a queued task for the step and launches the remote
// command off the caller's path. The caller gets the task identity
// immediately; all further progress is observable only through the
// event log. A step that already owns a non-terminal task refuses a
// second one with CONFLICT, which guards against double dispatch.
func (e *Executor) Start(ctx context.Context, step *model.Step, envHandle string) (*model.Task, error) {
	taskDao := dao.NewTaskDao()
	if _, err := taskDao.GetActiveByStep(ctx, step.ID); err == nil {
		return nil, common.NewErrNoMsg(common.Conflict, "step %d already owns an active task", step.ID)
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	task := &model.Task{StepID: step.ID, Status: model.TaskQueued}
	if err := taskDao.Create(ctx, task); err != nil {
		return nil, err
	}
	e.appendEvent(ctx, task.ID, model.EventStatusChange, string(model.TaskQueued))

	go e.run(task.ID, step.ID, envHandle, step.Command)
	return task, nil
}

// Cancel signals the in-flight remote operation to stop. Cancellation
// of the remote side is best-effort; the task reaches cancelled
// locally no matter what the remote peer does.
func (e *Executor) Cancel(ctx context.Context, taskID uint) error {
	e.mu.Lock()
	handle, ok := e.running[taskID]
	e.mu.Unlock()
	if ok {
		handle.cancelled.Store(true)
		handle.cancel()
		return nil
	}

	// No executor registered for it (e.g. after a restart): resolve the
	// row directly.
	taskDao := dao.NewTaskDao()
	task, err := taskDao.GetByID(ctx, taskID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return common.NewErrNo(common.NotFound)
		}
		return err
	}
	if task.Status.Terminal() {
		return common.NewErrNoMsg(common.InvalidState, "task %d already %s", taskID, task.Status)
	}
	if err := taskDao.MarkFinished(ctx, taskID, model.TaskCancelled); err != nil {
		return err
	}
	e.appendEvent(ctx, taskID, model.EventError, "cancelled with no executor attached")
	e.notify(task.StepID, taskID, false)
	return nil
}

func (e *Executor) run(taskID, stepID uint, envHandle, command string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cmdTimeout)
	defer cancel()

	handle := &runHandle{cancel: cancel}
	e.mu.Lock()
	e.running[taskID] = handle
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, taskID)
		e.mu.Unlock()
	}()

	taskDao := dao.NewTaskDao()
	if err := taskDao.MarkRunning(ctx, taskID); err != nil {
		e.logger.Error("mark task running", zap.Uint("task", taskID), zap.Error(err))
	}
	e.appendEvent(ctx, taskID, model.EventStatusChange, string(model.TaskRunning))

	exitCode := -1
	err := e.ch.EnsureSession(ctx, envHandle)
	if err == nil {
		exitCode, err = e.ch.RunCommand(ctx, envHandle, command, func(chunk []byte) {
			e.appendEvent(ctx, taskID, model.EventOutputChunk, string(chunk))
		})
	}

	// The append/update context must survive the command context: the
	// terminal state has to land even when the run timed out.
	finCtx, finCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer finCancel()

	var status model.TaskStatus
	switch {
	case handle.cancelled.Load():
		status = model.TaskCancelled
		e.appendEvent(finCtx, taskID, model.EventError, "cancelled by request; remote command may still be running")
	case err != nil:
		status = model.TaskFailed
		if ctx.Err() == context.DeadlineExceeded {
			e.appendEvent(finCtx, taskID, model.EventError, fmt.Sprintf("command timed out after %s", e.cmdTimeout))
		} else {
			e.appendEvent(finCtx, taskID, model.EventError, err.Error())
		}
	case exitCode != 0:
		status = model.TaskFailed
		e.appendEvent(finCtx, taskID, model.EventError, fmt.Sprintf("command exited %d", exitCode))
	default:
		status = model.TaskSucceeded
	}
	e.appendEvent(finCtx, taskID, model.EventStatusChange, string(status))

	if err := taskDao.MarkFinished(finCtx, taskID, status); err != nil {
		e.logger.Error("mark task finished", zap.Uint("task", taskID), zap.Error(err))
	}
	e.notify(stepID, taskID, status == model.TaskSucceeded)
}

func (e *Executor) notify(stepID, taskID uint, succeeded bool) {
	if e.notifier == nil {
		e.logger.Warn("task finished with no notifier bound", zap.Uint("task", taskID))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	e.notifier.TaskFinished(ctx, stepID, taskID, succeeded)
}

func (e *Executor) appendEvent(ctx context.Context, taskID uint, eventType model.EventType, payload string) {
	if _, err := dao.NewEventDao().Append(ctx, taskID, eventType, payload); err != nil {
		e.logger.Error("append event",
			zap.Uint("task", taskID),
			zap.String("type", string(eventType)),
			zap.Error(err))
	}
}
