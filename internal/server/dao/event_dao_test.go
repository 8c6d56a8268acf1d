package dao

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"gantry/internal/server/model"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(10000)", name)
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	// One connection keeps sqlite's locking out of the way; the
	// sequencing guarantees under test live in the DAO, not the driver.
	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, InitWithDB(database))
	return database
}

func createTask(t *testing.T) *model.Task {
	t.Helper()
	task := &model.Task{StepID: 1, Status: model.TaskRunning}
	require.NoError(t, NewTaskDao().Create(context.Background(), task))
	return task
}

func TestAppend_SequencesStartAtOne(t *testing.T) {
	setupTestDB(t)
	task := createTask(t)

	ctx := context.Background()
	eventDao := NewEventDao()

	first, err := eventDao.Append(ctx, task.ID, model.EventStatusChange, "running")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Seq)

	second, err := eventDao.Append(ctx, task.ID, model.EventOutputChunk, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Seq)
}

func TestAppend_GaplessUnderConcurrency(t *testing.T) {
	setupTestDB(t)
	task := createTask(t)

	ctx := context.Background()
	eventDao := NewEventDao()

	const writers = 8
	const perWriter = 5
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(writer int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				_, err := eventDao.Append(ctx, task.ID, model.EventOutputChunk,
					fmt.Sprintf("writer %d chunk %d", writer, j))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	events, err := eventDao.List(ctx, task.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, writers*perWriter)
	for i, event := range events {
		assert.Equal(t, int64(i+1), event.Seq, "sequence must be gapless and ascending")
	}
}

func TestAppend_PerTaskSequences(t *testing.T) {
	setupTestDB(t)
	first := createTask(t)
	second := createTask(t)

	ctx := context.Background()
	eventDao := NewEventDao()

	_, err := eventDao.Append(ctx, first.ID, model.EventStatusChange, "running")
	require.NoError(t, err)
	event, err := eventDao.Append(ctx, second.ID, model.EventStatusChange, "running")
	require.NoError(t, err)
	assert.Equal(t, int64(1), event.Seq, "each task numbers its own events")
}

func TestList_AfterSeqReturnsDelta(t *testing.T) {
	setupTestDB(t)
	task := createTask(t)

	ctx := context.Background()
	eventDao := NewEventDao()
	for i := 0; i < 5; i++ {
		_, err := eventDao.Append(ctx, task.ID, model.EventOutputChunk, fmt.Sprintf("chunk %d", i))
		require.NoError(t, err)
	}

	events, err := eventDao.List(ctx, task.ID, 3)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(4), events[0].Seq)
	assert.Equal(t, int64(5), events[1].Seq)

	// Idempotent read: the same poll yields the same delta.
	again, err := eventDao.List(ctx, task.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, events, again)
}

func TestPipelineDelete_LeavesNoOrphans(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	pipeline := &model.Pipeline{UUID: "u-1", Name: "wf", EnvHandle: "env", Status: model.PipelineCompleted}
	steps := []*model.Step{
		{OrderIndex: 0, Name: "build", Kind: model.StepAutomated, Command: "make", Status: model.StepCompleted},
	}
	require.NoError(t, NewPipelineDao().CreateWithSteps(ctx, pipeline, steps))

	task := &model.Task{StepID: steps[0].ID, Status: model.TaskSucceeded}
	require.NoError(t, NewTaskDao().Create(ctx, task))
	_, err := NewEventDao().Append(ctx, task.ID, model.EventStatusChange, "succeeded")
	require.NoError(t, err)

	require.NoError(t, NewPipelineDao().Delete(ctx, pipeline.ID))

	var count int64
	require.NoError(t, database.Model(&model.Step{}).Where("pipeline_id = ?", pipeline.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, database.Model(&model.Task{}).Where("step_id = ?", steps[0].ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, database.Model(&model.Event{}).Where("task_id = ?", task.ID).Count(&count).Error)
	assert.Zero(t, count)
}
