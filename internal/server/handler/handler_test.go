package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gantry/internal/common"
	"gantry/internal/server/dao"
	"gantry/internal/server/engine"
	"gantry/internal/server/executor"
	"gantry/internal/server/model"
	"gantry/pkg/api"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type okChannel struct{}

func (okChannel) EnsureSession(ctx context.Context, envHandle string) error { return nil }

func (okChannel) RunCommand(ctx context.Context, envHandle, command string, onOutput func(chunk []byte)) (int, error) {
	if onOutput != nil {
		onOutput([]byte("done\n"))
	}
	return 0, nil
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(10000)", name)
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, dao.InitWithDB(database))

	exec := executor.New(okChannel{}, zap.NewNop(), 5*time.Second, time.Minute)
	Init(engine.New(exec, zap.NewNop()), exec, okChannel{})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/pipelines", ListPipelines)
	r.GET("/pipelines/:id", GetPipeline)
	r.GET("/tasks/:taskId/events", ListTaskEvents)
	r.GET("/dashboard", Dashboard)
	r.POST("/pipelines", CreatePipeline)
	r.DELETE("/pipelines/:id", DeletePipeline)
	r.POST("/pipelines/:id/steps/:stepId/gate", HandleGate)
	r.POST("/tasks/:taskId/cancel", CancelTask)
	r.POST("/environments/:env/agent-token", SeedAgentToken)
	return r
}

func doRequest(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, common.Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp common.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

const gatedWorkflow = `
name: deploy
environment: env-1
steps:
  - name: build
    kind: automated
    command: make build
  - name: review
    kind: gated
`

// createGatedPipeline creates a pipeline over HTTP and waits for it to
// park at the gate.
func createGatedPipeline(t *testing.T, r *gin.Engine) api.PipelineDetail {
	t.Helper()
	w, resp := doRequest(t, r, http.MethodPost, "/pipelines", gatedWorkflow)
	require.Equal(t, http.StatusOK, w.Code)

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var detail api.PipelineDetail
	require.NoError(t, json.Unmarshal(raw, &detail))
	require.Len(t, detail.Steps, 2)

	require.Eventually(t, func() bool {
		step, err := dao.NewStepDao().GetByID(context.Background(), detail.Steps[1].ID)
		return err == nil && step.Status == model.StepAwaitingGate
	}, 5*time.Second, 10*time.Millisecond)
	return detail
}

func TestCreatePipeline_BadYAML(t *testing.T) {
	r := setupRouter(t)

	w, resp := doRequest(t, r, http.MethodPost, "/pipelines", "steps: [not, closed\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.Validation, resp.Code)
}

func TestCreatePipeline_InvalidDefinition(t *testing.T) {
	r := setupRouter(t)

	w, resp := doRequest(t, r, http.MethodPost, "/pipelines", "name: x\nenvironment: e\nsteps: []\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.Validation, resp.Code)
}

func TestGetPipeline_Statuses(t *testing.T) {
	r := setupRouter(t)
	detail := createGatedPipeline(t, r)

	w, resp := doRequest(t, r, http.MethodGet, fmt.Sprintf("/pipelines/%d", detail.ID), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, common.SuccessCode, resp.Code)

	w, resp = doRequest(t, r, http.MethodGet, "/pipelines/404", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, common.NotFound, resp.Code)

	w, resp = doRequest(t, r, http.MethodGet, "/pipelines/xyz", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.Validation, resp.Code)
}

func TestDeletePipeline_ActiveIsConflict(t *testing.T) {
	r := setupRouter(t)
	detail := createGatedPipeline(t, r)

	w, resp := doRequest(t, r, http.MethodDelete, fmt.Sprintf("/pipelines/%d", detail.ID), "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, common.InvalidState, resp.Code)
}

func TestHandleGate_StatusContract(t *testing.T) {
	r := setupRouter(t)
	detail := createGatedPipeline(t, r)
	gatePath := fmt.Sprintf("/pipelines/%d/steps/%d/gate", detail.ID, detail.Steps[1].ID)

	// Bad JSON body.
	w, resp := doRequest(t, r, http.MethodPost, gatePath, "{")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.Validation, resp.Code)

	// Unknown action.
	w, resp = doRequest(t, r, http.MethodPost, gatePath, `{"action":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.Validation, resp.Code)

	// Gate on the automated step.
	wrongPath := fmt.Sprintf("/pipelines/%d/steps/%d/gate", detail.ID, detail.Steps[0].ID)
	w, resp = doRequest(t, r, http.MethodPost, wrongPath, `{"action":"approve"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, common.InvalidState, resp.Code)

	// First approval lands.
	w, resp = doRequest(t, r, http.MethodPost, gatePath, `{"action":"approve"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, common.SuccessCode, resp.Code)

	// A second decision on the resolved gate conflicts.
	w, resp = doRequest(t, r, http.MethodPost, gatePath, `{"action":"reject"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, common.InvalidState, resp.Code)
}

func TestListTaskEvents(t *testing.T) {
	r := setupRouter(t)
	detail := createGatedPipeline(t, r)

	buildTask, err := dao.NewTaskDao().GetLatestByStep(context.Background(), detail.Steps[0].ID)
	require.NoError(t, err)

	w, resp := doRequest(t, r, http.MethodGet, fmt.Sprintf("/tasks/%d/events", buildTask.ID), "")
	require.Equal(t, http.StatusOK, w.Code)

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var list api.EventList
	require.NoError(t, json.Unmarshal(raw, &list))
	require.NotEmpty(t, list.Events)
	assert.Equal(t, int64(1), list.Events[0].Seq)

	// Polling with after returns only the delta.
	last := list.Events[len(list.Events)-1].Seq
	w, resp = doRequest(t, r, http.MethodGet, fmt.Sprintf("/tasks/%d/events?after=%d", buildTask.ID, last), "")
	require.Equal(t, http.StatusOK, w.Code)
	raw, err = json.Marshal(resp.Data)
	require.NoError(t, err)
	var delta api.EventList
	require.NoError(t, json.Unmarshal(raw, &delta))
	assert.Empty(t, delta.Events)

	// Unknown task and malformed params.
	w, resp = doRequest(t, r, http.MethodGet, "/tasks/404/events", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, common.NotFound, resp.Code)

	w, resp = doRequest(t, r, http.MethodGet, fmt.Sprintf("/tasks/%d/events?after=abc", buildTask.ID), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.Validation, resp.Code)
}

func TestCancelTask_Unknown(t *testing.T) {
	r := setupRouter(t)

	w, resp := doRequest(t, r, http.MethodPost, "/tasks/404/cancel", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, common.NotFound, resp.Code)
}

func TestSeedAgentToken(t *testing.T) {
	r := setupRouter(t)

	w, resp := doRequest(t, r, http.MethodPost, "/environments/env-1/agent-token", `{"token":"tok-123"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, common.SuccessCode, resp.Code)

	w, resp = doRequest(t, r, http.MethodPost, "/environments/env-1/agent-token", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, common.Validation, resp.Code)
}

func TestDashboard(t *testing.T) {
	r := setupRouter(t)
	createGatedPipeline(t, r)

	w, resp := doRequest(t, r, http.MethodGet, "/dashboard", "")
	require.Equal(t, http.StatusOK, w.Code)

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var summary api.DashboardSummary
	require.NoError(t, json.Unmarshal(raw, &summary))
	require.Len(t, summary.Pipelines, 1)
	assert.Equal(t, string(model.PipelineAwaitingGate), summary.Pipelines[0].Status)
	assert.Equal(t, 1, summary.StatusCounts[string(model.PipelineAwaitingGate)])
}
