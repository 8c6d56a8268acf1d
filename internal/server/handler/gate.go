package handler

import (
	"strconv"

	"gantry/internal/common"
	"gantry/internal/server/engine"
	"gantry/pkg/api"

	"github.com/gin-gonic/gin"
)

// HandleGate applies a human gate decision to a step.
func HandleGate(c *gin.Context) {
	pipelineID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		common.Error(c, common.NewErrNo(common.Validation))
		return
	}
	stepID, err := strconv.Atoi(c.Param("stepId"))
	if err != nil {
		common.Error(c, common.NewErrNo(common.Validation))
		return
	}

	var req api.GateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, common.NewErrNoMsg(common.Validation, "invalid gate request: %s", err.Error()))
		return
	}
	switch req.Action {
	case api.GateApprove, api.GateReject, api.GateRevise:
	default:
		common.Error(c, common.NewErrNoMsg(common.Validation, "unknown gate action %q", req.Action))
		return
	}

	decision := engine.GateDecision{
		Action:         req.Action,
		Feedback:       req.Feedback,
		ReviseToStepID: req.ReviseToStepID,
	}
	if err := eng.HandleGateDecision(c, uint(pipelineID), uint(stepID), decision); err != nil {
		common.Error(c, err)
		return
	}
	common.Success(c, nil)
}
