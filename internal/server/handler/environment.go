package handler

import (
	"gantry/internal/common"
	"gantry/internal/server/channel"
	"gantry/pkg/api"

	"github.com/gin-gonic/gin"
)

// SeedAgentToken installs an agent credential inside a remote
// environment so agent invocations launched from tasks can
// authenticate. The token goes straight to the environment and is
// never stored server-side.
func SeedAgentToken(c *gin.Context) {
	envHandle := c.Param("env")
	if envHandle == "" {
		common.Error(c, common.NewErrNo(common.Validation))
		return
	}

	var req api.AgentTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, common.NewErrNoMsg(common.Validation, "invalid token request: %s", err.Error()))
		return
	}

	if err := channel.SeedAgentCredentials(c, ch, envHandle, req.Token); err != nil {
		common.Error(c, common.NewErrNoMsg(common.Internal, "seed agent token: %s", err.Error()))
		return
	}
	common.Success(c, nil)
}
