package api

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

const (
	GateApprove = "approve"
	GateReject  = "reject"
	GateRevise  = "revise"
)

// GateRequest is the body of POST /pipelines/{id}/steps/{stepId}/gate.
// ReviseToStepID is required when Action is "revise" and must name an
// earlier step of the same pipeline.
type GateRequest struct {
	Action         string `json:"action" binding:"required"`
	Feedback       string `json:"feedback,omitempty"`
	ReviseToStepID uint   `json:"revise_to_step_id,omitempty"`
}

// AgentTokenRequest is the body of POST /environments/{env}/agent-token.
type AgentTokenRequest struct {
	Token string `json:"token" binding:"required"`
}
