package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"gantry/internal/cli/client"
	"gantry/pkg/api"

	"github.com/spf13/cobra"
)

func NewGateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Approve, reject or revise a step awaiting a gate",
		Run:   runGate,
	}

	cmd.Flags().IntP("pipeline", "i", 0, "Pipeline ID (required)")
	cmd.Flags().IntP("step", "s", 0, "Step ID of the gate (required)")
	cmd.Flags().StringP("action", "a", "", "approve, reject or revise (required)")
	cmd.Flags().StringP("feedback", "m", "", "Feedback to attach to the decision")
	cmd.Flags().Int("revise-to", 0, "Step ID to rewind to (revise only)")
	cmd.MarkFlagRequired("pipeline")
	cmd.MarkFlagRequired("step")
	cmd.MarkFlagRequired("action")

	return cmd
}

func runGate(cmd *cobra.Command, args []string) {
	pipelineID, _ := cmd.Flags().GetInt("pipeline")
	stepID, _ := cmd.Flags().GetInt("step")
	action, _ := cmd.Flags().GetString("action")
	feedback, _ := cmd.Flags().GetString("feedback")
	reviseTo, _ := cmd.Flags().GetInt("revise-to")

	req := api.GateRequest{
		Action:         action,
		Feedback:       feedback,
		ReviseToStepID: uint(reviseTo),
	}
	jsonData, err := json.Marshal(req)
	if err != nil {
		fmt.Printf("Error: Failed to serialize data - %v\n", err)
		return
	}

	path := fmt.Sprintf("/pipelines/%d/steps/%d/gate", pipelineID, stepID)
	resp, err := client.SendRequest(http.MethodPost, path, bytes.NewBuffer(jsonData))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	printResponse(resp)
}
