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

func NewSeedTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-token",
		Short: "Install an agent credential inside a remote environment",
		Run:   runSeedToken,
	}

	cmd.Flags().StringP("env", "e", "", "Environment handle (required)")
	cmd.Flags().StringP("token", "t", "", "Agent token to install (required)")
	cmd.MarkFlagRequired("env")
	cmd.MarkFlagRequired("token")

	return cmd
}

func runSeedToken(cmd *cobra.Command, args []string) {
	envHandle, _ := cmd.Flags().GetString("env")
	agentToken, _ := cmd.Flags().GetString("token")

	req := api.AgentTokenRequest{Token: agentToken}
	jsonData, err := json.Marshal(req)
	if err != nil {
		fmt.Printf("Error: Failed to serialize data - %v\n", err)
		return
	}

	path := fmt.Sprintf("/environments/%s/agent-token", envHandle)
	resp, err := client.SendRequest(http.MethodPost, path, bytes.NewBuffer(jsonData))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	printResponse(resp)
}
