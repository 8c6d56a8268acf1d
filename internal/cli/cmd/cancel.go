package cmd

import (
	"fmt"
	"net/http"

	"gantry/internal/cli/client"

	"github.com/spf13/cobra"
)

func NewCancelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel an in-flight task (best effort)",
		Run:   runCancel,
	}

	cmd.Flags().IntP("task", "t", 0, "Task ID to cancel (required)")
	cmd.MarkFlagRequired("task")

	return cmd
}

func runCancel(cmd *cobra.Command, args []string) {
	taskID, _ := cmd.Flags().GetInt("task")

	resp, err := client.SendRequest(http.MethodPost, fmt.Sprintf("/tasks/%d/cancel", taskID), nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	printResponse(resp)
}
