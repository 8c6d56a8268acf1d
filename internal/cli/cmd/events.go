package cmd

import (
	"fmt"
	"net/http"

	"gantry/internal/cli/client"

	"github.com/spf13/cobra"
)

func NewEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show a task's event log",
		Run:   runEvents,
	}

	cmd.Flags().IntP("task", "t", 0, "Task ID (required)")
	cmd.Flags().Int64("after", 0, "Only events with seq greater than this")
	cmd.MarkFlagRequired("task")

	return cmd
}

func runEvents(cmd *cobra.Command, args []string) {
	taskID, _ := cmd.Flags().GetInt("task")
	after, _ := cmd.Flags().GetInt64("after")

	path := fmt.Sprintf("/tasks/%d/events", taskID)
	if after > 0 {
		path = fmt.Sprintf("%s?after=%d", path, after)
	}

	resp, err := client.SendRequest(http.MethodGet, path, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	printResponse(resp)
}
