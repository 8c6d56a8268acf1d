package cmd

import (
	"fmt"
	"net/http"

	"gantry/internal/cli/client"

	"github.com/spf13/cobra"
)

func NewDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a pipeline that is no longer active",
		Run:   runDelete,
	}

	cmd.Flags().IntP("id", "i", 0, "Pipeline ID to delete (required)")
	cmd.MarkFlagRequired("id")

	return cmd
}

func runDelete(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetInt("id")

	resp, err := client.SendRequest(http.MethodDelete, fmt.Sprintf("/pipelines/%d", id), nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	printResponse(resp)
}
