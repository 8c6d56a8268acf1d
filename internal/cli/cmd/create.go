package cmd

import (
	"fmt"
	"net/http"
	"os"

	"gantry/internal/cli/client"

	"github.com/spf13/cobra"
)

func NewCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Launch a pipeline from a workflow YAML file",
		Run:   runCreate,
	}

	cmd.Flags().StringP("file", "f", "", "Path to the workflow YAML (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func runCreate(cmd *cobra.Command, args []string) {
	path, _ := cmd.Flags().GetString("file")

	file, err := os.Open(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer file.Close()

	resp, err := client.SendFile(http.MethodPost, "/pipelines", file)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	printResponse(resp)
}
