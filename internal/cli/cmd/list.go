package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"gantry/internal/cli/client"

	"github.com/spf13/cobra"
)

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pipelines or show one pipeline with its steps",
		Run:   runList,
	}

	cmd.Flags().StringP("id", "i", "", "Specific pipeline ID to show")

	return cmd
}

func runList(cmd *cobra.Command, args []string) {
	listPipelineID, _ := cmd.Flags().GetString("id")
	var path string
	if listPipelineID != "" {
		path = fmt.Sprintf("/pipelines/%s", listPipelineID)
	} else {
		path = "/pipelines"
	}

	resp, err := client.SendRequest(http.MethodGet, path, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	printResponse(resp)
}

// printResponse pretty-prints the server's JSON body.
func printResponse(resp *http.Response) {
	body, err := client.ReadResponseBody(resp)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	var result any
	if err := json.Unmarshal(body, &result); err != nil {
		fmt.Printf("Error: Failed to parse response - %v\n", err)
		return
	}
	formatted, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Printf("Error: Failed to format output - %v\n", err)
		return
	}
	fmt.Println(string(formatted))
}
