package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"gantry/internal/cli/cmd"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use: "gantry",
		Run: func(cmd *cobra.Command, args []string) {},
	}

	cmd.RegisterCommands(rootCmd)

	// The login token only lives in process memory, so the CLI runs as
	// an interactive shell.
	startInteractiveMode(rootCmd)
}

func startInteractiveMode(rootCmd *cobra.Command) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Gantry CLI - Type 'help' to show help, 'exit' or 'quit' to quit")
	fmt.Print(">> ")

	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "exit" || input == "quit" {
			break
		}
		if input == "" {
			fmt.Print(">> ")
			continue
		}
		if input == "help" {
			rootCmd.Help()
			fmt.Print(">> ")
			continue
		}

		args := strings.Fields(input)
		rootCmd.SetArgs(args)
		if err := rootCmd.Execute(); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
		fmt.Print(">> ")
	}
}
