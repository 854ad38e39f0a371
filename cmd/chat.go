/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"synapse/pkg/coordinator"
	"synapse/pkg/security"
)

var inputText string

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [input]",
	Short: "Send one request or start an interactive chat",
	Long:  "Loads Synapse configuration, starts the runtime, and processes one request or starts an interactive chat session.",
	Run: func(cmd *cobra.Command, args []string) {
		input := resolveInput(args)

		cfg := loadConfig()

		runtime, _, err := buildRuntime(cfg, nil)
		if err != nil {
			fmt.Printf("failed to initialize runtime: %v\n", err)
			return
		}

		ctx := context.Background()
		if err := runtime.Start(ctx); err != nil {
			fmt.Printf("failed to start runtime: %v\n", err)
			return
		}
		defer func() { _ = runtime.Close(ctx) }()

		if input != "" {
			runSingleRequest(ctx, runtime, input)
			return
		}

		runInteractive(ctx, runtime)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&inputText, "input", "i", "", "input text to process")
}

func resolveInput(args []string) string {
	if value := strings.TrimSpace(inputText); value != "" {
		return value
	}

	if len(args) == 0 {
		return ""
	}

	value := strings.TrimSpace(strings.Join(args, " "))
	if value == "" {
		return ""
	}

	return value
}

func runSingleRequest(ctx context.Context, runtime *coordinator.Coordinator, input string) {
	result := runtime.ProcessRequest(ctx, input, security.KindText, nil)
	printAssistantMessage(responseText(result))
}

func runInteractive(ctx context.Context, runtime *coordinator.Coordinator) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("👤 ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Printf("input error: %v\n", err)
			}
			return
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if isExitCommand(input) {
			return
		}

		result := runtime.ProcessRequest(ctx, input, security.KindText, nil)
		printAssistantMessage(responseText(result))
	}
}

// responseText extracts the user-facing text of a result, falling back to
// the error when the response carries none.
func responseText(result coordinator.Result) string {
	if text, ok := result.Response["text"].(string); ok && text != "" {
		return text
	}
	if result.Error != "" {
		return result.Error
	}
	return ""
}

func printAssistantMessage(message string) {
	lines := assistantLines(message)
	for _, line := range lines {
		fmt.Printf("🧠 %s\n", line)
	}
	if len(lines) > 0 {
		fmt.Println()
	}
}

func assistantLines(message string) []string {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "\n")
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", ":q":
		return true
	default:
		return false
	}
}
