package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/elvinasadov/agroflow"
	"github.com/elvinasadov/agroflow/internal/config"
)

var chatCmd = &cobra.Command{
	Use:   "chat [thread-id]",
	Short: "Start an interactive chat session",
	Long: `Runs the orchestration core in a local REPL. Each line is one turn;
the conversation is checkpointed under the thread ID, so an interrupted
session resumes where it left off.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}

		orch, err := agroflow.NewFromConfig(cmd.Context(), cfg)
		if err != nil {
			fmt.Printf("Error initializing agroflow: %v\n", err)
			os.Exit(1)
		}
		defer orch.Close()

		threadID := "chat-" + uuid.NewString()
		if len(args) > 0 {
			threadID = args[0]
		}

		// Prompts only when a human is attached; piped input stays clean.
		interactive := term.IsTerminal(int(os.Stdin.Fd()))
		if interactive {
			fmt.Printf("Agroflow chat (thread %s). Type 'exit' to quit.\n", threadID)
		}

		reader := bufio.NewReader(os.Stdin)
		for {
			if interactive {
				fmt.Print("> ")
			}

			line, err := reader.ReadString('\n')
			if err != nil {
				break
			}
			input := strings.TrimSpace(line)
			if input == "" {
				continue
			}
			if input == "exit" || input == "quit" {
				fmt.Println("Sağ olun!")
				break
			}

			var artifacts []string
			if path, ok := strings.CutPrefix(input, "/image "); ok {
				artifacts = []string{strings.TrimSpace(path)}
				input = ""
			}

			result, err := orch.SubmitTurn(cmd.Context(), threadID, input, artifacts, nil)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}

			fmt.Println(result.Response)
			if !result.Persisted {
				fmt.Println("(warning: this turn could not be checkpointed)")
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
