package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/elvinasadov/agroflow/internal/config"
	"github.com/elvinasadov/agroflow/internal/logging"
	"github.com/elvinasadov/agroflow/internal/store"
	"github.com/elvinasadov/agroflow/pkg/ports"
)

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Manage persistent conversation threads",
	Long:  `List, inspect, and remove conversation checkpoints stored in the configured backend.`,
}

var threadLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all known threads",
	Run: func(cmd *cobra.Command, args []string) {
		st, cleanup := getStore(cmd)
		defer cleanup()

		threads, err := st.List(cmd.Context())
		if err != nil {
			fmt.Printf("Error listing threads: %v\n", err)
			os.Exit(1)
		}

		if len(threads) == 0 {
			fmt.Println("No threads found.")
			return
		}

		fmt.Println("Threads:")
		for _, id := range threads {
			fmt.Println("- " + id)
		}
	},
}

var threadInspectCmd = &cobra.Command{
	Use:   "inspect <thread-id>",
	Short: "Inspect the checkpointed state of a thread",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		threadID := args[0]
		st, cleanup := getStore(cmd)
		defer cleanup()

		state, err := st.Load(cmd.Context(), threadID)
		if err != nil {
			fmt.Printf("Error loading thread '%s': %v\n", threadID, err)
			os.Exit(1)
		}

		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			fmt.Printf("Error marshaling state: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(string(data))
	},
}

var threadRmCmd = &cobra.Command{
	Use:   "rm <thread-id>...",
	Short: "Remove one or more threads",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		st, cleanup := getStore(cmd)
		defer cleanup()

		hasError := false
		for _, threadID := range args {
			if err := st.Delete(cmd.Context(), threadID); err != nil {
				fmt.Printf("Error removing '%s': %v\n", threadID, err)
				hasError = true
			} else {
				fmt.Printf("Removed thread '%s'\n", threadID)
			}
		}

		if hasError {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(threadCmd)
	threadCmd.AddCommand(threadLsCmd)
	threadCmd.AddCommand(threadInspectCmd)
	threadCmd.AddCommand(threadRmCmd)
}

func getStore(cmd *cobra.Command) (ports.CheckpointStore, func()) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	sel, err := store.Select(context.Background(), cfg.Store, logging.New(logging.ParseLevel(cfg.LogLevel)))
	if err != nil {
		fmt.Printf("Error opening checkpoint backend: %v\n", err)
		os.Exit(1)
	}

	return sel.Store, func() { _ = sel.Close() }
}
