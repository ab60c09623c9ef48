package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "agroflow",
	Short: "Agroflow is a farm-advisory agent orchestration service",
	Long: `Agroflow runs a stateful execution graph over farmer conversations:
intent classification, agronomy advisory, natural-language data queries and
crop photo analysis, with per-thread checkpointing.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "agroflow.yaml", "Path to the configuration file")
}
