package main

import (
	"fmt"
	"strings"

	"github.com/elvinasadov/agroflow"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of agroflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("agroflow version %s\n", strings.TrimSpace(agroflow.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
