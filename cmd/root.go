// Package cmd implements the driftwhale CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"
const logo = "🐋"

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "driftwhale",
	Short: logo + " driftwhale - assistant with layered memory",
	Long:  logo + " driftwhale - a conversational assistant that remembers: rolling context window, fact document, hierarchical history consolidation",
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(memoryCmd)
}
