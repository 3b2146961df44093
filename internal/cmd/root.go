// Package cmd implements the auto-commit command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "auto-commit",
	Short: "Commit generated content to a repository on a human-looking schedule",
	Long: `auto-commit keeps a working copy of a repository, writes generated
articles into it and commits them at irregular times across a window.

Configuration comes from a YAML file (TOML with a .toml extension) and the
environment. Without --config only the environment is read.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
