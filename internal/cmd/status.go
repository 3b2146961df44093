package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marcin-skalski/auto-commit/internal/config"
	"github.com/marcin-skalski/auto-commit/internal/logging"
	"github.com/marcin-skalski/auto-commit/internal/repo"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health of the working copy",
	Long: `Report whether the working copy exists, its lifecycle state, branch and
commit count. An existing working copy is opened read-only; nothing is
cloned or initialized.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.SetupLogger(cfg.LogFile, cfg.Log.Level, true)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer logging.CloseFile()

	ctx := cmd.Context()
	ag := newAgent(cfg, logger)
	if ag.git.IsRepository(cfg.Repo.Path) {
		if err := ag.controller.Setup(ctx); err != nil {
			return fmt.Errorf("open repository: %w", err)
		}
	}
	h := ag.controller.Health(ctx)

	out := cmd.OutOrStdout()
	if statusJSON {
		data, err := json.MarshalIndent(h, "", "  ")
		if err != nil {
			return fmt.Errorf("encode status: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	printHealth(cmd, h, cfg.Repo.URL)
	return nil
}

func printHealth(cmd *cobra.Command, h repo.Health, url string) {
	out := cmd.OutOrStdout()
	if url == "" {
		url = "(none, local only)"
	}
	fmt.Fprintf(out, "Path:     %s\n", h.Path)
	fmt.Fprintf(out, "Remote:   %s\n", url)
	fmt.Fprintf(out, "State:    %s\n", h.State)
	if !h.PathExists {
		fmt.Fprintln(out, "          working copy does not exist yet")
	} else if !h.GitDirExists {
		fmt.Fprintln(out, "          directory exists but is not a repository")
	}
	if h.Branch != "" {
		fmt.Fprintf(out, "Branch:   %s (%s commits)\n", h.Branch, humanize.Comma(int64(h.CommitCount)))
	}
	if h.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", h.Error)
	}
}
