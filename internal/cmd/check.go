package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcin-skalski/auto-commit/internal/config"
	"github.com/marcin-skalski/auto-commit/internal/logging"
)

var errNoProvider = errors.New("no text generation provider reachable")

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Test the configured text generation providers",
	Long: `Send a short prompt to every configured provider concurrently and report
which of them answered. Exits non-zero when none did.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.SetupLogger(cfg.LogFile, cfg.Log.Level, true)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer logging.CloseFile()

	m := newLLM(cfg.LLM, logger)
	out := cmd.OutOrStdout()
	if len(m.Providers()) == 0 {
		fmt.Fprintln(out, "No providers configured (set NIM_API_KEY, GOOGLE_API_KEY or OPENROUTER_API_KEY).")
		return errNoProvider
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.LLM.Timeout)
	defer cancel()
	results := m.TestConnection(ctx)

	ok := 0
	for _, name := range m.Providers() {
		status := "failed"
		if results[name] {
			status = "ok"
			ok++
		}
		fmt.Fprintf(out, "%-12s %s\n", name, status)
	}
	if ok == 0 {
		return errNoProvider
	}
	return nil
}
