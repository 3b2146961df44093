package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcin-skalski/auto-commit/internal/config"
	"github.com/marcin-skalski/auto-commit/internal/pattern"
)

var (
	scheduleStart string
	scheduleSeed  uint64
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print a generated commit schedule without committing",
	Long: `Generate one schedule with the configured count range and window and
print it. Nothing is cloned, written or committed.

Examples:
  auto-commit schedule
  auto-commit schedule --start 2024-06-01T09:00:00Z --seed 42`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleStart, "start", "", "Window start as RFC3339 (default now)")
	scheduleCmd.Flags().Uint64Var(&scheduleSeed, "seed", 0, "Random seed (overrides schedule.seed)")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	start := time.Now()
	if scheduleStart != "" {
		start, err = time.Parse(time.RFC3339, scheduleStart)
		if err != nil {
			return fmt.Errorf("parse --start: %w", err)
		}
	}
	if scheduleSeed != 0 {
		cfg.Schedule.Seed = scheduleSeed
	}

	w := pattern.Window{Start: start, Duration: cfg.Schedule.Window}
	times := newGenerator(cfg.Schedule).Generate(w)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Window %s → %s, %d commits\n",
		w.Start.Format(time.DateTime), w.End().Format(time.DateTime), len(times))
	prev := w.Start
	for i, ts := range times {
		fmt.Fprintf(out, "%3d  %s  +%s\n", i+1, ts.Format(time.DateTime), ts.Sub(prev).Round(time.Second))
		prev = ts
	}
	return nil
}
