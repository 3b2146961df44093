package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/marcin-skalski/auto-commit/internal/config"
	"github.com/marcin-skalski/auto-commit/internal/daemon"
	"github.com/marcin-skalski/auto-commit/internal/llm"
	"github.com/marcin-skalski/auto-commit/internal/lock"
	"github.com/marcin-skalski/auto-commit/internal/logging"
	"github.com/marcin-skalski/auto-commit/internal/tui"
)

var (
	runNoTUI       bool
	runLockTimeout time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Set up the repository and commit on schedule",
	Long: `Clone or initialize the working copy, then commit generated content at
the times of a freshly generated schedule until the window closes.

With schedule.continuous set, a new window starts when the previous one
closes. SIGINT or SIGTERM stops the loop between cycles or during a wait.

The live dashboard is shown when stdin and stdout are terminals, unless
--no-tui is given or AUTO_COMMIT_TUI=0.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runNoTUI, "no-tui", false, "Disable the dashboard")
	runCmd.Flags().DurationVar(&runLockTimeout, "lock-timeout", 5*time.Second, "How long to wait for the working-copy lock")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	enableTUI := !runNoTUI && os.Getenv("AUTO_COMMIT_TUI") != "0" &&
		isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())

	logger, err := logging.SetupLogger(cfg.LogFile, cfg.Log.Level, enableTUI)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer logging.CloseFile()
	logger = logger.With("run", uuid.NewString()[:8])

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lk, err := lock.Acquire(ctx, cfg.Repo.Path, runLockTimeout)
	if err != nil {
		return err
	}
	defer func() {
		if err := lk.Unlock(); err != nil {
			logger.Warn("release lock", "err", err)
		}
	}()

	ag := newAgent(cfg, logger)
	if err := ag.controller.Setup(ctx); err != nil {
		return fmt.Errorf("set up repository: %w", err)
	}
	h := ag.controller.Health(ctx)
	logger.Info("repository ready",
		"path", h.Path,
		"state", h.State,
		"branch", h.Branch,
		"commits", h.CommitCount,
		"remote", h.HasRemote)

	checkProviders(ctx, ag.llm, cfg.LLM.Timeout, logger)

	d := daemon.New(ag.controller, newTracker(cfg.Schedule, logger), daemon.Options{
		ImmediateCommit: *cfg.Schedule.ImmediateCommit,
		StartDelay:      cfg.Schedule.StartDelay,
		ErrorPause:      cfg.Schedule.ErrorPause,
		Continuous:      cfg.Schedule.Continuous,
	}, logger)

	if !enableTUI {
		logger.Info("auto-commit starting (headless)", "config", configPath)
		return d.Run(ctx)
	}

	// Dashboard in the foreground, loop in the background. Quitting the
	// dashboard cancels the loop; the loop ending closes the dashboard.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(tui.NewModel(d, cfg.TUI.RefreshInterval), tea.WithAltScreen())
	done := make(chan error, 1)
	go func() {
		logger.Info("auto-commit starting in background", "config", configPath)
		done <- d.Run(ctx)
		p.Send(tea.Quit())
	}()

	_, tuiErr := p.Run()
	cancel()
	runErr := <-done
	if tuiErr != nil {
		return fmt.Errorf("dashboard: %w", tuiErr)
	}
	return runErr
}

// checkProviders logs which text generation backends answer. Failures only
// warn because content and messages have synthetic fallbacks.
func checkProviders(ctx context.Context, m *llm.Manager, timeout time.Duration, logger *slog.Logger) {
	if len(m.Providers()) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok := 0
	for name, up := range m.TestConnection(ctx) {
		if up {
			ok++
		}
		logger.Info("provider check", "provider", name, "ok", up)
	}
	if ok == 0 {
		logger.Warn("no text generation provider reachable, using fallback content and messages")
	}
}
