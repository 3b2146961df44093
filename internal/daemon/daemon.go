package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcin-skalski/auto-commit/internal/repo"
	"github.com/marcin-skalski/auto-commit/internal/schedule"
	"github.com/marcin-skalski/auto-commit/internal/tui"
)

const recentCycles = 10

// Committer runs one commit cycle and reports repository health.
type Committer interface {
	RunCommitCycle(ctx context.Context) (repo.Outcome, error)
	Health(ctx context.Context) repo.Health
}

type Options struct {
	// ImmediateCommit runs one cycle before the first window.
	ImmediateCommit bool
	// StartDelay separates the immediate cycle from the first window.
	StartDelay time.Duration
	// ErrorPause follows a cycle that failed unexpectedly.
	ErrorPause time.Duration
	// Continuous starts a new window when the previous one closes.
	Continuous bool
}

// Summary holds the counters of one window.
type Summary struct {
	Scheduled int
	Attempted int
	Succeeded int
}

func (s Summary) Failed() int { return s.Attempted - s.Succeeded }

// Daemon is the orchestration loop. Run and RunWindow must be called from
// a single goroutine; GetSnapshot is safe from any goroutine.
type Daemon struct {
	committer Committer
	tracker   *schedule.Tracker
	opts      Options
	logger    *slog.Logger
	now       func() time.Time

	mu             sync.Mutex
	phase          string
	windows        int
	totalAttempted int
	totalSucceeded int
	window         tui.WindowState
	health         repo.Health
	recent         []tui.CycleState
}

func New(committer Committer, tracker *schedule.Tracker, opts Options, logger *slog.Logger) *Daemon {
	return &Daemon{
		committer: committer,
		tracker:   tracker,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		phase:     tui.PhaseStarting,
	}
}

// Run executes the optional immediate cycle and then scheduled windows
// until the window closes, or, in continuous mode, until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("daemon started",
		"immediate_commit", d.opts.ImmediateCommit,
		"continuous", d.opts.Continuous)
	d.refreshHealth(ctx)
	defer d.setPhase(tui.PhaseStopped)

	if d.opts.ImmediateCommit {
		d.logger.Info("running immediate commit")
		d.setPhase(tui.PhaseCommitting)
		rec := d.runCycle(ctx, true)
		if ctx.Err() != nil {
			return nil
		}
		if rec.Err != "" {
			d.logger.Warn("immediate commit failed, continuing with schedule")
		}
		if d.opts.StartDelay > 0 {
			d.logger.Info("starting schedule after delay", "delay", d.opts.StartDelay)
			d.setPhase(tui.PhaseWaiting)
			if err := sleep(ctx, d.opts.StartDelay); err != nil {
				return nil
			}
		}
	}

	for {
		start := d.now()
		d.RunWindow(ctx, start)
		if ctx.Err() != nil || !d.opts.Continuous {
			return nil
		}

		// An exhausted schedule leaves the rest of the window idle.
		if end := start.Add(d.tracker.Window()); end.After(d.now()) {
			d.setPhase(tui.PhaseWaiting)
			d.logger.Info("schedule exhausted, waiting for window to close", "until", end.Format(time.DateTime))
			if err := sleep(ctx, end.Sub(d.now())); err != nil {
				return nil
			}
		}
	}
}

// RunWindow generates the schedule for the window starting at start and
// runs one commit cycle per entry. Cancelling ctx stops it between cycles
// or during a wait.
func (d *Daemon) RunWindow(ctx context.Context, start time.Time) Summary {
	scheduled := d.tracker.StartNewWindow(start)
	d.mu.Lock()
	d.windows++
	d.mu.Unlock()
	d.publish(scheduled)

	for !d.tracker.ShouldStop() {
		d.setPhase(tui.PhaseWaiting)
		_, ok, err := d.tracker.AwaitNextDue(ctx)
		if err != nil {
			d.logger.Info("wait cancelled")
			break
		}
		if !ok {
			break
		}

		d.setPhase(tui.PhaseCommitting)
		rec := d.runCycle(ctx, false)
		d.tracker.MarkCompleted(rec.Success)
		d.publish(scheduled)

		p := d.tracker.Progress()
		d.logger.Info("progress", "completed", p.Completed, "scheduled", p.Scheduled, "succeeded", p.Succeeded)

		if ctx.Err() != nil {
			break
		}
		if rec.Err != "" && d.opts.ErrorPause > 0 {
			d.setPhase(tui.PhasePaused)
			if err := sleep(ctx, d.opts.ErrorPause); err != nil {
				break
			}
		}
	}

	p := d.tracker.Progress()
	sum := Summary{Scheduled: p.Scheduled, Attempted: d.tracker.Attempted(), Succeeded: p.Succeeded}
	d.logger.Info("window finished",
		"scheduled", sum.Scheduled,
		"attempted", sum.Attempted,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed())
	return sum
}

// runCycle runs one commit cycle, converting unexpected errors and panics
// into a failed record.
func (d *Daemon) runCycle(ctx context.Context, immediate bool) (rec tui.CycleState) {
	start := d.now()
	rec = tui.CycleState{At: start, Immediate: immediate}

	defer func() {
		if r := recover(); r != nil {
			rec.Success = false
			rec.Err = fmt.Sprintf("panic: %v", r)
			d.logger.Error("commit cycle panicked", "panic", r)
		}
		rec.Duration = d.now().Sub(start)
		d.record(rec)
		d.refreshHealth(ctx)
	}()

	// A started cycle runs to completion; cancellation is observed between
	// cycles and during waits.
	out, err := d.committer.RunCommitCycle(context.WithoutCancel(ctx))
	if err != nil {
		rec.Err = err.Error()
		d.logger.Error("commit cycle failed", "err", err)
		return rec
	}

	rec.Success = out.Success
	rec.NoChanges = out.NoChanges
	rec.Message = out.Message
	switch {
	case out.Success:
		d.logger.Info("commit cycle succeeded", "message", out.Message)
	case out.NoChanges:
		d.logger.Info("commit cycle had nothing to commit")
	default:
		d.logger.Warn("commit cycle failed", "reason", out.Message)
	}
	return rec
}

func (d *Daemon) setPhase(phase string) {
	d.mu.Lock()
	d.phase = phase
	d.mu.Unlock()
}

func (d *Daemon) record(rec tui.CycleState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !rec.Immediate {
		d.totalAttempted++
		if rec.Success {
			d.totalSucceeded++
		}
	}
	d.recent = append([]tui.CycleState{rec}, d.recent...)
	if len(d.recent) > recentCycles {
		d.recent = d.recent[:recentCycles]
	}
}

func (d *Daemon) refreshHealth(ctx context.Context) {
	h := d.committer.Health(context.WithoutCancel(ctx))
	d.mu.Lock()
	d.health = h
	d.mu.Unlock()
}

// publish copies tracker progress into the snapshot state.
func (d *Daemon) publish(scheduled []time.Time) {
	p := d.tracker.Progress()
	next, _ := d.tracker.NextDueTime()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = tui.WindowState{
		Start:     p.WindowStart,
		End:       p.WindowEnd,
		NextDue:   next,
		Scheduled: p.Scheduled,
		Completed: p.Completed,
		Succeeded: p.Succeeded,
		Remaining: p.Remaining,
		Schedule:  scheduled,
	}
}

func (d *Daemon) GetSnapshot() tui.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	w := d.window
	w.Schedule = append([]time.Time(nil), d.window.Schedule...)

	return tui.Snapshot{
		Timestamp:      d.now(),
		Phase:          d.phase,
		Windows:        d.windows,
		TotalAttempted: d.totalAttempted,
		TotalSucceeded: d.totalSucceeded,
		Window:         w,
		Repo: tui.RepoState{
			Path:        d.health.Path,
			State:       d.health.State,
			Branch:      d.health.Branch,
			CommitCount: d.health.CommitCount,
			HasRemote:   d.health.HasRemote,
			Error:       d.health.Error,
		},
		Recent: append([]tui.CycleState(nil), d.recent...),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
