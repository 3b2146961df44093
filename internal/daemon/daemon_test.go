package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/marcin-skalski/auto-commit/internal/pattern"
	"github.com/marcin-skalski/auto-commit/internal/repo"
	"github.com/marcin-skalski/auto-commit/internal/schedule"
	"github.com/marcin-skalski/auto-commit/internal/tui"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// offsetGen schedules entries at fixed offsets from the window start.
type offsetGen []time.Duration

func (g offsetGen) Generate(w pattern.Window) []time.Time {
	out := make([]time.Time, len(g))
	for i, off := range g {
		out[i] = w.Start.Add(off)
	}
	return out
}

type result struct {
	out   repo.Outcome
	err   error
	panic string
}

// scriptedCommitter returns results in order, then succeeds.
type scriptedCommitter struct {
	mu      sync.Mutex
	results []result
	calls   int
}

func (c *scriptedCommitter) RunCommitCycle(context.Context) (repo.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.results) == 0 {
		return repo.Outcome{Success: true, Message: "chore: update"}, nil
	}
	r := c.results[0]
	c.results = c.results[1:]
	if r.panic != "" {
		panic(r.panic)
	}
	return r.out, r.err
}

func (c *scriptedCommitter) Health(context.Context) repo.Health {
	return repo.Health{Path: "/tmp/r", State: "bootstrapped", Branch: "main", CommitCount: 7}
}

func (c *scriptedCommitter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newDaemon(c Committer, gen schedule.Generator, opts Options) *Daemon {
	tr := schedule.New(gen, time.Hour, discardLogger(), schedule.WithWaitJitter(0))
	return New(c, tr, opts, discardLogger())
}

func TestRunWindowRunsEveryDueEntry(t *testing.T) {
	c := &scriptedCommitter{results: []result{
		{out: repo.Outcome{Success: true, Message: "feat: one"}},
		{out: repo.Outcome{NoChanges: true, Message: "no changes to commit"}},
		{err: errors.New("disk full")},
	}}
	d := newDaemon(c, offsetGen{-3 * time.Second, -2 * time.Second, -time.Second}, Options{})

	sum := d.RunWindow(context.Background(), time.Now())
	if sum != (Summary{Scheduled: 3, Attempted: 3, Succeeded: 1}) {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.Failed() != 2 {
		t.Errorf("Failed = %d", sum.Failed())
	}

	snap := d.GetSnapshot()
	if snap.TotalAttempted != 3 || snap.TotalSucceeded != 1 || snap.Windows != 1 {
		t.Errorf("snapshot totals = %+v", snap)
	}
	if snap.Window.Completed != 3 || snap.Window.Remaining != 0 || len(snap.Window.Schedule) != 3 {
		t.Errorf("window = %+v", snap.Window)
	}
	if len(snap.Recent) != 3 || snap.Recent[0].Err != "disk full" || !snap.Recent[2].Success {
		t.Errorf("recent = %+v", snap.Recent)
	}
	if !snap.Recent[1].NoChanges {
		t.Errorf("no-op cycle not recorded: %+v", snap.Recent[1])
	}
	if snap.Repo.Branch != "main" || snap.Repo.CommitCount != 7 {
		t.Errorf("repo = %+v", snap.Repo)
	}
}

func TestRunWindowCancelDuringWait(t *testing.T) {
	c := &scriptedCommitter{}
	d := newDaemon(c, offsetGen{time.Hour - time.Minute}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	sum := d.RunWindow(ctx, start)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("RunWindow took %s after cancel", elapsed)
	}
	if c.Calls() != 0 || sum.Attempted != 0 {
		t.Errorf("calls = %d, attempted = %d; want no cycles", c.Calls(), sum.Attempted)
	}
}

func TestErrorPauseIsCancellable(t *testing.T) {
	c := &scriptedCommitter{results: []result{{err: errors.New("boom")}}}
	d := newDaemon(c, offsetGen{0, time.Millisecond}, Options{ErrorPause: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	sum := d.RunWindow(ctx, start)
	if time.Since(start) > 2*time.Second {
		t.Error("error pause ignored cancellation")
	}
	if c.Calls() != 1 || sum.Attempted != 1 {
		t.Errorf("calls = %d, attempted = %d; want 1", c.Calls(), sum.Attempted)
	}
}

func TestPanicIsContained(t *testing.T) {
	c := &scriptedCommitter{results: []result{{panic: "nil map"}}}
	d := newDaemon(c, offsetGen{-2 * time.Second, -time.Second}, Options{})

	sum := d.RunWindow(context.Background(), time.Now())
	if sum.Attempted != 2 || sum.Succeeded != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if got := d.GetSnapshot().Recent[1].Err; got != "panic: nil map" {
		t.Errorf("panic record = %q", got)
	}
}

func TestRunWithImmediateCommit(t *testing.T) {
	c := &scriptedCommitter{}
	d := newDaemon(c, offsetGen{-time.Second}, Options{ImmediateCommit: true})

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.Calls() != 2 {
		t.Errorf("calls = %d, want immediate + 1 scheduled", c.Calls())
	}

	snap := d.GetSnapshot()
	if snap.TotalAttempted != 1 {
		t.Errorf("TotalAttempted = %d, immediate cycle must not count", snap.TotalAttempted)
	}
	if len(snap.Recent) != 2 || !snap.Recent[1].Immediate || snap.Recent[0].Immediate {
		t.Errorf("recent = %+v", snap.Recent)
	}
	if snap.Phase != tui.PhaseStopped {
		t.Errorf("phase = %s", snap.Phase)
	}
}

func TestRunCancelDuringStartDelay(t *testing.T) {
	c := &scriptedCommitter{}
	d := newDaemon(c, offsetGen{-time.Second}, Options{ImmediateCommit: true, StartDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.Calls() != 1 {
		t.Errorf("calls = %d, want only the immediate cycle", c.Calls())
	}
	if d.GetSnapshot().Windows != 0 {
		t.Error("window started after cancellation")
	}
}

func TestRunContinuousStopsOnCancel(t *testing.T) {
	c := &scriptedCommitter{}
	d := newDaemon(c, offsetGen{}, Options{Continuous: true})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("continuous Run did not stop after cancel")
	}
	if c.Calls() != 0 {
		t.Errorf("calls = %d with empty schedules", c.Calls())
	}
}

// cancellingCommitter cancels the run while its cycle is in flight and fails
// the cycle if that cancellation reaches it.
type cancellingCommitter struct {
	scriptedCommitter
	cancel context.CancelFunc
}

func (c *cancellingCommitter) RunCommitCycle(ctx context.Context) (repo.Outcome, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	c.cancel()
	if err := ctx.Err(); err != nil {
		return repo.Outcome{}, err
	}
	return repo.Outcome{Success: true, Message: "docs: add notes"}, nil
}

func TestCancelDuringCycleLetsItFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &cancellingCommitter{cancel: cancel}
	d := newDaemon(c, offsetGen{-2 * time.Second, -time.Second}, Options{ErrorPause: time.Hour})

	sum := d.RunWindow(ctx, time.Now())
	if sum.Attempted != 1 || sum.Succeeded != 1 {
		t.Fatalf("summary = %+v, want the in-flight cycle to succeed and no further cycle", sum)
	}
	if c.Calls() != 1 {
		t.Errorf("calls = %d, want 1", c.Calls())
	}
	if rec := d.GetSnapshot().Recent[0]; !rec.Success || rec.Err != "" {
		t.Errorf("recorded cycle = %+v", rec)
	}
}

func TestCancelDuringImmediateCycleLetsItFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &cancellingCommitter{cancel: cancel}
	d := newDaemon(c, offsetGen{-time.Second}, Options{ImmediateCommit: true})

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap := d.GetSnapshot()
	if c.Calls() != 1 || snap.Windows != 0 {
		t.Errorf("calls = %d, windows = %d; want only the immediate cycle", c.Calls(), snap.Windows)
	}
	if len(snap.Recent) != 1 || !snap.Recent[0].Success {
		t.Errorf("recent = %+v", snap.Recent)
	}
}
