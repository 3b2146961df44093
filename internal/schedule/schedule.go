// Package schedule walks a generated commit schedule: it tracks which
// entries are consumed, waits for the next due time and reports progress.
//
// A Tracker is owned by a single goroutine; it has no internal locking.
package schedule

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/marcin-skalski/auto-commit/internal/pattern"
)

// Generator produces the schedule for a window.
type Generator interface {
	Generate(w pattern.Window) []time.Time
}

// DefaultWaitJitter bounds the random offset added to each wait.
const DefaultWaitJitter = 30 * time.Second

// Progress is a read-only snapshot of a Tracker.
type Progress struct {
	Scheduled   int
	Completed   int
	Remaining   int
	Upcoming    int // entries strictly after now
	Succeeded   int
	NextDue     time.Time // zero when nothing is upcoming
	WindowStart time.Time // zero before the first window
	WindowEnd   time.Time
}

// Failed returns Completed-Succeeded.
func (p Progress) Failed() int {
	return p.Completed - p.Succeeded
}

// Tracker walks the schedule of the current window.
type Tracker struct {
	gen      Generator
	duration time.Duration
	logger   *slog.Logger

	now        func() time.Time
	rng        *rand.Rand
	waitJitter time.Duration

	schedule    []time.Time
	cursor      int
	attempted   int
	succeeded   int
	windowStart time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithWaitJitter sets the bound of the random offset added to waits.
// Zero disables it.
func WithWaitJitter(d time.Duration) Option {
	return func(t *Tracker) { t.waitJitter = d }
}

// WithRand replaces the random source used for wait jitter.
func WithRand(rng *rand.Rand) Option {
	return func(t *Tracker) { t.rng = rng }
}

// New returns a Tracker generating windows of the given length with gen.
// No window is active until StartNewWindow.
func New(gen Generator, window time.Duration, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		gen:        gen,
		duration:   window,
		logger:     logger,
		now:        time.Now,
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		waitJitter: DefaultWaitJitter,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartNewWindow replaces any previous schedule with a fresh one starting at
// start and resets all counters.
func (t *Tracker) StartNewWindow(start time.Time) []time.Time {
	t.schedule = t.gen.Generate(pattern.Window{Start: start, Duration: t.duration})
	t.cursor = 0
	t.attempted = 0
	t.succeeded = 0
	t.windowStart = start

	t.logger.Info("generated commit schedule",
		"commits", len(t.schedule),
		"window_start", start.Format(time.DateTime),
		"window_end", start.Add(t.duration).Format(time.DateTime))
	for i, ts := range t.schedule {
		if i == 10 {
			t.logger.Info("... and more", "count", len(t.schedule)-10)
			break
		}
		t.logger.Info("scheduled", "n", i+1, "at", ts.Format(time.TimeOnly))
	}

	return append([]time.Time(nil), t.schedule...)
}

// NextDueTime returns the entry at the cursor, or false once the schedule is
// exhausted.
func (t *Tracker) NextDueTime() (time.Time, bool) {
	if t.cursor >= len(t.schedule) {
		return time.Time{}, false
	}
	return t.schedule[t.cursor], true
}

// AwaitNextDue blocks until the entry at the cursor is due and returns it.
// It returns false when no entries remain. Cancelling ctx aborts the wait
// and returns ctx.Err().
func (t *Tracker) AwaitNextDue(ctx context.Context) (time.Time, bool, error) {
	next, ok := t.NextDueTime()
	if !ok {
		return time.Time{}, false, nil
	}

	wait := next.Sub(t.now())
	if wait <= 0 {
		return next, true, nil
	}
	if t.waitJitter > 0 {
		wait += time.Duration(t.rng.Int64N(int64(2*t.waitJitter))) - t.waitJitter
	}
	wait = max(wait, 0)

	t.logger.Info("waiting for next commit",
		"wait", wait.Round(time.Second),
		"at", next.Format(time.TimeOnly))

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return time.Time{}, false, ctx.Err()
	case <-timer.C:
		return next, true, nil
	}
}

// MarkCompleted consumes the entry at the cursor. Call it exactly once for
// every AwaitNextDue that returned an entry.
func (t *Tracker) MarkCompleted(success bool) {
	if t.cursor < len(t.schedule) {
		t.cursor++
	}
	t.attempted++
	if success {
		t.succeeded++
	}
}

func (t *Tracker) Progress() Progress {
	p := Progress{
		Scheduled: len(t.schedule),
		Completed: t.cursor,
		Remaining: len(t.schedule) - t.cursor,
		Succeeded: t.succeeded,
	}
	if !t.windowStart.IsZero() {
		p.WindowStart = t.windowStart
		p.WindowEnd = t.windowStart.Add(t.duration)
	}

	now := t.now()
	for _, ts := range t.schedule {
		if ts.After(now) {
			if p.Upcoming == 0 {
				p.NextDue = ts
			}
			p.Upcoming++
		}
	}
	return p
}

// Window returns the window length.
func (t *Tracker) Window() time.Duration {
	return t.duration
}

// Attempted returns the number of MarkCompleted calls in this window.
func (t *Tracker) Attempted() int {
	return t.attempted
}

// ShouldStop reports whether the window has elapsed or the schedule is
// fully consumed. It is false before the first window.
func (t *Tracker) ShouldStop() bool {
	if t.windowStart.IsZero() {
		return false
	}
	if !t.now().Before(t.windowStart.Add(t.duration)) {
		return true
	}
	return t.cursor >= len(t.schedule)
}
