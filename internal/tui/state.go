package tui

import "time"

// Phases of the orchestration loop shown in the header.
const (
	PhaseStarting   = "starting"
	PhaseWaiting    = "waiting"
	PhaseCommitting = "committing"
	PhasePaused     = "paused"
	PhaseStopped    = "stopped"
)

type Snapshot struct {
	Timestamp      time.Time
	Phase          string
	Windows        int // windows started so far
	TotalAttempted int
	TotalSucceeded int
	Window         WindowState
	Repo           RepoState
	Recent         []CycleState // newest first
}

type WindowState struct {
	Start     time.Time
	End       time.Time
	NextDue   time.Time
	Scheduled int
	Completed int
	Succeeded int
	Remaining int
	Schedule  []time.Time
}

type RepoState struct {
	Path        string
	State       string // uninitialized|cloned_nonempty|cloned_empty|bootstrapped
	Branch      string
	CommitCount int
	HasRemote   bool
	Error       string
}

type CycleState struct {
	At        time.Time
	Duration  time.Duration
	Immediate bool
	Success   bool
	NoChanges bool
	Message   string
	Err       string
}
