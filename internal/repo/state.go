package repo

// State is the lifecycle state of the working copy.
type State int

const (
	StateUninitialized State = iota
	StateClonedNonEmpty
	StateClonedEmpty
	StateBootstrapped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateClonedNonEmpty:
		return "cloned_nonempty"
	case StateClonedEmpty:
		return "cloned_empty"
	case StateBootstrapped:
		return "bootstrapped"
	default:
		return "unknown"
	}
}

// HasHistory reports whether the state implies at least one local commit.
func (s State) HasHistory() bool {
	return s == StateClonedNonEmpty || s == StateBootstrapped
}

// Outcome is the handled result of one commit cycle.
type Outcome struct {
	Success   bool
	Message   string
	NoChanges bool // nothing was staged; not an error
}
