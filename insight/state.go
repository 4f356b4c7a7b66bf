// Package insight keeps every project's insight feed at a minimum length by
// generating and appending records until the canonical count is reached.
package insight

// State is a step of one backfill run.
type State int

const (
	Idle State = iota
	Counting
	Generating
	Appending
	Satisfied
	Aborted
)

var stateNames = [...]string{"idle", "counting", "generating", "appending", "satisfied", "aborted"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == Satisfied || s == Aborted
}

var transitions = map[State][]State{
	Idle:       {Counting, Aborted},
	Counting:   {Generating, Satisfied, Aborted},
	Generating: {Appending, Aborted},
	Appending:  {Counting, Aborted},
}

// CanTransition reports whether a run may move from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
