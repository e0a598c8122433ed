package api

// ExecutionState tracks a unit of work through its lifecycle. Transitions
// are one way: NotStarted -> Running -> one of the terminal states. A unit
// observed in a terminal state never changes again.
type ExecutionState int32

const (
	StateNotStarted ExecutionState = iota
	StateRunning
	StateCompleted
	StateFailed
	StateStopped
)

// Terminal reports whether the state is one of Completed, Failed or Stopped.
func (s ExecutionState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateStopped:
		return true
	default:
		return false
	}
}

func (s ExecutionState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ParseExecutionState maps the string form produced by String back to the
// state value. Unknown input yields StateNotStarted and false.
func ParseExecutionState(v string) (ExecutionState, bool) {
	switch v {
	case "not_started":
		return StateNotStarted, true
	case "running":
		return StateRunning, true
	case "completed":
		return StateCompleted, true
	case "failed":
		return StateFailed, true
	case "stopped":
		return StateStopped, true
	default:
		return StateNotStarted, false
	}
}
