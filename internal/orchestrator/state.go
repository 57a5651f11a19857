package orchestrator

// State is a step of the comparison state machine.
type State int

const (
	StateStart State = iota
	StateCheckBaseline
	StateCreateBaseline
	StateCaptureActual
	StateCompare
	StateMatched
	StateMismatched
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateCheckBaseline:
		return "check_baseline"
	case StateCreateBaseline:
		return "create_baseline"
	case StateCaptureActual:
		return "capture_actual"
	case StateCompare:
		return "compare"
	case StateMatched:
		return "matched"
	case StateMismatched:
		return "mismatched"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateCreateBaseline || s == StateMatched || s == StateMismatched || s == StateFailed
}
