package ingest

type State int32

const (
	StateStarting State = iota
	StateListening
	StateAccepting
	StateProcessing
	StateFaulted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateAccepting:
		return "accepting"
	case StateProcessing:
		return "processing"
	case StateFaulted:
		return "faulted"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Serving reports whether the listener holds a bound socket and is
// taking connections.
func (s State) Serving() bool {
	return s == StateListening || s == StateAccepting || s == StateProcessing
}
