package wsclient

// ConnectionState is the lifecycle position of a Client's logical connection.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

// String returns the string representation of the state
func (state ConnectionState) String() string {
	switch state {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition happens without an explicit
// Start.
func (state ConnectionState) Terminal() bool {
	return state == StateClosed
}

var transitions = map[ConnectionState][]ConnectionState{
	StateIdle:       {StateConnecting, StateClosed},
	StateConnecting: {StateOpen, StateFailed, StateClosed},
	StateOpen:       {StateClosing, StateFailed},
	StateClosing:    {StateClosed},
	StateFailed:     {StateConnecting, StateClosed},
	StateClosed:     {StateConnecting},
}

func canTransition(from ConnectionState, to ConnectionState) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StateListener observes accepted state transitions.
type StateListener interface {
	StateChanged(from ConnectionState, to ConnectionState)
}

// StateListenerFunc adapts a function to StateListener.
type StateListenerFunc func(from ConnectionState, to ConnectionState)

func (f StateListenerFunc) StateChanged(from ConnectionState, to ConnectionState) { f(from, to) }
