package svcinit

import "fmt"

// State is the runtime state of a service
type State int

const (
	// StateOffline indicates the service has not been started, or its last
	// start attempt did not complete
	StateOffline State = iota
	// StateOnline indicates the start method completed successfully
	StateOnline
	// StateFailed indicates a start attempt made while starting the whole
	// registry failed
	StateFailed
)

// State string constants
const (
	stateOfflineStr = "offline"
	stateOnlineStr  = "online"
	stateFailedStr  = "failed"
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateOnline:
		return stateOnlineStr
	case StateFailed:
		return stateFailedStr
	default:
		return stateOfflineStr
	}
}

// IsOnline reports whether s is StateOnline
func (s State) IsOnline() bool {
	return s == StateOnline
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case stateOfflineStr:
		*s = StateOffline
	case stateOnlineStr:
		*s = StateOnline
	case stateFailedStr:
		*s = StateFailed
	default:
		return fmt.Errorf("svcinit: unknown state %q", b)
	}
	return nil
}
