package device

import "fmt"

// State is the single owned playback/upload state of a device
type State int

const (
	StateIdle      State = iota // no melody committed
	StatePaused                 // melody present, cursor frozen
	StatePlaying                // cursor advancing
	StateReceiving              // upload session active
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	case StateReceiving:
		return "receiving"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText lets snapshots carry the state name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "paused":
		*s = StatePaused
	case "playing":
		*s = StatePlaying
	case "receiving":
		*s = StateReceiving
	default:
		return fmt.Errorf("unknown device state %q", text)
	}
	return nil
}
