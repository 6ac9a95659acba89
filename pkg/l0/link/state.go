package link

import "fmt"

// State is the connection state of a link.
type State int

// Link states.
const (
	Disconnected State = iota
	Connecting
	Connected
	Error
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Error:
		return "ERROR"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for st := Disconnected; st <= Error; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown link state %q", text)
}

// StateListener is notified after the link state changes.
type StateListener interface {
	LinkStateChanged(l *Link, from, to State)
}

// StateChangedFunc is func type of StateListener.
type StateChangedFunc func(l *Link, from, to State)

// LinkStateChanged implements StateListener.
func (f StateChangedFunc) LinkStateChanged(l *Link, from, to State) {
	f(l, from, to)
}
