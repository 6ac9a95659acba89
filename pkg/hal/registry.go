package hal

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// PinState is a snapshot of a pin.
type PinState struct {
	Handle    Handle
	Name      string
	Type      ValueType
	Direction Direction
	Value     float64
	UpdatedAt time.Time
}

// ChangeListener is notified after a pin value changes.
type ChangeListener interface {
	PinChanged(PinState)
}

// PinChangedFunc is func type of ChangeListener.
type PinChangedFunc func(PinState)

// PinChanged implements ChangeListener.
func (f PinChangedFunc) PinChanged(s PinState) {
	f(s)
}

// Registry is an in-memory Sink.
type Registry struct {
	lock      sync.RWMutex
	pins      []PinState
	names     map[string]Handle
	listeners []ChangeListener
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]Handle)}
}

// Listen adds a ChangeListener.
func (r *Registry) Listen(l ChangeListener) {
	r.lock.Lock()
	r.listeners = append(r.listeners, l)
	r.lock.Unlock()
}

// RegisterPin implements Sink.
func (r *Registry) RegisterPin(name string, t ValueType, dir Direction) (Handle, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, exist := r.names[name]; exist {
		return 0, &PinError{Name: name, Err: ErrDuplicatePin}
	}
	h := Handle(len(r.pins))
	r.pins = append(r.pins, PinState{Handle: h, Name: name, Type: t, Direction: dir})
	r.names[name] = h
	return h, nil
}

// Get implements Sink.
func (r *Registry) Get(h Handle) (float64, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if int(h) < 0 || int(h) >= len(r.pins) {
		return 0, ErrUnknownPin
	}
	return r.pins[h].Value, nil
}

// Set implements Sink.
func (r *Registry) Set(h Handle, v float64) error {
	r.lock.Lock()
	if int(h) < 0 || int(h) >= len(r.pins) {
		r.lock.Unlock()
		return ErrUnknownPin
	}
	pin := &r.pins[h]
	v = Normalize(pin.Type, v)
	changed := pin.Value != v || pin.UpdatedAt.IsZero()
	pin.Value, pin.UpdatedAt = v, time.Now()
	state, listeners := *pin, r.listeners
	r.lock.Unlock()
	if changed {
		for _, l := range listeners {
			l.PinChanged(state)
		}
	}
	return nil
}

// Lookup finds a pin by name.
func (r *Registry) Lookup(name string) (Handle, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	h, ok := r.names[name]
	return h, ok
}

// State returns the snapshot of a pin.
func (r *Registry) State(h Handle) (PinState, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if int(h) < 0 || int(h) >= len(r.pins) {
		return PinState{}, false
	}
	return r.pins[h], true
}

// Snapshot returns pins whose names start with prefix, sorted by name.
func (r *Registry) Snapshot(prefix string) []PinState {
	r.lock.RLock()
	states := make([]PinState, 0, len(r.pins))
	for _, pin := range r.pins {
		if strings.HasPrefix(pin.Name, prefix) {
			states = append(states, pin)
		}
	}
	r.lock.RUnlock()
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	return states
}

// PinError adds the pin name to an error.
type PinError struct {
	Name string
	Err  error
}

// Error implements error.
func (e *PinError) Error() string {
	return e.Name + ": " + e.Err.Error()
}

// Unwrap returns the cause.
func (e *PinError) Unwrap() error {
	return e.Err
}
