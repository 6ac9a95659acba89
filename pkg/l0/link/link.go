// Package link implements the connection state machine of a board link.
package link

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/robotalks/mcuconn/pkg/l0/features"
	"github.com/robotalks/mcuconn/pkg/l0/msgs"
)

// DefaultTimeout is used until a handshake sets the timeout.
const DefaultTimeout = 10 * time.Second

var (
	// ErrNotConnected indicates a message arrived before the handshake.
	ErrNotConnected = errors.New("not connected")
	// ErrUnknownFeature indicates a message addressed to a feature
	// the link doesn't have.
	ErrUnknownFeature = errors.New("unknown feature")
)

// Remote is what the board reported in the latest handshake.
type Remote struct {
	UID              string `json:"uid"`
	ProfileSignature uint32 `json:"profileSignature"`
	FeatureMap       uint64 `json:"featureMap"`
	DigitalPins      int    `json:"digitalPins"`
	AnalogInputs     int    `json:"analogInputs"`
	AnalogOutputs    int    `json:"analogOutputs"`
	Uptime           int64  `json:"uptime"`
}

// Link tracks the connection with one board.
type Link struct {
	Alias            string
	Device           string
	ProfileSignature uint32
	Sender           features.Sender

	// transit serializes a transition with its feature hooks and listeners.
	transit        sync.Mutex
	lock           sync.Mutex
	state          State
	timeout        time.Duration
	lastMessageAt  time.Time
	connectedSince time.Time
	session        string
	remote         Remote
	features       []*features.Feature
	listeners      []StateListener
}

// New creates a link in Disconnected state.
func New(alias, device string, feats ...*features.Feature) *Link {
	l := &Link{
		Alias:   alias,
		Device:  device,
		timeout: DefaultTimeout,
		remote:  Remote{UID: msgs.DefaultUID},
	}
	l.features = append(l.features, feats...)
	sort.SliceStable(l.features, func(i, j int) bool { return l.features[i].ID() < l.features[j].ID() })
	return l
}

// Listen adds a StateListener.
func (l *Link) Listen(listener StateListener) {
	l.lock.Lock()
	l.listeners = append(l.listeners, listener)
	l.lock.Unlock()
}

// Features returns the features ordered by ID.
func (l *Link) Features() []*features.Feature {
	return l.features
}

// Feature finds a feature by ID.
func (l *Link) Feature(id features.ID) *features.Feature {
	for _, f := range l.features {
		if f.ID() == id {
			return f
		}
	}
	return nil
}

// State returns the current state.
func (l *Link) State() State {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.state
}

// Timeout returns the negotiated reply timeout.
func (l *Link) Timeout() time.Duration {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.timeout
}

// SetState forces a state transition.
func (l *Link) SetState(now time.Time, s State) {
	l.transit.Lock()
	defer l.transit.Unlock()
	l.lock.Lock()
	from := l.transitLocked(now, s)
	l.lock.Unlock()
	l.notify(now, from, s)
}

// transitLocked changes state and returns the previous state.
func (l *Link) transitLocked(now time.Time, s State) State {
	from := l.state
	if from == s {
		return from
	}
	l.state = s
	switch s {
	case Connected:
		l.connectedSince = now
		l.session = uuid.New().String()
	case Connecting:
		l.connectedSince = time.Time{}
		l.remote.Uptime = 0
	}
	return from
}

func (l *Link) notify(now time.Time, from, to State) {
	if from == to {
		return
	}
	glog.Infof("%s: state %s -> %s", l.Alias, from, to)
	switch {
	case to == Connected:
		for _, f := range l.features {
			f.OnConnected(now)
		}
	case from == Connected:
		for _, f := range l.features {
			f.OnDisconnected()
		}
	}
	l.lock.Lock()
	listeners := l.listeners
	l.lock.Unlock()
	for _, listener := range listeners {
		listener.LinkStateChanged(l, from, to)
	}
}

// Tick advances time based transitions.
func (l *Link) Tick(now time.Time) {
	var invite bool
	l.transit.Lock()
	l.lock.Lock()
	from, to := l.state, l.state
	switch l.state {
	case Disconnected, Error:
		to = Connecting
	case Connected:
		if now.Sub(l.lastMessageAt) >= l.timeout {
			to, invite = Disconnected, true
			glog.Warningf("%s: no message for %s, disconnecting", l.Alias, now.Sub(l.lastMessageAt))
		}
	}
	l.transitLocked(now, to)
	l.lock.Unlock()

	l.notify(now, from, to)
	l.transit.Unlock()
	if invite {
		l.send(&msgs.InviteSync{ProtocolVersion: msgs.ProtocolVersion})
	}
}

// HandleMessage applies a message received from the board.
func (l *Link) HandleMessage(now time.Time, m msgs.Message) error {
	if hs, ok := m.(*msgs.Handshake); ok {
		l.handshake(now, hs)
		return nil
	}

	l.lock.Lock()
	if l.state != Connected {
		state := l.state
		l.lock.Unlock()
		return fmt.Errorf("%w: %s dropped in state %s", ErrNotConnected, m.Type(), state)
	}
	l.lastMessageAt = now
	if hb, ok := m.(*msgs.Heartbeat); ok {
		l.remote.Uptime = hb.Uptime
	}
	l.lock.Unlock()

	switch msg := m.(type) {
	case *msgs.Heartbeat:
		l.send(msg)
	case *msgs.Debug:
		glog.Infof("[%s] %s", l.Alias, msg.Text)
	case msgs.FeatureMessage:
		f := l.Feature(features.ID(msg.Feature()))
		if f == nil {
			return fmt.Errorf("%w: %d in %s", ErrUnknownFeature, msg.Feature(), m.Type())
		}
		f.OnMessage(msg)
	default:
		glog.V(2).Infof("%s: ignored %s", l.Alias, m.Type())
	}
	return nil
}

func (l *Link) handshake(now time.Time, hs *msgs.Handshake) {
	l.transit.Lock()
	l.lock.Lock()
	l.timeout = time.Duration(hs.TimeoutMs) * time.Millisecond
	l.remote.UID = hs.UID
	l.remote.ProfileSignature = hs.ProfileSignature
	l.remote.FeatureMap = hs.FeatureMap
	l.remote.DigitalPins = hs.DigitalPins
	l.remote.AnalogInputs = hs.AnalogInputs
	l.remote.AnalogOutputs = hs.AnalogOutputs
	l.lastMessageAt = now
	from := l.transitLocked(now, Connected)
	l.lock.Unlock()

	if hs.ProfileSignature != l.ProfileSignature {
		glog.Warningf("%s: board profile signature %08x differs from local %08x", l.Alias, hs.ProfileSignature, l.ProfileSignature)
	}
	for _, f := range l.features {
		if hs.FeatureMap&f.Kind.Bit() == 0 {
			glog.Warningf("%s: board doesn't report feature %s", l.Alias, f.Kind)
		}
	}
	l.notify(now, from, Connected)
	l.transit.Unlock()
	l.send(hs)
}

// Supervise runs the Loop of every feature while connected. The first
// feature config sync error moves the link to Error and is returned.
func (l *Link) Supervise(now time.Time) error {
	l.transit.Lock()
	defer l.transit.Unlock()
	if l.State() != Connected {
		return nil
	}
	for _, f := range l.features {
		if err := f.SyncError(); err != nil {
			l.lock.Lock()
			from := l.transitLocked(now, Error)
			l.lock.Unlock()
			l.notify(now, from, Error)
			return err
		}
		f.Loop(now)
	}
	return nil
}

func (l *Link) send(m msgs.Message) {
	if l.Sender == nil {
		return
	}
	if err := l.Sender.SendMessage(m); err != nil {
		glog.Warningf("%s: send %s failed: %v", l.Alias, m.Type(), err)
	}
}

// Status is a snapshot of a link.
type Status struct {
	Alias          string            `json:"alias"`
	Device         string            `json:"device"`
	State          State             `json:"state"`
	Session        string            `json:"session,omitempty"`
	Timeout        time.Duration     `json:"timeout"`
	LastMessageAt  time.Time         `json:"lastMessageAt"`
	ConnectedSince time.Time         `json:"connectedSince"`
	Remote         Remote            `json:"remote"`
	Drifted        bool              `json:"profileDrifted"`
	Features       []features.Status `json:"features"`
}

// Status returns a snapshot of the link.
func (l *Link) Status() Status {
	l.lock.Lock()
	s := Status{
		Alias:          l.Alias,
		Device:         l.Device,
		State:          l.state,
		Session:        l.session,
		Timeout:        l.timeout,
		LastMessageAt:  l.lastMessageAt,
		ConnectedSince: l.connectedSince,
		Remote:         l.remote,
	}
	l.lock.Unlock()
	s.Drifted = s.State == Connected && s.Remote.ProfileSignature != l.ProfileSignature
	for _, f := range l.features {
		s.Features = append(s.Features, f.Status())
	}
	return s
}
