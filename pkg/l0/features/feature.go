package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/mcuconn/pkg/hal"
	"github.com/robotalks/mcuconn/pkg/l0/msgs"
)

// Config sync defaults.
const (
	DefaultRetryBudget   = 3
	DefaultRetryInterval = 10 * time.Second
)

// ErrConfigSync indicates the board failed to accept the feature config.
var ErrConfigSync = errors.New("config sync failed")

// SyncError describes a config sync failure.
type SyncError struct {
	Kind      Kind
	LogicalID int
	Reason    string
	Nak       *msgs.ConfigNak
}

// Error implements error.
func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: %v: logical pin %d: %s", e.Kind, ErrConfigSync, e.LogicalID, e.Reason)
	if e.Nak != nil {
		msg += fmt.Sprintf(" (code %d: %s)", e.Nak.ErrorCode, e.Nak.ErrorString)
	}
	return msg
}

// Is matches ErrConfigSync.
func (e *SyncError) Is(target error) bool {
	return target == ErrConfigSync
}

// Sender sends messages to the board.
type Sender interface {
	SendMessage(msgs.Message) error
}

// SendMessageFunc is func type of Sender.
type SendMessageFunc func(msgs.Message) error

// SendMessage implements Sender.
func (f SendMessageFunc) SendMessage(m msgs.Message) error {
	return f(m)
}

type syncItem struct {
	pin         *Pin
	retries     int
	lastAttempt time.Time
	interval    time.Duration
}

// Feature is an instance of a feature kind on one board.
type Feature struct {
	Kind      Kind
	Component string
	Sink      hal.Sink
	Sender    Sender

	RetryBudget   int
	RetryInterval time.Duration

	lock           sync.Mutex
	pins           []*Pin
	active         []*Pin
	ready          bool
	pending        map[int]*syncItem
	configComplete bool
	syncErr        error
	arrayIndex     int
	pinChangeSeq   int
}

// New creates a feature serving pins.
func New(kind Kind, pins []Pin) *Feature {
	f := &Feature{
		Kind:          kind,
		RetryBudget:   DefaultRetryBudget,
		RetryInterval: DefaultRetryInterval,
		pending:       make(map[int]*syncItem),
		arrayIndex:    -1,
	}
	for n := range pins {
		pin := pins[n]
		f.pins = append(f.pins, &pin)
	}
	return f
}

// ID returns the feature ID.
func (f *Feature) ID() ID {
	return f.Kind.ID
}

// Setup assigns logical IDs to enabled pins and registers them in the sink.
func (f *Feature) Setup() error {
	type seed struct {
		h hal.Handle
		v int
	}
	var seeds []seed

	f.lock.Lock()
	if f.ready {
		f.lock.Unlock()
		return nil
	}
	f.active = f.active[:0]
	for _, pin := range f.pins {
		pin.Synced = false
		if !pin.Enabled {
			continue
		}
		pin.LogicalID = len(f.active)
		f.active = append(f.active, pin)
		if f.Sink == nil {
			continue
		}
		h, err := f.Sink.RegisterPin(pin.SinkName(f.Component, f.Kind), f.Kind.ValueType, f.Kind.Direction)
		if err != nil {
			f.lock.Unlock()
			return fmt.Errorf("%s: register pin %d: %w", f.Kind, pin.PinID, err)
		}
		pin.handle = h
		if f.Kind.IsInput() && pin.InitialState >= 0 {
			pin.Value = pin.InitialState
			seeds = append(seeds, seed{h: h, v: pin.InitialState})
		}
	}
	f.ready = true
	f.lock.Unlock()

	for _, s := range seeds {
		f.setSink(s.h, s.v)
	}
	glog.V(2).Infof("%s/%s: setup %d pins", f.Component, f.Kind, len(f.active))
	return nil
}

// OnConnected queues all pin configs for syncing.
func (f *Feature) OnConnected(now time.Time) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.syncErr = nil
	f.configComplete = false
	f.pending = make(map[int]*syncItem, len(f.active))
	for _, pin := range f.active {
		pin.Synced, pin.mirrored = false, false
		f.pending[pin.LogicalID] = &syncItem{
			pin:      pin,
			retries:  f.RetryBudget,
			interval: f.RetryInterval,
		}
	}
	if len(f.pending) == 0 {
		f.configComplete = true
	}
	glog.V(2).Infof("%s/%s: connected at %s, %d pins to sync", f.Component, f.Kind, now.Format(time.RFC3339), len(f.pending))
}

// OnDisconnected marks all pins unsynced.
func (f *Feature) OnDisconnected() {
	type reset struct {
		h hal.Handle
		v int
	}
	var resets []reset

	f.lock.Lock()
	f.configComplete = false
	f.pending = make(map[int]*syncItem)
	for _, pin := range f.active {
		pin.Synced, pin.mirrored = false, false
		if f.Kind.IsInput() && pin.DisconnectedState >= 0 {
			pin.Value = pin.DisconnectedState
			resets = append(resets, reset{h: pin.handle, v: pin.DisconnectedState})
		}
	}
	f.lock.Unlock()

	for _, r := range resets {
		f.setSink(r.h, r.v)
	}
}

// Loop advances config sync, and mirrors host values of output pins
// once the config is complete.
func (f *Feature) Loop(now time.Time) {
	for _, m := range f.step(now) {
		if f.Sender == nil {
			continue
		}
		if err := f.Sender.SendMessage(m); err != nil {
			glog.Warningf("%s/%s: send %s failed: %v", f.Component, f.Kind, m.Type(), err)
		}
	}
}

func (f *Feature) step(now time.Time) []msgs.Message {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.syncErr != nil {
		return nil
	}
	if len(f.pending) > 0 {
		if m := f.syncNext(now); m != nil {
			return []msgs.Message{m}
		}
		return nil
	}
	if f.configComplete && !f.Kind.IsInput() {
		if m := f.mirror(); m != nil {
			return []msgs.Message{m}
		}
	}
	return nil
}

func (f *Feature) syncNext(now time.Time) msgs.Message {
	logicalID := -1
	for id := range f.pending {
		if logicalID < 0 || id < logicalID {
			logicalID = id
		}
	}
	item := f.pending[logicalID]
	if !item.lastAttempt.IsZero() && now.Sub(item.lastAttempt) < item.interval {
		return nil
	}
	if item.retries <= 0 {
		f.syncErr = &SyncError{Kind: f.Kind, LogicalID: logicalID, Reason: "config not acknowledged"}
		f.pending = make(map[int]*syncItem)
		glog.Errorf("%s/%s: %v", f.Component, f.Kind, f.syncErr)
		return nil
	}
	item.retries--
	item.lastAttempt = now
	glog.V(2).Infof("%s/%s: sending config %d/%d, %d retries left", f.Component, f.Kind, logicalID, len(f.active), item.retries)
	return &msgs.Config{
		FeatureID: int(f.Kind.ID),
		Seq:       logicalID,
		Total:     len(f.active),
		Pin:       item.pin.config(f.Kind),
	}
}

func (f *Feature) mirror() msgs.Message {
	if f.Sink == nil {
		return nil
	}
	var changes []msgs.PinInfo
	for _, pin := range f.active {
		v, err := f.Sink.Get(pin.handle)
		if err != nil {
			glog.Warningf("%s/%s: read pin %d: %v", f.Component, f.Kind, pin.PinID, err)
			continue
		}
		value := int(math.Round(hal.Normalize(f.Kind.ValueType, v)))
		if pin.mirrored && value == pin.Value {
			continue
		}
		pin.Value, pin.mirrored = value, true
		changes = append(changes, msgs.PinInfo{LogicalID: pin.LogicalID, PinID: pin.PinID, Value: value})
	}
	if len(changes) == 0 {
		return nil
	}
	f.pinChangeSeq++
	return &msgs.PinChange{FeatureID: int(f.Kind.ID), Seq: f.pinChangeSeq, Pins: changes}
}

// OnMessage handles messages addressed to the feature.
func (f *Feature) OnMessage(m msgs.FeatureMessage) {
	switch msg := m.(type) {
	case *msgs.ConfigAck:
		f.onAck(msg)
	case *msgs.ConfigNak:
		f.onNak(msg)
	case *msgs.PinChange:
		f.onPinChange(msg)
	default:
		glog.V(2).Infof("%s/%s: ignored %s", f.Component, f.Kind, m.Type())
	}
}

func (f *Feature) onAck(ack *msgs.ConfigAck) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.arrayIndex < 0 {
		f.arrayIndex = ack.FeatureArrayIndex
	}
	item, ok := f.pending[ack.Seq]
	if !ok {
		glog.Warningf("%s/%s: unexpected config ack for %d", f.Component, f.Kind, ack.Seq)
		return
	}
	item.pin.Synced = true
	delete(f.pending, ack.Seq)
	if len(f.pending) == 0 && f.syncErr == nil {
		f.configComplete = true
		glog.Infof("%s/%s: config successfully applied", f.Component, f.Kind)
	}
}

func (f *Feature) onNak(nak *msgs.ConfigNak) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.syncErr = &SyncError{Kind: f.Kind, LogicalID: nak.Seq, Reason: "config rejected", Nak: nak}
	f.configComplete = false
	f.pending = make(map[int]*syncItem)
	glog.Errorf("%s/%s: %v", f.Component, f.Kind, f.syncErr)
}

func (f *Feature) onPinChange(pc *msgs.PinChange) {
	type update struct {
		h hal.Handle
		v int
	}
	var updates []update
	f.lock.Lock()
	for _, info := range pc.Pins {
		pin := f.findPin(info.PinID)
		if pin == nil {
			glog.V(2).Infof("%s/%s: pin change for unknown pin %d", f.Component, f.Kind, info.PinID)
			continue
		}
		pin.Value = info.Value
		updates = append(updates, update{h: pin.handle, v: info.Value})
	}
	f.lock.Unlock()

	for _, u := range updates {
		f.setSink(u.h, u.v)
	}
}

func (f *Feature) findPin(pinID int) *Pin {
	for _, pin := range f.active {
		if pin.PinID == pinID {
			return pin
		}
	}
	return nil
}

func (f *Feature) setSink(h hal.Handle, v int) {
	if f.Sink == nil {
		return
	}
	if err := f.Sink.Set(h, float64(v)); err != nil {
		glog.Warningf("%s/%s: set pin: %v", f.Component, f.Kind, err)
	}
}

// ConfigComplete returns true when all pins are acknowledged.
func (f *Feature) ConfigComplete() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.configComplete
}

// SyncError returns the config sync failure, or nil.
func (f *Feature) SyncError() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.syncErr
}

// PinStatus is a snapshot of a pin.
type PinStatus struct {
	Name      string `json:"name"`
	PinID     int    `json:"pin"`
	LogicalID int    `json:"logical"`
	Synced    bool   `json:"synced"`
	Value     int    `json:"value"`
}

// Status is a snapshot of a feature.
type Status struct {
	Kind           string      `json:"kind"`
	ID             int         `json:"id"`
	ConfigComplete bool        `json:"configComplete"`
	SyncError      string      `json:"syncError,omitempty"`
	Pending        []int       `json:"pending,omitempty"`
	ArrayIndex     int         `json:"arrayIndex"`
	Pins           []PinStatus `json:"pins"`
}

// Status returns a snapshot of the feature.
func (f *Feature) Status() Status {
	f.lock.Lock()
	defer f.lock.Unlock()
	s := Status{
		Kind:           f.Kind.ConfigName,
		ID:             int(f.Kind.ID),
		ConfigComplete: f.configComplete,
		ArrayIndex:     f.arrayIndex,
		Pins:           make([]PinStatus, 0, len(f.active)),
	}
	if f.syncErr != nil {
		s.SyncError = f.syncErr.Error()
	}
	for id := range f.pending {
		s.Pending = append(s.Pending, id)
	}
	sort.Ints(s.Pending)
	for _, pin := range f.active {
		s.Pins = append(s.Pins, PinStatus{
			Name:      pin.SinkName(f.Component, f.Kind),
			PinID:     pin.PinID,
			LogicalID: pin.LogicalID,
			Synced:    pin.Synced,
			Value:     pin.Value,
		})
	}
	return s
}
