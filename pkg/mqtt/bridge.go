package mqtt

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/mcuconn/pkg/framework"
	"github.com/robotalks/mcuconn/pkg/hal"
	"github.com/robotalks/mcuconn/pkg/l0/link"
)

// Topic suffixes.
const (
	LinkTopic  = "link"
	SetSuffix  = "/set"
	topicSplit = "/"
)

// PinTopic maps a pin name component.pin to the topic component/pin.
func PinTopic(name string) string {
	return strings.Replace(name, ".", topicSplit, 1)
}

// PinName maps a topic component/pin back to the pin name.
func PinName(topic string) string {
	return strings.Replace(topic, topicSplit, ".", 1)
}

// FormatValue formats a pin value as the payload.
func FormatValue(t hal.ValueType, v float64) []byte {
	if t == hal.Bit {
		if v != 0 {
			return []byte("1")
		}
		return []byte("0")
	}
	return []byte(strconv.FormatFloat(v, 'g', -1, 64))
}

// ParseValue parses a payload written to a set topic.
func ParseValue(payload []byte) (float64, error) {
	s := strings.TrimSpace(string(payload))
	switch strings.ToLower(s) {
	case "on", "true":
		return 1, nil
	case "off", "false":
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// LinkEvent is the payload published on the link topic.
type LinkEvent struct {
	Alias   string     `json:"alias"`
	Device  string     `json:"device"`
	State   link.State `json:"state"`
	Session string     `json:"session,omitempty"`
	UID     string     `json:"uid,omitempty"`
	Drifted bool       `json:"profileDrifted,omitempty"`
}

// ConnectRetryDelay is the delay between attempts of the initial connect.
const ConnectRetryDelay = 5 * time.Second

type bridgedLink struct {
	link      *link.Link
	component string
}

// Bridge publishes pin values and link states, and writes values
// received on the set topics of host driven pins into the sink.
type Bridge struct {
	Queue  *Queue
	Sink   *hal.Registry
	Retain bool

	lock  sync.Mutex
	links []bridgedLink
	subs  []*Subscription
}

// NewBridge creates a Bridge.
func NewBridge(q *Queue, sink *hal.Registry) *Bridge {
	b := &Bridge{Queue: q, Sink: sink, Retain: true}
	q.OnConnect = func(*Queue) { b.PublishAll() }
	return b
}

// AddLink publishes state changes of l under the component.
func (b *Bridge) AddLink(l *link.Link, component string) {
	b.lock.Lock()
	b.links = append(b.links, bridgedLink{link: l, component: component})
	b.lock.Unlock()
	l.Listen(b)
}

// Start listens to pin changes and subscribes the set topics
// of pins registered so far.
func (b *Bridge) Start() {
	b.Sink.Listen(b)
	var subs []*Subscription
	for _, pin := range b.Sink.Snapshot("") {
		if pin.Direction == hal.Out {
			continue
		}
		subs = append(subs, b.Queue.Subscribe(PinTopic(pin.Name)+SetSuffix, b.handleSet))
	}
	b.lock.Lock()
	b.subs = append(b.subs, subs...)
	b.lock.Unlock()
}

// Stop unsubscribes the set topics.
func (b *Bridge) Stop() error {
	b.lock.Lock()
	subs := b.subs
	b.subs = nil
	b.lock.Unlock()
	errs := &fx.AggregatedError{}
	for _, sub := range subs {
		errs.Add(sub.Close())
	}
	return errs.Aggregate()
}

// PinChanged implements hal.ChangeListener.
func (b *Bridge) PinChanged(s hal.PinState) {
	b.Queue.PublishWith(PinTopic(s.Name), FormatValue(s.Type, s.Value), 0, b.Retain)
}

// LinkStateChanged implements link.StateListener.
func (b *Bridge) LinkStateChanged(l *link.Link, from, to link.State) {
	b.lock.Lock()
	component := b.componentOf(l)
	b.lock.Unlock()
	b.publishLink(l, component)
}

func (b *Bridge) componentOf(l *link.Link) string {
	for _, bl := range b.links {
		if bl.link == l {
			return bl.component
		}
	}
	return l.Alias
}

func (b *Bridge) publishLink(l *link.Link, component string) {
	s := l.Status()
	event := LinkEvent{
		Alias:   s.Alias,
		Device:  s.Device,
		State:   s.State,
		Session: s.Session,
		Drifted: s.Drifted,
	}
	if s.State == link.Connected {
		event.UID = s.Remote.UID
	}
	payload, err := json.Marshal(&event)
	if err != nil {
		glog.Errorf("encode link event: %v", err)
		return
	}
	b.Queue.PublishWith(component+topicSplit+LinkTopic, payload, 1, b.Retain)
}

// PublishAll publishes all pins and links, used when (re)connected.
func (b *Bridge) PublishAll() {
	for _, pin := range b.Sink.Snapshot("") {
		b.PinChanged(pin)
	}
	b.lock.Lock()
	links := append([]bridgedLink(nil), b.links...)
	b.lock.Unlock()
	for _, bl := range links {
		b.publishLink(bl.link, bl.component)
	}
}

func (b *Bridge) handleSet(topic string, payload []byte) {
	name := PinName(strings.TrimSuffix(topic, SetSuffix))
	h, ok := b.Sink.Lookup(name)
	if !ok {
		glog.Warningf("set %s: %v", name, hal.ErrUnknownPin)
		return
	}
	v, err := ParseValue(payload)
	if err != nil {
		glog.Warningf("set %s: invalid value %q", name, payload)
		return
	}
	if err := b.Sink.Set(h, v); err != nil {
		glog.Warningf("set %s: %v", name, err)
	}
}

// AddToLoop implements fx.LoopAdder.
func (b *Bridge) AddToLoop(loop *fx.Loop) {
	loop.AddRunnable(fx.NamedRun("mqtt", b))
}

// Run implements fx.Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	b.Start()
	defer b.Queue.Close()
	for {
		token := b.Queue.Connect()
		token.Wait()
		if token.Error() == nil {
			break
		}
		glog.Warningf("mqtt connect: %v", token.Error())
		select {
		case <-ctx.Done():
			return b.Stop()
		case <-time.After(ConnectRetryDelay):
		}
	}
	<-ctx.Done()
	return b.Stop()
}
