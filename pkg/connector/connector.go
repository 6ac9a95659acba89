// Package connector runs the board links of a profile.
package connector

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/mcuconn/pkg/config"
	fx "github.com/robotalks/mcuconn/pkg/framework"
	"github.com/robotalks/mcuconn/pkg/hal"
	"github.com/robotalks/mcuconn/pkg/l0/comm"
	"github.com/robotalks/mcuconn/pkg/l0/features"
	"github.com/robotalks/mcuconn/pkg/l0/link"
	"github.com/robotalks/mcuconn/pkg/l0/msgs"
	"github.com/robotalks/mcuconn/pkg/l0/serial"
)

// ErrUnknownLink indicates no link has the alias.
var ErrUnknownLink = errors.New("unknown link")

// Options are shared by all connections.
type Options struct {
	Sink hal.Sink
	// Transport creates the Opener of a board,
	// serial ports configured by the board if nil.
	Transport func(*config.Board) Opener
	Codec     comm.Codec
	// Signature is the local profile signature.
	Signature uint32
	// Clock is passed to the workers.
	Clock func() time.Time
}

func (o *Options) opener(b *config.Board) Opener {
	if o.Transport != nil {
		return o.Transport(b)
	}
	return &serial.Transport{BaudRate: b.BaudRate(), ReadTimeout: b.ReadTimeout()}
}

// Connection is the link of one board with its Worker and Supervisor.
type Connection struct {
	Board      *config.Board
	Link       *link.Link
	Worker     *Worker
	Supervisor *Supervisor
}

// NewConnection builds the features and link of a board.
func NewConnection(b *config.Board, opts Options) (*Connection, error) {
	var feats []*features.Feature
	for _, kind := range b.Kinds() {
		f := features.New(kind, b.FeaturePins(kind))
		f.Component = b.Component
		f.Sink = opts.Sink
		feats = append(feats, f)
	}
	l := link.New(b.Alias, b.Device, feats...)
	l.ProfileSignature = opts.Signature
	w := NewWorker(l, opts.opener(b))
	w.Codec = opts.Codec
	w.Clock = opts.Clock
	l.Sender = w
	for _, f := range feats {
		f.Sender = w
		if err := f.Setup(); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Alias, err)
		}
	}
	return &Connection{
		Board:      b,
		Link:       l,
		Worker:     w,
		Supervisor: NewSupervisor(w),
	}, nil
}

// AddToLoop implements fx.LoopAdder.
func (c *Connection) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvSupervise, c.Supervisor)
}

// Status is a snapshot of a connection.
type Status struct {
	link.Status
	Component string       `json:"component"`
	Worker    WorkerStatus `json:"worker"`
	Starts    int          `json:"starts"`
	Traffic   comm.Stats   `json:"traffic"`
	Fault     string       `json:"fault,omitempty"`
}

// Status returns a snapshot of the connection.
func (c *Connection) Status() Status {
	s := Status{
		Status:    c.Link.Status(),
		Component: c.Board.Component,
		Worker:    c.Worker.Status(),
		Starts:    c.Worker.Starts(),
		Traffic:   c.Worker.Stats(),
	}
	if err := c.Worker.Err(); err != nil {
		s.Fault = err.Error()
	}
	return s
}

// Connector runs the connections of the enabled boards in a profile.
type Connector struct {
	Profile  *config.Profile
	Disabled []*config.Board

	connections []*Connection
}

// New creates connections for the enabled boards in the profile.
func New(profile *config.Profile, opts Options) (*Connector, error) {
	opts.Signature = profile.Signature
	c := &Connector{Profile: profile}
	for _, b := range profile.Boards {
		if !b.IsEnabled() {
			glog.Infof("%s: disabled as %s", b.Alias, b.Component)
			c.Disabled = append(c.Disabled, b)
			continue
		}
		conn, err := NewConnection(b, opts)
		if err != nil {
			return nil, err
		}
		c.connections = append(c.connections, conn)
	}
	return c, nil
}

// Connections returns the connections in profile order.
func (c *Connector) Connections() []*Connection {
	return c.connections
}

// Connection finds a connection by alias.
func (c *Connector) Connection(alias string) (*Connection, error) {
	for _, conn := range c.connections {
		if conn.Link.Alias == alias {
			return conn, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownLink, alias)
}

// Statuses returns the status of all connections.
func (c *Connector) Statuses() []Status {
	list := make([]Status, 0, len(c.connections))
	for _, conn := range c.connections {
		list = append(list, conn.Status())
	}
	return list
}

// Reset forces the link to DISCONNECTED so a new handshake starts.
func (c *Connector) Reset(alias string, now time.Time) error {
	conn, err := c.Connection(alias)
	if err != nil {
		return err
	}
	conn.Link.SetState(now, link.Disconnected)
	return conn.Worker.SendMessage(&msgs.InviteSync{ProtocolVersion: msgs.ProtocolVersion})
}

// Listen adds a state listener to all links.
func (c *Connector) Listen(listener link.StateListener) {
	for _, conn := range c.connections {
		conn.Link.Listen(listener)
	}
}

// AddToLoop implements fx.LoopAdder.
func (c *Connector) AddToLoop(loop *fx.Loop) {
	for _, conn := range c.connections {
		loop.Add(conn)
	}
}

// Close stops all workers.
func (c *Connector) Close() error {
	for _, conn := range c.connections {
		conn.Worker.Stop()
	}
	return nil
}
