package connector

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/mcuconn/pkg/l0/comm"
	"github.com/robotalks/mcuconn/pkg/l0/link"
	"github.com/robotalks/mcuconn/pkg/l0/msgs"
	"github.com/robotalks/mcuconn/pkg/l0/serial"
)

// Opener opens the transport of a board.
type Opener interface {
	Open(device string) (io.ReadWriteCloser, error)
	Present(device string) bool
}

// WorkerStatus is the status of a Worker.
type WorkerStatus int

// Worker statuses.
const (
	Stopped WorkerStatus = iota
	Running
	Crashed
)

// String implements fmt.Stringer.
func (s WorkerStatus) String() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case Running:
		return "RUNNING"
	case Crashed:
		return "CRASHED"
	}
	return "UNKNOWN"
}

// MarshalText implements encoding.TextMarshaler.
func (s WorkerStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Worker pumps the transport of one link on its own goroutine.
// It never restarts itself after a fault, the Supervisor does.
type Worker struct {
	Link   *link.Link
	Opener Opener
	Codec  comm.Codec
	// IdleDelay is passed to the FIFO.
	IdleDelay time.Duration
	// Clock is time.Now if nil.
	Clock func() time.Time

	lock   sync.Mutex
	status WorkerStatus
	fifo   *comm.FIFO
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	starts int
}

// NewWorker creates a Worker for l.
func NewWorker(l *link.Link, opener Opener) *Worker {
	return &Worker{Link: l, Opener: opener}
}

func (w *Worker) now() time.Time {
	if w.Clock != nil {
		return w.Clock()
	}
	return time.Now()
}

// Status returns the current status.
func (w *Worker) Status() WorkerStatus {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.status
}

// Err returns the fault of the last crash.
func (w *Worker) Err() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.err
}

// Starts returns how many times the worker has been started.
func (w *Worker) Starts() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.starts
}

// Stats returns the traffic counters of the current or last stream.
func (w *Worker) Stats() comm.Stats {
	w.lock.Lock()
	fifo := w.fifo
	w.lock.Unlock()
	if fifo == nil {
		return comm.Stats{}
	}
	return fifo.Stats()
}

// Start opens the transport and starts pumping on a new goroutine.
// It does nothing if the worker is running.
func (w *Worker) Start(ctx context.Context) {
	w.lock.Lock()
	if w.status == Running {
		w.lock.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.status, w.err = Running, nil
	w.cancel, w.done = cancel, done
	w.fifo = nil
	w.starts++
	w.lock.Unlock()

	go func() {
		defer cancel()
		w.run(ctx, done)
	}()
}

// Stop requests the worker to stop and waits for it.
// The request is observed after the current read returns.
func (w *Worker) Stop() {
	w.lock.Lock()
	cancel, done := w.cancel, w.done
	w.lock.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SendMessage implements features.Sender.
func (w *Worker) SendMessage(m msgs.Message) error {
	w.lock.Lock()
	fifo := w.fifo
	running := w.status == Running
	w.lock.Unlock()
	if !running || fifo == nil {
		return comm.ErrNotRunning
	}
	payload, err := msgs.Encode(m)
	if err != nil {
		return err
	}
	glog.V(2).Infof("%s: send %s", w.Link.Alias, m.Type())
	return fifo.Send(payload)
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	err := w.pump(ctx)
	if ctx.Err() != nil {
		err = nil
	}

	w.lock.Lock()
	if err != nil {
		w.status, w.err = Crashed, err
	} else {
		w.status = Stopped
	}
	w.lock.Unlock()

	if err == nil {
		glog.Infof("%s: worker stopped", w.Link.Alias)
		return
	}
	if serial.IsDisconnect(err) {
		glog.Warningf("%s: device %s disconnected: %v", w.Link.Alias, w.Link.Device, err)
	} else {
		glog.Errorf("%s: worker crashed: %v", w.Link.Alias, err)
	}
	w.Link.SetState(w.now(), link.Disconnected)
}

func (w *Worker) pump(ctx context.Context) error {
	port, err := w.Opener.Open(w.Link.Device)
	if err != nil {
		return &comm.TransportError{Op: "open", Err: err}
	}
	defer port.Close()

	fifo := comm.NewFIFO(port)
	fifo.Codec = w.Codec
	if w.IdleDelay > 0 {
		fifo.IdleDelay = w.IdleDelay
	}
	fifo.Handler = comm.HandleFrameFunc(func(ctx context.Context, payload []byte) {
		w.handleFrame(ctx, fifo, payload)
	})
	fifo.Lines = comm.HandleLineFunc(w.handleLine)
	fifo.Corruption = comm.FrameCorruptedFunc(w.frameCorrupted)

	w.lock.Lock()
	w.fifo = fifo
	w.lock.Unlock()

	glog.Infof("%s: opened %s", w.Link.Alias, w.Link.Device)
	if err := w.SendMessage(&msgs.InviteSync{ProtocolVersion: msgs.ProtocolVersion}); err != nil {
		return err
	}
	return fifo.Run(ctx)
}

func (w *Worker) handleFrame(ctx context.Context, fifo *comm.FIFO, payload []byte) {
	m, err := msgs.Decode(payload)
	if err != nil {
		if errors.Is(err, comm.ErrFrameCorruption) {
			fifo.Discard(ctx, err)
		} else {
			glog.Warningf("%s: rejected message: %v", w.Link.Alias, err)
		}
		return
	}
	glog.V(2).Infof("%s: recv %s", w.Link.Alias, m.Type())
	if err := w.Link.HandleMessage(w.now(), m); err != nil {
		if errors.Is(err, link.ErrUnknownFeature) {
			glog.Warningf("%s: %v", w.Link.Alias, err)
		} else {
			glog.V(2).Infof("%s: %v", w.Link.Alias, err)
		}
	}
}

func (w *Worker) handleLine(ctx context.Context, line string) {
	glog.V(1).Infof("[%s] %s", w.Link.Alias, line)
}

func (w *Worker) frameCorrupted(ctx context.Context, err error) {
	glog.V(1).Infof("%s: discarded frame: %v", w.Link.Alias, err)
}
