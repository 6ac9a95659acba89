package connector

import (
	"context"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/mcuconn/pkg/framework"
	"github.com/robotalks/mcuconn/pkg/l0/link"
)

// Restart delays after a worker crash.
const (
	DefaultAbsentDelay  = 2500 * time.Millisecond
	DefaultPresentDelay = time.Second
)

// Supervisor restarts the Worker of a link and ticks the link and
// its features. It runs on the loop goroutine.
type Supervisor struct {
	Link   *link.Link
	Worker *Worker
	// AbsentDelay is how long to wait before probing again when
	// the device is absent.
	AbsentDelay time.Duration
	// PresentDelay is how long to wait before restarting when
	// the device is present.
	PresentDelay time.Duration

	restartAt time.Time
	present   bool
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(w *Worker) *Supervisor {
	return &Supervisor{
		Link:         w.Link,
		Worker:       w,
		AbsentDelay:  DefaultAbsentDelay,
		PresentDelay: DefaultPresentDelay,
	}
}

// Name implements fx.Named.
func (s *Supervisor) Name() string {
	return "supervisor:" + s.Link.Alias
}

// Control implements fx.Controller.
func (s *Supervisor) Control(cc fx.ControlContext) error {
	now := cc.Time()
	s.superviseWorker(cc.Context(), now)
	s.Link.Tick(now)
	if err := s.Link.Supervise(now); err != nil {
		glog.Errorf("%s: %v", s.Link.Alias, err)
	}
	return nil
}

// RestartAt returns the scheduled time of the next restart attempt,
// zero if none.
func (s *Supervisor) RestartAt() time.Time {
	return s.restartAt
}

func (s *Supervisor) superviseWorker(ctx context.Context, now time.Time) {
	switch s.Worker.Status() {
	case Stopped:
		s.restartAt = time.Time{}
		s.Worker.Start(ctx)
	case Crashed:
		if s.restartAt.IsZero() {
			s.present = s.Worker.Opener.Present(s.Link.Device)
			if s.present {
				s.restartAt = now.Add(s.PresentDelay)
			} else {
				s.restartAt = now.Add(s.AbsentDelay)
				glog.V(1).Infof("%s: device %s not present", s.Link.Alias, s.Link.Device)
			}
			return
		}
		if now.Before(s.restartAt) {
			return
		}
		s.restartAt = time.Time{}
		if s.present {
			glog.Infof("%s: restarting worker", s.Link.Alias)
			s.Worker.Start(ctx)
		}
	}
}
