package framework

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the tick interval of a Loop.
const DefaultInterval = 100 * time.Millisecond

// Loop ticks controllers by priority on a fixed interval.
// All controllers run on the loop goroutine, one after another.
type Loop struct {
	Interval time.Duration
	// Clock returns the iteration time, time.Now if nil.
	Clock func() time.Time

	lock        sync.Mutex
	controllers [PriorityLevels][]Controller
	runners     []Runnable
	iterations  uint64
	wakeUpCh    chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type loopIteration struct {
	loop          *Loop
	ctx           context.Context
	time          time.Time
	seq           uint64
	priorityLevel int
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: DefaultInterval, wakeUpCh: make(chan struct{}, 1)}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers to the loop.
// Controllers which are also Runnable are started with the loop.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.controllers[priorityLevel] = append(l.controllers[priorityLevel], ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions started with the loop.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.lock.Lock()
	l.runners = append(l.runners, runnables...)
	l.lock.Unlock()
	return l
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	l.lock.Lock()
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	runners := l.runners
	l.lock.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	runner := NewRunnerWith(subCtx).Go(runners...)
	defer func() {
		cancel()
		if err := runner.Wait(); err != nil {
			glog.Errorf("loop runners: %v", err)
		}
	}()

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Step(ctx)
		case <-l.wakeUpCh:
			l.Step(ctx)
		}
	}
}

// Step runs one iteration synchronously.
func (l *Loop) Step(ctx context.Context) {
	now := time.Now()
	if l.Clock != nil {
		now = l.Clock()
	}
	l.lock.Lock()
	l.iterations++
	iter := &loopIteration{loop: l, ctx: ctx, time: now, seq: l.iterations}
	controllers := l.controllers
	l.lock.Unlock()
	for level, ctls := range controllers {
		iter.priorityLevel = level
		for _, ctl := range ctls {
			if err := ctl.Control(iter); err != nil {
				glog.Errorf("controller error: %v", err)
			}
		}
	}
}

// TriggerNext runs the next iteration without waiting for the interval.
func (l *Loop) TriggerNext() {
	l.lock.Lock()
	ch := l.wakeUpCh
	l.lock.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (t *loopIteration) Context() context.Context {
	return t.ctx
}

func (t *loopIteration) Time() time.Time {
	return t.time
}

func (t *loopIteration) PriorityLevel() int {
	return t.priorityLevel
}

func (t *loopIteration) Iteration() uint64 {
	return t.seq
}

func (t *loopIteration) TriggerNext() {
	t.loop.TriggerNext()
}
