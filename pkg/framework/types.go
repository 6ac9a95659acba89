package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Controller is ticked by the Loop.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc defines the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(ctx ControlContext) error {
	return f(ctx)
}

// TimeSource provides the time for controlling logic.
type TimeSource interface {
	Time() time.Time
}

// ControlContext provides the context of current control
// iteration.
type ControlContext interface {
	TimeSource
	// Context retrieves context.Context.
	Context() context.Context
	// PriorityLevel gets the current priority level.
	PriorityLevel() int
	// Iteration is the sequence number of current iteration, from 1.
	Iteration() uint64
	// TriggerNext schedules the next iteration to run
	// right after the current one.
	TriggerNext()
}

// PriorityLevels is the total levels of priorities.
const PriorityLevels int = 4

// Predefined priority levels.
const (
	PrLvTop int = 0
	// PrLvSupervise is where link supervisors run.
	PrLvSupervise int = 1
	// PrLvReport is where status reporters run, after supervisors.
	PrLvReport int = 2
	PrLvIdle   int = PriorityLevels - 1
)
