// Package hal defines the host pin sink the board pins are mirrored to.
package hal

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPin indicates the handle doesn't refer to a registered pin.
	ErrUnknownPin = errors.New("unknown pin")
	// ErrDuplicatePin indicates a pin name is registered twice.
	ErrDuplicatePin = errors.New("duplicate pin")
)

// ValueType is the type of a pin value.
type ValueType int

// Value types.
const (
	Bit ValueType = iota
	Float
)

// String implements fmt.Stringer.
func (t ValueType) String() string {
	switch t {
	case Bit:
		return "bit"
	case Float:
		return "float"
	}
	return fmt.Sprintf("ValueType(%d)", int(t))
}

// Direction is seen from the component side.
// Out pins are written by the component, In pins are read by it.
type Direction int

// Directions.
const (
	Out Direction = iota
	In
	IO
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case Out:
		return "out"
	case In:
		return "in"
	case IO:
		return "io"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// Handle refers to a registered pin.
type Handle int

// Sink is the host side pin store.
type Sink interface {
	RegisterPin(name string, t ValueType, dir Direction) (Handle, error)
	Get(h Handle) (float64, error)
	Set(h Handle, v float64) error
}

// Normalize converts v to the representation of t.
func Normalize(t ValueType, v float64) float64 {
	if t == Bit {
		if v != 0 {
			return 1
		}
		return 0
	}
	return v
}
