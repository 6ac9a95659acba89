package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameCorruption indicates a frame can't be decoded.
	// The frame is discarded and the stream continues.
	ErrFrameCorruption = errors.New("frame corruption")
	// ErrTransportFault indicates the underlying stream failed.
	// The FIFO stops when this happens.
	ErrTransportFault = errors.New("transport fault")
	// ErrNotRunning indicates the FIFO has no open stream to write to.
	ErrNotRunning = errors.New("not running")
)

// CorruptionError describes why a frame is considered corrupted.
type CorruptionError struct {
	Reason string
	Offset int
}

// Error implements error.
func (e *CorruptionError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("frame: %s at offset %d", e.Reason, e.Offset)
	}
	return "frame: " + e.Reason
}

// Unwrap makes errors.Is(err, ErrFrameCorruption) work.
func (e *CorruptionError) Unwrap() error {
	return ErrFrameCorruption
}

func corrupted(reason string, offset int) error {
	return &CorruptionError{Reason: reason, Offset: offset}
}

// TransportError wraps an I/O error from the stream.
type TransportError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is matches ErrTransportFault.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransportFault
}
