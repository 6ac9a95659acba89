package msgs

import (
	"errors"
	"fmt"

	"github.com/robotalks/mcuconn/pkg/l0/comm"
)

var (
	// ErrProtocolViolation indicates a well-formed message with missing or
	// invalid fields.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrUnknownType indicates a message type the host doesn't handle.
	ErrUnknownType = errors.New("unknown message type")
	// ErrMalformed indicates the payload isn't a MessagePack map.
	// It is a frame corruption.
	ErrMalformed = fmt.Errorf("malformed payload: %w", comm.ErrFrameCorruption)
)

// FieldError reports an invalid or missing field.
type FieldError struct {
	Type   Type
	Field  string
	Reason string
}

// Error implements error.
func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: field %q %s", e.Type, e.Field, e.Reason)
}

// Unwrap returns ErrProtocolViolation.
func (e *FieldError) Unwrap() error {
	return ErrProtocolViolation
}

func missing(t Type, field string) error {
	return &FieldError{Type: t, Field: field, Reason: "is undefined"}
}

func invalid(t Type, field string, v interface{}) error {
	return &FieldError{Type: t, Field: field, Reason: fmt.Sprintf("has invalid value %v", v)}
}
