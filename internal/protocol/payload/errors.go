package payload

import (
	"errors"
	"fmt"
)

var (
	ErrPoolClosed = errors.New("payload: pool closed")
	ErrTaskPanic  = errors.New("payload: task panicked")
)

// SerializeError is returned when a materialized object fails to encode.
type SerializeError struct {
	Type string
	Err  error
}

func (e *SerializeError) Error() string {
	return fmt.Sprintf("payload: serialize %s: %v", e.Type, e.Err)
}

func (e *SerializeError) Unwrap() error {
	return e.Err
}

// DeserializeError is returned when raw bytes fail to decode.
type DeserializeError struct {
	Type string
	Len  int
	Err  error
}

func (e *DeserializeError) Error() string {
	return fmt.Sprintf("payload: deserialize %s from %d bytes: %v", e.Type, e.Len, e.Err)
}

func (e *DeserializeError) Unwrap() error {
	return e.Err
}
