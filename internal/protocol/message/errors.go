package message

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyBody      = errors.New("message: empty body")
	ErrUnknownID      = errors.New("message: unknown message id")
	ErrWrongSchema    = errors.New("message: message does not belong to schema")
	ErrInvalidMessage = errors.New("message: invalid message")
	ErrNilMessage     = errors.New("message: nil message")
)

// DecodeError reports a body that does not match its schema.
type DecodeError struct {
	Schema string
	ID     ID
	Name   string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Name == "" {
		if errors.Is(e.Err, ErrEmptyBody) {
			return fmt.Sprintf("message: schema=%s: %v", e.Schema, e.Err)
		}
		return fmt.Sprintf("message: schema=%s id=%d: %v", e.Schema, e.ID, e.Err)
	}
	return fmt.Sprintf("message: schema=%s id=%d name=%s: %v", e.Schema, e.ID, e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError reports a message whose fields could not be written.
type EncodeError struct {
	Schema string
	ID     ID
	Name   string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("message: schema=%s id=%d name=%s: encode: %v", e.Schema, e.ID, e.Name, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// ConstructionError reports a message value whose fields contradict each
// other, such as an accepted connection without a worker id.
type ConstructionError struct {
	Schema string
	Name   string
	Reason string
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("message: schema=%s name=%s: %s", e.Schema, e.Name, e.Reason)
}

func (e *ConstructionError) Unwrap() error {
	return ErrInvalidMessage
}
