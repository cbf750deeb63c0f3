// Package message defines what every pool message schema shares: the
// one-byte message id, the Schema contract, the variant dispatch table
// and the structural error types.
package message

import (
	"errors"

	"github.com/danmuck/poolwire/internal/protocol/wire"
)

// ID is the first byte of every frame body.
type ID uint8

// Message is one decoded protocol unit.
type Message interface {
	ID() ID
	Name() string
}

// Schema encodes and decodes one direction of one protocol generation.
type Schema[M Message] interface {
	Name() string
	// Append writes the id byte and fields of m to dst. On failure dst is
	// returned at its original length.
	Append(dst []byte, m M) ([]byte, error)
	// Decode parses one complete frame body.
	Decode(body []byte) (M, error)
}

// WorkerType identifies the kind of client on a connection.
type WorkerType uint8

const (
	WorkerTypeWorker WorkerType = iota
	WorkerTypeAgent
	WorkerTypeWorkerTrial
	WorkerTypeAgentTrial
)

func (t WorkerType) String() string {
	switch t {
	case WorkerTypeWorker:
		return "worker"
	case WorkerTypeAgent:
		return "agent"
	case WorkerTypeWorkerTrial:
		return "worker-trial"
	case WorkerTypeAgentTrial:
		return "agent-trial"
	default:
		return "unknown"
	}
}

// Variant decodes the fields that follow one message id.
type Variant[M Message] struct {
	Name   string
	Decode func(r *wire.Reader) (M, error)
}

// Table maps the ids of one schema to their variants.
type Table[M Message] map[ID]Variant[M]

// Decode dispatches body on its id byte. Every layout must consume the
// body exactly; leftover bytes are a structural error.
func (t Table[M]) Decode(schema string, body []byte) (M, error) {
	var zero M
	if len(body) == 0 {
		return zero, &DecodeError{Schema: schema, Err: ErrEmptyBody}
	}
	id := ID(body[0])
	v, ok := t[id]
	if !ok {
		return zero, &DecodeError{Schema: schema, ID: id, Err: ErrUnknownID}
	}
	r := wire.NewReader(body[1:])
	m, err := v.Decode(r)
	if err == nil {
		err = r.Done()
	}
	if err != nil {
		return zero, &DecodeError{Schema: schema, ID: id, Name: v.Name, Err: err}
	}
	return m, nil
}

// Append writes the id of m followed by whatever fields writes.
func Append(schema string, dst []byte, m Message, fields func(w *wire.Writer) error) ([]byte, error) {
	n := len(dst)
	w := wire.NewWriter(append(dst, byte(m.ID())))
	if err := fields(w); err != nil {
		w.Fail(err)
	}
	out, err := w.Bytes()
	if err != nil {
		var ce *ConstructionError
		if errors.As(err, &ce) {
			return dst[:n], err
		}
		return dst[:n], &EncodeError{Schema: schema, ID: m.ID(), Name: m.Name(), Err: err}
	}
	return out, nil
}

// Erase adapts a typed schema so callers can pick a generation at run
// time and still work with Message values.
func Erase[M Message](s Schema[M]) Schema[Message] {
	return erased[M]{s: s}
}

type erased[M Message] struct {
	s Schema[M]
}

func (e erased[M]) Name() string {
	return e.s.Name()
}

func (e erased[M]) Append(dst []byte, m Message) ([]byte, error) {
	if m == nil {
		return dst, ErrNilMessage
	}
	typed, ok := m.(M)
	if !ok {
		return dst, &EncodeError{Schema: e.s.Name(), ID: m.ID(), Name: m.Name(), Err: ErrWrongSchema}
	}
	return e.s.Append(dst, typed)
}

func (e erased[M]) Decode(body []byte) (Message, error) {
	m, err := e.s.Decode(body)
	if err != nil {
		return nil, err
	}
	return m, nil
}
