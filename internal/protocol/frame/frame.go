// Package frame splits a byte stream into length-prefixed message
// bodies and hands each body to a message schema.
//
// A frame is a little-endian u32 body length followed by exactly that
// many bytes. The length excludes the prefix itself.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/danmuck/poolwire/internal/observability"
	"github.com/danmuck/poolwire/internal/protocol/message"
	"github.com/rs/zerolog/log"
)

// PrefixLen is the size of the length prefix.
const PrefixLen = 4

var ErrFrameTooLarge = errors.New("frame: frame too large")

// SizeError reports a length prefix above the codec limit. The stream
// cannot be resynchronized after one; the connection should be closed.
type SizeError struct {
	Schema string
	Length uint64
	Max    uint32
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s: %s: length %d exceeds max %d", ErrFrameTooLarge, e.Schema, e.Length, e.Max)
}

func (e *SizeError) Unwrap() error {
	return ErrFrameTooLarge
}

// Outcome is the state DecodeNext leaves the buffer in.
type Outcome uint8

const (
	// NeedMoreBytes leaves the buffer untouched.
	NeedMoreBytes Outcome = iota
	// Ready consumed exactly one frame.
	Ready
	// Failed consumed nothing for a size error and the whole frame for a
	// schema error.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NeedMoreBytes:
		return "need-more-bytes"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Decoded is the result of one DecodeNext call.
type Decoded[M message.Message] struct {
	Outcome Outcome
	Message M
	// Reserve is how many more bytes the pending frame needs.
	Reserve int
	Err     error
}

// Codec frames one direction of one protocol generation.
type Codec[M message.Message] struct {
	schema       message.Schema[M]
	maxFrameSize uint32
}

func New[M message.Message](schema message.Schema[M], maxFrameSize uint32) *Codec[M] {
	return &Codec[M]{schema: schema, maxFrameSize: maxFrameSize}
}

func (c *Codec[M]) Schema() message.Schema[M] {
	return c.schema
}

func (c *Codec[M]) MaxFrameSize() uint32 {
	return c.maxFrameSize
}

// DecodeNext takes at most one frame off the front of src.
//
// The length limit is checked as soon as the prefix is readable, so an
// oversized frame is rejected before its body arrives.
func (c *Codec[M]) DecodeNext(src *bytes.Buffer) Decoded[M] {
	buf := src.Bytes()
	if len(buf) < PrefixLen {
		reserve := PrefixLen - len(buf)
		src.Grow(reserve)
		return Decoded[M]{Outcome: NeedMoreBytes, Reserve: reserve}
	}

	length := binary.LittleEndian.Uint32(buf)
	if length > c.maxFrameSize {
		err := &SizeError{Schema: c.schema.Name(), Length: uint64(length), Max: c.maxFrameSize}
		observability.RecordFrameError(c.schema.Name(), "size")
		log.Warn().Str("schema", c.schema.Name()).Uint32("length", length).Uint32("max", c.maxFrameSize).Msg("frame rejected")
		return Decoded[M]{Outcome: Failed, Err: err}
	}

	total := PrefixLen + int(length)
	if len(buf) < total {
		reserve := total - len(buf)
		src.Grow(reserve)
		return Decoded[M]{Outcome: NeedMoreBytes, Reserve: reserve}
	}

	body := src.Next(total)[PrefixLen:]
	m, err := c.schema.Decode(body)
	if err != nil {
		observability.RecordFrameError(c.schema.Name(), "decode")
		ev := log.Warn().Str("schema", c.schema.Name()).Uint32("length", length)
		var de *message.DecodeError
		if errors.As(err, &de) && len(body) > 0 {
			ev = ev.Uint8("id", uint8(de.ID))
		}
		ev.Err(err).Msg("frame skipped")
		return Decoded[M]{Outcome: Failed, Err: err}
	}

	observability.RecordFrameDecoded(c.schema.Name(), m.Name(), len(body))
	log.Debug().Str("schema", c.schema.Name()).Str("variant", m.Name()).Uint32("length", length).Msg("frame decoded")
	return Decoded[M]{Outcome: Ready, Message: m}
}

// Encode appends one complete frame for m to dst. Nothing is written
// when m fails to serialize.
func (c *Codec[M]) Encode(dst *bytes.Buffer, m M) error {
	b, err := c.AppendFrame(dst.AvailableBuffer(), m)
	if err != nil {
		return err
	}
	dst.Write(b)
	return nil
}

// AppendFrame appends the length prefix and body of m to dst. On failure
// dst is returned at its original length.
func (c *Codec[M]) AppendFrame(dst []byte, m M) ([]byte, error) {
	n := len(dst)
	out, err := c.schema.Append(append(dst, 0, 0, 0, 0), m)
	if err != nil {
		observability.RecordFrameError(c.schema.Name(), "encode")
		return dst[:n], err
	}
	bodyLen := len(out) - n - PrefixLen
	if uint64(bodyLen) > math.MaxUint32 {
		observability.RecordFrameError(c.schema.Name(), "size")
		return dst[:n], &SizeError{Schema: c.schema.Name(), Length: uint64(bodyLen), Max: math.MaxUint32}
	}
	binary.LittleEndian.PutUint32(out[n:], uint32(bodyLen))
	observability.RecordFrameEncoded(c.schema.Name(), m.Name(), bodyLen)
	return out, nil
}
