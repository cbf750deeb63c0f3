// Package payload carries expensive domain objects inside messages
// either as a materialized value or as the raw bytes that arrived on the
// wire, converting between the two only when asked.
//
// The async entry points run the conversion on a bounded, process-wide
// Pool so the goroutine driving a connection is never stalled by a large
// proof or block template.
package payload

import (
	"context"
	"encoding"
	"fmt"
)

// Object is the capability a payload type must provide: its pointer
// encodes to and decodes from its canonical byte form.
//
// For any value v, decoding the bytes of v must yield a value equal to v.
type Object[T any] interface {
	*T
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Deferred holds a T either materialized or as raw wire bytes.
// The zero value is a materialized zero T.
//
// A raw Deferred is assumed to already be in final wire form for T; it
// is passed through without re-encoding.
type Deferred[T any, P Object[T]] struct {
	obj   T
	raw   []byte
	isRaw bool
}

// Materialized wraps an already decoded object.
func Materialized[T any, P Object[T]](v T) Deferred[T, P] {
	return Deferred[T, P]{obj: v}
}

// Raw wraps undecoded bytes. b is retained, not copied.
func Raw[T any, P Object[T]](b []byte) Deferred[T, P] {
	if b == nil {
		b = []byte{}
	}
	return Deferred[T, P]{raw: b, isRaw: true}
}

func (d Deferred[T, P]) IsRaw() bool {
	return d.isRaw
}

// SerializeBlocking returns the wire bytes, encoding on the calling goroutine.
func (d Deferred[T, P]) SerializeBlocking() ([]byte, error) {
	if d.isRaw {
		return d.raw, nil
	}
	return marshal[T, P](d.obj)
}

// AppendTo appends the wire bytes to dst.
func (d Deferred[T, P]) AppendTo(dst []byte) ([]byte, error) {
	b, err := d.SerializeBlocking()
	if err != nil {
		return dst, err
	}
	return append(dst, b...), nil
}

// SerializeAsync encodes a materialized object on pool. A raw payload
// resolves immediately without dispatch. A nil pool means Default().
func (d Deferred[T, P]) SerializeAsync(ctx context.Context, pool *Pool) *Future[[]byte] {
	if d.isRaw {
		return Resolved(d.raw, nil)
	}
	obj := d.obj
	return Go(ctx, pool, "serialize", func() ([]byte, error) {
		return marshal[T, P](obj)
	})
}

// DeserializeBlocking returns the object, decoding raw bytes on the
// calling goroutine.
func (d Deferred[T, P]) DeserializeBlocking() (T, error) {
	if !d.isRaw {
		return d.obj, nil
	}
	return unmarshal[T, P](d.raw)
}

// DeserializeAsync decodes raw bytes on pool. A materialized payload
// resolves immediately without dispatch. A nil pool means Default().
func (d Deferred[T, P]) DeserializeAsync(ctx context.Context, pool *Pool) *Future[T] {
	if !d.isRaw {
		return Resolved(d.obj, nil)
	}
	raw := d.raw
	return Go(ctx, pool, "deserialize", func() (T, error) {
		return unmarshal[T, P](raw)
	})
}

// Materialize decodes a raw payload in place and returns the object.
func (d *Deferred[T, P]) Materialize() (T, error) {
	v, err := d.DeserializeBlocking()
	if err != nil {
		return v, err
	}
	*d = Deferred[T, P]{obj: v}
	return v, nil
}

func (d Deferred[T, P]) String() string {
	if d.isRaw {
		return fmt.Sprintf("Raw(%T, %d bytes)", d.obj, len(d.raw))
	}
	return fmt.Sprintf("Materialized(%T)", d.obj)
}

func marshal[T any, P Object[T]](v T) ([]byte, error) {
	b, err := P(&v).MarshalBinary()
	if err != nil {
		return nil, &SerializeError{Type: fmt.Sprintf("%T", v), Err: err}
	}
	return b, nil
}

func unmarshal[T any, P Object[T]](b []byte) (T, error) {
	var v T
	if err := P(&v).UnmarshalBinary(b); err != nil {
		var zero T
		return zero, &DeserializeError{Type: fmt.Sprintf("%T", v), Len: len(b), Err: err}
	}
	return v, nil
}
