// Package wire holds the positional field primitives shared by every
// message layout: little-endian fixed-width integers, 0/1 discriminants,
// length-prefixed strings, fixed-size domain objects and the
// remainder-consuming tail field.
//
// Both Writer and Reader keep a sticky error. A remainder field closes
// the layout: any field written or read after it fails with
// ErrFieldAfterRest.
package wire

import (
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrShortBuffer         = errors.New("wire: short buffer")
	ErrFieldAfterRest      = errors.New("wire: field after remainder")
	ErrTrailingBytes       = errors.New("wire: trailing bytes")
	ErrInvalidDiscriminant = errors.New("wire: invalid discriminant")
	ErrInvalidText         = errors.New("wire: invalid utf-8 text")
	ErrInvalidLength       = errors.New("wire: invalid length")
)

// Writer appends fields to a byte slice in declared order.
type Writer struct {
	buf  []byte
	rest bool
	err  error
}

func NewWriter(dst []byte) *Writer {
	return &Writer{buf: dst}
}

func (w *Writer) ok() bool {
	if w.err != nil {
		return false
	}
	if w.rest {
		w.err = ErrFieldAfterRest
		return false
	}
	return true
}

func (w *Writer) U8(v uint8) {
	if w.ok() {
		w.buf = append(w.buf, v)
	}
}

func (w *Writer) U16(v uint16) {
	if w.ok() {
		w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	}
}

func (w *Writer) U32(v uint32) {
	if w.ok() {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	}
}

func (w *Writer) U64(v uint64) {
	if w.ok() {
		w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	}
}

// Bool writes a one byte 0/1 discriminant.
func (w *Writer) Bool(v bool) {
	b := uint8(0)
	if v {
		b = 1
	}
	w.U8(b)
}

// Fixed writes b verbatim. The reader must know its size from the layout.
func (w *Writer) Fixed(b []byte) {
	if w.ok() {
		w.buf = append(w.buf, b...)
	}
}

// String writes a u64 length prefix followed by the UTF-8 bytes of s.
func (w *Writer) String(s string) {
	if !utf8.ValidString(s) {
		w.Fail(ErrInvalidText)
		return
	}
	w.U64(uint64(len(s)))
	if w.ok() {
		w.buf = append(w.buf, s...)
	}
}

// Object writes m through its own codec with no framing of its own.
func (w *Writer) Object(m encoding.BinaryMarshaler) {
	if !w.ok() {
		return
	}
	b, err := m.MarshalBinary()
	if err != nil {
		w.err = err
		return
	}
	w.buf = append(w.buf, b...)
}

// Rest writes the tail field. Nothing may follow it.
func (w *Writer) Rest(b []byte) {
	if w.ok() {
		w.buf = append(w.buf, b...)
		w.rest = true
	}
}

// RestString writes s as the tail field.
func (w *Writer) RestString(s string) {
	if !utf8.ValidString(s) {
		w.Fail(ErrInvalidText)
		return
	}
	w.Rest([]byte(s))
}

// RestFunc lets a deferred payload append itself as the tail field.
func (w *Writer) RestFunc(fn func(dst []byte) ([]byte, error)) {
	if !w.ok() {
		return
	}
	out, err := fn(w.buf)
	if err != nil {
		w.err = err
		return
	}
	w.buf = out
	w.rest = true
}

// Fail records err unless an earlier error is already set.
func (w *Writer) Fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *Writer) Err() error {
	return w.err
}

// Bytes returns the written slice and the first failure.
func (w *Writer) Bytes() ([]byte, error) {
	return w.buf, w.err
}

// Reader slices fields positionally from a message body.
type Reader struct {
	buf  []byte
	off  int
	rest bool
	err  error
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.rest {
		r.err = ErrFieldAfterRest
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, r.off, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) U64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Bool reads a 0/1 discriminant; any other value fails.
func (r *Reader) Bool() bool {
	b := r.take(1)
	if b == nil {
		return false
	}
	switch b[0] {
	case 0:
		return false
	case 1:
		return true
	default:
		r.err = fmt.Errorf("%w: %d", ErrInvalidDiscriminant, b[0])
		return false
	}
}

// Fixed copies the next len(dst) bytes into dst.
func (r *Reader) Fixed(dst []byte) {
	if b := r.take(len(dst)); b != nil {
		copy(dst, b)
	}
}

// String reads a u64 length-prefixed UTF-8 string.
func (r *Reader) String() string {
	n := r.U64()
	if r.err != nil {
		return ""
	}
	if n > uint64(len(r.buf)-r.off) {
		r.err = fmt.Errorf("%w: string length %d exceeds %d remaining", ErrInvalidLength, n, len(r.buf)-r.off)
		return ""
	}
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	if !utf8.Valid(b) {
		r.err = ErrInvalidText
		return ""
	}
	return string(b)
}

// Object decodes the next n bytes through u's own codec.
func (r *Reader) Object(n int, u encoding.BinaryUnmarshaler) {
	b := r.take(n)
	if b == nil {
		return
	}
	if err := u.UnmarshalBinary(b); err != nil {
		r.err = err
	}
}

// Rest consumes every remaining byte. The result is a copy.
func (r *Reader) Rest() []byte {
	b := r.take(len(r.buf) - r.off)
	if r.err != nil {
		return nil
	}
	r.rest = true
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// RestString consumes every remaining byte as UTF-8 text.
func (r *Reader) RestString() string {
	b := r.take(len(r.buf) - r.off)
	if r.err != nil {
		return ""
	}
	r.rest = true
	if !utf8.Valid(b) {
		r.err = ErrInvalidText
		return ""
	}
	return string(b)
}

func (r *Reader) Err() error {
	return r.err
}

// Done returns the first read failure, or ErrTrailingBytes when the
// layout ended before the body did.
func (r *Reader) Done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		return fmt.Errorf("%w: %d unread", ErrTrailingBytes, len(r.buf)-r.off)
	}
	return nil
}
