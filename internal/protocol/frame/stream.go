package frame

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/danmuck/poolwire/internal/protocol/message"
)

// Reader pulls frames off an io.Reader and returns their messages in
// arrival order. It never reads past the frame it is assembling.
//
// A size error or a read failure is sticky. A schema error only skips
// the offending frame; the next call continues with the one after it.
type Reader[M message.Message] struct {
	codec *Codec[M]
	src   io.Reader
	buf   bytes.Buffer
	err   error
}

func NewReader[M message.Message](codec *Codec[M], src io.Reader) *Reader[M] {
	return &Reader[M]{codec: codec, src: src}
}

// Next blocks until one message is decoded. It returns io.EOF only when
// the stream ends on a frame boundary.
func (r *Reader[M]) Next() (M, error) {
	var zero M
	for {
		if r.err != nil {
			return zero, r.err
		}
		d := r.codec.DecodeNext(&r.buf)
		switch d.Outcome {
		case Ready:
			return d.Message, nil
		case Failed:
			var se *SizeError
			if errors.As(d.Err, &se) {
				r.err = d.Err
			}
			return zero, d.Err
		}
		if err := r.fill(d.Reserve); err != nil {
			r.err = err
		}
	}
}

func (r *Reader[M]) fill(n int) error {
	r.buf.Grow(n)
	p := r.buf.AvailableBuffer()[:n]
	got, err := io.ReadFull(r.src, p)
	r.buf.Write(p[:got])
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && r.buf.Len() == 0:
		return io.EOF
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return io.ErrUnexpectedEOF
	default:
		return err
	}
}

// Writer encodes messages onto an io.Writer with one Write per frame.
// It is safe for concurrent use.
type Writer[M message.Message] struct {
	codec *Codec[M]
	mu    sync.Mutex
	dst   io.Writer
	buf   []byte
}

func NewWriter[M message.Message](codec *Codec[M], dst io.Writer) *Writer[M] {
	return &Writer[M]{codec: codec, dst: dst}
}

func (w *Writer[M]) WriteMessage(m M) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.codec.AppendFrame(w.buf[:0], m)
	if err != nil {
		return err
	}
	w.buf = b
	_, err = w.dst.Write(b)
	return err
}
