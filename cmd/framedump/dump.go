package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/poolwire/internal/chain"
	"github.com/danmuck/poolwire/internal/config"
	"github.com/danmuck/poolwire/internal/protocol/frame"
	"github.com/danmuck/poolwire/internal/protocol/message"
	v1 "github.com/danmuck/poolwire/internal/protocol/message/v1"
	v2 "github.com/danmuck/poolwire/internal/protocol/message/v2"
	"github.com/danmuck/poolwire/internal/protocol/payload"
	"github.com/rs/zerolog"
)

// dump decodes every frame in src and returns how many were logged.
func dump(src io.Reader, opts options, logger zerolog.Logger) (int, error) {
	cfg, err := opts.resolve()
	if err != nil {
		return 0, err
	}
	w, err := config.Wire(cfg)
	if err != nil {
		return 0, err
	}
	defer w.Pool.Close()
	defer payload.SetDefault(nil)

	ctx := context.Background()
	r := frame.NewReader(w.Link.Inbound, bufio.NewReader(src))
	for n := 0; ; n++ {
		m, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("frame %d: %w", n, err)
		}

		ev := logger.Info().
			Int("frame", n).
			Str("schema", w.Link.Inbound.Schema().Name()).
			Str("variant", m.Name()).
			Uint8("id", uint8(m.ID()))
		for _, p := range payloadsOf(m) {
			b, err := p.bytes()
			if err != nil {
				return n, fmt.Errorf("frame %d: %s: %w", n, p.name, err)
			}
			ev = ev.Str(p.name, chain.Sum(b).Short()).Int(p.name+"_len", len(b))
			if opts.Materialize {
				if err := p.check(ctx); err != nil {
					return n, fmt.Errorf("frame %d: %s: %w", n, p.name, err)
				}
			}
		}
		ev.Msg("frame")
	}
}

type payloadField struct {
	name  string
	bytes func() ([]byte, error)
	check func(ctx context.Context) error
}

func field[T any, P payload.Object[T]](name string, d payload.Deferred[T, P]) payloadField {
	return payloadField{
		name:  name,
		bytes: d.SerializeBlocking,
		check: func(ctx context.Context) error {
			_, err := d.DeserializeAsync(ctx, nil).Wait(ctx)
			return err
		},
	}
}

func payloadsOf(m message.Message) []payloadField {
	switch m := m.(type) {
	case v1.WorkerJob:
		return []payloadField{field("template", m.Template)}
	case v1.ShareBlock:
		return []payloadField{field("proof", m.Proof)}
	case v2.Notify:
		return []payloadField{field("challenge", m.Challenge)}
	case v2.SubmitSolution:
		return []payloadField{field("solution", m.Solution)}
	default:
		return nil
	}
}
