package payload

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/poolwire/internal/observability"
	"github.com/danmuck/poolwire/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus"
)

var errBadBlob = errors.New("blob: bad encoding")

// blob encodes as [tag][data...]. Tag 0xff refuses to encode.
type blob struct {
	Tag  uint8
	Data []byte
}

func (b *blob) MarshalBinary() ([]byte, error) {
	if b.Tag == 0xff {
		return nil, errBadBlob
	}
	return append([]byte{b.Tag}, b.Data...), nil
}

func (b *blob) UnmarshalBinary(p []byte) error {
	if len(p) < 1 {
		return errBadBlob
	}
	b.Tag = p[0]
	b.Data = append([]byte{}, p[1:]...)
	return nil
}

type deferredBlob = Deferred[blob, *blob]

func TestMaterializedAndRawSerializeIdentically(t *testing.T) {
	testlog.Start(t)
	obj := blob{Tag: 7, Data: []byte("proof-bytes")}

	direct, err := Materialized[blob, *blob](obj).SerializeBlocking()
	if err != nil {
		t.Fatalf("serialize materialized: %v", err)
	}
	viaRaw, err := Raw[blob, *blob](direct).SerializeBlocking()
	if err != nil {
		t.Fatalf("serialize raw: %v", err)
	}
	if !bytes.Equal(direct, viaRaw) {
		t.Fatalf("raw passthrough changed bytes: %x != %x", viaRaw, direct)
	}
}

func TestBlockingAndAsyncDeserializeAgree(t *testing.T) {
	testlog.Start(t)
	pool := NewPool(PoolConfig{Workers: 2, QueueDepth: 4})
	defer pool.Close()

	raw := []byte{3, 'a', 'b', 'c'}
	d := Raw[blob, *blob](raw)

	blocking, err := d.DeserializeBlocking()
	if err != nil {
		t.Fatalf("deserialize blocking: %v", err)
	}
	async, err := d.DeserializeAsync(context.Background(), pool).Wait(context.Background())
	if err != nil {
		t.Fatalf("deserialize async: %v", err)
	}
	if blocking.Tag != async.Tag || !bytes.Equal(blocking.Data, async.Data) {
		t.Fatalf("blocking=%+v async=%+v", blocking, async)
	}
	if blocking.Tag != 3 || string(blocking.Data) != "abc" {
		t.Fatalf("unexpected object: %+v", blocking)
	}
}

func TestSerializeAsyncMaterializedRunsOnPool(t *testing.T) {
	testlog.Start(t)
	pool := NewPool(PoolConfig{Workers: 1, QueueDepth: 1})
	defer pool.Close()

	d := Materialized[blob, *blob](blob{Tag: 1, Data: []byte{2, 3}})
	got, err := d.SerializeAsync(context.Background(), pool).Wait(context.Background())
	if err != nil {
		t.Fatalf("serialize async: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("unexpected bytes: %x", got)
	}
}

func TestRawPassthroughNeverDispatches(t *testing.T) {
	testlog.Start(t)
	pool := NewPool(PoolConfig{Workers: 1})
	pool.Close()

	raw := []byte{9, 9}
	got, err := Raw[blob, *blob](raw).SerializeAsync(context.Background(), pool).Wait(context.Background())
	if err != nil {
		t.Fatalf("raw serialize async on closed pool: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("unexpected bytes: %x", got)
	}

	obj, err := Materialized[blob, *blob](blob{Tag: 4}).DeserializeAsync(context.Background(), pool).Wait(context.Background())
	if err != nil {
		t.Fatalf("materialized deserialize async on closed pool: %v", err)
	}
	if obj.Tag != 4 {
		t.Fatalf("unexpected object: %+v", obj)
	}

	_, err = Materialized[blob, *blob](blob{Tag: 4}).SerializeAsync(context.Background(), pool).Wait(context.Background())
	if !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed for dispatched work, got %v", err)
	}
}

func TestDeserializeErrorIsTyped(t *testing.T) {
	testlog.Start(t)
	_, err := Raw[blob, *blob](nil).DeserializeBlocking()
	var de *DeserializeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeserializeError, got %T %v", err, err)
	}
	if !errors.Is(err, errBadBlob) {
		t.Fatalf("expected wrapped codec error, got %v", err)
	}
	if de.Len != 0 {
		t.Fatalf("unexpected length: %d", de.Len)
	}
}

func TestSerializeErrorIsTyped(t *testing.T) {
	testlog.Start(t)
	d := Materialized[blob, *blob](blob{Tag: 0xff})
	_, err := d.SerializeBlocking()
	var se *SerializeError
	if !errors.As(err, &se) || !errors.Is(err, errBadBlob) {
		t.Fatalf("expected SerializeError wrapping codec error, got %v", err)
	}

	dst := []byte{1, 2}
	out, err := d.AppendTo(dst)
	if err == nil {
		t.Fatalf("expected append error")
	}
	if !bytes.Equal(out, []byte{1, 2}) {
		t.Fatalf("append must leave dst untouched on error: %x", out)
	}
}

func TestMaterializeReplacesRaw(t *testing.T) {
	testlog.Start(t)
	var d deferredBlob = Raw[blob, *blob]([]byte{5, 1})
	if !d.IsRaw() {
		t.Fatalf("expected raw state")
	}
	obj, err := d.Materialize()
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if d.IsRaw() || obj.Tag != 5 {
		t.Fatalf("unexpected state after materialize: raw=%v obj=%+v", d.IsRaw(), obj)
	}
}

func TestPoolSubmitAppliesBackPressure(t *testing.T) {
	testlog.Start(t)
	pool := NewPool(PoolConfig{Workers: 1, QueueDepth: 0})
	defer pool.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	if err := pool.Submit(context.Background(), func() {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, func() {})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while worker busy, got %v", err)
	}
	close(release)
}

func TestGoRecoversPanics(t *testing.T) {
	testlog.Start(t)
	pool := NewPool(PoolConfig{Workers: 1})
	defer pool.Close()

	_, err := Go(context.Background(), pool, "deserialize", func() (int, error) {
		panic("codec bug")
	}).Wait(context.Background())
	if !errors.Is(err, ErrTaskPanic) {
		t.Fatalf("expected ErrTaskPanic, got %v", err)
	}
}

func TestFutureWaitHonorsContext(t *testing.T) {
	testlog.Start(t)
	pool := NewPool(PoolConfig{Workers: 1})
	defer pool.Close()

	release := make(chan struct{})
	f := Go(context.Background(), pool, "serialize", func() (int, error) {
		<-release
		return 1, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(release)
	v, err := f.Wait(context.Background())
	if err != nil || v != 1 {
		t.Fatalf("abandoned task should still complete: v=%d err=%v", v, err)
	}
}

func TestDefaultPoolIsReplaceable(t *testing.T) {
	testlog.Start(t)
	p := NewPool(PoolConfig{Workers: 1, QueueDepth: 1})
	prev := SetDefault(p)
	defer func() {
		SetDefault(prev)
		p.Close()
	}()
	if Default() != p {
		t.Fatalf("expected replaced default pool")
	}
	got, err := Raw[blob, *blob]([]byte{8}).DeserializeAsync(context.Background(), nil).Wait(context.Background())
	if err != nil || got.Tag != 8 {
		t.Fatalf("nil pool should use default: got=%+v err=%v", got, err)
	}
}

func queuedGauge(t *testing.T) float64 {
	t.Helper()
	observability.RegisterMetrics()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Errorf("gather metrics: %v", err)
		return 0
	}
	for _, f := range families {
		if f.GetName() == "poolwire_payload_pool_queued" && len(f.GetMetric()) == 1 {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Errorf("queued gauge not registered")
	return 0
}

func TestPoolQueuedGaugeNeverUnderflows(t *testing.T) {
	testlog.Start(t)
	base := queuedGauge(t)
	pool := NewPool(PoolConfig{Workers: 4, QueueDepth: 16})

	var mu sync.Mutex
	lowest := base
	for i := 0; i < 64; i++ {
		if err := pool.Submit(context.Background(), func() {
			v := queuedGauge(t)
			mu.Lock()
			if v < lowest {
				lowest = v
			}
			mu.Unlock()
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	pool.Close()

	if lowest < base {
		t.Fatalf("queued gauge dipped to %v below baseline %v", lowest, base)
	}
	if got := queuedGauge(t); got != base {
		t.Fatalf("queued gauge did not settle: got=%v want=%v", got, base)
	}
}

func TestPoolCloseWakesBlockedSubmitters(t *testing.T) {
	testlog.Start(t)
	pool := NewPool(PoolConfig{Workers: 1, QueueDepth: 0})

	release := make(chan struct{})
	started := make(chan struct{})
	if err := pool.Submit(context.Background(), func() {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	blocked := make(chan error, 1)
	go func() {
		blocked <- pool.Submit(context.Background(), func() {})
	}()

	closed := make(chan struct{})
	go func() {
		pool.Close()
		close(closed)
	}()

	select {
	case err := <-blocked:
		if !errors.Is(err, ErrPoolClosed) {
			t.Fatalf("expected ErrPoolClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("blocked submitter was not woken by Close")
	}
	close(release)
	<-closed

	if err := pool.Submit(context.Background(), func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed after close, got %v", err)
	}
}

func TestPoolRunsAtMostWorkersAtOnce(t *testing.T) {
	testlog.Start(t)
	const workers = 3
	pool := NewPool(PoolConfig{Workers: workers, QueueDepth: 32})

	var mu sync.Mutex
	running, peak := 0, 0
	for i := 0; i < 24; i++ {
		if err := pool.Submit(context.Background(), func() {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	pool.Close()
	if peak > workers {
		t.Fatalf("peak concurrency %d exceeds %d workers", peak, workers)
	}
}
