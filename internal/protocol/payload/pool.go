package payload

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/danmuck/poolwire/internal/observability"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// PoolConfig bounds the worker pool.
type PoolConfig struct {
	Workers    int
	QueueDepth int
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:    runtime.GOMAXPROCS(0),
		QueueDepth: 256,
	}
}

// Pool runs payload conversions on at most Workers goroutines at once.
// Up to QueueDepth more tasks may be admitted and wait for a worker;
// Submit blocks beyond that.
type Pool struct {
	admit *semaphore.Weighted
	run   *semaphore.Weighted

	mu      sync.RWMutex
	closing bool
	closed  context.Context
	stop    context.CancelFunc
	once    sync.Once
	wg      sync.WaitGroup
}

func NewPool(cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueDepth < 0 {
		cfg.QueueDepth = 0
	}
	closed, cancel := context.WithCancel(context.Background())
	p := &Pool{
		admit:  semaphore.NewWeighted(int64(cfg.Workers + cfg.QueueDepth)),
		run:    semaphore.NewWeighted(int64(cfg.Workers)),
		closed: closed,
		stop:   cancel,
	}
	log.Debug().Int("workers", cfg.Workers).Int("queue_depth", cfg.QueueDepth).Msg("payload pool started")
	return p
}

// Submit admits fn, waiting for room until ctx is done or the pool closes.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	p.mu.RLock()
	if p.closing {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	if err := p.acquire(ctx); err != nil {
		p.wg.Done()
		return err
	}

	// Raised before the task goroutine starts; the gauge never dips below zero.
	observability.RecordPoolQueued(1)
	go func() {
		defer p.wg.Done()
		defer p.admit.Release(1)
		// Background never cancels, so Acquire only returns once a worker slot frees.
		_ = p.run.Acquire(context.Background(), 1)
		defer p.run.Release(1)
		observability.RecordPoolQueued(-1)
		fn()
	}()
	return nil
}

func (p *Pool) acquire(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(p.closed, func() { cancel(ErrPoolClosed) })
	defer stop()

	if err := p.admit.Acquire(ctx, 1); err != nil {
		if errors.Is(context.Cause(ctx), ErrPoolClosed) {
			return ErrPoolClosed
		}
		return err
	}
	return nil
}

// Close stops admitting work, wakes blocked submitters with
// ErrPoolClosed, and waits for every admitted task to finish.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closing = true
		p.mu.Unlock()
		p.stop()
		p.wg.Wait()
		log.Debug().Msg("payload pool stopped")
	})
}

var (
	defaultMu   sync.Mutex
	defaultPool *Pool
)

// Default returns the process-wide pool, starting it on first use.
func Default() *Pool {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPool == nil {
		defaultPool = NewPool(DefaultPoolConfig())
	}
	return defaultPool
}

// SetDefault replaces the process-wide pool and returns the previous one,
// which the caller owns and should Close.
func SetDefault(p *Pool) *Pool {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultPool
	defaultPool = p
	return prev
}

// Future is the pending result of a dispatched task.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Resolved returns a future that is already complete.
func Resolved[T any](v T, err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), val: v, err: err}
	close(f.done)
	return f
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task completes or ctx is done. Abandoning the
// wait does not cancel the task.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Go runs fn on pool and returns its future. If the task cannot be queued
// the future resolves with that error.
func Go[T any](ctx context.Context, pool *Pool, op string, fn func() (T, error)) *Future[T] {
	if pool == nil {
		pool = Default()
	}
	f := &Future[T]{done: make(chan struct{})}
	task := func() {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("%w: %s: %v", ErrTaskPanic, op, r)
				log.Error().Str("op", op).Interface("panic", r).Msg("payload task panicked")
			}
			observability.RecordPoolTask(op, time.Since(start))
			close(f.done)
		}()
		f.val, f.err = fn()
	}
	if err := pool.Submit(ctx, task); err != nil {
		var zero T
		return Resolved(zero, err)
	}
	return f
}
