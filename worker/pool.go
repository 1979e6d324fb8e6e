// Package worker dispatches work to a bounded pool of background goroutines and posts
// completion callbacks back to the loop that owns the pool.
package worker

import (
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"github.com/eak1mov/go-tileflow/runloop"
)

var ErrClosed = errors.New("tileflow: worker pool closed")

// Pool is a fixed number of goroutines draining one FIFO queue.
//
// Send never blocks: when every worker is busy the work waits in the queue.
type Pool struct {
	loop   *runloop.Loop
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Request
	closed  bool
	workers int
	wg      sync.WaitGroup
}

type poolConfig struct {
	Workers int
	Logger  *slog.Logger
}

type Option func(*poolConfig)

// WithWorkers sets the number of worker goroutines. Values <= 0 select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *poolConfig) { c.Workers = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *poolConfig) { c.Logger = logger }
}

// New starts a pool whose completion callbacks run on loop.
func New(loop *runloop.Loop, opts ...Option) *Pool {
	config := poolConfig{
		Logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Workers <= 0 {
		config.Workers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		loop:    loop,
		logger:  config.Logger,
		workers: config.Workers,
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(config.Workers)
	for i := range config.Workers {
		go p.worker(i)
	}
	p.logger.Debug("tileflow: worker pool started", "workers", config.Workers)
	return p
}

// Send queues work for execution on a worker goroutine. Once work returns, after is
// invoked on the loop unless the returned Request has been canceled first.
//
// Sending to a closed pool returns a request that is already canceled.
func (p *Pool) Send(work func(), after func()) *Request {
	r := newRequest(work, after)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		r.canceled.Store(true)
		r.state.Store(stateSkipped)
		p.logger.Warn("tileflow: work sent to closed pool", "error", ErrClosed)
		return r
	}
	p.queue = append(p.queue, r)
	p.mu.Unlock()
	p.cond.Signal()

	return r
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		r := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		if r.run() {
			p.loop.Invoke(r.complete)
		} else {
			p.logger.Debug("tileflow: skipped canceled work", "worker", id)
		}
	}
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Queued returns the number of requests waiting for a worker.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close stops accepting work, lets the workers finish what is queued and waits for them.
// Close is safe to call multiple times.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
	p.logger.Debug("tileflow: worker pool stopped")
}
