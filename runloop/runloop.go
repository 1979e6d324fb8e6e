// Package runloop provides the main execution context of the tile pipeline.
//
// A Loop runs queued closures one at a time on the goroutine that called Run. Network and
// worker completions are posted to the loop, so everything that mutates a tile record
// outside of a worker job is serialized with the caller's own code.
package runloop

import (
	"context"
	"sync"
)

type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Invoke appends fn to the queue. It never blocks.
func (l *Loop) Invoke(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes queued closures until ctx is done. It returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.RunPending() > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// RunPending executes the closures queued at the time of the call and returns their count.
// Closures queued while they run are left for the next call.
func (l *Loop) RunPending() int {
	l.mu.Lock()
	tasks := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, task := range tasks {
		task()
	}
	return len(tasks)
}

// Sync invokes fn on the loop and waits until it has run or ctx is done.
// It must not be called from the loop itself.
func (l *Loop) Sync(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Invoke(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
