package worker

import "sync/atomic"

const (
	statePending int32 = iota
	stateRunning
	stateFinished
	stateSkipped
)

// Request is the cancellation handle of one unit of work sent to a Pool.
type Request struct {
	work  func()
	after func()

	state    atomic.Int32
	canceled atomic.Bool
	done     chan struct{}
}

func newRequest(work, after func()) *Request {
	return &Request{work: work, after: after, done: make(chan struct{})}
}

// Cancel discards the result of the work: the completion callback will not run after
// Cancel returns. Work that has not started yet is skipped; work that is running is
// waited for, so no part of it is still executing when Cancel returns.
//
// Cancel is idempotent and safe on a nil Request. It must not be called from the work itself.
func (r *Request) Cancel() {
	if r == nil {
		return
	}
	r.canceled.Store(true)
	if r.state.CompareAndSwap(statePending, stateSkipped) || r.state.Load() == stateSkipped {
		return
	}
	<-r.done
}

// Canceled reports whether Cancel has been called.
func (r *Request) Canceled() bool {
	return r != nil && r.canceled.Load()
}

// run executes the work on a worker goroutine and reports whether it ran.
func (r *Request) run() bool {
	if !r.state.CompareAndSwap(statePending, stateRunning) {
		return false
	}
	defer func() {
		r.state.Store(stateFinished)
		close(r.done)
	}()
	r.work()
	return true
}

// complete runs the completion callback on the loop unless the request was canceled.
func (r *Request) complete() {
	if r.canceled.Load() || r.after == nil {
		return
	}
	r.after()
}
