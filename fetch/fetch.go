// Package fetch defines the "fetch by URL" boundary of the tile pipeline and provides
// HTTP and tileset back-ends for it.
//
// Every completion is delivered exactly once, on the loop the service was created with,
// unless the request is canceled first.
package fetch

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/eak1mov/go-tileflow/runloop"
	"github.com/eak1mov/go-tileflow/tile"
)

// Resource describes what to fetch.
type Resource struct {
	Kind tile.Kind
	URL  string
}

type Status uint8

const (
	StatusSuccessful Status = iota
	StatusNotFound
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccessful:
		return "successful"
	case StatusNotFound:
		return "not found"
	}
	return "error"
}

// Response is the single completion of a fetch.
type Response struct {
	Status  Status
	Data    []byte
	Message string
}

// Service fetches resources asynchronously.
type Service interface {
	// Fetch starts loading res. The callback runs once on the service's loop.
	Fetch(res Resource, callback func(Response)) *Request
}

// Request is the handle of one outstanding fetch.
type Request struct {
	done   atomic.Bool
	cancel context.CancelFunc
}

// Cancel aborts the fetch if it is still running and guarantees the callback will not
// run. It is idempotent and safe on a nil Request. It must be called from the loop.
func (r *Request) Cancel() {
	if r == nil {
		return
	}
	if r.done.Swap(true) {
		return
	}
	r.cancel()
}

// Canceled reports whether the request was canceled or has already completed.
func (r *Request) Canceled() bool {
	return r != nil && r.done.Load()
}

// Start runs load on its own goroutine and posts its result to loop. It is the building
// block of every Service: load observes ctx, which is canceled by Request.Cancel.
func Start(loop *runloop.Loop, load func(context.Context) Response, callback func(Response)) *Request {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Request{cancel: cancel}

	go func() {
		res := load(ctx)
		loop.Invoke(func() {
			if r.done.Swap(true) {
				return
			}
			cancel()
			callback(res)
		})
	}()

	return r
}

type config struct {
	Client    *http.Client
	UserAgent string
	Logger    *slog.Logger
}

type Option func(*config)

// WithClient sets the HTTP client used by HTTPService.
func WithClient(client *http.Client) Option {
	return func(c *config) { c.Client = client }
}

// WithUserAgent sets the User-Agent header sent by HTTPService.
func WithUserAgent(userAgent string) Option {
	return func(c *config) { c.UserAgent = userAgent }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.Logger = logger }
}

func newConfig(opts []Option) config {
	c := config{
		Client: http.DefaultClient,
		Logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
