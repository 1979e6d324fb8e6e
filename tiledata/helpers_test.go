package tiledata_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eak1mov/go-tileflow/fetch"
	"github.com/eak1mov/go-tileflow/glyph"
	"github.com/eak1mov/go-tileflow/internal/testutil"
	"github.com/eak1mov/go-tileflow/runloop"
	"github.com/eak1mov/go-tileflow/style"
	"github.com/eak1mov/go-tileflow/tile"
	"github.com/eak1mov/go-tileflow/tiledata"
	"github.com/eak1mov/go-tileflow/worker"
	"github.com/eak1mov/go-tileflow/xyz"
	"github.com/stretchr/testify/require"
)

var testID = tile.ID{X: 1, Y: 2, Z: 3}

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) Count(msg string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.buf.String(), msg)
}

// harness drives the loop from the test goroutine, so loop-only calls are made directly.
type harness struct {
	loop    *runloop.Loop
	pool    *worker.Pool
	tileset *testutil.Tileset
	logs    *logBuffer
	env     *tiledata.Env
}

func newHarness(t *testing.T, pattern string, workers int) *harness {
	t.Helper()
	h := &harness{
		loop:    runloop.New(),
		tileset: testutil.NewTileset(),
		logs:    &logBuffer{},
	}
	h.pool = worker.New(h.loop, worker.WithWorkers(workers))
	t.Cleanup(h.pool.Close)

	template, err := xyz.ParseTemplate(pattern)
	require.NoError(t, err)
	fetcher, err := fetch.NewTilesetService(h.loop, pattern, h.tileset)
	require.NoError(t, err)

	h.env = &tiledata.Env{
		Template: template,
		Fetcher:  fetcher,
		Pool:     h.pool,
		Logger:   slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
	return h
}

// pump runs the loop until cond holds.
func (h *harness) pump(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for the loop")
		}
		if h.loop.RunPending() == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

// settle runs the loop for a while so that stray completions get a chance to fire.
func (h *harness) settle() {
	deadline := time.Now().Add(50 * time.Millisecond)
	for time.Now().Before(deadline) {
		if h.loop.RunPending() == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

// block occupies every worker until the returned function is called.
func (h *harness) block() (release func()) {
	ch := make(chan struct{})
	for range h.pool.Workers() {
		h.pool.Send(func() { <-ch }, nil)
	}
	return sync.OnceFunc(func() { close(ch) })
}

type counter struct{ n int }

func (c *counter) inc()        { c.n++ }
func (c *counter) fired() bool { return c.n > 0 }

func streetStyle(t *testing.T) *style.Snapshot {
	t.Helper()
	snapshot, err := style.New(
		style.Layer{ID: "background", Type: style.LayerBackground},
		style.Layer{ID: "water", Type: style.LayerFill, SourceLayer: "water"},
		style.Layer{ID: "primary", Type: style.LayerLine, SourceLayer: "roads", Filter: style.Filter{style.Equal("class", "primary")}},
		style.Layer{ID: "towns", Type: style.LayerCircle, SourceLayer: "places", Filter: style.Filter{style.Equal("kind", "town")}},
		style.Layer{ID: "labels", Type: style.LayerSymbol, SourceLayer: "places", Layout: style.Layout{TextField: "{name}", TextFont: "Sans", TextSize: 16}},
		style.Layer{ID: "buildings", Type: style.LayerFill, SourceLayer: "buildings"},
	)
	require.NoError(t, err)
	return snapshot
}

// manualLoader completes glyph loads when the test says so.
type manualLoader struct {
	loads []manualLoad
}

type manualLoad struct {
	fontStack string
	r         glyph.Range
	done      func(error)
}

func (l *manualLoader) Load(fontStack string, r glyph.Range, done func(error)) {
	l.loads = append(l.loads, manualLoad{fontStack, r, done})
}

func (l *manualLoader) finish(err error) {
	loads := l.loads
	l.loads = nil
	for _, load := range loads {
		load.done(err)
	}
}

// fakeFetcher holds every fetch until the test responds to it.
type fakeFetcher struct {
	loop *runloop.Loop

	mu      sync.Mutex
	fetches []*fakeFetch
}

type fakeFetch struct {
	res   fetch.Resource
	ctx   context.Context
	reply chan fetch.Response
}

func (f *fakeFetcher) Fetch(res fetch.Resource, callback func(fetch.Response)) *fetch.Request {
	ff := &fakeFetch{res: res, reply: make(chan fetch.Response, 1)}
	started := make(chan struct{})
	req := fetch.Start(f.loop, func(ctx context.Context) fetch.Response {
		ff.ctx = ctx
		close(started)
		select {
		case r := <-ff.reply:
			return r
		case <-ctx.Done():
			return fetch.Response{Status: fetch.StatusError, Message: ctx.Err().Error()}
		}
	}, callback)
	<-started

	f.mu.Lock()
	f.fetches = append(f.fetches, ff)
	f.mu.Unlock()
	return req
}

func (f *fakeFetcher) get(t *testing.T, i int) *fakeFetch {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(t, len(f.fetches), i)
	return f.fetches[i]
}

func (h *harness) useFakeFetcher() *fakeFetcher {
	f := &fakeFetcher{loop: h.loop}
	h.env.Fetcher = f
	return f
}
