// Package tiledata implements the lifecycle of a single tile: fetching its payload,
// parsing it into buckets on the worker pool and, for vector tiles, recomputing label
// placement.
//
// A record is owned by the loop. Request, Reparse, RedoPlacement, SetStyle, Cancel and
// Destroy must be called from the loop; State, Error and Bucket may be called from any
// goroutine.
package tiledata

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/eak1mov/go-tileflow/bucket"
	"github.com/eak1mov/go-tileflow/fetch"
	"github.com/eak1mov/go-tileflow/glyph"
	"github.com/eak1mov/go-tileflow/tile"
	"github.com/eak1mov/go-tileflow/worker"
	"github.com/eak1mov/go-tileflow/xyz"
)

// Data is a tile record.
type Data interface {
	ID() tile.ID
	Kind() tile.Kind
	State() tile.State
	Error() string

	// Request fetches the tile and parses it. A previous request, together with its
	// fetch and parse job, is canceled; only onProgress of the latest request runs.
	Request(pixelRatio float64, onProgress func())

	// Reparse parses the fetched payload again. It reports whether a job was started.
	Reparse(onDone func()) bool

	// Bucket returns the bucket built for a style layer, or nil.
	Bucket(layerID string) bucket.Bucket

	// Cancel makes the record obsolete and stops all of its activity. It is idempotent.
	Cancel()

	// Destroy cancels the record and releases its payload and buckets.
	Destroy()
}

var (
	_ Data = (*Raster)(nil)
	_ Data = (*Vector)(nil)
)

// Env holds what the records of one tile source share.
type Env struct {
	SourceID string // matched against style.Layer.Source; empty matches any layer
	Template *xyz.Template
	Fetcher  fetch.Service
	Pool     *worker.Pool
	Glyphs   *glyph.Store // vector only; nil disables symbol layers
	TileSize float64      // display size in pixels, zero means 512
	Logger   *slog.Logger
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

type record struct {
	id     tile.ID
	kind   tile.Kind
	env    *Env
	logger *slog.Logger

	state atomic.Int32
	err   atomic.Pointer[string]

	data     []byte // set on the loop before a parse job is sent, read by the job
	fetchReq *fetch.Request
}

func (r *record) init(id tile.ID, kind tile.Kind, env *Env) {
	r.id = id
	r.kind = kind
	r.env = env
	r.logger = env.logger().With("tile", id.String())
}

func (r *record) ID() tile.ID     { return r.id }
func (r *record) Kind() tile.Kind { return r.kind }

func (r *record) State() tile.State {
	return tile.State(r.state.Load())
}

func (r *record) Error() string {
	if msg := r.err.Load(); msg != nil {
		return *msg
	}
	return ""
}

func (r *record) setError(msg string) {
	r.err.Store(&msg)
}

// transition moves the record to state to from any state but obsolete.
func (r *record) transition(to tile.State) bool {
	for {
		from := r.state.Load()
		if tile.State(from) == tile.StateObsolete {
			return false
		}
		if r.state.CompareAndSwap(from, int32(to)) {
			r.logger.Debug("tileflow: state changed", "from", tile.State(from).String(), "state", to.String())
			return true
		}
	}
}

// commit moves the record from state from to state to. It fails if the record has been
// canceled or requested again in the meantime.
func (r *record) commit(from, to tile.State) bool {
	if !r.state.CompareAndSwap(int32(from), int32(to)) {
		r.logger.Debug("tileflow: result discarded", "want", from.String(), "state", r.State().String())
		return false
	}
	r.logger.Debug("tileflow: state changed", "from", from.String(), "state", to.String())
	return true
}

// fetch starts loading the payload. onLoaded runs once the payload is stored and the record
// is loaded; onFailed runs once the record became obsolete because of a fetch error.
//
// A not found response is not an error: it loads an empty payload, which parses into a
// tile without buckets. Any other unsuccessful status makes the record obsolete.
func (r *record) fetch(pixelRatio float64, onLoaded, onFailed func()) {
	r.fetchReq.Cancel()
	if !r.transition(tile.StateLoading) {
		return
	}

	url := r.env.Template.TileURL(r.id, pixelRatio)
	var req *fetch.Request
	req = r.env.Fetcher.Fetch(fetch.Resource{Kind: r.kind, URL: url}, func(res fetch.Response) {
		if r.fetchReq == req {
			r.fetchReq = nil
		}
		switch res.Status {
		case fetch.StatusSuccessful, fetch.StatusNotFound:
			r.data = res.Data
			if r.commit(tile.StateLoading, tile.StateLoaded) {
				onLoaded()
			}
		default:
			r.setError(fmt.Sprintf("Failed to load [%s]: %s", url, res.Message))
			r.logger.Warn("tileflow: fetch failed", "url", url, "error", res.Message)
			if r.transition(tile.StateObsolete) {
				onFailed()
			}
		}
	})
	r.fetchReq = req
}

// cancel makes the record obsolete and cancels the outstanding fetch.
func (r *record) cancel() {
	if r.transition(tile.StateObsolete) {
		r.logger.Debug("tileflow: canceled")
	}
	r.fetchReq.Cancel()
	r.fetchReq = nil
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
