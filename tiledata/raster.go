package tiledata

import (
	"sync/atomic"

	"github.com/eak1mov/go-tileflow/bucket"
	"github.com/eak1mov/go-tileflow/tile"
	"github.com/eak1mov/go-tileflow/worker"
)

// Raster is the record of an image tile. It has a single bucket shared by every layer
// and is parsed once per fetch.
type Raster struct {
	record

	job    *worker.Request
	bucket atomic.Pointer[bucket.Raster]
}

func NewRaster(id tile.ID, env *Env) *Raster {
	r := &Raster{}
	r.init(id, tile.KindRaster, env)
	return r
}

func (r *Raster) Request(pixelRatio float64, onProgress func()) {
	r.job.Cancel()
	r.job = nil
	r.fetch(pixelRatio, func() { r.parse(onProgress) }, func() { call(onProgress) })
}

// Reparse is a no-op for raster tiles.
func (r *Raster) Reparse(func()) bool {
	return false
}

func (r *Raster) parse(onDone func()) {
	data := r.data
	r.job = r.env.Pool.Send(func() {
		if r.State() != tile.StateLoaded {
			return
		}
		if len(data) == 0 {
			r.commit(tile.StateLoaded, tile.StateParsed)
			return
		}
		b, err := bucket.DecodeRaster(r.env.SourceID, data)
		if err != nil {
			r.logger.Warn("tileflow: raster decode failed", "error", err)
			r.commit(tile.StateLoaded, tile.StateInvalid)
			return
		}
		r.bucket.Store(b)
		r.commit(tile.StateLoaded, tile.StateParsed)
	}, func() {
		r.job = nil
		call(onDone)
	})
}

// Bucket returns the decoded image regardless of layerID once the tile is parsed.
func (r *Raster) Bucket(string) bucket.Bucket {
	if r.State() != tile.StateParsed {
		return nil
	}
	if b := r.bucket.Load(); b != nil {
		return b
	}
	return nil
}

func (r *Raster) Cancel() {
	r.cancel()
	r.job.Cancel()
	r.job = nil
}

func (r *Raster) Destroy() {
	r.Cancel()
	r.data = nil
	r.bucket.Store(nil)
}
