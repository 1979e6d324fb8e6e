package tiledata

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/eak1mov/go-tileflow/bucket"
	"github.com/eak1mov/go-tileflow/collision"
	"github.com/eak1mov/go-tileflow/glyph"
	"github.com/eak1mov/go-tileflow/style"
	"github.com/eak1mov/go-tileflow/tile"
	"github.com/eak1mov/go-tileflow/worker"
	"github.com/paulmach/orb/encoding/mvt"
)

var ErrDecode = errors.New("tileflow: vector tile decode failed")

var gzipMagic = []byte{0x1f, 0x8b}

// bucketSet is the immutable result of one parse.
type bucketSet struct {
	byLayer map[string]bucket.Bucket
	order   []bucket.Bucket  // style order
	symbols []*bucket.Symbol // placement order, topmost layer first
}

// Vector is the record of a vector tile.
type Vector struct {
	record

	style *style.Snapshot

	parsing       atomic.Bool // set while a parse job is in flight
	reparseWanted bool
	wantedDone    func()
	parseJob      *worker.Request

	buckets   atomic.Pointer[bucketSet]
	collision atomic.Pointer[collision.Index]

	lastAngle, currentAngle float64
	lastDebug, currentDebug bool
	placing                 bool
	placeJob                *worker.Request
}

func NewVector(id tile.ID, env *Env, snapshot *style.Snapshot) *Vector {
	v := &Vector{style: snapshot}
	v.init(id, tile.KindVector, env)
	return v
}

func (v *Vector) Request(pixelRatio float64, onProgress func()) {
	v.stopParse()
	v.fetch(pixelRatio, func() {
		v.parsing.Store(true)
		v.startParse(onProgress)
	}, func() { call(onProgress) })
}

// Reparse starts a parse of the fetched payload. If a parse is already in flight it
// returns false and the running job starts another parse once it completes; every
// callback passed to a coalesced call runs, in call order, when that parse finishes.
func (v *Vector) Reparse(onDone func()) bool {
	if !parseable(v.State()) {
		return false
	}
	if !v.parsing.CompareAndSwap(false, true) {
		v.reparseWanted = true
		if prev := v.wantedDone; prev != nil && onDone != nil {
			v.wantedDone = func() {
				prev()
				onDone()
			}
		} else if onDone != nil {
			v.wantedDone = onDone
		}
		return false
	}
	v.startParse(onDone)
	return true
}

// SetStyle replaces the layer list and reparses the tile with it.
func (v *Vector) SetStyle(snapshot *style.Snapshot) {
	v.style = snapshot
	v.Reparse(nil)
}

func parseable(s tile.State) bool {
	return s == tile.StateLoaded || s == tile.StatePartial || s == tile.StateParsed
}

// stopParse cancels the parse job and forgets a coalesced reparse. Once Cancel returned
// the job has either finished or will never run, so the guard can be released.
func (v *Vector) stopParse() {
	v.parseJob.Cancel()
	v.parseJob = nil
	v.parsing.Store(false)
	v.reparseWanted = false
	v.wantedDone = nil
}

type parseResult struct {
	set     *bucketSet
	index   *collision.Index
	state   tile.State
	missing map[string][]glyph.Range // font stack -> ranges to request
	err     error
}

// startParse sends a parse job. The caller holds the guard.
func (v *Vector) startParse(onDone func()) {
	data, snapshot := v.data, v.style
	angle, debug := v.lastAngle, v.lastDebug
	v.logger.Debug("tileflow: parse started", "layers", snapshot.Len())

	var committed bool
	var missing map[string][]glyph.Range
	var req *worker.Request
	req = v.env.Pool.Send(func() {
		defer v.parsing.Store(false)
		committed, missing = v.parse(data, snapshot, angle, debug)
	}, func() {
		if v.parseJob == req {
			v.parseJob = nil
		}
		settled := len(missing) > 0
		for fontStack, ranges := range missing {
			v.env.Glyphs.Request(fontStack, ranges)
			settled = settled && v.env.Glyphs.Settled(fontStack, ranges)
		}
		if committed {
			v.currentAngle, v.currentDebug = angle, debug
		}
		call(onDone)

		// glyphs that finished loading while the job ran will not notify again
		if settled && v.State() == tile.StatePartial {
			v.reparseWanted = true
		}
		if v.reparseWanted {
			done := v.wantedDone
			v.reparseWanted = false
			v.wantedDone = nil
			v.Reparse(done)
		}
		if !v.placing {
			v.maybeRedoPlacement()
		}
	})
	v.parseJob = req
}

// parse runs on a worker and reports whether its result was committed.
func (v *Vector) parse(data []byte, snapshot *style.Snapshot, angle float64, debug bool) (bool, map[string][]glyph.Range) {
	from := v.State()
	if !parseable(from) {
		return false, nil
	}

	layers, err := decode(data)
	if err != nil {
		v.logger.Warn("tileflow: vector decode failed", "error", err)
		v.setError(err.Error())
		return v.commit(from, tile.StateInvalid), nil
	}

	res := v.build(layers, snapshot, angle, debug)
	if res.err != nil {
		v.setError(res.err.Error())
		return v.commit(from, tile.StateObsolete), nil
	}

	v.buckets.Store(res.set)
	v.collision.Store(res.index)
	return v.commit(from, res.state), res.missing
}

func decode(data []byte) (mvt.Layers, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var layers mvt.Layers
	var err error
	if bytes.HasPrefix(data, gzipMagic) {
		layers, err = mvt.UnmarshalGzipped(data)
	} else {
		layers, err = mvt.Unmarshal(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return layers, nil
}

func (v *Vector) collisionConfig(angle float64, debug bool) collision.Config {
	tileSize := v.env.TileSize
	if tileSize <= 0 {
		tileSize = 512
	}
	return collision.Config{
		TileSize: tileSize * float64(v.id.OverscaleFactor()),
		Angle:    angle,
		Debug:    debug,
	}
}

// build creates a bucket for every style layer that has matching data.
func (v *Vector) build(layers mvt.Layers, snapshot *style.Snapshot, angle float64, debug bool) parseResult {
	bySource := make(map[string]*mvt.Layer, len(layers))
	for _, l := range layers {
		bySource[l.Name] = l
	}

	res := parseResult{
		set:   &bucketSet{byLayer: make(map[string]bucket.Bucket)},
		state: tile.StateParsed,
	}
	zoom := float64(v.id.DisplayZoom())

	for _, layer := range snapshot.Layers() {
		if layer.Hidden || !layer.Type.HasBucket() || layer.Type == style.LayerRaster || !layer.InZoom(zoom) {
			continue
		}
		if v.env.SourceID != "" && layer.Source != "" && layer.Source != v.env.SourceID {
			continue
		}
		source := bySource[layer.SourceLayer]
		if source == nil {
			continue
		}

		var b bucket.Bucket
		switch layer.Type {
		case style.LayerFill:
			fill := bucket.NewFill(layer.ID)
			eachFeature(source, layer, func(f *feature) { fill.Add(f.Geometry) })
			b = fill
		case style.LayerLine:
			line := bucket.NewLine(layer.ID)
			eachFeature(source, layer, func(f *feature) { line.Add(f.Geometry) })
			b = line
		case style.LayerCircle:
			circle := bucket.NewCircle(layer.ID)
			eachFeature(source, layer, func(f *feature) { circle.Add(f.Geometry) })
			b = circle
		case style.LayerSymbol:
			symbol, complete, err := v.buildSymbol(source, layer, &res)
			if err != nil {
				res.err = err
				return res
			}
			if !complete {
				res.state = tile.StatePartial
			}
			if symbol != nil {
				b = symbol
			}
		}

		if b != nil && b.HasData() {
			res.set.byLayer[layer.ID] = b
			res.set.order = append(res.set.order, b)
			if s, ok := b.(*bucket.Symbol); ok {
				res.set.symbols = append(res.set.symbols, s)
			}
		}
	}

	slices.Reverse(res.set.symbols)
	res.index = collision.New(v.collisionConfig(angle, debug))
	for _, s := range res.set.symbols {
		s.Place(res.index)
		// not published yet, nothing reads it
		s.SwapRenderData()
	}
	return res
}

// buildSymbol collects the labels of one layer. Labels whose glyphs are not loaded yet
// are left out and reported in res.missing.
func (v *Vector) buildSymbol(source *mvt.Layer, layer *style.Layer, res *parseResult) (*bucket.Symbol, bool, error) {
	glyphs := v.env.Glyphs
	if glyphs == nil || layer.Layout.TextField == "" {
		return nil, true, nil
	}

	size := layer.Layout.TextSize
	if size <= 0 {
		size = 16
	}
	fontStack := layer.Layout.TextFont
	complete := true
	symbol := bucket.NewSymbol(layer.ID, layer.Layout.TextPadding, layer.Layout.TextAllowOverlap)

	var err error
	eachFeature(source, layer, func(f *feature) {
		text := layer.Text(f.Properties)
		if text == "" || err != nil {
			return
		}
		missing, e := glyphs.Missing(fontStack, text)
		if e != nil {
			err = e
			return
		}
		if len(missing) > 0 {
			complete = false
			if res.missing == nil {
				res.missing = make(map[string][]glyph.Range)
			}
			res.missing[fontStack] = appendRanges(res.missing[fontStack], missing)
			return
		}
		w, h := glyphs.Metrics().Measure(text, size)
		for _, anchor := range bucket.Anchors(f.Geometry) {
			symbol.Add(bucket.Label{Text: text, Anchor: anchor, Width: w, Height: h})
		}
	})
	if err != nil {
		return nil, false, err
	}
	return symbol, complete, nil
}

func appendRanges(dst, ranges []glyph.Range) []glyph.Range {
	for _, r := range ranges {
		if !slices.Contains(dst, r) {
			dst = append(dst, r)
		}
	}
	return dst
}

// Bucket returns the bucket of a style layer once the tile is parsed. While a reparse is in
// flight the buckets of the previous parse stay readable.
func (v *Vector) Bucket(layerID string) bucket.Bucket {
	if v.State() != tile.StateParsed {
		return nil
	}
	set := v.buckets.Load()
	if set == nil {
		return nil
	}
	return set.byLayer[layerID]
}

// Buckets returns the buckets of the last parse in style order.
func (v *Vector) Buckets() []bucket.Bucket {
	if set := v.buckets.Load(); set != nil {
		return set.order
	}
	return nil
}

// Collision returns the collision index of the last placement.
func (v *Vector) Collision() *collision.Index {
	return v.collision.Load()
}

func (v *Vector) Cancel() {
	v.cancel()
	v.stopParse()
	v.placeJob.Cancel()
	v.placeJob = nil
	v.placing = false
}

func (v *Vector) Destroy() {
	v.Cancel()
	v.data = nil
	v.buckets.Store(nil)
	v.collision.Store(nil)
}
