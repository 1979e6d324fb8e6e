package bucket

import (
	"sync/atomic"

	"github.com/eak1mov/go-tileflow/collision"
	"github.com/paulmach/orb"
)

// Label is one text label candidate. Width and Height are in pixels.
type Label struct {
	Text   string
	Anchor orb.Point
	Width  float64
	Height float64
}

// PlacedLabel is a label accepted by placement together with its box.
type PlacedLabel struct {
	Label
	Box orb.Bound
}

// RenderData is the result of one placement.
type RenderData struct {
	Angle  float64
	Placed []PlacedLabel
	Boxes  []collision.Box // every candidate, only in debug mode
}

// Symbol holds the labels of one layer. The label list is fixed once the bucket is
// published; render data is double-buffered.
type Symbol struct {
	layer        string
	padding      float64
	allowOverlap bool
	labels       []Label

	current atomic.Pointer[RenderData]
	next    *RenderData
}

func NewSymbol(layer string, padding float64, allowOverlap bool) *Symbol {
	return &Symbol{layer: layer, padding: padding, allowOverlap: allowOverlap}
}

func (b *Symbol) Layer() string { return b.layer }
func (b *Symbol) HasData() bool { return len(b.labels) > 0 }

// Add appends a label candidate. It must not be called after the bucket is published.
func (b *Symbol) Add(label Label) {
	b.labels = append(b.labels, label)
}

func (b *Symbol) Labels() []Label {
	return b.labels
}

// Place runs placement of all labels against ix and stages the result. It runs on a
// worker and never touches the published render data.
func (b *Symbol) Place(ix *collision.Index) {
	config := ix.Config()
	data := &RenderData{Angle: config.Angle}
	for _, label := range b.labels {
		box, ok := ix.Place(label.Anchor, label.Width, label.Height, b.padding, b.allowOverlap)
		if ok {
			data.Placed = append(data.Placed, PlacedLabel{Label: label, Box: box})
		}
		if config.Debug {
			data.Boxes = append(data.Boxes, collision.Box{Bound: box, Placed: ok})
		}
	}
	b.next = data
}

// SwapRenderData publishes the staged placement, if any.
func (b *Symbol) SwapRenderData() {
	if b.next == nil {
		return
	}
	b.current.Store(b.next)
	b.next = nil
}

// RenderData returns the published placement. It is safe to call from any goroutine.
func (b *Symbol) RenderData() *RenderData {
	return b.current.Load()
}

// Anchors returns label anchor points for a geometry: the points themselves, the middle
// vertex of lines and the bounding box center of polygons.
func Anchors(geom orb.Geometry) []orb.Point {
	switch g := geom.(type) {
	case orb.Point:
		return []orb.Point{g}
	case orb.MultiPoint:
		return append([]orb.Point(nil), g...)
	case orb.LineString:
		if len(g) == 0 {
			return nil
		}
		return []orb.Point{g[len(g)/2]}
	case orb.MultiLineString:
		var anchors []orb.Point
		for _, ls := range g {
			anchors = append(anchors, Anchors(ls)...)
		}
		return anchors
	case orb.Polygon:
		if len(g) == 0 || len(g[0]) == 0 {
			return nil
		}
		return []orb.Point{g[0].Bound().Center()}
	case orb.MultiPolygon:
		var anchors []orb.Point
		for _, p := range g {
			anchors = append(anchors, Anchors(p)...)
		}
		return anchors
	case orb.Collection:
		var anchors []orb.Point
		for _, c := range g {
			anchors = append(anchors, Anchors(c)...)
		}
		return anchors
	}
	return nil
}
