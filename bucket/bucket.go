// Package bucket holds renderer-ready data derived from one tile for one style layer.
//
// Buckets are built on a worker and published whole. The only part that changes after
// publication is symbol render data, which is double-buffered: placement fills a staging
// copy on a worker and SwapRenderData publishes it on the loop.
package bucket

import (
	"github.com/paulmach/orb"
)

type Bucket interface {
	// Layer returns the ID of the style layer the bucket was built for.
	Layer() string

	// HasData reports whether the bucket contains anything to render.
	HasData() bool

	// SwapRenderData publishes render data staged by the last placement.
	// It must be called from the loop.
	SwapRenderData()
}

// Fill holds flattened polygon rings.
type Fill struct {
	layer    string
	Vertices []orb.Point
	Rings    []int // start offset of each ring in Vertices
	Polygons []int // start offset of each polygon in Rings
}

func NewFill(layer string) *Fill {
	return &Fill{layer: layer}
}

func (b *Fill) Layer() string   { return b.layer }
func (b *Fill) HasData() bool   { return len(b.Polygons) > 0 }
func (b *Fill) SwapRenderData() {}

// Add appends the polygons of geom; other geometry types are ignored.
func (b *Fill) Add(geom orb.Geometry) {
	switch g := geom.(type) {
	case orb.Polygon:
		b.addPolygon(g)
	case orb.MultiPolygon:
		for _, p := range g {
			b.addPolygon(p)
		}
	case orb.Collection:
		for _, c := range g {
			b.Add(c)
		}
	}
}

func (b *Fill) addPolygon(p orb.Polygon) {
	if len(p) == 0 || len(p[0]) < 3 {
		return
	}
	b.Polygons = append(b.Polygons, len(b.Rings))
	for _, ring := range p {
		b.Rings = append(b.Rings, len(b.Vertices))
		b.Vertices = append(b.Vertices, ring...)
	}
}

// Line holds flattened line strings.
type Line struct {
	layer    string
	Vertices []orb.Point
	Lines    []int // start offset of each line in Vertices
}

func NewLine(layer string) *Line {
	return &Line{layer: layer}
}

func (b *Line) Layer() string   { return b.layer }
func (b *Line) HasData() bool   { return len(b.Lines) > 0 }
func (b *Line) SwapRenderData() {}

// Add appends the lines of geom. Polygon rings are drawn as closed lines.
func (b *Line) Add(geom orb.Geometry) {
	switch g := geom.(type) {
	case orb.LineString:
		b.addLine(g)
	case orb.MultiLineString:
		for _, ls := range g {
			b.addLine(ls)
		}
	case orb.Ring:
		b.addLine(orb.LineString(g))
	case orb.Polygon:
		for _, r := range g {
			b.addLine(orb.LineString(r))
		}
	case orb.MultiPolygon:
		for _, p := range g {
			b.Add(p)
		}
	case orb.Collection:
		for _, c := range g {
			b.Add(c)
		}
	}
}

func (b *Line) addLine(ls orb.LineString) {
	if len(ls) < 2 {
		return
	}
	b.Lines = append(b.Lines, len(b.Vertices))
	b.Vertices = append(b.Vertices, ls...)
}

// Circle holds point features.
type Circle struct {
	layer  string
	Points []orb.Point
}

func NewCircle(layer string) *Circle {
	return &Circle{layer: layer}
}

func (b *Circle) Layer() string   { return b.layer }
func (b *Circle) HasData() bool   { return len(b.Points) > 0 }
func (b *Circle) SwapRenderData() {}

func (b *Circle) Add(geom orb.Geometry) {
	switch g := geom.(type) {
	case orb.Point:
		b.Points = append(b.Points, g)
	case orb.MultiPoint:
		b.Points = append(b.Points, g...)
	case orb.Collection:
		for _, c := range g {
			b.Add(c)
		}
	}
}
