// Package collision tracks the label boxes placed on one tile so that overlapping labels
// can be rejected.
//
// An Index is built for a single (angle, debug) configuration and is never reconfigured;
// a new placement builds a new Index.
package collision

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	// DefaultExtent is the coordinate extent of decoded vector tiles.
	DefaultExtent = 4096

	gridSize = 16
)

type Config struct {
	Extent   float64 // tile coordinate extent; zero selects DefaultExtent
	TileSize float64 // display size of the tile in pixels, including overscaling
	Angle    float64 // map rotation in radians
	Debug    bool    // record every candidate box, placed or not
}

// Box is a label box in rotated tile coordinates.
type Box struct {
	Bound  orb.Bound
	Placed bool
}

type Index struct {
	config   Config
	scale    float64 // tile units per pixel
	cos, sin float64
	origin   float64
	cellSize float64

	placed []orb.Bound
	grid   [gridSize * gridSize][]int32
	boxes  []Box
}

func New(config Config) *Index {
	if config.Extent <= 0 {
		config.Extent = DefaultExtent
	}
	if config.TileSize <= 0 {
		config.TileSize = 512
	}
	// rotated anchors of in-tile labels stay within half an extent of the tile
	span := 2 * config.Extent
	return &Index{
		config:   config,
		scale:    config.Extent / config.TileSize,
		cos:      math.Cos(config.Angle),
		sin:      math.Sin(config.Angle),
		origin:   -config.Extent / 2,
		cellSize: span / gridSize,
	}
}

func (ix *Index) Config() Config {
	return ix.config
}

// Project rotates a tile coordinate around the tile center by the index angle.
func (ix *Index) Project(p orb.Point) orb.Point {
	c := ix.config.Extent / 2
	dx, dy := p[0]-c, p[1]-c
	return orb.Point{ix.cos*dx - ix.sin*dy + c, ix.sin*dx + ix.cos*dy + c}
}

// Box returns the box of a label of the given pixel size anchored at p.
func (ix *Index) Box(anchor orb.Point, width, height, padding float64) orb.Bound {
	c := ix.Project(anchor)
	hw := (width/2 + padding) * ix.scale
	hh := (height/2 + padding) * ix.scale
	return orb.Bound{
		Min: orb.Point{c[0] - hw, c[1] - hh},
		Max: orb.Point{c[0] + hw, c[1] + hh},
	}
}

// Place tries to insert a label box. Unless allowOverlap is set, the label is rejected
// when it overlaps a box that was placed before. The box is returned either way.
func (ix *Index) Place(anchor orb.Point, width, height, padding float64, allowOverlap bool) (orb.Bound, bool) {
	b := ix.Box(anchor, width, height, padding)
	x0, y0, x1, y1 := ix.cells(b)

	ok := allowOverlap || !ix.collides(b, x0, y0, x1, y1)
	if ok {
		id := int32(len(ix.placed))
		ix.placed = append(ix.placed, b)
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				ix.grid[y*gridSize+x] = append(ix.grid[y*gridSize+x], id)
			}
		}
	}
	if ix.config.Debug {
		ix.boxes = append(ix.boxes, Box{Bound: b, Placed: ok})
	}
	return b, ok
}

func (ix *Index) collides(b orb.Bound, x0, y0, x1, y1 int) bool {
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			for _, id := range ix.grid[y*gridSize+x] {
				if overlaps(ix.placed[id], b) {
					return true
				}
			}
		}
	}
	return false
}

func (ix *Index) cells(b orb.Bound) (x0, y0, x1, y1 int) {
	return ix.cell(b.Min[0]), ix.cell(b.Min[1]), ix.cell(b.Max[0]), ix.cell(b.Max[1])
}

func (ix *Index) cell(v float64) int {
	c := int(math.Floor((v - ix.origin) / ix.cellSize))
	return min(max(c, 0), gridSize-1)
}

// overlaps is a strict intersection test: boxes that only share an edge do not collide.
func overlaps(a, b orb.Bound) bool {
	return a.Min[0] < b.Max[0] && b.Min[0] < a.Max[0] &&
		a.Min[1] < b.Max[1] && b.Min[1] < a.Max[1]
}

// Len returns the number of placed boxes.
func (ix *Index) Len() int {
	return len(ix.placed)
}

// DebugBoxes returns every candidate box in placement order. It is empty unless the
// index was built with Config.Debug.
func (ix *Index) DebugBoxes() []Box {
	return ix.boxes
}
