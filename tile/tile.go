// Package tile provides common tile interfaces and types.
package tile

import (
	"fmt"
	"math/bits"

	"github.com/paulmach/orb/maptile"
)

// ID represents tile coordinates in the XYZ scheme (Tiled web map).
//
// X, Y and Z address the data tile. Overscaling is the factor by which the data tile
// is displayed beyond its own zoom level; zero and one both mean "not overscaled".
type ID struct {
	X           uint32
	Y           uint32
	Z           uint32
	Overscaling uint32
}

func (t ID) Valid() bool {
	f := t.Overscaling
	return t.Z < 32 && t.X < (1<<t.Z) && t.Y < (1<<t.Z) && (f == 0 || f&(f-1) == 0)
}

// OverscaleFactor returns the display overscale factor, never less than one.
func (t ID) OverscaleFactor() uint32 {
	return max(t.Overscaling, 1)
}

// DisplayZoom returns the zoom level the tile is displayed at.
func (t ID) DisplayZoom() uint32 {
	return t.Z + uint32(bits.Len32(t.OverscaleFactor())-1)
}

// Overscaled maps a display tile onto the data tile that covers it when the source does
// not provide data beyond maxZoom.
func (t ID) Overscaled(maxZoom uint32) ID {
	if t.Z <= maxZoom {
		return t
	}
	d := t.Z - maxZoom
	return ID{X: t.X >> d, Y: t.Y >> d, Z: maxZoom, Overscaling: 1 << d}
}

// MapTile converts the data tile coordinates to an orb map tile.
func (t ID) MapTile() maptile.Tile {
	return maptile.New(t.X, t.Y, maptile.Zoom(t.Z))
}

func (t ID) String() string {
	if t.OverscaleFactor() > 1 {
		return fmt.Sprintf("%d/%d/%d@x%d", t.Z, t.X, t.Y, t.OverscaleFactor())
	}
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// FromMapTile converts an orb map tile to a non-overscaled ID.
func FromMapTile(mt maptile.Tile) ID {
	return ID{X: mt.X, Y: mt.Y, Z: uint32(mt.Z)}
}

// Kind distinguishes tile payload encodings.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindVector
	KindRaster
	KindGlyphs
)

func (k Kind) String() string {
	switch k {
	case KindVector:
		return "vector"
	case KindRaster:
		return "raster"
	case KindGlyphs:
		return "glyphs"
	}
	return "unknown"
}

type Reader interface {
	// ReadTile reads a single tile from the tileset.
	// It returns the tile data or an error if the tile cannot be read.
	// If the tile does not exist, it returns an empty slice with no error.
	ReadTile(tileID ID) ([]byte, error)
}

type Visitor interface {
	// VisitTiles visits all tiles in the tileset, calling the visitor for each.
	// It returns an error if visiting fails.
	// Order of tiles, upfront cpu and memory consumption are implementation-defined.
	VisitTiles(visitor func(ID, []byte) error) error
}
