// Package testutil builds tile payloads and tilesets for tests.
package testutil

import (
	"bytes"
	"compress/gzip"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/eak1mov/go-tileflow/tile"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
)

// Feature is one vector feature in tile coordinates.
type Feature struct {
	Geometry   orb.Geometry
	Properties map[string]any
}

type Layer struct {
	Name     string
	Features []Feature
}

// MVT encodes layers as an uncompressed Mapbox vector tile.
func MVT(t testing.TB, layers ...Layer) []byte {
	t.Helper()

	var mvtLayers mvt.Layers
	for _, l := range layers {
		fc := geojson.NewFeatureCollection()
		for _, f := range l.Features {
			feature := geojson.NewFeature(f.Geometry)
			for k, v := range f.Properties {
				feature.Properties[k] = v
			}
			fc.Append(feature)
		}
		mvtLayers = append(mvtLayers, mvt.NewLayer(l.Name, fc))
	}

	data, err := mvt.Marshal(mvtLayers)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func Gzip(t testing.TB, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// StreetLayers returns a small tile with water, roads and named places.
func StreetLayers() []Layer {
	return []Layer{
		{
			Name: "water",
			Features: []Feature{{
				Geometry:   orb.Polygon{{{100, 100}, {1000, 100}, {1000, 1000}, {100, 1000}, {100, 100}}},
				Properties: map[string]any{"class": "lake"},
			}},
		},
		{
			Name: "roads",
			Features: []Feature{
				{
					Geometry:   orb.LineString{{0, 2048}, {2048, 2048}, {4096, 2048}},
					Properties: map[string]any{"class": "primary", "name": "Main Street"},
				},
				{
					Geometry:   orb.LineString{{2048, 0}, {2048, 4096}},
					Properties: map[string]any{"class": "service"},
				},
			},
		},
		{
			Name: "places",
			Features: []Feature{
				{Geometry: orb.Point{1000, 3000}, Properties: map[string]any{"name": "Alpha", "kind": "town"}},
				{Geometry: orb.Point{3000, 1000}, Properties: map[string]any{"name": "Beta", "kind": "village"}},
			},
		},
	}
}

// Streets encodes StreetLayers.
func Streets(t testing.TB) []byte {
	t.Helper()
	return MVT(t, StreetLayers()...)
}

// PNG encodes a w*h image filled with c.
func PNG(t testing.TB, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// Tileset is an in-memory tile.Reader and tile.Visitor.
type Tileset struct {
	mu    sync.Mutex
	tiles map[tile.ID][]byte
	reads map[tile.ID]int
}

func NewTileset() *Tileset {
	return &Tileset{
		tiles: make(map[tile.ID][]byte),
		reads: make(map[tile.ID]int),
	}
}

func (s *Tileset) Put(id tile.ID, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiles[id] = data
}

func (s *Tileset) ReadTile(id tile.ID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[id]++
	return s.tiles[id], nil
}

// Reads returns how many times id was read.
func (s *Tileset) Reads(id tile.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[id]
}

func (s *Tileset) VisitTiles(visitor func(tile.ID, []byte) error) error {
	s.mu.Lock()
	tiles := make(map[tile.ID][]byte, len(s.tiles))
	for id, data := range s.tiles {
		tiles[id] = data
	}
	s.mu.Unlock()

	for id, data := range tiles {
		if err := visitor(id, data); err != nil {
			return err
		}
	}
	return nil
}
