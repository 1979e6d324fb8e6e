package main

import (
	"fmt"
	"strings"

	"github.com/eak1mov/go-tileflow/style"
	"github.com/eak1mov/go-tileflow/tile"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// parseLayers parses "id:type:source-layer[:field],..." into style layers. Raster
// sources get a single raster layer when value is empty.
func parseLayers(value string, kind tile.Kind) ([]style.Layer, error) {
	if value == "" {
		if kind == tile.KindRaster {
			return []style.Layer{{ID: "raster", Type: style.LayerRaster}}, nil
		}
		return nil, nil
	}

	var layers []style.Layer
	for _, item := range strings.Split(value, ",") {
		parts := strings.Split(item, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("invalid layer %q, want id:type:source-layer[:field]", item)
		}
		layerType, err := style.ParseLayerType(parts[1])
		if err != nil {
			return nil, err
		}
		layer := style.Layer{ID: parts[0], Type: layerType, SourceLayer: parts[2]}
		if len(parts) == 4 {
			layer.Layout.TextField = "{" + parts[3] + "}"
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

// parseBBox parses "minLon,minLat,maxLon,maxLat".
func parseBBox(value string) (orb.Bound, error) {
	var coords [4]float64
	if _, err := fmt.Sscanf(value, "%f,%f,%f,%f", &coords[0], &coords[1], &coords[2], &coords[3]); err != nil {
		return orb.Bound{}, fmt.Errorf("invalid bbox %q: %w", value, err)
	}
	return orb.Bound{Min: orb.Point{coords[0], coords[1]}, Max: orb.Point{coords[2], coords[3]}}, nil
}

// covering returns the tiles of zoom z that intersect bound.
func covering(bound orb.Bound, z uint32) []tile.ID {
	topLeft := maptile.At(orb.Point{bound.Min[0], bound.Max[1]}, maptile.Zoom(z))
	bottomRight := maptile.At(orb.Point{bound.Max[0], bound.Min[1]}, maptile.Zoom(z))

	last := uint32(1)<<z - 1
	var ids []tile.ID
	for y := topLeft.Y; y <= min(bottomRight.Y, last); y++ {
		for x := topLeft.X; x <= min(bottomRight.X, last); x++ {
			ids = append(ids, tile.ID{X: x, Y: y, Z: z})
		}
	}
	return ids
}
