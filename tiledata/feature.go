package tiledata

import (
	"github.com/eak1mov/go-tileflow/style"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
)

type feature = geojson.Feature

// eachFeature calls fn for the features of source that pass the layer filter.
func eachFeature(source *mvt.Layer, layer *style.Layer, fn func(*feature)) {
	for _, f := range source.Features {
		if f.Geometry == nil || !layer.Filter.Match(f.Properties) {
			continue
		}
		fn(f)
	}
}
