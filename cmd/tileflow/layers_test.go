package main

import (
	"testing"

	"github.com/eak1mov/go-tileflow/style"
	"github.com/eak1mov/go-tileflow/tile"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseLayers(t *testing.T) {
	layers, err := parseLayers("water:fill:water,labels:symbol:places:name", tile.KindVector)
	require.NoError(t, err)

	want := []style.Layer{
		{ID: "water", Type: style.LayerFill, SourceLayer: "water"},
		{ID: "labels", Type: style.LayerSymbol, SourceLayer: "places", Layout: style.Layout{TextField: "{name}"}},
	}
	if diff := cmp.Diff(want, layers); diff != "" {
		t.Errorf("parseLayers() mismatch (-want +got):\n%s", diff)
	}

	_, err = parseLayers("water:fill", tile.KindVector)
	require.Error(t, err)
	_, err = parseLayers("water:polygon:water", tile.KindVector)
	require.ErrorIs(t, err, style.ErrUnknownLayerType)

	layers, err = parseLayers("", tile.KindRaster)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	require.Equal(t, style.LayerRaster, layers[0].Type)
}

func TestCovering(t *testing.T) {
	bound, err := parseBBox("-180,-85,180,85")
	require.NoError(t, err)
	require.Len(t, covering(bound, 1), 4)
	require.Len(t, covering(bound, 0), 1)

	bound, err = parseBBox("1,1,2,2")
	require.NoError(t, err)
	if got, want := covering(bound, 1), []tile.ID{{X: 1, Y: 0, Z: 1}}; !cmp.Equal(got, want) {
		t.Errorf("covering() = %v, want = %v", got, want)
	}

	_, err = parseBBox("1,2,3")
	require.Error(t, err)
}

func TestDeduceFormat(t *testing.T) {
	tests := []struct {
		format, path, want string
	}{
		{"", "tiles.mbtiles", "mbtiles"},
		{"", "https://example.com/{z}/{x}/{y}.pbf", "http"},
		{"", "tiles/{z}/{x}/{y}.pbf", "xyz"},
		{"mbtiles", "tiles.db", "mbtiles"},
	}
	for _, tt := range tests {
		if got := deduceFormat(tt.format, tt.path); got != tt.want {
			t.Errorf("deduceFormat(%q, %q) = %q, want = %q", tt.format, tt.path, got, tt.want)
		}
	}
}
