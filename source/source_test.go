package source_test

import (
	"image/color"
	"testing"
	"time"

	"github.com/eak1mov/go-tileflow/bucket"
	"github.com/eak1mov/go-tileflow/fetch"
	"github.com/eak1mov/go-tileflow/internal/testutil"
	"github.com/eak1mov/go-tileflow/runloop"
	"github.com/eak1mov/go-tileflow/source"
	"github.com/eak1mov/go-tileflow/style"
	"github.com/eak1mov/go-tileflow/tile"
	"github.com/eak1mov/go-tileflow/tiledata"
	"github.com/eak1mov/go-tileflow/worker"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const pattern = "tiles/{z}/{x}/{y}.pbf"

var (
	tileA = tile.ID{X: 0, Y: 0, Z: 2}
	tileB = tile.ID{X: 1, Y: 0, Z: 2}
	tileC = tile.ID{X: 1, Y: 1, Z: 2}
)

type env struct {
	loop    *runloop.Loop
	pool    *worker.Pool
	tileset *testutil.Tileset
	fetcher fetch.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{loop: runloop.New(), tileset: testutil.NewTileset()}
	e.pool = worker.New(e.loop, worker.WithWorkers(2))
	t.Cleanup(e.pool.Close)

	var err error
	e.fetcher, err = fetch.NewTilesetService(e.loop, pattern, e.tileset)
	require.NoError(t, err)
	return e
}

func (e *env) pump(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for the loop")
		}
		if e.loop.RunPending() == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

func labelStyle(t *testing.T) *style.Snapshot {
	t.Helper()
	snapshot, err := style.New(
		style.Layer{ID: "water", Type: style.LayerFill, SourceLayer: "water"},
		style.Layer{ID: "labels", Type: style.LayerSymbol, SourceLayer: "places", Layout: style.Layout{TextField: "{name}"}},
	)
	require.NoError(t, err)
	return snapshot
}

func newSource(t *testing.T, e *env, opts ...source.Option) *source.Source {
	t.Helper()
	info := source.Info{ID: "streets", URLTemplate: pattern, Kind: tile.KindVector, TileSize: 512, MaxZoom: 14}
	s, err := source.New(info, e.loop, e.pool, e.fetcher, append([]source.Option{source.WithStyle(labelStyle(t))}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func (e *env) put(t *testing.T, ids ...tile.ID) {
	for _, id := range ids {
		e.tileset.Put(id, testutil.Streets(t))
	}
}

func TestUpdateLoadsVisibleTiles(t *testing.T) {
	e := newEnv(t)
	e.put(t, tileA, tileB, tileC)

	progress := make(map[tile.ID]int)
	s := newSource(t, e, source.WithObserver(func(id tile.ID) { progress[id]++ }))
	s.Update([]tile.ID{tileC, tileA, tileB}, 1)
	require.False(t, s.Loaded())

	e.pump(t, s.Loaded)
	var ids []tile.ID
	for _, data := range s.Tiles() {
		require.Equal(t, tile.StateParsed, data.State(), data.ID())
		require.NotNil(t, data.Bucket("water"))
		require.NotNil(t, data.Bucket("labels"), "glyphs arrive and partial tiles are reparsed")
		ids = append(ids, data.ID())
	}
	want := []tile.ID{tileA, tileB, tileC}
	tile.SortHilbert(want)
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("Tiles() mismatch (-want +got):\n%s", diff)
	}
	for _, id := range ids {
		require.GreaterOrEqual(t, progress[id], 1)
		require.Equal(t, 1, e.tileset.Reads(id))
	}
}

func TestHiddenTilesAreCached(t *testing.T) {
	e := newEnv(t)
	e.put(t, tileA, tileB)
	s := newSource(t, e)

	s.Update([]tile.ID{tileA, tileB}, 1)
	e.pump(t, s.Loaded)
	a := s.Tile(tileA)

	s.Update([]tile.ID{tileB}, 1)
	require.Nil(t, s.Tile(tileA))
	require.Equal(t, []tile.ID{tileA}, s.Cached())
	require.Equal(t, tile.StateParsed, a.State())

	s.Update([]tile.ID{tileA, tileB}, 1)
	require.Same(t, a, s.Tile(tileA))
	require.Empty(t, s.Cached())
	require.Equal(t, tile.StateParsed, a.State(), "reused tiles are not destroyed")
	require.Equal(t, 1, e.tileset.Reads(tileA))
}

func TestCacheEvictionDestroys(t *testing.T) {
	e := newEnv(t)
	e.put(t, tileA, tileB, tileC)
	s := newSource(t, e, source.WithCacheSize(1))

	s.Update([]tile.ID{tileA, tileB, tileC}, 1)
	e.pump(t, s.Loaded)
	tiles := s.Tiles()

	s.Update(nil, 1)
	cached := s.Cached()
	require.Len(t, cached, 1)

	for _, data := range tiles {
		want := tile.StateObsolete
		if data.ID() == cached[0] {
			want = tile.StateParsed
		}
		require.Equal(t, want, data.State(), data.ID())
	}
}

func TestUnfinishedTilesAreDestroyed(t *testing.T) {
	e := newEnv(t)
	e.put(t, tileA)
	s := newSource(t, e)

	s.Update([]tile.ID{tileA}, 1)
	a := s.Tile(tileA)
	require.Equal(t, tile.StateLoading, a.State())

	s.Update(nil, 1)
	require.Equal(t, tile.StateObsolete, a.State())
	require.Empty(t, s.Cached())
}

func TestOverscaledTiles(t *testing.T) {
	e := newEnv(t)
	data := tile.ID{X: 2, Y: 4, Z: 3}
	e.put(t, data)

	info := source.Info{ID: "streets", URLTemplate: pattern, Kind: tile.KindVector, MinZoom: 2, MaxZoom: 3}
	s, err := source.New(info, e.loop, e.pool, e.fetcher, source.WithStyle(labelStyle(t)))
	require.NoError(t, err)
	t.Cleanup(s.Close)

	s.Update([]tile.ID{{X: 9, Y: 17, Z: 5}, {X: 8, Y: 16, Z: 5}, {X: 0, Y: 0, Z: 1}}, 1)
	e.pump(t, s.Loaded)

	tiles := s.Tiles()
	require.Len(t, tiles, 1, "both display tiles share one data tile, z1 is below the min zoom")
	require.Equal(t, tile.ID{X: 2, Y: 4, Z: 3, Overscaling: 4}, tiles[0].ID())
	require.Equal(t, tile.StateParsed, tiles[0].State())
	require.Equal(t, 1, e.tileset.Reads(data))
}

func TestSetStyleReparsesVisibleAndCached(t *testing.T) {
	e := newEnv(t)
	e.put(t, tileA, tileB)
	s := newSource(t, e)

	s.Update([]tile.ID{tileA, tileB}, 1)
	e.pump(t, s.Loaded)
	a := s.Tile(tileA)
	s.Update([]tile.ID{tileB}, 1)

	next, err := style.New(style.Layer{ID: "roads", Type: style.LayerLine, SourceLayer: "roads"})
	require.NoError(t, err)
	s.SetStyle(next)

	e.pump(t, func() bool { return a.Bucket("roads") != nil && s.Tile(tileB).Bucket("roads") != nil })
	require.Nil(t, a.Bucket("water"))
	require.Equal(t, 1, e.tileset.Reads(tileA))
}

func TestRedoPlacementForwarded(t *testing.T) {
	e := newEnv(t)
	e.put(t, tileA, tileB)
	s := newSource(t, e)

	s.RedoPlacement(0.25, true)
	s.Update([]tile.ID{tileA}, 1)
	e.pump(t, s.Loaded)

	angle := func(data tiledata.Data) float64 {
		return data.Bucket("labels").(*bucket.Symbol).RenderData().Angle
	}
	require.Equal(t, 0.25, angle(s.Tile(tileA)), "new tiles start with the current placement")

	s.RedoPlacement(1, false)
	e.pump(t, func() bool { return angle(s.Tile(tileA)) == 1 })

	s.Update([]tile.ID{tileA, tileB}, 1)
	e.pump(t, s.Loaded)
	require.Equal(t, 1.0, angle(s.Tile(tileB)))
}

func TestCachedTilesReplacedOnReturn(t *testing.T) {
	e := newEnv(t)
	e.put(t, tileA, tileB)
	s := newSource(t, e)

	s.Update([]tile.ID{tileA, tileB}, 1)
	e.pump(t, s.Loaded)

	s.Update([]tile.ID{tileB}, 1)
	s.RedoPlacement(1, true)
	e.pump(t, s.Loaded)

	s.Update([]tile.ID{tileA, tileB}, 1)
	e.pump(t, s.Loaded)
	data := s.Tile(tileA).Bucket("labels").(*bucket.Symbol).RenderData()
	require.Equal(t, 1.0, data.Angle)
	require.NotEmpty(t, data.Boxes, "debug boxes follow the current flag")
	require.Equal(t, 1, e.tileset.Reads(tileA))
}

func TestRasterSource(t *testing.T) {
	e := newEnv(t)
	e.tileset.Put(tileA, testutil.PNG(t, 2, 2, color.Black))

	info := source.Info{ID: "imagery", URLTemplate: pattern, Kind: tile.KindRaster}
	s, err := source.New(info, e.loop, e.pool, e.fetcher)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	s.Update([]tile.ID{tileA}, 2)
	e.pump(t, s.Loaded)
	r, ok := s.Tile(tileA).Bucket("imagery").(*bucket.Raster)
	require.True(t, ok)
	require.Equal(t, "imagery", r.Layer())
}

func TestNewRejectsUnknownKind(t *testing.T) {
	e := newEnv(t)
	_, err := source.New(source.Info{URLTemplate: pattern, Kind: tile.KindGlyphs}, e.loop, e.pool, e.fetcher)
	require.ErrorIs(t, err, source.ErrUnsupportedKind)
}
