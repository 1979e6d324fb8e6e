package glyph_test

import (
	"errors"
	"testing"

	"github.com/eak1mov/go-tileflow/fetch"
	"github.com/eak1mov/go-tileflow/glyph"
	"github.com/eak1mov/go-tileflow/runloop"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type pendingLoad struct {
	fontStack string
	r         glyph.Range
	done      func(error)
}

type manualLoader struct {
	loads []pendingLoad
}

func (l *manualLoader) Load(fontStack string, r glyph.Range, done func(error)) {
	l.loads = append(l.loads, pendingLoad{fontStack, r, done})
}

func TestRanges(t *testing.T) {
	got := glyph.Ranges("Zürich Ωmega Ö")
	want := []glyph.Range{{0, 255}, {768, 1023}}
	if !cmp.Equal(got, want) {
		t.Errorf("Ranges() = %v, want = %v", got, want)
	}
	require.Equal(t, "768-1023", glyph.RangeOf('Ω').String())
	require.Empty(t, glyph.Ranges(""))
}

func TestStoreLifecycle(t *testing.T) {
	loader := &manualLoader{}
	store, err := glyph.NewStore(loader)
	require.NoError(t, err)

	notified := 0
	remove := store.Observe(func() { notified++ })

	missing, err := store.Missing("Sans", "Ωx")
	require.NoError(t, err)
	require.Len(t, missing, 2)

	store.Request("Sans", missing)
	store.Request("Sans", missing)
	require.Len(t, loader.loads, 2, "ranges are requested once")

	missing, err = store.Missing("Sans", "Ωx")
	require.NoError(t, err)
	require.Len(t, missing, 2, "requested ranges stay missing until loaded")

	loader.loads[0].done(nil)
	require.Equal(t, 1, notified)

	missing, err = store.Missing("Sans", "x")
	require.NoError(t, err)
	require.Empty(t, missing)

	missing, err = store.Missing("Serif", "x")
	require.NoError(t, err)
	require.Len(t, missing, 1, "availability is per font stack")

	remove()
	loader.loads[1].done(errors.New("404"))
	require.Equal(t, 1, notified)

	_, err = store.Missing("Sans", "Ω")
	require.ErrorIs(t, err, glyph.ErrLoadFailed)
	require.ErrorContains(t, err, "404")
}

func TestLocalLoader(t *testing.T) {
	loop := runloop.New()
	store, err := glyph.NewStore(glyph.NewLocalLoader(loop))
	require.NoError(t, err)

	missing, err := store.Missing("Sans", "abc")
	require.NoError(t, err)
	store.Request("Sans", missing)

	loop.RunPending()
	missing, err = store.Missing("Sans", "abc")
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestMetrics(t *testing.T) {
	m, err := glyph.NewDefaultMetrics()
	require.NoError(t, err)

	w1, h1 := m.Measure("Main Street", 12)
	w2, h2 := m.Measure("Main Street", 24)
	require.Greater(t, w1, 0.0)
	require.Greater(t, h1, 0.0)
	require.InDelta(t, 2*w1, w2, 1e-6)
	require.InDelta(t, 2*h1, h2, 1e-6)

	wShort, _ := m.Measure("Main", 12)
	require.Less(t, wShort, w1)
}

type recordingService struct {
	urls   []string
	status fetch.Status
}

func (s *recordingService) Fetch(res fetch.Resource, callback func(fetch.Response)) *fetch.Request {
	s.urls = append(s.urls, res.URL)
	callback(fetch.Response{Status: s.status, Message: "gone"})
	return nil
}

func TestFetchLoader(t *testing.T) {
	svc := &recordingService{status: fetch.StatusSuccessful}
	loader := glyph.NewFetchLoader(svc, "https://fonts.example.com/{fontstack}/{range}.pbf")

	var got []error
	loader.Load("Open Sans Regular", glyph.Range{Start: 256, End: 511}, func(err error) { got = append(got, err) })
	svc.status = fetch.StatusNotFound
	loader.Load("Open Sans Regular", glyph.Range{Start: 0, End: 255}, func(err error) { got = append(got, err) })

	require.Equal(t, []string{
		"https://fonts.example.com/Open Sans Regular/256-511.pbf",
		"https://fonts.example.com/Open Sans Regular/0-255.pbf",
	}, svc.urls)
	require.Len(t, got, 2)
	require.NoError(t, got[0])
	require.ErrorIs(t, got[1], glyph.ErrLoadFailed)
}
