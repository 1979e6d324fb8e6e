package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eak1mov/go-tileflow/fetch"
	"github.com/eak1mov/go-tileflow/runloop"
	"github.com/eak1mov/go-tileflow/tile"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) *runloop.Loop {
	t.Helper()
	loop := runloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop
}

func fetchSync(t *testing.T, loop *runloop.Loop, svc fetch.Service, url string) fetch.Response {
	t.Helper()
	responses := make(chan fetch.Response, 2)
	require.NoError(t, loop.Sync(context.Background(), func() {
		svc.Fetch(fetch.Resource{Kind: tile.KindVector, URL: url}, func(res fetch.Response) {
			responses <- res
		})
	}))
	select {
	case res := <-responses:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not complete")
	}
	return fetch.Response{}
}

func TestHTTPService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "tileflow-test" {
			http.Error(w, "bad agent", http.StatusBadRequest)
			return
		}
		switch r.URL.Path {
		case "/0/0/0.pbf":
			w.Write([]byte("payload"))
		case "/1/0/0.pbf":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	loop := startLoop(t)
	svc := fetch.NewHTTPService(loop, fetch.WithClient(server.Client()), fetch.WithUserAgent("tileflow-test"))

	for _, tc := range []struct {
		Path string
		Want fetch.Response
	}{
		{"/0/0/0.pbf", fetch.Response{Status: fetch.StatusSuccessful, Data: []byte("payload")}},
		{"/1/0/0.pbf", fetch.Response{Status: fetch.StatusError, Message: "HTTP status code 500"}},
		{"/2/0/0.pbf", fetch.Response{Status: fetch.StatusNotFound, Message: "HTTP status code 404"}},
	} {
		t.Run(tc.Path, func(t *testing.T) {
			if got := fetchSync(t, loop, svc, server.URL+tc.Path); !cmp.Equal(got, tc.Want) {
				t.Errorf("Fetch(%v) = %+v, want = %+v", tc.Path, got, tc.Want)
			}
		})
	}
}

func TestHTTPServiceCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.Write([]byte("late"))
	}))
	defer server.Close()
	defer close(release)

	loop := startLoop(t)
	svc := fetch.NewHTTPService(loop, fetch.WithClient(server.Client()))

	called := make(chan struct{}, 1)
	var req *fetch.Request
	require.NoError(t, loop.Sync(context.Background(), func() {
		req = svc.Fetch(fetch.Resource{Kind: tile.KindRaster, URL: server.URL + "/0/0/0.png"}, func(fetch.Response) {
			called <- struct{}{}
		})
		req.Cancel()
		req.Cancel()
	}))
	require.True(t, req.Canceled())

	select {
	case <-called:
		t.Fatal("callback fired after Cancel")
	case <-time.After(100 * time.Millisecond):
	}
}

type mapReader map[tile.ID][]byte

func (m mapReader) ReadTile(tileID tile.ID) ([]byte, error) {
	if tileID.Z == 7 {
		return nil, errors.New("disk on fire")
	}
	return m[tileID], nil
}

func TestTilesetService(t *testing.T) {
	loop := startLoop(t)
	reader := mapReader{{X: 1, Y: 2, Z: 3}: []byte("tile123")}

	svc, err := fetch.NewTilesetService(loop, "tiles://osm/{z}/{x}/{y}.pbf", reader)
	require.NoError(t, err)

	for _, tc := range []struct {
		URL  string
		Want fetch.Response
	}{
		{"tiles://osm/3/1/2.pbf", fetch.Response{Status: fetch.StatusSuccessful, Data: []byte("tile123")}},
		{"tiles://osm/3/2/2.pbf", fetch.Response{Status: fetch.StatusNotFound, Message: "tile not found"}},
		{"tiles://osm/7/0/0.pbf", fetch.Response{Status: fetch.StatusError, Message: "disk on fire"}},
	} {
		if got := fetchSync(t, loop, svc, tc.URL); !cmp.Equal(got, tc.Want) {
			t.Errorf("Fetch(%v) = %+v, want = %+v", tc.URL, got, tc.Want)
		}
	}

	got := fetchSync(t, loop, svc, "https://elsewhere/3/1/2.pbf")
	require.Equal(t, fetch.StatusError, got.Status)
}

func TestNewTilesetServiceInvalidPattern(t *testing.T) {
	_, err := fetch.NewTilesetService(runloop.New(), "tiles://osm/{z}.pbf", mapReader{})
	require.Error(t, err)
}
