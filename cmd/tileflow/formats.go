package main

import (
	"fmt"
	"strings"

	"github.com/eak1mov/go-tileflow/fetch"
	"github.com/eak1mov/go-tileflow/mb"
	"github.com/eak1mov/go-tileflow/runloop"
	"github.com/eak1mov/go-tileflow/tile"
	"github.com/eak1mov/go-tileflow/xyz"
)

func deduceFormat(format, path string) string {
	if format != "" {
		return format
	}
	switch {
	case strings.HasSuffix(path, ".mbtiles"):
		return "mbtiles"
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		return "http"
	}
	return "xyz"
}

// input is an opened tile source for the load pipeline.
type input struct {
	format   string
	template string    // URL template handed to the source
	kind     tile.Kind // tile.KindUnknown if it cannot be told from the input
	maxZoom  uint32
	visitor  tile.Visitor // nil for remote inputs
	service  fetch.Service
	closer   func() error
}

func openVisitor(format, path string) (tile.Visitor, func() error, error) {
	switch format {
	case "mbtiles":
		r, err := mb.NewReader(path)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	case "xyz":
		r, err := xyz.NewReader(path)
		if err != nil {
			return nil, nil, err
		}
		return r, func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("invalid tileset format: %q", format)
}

func openInput(loop *runloop.Loop, format, path string, opts ...fetch.Option) (*input, error) {
	in := &input{format: deduceFormat(format, path), maxZoom: 14, closer: func() error { return nil }}

	switch in.format {
	case "http":
		in.template = path
		in.service = fetch.NewHTTPService(loop, opts...)
		return in, nil
	case "mbtiles":
		r, err := mb.NewReader(path)
		if err != nil {
			return nil, err
		}
		in.closer = r.Close
		if in.kind, err = r.Kind(); err != nil {
			r.Close()
			return nil, err
		}
		in.maxZoom = r.MaxZoom(in.maxZoom)
		in.template = "{z}/{x}/{y}"
		in.visitor = r
		in.service, err = fetch.NewTilesetService(loop, in.template, r, opts...)
		if err != nil {
			r.Close()
			return nil, err
		}
		return in, nil
	case "xyz":
		r, err := xyz.NewReader(path)
		if err != nil {
			return nil, err
		}
		in.template = path
		in.visitor = r
		in.kind = kindFromPath(path)
		in.service, err = fetch.NewTilesetService(loop, path, r, opts...)
		if err != nil {
			return nil, err
		}
		return in, nil
	}
	return nil, fmt.Errorf("invalid input format: %q", in.format)
}

func kindFromPath(path string) tile.Kind {
	switch {
	case strings.HasSuffix(path, ".pbf"), strings.HasSuffix(path, ".mvt"):
		return tile.KindVector
	case strings.HasSuffix(path, ".png"), strings.HasSuffix(path, ".jpg"), strings.HasSuffix(path, ".webp"):
		return tile.KindRaster
	}
	return tile.KindUnknown
}

func parseKind(name string) (tile.Kind, error) {
	switch name {
	case "vector":
		return tile.KindVector, nil
	case "raster":
		return tile.KindRaster, nil
	case "":
		return tile.KindUnknown, nil
	}
	return tile.KindUnknown, fmt.Errorf("invalid tile kind: %q", name)
}
