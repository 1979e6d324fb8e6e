package fetch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eak1mov/go-tileflow/runloop"
	"github.com/eak1mov/go-tileflow/tile"
	"github.com/eak1mov/go-tileflow/xyz"
)

// TilesetService serves tile URLs from a local tileset. URLs are mapped back to tile
// coordinates with an xyz template, so the same template that builds tile URLs for a
// source can address an MBTiles file or a tile directory.
type TilesetService struct {
	loop     *runloop.Loop
	template *xyz.Template
	reader   tile.Reader
	logger   *slog.Logger
}

func NewTilesetService(loop *runloop.Loop, pattern string, reader tile.Reader, opts ...Option) (*TilesetService, error) {
	template, err := xyz.ParseTemplate(pattern)
	if err != nil {
		return nil, err
	}
	c := newConfig(opts)
	return &TilesetService{
		loop:     loop,
		template: template,
		reader:   reader,
		logger:   c.Logger,
	}, nil
}

func (s *TilesetService) Fetch(res Resource, callback func(Response)) *Request {
	return Start(s.loop, func(context.Context) Response {
		return s.read(res)
	}, callback)
}

func (s *TilesetService) read(res Resource) Response {
	tileID, ok := s.template.Match(res.URL)
	if !ok {
		return Response{Status: StatusError, Message: fmt.Sprintf("address does not match %q", s.template)}
	}

	tileData, err := s.reader.ReadTile(tileID)
	if err != nil {
		s.logger.Warn("tileflow: tileset read failed", "tile", tileID, "error", err)
		return Response{Status: StatusError, Message: err.Error()}
	}
	if len(tileData) == 0 {
		return Response{Status: StatusNotFound, Message: "tile not found"}
	}
	return Response{Status: StatusSuccessful, Data: tileData}
}
