// Package source manages the tile records of one tile source: it creates records for the
// tiles that come into view, keeps recently hidden tiles in a cache and destroys the rest.
//
// A Source is owned by the loop; none of its methods are safe for concurrent use.
package source

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/eak1mov/go-tileflow/fetch"
	"github.com/eak1mov/go-tileflow/glyph"
	"github.com/eak1mov/go-tileflow/runloop"
	"github.com/eak1mov/go-tileflow/style"
	"github.com/eak1mov/go-tileflow/tile"
	"github.com/eak1mov/go-tileflow/tiledata"
	"github.com/eak1mov/go-tileflow/worker"
	"github.com/eak1mov/go-tileflow/xyz"
	lru "github.com/hashicorp/golang-lru/v2"
)

var ErrUnsupportedKind = errors.New("tileflow: unsupported source kind")

const DefaultCacheSize = 16

// Info describes a tile source.
type Info struct {
	ID          string
	URLTemplate string
	Kind        tile.Kind
	TileSize    float64
	MinZoom     uint32
	MaxZoom     uint32
}

type sourceConfig struct {
	CacheSize int
	Observer  func(tile.ID)
	Glyphs    *glyph.Store
	Style     *style.Snapshot
	Logger    *slog.Logger
}

type Option func(*sourceConfig)

// WithCacheSize sets how many hidden parsed tiles are kept for reuse.
func WithCacheSize(size int) Option {
	return func(c *sourceConfig) { c.CacheSize = size }
}

// WithObserver registers fn to run whenever a tile reports progress.
func WithObserver(fn func(tile.ID)) Option {
	return func(c *sourceConfig) { c.Observer = fn }
}

// WithGlyphs sets the glyph store used by symbol layers. By default glyphs come from the
// built-in font.
func WithGlyphs(store *glyph.Store) Option {
	return func(c *sourceConfig) { c.Glyphs = store }
}

func WithStyle(snapshot *style.Snapshot) Option {
	return func(c *sourceConfig) { c.Style = snapshot }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *sourceConfig) { c.Logger = logger }
}

type Source struct {
	info     Info
	env      *tiledata.Env
	style    *style.Snapshot
	observer func(tile.ID)
	logger   *slog.Logger

	tiles        map[tile.ID]tiledata.Data
	cache        *lru.Cache[tile.ID, tiledata.Data]
	stopObserver func()

	angle float64
	debug bool
}

func New(info Info, loop *runloop.Loop, pool *worker.Pool, fetcher fetch.Service, opts ...Option) (*Source, error) {
	if info.Kind != tile.KindVector && info.Kind != tile.KindRaster {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedKind, info.Kind)
	}
	if info.MaxZoom == 0 {
		info.MaxZoom = 22
	}
	template, err := xyz.ParseTemplate(info.URLTemplate)
	if err != nil {
		return nil, err
	}

	config := sourceConfig{
		CacheSize: DefaultCacheSize,
		Logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Glyphs == nil && info.Kind == tile.KindVector {
		config.Glyphs, err = glyph.NewStore(glyph.NewLocalLoader(loop), glyph.WithLogger(config.Logger))
		if err != nil {
			return nil, err
		}
	}
	if config.Style == nil {
		if config.Style, err = style.New(); err != nil {
			return nil, err
		}
	}

	s := &Source{
		info:  info,
		style: config.Style,
		env: &tiledata.Env{
			SourceID: info.ID,
			Template: template,
			Fetcher:  fetcher,
			Pool:     pool,
			Glyphs:   config.Glyphs,
			TileSize: info.TileSize,
			Logger:   config.Logger,
		},
		observer: config.Observer,
		logger:   config.Logger.With("source", info.ID),
		tiles:    make(map[tile.ID]tiledata.Data),
	}

	s.cache, err = lru.NewWithEvict(max(config.CacheSize, 1), s.evicted)
	if err != nil {
		return nil, err
	}
	if config.Glyphs != nil {
		s.stopObserver = config.Glyphs.Observe(s.glyphsLoaded)
	}
	return s, nil
}

func (s *Source) evicted(id tile.ID, data tiledata.Data) {
	if s.tiles[id] == data {
		// moved back into view
		return
	}
	s.logger.Debug("tileflow: tile evicted", "tile", id.String())
	data.Destroy()
}

// Update makes ids the visible tile set. Display tiles beyond the source max zoom are
// served by overscaled data tiles, and tiles below the min zoom are skipped.
func (s *Source) Update(ids []tile.ID, pixelRatio float64) {
	wanted := make(map[tile.ID]bool, len(ids))
	for _, id := range ids {
		if id.Z < s.info.MinZoom {
			continue
		}
		wanted[id.Overscaled(s.info.MaxZoom)] = true
	}

	for id, data := range s.tiles {
		if wanted[id] {
			continue
		}
		delete(s.tiles, id)
		if data.State() == tile.StateParsed {
			s.cache.Add(id, data)
		} else {
			data.Destroy()
		}
	}

	var created []tile.ID
	for id := range wanted {
		if _, ok := s.tiles[id]; ok {
			continue
		}
		if data, ok := s.cache.Peek(id); ok {
			s.tiles[id] = data
			s.cache.Remove(id)
			if v, ok := data.(*tiledata.Vector); ok {
				v.RedoPlacement(s.angle, s.debug)
			}
			continue
		}
		created = append(created, id)
	}

	tile.SortHilbert(created)
	for _, id := range created {
		data := s.newTile(id)
		s.tiles[id] = data
		data.Request(pixelRatio, s.progress(id))
	}
	if len(created) > 0 {
		s.logger.Debug("tileflow: tiles requested", "count", len(created), "visible", len(s.tiles))
	}
}

func (s *Source) newTile(id tile.ID) tiledata.Data {
	if s.info.Kind == tile.KindRaster {
		return tiledata.NewRaster(id, s.env)
	}
	v := tiledata.NewVector(id, s.env, s.style)
	v.RedoPlacement(s.angle, s.debug)
	return v
}

func (s *Source) progress(id tile.ID) func() {
	return func() {
		if s.observer != nil {
			s.observer(id)
		}
	}
}

// SetStyle reparses every vector tile, visible or cached, with snapshot.
func (s *Source) SetStyle(snapshot *style.Snapshot) {
	s.style = snapshot
	for _, data := range s.all() {
		if v, ok := data.(*tiledata.Vector); ok {
			v.SetStyle(snapshot)
		}
	}
}

// RedoPlacement forwards a new map angle or debug flag to the visible vector tiles.
// Cached tiles pick the values up when Update brings them back into view.
func (s *Source) RedoPlacement(angle float64, debug bool) {
	s.angle, s.debug = angle, debug
	for _, data := range s.tiles {
		if v, ok := data.(*tiledata.Vector); ok {
			v.RedoPlacement(angle, debug)
		}
	}
}

func (s *Source) glyphsLoaded() {
	for id, data := range s.tiles {
		if data.State() == tile.StatePartial {
			data.Reparse(s.progress(id))
		}
	}
}

// Tile returns the visible record of a data tile.
func (s *Source) Tile(id tile.ID) tiledata.Data {
	return s.tiles[id]
}

// Tiles returns the visible records in Hilbert order.
func (s *Source) Tiles() []tiledata.Data {
	ids := make([]tile.ID, 0, len(s.tiles))
	for id := range s.tiles {
		ids = append(ids, id)
	}
	tile.SortHilbert(ids)

	tiles := make([]tiledata.Data, 0, len(ids))
	for _, id := range ids {
		tiles = append(tiles, s.tiles[id])
	}
	return tiles
}

// Cached returns the IDs of hidden tiles kept for reuse, oldest first.
func (s *Source) Cached() []tile.ID {
	return s.cache.Keys()
}

// Loaded reports whether every visible tile reached a final state and has no placement
// in flight.
func (s *Source) Loaded() bool {
	for _, data := range s.tiles {
		if !data.State().Immutable() {
			return false
		}
		if v, ok := data.(*tiledata.Vector); ok && v.Placing() {
			return false
		}
	}
	return true
}

func (s *Source) all() []tiledata.Data {
	return slices.Concat(s.Tiles(), s.cache.Values())
}

// Close destroys every record and detaches from the glyph store.
func (s *Source) Close() {
	if s.stopObserver != nil {
		s.stopObserver()
		s.stopObserver = nil
	}
	for id, data := range s.tiles {
		delete(s.tiles, id)
		data.Destroy()
	}
	s.cache.Purge()
}
