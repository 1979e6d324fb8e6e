package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/eak1mov/go-tileflow/bucket"
	"github.com/eak1mov/go-tileflow/fetch"
	"github.com/eak1mov/go-tileflow/glyph"
	"github.com/eak1mov/go-tileflow/runloop"
	"github.com/eak1mov/go-tileflow/source"
	"github.com/eak1mov/go-tileflow/style"
	"github.com/eak1mov/go-tileflow/tile"
	"github.com/eak1mov/go-tileflow/tiledata"
	"github.com/eak1mov/go-tileflow/worker"
	"github.com/google/subcommands"
	"github.com/schollz/progressbar/v3"
)

type loadCmd struct {
	inputFormat string
	inputPath   string
	kind        string
	zoom        int
	bbox        string
	layers      string
	glyphs      string
	ratio       float64
	angle       float64
	debug       bool
	workers     int
	timeout     time.Duration
	verbose     bool
}

func (c *loadCmd) Name() string     { return "load" }
func (c *loadCmd) Synopsis() string { return "load and parse tiles through the tile pipeline" }
func (c *loadCmd) Usage() string {
	return "tileflow load -i <path|url> -z <zoom> [-bbox <minLon,minLat,maxLon,maxLat> -layers <id:type:source-layer[:field],...>]\n"
}
func (c *loadCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "i", "", "Input path or URL template")
	f.StringVar(&c.inputFormat, "if", "", "Input format (mbtiles, xyz, http)")
	f.StringVar(&c.kind, "kind", "", "Tile kind (vector, raster), deduced from the input by default")
	f.IntVar(&c.zoom, "z", 0, "Zoom level")
	f.StringVar(&c.bbox, "bbox", "", "Bounding box to load, all tiles of the zoom level by default")
	f.StringVar(&c.layers, "layers", "", "Style layers")
	f.StringVar(&c.glyphs, "glyphs", "", "Glyph URL template with {fontstack} and {range}, built-in font by default")
	f.Float64Var(&c.ratio, "ratio", 1, "Pixel ratio")
	f.Float64Var(&c.angle, "angle", 0, "Map angle in radians used for label placement")
	f.BoolVar(&c.debug, "debug", false, "Record collision boxes")
	f.IntVar(&c.workers, "workers", 0, "Number of parse workers, GOMAXPROCS by default")
	f.DurationVar(&c.timeout, "timeout", time.Minute, "Give up after this long")
	f.BoolVar(&c.verbose, "v", false, "Verbose logging")
}

func (c *loadCmd) logger() *slog.Logger {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (c *loadCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if err := c.run(ctx); err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *loadCmd) run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	logger := c.logger()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loop := runloop.New()
	go loop.Run(loopCtx)

	var poolOpts []worker.Option
	if c.workers > 0 {
		poolOpts = append(poolOpts, worker.WithWorkers(c.workers))
	}
	pool := worker.New(loop, append(poolOpts, worker.WithLogger(logger))...)
	defer pool.Close()

	in, err := openInput(loop, c.inputFormat, c.inputPath, fetch.WithLogger(logger))
	if err != nil {
		return err
	}
	defer in.closer()

	kind, err := parseKind(c.kind)
	if err != nil {
		return err
	}
	if kind == tile.KindUnknown {
		kind = in.kind
	}
	if kind == tile.KindUnknown {
		return fmt.Errorf("cannot deduce tile kind of %q, use -kind", c.inputPath)
	}

	ids, err := c.tiles(in)
	if err != nil {
		return err
	}

	layers, err := parseLayers(c.layers, kind)
	if err != nil {
		return err
	}
	snapshot, err := style.New(layers...)
	if err != nil {
		return err
	}

	opts := []source.Option{source.WithStyle(snapshot), source.WithLogger(logger)}
	if c.glyphs != "" && kind == tile.KindVector {
		store, err := glyph.NewStore(glyph.NewFetchLoader(fetch.NewHTTPService(loop), c.glyphs), glyph.WithLogger(logger))
		if err != nil {
			return err
		}
		opts = append(opts, source.WithGlyphs(store))
	}

	bar := progressbar.NewOptions(-1, progressbar.OptionShowIts(), progressbar.OptionShowCount())
	var src *source.Source
	finished := make(map[tile.ID]bool)
	opts = append(opts, source.WithObserver(func(id tile.ID) {
		if data := src.Tile(id); data != nil && data.State().Immutable() && !finished[id] {
			finished[id] = true
			bar.Add(1)
		}
	}))

	info := source.Info{ID: "input", URLTemplate: in.template, Kind: kind, MaxZoom: in.maxZoom}
	var newErr error
	err = loop.Sync(ctx, func() {
		src, newErr = source.New(info, loop, pool, in.service, opts...)
		if newErr == nil {
			src.RedoPlacement(c.angle, c.debug)
			src.Update(ids, c.ratio)
		}
	})
	if err != nil {
		return err
	}
	if newErr != nil {
		return newErr
	}
	defer loop.Sync(context.Background(), src.Close)

	if err := waitLoaded(ctx, loop, pool, src, bar); err != nil {
		return err
	}
	bar.Finish()
	fmt.Println()

	return loop.Sync(ctx, func() {
		for _, data := range src.Tiles() {
			printTile(data)
		}
	})
}

func (c *loadCmd) tiles(in *input) ([]tile.ID, error) {
	if c.zoom < 0 {
		return nil, fmt.Errorf("invalid zoom: %d", c.zoom)
	}
	z := uint32(c.zoom)
	if c.bbox != "" {
		bound, err := parseBBox(c.bbox)
		if err != nil {
			return nil, err
		}
		return covering(bound, z), nil
	}
	if in.visitor == nil {
		return nil, fmt.Errorf("-bbox is required for %s inputs", in.format)
	}
	return tile.CollectIDs(in.visitor, z)
}

func waitLoaded(ctx context.Context, loop *runloop.Loop, pool *worker.Pool, src *source.Source, bar *progressbar.ProgressBar) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		var loaded bool
		var ready int
		err := loop.Sync(ctx, func() {
			loaded = src.Loaded()
			for _, data := range src.Tiles() {
				if data.State().Ready() {
					ready++
				}
			}
		})
		if err != nil {
			return err
		}
		bar.Describe(fmt.Sprintf("ready %d, queued %d", ready, pool.Queued()))
		if loaded {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printTile(data tiledata.Data) {
	var buckets, labels int
	switch d := data.(type) {
	case *tiledata.Vector:
		for _, b := range d.Buckets() {
			buckets++
			if s, ok := b.(*bucket.Symbol); ok && s.RenderData() != nil {
				labels += len(s.RenderData().Placed)
			}
		}
	case *tiledata.Raster:
		if d.Bucket("") != nil {
			buckets++
		}
	}
	fmt.Printf("%s\t%s\tbuckets=%d\tlabels=%d\t%s\n", data.ID(), data.State(), buckets, labels, data.Error())
}
