package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/eak1mov/go-tileflow/tile"
	"github.com/google/subcommands"
)

type listCmd struct {
	inputFormat string
	inputPath   string
	zoom        int
}

func (c *listCmd) Name() string     { return "list" }
func (c *listCmd) Synopsis() string { return "list tiles of a tileset" }
func (c *listCmd) Usage() string {
	return "tileflow list -i <path> [-if <format> -z <zoom>]\n"
}
func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "i", "", "Input path (MBTiles file or xyz pattern)")
	f.StringVar(&c.inputFormat, "if", "", "Input format (mbtiles, xyz)")
	f.IntVar(&c.zoom, "z", -1, "Only list tiles of this zoom level")
}

func (c *listCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	visitor, closer, err := openVisitor(deduceFormat(c.inputFormat, c.inputPath), c.inputPath)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer closer()

	var ids []tile.ID
	sizes := make(map[tile.ID]int)
	err = visitor.VisitTiles(func(tileID tile.ID, tileData []byte) error {
		if c.zoom < 0 || tileID.Z == uint32(c.zoom) {
			ids = append(ids, tileID)
			sizes[tileID] = len(tileData)
		}
		return nil
	})
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	tile.SortHilbert(ids)
	for _, id := range ids {
		fmt.Printf("%s\t%d\n", id, sizes[id])
	}
	return subcommands.ExitSuccess
}
