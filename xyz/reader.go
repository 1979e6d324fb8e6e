package xyz

import (
	"os"
	"path/filepath"

	"github.com/eak1mov/go-tileflow/tile"
)

// Reader implements tile.Reader and tile.Visitor for tiles stored as individual files.
type Reader struct {
	template *Template
	rootDir  string
}

// NewReader creates a new Reader for the given file pattern (e.g. "/home/user/tiles/{z}/{x}/{y}.png").
func NewReader(filePattern string) (*Reader, error) {
	template, err := ParseTemplate(filePattern)
	if err != nil {
		return nil, err
	}

	path0 := template.TileURL(tile.ID{X: 0, Y: 0, Z: 0}, 1)
	path1 := template.TileURL(tile.ID{X: 1, Y: 1, Z: 1}, 1)
	for path0 != path1 {
		path0 = filepath.Dir(path0)
		path1 = filepath.Dir(path1)
	}

	return &Reader{template: template, rootDir: path0}, nil
}

// Template returns the file pattern of the tileset.
func (r *Reader) Template() *Template {
	return r.template
}

func (r *Reader) ReadTile(tileID tile.ID) ([]byte, error) {
	filePath := r.template.TileURL(tileID, 1)
	tileData, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return make([]byte, 0), nil
	}
	if err != nil {
		return nil, err
	}
	return tileData, nil
}

func (r *Reader) VisitTiles(visitor func(tile.ID, []byte) error) error {
	return filepath.WalkDir(r.rootDir, func(filePath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		tileID, ok := r.template.Match(filePath)
		if !ok {
			return nil
		}

		tileData, err := os.ReadFile(filePath)
		if err != nil {
			return err
		}

		return visitor(tileID, tileData)
	})
}
