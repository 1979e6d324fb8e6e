package tile

import (
	"cmp"
	"slices"

	"github.com/google/hilbert"
)

// HilbertCode returns the position of the tile along the Hilbert curve of all tiles,
// ordered by zoom level first.
func HilbertCode(tileID ID) uint64 {
	h, _ := hilbert.NewHilbert(1 << tileID.Z)
	tileCode, _ := h.MapInverse(int(tileID.X), int(tileID.Y))

	tilesCount := (1<<(tileID.Z*2) - 1) / 3
	return uint64(tileCode + tilesCount)
}

// SortHilbert orders ids so that spatially close tiles are adjacent.
func SortHilbert(ids []ID) {
	slices.SortStableFunc(ids, func(a, b ID) int {
		return cmp.Compare(HilbertCode(a), HilbertCode(b))
	})
}
