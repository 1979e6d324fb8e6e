package tile

import (
	"errors"
	"iter"
)

var errVisitCancelled = errors.New("visit cancelled")

// IterTiles returns an iterator over all tiles in the tileset.
// It yields tile IDs and their data. Iteration may panic on unrecoverable errors.
func IterTiles(r Visitor) iter.Seq2[ID, []byte] {
	return func(yield func(ID, []byte) bool) {
		err := r.VisitTiles(func(tileID ID, tileData []byte) error {
			if !yield(tileID, tileData) {
				return errVisitCancelled
			}
			return nil
		})
		if err != nil && err != errVisitCancelled {
			panic(err)
		}
	}
}

// CollectIDs returns the IDs of all tiles at zoom z in the tileset.
func CollectIDs(r Visitor, z uint32) ([]ID, error) {
	ids := make([]ID, 0)
	err := r.VisitTiles(func(tileID ID, _ []byte) error {
		if tileID.Z == z {
			ids = append(ids, tileID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
