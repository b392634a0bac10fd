package traversal

import (
	"sort"

	"github.com/versatiles-org/versatiles-go/internal/coord"
)

// Walk returns the tile coordinates of bbox in the order t.Order demands,
// grouped into blocks of t.BlockWidth where the order cares about grouping.
func Walk(t Traversal, bbox coord.TileBBox) []coord.TileCoord {
	switch t.Order {
	case PMTilesHilbert:
		return walkHilbert(bbox)
	case DepthFirstPreOrder:
		return walkDepthFirstPreOrder(bbox, t.BlockWidth)
	default:
		return walkRowMajor(bbox)
	}
}

func walkRowMajor(bbox coord.TileBBox) []coord.TileCoord {
	return bbox.IntoCoords()
}

// walkHilbert visits coordinates in ascending Hilbert-ID order, the order
// the PMTiles writer's clustered directory requires (entries in a clustered
// archive are sorted by TileID, which is the Hilbert ID).
func walkHilbert(bbox coord.TileBBox) []coord.TileCoord {
	coords := bbox.IntoCoords()
	sort.Slice(coords, func(i, j int) bool {
		return coord.HilbertID(coords[i]) < coord.HilbertID(coords[j])
	})
	return coords
}

// walkDepthFirstPreOrder groups the coordinates of bbox into block-aligned
// blockWidth x blockWidth blocks and emits the blocks one after another in
// row-major order, each block's tiles row-major. It orders the tiles of a
// single level only; it does not order blocks across levels.
func walkDepthFirstPreOrder(bbox coord.TileBBox, blockWidth uint32) []coord.TileCoord {
	if blockWidth < 1 {
		blockWidth = 1
	}
	if bbox.IsEmpty() {
		return nil
	}
	var out []coord.TileCoord
	for y0 := bbox.YMin - bbox.YMin%blockWidth; y0 <= bbox.YMax; y0 += blockWidth {
		for x0 := bbox.XMin - bbox.XMin%blockWidth; x0 <= bbox.XMax; x0 += blockWidth {
			block := coord.TileBBox{
				Level: bbox.Level,
				XMin:  max(x0, bbox.XMin), YMin: max(y0, bbox.YMin),
				XMax: min(x0+blockWidth-1, bbox.XMax), YMax: min(y0+blockWidth-1, bbox.YMax),
			}
			out = append(out, block.IntoCoords()...)
		}
	}
	return out
}
