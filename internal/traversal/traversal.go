// Package traversal implements the declarative ordering contract that
// governs how a tile source or writer walks a pyramid, and the algebra for
// composing the traversals of two sources a pipeline operator joins.
package traversal

import "github.com/versatiles-org/versatiles-go/internal/xerrors"

// Order is the sequence in which a source or writer visits tile
// coordinates.
type Order uint8

const (
	// Any lets the caller choose bbox partitioning freely.
	Any Order = iota
	// DepthFirstPreOrder visits a block-aligned quadtree recursively,
	// useful for overview building where children at deeper levels must
	// be produced before their parent can be aggregated.
	DepthFirstPreOrder
	// PMTilesHilbert is the Hilbert-curve order required by the PMTiles
	// writer's clustered layout.
	PMTilesHilbert
)

func (o Order) String() string {
	switch o {
	case DepthFirstPreOrder:
		return "depth_first_pre_order"
	case PMTilesHilbert:
		return "pmtiles_hilbert"
	default:
		return "any"
	}
}

// Traversal is the ordering contract a source advertises and a writer
// consumes: the visiting order, the block width used to group tiles, and
// the maximum number of tiles allowed in flight at once.
type Traversal struct {
	Order            Order
	BlockWidth       uint32
	MaxInFlightTiles uint32
}

// Default is the permissive traversal: any order, single-tile blocks, and
// an effectively unbounded number of in-flight tiles.
func Default() Traversal {
	return Traversal{Order: Any, BlockWidth: 1, MaxInFlightTiles: 1 << 31}
}

// Intersect composes two traversals per the algebra: identical orders (or
// one side being Any) yield the more specific order; conflicting concrete
// orders are an error. Block width and in-flight limits take the minimum
// of both sides, clamped to at least 1.
func Intersect(a, b Traversal) (Traversal, error) {
	order, err := intersectOrder(a.Order, b.Order)
	if err != nil {
		return Traversal{}, err
	}

	blockWidth := minU32(a.BlockWidth, b.BlockWidth)
	if blockWidth < 1 {
		blockWidth = 1
	}

	flight := minU32(a.MaxInFlightTiles, b.MaxInFlightTiles)
	if flight < 1 {
		flight = 1
	}

	return Traversal{Order: order, BlockWidth: blockWidth, MaxInFlightTiles: flight}, nil
}

func intersectOrder(a, b Order) (Order, error) {
	switch {
	case a == b:
		return a, nil
	case a == Any:
		return b, nil
	case b == Any:
		return a, nil
	default:
		return 0, xerrors.Errorf("conflicting traversal orders: %s vs %s", a, b)
	}
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
