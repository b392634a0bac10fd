// Package tilesource defines the unified TileSource interface every
// container reader, processor, and composite operator implements, plus the
// metadata and TileJSON types that describe what a source serves.
package tilesource

import (
	"context"

	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/traversal"
)

// SourceKind classifies a TileSource for diagnostics and VPL error
// messages.
type SourceKind uint8

const (
	KindContainer SourceKind = iota
	KindProcessor
	KindComposite
)

// SourceType names a TileSource's role in a pipeline tree: a leaf container
// reader, a single-input processor, or a composite with multiple inputs.
type SourceType struct {
	Kind  SourceKind
	Name  string
	Inner []SourceType
}

func Container(name string) SourceType {
	return SourceType{Kind: KindContainer, Name: name}
}

func Processor(name string, inner SourceType) SourceType {
	return SourceType{Kind: KindProcessor, Name: name, Inner: []SourceType{inner}}
}

func Composite(name string, inner ...SourceType) SourceType {
	return SourceType{Kind: KindComposite, Name: name, Inner: inner}
}

// Metadata describes a source's tile format, compression, extent, and
// preferred traversal.
type Metadata struct {
	TileFormat      codec.TileFormat
	TileCompression codec.TileCompression
	BBoxPyramid     coord.BBoxPyramid
	Traversal       traversal.Traversal
}

// TileSource is the object-safe interface every container reader,
// transform operator, and composite source implements. Implementations are
// expected to be safe for concurrent use and for sharing behind a single
// pointer across fan-out processors.
type TileSource interface {
	// SourceType identifies this source's role for diagnostics.
	SourceType() SourceType

	// Metadata returns the source's format/compression/extent/traversal.
	Metadata() *Metadata

	// TileJSON returns the source's TileJSON document.
	TileJSON() *TileJSON

	// GetTile fetches a single tile, returning (nil, nil) if it is absent.
	GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error)

	// GetTileStream returns a stream of every present tile within bbox.
	GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error)
}

// GetTileDefault is the default GetTile implementation a TileSource can
// delegate to: fetch a one-tile bbox stream and take its first (and only)
// item.
func GetTileDefault(ctx context.Context, s TileSource, c coord.TileCoord) (*tile.Tile, error) {
	bbox, err := coord.New(c.Level, c.X, c.Y, c.X, c.Y)
	if err != nil {
		return nil, err
	}
	stream, err := s.GetTileStream(ctx, bbox)
	if err != nil {
		return nil, err
	}
	items, err := tilestream.ToVec(stream)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	t := items[0].Value
	return &t, nil
}
