package pipeline

import (
	"context"

	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/traversal"
)

// fakeSource is the same minimal in-memory TileSource test double the
// converter package's own tests use (internal/converter/converter_test.go),
// reimplemented here since it is unexported there.
type fakeSource struct {
	name   string
	tiles  map[coord.TileCoord][]byte
	format codec.TileFormat
	meta   tilesource.Metadata
	tj     tilesource.TileJSON
}

func newFakeSource(name string, format codec.TileFormat) *fakeSource {
	return &fakeSource{
		name:   name,
		tiles:  make(map[coord.TileCoord][]byte),
		format: format,
		meta: tilesource.Metadata{
			TileFormat:      format,
			TileCompression: codec.CompressionNone,
			BBoxPyramid:     *coord.NewPyramid(),
			Traversal:       traversal.Default(),
		},
		tj: tilesource.Default(),
	}
}

func (f *fakeSource) put(c coord.TileCoord, data []byte) {
	f.tiles[c] = data
	f.meta.BBoxPyramid.IncludeCoord(c)
}

func (f *fakeSource) SourceType() tilesource.SourceType { return tilesource.Container(f.name) }
func (f *fakeSource) Metadata() *tilesource.Metadata     { return &f.meta }
func (f *fakeSource) TileJSON() *tilesource.TileJSON     { return &f.tj }

func (f *fakeSource) GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error) {
	return tilesource.GetTileDefault(ctx, f, c)
}

func (f *fakeSource) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	var items []tilestream.Item[tile.Tile]
	for c, data := range f.tiles {
		if bbox.Contains(c) {
			items = append(items, tilestream.Item[tile.Tile]{
				Coord: c,
				Value: tile.FromBlob(byteio.NewBlob(data), f.meta.TileCompression, f.format),
			})
		}
	}
	return tilestream.FromSlice(items), nil
}
