package tilesource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
)

type memorySource struct {
	tiles map[coord.TileCoord]tile.Tile
	meta  Metadata
	tj    TileJSON
}

func (m *memorySource) SourceType() SourceType { return Container("memory") }
func (m *memorySource) Metadata() *Metadata     { return &m.meta }
func (m *memorySource) TileJSON() *TileJSON     { return &m.tj }

func (m *memorySource) GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error) {
	return GetTileDefault(ctx, m, c)
}

func (m *memorySource) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	var items []tilestream.Item[tile.Tile]
	for c, t := range m.tiles {
		if bbox.Contains(c) {
			items = append(items, tilestream.Item[tile.Tile]{Coord: c, Value: t})
		}
	}
	return tilestream.FromSlice(items), nil
}

func TestGetTileDefaultFindsPresentTile(t *testing.T) {
	c := coord.TileCoord{Level: 2, X: 1, Y: 1}
	tl, err := tile.FromImage(nil, codec.FormatPNG)
	require.NoError(t, err)

	src := &memorySource{tiles: map[coord.TileCoord]tile.Tile{c: tl}}
	got, err := src.GetTile(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestGetTileDefaultReturnsNilForMissingTile(t *testing.T) {
	src := &memorySource{tiles: map[coord.TileCoord]tile.Tile{}}
	got, err := src.GetTile(context.Background(), coord.TileCoord{Level: 2, X: 1, Y: 1})
	require.NoError(t, err)
	assert.Nil(t, got)
}
