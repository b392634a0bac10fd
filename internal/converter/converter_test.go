package converter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/traversal"
)

type fakeSource struct {
	tiles       map[coord.TileCoord][]byte
	meta        tilesource.Metadata
	tj          tilesource.TileJSON
	getCalls    int
	streamCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		tiles: make(map[coord.TileCoord][]byte),
		meta: tilesource.Metadata{
			TileFormat:      codec.FormatPNG,
			TileCompression: codec.CompressionGzip,
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

func (f *fakeSource) SourceType() tilesource.SourceType { return tilesource.Container("fake") }
func (f *fakeSource) Metadata() *tilesource.Metadata     { return &f.meta }
func (f *fakeSource) TileJSON() *tilesource.TileJSON     { return &f.tj }

func (f *fakeSource) GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error) {
	f.getCalls++
	return tilesource.GetTileDefault(ctx, f, c)
}

func (f *fakeSource) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	f.streamCalls++
	var items []tilestream.Item[tile.Tile]
	for c, data := range f.tiles {
		if bbox.Contains(c) {
			items = append(items, tilestream.Item[tile.Tile]{
				Coord: c,
				Value: tile.FromBlob(byteio.NewBlob(data), f.meta.TileCompression, f.meta.TileFormat),
			})
		}
	}
	return tilestream.FromSlice(items), nil
}

func TestConverterIdempotentWhenFormatAndCompressionMatch(t *testing.T) {
	src := newFakeSource()
	c, _ := coord.NewCoord(3, 1, 1)
	src.put(c, []byte("payload"))

	conv := New(src, Params{TileFormat: codec.FormatPNG, TileCompression: codec.CompressionGzip})
	got, err := conv.GetTile(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.HasContent(), "no format/compression change should mean no decode ever happened")
}

func TestConverterAppliesCompressionConversion(t *testing.T) {
	src := newFakeSource()
	src.meta.TileFormat = codec.FormatPBF
	src.meta.TileCompression = codec.CompressionNone
	c, _ := coord.NewCoord(3, 2, 2)
	src.put(c, []byte("raw-pbf-bytes"))

	conv := New(src, Params{TileFormat: codec.FormatPBF, TileCompression: codec.CompressionGzip})
	got, err := conv.GetTile(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, codec.CompressionGzip, got.Compression())

	blob, err := got.AsBlob(codec.CompressionNone)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw-pbf-bytes"), blob.AsSlice())
}

func TestConverterBBoxFiltersStream(t *testing.T) {
	src := newFakeSource()
	inside, _ := coord.NewCoord(4, 5, 5)
	outside, _ := coord.NewCoord(4, 15, 15)
	src.put(inside, []byte("a"))
	src.put(outside, []byte("b"))

	filterBBox, err := coord.New(4, 0, 0, 9, 9)
	require.NoError(t, err)
	pyramid := coord.NewPyramid()
	pyramid.IncludeBBox(filterBBox)

	conv := New(src, Params{TileFormat: codec.FormatPNG, TileCompression: codec.CompressionGzip, BBoxPyramid: pyramid})
	full, err := coord.New(4, 0, 0, 15, 15)
	require.NoError(t, err)

	stream, err := conv.GetTileStream(context.Background(), coord.Intersect(full, conv.Metadata().BBoxPyramid.GetLevelBBox(4)))
	require.NoError(t, err)
	items, err := tilestream.ToVec(stream)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, inside, items[0].Coord)
}

// TestConverterFlipSwapStreamMatchesGetTile sets both FlipY and SwapXY:
// their composition is not an involution, so the stream's coordinate
// relabeling must invert the request mapping rather than reapply it. The
// coordinate a streamed tile carries has to be the one GetTile answers for.
func TestConverterFlipSwapStreamMatchesGetTile(t *testing.T) {
	src := newFakeSource()
	stored, _ := coord.NewCoord(1, 0, 1)
	src.put(stored, []byte("corner"))

	conv := New(src, Params{TileFormat: codec.FormatPNG, TileCompression: codec.CompressionGzip, FlipY: true, SwapXY: true})

	// display (0,0) swaps to (0,0), flips to stored (0,1)
	display, _ := coord.NewCoord(1, 0, 0)
	got, err := conv.GetTile(context.Background(), display)
	require.NoError(t, err)
	require.NotNil(t, got)

	bbox, err := coord.New(1, 0, 0, 0, 0)
	require.NoError(t, err)
	stream, err := conv.GetTileStream(context.Background(), bbox)
	require.NoError(t, err)
	items, err := tilestream.ToVec(stream)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, display, items[0].Coord)
}

func TestConverterFlipYInvolution(t *testing.T) {
	src := newFakeSource()
	c, _ := coord.NewCoord(5, 3, 3)
	src.put(c, []byte("tms-payload"))

	conv := New(src, Params{TileFormat: codec.FormatPNG, TileCompression: codec.CompressionGzip, FlipY: true})
	requested := c.FlipY()
	got, err := conv.GetTile(context.Background(), requested)
	require.NoError(t, err)
	require.NotNil(t, got, "flipping twice should land back on the stored tile")
}
