package pipeline

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/traversal"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
)

// rasterFakeSource serves a fixed-size solid-colour image for every tile at
// one native zoom level, leaving every other level empty -- enough to drive
// raster_overview's synthesis path without a real container.
type rasterFakeSource struct {
	level  uint8
	size   int
	colors map[coord.TileCoord]color.NRGBA
	meta   tilesource.Metadata
	tj     tilesource.TileJSON
}

func newRasterFakeSource(level uint8, size int) *rasterFakeSource {
	bbox, _ := coord.New(level, 0, 0, (uint32(1)<<level)-1, (uint32(1)<<level)-1)
	pyramid := coord.NewPyramid()
	pyramid.IncludeBBox(bbox)
	return &rasterFakeSource{
		level:  level,
		size:   size,
		colors: map[coord.TileCoord]color.NRGBA{},
		meta: tilesource.Metadata{
			TileFormat:      codec.FormatPNG,
			TileCompression: codec.CompressionNone,
			BBoxPyramid:     *pyramid,
			Traversal:       traversal.Default(),
		},
		tj: tilesource.Default(),
	}
}

func (r *rasterFakeSource) put(c coord.TileCoord, col color.NRGBA) { r.colors[c] = col }

func (r *rasterFakeSource) SourceType() tilesource.SourceType { return tilesource.Container("raster-fake") }
func (r *rasterFakeSource) Metadata() *tilesource.Metadata     { return &r.meta }
func (r *rasterFakeSource) TileJSON() *tilesource.TileJSON     { return &r.tj }

func (r *rasterFakeSource) image(c coord.TileCoord) (image.Image, bool) {
	col, ok := r.colors[c]
	if !ok {
		return nil, false
	}
	img := image.NewNRGBA(image.Rect(0, 0, r.size, r.size))
	for y := 0; y < r.size; y++ {
		for x := 0; x < r.size; x++ {
			img.SetNRGBA(x, y, col)
		}
	}
	return img, true
}

func (r *rasterFakeSource) GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error) {
	img, ok := r.image(c)
	if !ok {
		return nil, nil
	}
	t, err := tile.FromImage(img, codec.FormatPNG)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *rasterFakeSource) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	var items []tilestream.Item[tile.Tile]
	_ = bbox.IterCoords(func(c coord.TileCoord) error {
		t, err := r.GetTile(ctx, c)
		if err != nil || t == nil {
			return err
		}
		items = append(items, tilestream.Item[tile.Tile]{Coord: c, Value: *t})
		return nil
	})
	return tilestream.FromSlice(items), nil
}

// TestRasterOverviewSynthesizesParent builds 4 solid-colour children at z=1
// and checks raster_overview produces a z=0 tile box-filtered from them.
func TestRasterOverviewSynthesizesParent(t *testing.T) {
	upstream := newRasterFakeSource(1, 8)
	upstream.put(coord.TileCoord{Level: 1, X: 0, Y: 0}, color.NRGBA{R: 255, A: 255})
	upstream.put(coord.TileCoord{Level: 1, X: 1, Y: 0}, color.NRGBA{G: 255, A: 255})
	upstream.put(coord.TileCoord{Level: 1, X: 0, Y: 1}, color.NRGBA{B: 255, A: 255})
	upstream.put(coord.TileCoord{Level: 1, X: 1, Y: 1}, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	f := NewFactory(nil)
	node := vpl.VPLNode{Name: "raster_overview", Properties: map[string]vpl.Value{
		"level":     {Scalar: "0"},
		"tile_size": {Scalar: "8"},
	}}
	src, err := f.buildRasterOverview(context.Background(), upstream, node)
	require.NoError(t, err)

	c, _ := coord.NewCoord(0, 0, 0)
	got, err := src.GetTile(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, got)

	content, err := got.AsContent()
	require.NoError(t, err)
	bounds := content.Raster.Bounds()
	assert.Equal(t, 8, bounds.Dx())
	assert.Equal(t, 8, bounds.Dy())

	// Top-left quadrant should be derived purely from the red child.
	r, g, b, _ := content.Raster.At(1, 1).RGBA()
	assert.Greater(t, r, g)
	assert.Greater(t, r, b)
}

func TestRasterOverviewSpillsSynthesizedTilesToDisk(t *testing.T) {
	upstream := newRasterFakeSource(1, 8)
	upstream.put(coord.TileCoord{Level: 1, X: 0, Y: 0}, color.NRGBA{R: 255, A: 255})

	f := NewFactory(nil)
	f.CacheDir = t.TempDir()
	node := vpl.VPLNode{Name: "raster_overview", Properties: map[string]vpl.Value{
		"level":     {Scalar: "0"},
		"tile_size": {Scalar: "8"},
	}}
	src, err := f.buildRasterOverview(context.Background(), upstream, node)
	require.NoError(t, err)

	c, _ := coord.NewCoord(0, 0, 0)
	_, err = src.GetTile(context.Background(), c)
	require.NoError(t, err)

	overview := src.(*rasterOverviewSource)
	raw, ok := overview.disk.Get(c)
	require.True(t, ok, "synthesized parent should be written through to the disk cache")
	assert.NotEmpty(t, raw)
}

// TestRasterOverviewMarksEmptyParentsAbsent requests a synthesized parent
// whose four children are all missing: the result must be nil and the
// coordinate must land in the known-absent set so the next request
// short-circuits without touching the upstream again.
func TestRasterOverviewMarksEmptyParentsAbsent(t *testing.T) {
	upstream := newRasterFakeSource(2, 8)
	upstream.put(coord.TileCoord{Level: 2, X: 0, Y: 0}, color.NRGBA{R: 255, A: 255})

	f := NewFactory(nil)
	node := vpl.VPLNode{Name: "raster_overview", Properties: map[string]vpl.Value{
		"level":     {Scalar: "1"},
		"tile_size": {Scalar: "8"},
	}}
	src, err := f.buildRasterOverview(context.Background(), upstream, node)
	require.NoError(t, err)

	empty, _ := coord.NewCoord(1, 1, 1)
	got, err := src.GetTile(context.Background(), empty)
	require.NoError(t, err)
	assert.Nil(t, got)

	overview := src.(*rasterOverviewSource)
	assert.True(t, overview.absent.Contains(empty))

	got, err = src.GetTile(context.Background(), empty)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRasterOverviewPassesThroughAtNativeLevel(t *testing.T) {
	upstream := newRasterFakeSource(1, 8)
	upstream.put(coord.TileCoord{Level: 1, X: 0, Y: 0}, color.NRGBA{R: 255, A: 255})

	f := NewFactory(nil)
	node := vpl.VPLNode{Name: "raster_overview", Properties: map[string]vpl.Value{
		"level": {Scalar: "1"},
	}}
	src, err := f.buildRasterOverview(context.Background(), upstream, node)
	require.NoError(t, err)
	assert.Same(t, upstream, src, "level == native min zoom should be a pass-through, not a wrapper")
}
