package pipeline

import (
	"context"
	"hash/fnv"
	"image"
	"image/color"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"

	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/traversal"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// debugStyle names the deterministic content a from_debug source produces.
// "xyz" is the only style this implementation supports: a solid colour
// tile (or, for vector formats, a single-feature layer) whose value is a
// pure function of the tile coordinate, so pipelines can be exercised
// without a real container.
const debugStyleXYZ = "xyz"

type debugSource struct {
	style  string
	meta   tilesource.Metadata
	tj     tilesource.TileJSON
	limits tilestream.ConcurrencyLimits
}

// buildFromDebug implements `from_debug format=xyz [tile_format=png]`: a
// synthetic, infinitely-available source (bbox pyramid covers the whole
// world at zoom levels 0-14) useful for exercising a pipeline without a real
// container.
func (f *Factory) buildFromDebug(node vpl.VPLNode) (tilesource.TileSource, error) {
	p := newProps(node)
	style, err := p.string("format", debugStyleXYZ)
	if err != nil {
		return nil, err
	}
	if style != debugStyleXYZ {
		return nil, xerrors.Errorf("from_debug: unsupported style %q", style)
	}
	tileFormatName, err := p.string("tile_format", "png")
	if err != nil {
		return nil, err
	}
	tileFormat := codec.FormatFromExtension(tileFormatName)
	if tileFormat == codec.UnknownFormat || tileFormat == codec.FormatBIN {
		return nil, xerrors.Errorf("from_debug: unsupported tile_format %q", tileFormatName)
	}
	if err := p.finish(); err != nil {
		return nil, err
	}

	pyramid := coord.NewPyramid()
	for z := uint8(0); z <= 14; z++ {
		max := (uint32(1) << z) - 1
		bbox, err := coord.New(z, 0, 0, max, max)
		if err != nil {
			return nil, err
		}
		pyramid.IncludeBBox(bbox)
	}

	tj := tilesource.Default()
	tj.Name = "debug"
	tj.MaxZoom = 14

	return &debugSource{
		style: style,
		meta: tilesource.Metadata{
			TileFormat:      tileFormat,
			TileCompression: codec.CompressionNone,
			BBoxPyramid:     *pyramid,
			Traversal:       traversal.Default(),
		},
		tj:     tj,
		limits: f.Limits,
	}, nil
}

func (s *debugSource) SourceType() tilesource.SourceType { return tilesource.Container("debug") }
func (s *debugSource) Metadata() *tilesource.Metadata     { return &s.meta }
func (s *debugSource) TileJSON() *tilesource.TileJSON     { return &s.tj }

func (s *debugSource) GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error) {
	return tilesource.GetTileDefault(ctx, s, c)
}

func (s *debugSource) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	coords := bbox.IntoCoords()
	return tilestream.FromIterCoordParallel(ctx, coords, s.limits, func(_ context.Context, c coord.TileCoord) (tile.Tile, bool, error) {
		t, err := s.makeTile(c)
		if err != nil {
			return tile.Tile{}, false, err
		}
		return t, true, nil
	}), nil
}

func (s *debugSource) makeTile(c coord.TileCoord) (tile.Tile, error) {
	if s.meta.TileFormat.IsVector() {
		return debugVectorTile(c, s.meta.TileFormat)
	}
	return debugRasterTile(c, s.meta.TileFormat)
}

func debugRasterTile(c coord.TileCoord, format codec.TileFormat) (tile.Tile, error) {
	const size = 256
	col := debugColor(c)
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, col)
		}
	}
	return tile.FromImage(img, format)
}

// debugVectorTile builds a single-feature layer named "debug" whose
// properties carry the tile's own coordinate -- enough for a pipeline
// consumer to verify which tile it received without a real data source.
func debugVectorTile(c coord.TileCoord, format codec.TileFormat) (tile.Tile, error) {
	const extent = 4096
	feature := geojson.NewFeature(orb.Point{extent / 2, extent / 2})
	feature.Properties = geojson.Properties{
		"level": float64(c.Level),
		"x":     float64(c.X),
		"y":     float64(c.Y),
	}
	layers := mvt.Layers{{
		Name:     "debug",
		Version:  2,
		Extent:   extent,
		Features: []*geojson.Feature{feature},
	}}
	return tile.FromVector(layers, format)
}

// debugColor derives a deterministic RGB colour from the tile coordinate so
// distinct tiles are visibly distinct but any given coordinate always
// renders identically, which is what makes this source useful for pipeline
// testing.
func debugColor(c coord.TileCoord) color.NRGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte{c.Level})
	_, _ = h.Write([]byte{byte(c.X), byte(c.X >> 8), byte(c.X >> 16), byte(c.X >> 24)})
	_, _ = h.Write([]byte{byte(c.Y), byte(c.Y >> 8), byte(c.Y >> 16), byte(c.Y >> 24)})
	sum := h.Sum32()
	return color.NRGBA{R: byte(sum), G: byte(sum >> 8), B: byte(sum >> 16), A: 255}
}
