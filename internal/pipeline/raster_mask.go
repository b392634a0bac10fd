package pipeline

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// BlurFunction shapes the alpha ramp across a mask's buffer zone.
type BlurFunction int

const (
	BlurLinear BlurFunction = iota
	BlurCosine
)

// raster_mask classifies each raster tile against a polygonal mask loaded
// from GeoJSON: tiles fully inside the mask pass through untouched, tiles
// fully outside are dropped, and tiles straddling the boundary get a
// per-pixel alpha computed from planar distance to the mask's rings.
// Classification happens in spherical-Mercator metres (toMercatorMeters
// below) so `buffer`/`blur` (both in metres) are directly comparable to
// planar distances. Mask tests go through direct ring-segment distance
// rather than a spatial index: a tile only ever needs the nearest of a
// hand-authored mask's (typically small) ring-segment set.
type rasterMaskSource struct {
	upstream     tilesource.TileSource
	meta         tilesource.Metadata
	tj           tilesource.TileJSON
	rings        [][]orb.Point // mask polygon rings, projected to Mercator metres
	buffer       float64
	blur         float64
	blurFunction BlurFunction
	limits       tilestream.ConcurrencyLimits
}

func (f *Factory) buildRasterMask(upstream tilesource.TileSource, node vpl.VPLNode) (tilesource.TileSource, error) {
	if !upstream.Metadata().TileFormat.IsRaster() {
		return nil, xerrors.Errorf("raster_mask: upstream format %s is not raster", upstream.Metadata().TileFormat)
	}
	p := newProps(node)
	geojsonPath, err := p.requireString("geojson")
	if err != nil {
		return nil, err
	}
	buffer, err := p.float("buffer", 0)
	if err != nil {
		return nil, err
	}
	blur, err := p.float("blur", 0)
	if err != nil {
		return nil, err
	}
	blurFnName, err := p.string("blur_function", "linear")
	if err != nil {
		return nil, err
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	var blurFn BlurFunction
	switch blurFnName {
	case "linear":
		blurFn = BlurLinear
	case "cosine":
		blurFn = BlurCosine
	default:
		return nil, xerrors.Errorf("raster_mask: unknown blur_function %q", blurFnName)
	}

	rings, err := loadMaskRings(geojsonPath)
	if err != nil {
		return nil, err
	}

	return &rasterMaskSource{
		upstream:     upstream,
		meta:         *upstream.Metadata(),
		tj:           *upstream.TileJSON(),
		rings:        rings,
		buffer:       buffer,
		blur:         blur,
		blurFunction: blurFn,
		limits:       f.Limits,
	}, nil
}

// loadMaskRings reads a GeoJSON FeatureCollection/Feature/Geometry file and
// flattens every polygon/multipolygon ring into Mercator-metre point
// slices.
func loadMaskRings(path string) ([][]orb.Point, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "reading mask geojson %q", path)
	}

	var geoms []orb.Geometry
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil {
		for _, feat := range fc.Features {
			geoms = append(geoms, feat.Geometry)
		}
	} else if feat, err := geojson.UnmarshalFeature(data); err == nil {
		geoms = append(geoms, feat.Geometry)
	} else if geom, err := geojson.UnmarshalGeometry(data); err == nil {
		geoms = append(geoms, geom.Geometry())
	} else {
		return nil, xerrors.Errorf("mask geojson %q is not a recognised FeatureCollection/Feature/Geometry", path)
	}

	var rings [][]orb.Point
	for _, g := range geoms {
		switch geom := g.(type) {
		case orb.Polygon:
			for _, ring := range geom {
				rings = append(rings, projectRing(ring))
			}
		case orb.MultiPolygon:
			for _, poly := range geom {
				for _, ring := range poly {
					rings = append(rings, projectRing(ring))
				}
			}
		}
	}
	if len(rings) == 0 {
		return nil, xerrors.Errorf("mask geojson %q has no polygon geometry", path)
	}
	return rings, nil
}

// earthRadiusMeters is the sphere radius spherical Web Mercator projects
// against (the same constant tile servers and most web maps use).
const earthRadiusMeters = 6378137.0

// toMercatorMeters projects a WGS84 lon/lat point (degrees) to spherical
// Web Mercator metres.
func toMercatorMeters(p orb.Point) orb.Point {
	lon, lat := p[0], p[1]
	x := lon * math.Pi / 180 * earthRadiusMeters
	y := math.Log(math.Tan(math.Pi/4+lat*math.Pi/360)) * earthRadiusMeters
	return orb.Point{x, y}
}

func projectRing(ring orb.Ring) []orb.Point {
	out := make([]orb.Point, len(ring))
	for i, p := range ring {
		out[i] = toMercatorMeters(p)
	}
	return out
}

func (s *rasterMaskSource) SourceType() tilesource.SourceType {
	return tilesource.Processor("raster_mask", s.upstream.SourceType())
}
func (s *rasterMaskSource) Metadata() *tilesource.Metadata { return &s.meta }
func (s *rasterMaskSource) TileJSON() *tilesource.TileJSON { return &s.tj }

// classify reports, for a tile's projected Mercator bbox corners, whether
// every corner falls inside the mask (fully inside), every corner falls
// outside with the whole bbox beyond buffer+blur of every ring (fully
// outside), or neither (partial, needs a per-pixel pass).
func (s *rasterMaskSource) classify(corners [4]orb.Point) (inside, outside bool) {
	allIn, allOut := true, true
	maxReach := s.buffer + s.blur
	for _, p := range corners {
		in := s.containsPoint(p)
		if in {
			allOut = false
		} else {
			allIn = false
			if maxReach > 0 && s.distanceToRings(p) <= maxReach {
				allOut = false
			}
		}
	}
	return allIn, allOut
}

func (s *rasterMaskSource) containsPoint(p orb.Point) bool {
	inside := false
	for _, ring := range s.rings {
		if planar.RingContains(orb.Ring(ring), p) {
			inside = !inside
		}
	}
	return inside
}

func (s *rasterMaskSource) distanceToRings(p orb.Point) float64 {
	min := math.MaxFloat64
	for _, ring := range s.rings {
		for i := 0; i < len(ring); i++ {
			a := ring[i]
			b := ring[(i+1)%len(ring)]
			d := planar.DistanceFromSegment(a, b, p)
			if d < min {
				min = d
			}
		}
	}
	return min
}

// alphaAt computes the mask alpha (0..255) for a single Mercator-metre
// point: fully opaque inside the mask, fully transparent beyond
// buffer+blur, ramped across the blur band by the configured
// BlurFunction.
func (s *rasterMaskSource) alphaAt(p orb.Point) uint8 {
	if s.containsPoint(p) {
		return 255
	}
	d := s.distanceToRings(p)
	if d <= s.buffer {
		return 255
	}
	if s.blur <= 0 || d >= s.buffer+s.blur {
		return 0
	}
	t := (d - s.buffer) / s.blur // 0 at buffer edge, 1 at full fade
	var ramp float64
	switch s.blurFunction {
	case BlurCosine:
		ramp = (1 + math.Cos(t*math.Pi)) / 2
	default:
		ramp = 1 - t
	}
	return uint8(math.Round(ramp * 255))
}

func (s *rasterMaskSource) applyMask(t *tile.Tile, c coord.TileCoord) (bool, error) {
	geo := c.ToGeoBBox()
	corners := [4]orb.Point{
		toMercatorMeters(orb.Point{geo.West, geo.South}),
		toMercatorMeters(orb.Point{geo.East, geo.South}),
		toMercatorMeters(orb.Point{geo.East, geo.North}),
		toMercatorMeters(orb.Point{geo.West, geo.North}),
	}
	inside, outside := s.classify(corners)
	if inside {
		return true, nil
	}
	if outside {
		return false, nil
	}

	content, err := t.AsContentMut()
	if err != nil {
		return false, err
	}
	bounds := content.Raster.Bounds()
	out := image.NewNRGBA(bounds)
	draw.Draw(out, bounds, content.Raster, bounds.Min, draw.Src)

	west, north := corners[0][0], corners[3][1]
	east, south := corners[1][0], corners[0][1]
	width, height := float64(bounds.Dx()), float64(bounds.Dy())

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		v := (float64(y-bounds.Min.Y) + 0.5) / height
		my := north + (south-north)*v
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			u := (float64(x-bounds.Min.X) + 0.5) / width
			mx := west + (east-west)*u
			a := s.alphaAt(orb.Point{mx, my})
			px := out.NRGBAAt(x, y)
			px.A = uint8(uint16(px.A) * uint16(a) / 255)
			out.SetNRGBA(x, y, color.NRGBA{R: px.R, G: px.G, B: px.B, A: px.A})
		}
	}
	content.Raster = out
	return true, nil
}

func (s *rasterMaskSource) GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error) {
	t, err := s.upstream.GetTile(ctx, c)
	if err != nil || t == nil {
		return t, err
	}
	keep, err := s.applyMask(t, c)
	if err != nil || !keep {
		return nil, err
	}
	return t, nil
}

func (s *rasterMaskSource) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	upstream, err := s.upstream.GetTileStream(ctx, bbox)
	if err != nil {
		return tilestream.Stream[tile.Tile]{}, err
	}
	return tilestream.FilterMapParallelTry(ctx, upstream, s.limits, func(_ context.Context, c coord.TileCoord, t tile.Tile) (tile.Tile, bool, error) {
		keep, err := s.applyMask(&t, c)
		if err != nil || !keep {
			return tile.Tile{}, false, err
		}
		return t, true, nil
	}), nil
}
