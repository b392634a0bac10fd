package pipeline

import (
	"context"

	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// filterSource implements `filter bbox=[w,s,e,n] [min_zoom=] [max_zoom=]`:
// it intersects the upstream bbox pyramid with the requested geographic
// bbox and zoom range, then actively clips every GetTile/GetTileStream
// request against that intersection rather than merely advertising a
// narrower pyramid -- a caller that ignores the advertised Metadata() and
// asks for a zoom outside the filtered range still gets an empty result.
type filterSource struct {
	upstream tilesource.TileSource
	meta     tilesource.Metadata
	tj       tilesource.TileJSON
}

func (f *Factory) buildFilter(upstream tilesource.TileSource, node vpl.VPLNode) (tilesource.TileSource, error) {
	p := newProps(node)

	restricted := coord.NewPyramid()
	hasBBox := false
	minZoom, maxZoom := uint8(0), uint8(31)

	if v, ok := node.Properties["bbox"]; ok {
		coords, err := v.AsFloats()
		if err != nil {
			return nil, err
		}
		p.used["bbox"] = true
		if len(coords) != 4 {
			return nil, xerrors.Errorf("filter: bbox must have 4 numbers, got %d", len(coords))
		}
		hasBBox = true
		geo := coord.GeoBBox{West: coords[0], South: coords[1], East: coords[2], North: coords[3]}
		if err := restricted.IncludeGeoBBox(geo, 0, 31); err != nil {
			return nil, err
		}
	}

	mz, err := p.integer("min_zoom", -1)
	if err != nil {
		return nil, err
	}
	if mz >= 0 {
		minZoom = uint8(mz)
	}
	Mz, err := p.integer("max_zoom", -1)
	if err != nil {
		return nil, err
	}
	if Mz >= 0 {
		maxZoom = uint8(Mz)
	}
	if err := p.finish(); err != nil {
		return nil, err
	}

	// Rebuild the pyramid level-by-level, since BBoxPyramid has no in-place
	// per-level replace: intersect the upstream extent with the requested
	// bbox (if any) and drop every level outside [minZoom, maxZoom].
	final := coord.NewPyramid()
	for z := uint8(0); z <= 31; z++ {
		if z < minZoom || z > maxZoom {
			continue
		}
		level := upstream.Metadata().BBoxPyramid.GetLevelBBox(z)
		if hasBBox {
			level = coord.Intersect(level, restricted.GetLevelBBox(z))
		}
		final.IncludeBBox(level)
	}

	meta := *upstream.Metadata()
	meta.BBoxPyramid = *final

	return &filterSource{
		upstream: upstream,
		meta:     meta,
		tj:       *upstream.TileJSON(),
	}, nil
}

func (s *filterSource) SourceType() tilesource.SourceType {
	return tilesource.Processor("filter", s.upstream.SourceType())
}
func (s *filterSource) Metadata() *tilesource.Metadata { return &s.meta }
func (s *filterSource) TileJSON() *tilesource.TileJSON { return &s.tj }

func (s *filterSource) GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error) {
	if !s.meta.BBoxPyramid.GetLevelBBox(c.Level).Contains(c) {
		return nil, nil
	}
	return s.upstream.GetTile(ctx, c)
}

func (s *filterSource) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	allowed := s.meta.BBoxPyramid.GetLevelBBox(bbox.Level)
	clipped := coord.Intersect(bbox, allowed)
	if clipped.IsEmpty() {
		return tilestream.Empty[tile.Tile](), nil
	}
	return s.upstream.GetTileStream(ctx, clipped)
}
