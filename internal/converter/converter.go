// Package converter implements the cross-cutting conversion layer: bbox
// filtering, XYZ coordinate flipping/swapping, and format/compression
// conversion, wrapping any TileSource lazily -- no tile is materialised
// until a consumer actually pulls it through the stream.
package converter

import (
	"context"

	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
)

// Params configures a Converter. A zero-value TileFormat means "keep the
// source's own format"; TileCompression has no such sentinel since
// CompressionNone is itself a meaningful target -- callers that want to
// keep the source's compression should read it from upstream.Metadata()
// first.
type Params struct {
	TileFormat      codec.TileFormat
	TileCompression codec.TileCompression
	BBoxPyramid     *coord.BBoxPyramid // nil means "keep the source's own pyramid"
	FlipY           bool
	SwapXY          bool
	Quality, Speed  int
	Limits          tilestream.ConcurrencyLimits
}

// Converter wraps an upstream TileSource, applying Params to every read.
type Converter struct {
	upstream tilesource.TileSource
	params   Params
	meta     tilesource.Metadata
	tj       tilesource.TileJSON
}

// New builds a Converter over upstream. The resulting metadata intersects
// upstream's bbox pyramid with params.BBoxPyramid (if given) and reports
// params' format/compression as authoritative.
func New(upstream tilesource.TileSource, params Params) *Converter {
	upstreamMeta := upstream.Metadata()
	format := params.TileFormat
	if format == codec.UnknownFormat {
		format = upstreamMeta.TileFormat
	}
	compression := params.TileCompression
	pyramid := upstreamMeta.BBoxPyramid
	if params.BBoxPyramid != nil {
		pyramid = *upstreamMeta.BBoxPyramid.Intersect(params.BBoxPyramid)
	}
	if params.Limits == (tilestream.ConcurrencyLimits{}) {
		params.Limits = tilestream.DefaultConcurrencyLimits(4)
	}

	c := &Converter{
		upstream: upstream,
		params:   params,
		meta: tilesource.Metadata{
			TileFormat:      format,
			TileCompression: compression,
			BBoxPyramid:     pyramid,
			Traversal:       upstreamMeta.Traversal,
		},
		tj: *upstream.TileJSON(),
	}
	return c
}

func (c *Converter) SourceType() tilesource.SourceType {
	return tilesource.Processor("converter", c.upstream.SourceType())
}
func (c *Converter) Metadata() *tilesource.Metadata { return &c.meta }
func (c *Converter) TileJSON() *tilesource.TileJSON { return &c.tj }

// requestCoord maps a coordinate the caller wants into the coordinate space
// the upstream source actually stores: swap first, then flip.
func (c *Converter) requestCoord(rc coord.TileCoord) coord.TileCoord {
	if c.params.SwapXY {
		rc = rc.SwapXY()
	}
	if c.params.FlipY {
		rc = rc.FlipY()
	}
	return rc
}

// resultCoord maps a coordinate coming back from upstream into the space
// the caller addressed. FlipY and SwapXY are individually involutions, but
// their composition is not, so inverting requestCoord means applying them
// in the opposite order: flip first, then swap.
func (c *Converter) resultCoord(rc coord.TileCoord) coord.TileCoord {
	if c.params.FlipY {
		rc = rc.FlipY()
	}
	if c.params.SwapXY {
		rc = rc.SwapXY()
	}
	return rc
}

func (c *Converter) GetTile(ctx context.Context, rc coord.TileCoord) (*tile.Tile, error) {
	t, err := c.upstream.GetTile(ctx, c.requestCoord(rc))
	if err != nil || t == nil {
		return t, err
	}
	if err := c.transform(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (c *Converter) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	requestBBox := bbox
	if c.params.SwapXY || c.params.FlipY {
		// SwapXY/FlipY are coordinate-space transforms, not bbox-shape
		// transforms: at a fixed level they map a rectangle to another
		// axis-aligned rectangle, so corner-mapping suffices.
		min := c.requestCoord(coord.TileCoord{Level: bbox.Level, X: bbox.XMin, Y: bbox.YMin})
		max := c.requestCoord(coord.TileCoord{Level: bbox.Level, X: bbox.XMax, Y: bbox.YMax})
		xMin, xMax := min.X, max.X
		if xMin > xMax {
			xMin, xMax = xMax, xMin
		}
		yMin, yMax := min.Y, max.Y
		if yMin > yMax {
			yMin, yMax = yMax, yMin
		}
		var err error
		requestBBox, err = coord.New(bbox.Level, xMin, yMin, xMax, yMax)
		if err != nil {
			return tilestream.Stream[tile.Tile]{}, err
		}
	}

	upstream, err := c.upstream.GetTileStream(ctx, requestBBox)
	if err != nil {
		return tilestream.Stream[tile.Tile]{}, err
	}

	rewritten := tilestream.MapCoord(ctx, upstream, func(rc coord.TileCoord) coord.TileCoord {
		return c.resultCoord(rc)
	})

	return tilestream.MapItemParallel(ctx, rewritten, c.params.Limits, func(_ context.Context, _ coord.TileCoord, t tile.Tile) (tile.Tile, error) {
		if err := c.transform(&t); err != nil {
			return tile.Tile{}, err
		}
		return t, nil
	}), nil
}

// transform applies format/compression conversion in place. If the
// requested format/compression already match the tile's own, nothing is
// re-encoded (testable property 9: converter idempotence).
func (c *Converter) transform(t *tile.Tile) error {
	if c.params.TileFormat != codec.UnknownFormat && c.params.TileFormat != t.Format() {
		if err := t.ChangeFormat(c.params.TileFormat, c.params.Quality, c.params.Speed); err != nil {
			return err
		}
	}
	if c.params.TileCompression != t.Compression() {
		if err := t.ChangeCompression(c.params.TileCompression); err != nil {
			return err
		}
	}
	return nil
}
