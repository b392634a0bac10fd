package pipeline

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"os"

	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilecache"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/traversal"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// overviewCacheBytes bounds the blob cache raster_overview keeps for
// synthesized parent tiles: without it, requesting four sibling children of
// the same parent would redo the same 2x2 downsample four times.
const overviewCacheBytes = 256 << 20

// rasterOverviewSource implements `raster_overview [level=] [tile_size=512]`:
// it synthesizes raster zoom levels below the upstream source's native
// minimum zoom by recursively box-filtering 2x2 blocks of children down
// into a single parent tile. A parent can only be produced once all four
// children are available, so this source advertises DepthFirstPreOrder
// rather than the upstream's Any.
type rasterOverviewSource struct {
	upstream  tilesource.TileSource
	meta      tilesource.Metadata
	tj        tilesource.TileJSON
	nativeMin uint8
	tileSize  int
	cache     *tilecache.Cache
	disk      *tilecache.DiskCache
	absent    *tilecache.PresenceSet
	limits    tilestream.ConcurrencyLimits
}

func (f *Factory) buildRasterOverview(ctx context.Context, upstream tilesource.TileSource, node vpl.VPLNode) (tilesource.TileSource, error) {
	if !upstream.Metadata().TileFormat.IsRaster() {
		return nil, xerrors.Errorf("raster_overview: upstream format %s is not raster", upstream.Metadata().TileFormat)
	}
	p := newProps(node)
	level, err := p.integer("level", 0)
	if err != nil {
		return nil, err
	}
	tileSize, err := p.integer("tile_size", 512)
	if err != nil {
		return nil, err
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	if level < 0 || level > coord.MaxLevel {
		return nil, xerrors.Errorf("raster_overview: level %d out of range", level)
	}
	if tileSize <= 0 || tileSize%2 != 0 {
		return nil, xerrors.Errorf("raster_overview: tile_size %d must be a positive even number", tileSize)
	}
	minLevel := uint8(level)

	nativeMin, ok := upstream.Metadata().BBoxPyramid.GetLevelMin()
	if !ok {
		return nil, xerrors.New("raster_overview: upstream pyramid is empty")
	}
	if minLevel >= nativeMin {
		return upstream, nil
	}

	pyramid := coord.NewPyramid()
	for z := uint8(0); z <= coord.MaxLevel; z++ {
		pyramid.IncludeBBox(upstream.Metadata().BBoxPyramid.GetLevelBBox(z))
	}
	for z := nativeMin; z > minLevel; z-- {
		child := pyramid.GetLevelBBox(z)
		if child.IsEmpty() {
			continue
		}
		parent, err := child.LevelDown()
		if err != nil {
			return nil, err
		}
		pyramid.IncludeBBox(parent)
	}

	meta := *upstream.Metadata()
	meta.BBoxPyramid = *pyramid
	meta.Traversal = traversal.Traversal{
		Order:            traversal.DepthFirstPreOrder,
		BlockWidth:       32,
		MaxInFlightTiles: upstream.Metadata().Traversal.MaxInFlightTiles,
	}

	tj := *upstream.TileJSON()
	tj.MinZoom = minLevel

	diskDir, err := os.MkdirTemp(f.CacheDir, "overview-")
	if err != nil {
		return nil, xerrors.Wrap(err, "raster_overview: creating cache directory")
	}
	disk, err := tilecache.NewDiskCache(diskDir)
	if err != nil {
		return nil, err
	}

	return &rasterOverviewSource{
		upstream:  upstream,
		meta:      meta,
		tj:        tj,
		nativeMin: nativeMin,
		tileSize:  tileSize,
		cache:     tilecache.New(overviewCacheBytes),
		disk:      disk,
		absent:    tilecache.NewPresenceSet(),
		limits:    f.Limits,
	}, nil
}

func (s *rasterOverviewSource) SourceType() tilesource.SourceType {
	return tilesource.Processor("raster_overview", s.upstream.SourceType())
}
func (s *rasterOverviewSource) Metadata() *tilesource.Metadata { return &s.meta }
func (s *rasterOverviewSource) TileJSON() *tilesource.TileJSON { return &s.tj }

func (s *rasterOverviewSource) GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error) {
	if !s.meta.BBoxPyramid.GetLevelBBox(c.Level).Contains(c) {
		return nil, nil
	}
	if c.Level >= s.nativeMin {
		return s.upstream.GetTile(ctx, c)
	}
	// Known-absent parents short-circuit before any child fetch: during a
	// depth-first walk every parent in an empty region would otherwise
	// recurse through its whole subtree once per sibling request.
	if s.absent.Contains(c) {
		return nil, nil
	}
	if raw, ok := s.cache.Get(c); ok {
		t := tile.FromBlob(byteio.NewBlob(raw), codec.CompressionNone, s.meta.TileFormat)
		return &t, nil
	}
	if raw, ok := s.disk.Get(c); ok {
		s.cache.Set(c, raw)
		t := tile.FromBlob(byteio.NewBlob(raw), codec.CompressionNone, s.meta.TileFormat)
		return &t, nil
	}

	img, err := s.buildOverviewImage(ctx, c)
	if err != nil {
		return nil, err
	}
	if img == nil {
		s.absent.Add(c)
		return nil, nil
	}
	t, err := tile.FromImage(img, s.meta.TileFormat)
	if err != nil {
		return nil, err
	}
	blob, err := t.AsBlob(codec.CompressionNone)
	if err != nil {
		return nil, err
	}
	raw := blob.IntoVec()
	s.cache.Set(c, raw)
	if err := s.disk.Set(c, raw); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *rasterOverviewSource) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	if bbox.Level >= s.nativeMin {
		return s.upstream.GetTileStream(ctx, bbox)
	}
	coords := bbox.IntoCoords()
	return tilestream.FromIterCoordParallel(ctx, coords, s.limits, func(ctx context.Context, c coord.TileCoord) (tile.Tile, bool, error) {
		t, err := s.GetTile(ctx, c)
		if err != nil || t == nil {
			return tile.Tile{}, false, err
		}
		return *t, true, nil
	}), nil
}

// buildOverviewImage assembles c's tile by fetching its 4 children one
// level down (recursing through GetTile, which may itself synthesize them)
// and box-filtering each into its quadrant. Returns a nil image if none of
// the 4 children exist.
func (s *rasterOverviewSource) buildOverviewImage(ctx context.Context, c coord.TileCoord) (image.Image, error) {
	childLevel := c.Level + 1
	half := s.tileSize / 2
	out := image.NewNRGBA(image.Rect(0, 0, s.tileSize, s.tileSize))
	any := false

	offsets := [4][2]uint32{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	for _, off := range offsets {
		childCoord, err := coord.NewCoord(childLevel, c.X*2+off[0], c.Y*2+off[1])
		if err != nil {
			return nil, err
		}
		childTile, err := s.GetTile(ctx, childCoord)
		if err != nil {
			return nil, err
		}
		if childTile == nil {
			continue
		}
		any = true
		content, err := childTile.AsContent()
		if err != nil {
			return nil, err
		}
		scaled := downscaleBox(content.Raster, half)
		dstX, dstY := int(off[0])*half, int(off[1])*half
		rect := image.Rect(dstX, dstY, dstX+half, dstY+half)
		draw.Draw(out, rect, scaled, image.Point{}, draw.Src)
	}
	if !any {
		return nil, nil
	}
	return out, nil
}

// downscaleBox box-filters src down to an outSize x outSize square,
// averaging every source block that maps to one destination pixel.
func downscaleBox(src image.Image, outSize int) image.Image {
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, outSize, outSize))
	for y := 0; y < outSize; y++ {
		sy0 := bounds.Min.Y + y*srcH/outSize
		sy1 := bounds.Min.Y + (y+1)*srcH/outSize
		if sy1 <= sy0 {
			sy1 = sy0 + 1
		}
		for x := 0; x < outSize; x++ {
			sx0 := bounds.Min.X + x*srcW/outSize
			sx1 := bounds.Min.X + (x+1)*srcW/outSize
			if sx1 <= sx0 {
				sx1 = sx0 + 1
			}
			var r, g, b, a, n uint64
			for sy := sy0; sy < sy1 && sy < bounds.Max.Y; sy++ {
				for sx := sx0; sx < sx1 && sx < bounds.Max.X; sx++ {
					pr, pg, pb, pa := src.At(sx, sy).RGBA()
					r += uint64(pr)
					g += uint64(pg)
					b += uint64(pb)
					a += uint64(pa)
					n++
				}
			}
			if n == 0 {
				continue
			}
			out.Set(x, y, color.RGBA64{
				R: uint16(r / n), G: uint16(g / n), B: uint16(b / n), A: uint16(a / n),
			})
		}
	}
	return out
}
