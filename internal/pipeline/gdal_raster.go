package pipeline

import (
	"context"
	"image"
	"sync"

	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/traversal"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// GDALRasterOracle is the external reprojection collaborator: something
// that can return a raster for a geographic bbox. This package only fixes
// the calling convention (open once, borrow/reuse a bounded pool of
// handles, retire a handle after N reuses); it does not import a GDAL
// binding itself. A deployment that needs from_gdal_raster to actually
// read imagery registers one by setting OpenGDALDataset, typically backed
// by github.com/airbusgeo/godal.
type GDALRasterOracle interface {
	// ReadBBox returns a width x height raster of the dataset reprojected
	// into geo.
	ReadBBox(ctx context.Context, geo coord.GeoBBox, width, height int) (image.Image, error)
	// Close releases the native handle.
	Close() error
}

// OpenGDALDataset constructs a GDALRasterOracle for filename. The default
// implementation refuses every call, keeping this package free of any cgo
// dependency. Replace it at program startup to wire in a real backend.
var OpenGDALDataset = func(filename string) (GDALRasterOracle, error) {
	return nil, xerrors.Errorf("from_gdal_raster: no GDAL backend registered for %q; set pipeline.OpenGDALDataset before building a pipeline that uses from_gdal_raster", filename)
}

// gdalHandle wraps one oracle instance plus its reuse count.
type gdalHandle struct {
	oracle GDALRasterOracle
	uses   int
}

// gdalPool is a deadpool-style native-resource pool: a bounded number of
// concurrently-borrowed handles, each destroyed and rebuilt after
// reuseLimit borrows to contain native-side memory growth.
type gdalPool struct {
	filename   string
	reuseLimit int
	sem        chan struct{}

	mu   sync.Mutex
	idle []*gdalHandle
}

func newGDALPool(filename string, reuseLimit, concurrencyLimit int) *gdalPool {
	return &gdalPool{
		filename:   filename,
		reuseLimit: reuseLimit,
		sem:        make(chan struct{}, concurrencyLimit),
	}
}

func (p *gdalPool) borrow(ctx context.Context) (*gdalHandle, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		h := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	oracle, err := OpenGDALDataset(p.filename)
	if err != nil {
		<-p.sem
		return nil, err
	}
	return &gdalHandle{oracle: oracle}, nil
}

func (p *gdalPool) release(h *gdalHandle) {
	h.uses++
	if h.uses >= p.reuseLimit {
		_ = h.oracle.Close()
	} else {
		p.mu.Lock()
		p.idle = append(p.idle, h)
		p.mu.Unlock()
	}
	<-p.sem
}

type gdalRasterSource struct {
	pool     *gdalPool
	meta     tilesource.Metadata
	tj       tilesource.TileJSON
	tileSize int
	limits   tilestream.ConcurrencyLimits
}

func (f *Factory) buildFromGDALRaster(node vpl.VPLNode) (tilesource.TileSource, error) {
	p := newProps(node)
	filename, err := p.requireString("filename")
	if err != nil {
		return nil, err
	}
	tileSize, err := p.integer("tile_size", 512)
	if err != nil {
		return nil, err
	}
	tileFormatName, err := p.string("tile_format", "png")
	if err != nil {
		return nil, err
	}
	levelMin, err := p.integer("level_min", 0)
	if err != nil {
		return nil, err
	}
	levelMax, err := p.integer("level_max", 14)
	if err != nil {
		return nil, err
	}
	reuseLimit, err := p.integer("gdal_reuse_limit", 100)
	if err != nil {
		return nil, err
	}
	concurrencyLimit, err := p.integer("gdal_concurrency_limit", 4)
	if err != nil {
		return nil, err
	}
	if err := p.finish(); err != nil {
		return nil, err
	}

	if tileSize <= 0 {
		return nil, xerrors.Errorf("from_gdal_raster: tile_size %d must be positive", tileSize)
	}
	if levelMin < 0 || levelMax > coord.MaxLevel || levelMin > levelMax {
		return nil, xerrors.Errorf("from_gdal_raster: invalid level range [%d,%d]", levelMin, levelMax)
	}
	format := codec.FormatFromExtension(tileFormatName)
	if format == codec.UnknownFormat || !format.IsRaster() {
		return nil, xerrors.Errorf("from_gdal_raster: unsupported tile_format %q", tileFormatName)
	}
	if reuseLimit <= 0 {
		return nil, xerrors.Errorf("from_gdal_raster: gdal_reuse_limit must be positive")
	}
	if concurrencyLimit <= 0 {
		return nil, xerrors.Errorf("from_gdal_raster: gdal_concurrency_limit must be positive")
	}

	pyramid := coord.NewPyramid()
	for z := uint8(levelMin); z <= uint8(levelMax); z++ {
		max := uint32(1)<<z - 1
		bbox, err := coord.New(z, 0, 0, max, max)
		if err != nil {
			return nil, err
		}
		pyramid.IncludeBBox(bbox)
		if z == coord.MaxLevel {
			break
		}
	}

	tj := tilesource.Default()
	tj.MinZoom = uint8(levelMin)
	tj.MaxZoom = uint8(levelMax)

	return &gdalRasterSource{
		pool: newGDALPool(filename, reuseLimit, concurrencyLimit),
		meta: tilesource.Metadata{
			TileFormat:      format,
			TileCompression: codec.CompressionNone,
			BBoxPyramid:     *pyramid,
			Traversal:       traversal.Default(),
		},
		tj:       tj,
		tileSize: tileSize,
		limits:   tilestream.DefaultConcurrencyLimits(concurrencyLimit),
	}, nil
}

func (s *gdalRasterSource) SourceType() tilesource.SourceType {
	return tilesource.Container("gdal_raster")
}
func (s *gdalRasterSource) Metadata() *tilesource.Metadata { return &s.meta }
func (s *gdalRasterSource) TileJSON() *tilesource.TileJSON { return &s.tj }

func (s *gdalRasterSource) GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error) {
	if !s.meta.BBoxPyramid.GetLevelBBox(c.Level).Contains(c) {
		return nil, nil
	}
	handle, err := s.pool.borrow(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "from_gdal_raster: borrowing dataset handle")
	}
	defer s.pool.release(handle)

	geo := c.ToGeoBBox()
	img, err := handle.oracle.ReadBBox(ctx, geo, s.tileSize, s.tileSize)
	if err != nil {
		return nil, xerrors.Wrap(err, "from_gdal_raster: reading bbox")
	}
	t, err := tile.FromImage(img, s.meta.TileFormat)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *gdalRasterSource) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	coords := bbox.IntoCoords()
	return tilestream.FromIterCoordParallel(ctx, coords, s.limits, func(ctx context.Context, c coord.TileCoord) (tile.Tile, bool, error) {
		t, err := s.GetTile(ctx, c)
		if err != nil || t == nil {
			return tile.Tile{}, false, err
		}
		return *t, true, nil
	}), nil
}
