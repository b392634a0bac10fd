// Package dircontainer implements a TileSource over a filesystem tree laid
// out as `{z}/{x}/{y}.{ext}[.{comp}]`, the layout shared with the tar
// container (internal/containers/tarcontainer packs the same tree into one
// file).
package dircontainer

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/traversal"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// Reader is a TileSource backed by a `{root}/{z}/{x}/{y}.{ext}[.{comp}]`
// directory tree, discovered with one filesystem walk at Open time.
type Reader struct {
	root     string
	meta     tilesource.Metadata
	tilejson tilesource.TileJSON
}

// Open walks root once, inferring the tile format/compression from the
// last tile file the walk visits and building the bbox pyramid from every
// path matched.
func Open(root string) (*Reader, error) {
	r := &Reader{root: root, tilejson: tilesource.Default()}
	pyramid := coord.NewPyramid()
	formatSeen := codec.UnknownFormat
	compressionSeen := codec.CompressionNone

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		c, format, compression, ok := parseTilePath(filepath.ToSlash(rel))
		if !ok {
			return nil
		}
		pyramid.IncludeCoord(c)
		formatSeen = format
		compressionSeen = compression
		return nil
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "walking directory container %s", root)
	}

	r.meta = tilesource.Metadata{
		TileFormat:      formatSeen,
		TileCompression: compressionSeen,
		BBoxPyramid:     *pyramid,
		Traversal:       traversal.Default(),
	}
	return r, nil
}

// parseTilePath decodes `{z}/{x}/{y}.{ext}[.{comp}]` into a coordinate,
// format, and compression. ok is false for any path that does not match.
func parseTilePath(rel string) (coord.TileCoord, codec.TileFormat, codec.TileCompression, bool) {
	parts := strings.Split(rel, "/")
	if len(parts) != 3 {
		return coord.TileCoord{}, codec.UnknownFormat, codec.CompressionNone, false
	}
	z, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return coord.TileCoord{}, codec.UnknownFormat, codec.CompressionNone, false
	}
	x, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return coord.TileCoord{}, codec.UnknownFormat, codec.CompressionNone, false
	}

	name := parts[2]
	compression := codec.CompressionNone
	switch {
	case strings.HasSuffix(name, ".br"):
		compression = codec.CompressionBrotli
		name = strings.TrimSuffix(name, ".br")
	case strings.HasSuffix(name, ".gz"):
		compression = codec.CompressionGzip
		name = strings.TrimSuffix(name, ".gz")
	}

	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	yStr := strings.TrimSuffix(name, filepath.Ext(name))
	y, err := strconv.ParseUint(yStr, 10, 32)
	if err != nil {
		return coord.TileCoord{}, codec.UnknownFormat, codec.CompressionNone, false
	}

	c, err := coord.NewCoord(uint8(z), uint32(x), uint32(y))
	if err != nil {
		return coord.TileCoord{}, codec.UnknownFormat, codec.CompressionNone, false
	}
	return c, codec.FormatFromExtension(ext), compression, true
}

func tilePath(root string, c coord.TileCoord, format codec.TileFormat, compression codec.TileCompression) string {
	name := strconv.FormatUint(uint64(c.Y), 10) + "." + extensionFor(format)
	switch compression {
	case codec.CompressionBrotli:
		name += ".br"
	case codec.CompressionGzip:
		name += ".gz"
	}
	return filepath.Join(root, strconv.Itoa(int(c.Level)), strconv.FormatUint(uint64(c.X), 10), name)
}

func extensionFor(f codec.TileFormat) string {
	switch f {
	case codec.FormatPBF:
		return "pbf"
	case codec.FormatPNG:
		return "png"
	case codec.FormatJPG:
		return "jpg"
	case codec.FormatWEBP:
		return "webp"
	case codec.FormatAVIF:
		return "avif"
	case codec.FormatGEOJSON:
		return "geojson"
	case codec.FormatTOPOJSON:
		return "topojson"
	case codec.FormatJSON:
		return "json"
	default:
		return "bin"
	}
}

func (r *Reader) SourceType() tilesource.SourceType { return tilesource.Container("directory") }
func (r *Reader) Metadata() *tilesource.Metadata    { return &r.meta }
func (r *Reader) TileJSON() *tilesource.TileJSON    { return &r.tilejson }

func (r *Reader) GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error) {
	return tilesource.GetTileDefault(ctx, r, c)
}

func (r *Reader) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	coords := bbox.IntoCoords()
	return tilestream.FromIterCoord(ctx, coords, func(_ context.Context, c coord.TileCoord) (tile.Tile, bool, error) {
		path := tilePath(r.root, c, r.meta.TileFormat, r.meta.TileCompression)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return tile.Tile{}, false, nil
			}
			return tile.Tile{}, false, xerrors.Wrapf(err, "reading tile file %s", path)
		}
		return tile.FromBlob(byteio.NewBlob(data), r.meta.TileCompression, r.meta.TileFormat), true, nil
	}), nil
}
