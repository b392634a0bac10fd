// Package tarcontainer implements a TileSource over a tar archive holding
// the same `{z}/{x}/{y}.{ext}[.{comp}]` layout as internal/containers/dircontainer,
// packed into a single file. Open performs one sequential scan to build an
// index of (coord -> byte range within the tar), then reads are lazy and
// random-access via io.ReaderAt.
package tarcontainer

import (
	"archive/tar"
	"context"
	"io"
	"path/filepath"
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

type entryRange struct {
	offset, length int64
}

// Reader is a TileSource backed by a tar archive, indexed once at Open.
type Reader struct {
	ra       io.ReaderAt
	index    map[coord.TileCoord]entryRange
	meta     tilesource.Metadata
	tilejson tilesource.TileJSON
}

// Open scans ra (a tar stream of the given size, e.g. an *os.File) once,
// recording the byte range of every tile entry without reading tile bodies
// into memory.
func Open(ra io.ReaderAt, size int64) (*Reader, error) {
	r := &Reader{
		ra:       ra,
		index:    make(map[coord.TileCoord]entryRange),
		tilejson: tilesource.Default(),
	}
	pyramid := coord.NewPyramid()
	formatSeen := codec.UnknownFormat
	compressionSeen := codec.CompressionNone

	counter := &countingReader{r: io.NewSectionReader(ra, 0, size)}
	tr := tar.NewReader(counter)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, xerrors.Wrap(err, "scanning tar container")
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		name := strings.TrimPrefix(filepath.ToSlash(header.Name), "./")
		offset := counter.n
		if name == "tiles.json" || strings.HasPrefix(name, "tiles.json.") {
			data := make([]byte, header.Size)
			if _, err := io.ReadFull(tr, data); err != nil {
				return nil, xerrors.Wrap(err, "reading tar tilejson entry")
			}
			if parsed, err := tilesource.ParseTileJSON(data); err == nil {
				r.tilejson = parsed
			}
			continue
		}
		c, format, compression, ok := parseTilePath(name)
		if !ok {
			continue
		}
		r.index[c] = entryRange{offset: offset, length: header.Size}
		pyramid.IncludeCoord(c)
		formatSeen = format
		compressionSeen = compression
	}

	r.meta = tilesource.Metadata{
		TileFormat:      formatSeen,
		TileCompression: compressionSeen,
		BBoxPyramid:     *pyramid,
		Traversal:       traversal.Default(),
	}
	return r, nil
}

// countingReader tracks how many bytes have been consumed so far, letting
// Open record each entry's start offset as tar.Reader.Next() returns --
// archive/tar does not expose the underlying stream position itself.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func parseTilePath(rel string) (coord.TileCoord, codec.TileFormat, codec.TileCompression, bool) {
	parts := strings.Split(rel, "/")
	if len(parts) != 3 {
		return coord.TileCoord{}, codec.UnknownFormat, codec.CompressionNone, false
	}
	z, x, ok := parseUintPair(parts[0], parts[1])
	if !ok {
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
	y, ok := parseUint(yStr)
	if !ok {
		return coord.TileCoord{}, codec.UnknownFormat, codec.CompressionNone, false
	}
	c, err := coord.NewCoord(uint8(z), uint32(x), uint32(y))
	if err != nil {
		return coord.TileCoord{}, codec.UnknownFormat, codec.CompressionNone, false
	}
	return c, codec.FormatFromExtension(ext), compression, true
}

func parseUintPair(a, b string) (uint64, uint64, bool) {
	x, ok1 := parseUint(a)
	y, ok2 := parseUint(b)
	return x, y, ok1 && ok2
}

func parseUint(s string) (uint64, bool) {
	var v uint64
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		v = v*10 + uint64(r-'0')
	}
	return v, true
}

func (r *Reader) SourceType() tilesource.SourceType { return tilesource.Container("tar") }
func (r *Reader) Metadata() *tilesource.Metadata    { return &r.meta }
func (r *Reader) TileJSON() *tilesource.TileJSON    { return &r.tilejson }

func (r *Reader) GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error) {
	return tilesource.GetTileDefault(ctx, r, c)
}

func (r *Reader) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	coords := bbox.IntoCoords()
	return tilestream.FromIterCoord(ctx, coords, func(_ context.Context, c coord.TileCoord) (tile.Tile, bool, error) {
		rng, ok := r.index[c]
		if !ok {
			return tile.Tile{}, false, nil
		}
		data, err := r.readRange(rng)
		if err != nil {
			return tile.Tile{}, false, err
		}
		return tile.FromBlob(byteio.NewBlob(data), r.meta.TileCompression, r.meta.TileFormat), true, nil
	}), nil
}

func (r *Reader) readRange(rng entryRange) ([]byte, error) {
	data := make([]byte, rng.length)
	if _, err := r.ra.ReadAt(data, rng.offset); err != nil {
		return nil, xerrors.Wrap(err, "reading tar tile entry")
	}
	return data, nil
}
