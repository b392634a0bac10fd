// Package pmtilesreader implements a TileSource over the PMTiles v3 archive
// format: a single file addressed by Hilbert curve tile ID, with a root
// directory that either lists tiles directly or points at leaf directories.
package pmtilesreader

import (
	"context"
	"io"

	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/storage"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilecache"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/traversal"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// Reader is a TileSource backed by a PMTiles v3 archive.
type Reader struct {
	bucket   storage.Bucket
	key      string
	header   header
	root     []entry
	leafCache *tilecache.Cache
	meta     tilesource.Metadata
	tilejson tilesource.TileJSON
}

// Open opens a PMTiles archive at key within bucket, reading its header,
// root directory, and metadata blob eagerly.
func Open(ctx context.Context, bucket storage.Bucket, key string) (*Reader, error) {
	headerReader, err := bucket.NewRangeReader(ctx, key, 0, headerLenBytes)
	if err != nil {
		return nil, xerrors.Wrap(err, "reading pmtiles header")
	}
	defer headerReader.Close()
	headerBytes := make([]byte, headerLenBytes)
	if _, err := io.ReadFull(headerReader, headerBytes); err != nil {
		return nil, err
	}
	h, err := deserializeHeader(headerBytes)
	if err != nil {
		return nil, err
	}

	rootReader, err := bucket.NewRangeReader(ctx, key, int64(h.RootOffset), int64(h.RootLength))
	if err != nil {
		return nil, xerrors.Wrap(err, "reading pmtiles root directory")
	}
	defer rootReader.Close()
	rootBytes := make([]byte, h.RootLength)
	if _, err := io.ReadFull(rootReader, rootBytes); err != nil {
		return nil, err
	}
	root, err := deserializeEntries(rootBytes, h.InternalCompression)
	if err != nil {
		return nil, xerrors.Wrap(err, "parsing pmtiles root directory")
	}

	r := &Reader{
		bucket:    bucket,
		key:       key,
		header:    h,
		root:      root,
		leafCache: tilecache.New(64 << 20),
	}
	if err := r.loadMetadata(ctx); err != nil {
		return nil, err
	}
	r.loadPyramid()
	return r, nil
}

func (r *Reader) loadMetadata(ctx context.Context) error {
	r.tilejson = tilesource.Default()
	if r.header.MetadataLength == 0 {
		return nil
	}
	reader, err := r.bucket.NewRangeReader(ctx, r.key, int64(r.header.MetadataOffset), int64(r.header.MetadataLength))
	if err != nil {
		return xerrors.Wrap(err, "reading pmtiles metadata")
	}
	defer reader.Close()
	raw := make([]byte, r.header.MetadataLength)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return err
	}
	data, err := decompressInternal(raw, r.header.InternalCompression)
	if err != nil {
		return xerrors.Wrap(err, "decompressing pmtiles metadata")
	}
	if parsed, err := tilesource.ParseTileJSON(data); err == nil {
		r.tilejson = parsed
	}
	return nil
}

func (r *Reader) loadPyramid() {
	pyramid := coord.NewPyramid()
	for z := r.header.MinZoom; z <= r.header.MaxZoom; z++ {
		full, err := coord.New(z, 0, 0, maxCoord(z), maxCoord(z))
		if err == nil {
			pyramid.IncludeBBox(full)
		}
	}
	r.meta = tilesource.Metadata{
		TileFormat:      r.header.TileFormat,
		TileCompression: r.header.TileCompression,
		BBoxPyramid:     *pyramid,
		Traversal:       traversal.Traversal{Order: traversal.PMTilesHilbert, BlockWidth: 0, MaxInFlightTiles: 0},
	}
}

func maxCoord(z uint8) uint32 {
	if z == 0 {
		return 0
	}
	return (uint32(1) << z) - 1
}

func (r *Reader) SourceType() tilesource.SourceType { return tilesource.Container("pmtiles") }
func (r *Reader) Metadata() *tilesource.Metadata    { return &r.meta }
func (r *Reader) TileJSON() *tilesource.TileJSON    { return &r.tilejson }

// Close releases the underlying bucket.
func (r *Reader) Close() error { return r.bucket.Close() }

func (r *Reader) GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error) {
	data, ok, err := r.fetch(ctx, c)
	if err != nil || !ok {
		return nil, err
	}
	t := tile.FromBlob(byteio.NewBlob(data), r.meta.TileCompression, r.meta.TileFormat)
	return &t, nil
}

func (r *Reader) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	coords := bbox.IntoCoords()
	return tilestream.FromIterCoord(ctx, coords, func(ctx context.Context, c coord.TileCoord) (tile.Tile, bool, error) {
		data, ok, err := r.fetch(ctx, c)
		if err != nil || !ok {
			return tile.Tile{}, false, err
		}
		return tile.FromBlob(byteio.NewBlob(data), r.meta.TileCompression, r.meta.TileFormat), true, nil
	}), nil
}

func (r *Reader) fetch(ctx context.Context, c coord.TileCoord) ([]byte, bool, error) {
	tileID := coord.HilbertID(c)
	dirEntries := r.root
	depth := 0
	for {
		e, found := findTile(dirEntries, tileID)
		if !found {
			return nil, false, nil
		}
		if e.RunLength > 0 {
			body, err := r.readTileBody(ctx, e)
			return body, true, err
		}
		depth++
		if depth > 32 {
			return nil, false, xerrors.New("pmtiles directory recursion too deep")
		}
		leaf, err := r.readLeaf(ctx, e)
		if err != nil {
			return nil, false, err
		}
		dirEntries = leaf
	}
}

func (r *Reader) readLeaf(ctx context.Context, e entry) ([]entry, error) {
	cacheKey := coord.TileCoord{Level: 63, X: uint32(e.Offset), Y: uint32(e.Offset >> 32)}
	if cached, ok := r.leafCache.Get(cacheKey); ok {
		return deserializeEntries(cached, r.header.InternalCompression)
	}
	offset := int64(r.header.LeafDirectoryOffset) + int64(e.Offset)
	reader, err := r.bucket.NewRangeReader(ctx, r.key, offset, int64(e.Length))
	if err != nil {
		return nil, xerrors.Wrap(err, "reading pmtiles leaf directory")
	}
	defer reader.Close()
	data := make([]byte, e.Length)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, err
	}
	r.leafCache.Set(cacheKey, data)
	return deserializeEntries(data, r.header.InternalCompression)
}

func (r *Reader) readTileBody(ctx context.Context, e entry) ([]byte, error) {
	offset := int64(r.header.TileDataOffset) + int64(e.Offset)
	reader, err := r.bucket.NewRangeReader(ctx, r.key, offset, int64(e.Length))
	if err != nil {
		return nil, xerrors.Wrap(err, "reading pmtiles tile body")
	}
	defer reader.Close()
	data := make([]byte, e.Length)
	_, err = io.ReadFull(reader, data)
	return data, err
}
