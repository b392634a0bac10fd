package versatiles

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/storage"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/traversal"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

type blockKey struct {
	level          uint8
	blockRow, blockCol uint32
}

// Reader is a TileSource backed by a VersaTiles container file. All reads
// are range requests against the underlying Bucket and are safe for
// concurrent use: the reader holds no seek cursor of its own.
type Reader struct {
	bucket storage.Bucket
	key    string
	header Header
	blocks map[blockKey]BlockRecord

	indexMu    sync.Mutex
	indexCache map[blockKey][]tileIndexSlot

	meta     tilesource.Metadata
	tilejson tilesource.TileJSON
}

// Open reads the header (66 bytes at offset 0) and the brotli-compressed
// block index at header.BlocksRange, then computes per-level bboxes from
// the block table. Opening costs O(|blocks|) decompression plus O(1) range
// fetches; no tile payload is read until GetTile/GetTileStream.
func Open(ctx context.Context, bucket storage.Bucket, key string) (*Reader, error) {
	headerBytes, err := readRange(ctx, bucket, key, 0, HeaderLen)
	if err != nil {
		return nil, xerrors.Wrap(err, "reading versatiles header")
	}
	header, err := ParseHeader(headerBytes)
	if err != nil {
		return nil, xerrors.Wrap(err, "parsing versatiles header")
	}

	r := &Reader{
		bucket:     bucket,
		key:        key,
		header:     header,
		blocks:     make(map[blockKey]BlockRecord),
		indexCache: make(map[blockKey][]tileIndexSlot),
	}

	if err := r.loadBlocks(ctx); err != nil {
		return nil, err
	}
	if err := r.loadMeta(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func readRange(ctx context.Context, bucket storage.Bucket, key string, offset, length int64) ([]byte, error) {
	rc, err := bucket.NewRangeReader(ctx, key, offset, length)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data := make([]byte, length)
	if _, err := io.ReadFull(rc, data); err != nil {
		return nil, xerrors.Wrapf(err, "short read at offset %d length %d", offset, length)
	}
	return data, nil
}

func (r *Reader) loadBlocks(ctx context.Context) error {
	if r.header.BlocksRange.IsEmpty() {
		r.meta = tilesource.Metadata{
			TileFormat:      r.header.TileFormat,
			TileCompression: r.header.TileCompression,
			BBoxPyramid:     *coord.NewPyramid(),
			Traversal:       traversal.Default(),
		}
		return nil
	}
	raw, err := readRange(ctx, r.bucket, r.key, int64(r.header.BlocksRange.Offset), int64(r.header.BlocksRange.Length))
	if err != nil {
		return xerrors.Wrap(err, "reading versatiles block index")
	}
	records, err := parseBlockIndex(byteio.NewBlob(raw))
	if err != nil {
		return xerrors.Wrap(err, "parsing versatiles block index")
	}

	pyramid := coord.NewPyramid()
	for _, rec := range records {
		key := blockKey{level: rec.Level, blockRow: rec.BlockRow, blockCol: rec.BlockCol}
		r.blocks[key] = rec
		xMin := rec.BlockCol*BlockSize + uint32(rec.ColMin)
		xMax := rec.BlockCol*BlockSize + uint32(rec.ColMax)
		yMin := rec.BlockRow*BlockSize + uint32(rec.RowMin)
		yMax := rec.BlockRow*BlockSize + uint32(rec.RowMax)
		bbox, err := coord.New(rec.Level, xMin, yMin, xMax, yMax)
		if err != nil {
			return xerrors.Wrapf(err, "block (%d,%d,%d) has invalid bbox", rec.Level, rec.BlockRow, rec.BlockCol)
		}
		pyramid.IncludeBBox(bbox)
	}

	r.meta = tilesource.Metadata{
		TileFormat:      r.header.TileFormat,
		TileCompression: r.header.TileCompression,
		BBoxPyramid:     *pyramid,
		Traversal:       traversal.Traversal{Order: traversal.Any, BlockWidth: BlockSize, MaxInFlightTiles: 1 << 20},
	}
	return nil
}

func (r *Reader) loadMeta(ctx context.Context) error {
	r.tilejson = tilesource.Default()
	if r.header.MetaRange.IsEmpty() {
		return nil
	}
	raw, err := readRange(ctx, r.bucket, r.key, int64(r.header.MetaRange.Offset), int64(r.header.MetaRange.Length))
	if err != nil {
		return xerrors.Wrap(err, "reading versatiles meta blob")
	}
	decompressed, err := codec.Decompress(byteio.NewBlob(raw), codec.CompressionBrotli)
	if err != nil {
		return xerrors.Wrap(err, "decompressing versatiles meta blob")
	}
	if decompressed.Len() == 0 {
		return nil
	}
	parsed, err := tilesource.ParseTileJSON(decompressed.AsSlice())
	if err != nil {
		return xerrors.Wrap(err, "parsing versatiles meta blob")
	}
	r.tilejson = parsed
	return nil
}

func (r *Reader) SourceType() tilesource.SourceType { return tilesource.Container("versatiles") }
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

// fetch resolves coord to its block, its slot in the block's tile index,
// and finally the tile payload itself: O(1) block-table lookup, one cached
// brotli-decoded tile index, one range fetch.
func (r *Reader) fetch(ctx context.Context, c coord.TileCoord) ([]byte, bool, error) {
	blockRow, blockCol := c.Y/BlockSize, c.X/BlockSize
	key := blockKey{level: c.Level, blockRow: blockRow, blockCol: blockCol}
	rec, ok := r.blocks[key]
	if !ok {
		return nil, false, nil
	}
	row := uint8(c.Y % BlockSize)
	col := uint8(c.X % BlockSize)
	if row < rec.RowMin || row > rec.RowMax || col < rec.ColMin || col > rec.ColMax {
		return nil, false, nil
	}

	slots, err := r.tileIndex(ctx, key, rec)
	if err != nil {
		return nil, false, err
	}
	slot := slots[rec.slotIndex(row, col)]
	if slot.isAbsent() {
		return nil, false, nil
	}

	offset := int64(rec.TilesRange.Offset) + int64(slot.Offset)
	data, err := readRange(ctx, r.bucket, r.key, offset, int64(slot.Length))
	if err != nil {
		return nil, false, xerrors.Wrapf(err, "reading tile body for %s", c)
	}
	return data, true, nil
}

// tileIndex returns the decoded tile index for a block, caching the
// decompressed form under a single mutex so concurrent readers of the same
// block do not repeat the brotli decompression.
func (r *Reader) tileIndex(ctx context.Context, key blockKey, rec BlockRecord) ([]tileIndexSlot, error) {
	r.indexMu.Lock()
	if cached, ok := r.indexCache[key]; ok {
		r.indexMu.Unlock()
		return cached, nil
	}
	r.indexMu.Unlock()

	raw, err := readRange(ctx, r.bucket, r.key, int64(rec.IndexRange.Offset), int64(rec.IndexRange.Length))
	if err != nil {
		return nil, xerrors.Wrap(err, "reading block tile index")
	}
	slots, err := parseTileIndex(byteio.NewBlob(raw), rec.tileCount())
	if err != nil {
		return nil, xerrors.Wrapf(err, "parsing tile index for block %v", key)
	}

	r.indexMu.Lock()
	r.indexCache[key] = slots
	r.indexMu.Unlock()
	return slots, nil
}

func (k blockKey) String() string {
	return fmt.Sprintf("block(level=%d,row=%d,col=%d)", k.level, k.blockRow, k.blockCol)
}
