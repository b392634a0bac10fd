package versatiles

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// Reporter receives incremental progress counts as the writer walks the
// source's blocks, letting a caller drive e.g. a progressbar.v3 bar without
// this package importing any presentation concern itself.
type Reporter interface {
	Add(n int)
}

// Writer streams a TileSource into a VersaTiles container file.
//
// Workflow: write a placeholder header, stream-encode the
// meta blob and record its range, walk the source partitioned into
// block-aligned (<=256x256) request bboxes building one BlockBuilder per
// block, collect the resulting BlockRecords, then patch the header with the
// final meta/blocks ranges.
type Writer struct {
	mu  sync.Mutex
	out io.WriteSeeker
	pos uint64

	logger   *zap.SugaredLogger
	reporter Reporter
}

// NewWriter wraps out (typically an *os.File, which satisfies
// io.WriteSeeker) for streaming writes. logger may be nil.
func NewWriter(out io.WriteSeeker, logger *zap.SugaredLogger) *Writer {
	return &Writer{out: out, logger: logger}
}

// SetReporter installs a progress reporter invoked once per tile streamed.
func (w *Writer) SetReporter(r Reporter) { w.reporter = r }

func (w *Writer) write(p []byte) error {
	n, err := w.out.Write(p)
	w.pos += uint64(n)
	if err != nil {
		return xerrors.Wrap(err, "writing versatiles output")
	}
	return nil
}

// WriteSource consumes source's full bbox pyramid and serialises it as a
// VersaTiles container.
func (w *Writer) WriteSource(ctx context.Context, source tilesource.TileSource) (Stats, error) {
	meta := source.Metadata()
	zMin, okMin := meta.BBoxPyramid.GetLevelMin()
	zMax, okMax := meta.BBoxPyramid.GetLevelMax()
	if !okMin || !okMax {
		zMin, zMax = 0, 0
	}
	geo := meta.BBoxPyramid.GetGeoBBox()

	header := Header{
		TileFormat:      meta.TileFormat,
		TileCompression: meta.TileCompression,
		ZoomMin:         zMin,
		ZoomMax:         zMax,
		BBox: [4]int32{
			int32(geo.West * geoScale), int32(geo.South * geoScale),
			int32(geo.East * geoScale), int32(geo.North * geoScale),
		},
	}
	if err := w.writeHeader(header); err != nil {
		return Stats{}, err
	}

	metaRange, err := w.writeMeta(source.TileJSON())
	if err != nil {
		return Stats{}, err
	}
	header.MetaRange = metaRange

	var records []BlockRecord
	stats := Stats{}
	for z := zMin; ; z++ {
		bbox := meta.BBoxPyramid.GetLevelBBox(z)
		for _, block := range blockAlignedBBoxes(bbox) {
			rec, tileCount, tileBytes, err := w.writeBlock(ctx, source, meta.TileCompression, block)
			if err != nil {
				return Stats{}, xerrors.Wrapf(err, "writing block at level %d", z)
			}
			if rec != nil {
				records = append(records, *rec)
				stats.Blocks++
			}
			stats.Tiles += tileCount
			stats.TileBytes += tileBytes
			if w.logger != nil {
				w.logger.Debugw("versatiles block written", "level", z, "tiles", tileCount)
			}
		}
		if z == zMax {
			break
		}
	}

	blocksRange, err := w.writeBlockIndex(records)
	if err != nil {
		return Stats{}, err
	}
	header.BlocksRange = blocksRange

	if err := w.patchHeader(header); err != nil {
		return Stats{}, err
	}
	stats.BytesUsed = w.pos
	return stats, nil
}

func (w *Writer) writeHeader(h Header) error {
	buf, err := h.Marshal()
	if err != nil {
		return err
	}
	return w.write(buf)
}

func (w *Writer) writeMeta(tj *tilesource.TileJSON) (byteio.ByteRange, error) {
	raw, err := tj.Marshal()
	if err != nil {
		return byteio.ByteRange{}, xerrors.Wrap(err, "marshalling tilejson")
	}
	compressed, err := codec.Compress(byteio.NewBlob(raw), codec.CompressionBrotli)
	if err != nil {
		return byteio.ByteRange{}, xerrors.Wrap(err, "compressing meta blob")
	}
	offset := w.pos
	if err := w.write(compressed.AsSlice()); err != nil {
		return byteio.ByteRange{}, err
	}
	return byteio.ByteRange{Offset: offset, Length: uint64(compressed.Len())}, nil
}

func (w *Writer) writeBlockIndex(records []BlockRecord) (byteio.ByteRange, error) {
	compressed, err := marshalBlockIndex(records)
	if err != nil {
		return byteio.ByteRange{}, xerrors.Wrap(err, "compressing block index")
	}
	offset := w.pos
	if err := w.write(compressed.AsSlice()); err != nil {
		return byteio.ByteRange{}, err
	}
	return byteio.ByteRange{Offset: offset, Length: uint64(compressed.Len())}, nil
}

// writeBlock streams every tile in block through one BlockBuilder, tile
// payloads encoded at the container's compression. Blocks are built
// sequentially so tile-payload append offsets remain monotonic; the tile
// decode/encode work that produced the stream already happened
// concurrently upstream.
func (w *Writer) writeBlock(ctx context.Context, source tilesource.TileSource, compression codec.TileCompression, block coord.TileBBox) (*BlockRecord, uint64, uint64, error) {
	stream, err := source.GetTileStream(ctx, block)
	if err != nil {
		return nil, 0, 0, err
	}
	builder := newBlockBuilder(&w.mu, w.out, &w.pos)
	var count uint64
	var bytesWritten uint64

	items, err := tilestream.ToVec(stream)
	if err != nil {
		return nil, 0, 0, err
	}
	for _, it := range items {
		t := it.Value
		blob, err := t.AsBlob(compression)
		if err != nil {
			return nil, 0, 0, xerrors.Wrapf(err, "encoding tile %s", it.Coord)
		}
		if err := builder.AddTile(it.Coord, blob.AsSlice()); err != nil {
			return nil, 0, 0, err
		}
		count++
		if w.reporter != nil {
			w.reporter.Add(1)
		}
	}
	bytesWritten = builder.bytesWritten
	rec, err := builder.Finalize()
	return rec, count, bytesWritten, err
}

// patchHeader rewrites the 66-byte header in place once the meta/blocks
// ranges are known, seeking back to offset 0 and restoring the write cursor
// afterwards.
func (w *Writer) patchHeader(h Header) error {
	buf, err := h.Marshal()
	if err != nil {
		return err
	}
	if _, err := w.out.Seek(0, io.SeekStart); err != nil {
		return xerrors.Wrap(err, "seeking to patch header")
	}
	if _, err := w.out.Write(buf); err != nil {
		return xerrors.Wrap(err, "patching header")
	}
	if _, err := w.out.Seek(int64(w.pos), io.SeekStart); err != nil {
		return xerrors.Wrap(err, "restoring write cursor")
	}
	return nil
}

// blockAlignedBBoxes splits bbox into the <=256x256 blocks it overlaps,
// each clipped to bbox's own extent, so a sparse source never allocates a
// block wider than the region it actually covers.
func blockAlignedBBoxes(bbox coord.TileBBox) []coord.TileBBox {
	if bbox.IsEmpty() {
		return nil
	}
	blockXMin, blockXMax := bbox.XMin/BlockSize, bbox.XMax/BlockSize
	blockYMin, blockYMax := bbox.YMin/BlockSize, bbox.YMax/BlockSize

	var out []coord.TileBBox
	for by := blockYMin; ; by++ {
		for bx := blockXMin; ; bx++ {
			xMin, xMax := maxU32(bx*BlockSize, bbox.XMin), minU32(bx*BlockSize+BlockSize-1, bbox.XMax)
			yMin, yMax := maxU32(by*BlockSize, bbox.YMin), minU32(by*BlockSize+BlockSize-1, bbox.YMax)
			b, err := coord.New(bbox.Level, xMin, yMin, xMax, yMax)
			if err == nil && !b.IsEmpty() {
				out = append(out, b)
			}
			if bx == blockXMax {
				break
			}
		}
		if by == blockYMax {
			break
		}
	}
	return out
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
