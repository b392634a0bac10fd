// Package versatiles implements the VersaTiles binary container: a
// self-indexed, random-access tile pyramid storing compressed tiles with
// block-level grouping, per-block tile indices, and content-addressed
// deduplication of small payloads. format.go covers the on-disk layout
// (header, block records, tile index records) shared by reader.go and
// writer.go.
package versatiles

import (
	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// Magic is the 14-byte ASCII signature at the start of every VersaTiles
// file.
const Magic = "versatiles_v02"

// HeaderLen is the fixed size of the file header in bytes.
const HeaderLen = 66

// BlockRecordLen is the serialised size of one block-index record: level(1)
// + block_row(4) + block_col(4) + row_min(1) + row_max(1) + col_min(1) +
// col_max(1) + tiles_range(16) + index_range(16).
const BlockRecordLen = 45

// TileIndexRecordLen is the serialised size of one per-block tile-index
// slot: offset(8 BE) + length(4 BE).
const TileIndexRecordLen = 12

// BlockSize is the tile-count width/height of one VersaTiles block.
const BlockSize = 256

// geoScale converts between the header's 1e-7-degree fixed point bbox
// encoding and plain float64 degrees.
const geoScale = 1e7

// Header is the 66-byte file header.
type Header struct {
	TileFormat      codec.TileFormat
	TileCompression codec.TileCompression
	ZoomMin         uint8
	ZoomMax         uint8
	BBox            [4]int32 // west, south, east, north, scaled by 1e7
	MetaRange       byteio.ByteRange
	BlocksRange     byteio.ByteRange
}

// Validate checks the header invariants: a geographic bbox within
// [-180,180]x[-90,90] and a monotonic zoom range.
func (h Header) Validate() error {
	if h.ZoomMin > h.ZoomMax {
		return xerrors.Errorf("zoom_min (%d) > zoom_max (%d)", h.ZoomMin, h.ZoomMax)
	}
	w, s, e, n := float64(h.BBox[0])/geoScale, float64(h.BBox[1])/geoScale, float64(h.BBox[2])/geoScale, float64(h.BBox[3])/geoScale
	if w < -180 || e > 180 || s < -90 || n > 90 {
		return xerrors.Errorf("bbox [%f,%f,%f,%f] exceeds geographic bounds", w, s, e, n)
	}
	if w > e || s > n {
		return xerrors.Errorf("bbox [%f,%f,%f,%f] is not well-formed", w, s, e, n)
	}
	return nil
}

// Marshal serialises the header to its fixed 66-byte layout.
func (h Header) Marshal() ([]byte, error) {
	formatByte, err := FormatToWire(h.TileFormat)
	if err != nil {
		return nil, err
	}
	w := byteio.NewValueWriter()
	w.WriteSlice([]byte(Magic))
	w.WriteU8(formatByte)
	w.WriteU8(uint8(h.TileCompression))
	w.WriteU8(h.ZoomMin)
	w.WriteU8(h.ZoomMax)
	for _, v := range h.BBox {
		w.WriteI32(v)
	}
	w.WriteRange(h.MetaRange)
	w.WriteRange(h.BlocksRange)
	buf := w.Bytes()
	if len(buf) != HeaderLen {
		return nil, xerrors.Errorf("internal error: header serialised to %d bytes, want %d", len(buf), HeaderLen)
	}
	return buf, nil
}

// ParseHeader deserialises a 66-byte header.
func ParseHeader(data []byte) (Header, error) {
	if len(data) != HeaderLen {
		return Header{}, xerrors.Errorf("header must be %d bytes, got %d", HeaderLen, len(data))
	}
	r := byteio.NewValueReader(data)
	magic, err := r.ReadString(len(Magic))
	if err != nil {
		return Header{}, err
	}
	if magic != Magic {
		return Header{}, xerrors.Errorf("bad magic %q, want %q", magic, Magic)
	}
	formatByte, err := r.ReadU8()
	if err != nil {
		return Header{}, err
	}
	format, err := WireToFormat(formatByte)
	if err != nil {
		return Header{}, err
	}
	compressionByte, err := r.ReadU8()
	if err != nil {
		return Header{}, err
	}
	if compressionByte > uint8(codec.CompressionBrotli) {
		return Header{}, xerrors.Errorf("unknown compression byte %d", compressionByte)
	}
	zoomMin, err := r.ReadU8()
	if err != nil {
		return Header{}, err
	}
	zoomMax, err := r.ReadU8()
	if err != nil {
		return Header{}, err
	}
	var bbox [4]int32
	for i := range bbox {
		v, err := r.ReadI32()
		if err != nil {
			return Header{}, err
		}
		bbox[i] = v
	}
	metaRange, err := r.ReadRange()
	if err != nil {
		return Header{}, err
	}
	blocksRange, err := r.ReadRange()
	if err != nil {
		return Header{}, err
	}
	h := Header{
		TileFormat:      format,
		TileCompression: codec.TileCompression(compressionByte),
		ZoomMin:         zoomMin,
		ZoomMax:         zoomMax,
		BBox:            bbox,
		MetaRange:       metaRange,
		BlocksRange:     blocksRange,
	}
	return h, h.Validate()
}

// FormatToWire maps a TileFormat to its on-disk byte.
func FormatToWire(f codec.TileFormat) (uint8, error) {
	switch f {
	case codec.FormatBIN:
		return 0x00, nil
	case codec.FormatPNG:
		return 0x10, nil
	case codec.FormatJPG:
		return 0x11, nil
	case codec.FormatWEBP:
		return 0x12, nil
	case codec.FormatAVIF:
		return 0x13, nil
	case codec.FormatSVG:
		return 0x14, nil
	case codec.FormatPBF:
		return 0x20, nil
	case codec.FormatGEOJSON:
		return 0x21, nil
	case codec.FormatTOPOJSON:
		return 0x22, nil
	case codec.FormatJSON:
		return 0x23, nil
	default:
		return 0, xerrors.Errorf("tile format %s has no VersaTiles wire encoding", f)
	}
}

// WireToFormat is the inverse of FormatToWire.
func WireToFormat(b uint8) (codec.TileFormat, error) {
	switch b {
	case 0x00:
		return codec.FormatBIN, nil
	case 0x10:
		return codec.FormatPNG, nil
	case 0x11:
		return codec.FormatJPG, nil
	case 0x12:
		return codec.FormatWEBP, nil
	case 0x13:
		return codec.FormatAVIF, nil
	case 0x14:
		return codec.FormatSVG, nil
	case 0x20:
		return codec.FormatPBF, nil
	case 0x21:
		return codec.FormatGEOJSON, nil
	case 0x22:
		return codec.FormatTOPOJSON, nil
	case 0x23:
		return codec.FormatJSON, nil
	default:
		return codec.UnknownFormat, xerrors.Errorf("unknown VersaTiles tile format byte 0x%02x", b)
	}
}

// BlockRecord is one 45-byte entry of the file-level block index: the
// catalogue entry mapping (level, block_row, block_col) to the on-disk
// ranges of its tile payloads and its own tile index.
//
// The row/col min/max fields are local offsets within the block (0..255),
// describing the sub-rectangle that actually holds tiles -- not the full
// 256x256 extent the block could hold. This is what lets a sparse block's
// tile index stay proportional to its actual content.
type BlockRecord struct {
	Level              uint8
	BlockRow, BlockCol uint32
	RowMin, RowMax     uint8
	ColMin, ColMax     uint8
	TilesRange         byteio.ByteRange
	IndexRange         byteio.ByteRange
}

// rows/cols return the local bbox width/height covered by this block.
func (b BlockRecord) rows() int { return int(b.RowMax) - int(b.RowMin) + 1 }
func (b BlockRecord) cols() int { return int(b.ColMax) - int(b.ColMin) + 1 }

// tileCount is the number of tile-index slots this block's index holds.
func (b BlockRecord) tileCount() int { return b.rows() * b.cols() }

// slotIndex returns the row-major index of the local (row,col) offset
// within this block's tile index.
func (b BlockRecord) slotIndex(row, col uint8) int {
	return (int(row)-int(b.RowMin))*b.cols() + (int(col) - int(b.ColMin))
}

func (b BlockRecord) marshal() []byte {
	w := byteio.NewValueWriter()
	w.WriteU8(b.Level)
	w.WriteU32(b.BlockRow)
	w.WriteU32(b.BlockCol)
	w.WriteU8(b.RowMin)
	w.WriteU8(b.RowMax)
	w.WriteU8(b.ColMin)
	w.WriteU8(b.ColMax)
	w.WriteRange(b.TilesRange)
	w.WriteRange(b.IndexRange)
	return w.Bytes()
}

func parseBlockRecord(data []byte) (BlockRecord, error) {
	r := byteio.NewValueReader(data)
	level, err := r.ReadU8()
	if err != nil {
		return BlockRecord{}, err
	}
	blockRow, err := r.ReadU32()
	if err != nil {
		return BlockRecord{}, err
	}
	blockCol, err := r.ReadU32()
	if err != nil {
		return BlockRecord{}, err
	}
	rowMin, err := r.ReadU8()
	if err != nil {
		return BlockRecord{}, err
	}
	rowMax, err := r.ReadU8()
	if err != nil {
		return BlockRecord{}, err
	}
	colMin, err := r.ReadU8()
	if err != nil {
		return BlockRecord{}, err
	}
	colMax, err := r.ReadU8()
	if err != nil {
		return BlockRecord{}, err
	}
	tilesRange, err := r.ReadRange()
	if err != nil {
		return BlockRecord{}, err
	}
	indexRange, err := r.ReadRange()
	if err != nil {
		return BlockRecord{}, err
	}
	return BlockRecord{
		Level: level, BlockRow: blockRow, BlockCol: blockCol,
		RowMin: rowMin, RowMax: rowMax, ColMin: colMin, ColMax: colMax,
		TilesRange: tilesRange, IndexRange: indexRange,
	}, nil
}

// marshalBlockIndex concatenates and brotli-compresses the block records
// for the raw blocks-range blob.
func marshalBlockIndex(records []BlockRecord) (byteio.Blob, error) {
	buf := make([]byte, 0, len(records)*BlockRecordLen)
	for _, rec := range records {
		buf = append(buf, rec.marshal()...)
	}
	return codec.Compress(byteio.NewBlob(buf), codec.CompressionBrotli)
}

// parseBlockIndex decompresses and splits a blocks-range blob into records.
func parseBlockIndex(compressed byteio.Blob) ([]BlockRecord, error) {
	raw, err := codec.Decompress(compressed, codec.CompressionBrotli)
	if err != nil {
		return nil, xerrors.Wrap(err, "decompressing block index")
	}
	data := raw.AsSlice()
	if len(data)%BlockRecordLen != 0 {
		return nil, xerrors.Errorf("block index length %d is not a multiple of %d", len(data), BlockRecordLen)
	}
	n := len(data) / BlockRecordLen
	out := make([]BlockRecord, n)
	for i := 0; i < n; i++ {
		rec, err := parseBlockRecord(data[i*BlockRecordLen : (i+1)*BlockRecordLen])
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}
	return out, nil
}

// tileIndexSlot is one 12-byte per-block tile index record.
type tileIndexSlot struct {
	Offset uint64
	Length uint32
}

func (s tileIndexSlot) isAbsent() bool { return s.Length == 0 }

func marshalTileIndex(slots []tileIndexSlot) (byteio.Blob, error) {
	buf := make([]byte, len(slots)*TileIndexRecordLen)
	for i, s := range slots {
		off := i * TileIndexRecordLen
		w := byteio.NewValueWriter()
		w.WriteU64(s.Offset)
		w.WriteU32(s.Length)
		copy(buf[off:off+TileIndexRecordLen], w.Bytes())
	}
	return codec.Compress(byteio.NewBlob(buf), codec.CompressionBrotli)
}

func parseTileIndex(compressed byteio.Blob, count int) ([]tileIndexSlot, error) {
	raw, err := codec.Decompress(compressed, codec.CompressionBrotli)
	if err != nil {
		return nil, xerrors.Wrap(err, "decompressing tile index")
	}
	data := raw.AsSlice()
	want := count * TileIndexRecordLen
	if len(data) != want {
		return nil, xerrors.Errorf("tile index length %d, want %d for %d slots", len(data), want, count)
	}
	out := make([]tileIndexSlot, count)
	for i := 0; i < count; i++ {
		r := byteio.NewValueReader(data[i*TileIndexRecordLen : (i+1)*TileIndexRecordLen])
		offset, err := r.ReadU64()
		if err != nil {
			return nil, err
		}
		length, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		out[i] = tileIndexSlot{Offset: offset, Length: length}
	}
	return out, nil
}
