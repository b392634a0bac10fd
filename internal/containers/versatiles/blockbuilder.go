package versatiles

import (
	"bytes"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// dedupMaxLen is the payload size up to which BlockBuilder looks for an
// existing identical payload instead of writing a fresh copy.
const dedupMaxLen = 999

type dedupEntry struct {
	payload []byte
	rng     byteio.ByteRange
}

// BlockBuilder accumulates one VersaTiles block (a <=256x256 tile region
// sharing block_row=y/256, block_col=x/256), writing each tile payload to
// the shared writer as it arrives and deferring the tile index until
// Finalize, so the index can be sized to the block's actual content
// instead of the full 256x256 region it could hold.
type BlockBuilder struct {
	mu       *sync.Mutex
	out      io.Writer
	position *uint64

	haveCoord          bool
	level              uint8
	blockRow, blockCol uint32
	tilesStart         uint64

	bboxSet                bool
	rowMin, rowMax         uint8
	colMin, colMax         uint8
	positions              map[coord.TileCoord]byteio.ByteRange
	dedup                  map[uint64][]dedupEntry
	tileCount, bytesWritten uint64
}

func newBlockBuilder(mu *sync.Mutex, out io.Writer, position *uint64) *BlockBuilder {
	return &BlockBuilder{
		mu:        mu,
		out:       out,
		position:  position,
		positions: make(map[coord.TileCoord]byteio.ByteRange),
		dedup:     make(map[uint64][]dedupEntry),
	}
}

// AddTile writes payload (already compressed per the container's header
// compression) as coord's tile. The first tile fixes the block's
// (block_row, block_col); a later tile whose block coordinates don't match
// is a logic error -- the caller is expected to partition its tile stream
// into block-aligned request bboxes before driving a BlockBuilder.
func (b *BlockBuilder) AddTile(c coord.TileCoord, payload []byte) error {
	blockRow, blockCol := c.Y/BlockSize, c.X/BlockSize
	if !b.haveCoord {
		b.level, b.blockRow, b.blockCol = c.Level, blockRow, blockCol
		b.haveCoord = true
		b.mu.Lock()
		b.tilesStart = *b.position
		b.mu.Unlock()
	} else if c.Level != b.level || blockRow != b.blockRow || blockCol != b.blockCol {
		return xerrors.Errorf("logic error: tile %s does not belong to block (level=%d,row=%d,col=%d)", c, b.level, b.blockRow, b.blockCol)
	}

	row, col := uint8(c.Y%BlockSize), uint8(c.X%BlockSize)
	if !b.bboxSet {
		b.rowMin, b.rowMax, b.colMin, b.colMax = row, row, col, col
		b.bboxSet = true
	} else {
		if row < b.rowMin {
			b.rowMin = row
		}
		if row > b.rowMax {
			b.rowMax = row
		}
		if col < b.colMin {
			b.colMin = col
		}
		if col > b.colMax {
			b.colMax = col
		}
	}

	rng, err := b.writeDeduped(payload)
	if err != nil {
		return err
	}
	b.positions[c] = rng
	b.tileCount++
	return nil
}

func (b *BlockBuilder) writeDeduped(payload []byte) (byteio.ByteRange, error) {
	if len(payload) > dedupMaxLen {
		return b.appendBytes(payload)
	}
	h := xxhash.Sum64(payload)
	for _, e := range b.dedup[h] {
		if bytes.Equal(e.payload, payload) {
			return e.rng, nil
		}
	}
	rng, err := b.appendBytes(payload)
	if err != nil {
		return byteio.ByteRange{}, err
	}
	stored := make([]byte, len(payload))
	copy(stored, payload)
	b.dedup[h] = append(b.dedup[h], dedupEntry{payload: stored, rng: rng})
	return rng, nil
}

func (b *BlockBuilder) appendBytes(payload []byte) (byteio.ByteRange, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	offset := *b.position - b.tilesStart
	n, err := b.out.Write(payload)
	if err != nil {
		return byteio.ByteRange{}, xerrors.Wrap(err, "writing tile payload")
	}
	*b.position += uint64(n)
	b.bytesWritten += uint64(n)
	return byteio.ByteRange{Offset: offset, Length: uint64(n)}, nil
}

// Finalize writes the block's tile index (sized to its actual bbox) and
// returns the BlockRecord to add to the file-level block index. A block
// that received no tiles returns (nil, nil): it is not stored at all.
func (b *BlockBuilder) Finalize() (*BlockRecord, error) {
	if !b.haveCoord {
		return nil, nil
	}
	rec := BlockRecord{
		Level: b.level, BlockRow: b.blockRow, BlockCol: b.blockCol,
		RowMin: b.rowMin, RowMax: b.rowMax, ColMin: b.colMin, ColMax: b.colMax,
	}
	slots := make([]tileIndexSlot, rec.tileCount())
	for c, rng := range b.positions {
		row, col := uint8(c.Y%BlockSize), uint8(c.X%BlockSize)
		slots[rec.slotIndex(row, col)] = tileIndexSlot{Offset: rng.Offset, Length: uint32(rng.Length)}
	}
	indexBlob, err := marshalTileIndex(slots)
	if err != nil {
		return nil, xerrors.Wrap(err, "building block tile index")
	}

	b.mu.Lock()
	indexOffset := *b.position
	n, err := b.out.Write(indexBlob.AsSlice())
	if err != nil {
		b.mu.Unlock()
		return nil, xerrors.Wrap(err, "writing block tile index")
	}
	*b.position += uint64(n)
	b.mu.Unlock()

	rec.TilesRange = byteio.ByteRange{Offset: b.tilesStart, Length: indexOffset - b.tilesStart}
	rec.IndexRange = byteio.ByteRange{Offset: indexOffset, Length: uint64(n)}
	return &rec, nil
}
