package versatiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/codec"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		TileFormat:      codec.FormatPBF,
		TileCompression: codec.CompressionGzip,
		ZoomMin:         3,
		ZoomMax:         14,
		BBox:            [4]int32{-1800000000, -900000000, 1800000000, 900000000},
		MetaRange:       byteio.ByteRange{Offset: 66, Length: 100},
		BlocksRange:     byteio.ByteRange{Offset: 166, Length: 200},
	}
	buf, err := h.Marshal()
	require.NoError(t, err)
	require.Len(t, buf, HeaderLen)

	got, err := ParseHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderLen)
	copy(buf, "not-a-versatile")
	_, err := ParseHeader(buf)
	assert.Error(t, err)
}

func TestHeaderValidateRejectsOutOfRangeBBox(t *testing.T) {
	h := Header{TileFormat: codec.FormatPNG, BBox: [4]int32{-2000000000, 0, 0, 0}}
	assert.Error(t, h.Validate())
}

func TestHeaderValidateRejectsInvertedZoom(t *testing.T) {
	h := Header{TileFormat: codec.FormatPNG, ZoomMin: 5, ZoomMax: 2}
	assert.Error(t, h.Validate())
}

func TestFormatWireRoundTrip(t *testing.T) {
	formats := []codec.TileFormat{
		codec.FormatBIN, codec.FormatPNG, codec.FormatJPG, codec.FormatWEBP,
		codec.FormatAVIF, codec.FormatSVG, codec.FormatPBF, codec.FormatGEOJSON,
		codec.FormatTOPOJSON, codec.FormatJSON,
	}
	for _, f := range formats {
		b, err := FormatToWire(f)
		require.NoError(t, err)
		got, err := WireToFormat(b)
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
}

func TestBlockRecordRoundTrip(t *testing.T) {
	rec := BlockRecord{
		Level: 9, BlockRow: 1, BlockCol: 1,
		RowMin: 0, RowMax: 0, ColMin: 0, ColMax: 0,
		TilesRange: byteio.ByteRange{Offset: 0, Length: 5},
		IndexRange: byteio.ByteRange{Offset: 5, Length: 12},
	}
	buf := rec.marshal()
	require.Len(t, buf, BlockRecordLen)
	got, err := parseBlockRecord(buf)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Equal(t, 1, rec.tileCount())
	assert.Equal(t, 0, rec.slotIndex(0, 0))
}

func TestBlockIndexRoundTrip(t *testing.T) {
	records := []BlockRecord{
		{Level: 1, BlockRow: 0, BlockCol: 0, RowMin: 0, RowMax: 1, ColMin: 0, ColMax: 1,
			TilesRange: byteio.ByteRange{Offset: 0, Length: 10}, IndexRange: byteio.ByteRange{Offset: 10, Length: 48}},
	}
	blob, err := marshalBlockIndex(records)
	require.NoError(t, err)
	got, err := parseBlockIndex(blob)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestTileIndexRoundTripAbsentSlot(t *testing.T) {
	slots := []tileIndexSlot{{Offset: 0, Length: 5}, {Length: 0}, {Offset: 5, Length: 7}}
	blob, err := marshalTileIndex(slots)
	require.NoError(t, err)
	got, err := parseTileIndex(blob, len(slots))
	require.NoError(t, err)
	assert.Equal(t, slots, got)
	assert.True(t, got[1].isAbsent())
	assert.False(t, got[0].isAbsent())
}
