package pmtilesreader

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"

	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// headerLenBytes is the fixed size of a PMTiles v3 binary header.
const headerLenBytes = 127

// internalCompression is the compression applied to directory entries,
// distinct from codec.TileCompression which applies to tile bodies.
type internalCompression uint8

const (
	compressionUnknown internalCompression = 0
	compressionNone     internalCompression = 1
	compressionGzip     internalCompression = 2
	compressionBrotli   internalCompression = 3
	compressionZstd     internalCompression = 4
)

func tileCompressionFromWire(c internalCompression) codec.TileCompression {
	switch c {
	case compressionGzip:
		return codec.CompressionGzip
	case compressionBrotli:
		return codec.CompressionBrotli
	default:
		return codec.CompressionNone
	}
}

func tileFormatFromWire(t uint8) codec.TileFormat {
	switch t {
	case 1:
		return codec.FormatPBF
	case 2:
		return codec.FormatPNG
	case 3:
		return codec.FormatJPG
	case 4:
		return codec.FormatWEBP
	case 5:
		return codec.FormatAVIF
	default:
		return codec.UnknownFormat
	}
}

// header is the fields of a PMTiles v3 header this reader needs.
type header struct {
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirectoryOffset uint64
	LeafDirectoryLength uint64
	TileDataOffset      uint64
	AddressedTilesCount uint64
	InternalCompression internalCompression
	TileCompression     codec.TileCompression
	TileFormat          codec.TileFormat
	MinZoom             uint8
	MaxZoom             uint8
	MinLonE7            int32
	MinLatE7            int32
	MaxLonE7            int32
	MaxLatE7            int32
}

func deserializeHeader(d []byte) (header, error) {
	var h header
	if len(d) < headerLenBytes {
		return h, xerrors.Errorf("pmtiles header too short: %d bytes", len(d))
	}
	if string(d[0:7]) != "PMTiles" {
		return h, xerrors.New("pmtiles magic number not found")
	}
	if d[7] > 3 {
		return h, xerrors.Errorf("unsupported pmtiles spec version %d", d[7])
	}
	h.RootOffset = binary.LittleEndian.Uint64(d[8:16])
	h.RootLength = binary.LittleEndian.Uint64(d[16:24])
	h.MetadataOffset = binary.LittleEndian.Uint64(d[24:32])
	h.MetadataLength = binary.LittleEndian.Uint64(d[32:40])
	h.LeafDirectoryOffset = binary.LittleEndian.Uint64(d[40:48])
	h.LeafDirectoryLength = binary.LittleEndian.Uint64(d[48:56])
	h.TileDataOffset = binary.LittleEndian.Uint64(d[56:64])
	h.AddressedTilesCount = binary.LittleEndian.Uint64(d[72:80])
	h.InternalCompression = internalCompression(d[97])
	h.TileCompression = tileCompressionFromWire(internalCompression(d[98]))
	h.TileFormat = tileFormatFromWire(d[99])
	h.MinZoom = d[100]
	h.MaxZoom = d[101]
	h.MinLonE7 = int32(binary.LittleEndian.Uint32(d[102:106]))
	h.MinLatE7 = int32(binary.LittleEndian.Uint32(d[106:110]))
	h.MaxLonE7 = int32(binary.LittleEndian.Uint32(d[110:114]))
	h.MaxLatE7 = int32(binary.LittleEndian.Uint32(d[114:118]))
	return h, nil
}

// entry is one row of a PMTiles directory: a run of consecutive Hilbert tile
// IDs sharing the same byte range (RunLength == 0 means it points at a leaf
// directory rather than a tile).
type entry struct {
	TileID    uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
}

func deserializeEntries(data []byte, compression internalCompression) ([]entry, error) {
	var reader io.Reader = bytes.NewReader(data)
	if compression == compressionGzip {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, xerrors.Wrap(err, "opening gzip directory")
		}
		defer gz.Close()
		reader = gz
	}
	br := bufio.NewReader(reader)

	numEntries, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, xerrors.Wrap(err, "reading entry count")
	}
	entries := make([]entry, 0, numEntries)

	lastID := uint64(0)
	for i := uint64(0); i < numEntries; i++ {
		delta, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, err
		}
		lastID += delta
		entries = append(entries, entry{TileID: lastID})
	}
	for i := range entries {
		runLength, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, err
		}
		entries[i].RunLength = uint32(runLength)
	}
	for i := range entries {
		length, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, err
		}
		entries[i].Length = uint32(length)
	}
	for i := range entries {
		v, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, err
		}
		if i > 0 && v == 0 {
			entries[i].Offset = entries[i-1].Offset + uint64(entries[i-1].Length)
		} else {
			entries[i].Offset = v - 1
		}
	}
	return entries, nil
}

// decompressInternal reverses the internal (directory/metadata) compression,
// distinct from the per-tile codec.TileCompression applied to tile bodies.
func decompressInternal(data []byte, compression internalCompression) ([]byte, error) {
	if compression != compressionGzip {
		return data, nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// findTile binary-searches entries for tileID, matching either an exact
// TileID or falling within a preceding run.
func findTile(entries []entry, tileID uint64) (entry, bool) {
	lo, hi := 0, len(entries)-1
	for lo <= hi {
		mid := (lo + hi) >> 1
		switch {
		case tileID > entries[mid].TileID:
			lo = mid + 1
		case tileID < entries[mid].TileID:
			hi = mid - 1
		default:
			return entries[mid], true
		}
	}
	if hi >= 0 {
		e := entries[hi]
		if e.RunLength == 0 || tileID-e.TileID < uint64(e.RunLength) {
			return e, true
		}
	}
	return entry{}, false
}
