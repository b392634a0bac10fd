package pmtilesreader

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versatiles-org/versatiles-go/internal/coord"
)

// memoryBucket is a minimal storage.Bucket backed by an in-memory byte
// slice, used to assemble a PMTiles archive entirely in the test.
type memoryBucket struct {
	data []byte
}

func (m *memoryBucket) NewRangeReader(_ context.Context, _ string, offset, length int64) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data[offset : offset+length])), nil
}

func (m *memoryBucket) NewRangeReaderEtag(ctx context.Context, key string, offset, length int64, _ string) (io.ReadCloser, string, error) {
	r, err := m.NewRangeReader(ctx, key, offset, length)
	return r, "", err
}

func (m *memoryBucket) Close() error { return nil }

// serializeEntriesUncompressed builds the varint delta-encoded directory
// layout by hand for the compressionNone case, which is all these tests
// need.
func serializeEntriesUncompressed(entries []entry) []byte {
	var b bytes.Buffer
	tmp := make([]byte, binary.MaxVarintLen64)

	n := binary.PutUvarint(tmp, uint64(len(entries)))
	b.Write(tmp[:n])

	lastID := uint64(0)
	for _, e := range entries {
		n = binary.PutUvarint(tmp, e.TileID-lastID)
		b.Write(tmp[:n])
		lastID = e.TileID
	}
	for _, e := range entries {
		n = binary.PutUvarint(tmp, uint64(e.RunLength))
		b.Write(tmp[:n])
	}
	for _, e := range entries {
		n = binary.PutUvarint(tmp, uint64(e.Length))
		b.Write(tmp[:n])
	}
	for i, e := range entries {
		var n int
		if i > 0 && e.Offset == entries[i-1].Offset+uint64(entries[i-1].Length) {
			n = binary.PutUvarint(tmp, 0)
		} else {
			n = binary.PutUvarint(tmp, e.Offset+1)
		}
		b.Write(tmp[:n])
	}
	return b.Bytes()
}

func buildArchive(t *testing.T, tileID uint64, tileBody []byte) []byte {
	t.Helper()
	entries := []entry{{TileID: tileID, Offset: 0, Length: uint32(len(tileBody)), RunLength: 1}}
	root := serializeEntriesUncompressed(entries)

	header := make([]byte, headerLenBytes)
	copy(header[0:7], "PMTiles")
	header[7] = 3
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(header)))
	binary.LittleEndian.PutUint64(header[16:24], uint64(len(root)))
	// no metadata
	binary.LittleEndian.PutUint64(header[56:64], uint64(len(header)+len(root))) // TileDataOffset
	header[97] = byte(compressionNone)
	header[98] = byte(compressionNone)
	header[99] = 2 // png
	header[100] = 0
	header[101] = 1

	out := append([]byte{}, header...)
	out = append(out, root...)
	out = append(out, tileBody...)
	return out
}

func TestPMTilesReaderFetchesTile(t *testing.T) {
	c, err := coord.NewCoord(1, 1, 0)
	require.NoError(t, err)
	tileID := coord.HilbertID(c)

	body := []byte("fake-png-bytes")
	archive := buildArchive(t, tileID, body)
	bucket := &memoryBucket{data: archive}

	r, err := Open(context.Background(), bucket, "archive.pmtiles")
	require.NoError(t, err)
	defer r.Close()

	tile, err := r.GetTile(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, tile)

	blob, err := tile.AsBlob(r.meta.TileCompression)
	require.NoError(t, err)
	assert.Equal(t, body, blob.AsSlice())
}

func TestPMTilesReaderMissingTileReturnsNil(t *testing.T) {
	present, err := coord.NewCoord(1, 1, 0)
	require.NoError(t, err)
	tileID := coord.HilbertID(present)

	archive := buildArchive(t, tileID, []byte("x"))
	bucket := &memoryBucket{data: archive}

	r, err := Open(context.Background(), bucket, "archive.pmtiles")
	require.NoError(t, err)
	defer r.Close()

	missing, err := coord.NewCoord(1, 0, 0)
	require.NoError(t, err)

	tile, err := r.GetTile(context.Background(), missing)
	require.NoError(t, err)
	assert.Nil(t, tile)
}
