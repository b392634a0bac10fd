package byteio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobRoundTrip(t *testing.T) {
	b := FromString("hello")
	assert.Equal(t, 5, b.Len())
	assert.Equal(t, []byte("hello"), b.AsSlice())
	assert.True(t, b.Equal(NewBlob([]byte("hello"))))
	assert.False(t, b.Equal(FromString("hellx")))
}

func TestBlobIntoVecIsCopy(t *testing.T) {
	orig := []byte("abc")
	b := NewBlob(orig)
	cp := b.IntoVec()
	cp[0] = 'z'
	assert.Equal(t, byte('a'), b.AsSlice()[0])
}

func TestByteRangeEndAndEmpty(t *testing.T) {
	r := ByteRange{Offset: 10, Length: 5}
	assert.Equal(t, uint64(15), r.End())
	assert.False(t, r.IsEmpty())
	assert.True(t, Empty().IsEmpty())
}

func TestByteRangeShift(t *testing.T) {
	r := ByteRange{Offset: 100, Length: 20}
	r.ShiftBackward(80)
	assert.Equal(t, uint64(20), r.Offset)
	r.ShiftForward(80)
	assert.Equal(t, uint64(100), r.Offset)
}

func TestByteRangeWireRoundTrip(t *testing.T) {
	r := ByteRange{Offset: 123456789, Length: 987654}
	buf := make([]byte, ByteRangeLen)
	r.WriteTo(buf)
	back := ReadByteRange(buf)
	assert.Equal(t, r, back)
}

func TestValueWriterReaderRoundTrip(t *testing.T) {
	w := NewValueWriter()
	w.WriteSlice([]byte("versatiles_v02"))
	w.WriteU8(42)
	w.WriteU32(0xdeadbeef)
	w.WriteI32(-7)
	w.WriteU64(1 << 40)
	w.WriteRange(ByteRange{Offset: 1, Length: 2})

	r := NewValueReader(w.Bytes())
	s, err := r.ReadString(len("versatiles_v02"))
	require.NoError(t, err)
	assert.Equal(t, "versatiles_v02", s)

	u8, err := r.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, uint8(42), u8)

	u32, err := r.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), u32)

	i32, err := r.ReadI32()
	require.NoError(t, err)
	assert.Equal(t, int32(-7), i32)

	u64, err := r.ReadU64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), u64)

	rng, err := r.ReadRange()
	require.NoError(t, err)
	assert.Equal(t, ByteRange{Offset: 1, Length: 2}, rng)
}

func TestValueReaderShortRead(t *testing.T) {
	r := NewValueReader([]byte{1, 2, 3})
	_, err := r.ReadU32()
	require.Error(t, err)
}
