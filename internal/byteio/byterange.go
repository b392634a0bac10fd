package byteio

import "encoding/binary"

// ByteRange is a half-open (offset, length) region of a file or buffer.
type ByteRange struct {
	Offset uint64
	Length uint64
}

// Empty returns the zero-length range at offset 0.
func Empty() ByteRange {
	return ByteRange{}
}

// IsEmpty reports whether the range has zero length.
func (r ByteRange) IsEmpty() bool {
	return r.Length == 0
}

// End returns Offset+Length.
func (r ByteRange) End() uint64 {
	return r.Offset + r.Length
}

// ShiftBackward rebases the range so it is relative to origin instead of 0.
func (r *ByteRange) ShiftBackward(origin uint64) {
	r.Offset -= origin
}

// ShiftForward rebases the range to be absolute given an origin.
func (r *ByteRange) ShiftForward(origin uint64) {
	r.Offset += origin
}

// WriteTo serialises the range as 16 bytes big-endian (offset, length).
func (r ByteRange) WriteTo(buf []byte) {
	binary.BigEndian.PutUint64(buf[0:8], r.Offset)
	binary.BigEndian.PutUint64(buf[8:16], r.Length)
}

// ReadByteRange deserialises 16 big-endian bytes into a ByteRange.
func ReadByteRange(buf []byte) ByteRange {
	return ByteRange{
		Offset: binary.BigEndian.Uint64(buf[0:8]),
		Length: binary.BigEndian.Uint64(buf[8:16]),
	}
}

// ByteRangeLen is the serialised size of a ByteRange.
const ByteRangeLen = 16
