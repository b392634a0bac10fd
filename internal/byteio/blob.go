// Package byteio provides the immutable Blob container and ByteRange
// descriptor used throughout the container formats, plus big/little-endian
// value readers and writers over in-memory buffers.
package byteio

// Blob is an immutable owned byte sequence.
type Blob struct {
	data []byte
}

// NewBlob wraps b. The caller must not mutate b afterwards.
func NewBlob(b []byte) Blob {
	return Blob{data: b}
}

// FromString builds a Blob from a string's bytes.
func FromString(s string) Blob {
	return Blob{data: []byte(s)}
}

// AsSlice returns the underlying bytes. Callers must not mutate them.
func (b Blob) AsSlice() []byte {
	return b.data
}

// Len returns the number of bytes.
func (b Blob) Len() int {
	return len(b.data)
}

// IntoVec returns a copy of the bytes as a fresh slice.
func (b Blob) IntoVec() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Equal compares two blobs by content.
func (b Blob) Equal(o Blob) bool {
	if len(b.data) != len(o.data) {
		return false
	}
	for i := range b.data {
		if b.data[i] != o.data[i] {
			return false
		}
	}
	return true
}
