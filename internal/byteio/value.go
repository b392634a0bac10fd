package byteio

import (
	"bytes"
	"encoding/binary"

	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// ValueWriter accumulates big-endian scalar values into a growing buffer,
// mirroring the original ValueWriterBlob helper used to build fixed-layout
// binary headers and records.
type ValueWriter struct {
	buf bytes.Buffer
}

// NewValueWriter returns an empty big-endian value writer.
func NewValueWriter() *ValueWriter {
	return &ValueWriter{}
}

func (w *ValueWriter) WriteSlice(b []byte) { w.buf.Write(b) }
func (w *ValueWriter) WriteU8(v uint8)     { w.buf.WriteByte(v) }
func (w *ValueWriter) WriteU32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}
func (w *ValueWriter) WriteI32(v int32) { w.WriteU32(uint32(v)) }
func (w *ValueWriter) WriteU64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}
func (w *ValueWriter) WriteRange(r ByteRange) {
	var b [ByteRangeLen]byte
	r.WriteTo(b[:])
	w.buf.Write(b[:])
}

// Position returns the number of bytes written so far.
func (w *ValueWriter) Position() int { return w.buf.Len() }

// Bytes returns the accumulated buffer.
func (w *ValueWriter) Bytes() []byte { return w.buf.Bytes() }

// ValueReader reads big-endian scalar values from a fixed byte slice.
type ValueReader struct {
	data []byte
	pos  int
}

// NewValueReader wraps data for sequential big-endian reads.
func NewValueReader(data []byte) *ValueReader {
	return &ValueReader{data: data}
}

func (r *ValueReader) need(n int) error {
	if r.pos+n > len(r.data) {
		return xerrors.Errorf("short read: need %d bytes at offset %d, have %d total", n, r.pos, len(r.data))
	}
	return nil
}

func (r *ValueReader) ReadString(n int) (string, error) {
	if err := r.need(n); err != nil {
		return "", err
	}
	s := string(r.data[r.pos : r.pos+n])
	r.pos += n
	return s, nil
}

func (r *ValueReader) ReadU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *ValueReader) ReadU32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *ValueReader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *ValueReader) ReadU64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *ValueReader) ReadRange() (ByteRange, error) {
	if err := r.need(ByteRangeLen); err != nil {
		return ByteRange{}, err
	}
	rng := ReadByteRange(r.data[r.pos : r.pos+ByteRangeLen])
	r.pos += ByteRangeLen
	return rng, nil
}

// Position returns the current read offset.
func (r *ValueReader) Position() int { return r.pos }
