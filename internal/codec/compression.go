package codec

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// TileCompression is the compression algorithm applied to a blob's bytes,
// independent of the tile format they encode.
type TileCompression uint8

const (
	CompressionNone TileCompression = iota
	CompressionGzip
	CompressionBrotli
)

func (c TileCompression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionBrotli:
		return "br"
	default:
		return "none"
	}
}

// CompressionSet is a bitset of allowed TileCompression values, the Go
// counterpart of the enumset used to describe which compressions a
// destination accepts.
type CompressionSet uint8

func SetOf(cs ...TileCompression) CompressionSet {
	var s CompressionSet
	for _, c := range cs {
		s |= 1 << c
	}
	return s
}

func (s CompressionSet) Contains(c TileCompression) bool {
	return s&(1<<c) != 0
}

func (s CompressionSet) IsEmpty() bool {
	return s == 0
}

// TargetCompression describes the compressions a sink accepts and whether
// it prefers the smallest one (best_compression) or merely needs whichever
// of the accepted compressions is cheapest to produce.
type TargetCompression struct {
	Set             CompressionSet
	BestCompression bool
}

func TargetFromCompression(c TileCompression) TargetCompression {
	return TargetCompression{Set: SetOf(c), BestCompression: true}
}

func TargetFromNone() TargetCompression {
	return TargetFromCompression(CompressionNone)
}

// Compress encodes blob using the given compression.
func Compress(blob byteio.Blob, c TileCompression) (byteio.Blob, error) {
	switch c {
	case CompressionNone:
		return blob, nil
	case CompressionGzip:
		return compressGzip(blob)
	case CompressionBrotli:
		return compressBrotli(blob)
	default:
		return byteio.Blob{}, xerrors.Errorf("unknown compression %d", c)
	}
}

// Decompress decodes blob, previously encoded with the given compression.
func Decompress(blob byteio.Blob, c TileCompression) (byteio.Blob, error) {
	switch c {
	case CompressionNone:
		return blob, nil
	case CompressionGzip:
		return decompressGzip(blob)
	case CompressionBrotli:
		return decompressBrotli(blob)
	default:
		return byteio.Blob{}, xerrors.Errorf("unknown compression %d", c)
	}
}

func compressGzip(blob byteio.Blob) (byteio.Blob, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return byteio.Blob{}, xerrors.Wrap(err, "creating gzip writer")
	}
	if _, err := w.Write(blob.AsSlice()); err != nil {
		return byteio.Blob{}, xerrors.Wrap(err, "gzip compressing")
	}
	if err := w.Close(); err != nil {
		return byteio.Blob{}, xerrors.Wrap(err, "closing gzip writer")
	}
	return byteio.NewBlob(buf.Bytes()), nil
}

func decompressGzip(blob byteio.Blob) (byteio.Blob, error) {
	r, err := gzip.NewReader(bytes.NewReader(blob.AsSlice()))
	if err != nil {
		return byteio.Blob{}, xerrors.Wrap(err, "creating gzip reader")
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return byteio.Blob{}, xerrors.Wrap(err, "gzip decompressing")
	}
	return byteio.NewBlob(data), nil
}

func compressBrotli(blob byteio.Blob) (byteio.Blob, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, 10)
	if _, err := w.Write(blob.AsSlice()); err != nil {
		return byteio.Blob{}, xerrors.Wrap(err, "brotli compressing")
	}
	if err := w.Close(); err != nil {
		return byteio.Blob{}, xerrors.Wrap(err, "closing brotli writer")
	}
	return byteio.NewBlob(buf.Bytes()), nil
}

func decompressBrotli(blob byteio.Blob) (byteio.Blob, error) {
	r := brotli.NewReader(bytes.NewReader(blob.AsSlice()))
	data, err := io.ReadAll(r)
	if err != nil {
		return byteio.Blob{}, xerrors.Wrap(err, "brotli decompressing")
	}
	return byteio.NewBlob(data), nil
}

// OptimizeCompression transcodes blob (currently encoded with input) to the
// cheapest or smallest compression accepted by target, reusing the input
// bytes untouched whenever they already satisfy the target.
func OptimizeCompression(blob byteio.Blob, input TileCompression, target TargetCompression) (byteio.Blob, TileCompression, error) {
	if target.Set.IsEmpty() {
		return byteio.Blob{}, 0, xerrors.New("no compression allowed")
	}

	if !target.BestCompression && target.Set.Contains(input) {
		return blob, input, nil
	}

	switch input {
	case CompressionNone:
		if target.Set.Contains(CompressionBrotli) {
			out, err := compressBrotli(blob)
			return out, CompressionBrotli, err
		}
		if target.Set.Contains(CompressionGzip) {
			out, err := compressGzip(blob)
			return out, CompressionGzip, err
		}
		return blob, CompressionNone, nil

	case CompressionGzip:
		if target.Set.Contains(CompressionBrotli) {
			raw, err := decompressGzip(blob)
			if err != nil {
				return byteio.Blob{}, 0, err
			}
			out, err := compressBrotli(raw)
			return out, CompressionBrotli, err
		}
		if target.Set.Contains(CompressionGzip) {
			return blob, CompressionGzip, nil
		}
		out, err := decompressGzip(blob)
		return out, CompressionNone, err

	case CompressionBrotli:
		if target.Set.Contains(CompressionBrotli) {
			return blob, CompressionBrotli, nil
		}
		raw, err := decompressBrotli(blob)
		if err != nil {
			return byteio.Blob{}, 0, err
		}
		if target.Set.Contains(CompressionGzip) {
			out, err := compressGzip(raw)
			return out, CompressionGzip, err
		}
		return raw, CompressionNone, nil

	default:
		return byteio.Blob{}, 0, xerrors.Errorf("unknown input compression %d", input)
	}
}
