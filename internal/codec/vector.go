package codec

import (
	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// VectorCodec is a blob-to-blob oracle for vector tile payloads. Unlike
// ImageCodec it never decodes into an in-memory geometry model: the protobuf
// wire format of MVT tiles is opaque here, and operators that must inspect
// feature properties (vector_update_properties) decode it themselves.
type VectorCodec interface {
	Format() TileFormat
	// Validate does a cheap structural sanity check of blob without fully
	// parsing it, returning an error if it cannot possibly hold the format.
	Validate(blob byteio.Blob) error
}

// VectorCodecFor returns the codec responsible for the given vector format.
func VectorCodecFor(f TileFormat) (VectorCodec, error) {
	switch f {
	case FormatPBF:
		return opaqueVectorCodec{f}, nil
	case FormatGEOJSON, FormatTOPOJSON, FormatJSON:
		return opaqueVectorCodec{f}, nil
	default:
		return nil, errNotVector(f)
	}
}

type opaqueVectorCodec struct{ format TileFormat }

func (c opaqueVectorCodec) Format() TileFormat { return c.format }

func (c opaqueVectorCodec) Validate(blob byteio.Blob) error {
	if blob.Len() == 0 {
		return xerrors.Errorf("empty %s blob", c.format)
	}
	return nil
}

func errNotVector(f TileFormat) error {
	return xerrors.Errorf("%s is not a vector format", f)
}
