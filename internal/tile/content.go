// Package tile implements the dual-representation Tile entity: a value that
// can hold its payload either as an encoded Blob or as decoded content
// (a raster image or a parsed vector layer set), materialising one from the
// other on demand.
package tile

import (
	"image"

	"github.com/paulmach/orb/encoding/mvt"

	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/codec"
)

// Content is the decoded payload of a tile: either a raster image or a set
// of vector layers. Exactly one of Raster/Vector is non-nil.
type Content struct {
	Raster image.Image
	Vector mvt.Layers
}

func RasterContent(img image.Image) Content {
	return Content{Raster: img}
}

func VectorContent(layers mvt.Layers) Content {
	return Content{Vector: layers}
}

// IsVector reports whether the content holds vector layers.
func (c Content) IsVector() bool {
	return c.Vector != nil
}

// IsRaster reports whether the content holds a raster image.
func (c Content) IsRaster() bool {
	return c.Raster != nil
}

func (c Content) encode(f codec.TileFormat) ([]byte, error) {
	if f.IsVector() {
		return encodeVector(c.Vector)
	}
	ic, err := codec.ImageCodecFor(f)
	if err != nil {
		return nil, err
	}
	blob, err := ic.Encode(c.Raster)
	if err != nil {
		return nil, err
	}
	return blob.AsSlice(), nil
}

// encodeVector marshals layers to raw (uncompressed) MVT protobuf bytes.
// Compression is applied separately by the Tile's own compression dimension,
// since content is always stored raw.
func encodeVector(layers mvt.Layers) ([]byte, error) {
	return mvt.Marshal(layers)
}

func decodeContent(data []byte, f codec.TileFormat) (Content, error) {
	if f.IsVector() {
		layers, err := mvt.Unmarshal(data)
		if err != nil {
			return Content{}, err
		}
		return VectorContent(layers), nil
	}
	ic, err := codec.ImageCodecFor(f)
	if err != nil {
		return Content{}, err
	}
	img, err := ic.Decode(byteio.NewBlob(data))
	if err != nil {
		return Content{}, err
	}
	return RasterContent(img), nil
}
