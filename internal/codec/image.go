package codec

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/webp"

	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// ImageCodec encodes and decodes a single raster TileFormat.
type ImageCodec interface {
	Format() TileFormat
	Encode(img image.Image) (byteio.Blob, error)
	Decode(blob byteio.Blob) (image.Image, error)
}

// ImageCodecFor returns the codec responsible for the given raster format.
func ImageCodecFor(f TileFormat) (ImageCodec, error) {
	switch f {
	case FormatPNG:
		return pngCodec{}, nil
	case FormatJPG:
		return jpegCodec{}, nil
	case FormatWEBP:
		return webpCodec{}, nil
	default:
		return nil, xerrors.Errorf("%s is not a raster format", f)
	}
}

type pngCodec struct{}

func (pngCodec) Format() TileFormat { return FormatPNG }

func (pngCodec) Encode(img image.Image) (byteio.Blob, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return byteio.Blob{}, xerrors.Wrap(err, "encoding png")
	}
	return byteio.NewBlob(buf.Bytes()), nil
}

func (pngCodec) Decode(blob byteio.Blob) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(blob.AsSlice()))
	if err != nil {
		return nil, xerrors.Wrap(err, "decoding png")
	}
	return img, nil
}

type jpegCodec struct{}

func (jpegCodec) Format() TileFormat { return FormatJPG }

func (jpegCodec) Encode(img image.Image) (byteio.Blob, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return byteio.Blob{}, xerrors.Wrap(err, "encoding jpeg")
	}
	return byteio.NewBlob(buf.Bytes()), nil
}

func (jpegCodec) Decode(blob byteio.Blob) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(blob.AsSlice()))
	if err != nil {
		return nil, xerrors.Wrap(err, "decoding jpeg")
	}
	return img, nil
}

type webpCodec struct{}

func (webpCodec) Format() TileFormat { return FormatWEBP }

func (webpCodec) Encode(img image.Image) (byteio.Blob, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, webp.Options{Quality: 85}); err != nil {
		return byteio.Blob{}, xerrors.Wrap(err, "encoding webp")
	}
	return byteio.NewBlob(buf.Bytes()), nil
}

func (webpCodec) Decode(blob byteio.Blob) (image.Image, error) {
	img, err := webp.Decode(bytes.NewReader(blob.AsSlice()))
	if err != nil {
		return nil, xerrors.Wrap(err, "decoding webp")
	}
	return img, nil
}
