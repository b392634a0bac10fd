package tile

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versatiles-org/versatiles-go/internal/codec"
)

func solidImage(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFromImageAsBlobRoundTrip(t *testing.T) {
	tl, err := FromImage(solidImage(color.White), codec.FormatPNG)
	require.NoError(t, err)
	assert.True(t, tl.HasContent())
	assert.False(t, tl.HasBlob())

	blob, err := tl.AsBlob(codec.CompressionNone)
	require.NoError(t, err)
	assert.True(t, tl.HasBlob())
	assert.Greater(t, blob.Len(), 0)
}

func TestFromVectorRequiresVectorFormat(t *testing.T) {
	_, err := FromVector(nil, codec.FormatPNG)
	require.Error(t, err)
}

func TestFromImageRequiresRasterFormat(t *testing.T) {
	_, err := FromImage(solidImage(color.White), codec.FormatPBF)
	require.Error(t, err)
}

func TestAsContentDecodesFromBlob(t *testing.T) {
	tl, err := FromImage(solidImage(color.Black), codec.FormatPNG)
	require.NoError(t, err)
	blob, err := tl.AsBlob(codec.CompressionNone)
	require.NoError(t, err)

	fresh := FromBlob(blob, codec.CompressionNone, codec.FormatPNG)
	content, err := fresh.AsContent()
	require.NoError(t, err)
	assert.True(t, content.IsRaster())
}

func TestAsContentMutDropsBlob(t *testing.T) {
	tl, err := FromImage(solidImage(color.White), codec.FormatPNG)
	require.NoError(t, err)
	_, err = tl.AsBlob(codec.CompressionNone)
	require.NoError(t, err)
	require.True(t, tl.HasBlob())

	_, err = tl.AsContentMut()
	require.NoError(t, err)
	assert.False(t, tl.HasBlob())
	assert.True(t, tl.HasContent())
}

func TestChangeCompressionRecompressesBlob(t *testing.T) {
	tl, err := FromImage(solidImage(color.White), codec.FormatPNG)
	require.NoError(t, err)
	_, err = tl.AsBlob(codec.CompressionNone)
	require.NoError(t, err)

	require.NoError(t, tl.ChangeCompression(codec.CompressionGzip))
	assert.Equal(t, codec.CompressionGzip, tl.Compression())

	blob, err := tl.AsBlob(codec.CompressionGzip)
	require.NoError(t, err)
	assert.Greater(t, blob.Len(), 0)
}

func TestChangeFormatDropsBlobKeepsContent(t *testing.T) {
	tl, err := FromImage(solidImage(color.White), codec.FormatPNG)
	require.NoError(t, err)
	_, err = tl.AsBlob(codec.CompressionNone)
	require.NoError(t, err)

	require.NoError(t, tl.ChangeFormat(codec.FormatJPG, 80, 0))
	assert.Equal(t, codec.FormatJPG, tl.Format())
	assert.False(t, tl.HasBlob())
	assert.True(t, tl.HasContent())

	blob, err := tl.AsBlob(codec.CompressionNone)
	require.NoError(t, err)
	assert.Greater(t, blob.Len(), 0)
}

func TestChangeFormatNoopWhenSame(t *testing.T) {
	tl, err := FromImage(solidImage(color.White), codec.FormatPNG)
	require.NoError(t, err)
	_, err = tl.AsBlob(codec.CompressionNone)
	require.NoError(t, err)

	require.NoError(t, tl.ChangeFormat(codec.FormatPNG, 0, 0))
	assert.True(t, tl.HasBlob())
}

func TestIsOpaqueJPEGFastPath(t *testing.T) {
	tl, err := FromImage(solidImage(color.White), codec.FormatJPG)
	require.NoError(t, err)
	opaque, err := tl.IsOpaque()
	require.NoError(t, err)
	assert.True(t, opaque)
}

func TestIsEmptyDetectsTransparentRaster(t *testing.T) {
	transparent := color.RGBA{0, 0, 0, 0}
	tl, err := FromImage(solidImage(transparent), codec.FormatPNG)
	require.NoError(t, err)
	empty, err := tl.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestIsOpaqueDetectsOpaqueRaster(t *testing.T) {
	tl, err := FromImage(solidImage(color.White), codec.FormatPNG)
	require.NoError(t, err)
	opaque, err := tl.IsOpaque()
	require.NoError(t, err)
	assert.True(t, opaque)
}
