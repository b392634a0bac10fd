package tile

import (
	"image"

	"github.com/paulmach/orb/encoding/mvt"

	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// Tile is a dual-representation entity: its payload lives as an encoded
// Blob, as decoded Content, or both. Exactly one of the two may be absent,
// never both. Any mutation of the decoded content drops the cached blob,
// since the two would otherwise silently diverge.
type Tile struct {
	blob        *byteio.Blob
	content     *Content
	format      codec.TileFormat
	compression codec.TileCompression

	// Quality and Speed are hints remembered for the next content->blob
	// encode; they have no effect until the blob is re-materialised.
	Quality int
	Speed   int

	opaque   *bool
	allEmpty *bool
}

// FromBlob builds a blob-only tile. No decoding happens until content is
// requested.
func FromBlob(b byteio.Blob, c codec.TileCompression, f codec.TileFormat) Tile {
	return Tile{blob: &b, format: f, compression: c}
}

// FromImage builds a content-only raster tile. The blob is absent until
// AsBlob forces an encode.
func FromImage(img image.Image, f codec.TileFormat) (Tile, error) {
	if !f.IsRaster() {
		return Tile{}, xerrors.Errorf("%s is not a raster format", f)
	}
	content := RasterContent(img)
	return Tile{content: &content, format: f, compression: codec.CompressionNone}, nil
}

// FromVector builds a content-only vector tile holding already-parsed MVT
// layers. f must be a vector format.
func FromVector(layers mvt.Layers, f codec.TileFormat) (Tile, error) {
	if !f.IsVector() {
		return Tile{}, xerrors.Errorf("%s is not a vector format", f)
	}
	content := VectorContent(layers)
	return Tile{content: &content, format: f, compression: codec.CompressionNone}, nil
}

// Format returns the tile's declared payload format.
func (t Tile) Format() codec.TileFormat { return t.format }

// Compression returns the compression of the stored blob, if any. A
// content-only tile reports CompressionNone unless ChangeCompression set
// another value; the content itself is always raw.
func (t Tile) Compression() codec.TileCompression { return t.compression }

// HasBlob reports whether the encoded form is currently materialised.
func (t Tile) HasBlob() bool { return t.blob != nil }

// HasContent reports whether the decoded form is currently materialised.
func (t Tile) HasContent() bool { return t.content != nil }

// AsBlob returns the tile's bytes compressed with c, encoding from content
// first if no blob is materialised, then recompressing if the stored blob
// uses a different compression.
func (t *Tile) AsBlob(c codec.TileCompression) (byteio.Blob, error) {
	if t.blob == nil {
		if t.content == nil {
			return byteio.Blob{}, xerrors.New("tile has neither blob nor content")
		}
		raw, err := t.content.encode(t.format)
		if err != nil {
			return byteio.Blob{}, xerrors.Wrap(err, "encoding tile content")
		}
		blob := byteio.NewBlob(raw)
		t.blob = &blob
		t.compression = codec.CompressionNone
	}
	if t.compression != c {
		out, err := codec.Decompress(*t.blob, t.compression)
		if err != nil {
			return byteio.Blob{}, xerrors.Wrap(err, "decompressing tile blob")
		}
		out, err = codec.Compress(out, c)
		if err != nil {
			return byteio.Blob{}, xerrors.Wrap(err, "recompressing tile blob")
		}
		t.blob = &out
		t.compression = c
	}
	return *t.blob, nil
}

// AsContent returns the decoded content, decoding from the blob first if
// content is not yet materialised. The blob is kept (read-only access).
func (t *Tile) AsContent() (Content, error) {
	if t.content == nil {
		if t.blob == nil {
			return Content{}, xerrors.New("tile has neither blob nor content")
		}
		raw, err := codec.Decompress(*t.blob, t.compression)
		if err != nil {
			return Content{}, xerrors.Wrap(err, "decompressing tile blob")
		}
		content, err := decodeContent(raw.AsSlice(), t.format)
		if err != nil {
			return Content{}, xerrors.Wrap(err, "decoding tile content")
		}
		t.content = &content
	}
	return *t.content, nil
}

// AsContentMut returns the decoded content for in-place mutation and drops
// the cached blob, since the caller is expected to change it.
func (t *Tile) AsContentMut() (*Content, error) {
	if _, err := t.AsContent(); err != nil {
		return nil, err
	}
	t.blob = nil
	t.opaque = nil
	t.allEmpty = nil
	return t.content, nil
}

// ChangeCompression recompresses the stored blob to c, or simply flips the
// compression flag when only content is present (nothing to recompress yet).
func (t *Tile) ChangeCompression(c codec.TileCompression) error {
	if t.blob == nil {
		t.compression = c
		return nil
	}
	_, err := t.AsBlob(c)
	return err
}

// ChangeFormat sets the tile's format, remembering quality/speed hints for
// the next encode. If the format actually changes, the cached blob is
// dropped so it is regenerated from content on demand; content is kept.
func (t *Tile) ChangeFormat(f codec.TileFormat, quality, speed int) error {
	t.Quality, t.Speed = quality, speed
	if f == t.format {
		return nil
	}
	if t.content == nil {
		if _, err := t.AsContent(); err != nil {
			return err
		}
	}
	t.format = f
	t.blob = nil
	t.compression = codec.CompressionNone
	t.opaque = nil
	t.allEmpty = nil
	return nil
}

// IsEmpty reports whether every pixel is fully transparent. Vector tiles
// are never considered empty by this check; they are reported in IsOpaque
// analogously as always non-opaque. Raster tiles of every format, JPEG
// included, are decoded for this check.
func (t *Tile) IsEmpty() (bool, error) {
	if t.allEmpty != nil {
		return *t.allEmpty, nil
	}
	if t.format.IsVector() {
		v := false
		t.allEmpty = &v
		return v, nil
	}
	content, err := t.AsContent()
	if err != nil {
		return false, err
	}
	empty := isFullyTransparent(content.Raster)
	t.allEmpty = &empty
	return empty, nil
}

// IsOpaque reports whether every pixel is fully opaque. JPEG has no alpha
// channel and is always opaque.
func (t *Tile) IsOpaque() (bool, error) {
	if t.opaque != nil {
		return *t.opaque, nil
	}
	if t.format == codec.FormatJPG {
		v := true
		t.opaque = &v
		return v, nil
	}
	if t.format.IsVector() {
		v := false
		t.opaque = &v
		return v, nil
	}
	content, err := t.AsContent()
	if err != nil {
		return false, err
	}
	op := isFullyOpaque(content.Raster)
	t.opaque = &op
	return op, nil
}

func isFullyTransparent(img image.Image) bool {
	if img == nil {
		return true
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			_, _, _, a := img.At(x, y).RGBA()
			if a != 0 {
				return false
			}
		}
	}
	return true
}

func isFullyOpaque(img image.Image) bool {
	if img == nil {
		return true
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			_, _, _, a := img.At(x, y).RGBA()
			if a != 0xffff {
				return false
			}
		}
	}
	return true
}
