package writers

import (
	"archive/tar"
	"context"
	"strconv"

	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// WriteTar streams source into a tar archive using the `{z}/{x}/{y}.{ext}
// [.{br|gz}]` layout internal/containers/tarcontainer reads back, plus a
// `tiles.json[.{br|gz}]` entry holding the TileJSON document. Entries are
// written as regular files, mode 0644.
func WriteTar(ctx context.Context, tw *tar.Writer, source tilesource.TileSource, reporter ...Reporter) (Stats, error) {
	var rep Reporter
	if len(reporter) > 0 {
		rep = reporter[0]
	}
	meta := source.Metadata()

	tjRaw, err := source.TileJSON().Marshal()
	if err != nil {
		return Stats{}, xerrors.Wrap(err, "marshalling tilejson")
	}
	tjName := "tiles.json" + compressionSuffix(meta.TileCompression)
	tjBlob, err := codec.Compress(byteio.NewBlob(tjRaw), meta.TileCompression)
	if err != nil {
		return Stats{}, xerrors.Wrap(err, "compressing tilejson entry")
	}
	if err := writeTarEntry(tw, tjName, tjBlob.AsSlice()); err != nil {
		return Stats{}, err
	}

	stats := Stats{}
	zMin, okMin := meta.BBoxPyramid.GetLevelMin()
	zMax, okMax := meta.BBoxPyramid.GetLevelMax()
	if !okMin || !okMax {
		return stats, nil
	}
	for z := zMin; ; z++ {
		bbox := meta.BBoxPyramid.GetLevelBBox(z)
		stream, err := source.GetTileStream(ctx, bbox)
		if err != nil {
			return Stats{}, xerrors.Wrapf(err, "streaming level %d", z)
		}
		items, err := tilestream.ToVec(stream)
		if err != nil {
			return Stats{}, err
		}
		for _, it := range items {
			blob, err := it.Value.AsBlob(meta.TileCompression)
			if err != nil {
				return Stats{}, xerrors.Wrapf(err, "encoding tile %s", it.Coord)
			}
			name := strconv.Itoa(int(it.Coord.Level)) + "/" + strconv.Itoa(int(it.Coord.X)) + "/" +
				strconv.Itoa(int(it.Coord.Y)) + "." + meta.TileFormat.String() + compressionSuffix(meta.TileCompression)
			if err := writeTarEntry(tw, name, blob.AsSlice()); err != nil {
				return Stats{}, err
			}
			stats.Tiles++
			stats.TileBytes += uint64(blob.Len())
			report(rep, 1)
		}
		if z == zMax {
			break
		}
	}
	return stats, nil
}

func writeTarEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:     "./" + name,
		Typeflag: tar.TypeReg,
		Mode:     0644,
		Size:     int64(len(data)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return xerrors.Wrapf(err, "writing tar header for %s", name)
	}
	if _, err := tw.Write(data); err != nil {
		return xerrors.Wrapf(err, "writing tar body for %s", name)
	}
	return nil
}

func compressionSuffix(c codec.TileCompression) string {
	switch c {
	case codec.CompressionBrotli:
		return ".br"
	case codec.CompressionGzip:
		return ".gz"
	default:
		return ""
	}
}
