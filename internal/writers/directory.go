package writers

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// WriteDirectory streams source into a `{root}/{z}/{x}/{y}.{ext}[.{br|gz}]`
// filesystem tree plus a `tiles.json[.{br|gz}]` document, the layout
// internal/containers/dircontainer discovers on Open. root is created if it
// does not exist; existing tile files are overwritten.
func WriteDirectory(ctx context.Context, root string, source tilesource.TileSource, reporter ...Reporter) (Stats, error) {
	var rep Reporter
	if len(reporter) > 0 {
		rep = reporter[0]
	}
	meta := source.Metadata()

	if err := os.MkdirAll(root, 0755); err != nil {
		return Stats{}, xerrors.Wrapf(err, "creating directory container %s", root)
	}

	tjRaw, err := source.TileJSON().Marshal()
	if err != nil {
		return Stats{}, xerrors.Wrap(err, "marshalling tilejson")
	}
	tjBlob, err := codec.Compress(byteio.NewBlob(tjRaw), meta.TileCompression)
	if err != nil {
		return Stats{}, xerrors.Wrap(err, "compressing tilejson")
	}
	tjPath := filepath.Join(root, "tiles.json"+compressionSuffix(meta.TileCompression))
	if err := os.WriteFile(tjPath, tjBlob.AsSlice(), 0644); err != nil {
		return Stats{}, xerrors.Wrapf(err, "writing %s", tjPath)
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
			dir := filepath.Join(root, strconv.Itoa(int(it.Coord.Level)), strconv.FormatUint(uint64(it.Coord.X), 10))
			if err := os.MkdirAll(dir, 0755); err != nil {
				return Stats{}, xerrors.Wrapf(err, "creating %s", dir)
			}
			name := strconv.FormatUint(uint64(it.Coord.Y), 10) + "." + meta.TileFormat.String() + compressionSuffix(meta.TileCompression)
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, blob.AsSlice(), 0644); err != nil {
				return Stats{}, xerrors.Wrapf(err, "writing tile file %s", path)
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
