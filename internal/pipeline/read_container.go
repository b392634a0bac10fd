package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/versatiles-org/versatiles-go/internal/containers/dircontainer"
	"github.com/versatiles-org/versatiles-go/internal/containers/mbtiles"
	"github.com/versatiles-org/versatiles-go/internal/containers/pmtilesreader"
	"github.com/versatiles-org/versatiles-go/internal/containers/tarcontainer"
	"github.com/versatiles-org/versatiles-go/internal/containers/versatiles"
	"github.com/versatiles-org/versatiles-go/internal/storage"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// buildFromContainer implements `from_container file=...`: it dispatches on
// the file's extension to the matching container reader. MBTiles, tar, and
// directory trees are always
// local; PMTiles and VersaTiles may additionally be opened through
// any storage.Bucket (HTTP, S3, GCS) since those readers range-fetch rather
// than requiring a *os.File.
func (f *Factory) buildFromContainer(ctx context.Context, node vpl.VPLNode) (tilesource.TileSource, error) {
	p := newProps(node)
	path, err := p.requireString("file")
	if err != nil {
		return nil, err
	}
	if err := p.finish(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mbtiles":
		return mbtiles.Open(path)
	case ".tar":
		return openTar(path)
	case ".pmtiles":
		bucket, key, err := openBucketFor(ctx, path)
		if err != nil {
			return nil, err
		}
		return pmtilesreader.Open(ctx, bucket, key)
	case ".versatiles":
		bucket, key, err := openBucketFor(ctx, path)
		if err != nil {
			return nil, err
		}
		return versatiles.Open(ctx, bucket, key)
	case "":
		info, err := os.Stat(path)
		if err != nil {
			return nil, xerrors.Wrapf(err, "opening container %q", path)
		}
		if !info.IsDir() {
			return nil, xerrors.Errorf("container %q has no recognised extension and is not a directory", path)
		}
		return dircontainer.Open(path)
	default:
		return nil, xerrors.Errorf("container %q has unsupported extension %q", path, ext)
	}
}

func openTar(path string) (tilesource.TileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "opening tar container %q", path)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, xerrors.Wrapf(err, "stat tar container %q", path)
	}
	return tarcontainer.Open(file, info.Size())
}

func openBucketFor(ctx context.Context, path string) (storage.Bucket, string, error) {
	bucketURL, key, err := storage.NormalizeBucketKey("", "", path)
	if err != nil {
		return nil, "", err
	}
	bucket, err := storage.OpenBucket(ctx, bucketURL, "")
	if err != nil {
		return nil, "", err
	}
	return bucket, key, nil
}
