package tilecache

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// DiskCache spills values to one file per key under a directory, the
// write-or-replace discipline of §5: a key's file is replaced wholesale on
// Set, and no two writers touch the same key within one process run. It
// backs the in-memory Cache when a build (an overview pyramid, say) produces
// more intermediate tiles than a byte budget should hold.
type DiskCache struct {
	dir string
}

// NewDiskCache creates dir if needed and returns a cache rooted there.
func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, xerrors.Wrapf(err, "creating cache directory %s", dir)
	}
	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache's root directory.
func (d *DiskCache) Dir() string { return d.dir }

func (d *DiskCache) path(c coord.TileCoord) string {
	name := strconv.Itoa(int(c.Level)) + "-" + strconv.FormatUint(uint64(c.X), 10) + "-" + strconv.FormatUint(uint64(c.Y), 10) + ".bin"
	return filepath.Join(d.dir, name)
}

// Get returns the bytes stored for c, or ok=false if the key has no file.
func (d *DiskCache) Get(c coord.TileCoord) ([]byte, bool) {
	data, err := os.ReadFile(d.path(c))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores value for c, replacing any previous file for the same key.
func (d *DiskCache) Set(c coord.TileCoord, value []byte) error {
	path := d.path(c)
	if err := os.WriteFile(path, value, 0644); err != nil {
		return xerrors.Wrapf(err, "writing cache file %s", path)
	}
	return nil
}

// Remove deletes c's file. Removing an absent key is not an error.
func (d *DiskCache) Remove(c coord.TileCoord) error {
	err := os.Remove(d.path(c))
	if err != nil && !os.IsNotExist(err) {
		return xerrors.Wrapf(err, "removing cache file for %s", c)
	}
	return nil
}
