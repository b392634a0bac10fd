package mbtiles

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/versatiles-org/versatiles-go/internal/coord"
)

func createFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mbtiles")
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	require.NoError(t, err)
	defer conn.Close()

	stmts := []string{
		`CREATE TABLE metadata (name TEXT, value TEXT)`,
		`CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB)`,
		`INSERT INTO metadata (name, value) VALUES ('name', 'test-map')`,
		`INSERT INTO metadata (name, value) VALUES ('format', 'png')`,
	}
	for _, s := range stmts {
		require.NoError(t, sqlitex.Execute(conn, s, nil))
	}

	// z=1, x=1, y=0 in XYZ means TMS row = 2^1-1-0 = 1.
	require.NoError(t, sqlitex.Execute(conn,
		`INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{1, 1, 1, []byte("fake-png-bytes")}}))

	return path
}

func TestMBTilesReaderFetchesTileWithTMSFlip(t *testing.T) {
	path := createFixture(t)
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	c, err := coord.NewCoord(1, 1, 0)
	require.NoError(t, err)

	tile, err := r.GetTile(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, tile)

	blob, err := tile.AsBlob(r.meta.TileCompression)
	require.NoError(t, err)
	assert.Equal(t, []byte("fake-png-bytes"), blob.AsSlice())
}

func TestMBTilesReaderMissingTileReturnsNil(t *testing.T) {
	path := createFixture(t)
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	c, err := coord.NewCoord(1, 0, 0)
	require.NoError(t, err)

	tile, err := r.GetTile(context.Background(), c)
	require.NoError(t, err)
	assert.Nil(t, tile)
}

func TestMBTilesReaderLoadsMetadataAndPyramid(t *testing.T) {
	path := createFixture(t)
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "test-map", r.TileJSON().Name)
	minZ, ok := r.Metadata().BBoxPyramid.GetLevelMin()
	require.True(t, ok)
	assert.Equal(t, uint8(1), minZ)
}
