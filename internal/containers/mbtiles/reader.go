// Package mbtiles implements the MBTiles container reader: an SQLite
// database with a `tiles(zoom_level,tile_column,tile_row,tile_data)` view
// and a `metadata(name,value)` table, where the stored row is TMS (Y counts
// from the south) and must be flipped to XYZ on read.
package mbtiles

import (
	"context"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/versatiles-org/versatiles-go/internal/byteio"
	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/traversal"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// Reader is a TileSource backed by an MBTiles SQLite file.
type Reader struct {
	conn     *sqlite.Conn
	meta     tilesource.Metadata
	tilejson tilesource.TileJSON
}

// Open opens the MBTiles file at path, computing its bbox pyramid from the
// tiles table and its TileJSON from the metadata table.
func Open(path string) (*Reader, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadOnly)
	if err != nil {
		return nil, xerrors.Wrapf(err, "opening mbtiles %s", path)
	}
	r := &Reader{conn: conn}
	if err := r.loadMetadata(); err != nil {
		conn.Close()
		return nil, err
	}
	if err := r.loadPyramid(); err != nil {
		conn.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) loadMetadata() error {
	r.tilejson = tilesource.Default()
	format := codec.FormatPNG
	err := sqlitex.Execute(r.conn, `SELECT name, value FROM metadata`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			name := stmt.ColumnText(0)
			value := stmt.ColumnText(1)
			switch name {
			case "name":
				r.tilejson.Name = value
			case "description":
				r.tilejson.Description = value
			case "attribution":
				r.tilejson.Attribution = value
			case "version":
				r.tilejson.Version = value
			case "format":
				format = codec.FormatFromExtension(value)
			}
			return nil
		},
	})
	if err != nil {
		return xerrors.Wrap(err, "reading mbtiles metadata")
	}
	r.meta.TileFormat = format
	if format.IsRaster() {
		r.meta.TileCompression = codec.CompressionNone
	} else {
		r.meta.TileCompression = codec.CompressionGzip
	}
	r.meta.Traversal = traversal.Default()
	return nil
}

func (r *Reader) loadPyramid() error {
	pyramid := coord.NewPyramid()
	err := sqlitex.Execute(r.conn, `SELECT zoom_level, tile_column, tile_row FROM tiles`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			z := uint8(stmt.ColumnInt64(0))
			x := uint32(stmt.ColumnInt64(1))
			yTMS := uint32(stmt.ColumnInt64(2))
			c, err := coord.NewCoord(z, x, flipTMS(z, yTMS))
			if err != nil {
				return err
			}
			pyramid.IncludeCoord(c)
			return nil
		},
	})
	if err != nil {
		return xerrors.Wrap(err, "scanning mbtiles tiles table")
	}
	r.meta.BBoxPyramid = *pyramid
	return nil
}

func flipTMS(level uint8, y uint32) uint32 {
	max := (uint32(1) << level) - 1
	return max - y
}

func (r *Reader) SourceType() tilesource.SourceType { return tilesource.Container("mbtiles") }
func (r *Reader) Metadata() *tilesource.Metadata    { return &r.meta }
func (r *Reader) TileJSON() *tilesource.TileJSON    { return &r.tilejson }

// Close releases the underlying SQLite connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

func (r *Reader) GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error) {
	return tilesource.GetTileDefault(ctx, r, c)
}

func (r *Reader) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	coords := bbox.IntoCoords()
	return tilestream.FromIterCoord(ctx, coords, func(_ context.Context, c coord.TileCoord) (tile.Tile, bool, error) {
		data, ok, err := r.fetch(c)
		if err != nil || !ok {
			return tile.Tile{}, false, err
		}
		return tile.FromBlob(byteio.NewBlob(data), r.meta.TileCompression, r.meta.TileFormat), true, nil
	}), nil
}

func (r *Reader) fetch(c coord.TileCoord) ([]byte, bool, error) {
	yTMS := flipTMS(c.Level, c.Y)
	var data []byte
	found := false
	err := sqlitex.Execute(r.conn,
		`SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`,
		&sqlitex.ExecOptions{
			Args: []any{int64(c.Level), int64(c.X), int64(yTMS)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				data = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, data)
				return nil
			},
		})
	if err != nil {
		return nil, false, xerrors.Wrapf(err, "fetching tile %s", c)
	}
	return data, found, nil
}
