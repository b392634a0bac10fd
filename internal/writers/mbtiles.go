// Package writers implements the sink half of the container formats that
// internal/containers already knows how to read: MBTiles, Tar, and plain
// directory trees. Each writer consumes a tilesource.TileSource through its
// GetTileStream and produces output byte-compatible with the corresponding
// reader.
package writers

import (
	"context"
	"encoding/hex"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// mbtilesSchema splits tile payloads from their (z,x,y) placement across a
// map/images pair joined by a content hash, de-duplicating identical
// payloads; `tiles` stays a VIEW so internal/containers/mbtiles can keep
// reading it as a flat table.
const mbtilesSchema = `
CREATE TABLE metadata (name TEXT, value TEXT, UNIQUE(name));
CREATE TABLE map (zoom_level INTEGER NOT NULL, tile_column INTEGER NOT NULL, tile_row INTEGER NOT NULL, tile_id TEXT NOT NULL);
CREATE UNIQUE INDEX map_index ON map (zoom_level, tile_column, tile_row);
CREATE TABLE images (tile_data BLOB NOT NULL, tile_id TEXT NOT NULL);
CREATE UNIQUE INDEX images_id ON images (tile_id);
CREATE VIEW tiles AS
  SELECT map.zoom_level AS zoom_level, map.tile_column AS tile_column, map.tile_row AS tile_row, images.tile_data AS tile_data
  FROM map JOIN images ON images.tile_id = map.tile_id;
`

// WriteMBTiles creates a fresh MBTiles database at path and writes every
// tile in source's bbox pyramid into it, flipping Y back to TMS (the
// mirror image of mbtiles.flipTMS on read) and filling the metadata table
// with the required TileJSON-derived fields.
func WriteMBTiles(ctx context.Context, path string, source tilesource.TileSource, reporter ...Reporter) (Stats, error) {
	var rep Reporter
	if len(reporter) > 0 {
		rep = reporter[0]
	}
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		return Stats{}, xerrors.Wrapf(err, "creating mbtiles %s", path)
	}
	defer conn.Close()

	if err := sqlitex.ExecuteScript(conn, mbtilesSchema, nil); err != nil {
		return Stats{}, xerrors.Wrap(err, "creating mbtiles schema")
	}

	meta := source.Metadata()
	tj := source.TileJSON()
	if err := writeMBTilesMetadata(conn, meta, tj); err != nil {
		return Stats{}, err
	}

	insertImage, err := conn.Prepare(`INSERT OR IGNORE INTO images (tile_id, tile_data) VALUES (?, ?)`)
	if err != nil {
		return Stats{}, xerrors.Wrap(err, "preparing image insert")
	}
	defer insertImage.Finalize()
	insertMap, err := conn.Prepare(`INSERT OR REPLACE INTO map (zoom_level, tile_column, tile_row, tile_id) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return Stats{}, xerrors.Wrap(err, "preparing map insert")
	}
	defer insertMap.Finalize()

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
			data := blob.AsSlice()
			tileID := hex.EncodeToString(uint64ToBytes(xxhash.Sum64(data)))

			insertImage.BindText(1, tileID)
			insertImage.BindBytes(2, data)
			if _, err := insertImage.Step(); err != nil {
				return Stats{}, xerrors.Wrapf(err, "inserting image %s", it.Coord)
			}
			if err := insertImage.Reset(); err != nil {
				return Stats{}, err
			}

			yTMS := flipTMS(it.Coord.Level, it.Coord.Y)
			insertMap.BindInt64(1, int64(it.Coord.Level))
			insertMap.BindInt64(2, int64(it.Coord.X))
			insertMap.BindInt64(3, int64(yTMS))
			insertMap.BindText(4, tileID)
			if _, err := insertMap.Step(); err != nil {
				return Stats{}, xerrors.Wrapf(err, "inserting map row %s", it.Coord)
			}
			if err := insertMap.Reset(); err != nil {
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

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
	return b
}

func flipTMS(level uint8, y uint32) uint32 {
	max := (uint32(1) << level) - 1
	return max - y
}

func writeMBTilesMetadata(conn *sqlite.Conn, meta *tilesource.Metadata, tj *tilesource.TileJSON) error {
	kind := "overlay"
	if meta.TileFormat.IsRaster() {
		kind = "baselayer"
	}
	zMin, _ := meta.BBoxPyramid.GetLevelMin()
	zMax, _ := meta.BBoxPyramid.GetLevelMax()
	geo := meta.BBoxPyramid.GetGeoBBox()

	rows := map[string]string{
		"format":  meta.TileFormat.String(),
		"type":    kind,
		"version": "1.1",
		"bounds":  formatBounds(geo.West, geo.South, geo.East, geo.North),
		"center":  formatCenter(geo.West, geo.South, geo.East, geo.North, zMin),
		"minzoom": strconv.Itoa(int(zMin)),
		"maxzoom": strconv.Itoa(int(zMax)),
	}
	if tj.Name != "" {
		rows["name"] = tj.Name
	}
	if tj.Description != "" {
		rows["description"] = tj.Description
	}

	insert, err := conn.Prepare(`INSERT INTO metadata (name, value) VALUES (?, ?)`)
	if err != nil {
		return xerrors.Wrap(err, "preparing metadata insert")
	}
	defer insert.Finalize()
	for name, value := range rows {
		insert.BindText(1, name)
		insert.BindText(2, value)
		if _, err := insert.Step(); err != nil {
			return xerrors.Wrapf(err, "inserting metadata %s", name)
		}
		if err := insert.Reset(); err != nil {
			return err
		}
	}
	return nil
}

func formatBounds(w, s, e, n float64) string {
	return ftoa(w) + "," + ftoa(s) + "," + ftoa(e) + "," + ftoa(n)
}

func formatCenter(w, s, e, n float64, z uint8) string {
	return ftoa((w+e)/2) + "," + ftoa((s+n)/2) + "," + strconv.Itoa(int(z))
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}
