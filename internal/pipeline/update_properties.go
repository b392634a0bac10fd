package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"

	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// updatePropertiesSource implements `vector_update_properties`: it loads a
// CSV file once at build time and, per feature of a chosen layer, joins an
// external row looked up by a tile-side id field against a CSV-side id
// field, merging (or, with replace_properties, replacing) the feature's
// properties.
type updatePropertiesSource struct {
	upstream           tilesource.TileSource
	meta               tilesource.Metadata
	tj                 tilesource.TileJSON
	layerName          string
	idFieldTiles       string
	idFieldData        string
	replaceProperties  bool
	removeNonMatching  bool
	includeID          bool
	rowsByID           map[string]map[string]string
	dataFields         []string
}

func (f *Factory) buildUpdateProperties(upstream tilesource.TileSource, node vpl.VPLNode) (tilesource.TileSource, error) {
	if !upstream.Metadata().TileFormat.IsVector() {
		return nil, xerrors.Errorf("vector_update_properties: upstream format %s is not a vector format", upstream.Metadata().TileFormat)
	}

	p := newProps(node)
	csvPath, err := p.requireString("data_source_path")
	if err != nil {
		return nil, err
	}
	idFieldTiles, err := p.requireString("id_field_tiles")
	if err != nil {
		return nil, err
	}
	idFieldData, err := p.requireString("id_field_data")
	if err != nil {
		return nil, err
	}
	layerName, err := p.requireString("layer_name")
	if err != nil {
		return nil, err
	}
	replaceProperties, err := p.boolean("replace_properties", false)
	if err != nil {
		return nil, err
	}
	removeNonMatching, err := p.boolean("remove_non_matching", false)
	if err != nil {
		return nil, err
	}
	includeID, err := p.boolean("include_id", false)
	if err != nil {
		return nil, err
	}
	if err := p.finish(); err != nil {
		return nil, err
	}

	rowsByID, dataFields, err := loadCSVByID(csvPath, idFieldData)
	if err != nil {
		return nil, err
	}

	meta := *upstream.Metadata()
	tj := *upstream.TileJSON()
	for i, layer := range tj.VectorLayers {
		if layer.ID != layerName {
			continue
		}
		if layer.Fields == nil {
			layer.Fields = map[string]string{}
		}
		for _, field := range dataFields {
			layer.Fields[field] = "String"
		}
		tj.VectorLayers[i] = layer
	}

	return &updatePropertiesSource{
		upstream:          upstream,
		meta:              meta,
		tj:                tj,
		layerName:         layerName,
		idFieldTiles:      idFieldTiles,
		idFieldData:       idFieldData,
		replaceProperties: replaceProperties,
		removeNonMatching: removeNonMatching,
		includeID:         includeID,
		rowsByID:          rowsByID,
		dataFields:        dataFields,
	}, nil
}

// loadCSVByID reads the whole CSV once, returning a map from the idField
// column's value to the full row (as a map of every column, the id column
// included) plus the
// ordered list of data-only field names (everything but idField).
func loadCSVByID(path, idField string) (map[string]map[string]string, []string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, xerrors.Wrapf(err, "opening csv data source %q", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, nil, xerrors.Wrapf(err, "reading csv header from %q", path)
	}
	idIndex := -1
	var dataFields []string
	for i, col := range header {
		if col == idField {
			idIndex = i
			continue
		}
		dataFields = append(dataFields, col)
	}
	if idIndex < 0 {
		return nil, nil, xerrors.Errorf("csv %q has no column %q", path, idField)
	}

	rows := map[string]map[string]string{}
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		row := map[string]string{}
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows[record[idIndex]] = row
	}
	return rows, dataFields, nil
}

func (s *updatePropertiesSource) SourceType() tilesource.SourceType {
	return tilesource.Processor("vector_update_properties", s.upstream.SourceType())
}
func (s *updatePropertiesSource) Metadata() *tilesource.Metadata { return &s.meta }
func (s *updatePropertiesSource) TileJSON() *tilesource.TileJSON { return &s.tj }

func (s *updatePropertiesSource) GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error) {
	t, err := s.upstream.GetTile(ctx, c)
	if err != nil || t == nil {
		return t, err
	}
	if err := s.apply(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *updatePropertiesSource) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	upstream, err := s.upstream.GetTileStream(ctx, bbox)
	if err != nil {
		return tilestream.Stream[tile.Tile]{}, err
	}
	return tilestream.MapItemParallel(ctx, upstream, tilestream.DefaultConcurrencyLimits(4), func(_ context.Context, _ coord.TileCoord, t tile.Tile) (tile.Tile, error) {
		if err := s.apply(&t); err != nil {
			return tile.Tile{}, err
		}
		return t, nil
	}), nil
}

// apply rewrites t's chosen layer's feature properties in place, joining
// against the CSV by idFieldTiles <-> idFieldData.
func (s *updatePropertiesSource) apply(t *tile.Tile) error {
	content, err := t.AsContentMut()
	if err != nil {
		return err
	}
	var layer *mvt.Layer
	for _, l := range content.Vector {
		if l.Name == s.layerName {
			layer = l
			break
		}
	}
	if layer == nil {
		return nil
	}

	kept := layer.Features[:0]
	for _, feature := range layer.Features {
		idVal, ok := feature.Properties[s.idFieldTiles]
		id := propertyToString(idVal)
		row, matched := s.rowsByID[id]
		if !ok || !matched {
			if s.removeNonMatching {
				continue
			}
			kept = append(kept, feature)
			continue
		}
		if s.replaceProperties {
			feature.Properties = geojson.Properties{}
			if s.includeID {
				feature.Properties[s.idFieldTiles] = idVal
			}
		}
		for _, field := range s.dataFields {
			feature.Properties[field] = row[field]
		}
		kept = append(kept, feature)
	}
	layer.Features = kept
	return nil
}

func propertyToString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
