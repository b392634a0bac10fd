package pipeline

import (
	"context"

	"github.com/paulmach/orb/encoding/mvt"

	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/traversal"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// mergedVectorSource implements `from_merged_vector [V1, V2, ...]`: per
// coordinate, every child's layers are combined -- layers sharing a name
// have their features concatenated, distinct names coexist side by side.
type mergedVectorSource struct {
	sources []tilesource.TileSource
	meta    tilesource.Metadata
	tj      tilesource.TileJSON
	limits  tilestream.ConcurrencyLimits
}

func (f *Factory) buildFromMergedVector(ctx context.Context, node vpl.VPLNode) (tilesource.TileSource, error) {
	p := newProps(node)
	if err := p.finish(); err != nil {
		return nil, err
	}
	sources, err := f.buildChildren(ctx, node)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, xerrors.New("from_merged_vector requires at least one source")
	}

	pyramid := coord.NewPyramid()
	trav := sources[0].Metadata().Traversal
	format := sources[0].Metadata().TileFormat
	for i, s := range sources {
		m := s.Metadata()
		if !m.TileFormat.IsVector() {
			return nil, xerrors.Errorf("from_merged_vector: source #%d has non-vector format %s", i, m.TileFormat)
		}
		for z := uint8(0); z <= coord.MaxLevel; z++ {
			pyramid.IncludeBBox(m.BBoxPyramid.GetLevelBBox(z))
		}
		if i > 0 {
			trav, err = traversal.Intersect(trav, m.Traversal)
			if err != nil {
				return nil, xerrors.Wrap(err, "from_merged_vector: incompatible traversals")
			}
		}
	}

	return &mergedVectorSource{
		sources: sources,
		meta: tilesource.Metadata{
			TileFormat:      format,
			TileCompression: sources[0].Metadata().TileCompression,
			BBoxPyramid:     *pyramid,
			Traversal:       trav,
		},
		tj:     *sources[0].TileJSON(),
		limits: f.Limits,
	}, nil
}

func (s *mergedVectorSource) sourceTypes() []tilesource.SourceType {
	out := make([]tilesource.SourceType, len(s.sources))
	for i, src := range s.sources {
		out[i] = src.SourceType()
	}
	return out
}

func (s *mergedVectorSource) SourceType() tilesource.SourceType {
	return tilesource.Composite("from_merged_vector", s.sourceTypes()...)
}
func (s *mergedVectorSource) Metadata() *tilesource.Metadata { return &s.meta }
func (s *mergedVectorSource) TileJSON() *tilesource.TileJSON { return &s.tj }

func (s *mergedVectorSource) GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error) {
	byName := map[string]*mvt.Layer{}
	var order []string
	found := false
	for _, src := range s.sources {
		t, err := src.GetTile(ctx, c)
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue
		}
		found = true
		content, err := t.AsContent()
		if err != nil {
			return nil, err
		}
		for _, layer := range content.Vector {
			existing, ok := byName[layer.Name]
			if !ok {
				cp := *layer
				byName[layer.Name] = &cp
				order = append(order, layer.Name)
				continue
			}
			existing.Features = append(existing.Features, layer.Features...)
		}
	}
	if !found {
		return nil, nil
	}
	merged := make(mvt.Layers, 0, len(order))
	for _, name := range order {
		merged = append(merged, byName[name])
	}
	out, err := tile.FromVector(merged, s.meta.TileFormat)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *mergedVectorSource) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	coords := bbox.IntoCoords()
	return tilestream.FromIterCoordParallel(ctx, coords, s.limits, func(ctx context.Context, c coord.TileCoord) (tile.Tile, bool, error) {
		t, err := s.GetTile(ctx, c)
		if err != nil || t == nil {
			return tile.Tile{}, false, err
		}
		return *t, true, nil
	}), nil
}
