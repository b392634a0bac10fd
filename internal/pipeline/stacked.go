package pipeline

import (
	"context"

	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tile"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/traversal"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// stackedSource implements `from_stacked [S1, S2, ...]`: for any coordinate,
// the first source (in list order) that has a tile wins. All children must
// share the same tile format; a winning tile's compression is left
// untouched rather than forced to match the first child's, since a caller
// that needs one normalised compression can layer a converter stage
// afterwards.
type stackedSource struct {
	sources []tilesource.TileSource
	meta    tilesource.Metadata
	tj      tilesource.TileJSON
	limits  tilestream.ConcurrencyLimits
}

func (f *Factory) buildFromStacked(ctx context.Context, node vpl.VPLNode) (tilesource.TileSource, error) {
	p := newProps(node)
	if err := p.finish(); err != nil {
		return nil, err
	}
	sources, err := f.buildChildren(ctx, node)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, xerrors.New("from_stacked requires at least one source")
	}

	format := sources[0].Metadata().TileFormat
	pyramid := coord.NewPyramid()
	trav := sources[0].Metadata().Traversal
	for i, s := range sources {
		m := s.Metadata()
		if i > 0 && m.TileFormat != format {
			return nil, xerrors.Errorf("from_stacked: source #%d has format %s, expected %s", i, m.TileFormat, format)
		}
		for z := uint8(0); z <= coord.MaxLevel; z++ {
			pyramid.IncludeBBox(m.BBoxPyramid.GetLevelBBox(z))
		}
		if i > 0 {
			trav, err = traversal.Intersect(trav, m.Traversal)
			if err != nil {
				return nil, xerrors.Wrap(err, "from_stacked: incompatible traversals")
			}
		}
	}

	return &stackedSource{
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

func (s *stackedSource) sourceTypes() []tilesource.SourceType {
	out := make([]tilesource.SourceType, len(s.sources))
	for i, src := range s.sources {
		out[i] = src.SourceType()
	}
	return out
}

func (s *stackedSource) SourceType() tilesource.SourceType {
	return tilesource.Composite("from_stacked", s.sourceTypes()...)
}
func (s *stackedSource) Metadata() *tilesource.Metadata { return &s.meta }
func (s *stackedSource) TileJSON() *tilesource.TileJSON { return &s.tj }

func (s *stackedSource) GetTile(ctx context.Context, c coord.TileCoord) (*tile.Tile, error) {
	for _, src := range s.sources {
		t, err := src.GetTile(ctx, c)
		if err != nil {
			return nil, err
		}
		if t != nil {
			return t, nil
		}
	}
	return nil, nil
}

func (s *stackedSource) GetTileStream(ctx context.Context, bbox coord.TileBBox) (tilestream.Stream[tile.Tile], error) {
	coords := bbox.IntoCoords()
	return tilestream.FromIterCoordParallel(ctx, coords, s.limits, func(ctx context.Context, c coord.TileCoord) (tile.Tile, bool, error) {
		t, err := s.GetTile(ctx, c)
		if err != nil || t == nil {
			return tile.Tile{}, false, err
		}
		return *t, true, nil
	}), nil
}
