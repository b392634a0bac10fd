// Package pipeline implements C12: the VPL factory that turns a parsed
// pipeline tree (internal/vpl) into a live TileSource graph. Each VPLNode
// resolves to either a reader (a leaf TileSource) or a transform/composite
// operator wrapping the source(s) produced by its upstream or children.
//
// Build errors -- an unknown operator name, a missing required property, an
// unrecognised property key, or a source-type mismatch in a composite op --
// are all detected here, at construction time, never at first-tile time.
package pipeline

import (
	"context"
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// Factory owns every resource the pipeline's operators need but that VPL
// itself has no syntax for: an HTTP client for remote readers, a logger,
// a scratch directory for the overview cache, and default
// concurrency limits. Nothing here is global -- a caller builds one Factory
// per pipeline (or reuses one across pipelines that should share a cache).
type Factory struct {
	Logger     *zap.SugaredLogger
	HTTPClient *http.Client
	CacheDir   string
	Limits     tilestream.ConcurrencyLimits
}

// NewFactory returns a Factory with sane defaults: the stdlib default HTTP
// client, a no-op logger, the OS temp directory for caches, and
// DefaultConcurrencyLimits sized off runtime.NumCPU (via
// tilestream.DefaultConcurrencyLimits(runtime.NumCPU())).
func NewFactory(logger *zap.SugaredLogger) *Factory {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Factory{
		Logger:     logger,
		HTTPClient: http.DefaultClient,
		CacheDir:   os.TempDir(),
		Limits:     tilestream.DefaultConcurrencyLimits(runtime.NumCPU()),
	}
}

// Build parses vplSrc and instantiates the TileSource it describes.
func (f *Factory) Build(ctx context.Context, vplSrc string) (tilesource.TileSource, error) {
	p, err := vpl.Parse(vplSrc)
	if err != nil {
		return nil, xerrors.Wrap(err, "parsing pipeline")
	}
	return f.buildPipeline(ctx, p)
}

// buildPipeline instantiates a left-to-right chain of nodes: the first node
// is a reader producing a root source, every following node transforms the
// source produced by the one before it.
func (f *Factory) buildPipeline(ctx context.Context, p vpl.VPLPipeline) (tilesource.TileSource, error) {
	if len(p.Nodes) == 0 {
		return nil, xerrors.New("empty pipeline")
	}
	var source tilesource.TileSource
	var err error
	for _, node := range p.Nodes {
		source, err = f.buildNode(ctx, node, source)
		if err != nil {
			return nil, xerrors.Wrapf(err, "building operator %q", node.Name)
		}
	}
	return source, nil
}

// buildChildren instantiates every sub-pipeline of a composite node (e.g.
// from_stacked's `[a, b, c]`).
func (f *Factory) buildChildren(ctx context.Context, node vpl.VPLNode) ([]tilesource.TileSource, error) {
	sources := make([]tilesource.TileSource, 0, len(node.Children))
	for i, child := range node.Children {
		s, err := f.buildPipeline(ctx, child)
		if err != nil {
			return nil, xerrors.Wrapf(err, "building %q child #%d", node.Name, i)
		}
		sources = append(sources, s)
	}
	return sources, nil
}

func (f *Factory) buildNode(ctx context.Context, node vpl.VPLNode, upstream tilesource.TileSource) (tilesource.TileSource, error) {
	switch node.Name {
	case "from_container":
		if upstream != nil {
			return nil, xerrors.Errorf("%q is a read operation and cannot follow another source", node.Name)
		}
		return f.buildFromContainer(ctx, node)
	case "from_tilejson":
		if upstream != nil {
			return nil, xerrors.Errorf("%q is a read operation and cannot follow another source", node.Name)
		}
		return f.buildFromTileJSON(ctx, node)
	case "from_debug":
		if upstream != nil {
			return nil, xerrors.Errorf("%q is a read operation and cannot follow another source", node.Name)
		}
		return f.buildFromDebug(node)
	case "from_gdal_raster":
		if upstream != nil {
			return nil, xerrors.Errorf("%q is a read operation and cannot follow another source", node.Name)
		}
		return f.buildFromGDALRaster(node)
	case "from_stacked":
		return f.buildFromStacked(ctx, node)
	case "from_merged_vector":
		return f.buildFromMergedVector(ctx, node)
	case "filter":
		if upstream == nil {
			return nil, xerrors.Errorf("%q needs an upstream source", node.Name)
		}
		return f.buildFilter(upstream, node)
	case "vector_update_properties":
		if upstream == nil {
			return nil, xerrors.Errorf("%q needs an upstream source", node.Name)
		}
		return f.buildUpdateProperties(upstream, node)
	case "raster_mask":
		if upstream == nil {
			return nil, xerrors.Errorf("%q needs an upstream source", node.Name)
		}
		return f.buildRasterMask(upstream, node)
	case "raster_overview":
		if upstream == nil {
			return nil, xerrors.Errorf("%q needs an upstream source", node.Name)
		}
		return f.buildRasterOverview(ctx, upstream, node)
	default:
		return nil, xerrors.Errorf("unknown pipeline operator %q", node.Name)
	}
}
