package pipeline

import (
	"context"

	"github.com/versatiles-org/versatiles-go/internal/containers/tilejsonreader"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
)

// buildFromTileJSON implements `from_tilejson url=... [retry=3]`.
func (f *Factory) buildFromTileJSON(ctx context.Context, node vpl.VPLNode) (tilesource.TileSource, error) {
	p := newProps(node)
	url, err := p.requireString("url")
	if err != nil {
		return nil, err
	}
	retryAttempts, err := p.integer("retry", 3)
	if err != nil {
		return nil, err
	}
	if err := p.finish(); err != nil {
		return nil, err
	}

	retry := tilejsonreader.DefaultRetry()
	retry.MaxAttempts = retryAttempts
	return tilejsonreader.Open(ctx, f.HTTPClient, url, retry)
}
