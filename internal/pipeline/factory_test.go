package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFailsOnUnknownOperator(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.Build(context.Background(), "from_nonsense")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown pipeline operator")
}

func TestBuildFailsOnMissingRequiredProperty(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.Build(context.Background(), "from_container")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required property")
}

func TestBuildFailsOnUnrecognisedProperty(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.Build(context.Background(), "from_debug format=xyz bogus_property=1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognised property")
}

func TestBuildFailsWhenReadOperatorFollowsUpstream(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.Build(context.Background(), "from_debug format=xyz | from_debug format=xyz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot follow another source")
}

func TestBuildFailsWhenTransformHasNoUpstream(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.Build(context.Background(), "filter min_zoom=2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs an upstream source")
}

func TestBuildFromDebugSucceeds(t *testing.T) {
	f := NewFactory(nil)
	src, err := f.Build(context.Background(), "from_debug format=xyz tile_format=png")
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.True(t, src.Metadata().TileFormat.IsRaster())
}
