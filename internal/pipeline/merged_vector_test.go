package pipeline

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
)

func newMergedForTest(sources ...tilesource.TileSource) *mergedVectorSource {
	pyramid := coord.NewPyramid()
	for _, s := range sources {
		for z := uint8(0); z <= coord.MaxLevel; z++ {
			pyramid.IncludeBBox(s.Metadata().BBoxPyramid.GetLevelBBox(z))
		}
	}
	return &mergedVectorSource{
		sources: sources,
		meta: tilesource.Metadata{
			TileFormat:      sources[0].Metadata().TileFormat,
			TileCompression: sources[0].Metadata().TileCompression,
			BBoxPyramid:     *pyramid,
			Traversal:       sources[0].Metadata().Traversal,
		},
		tj:     *sources[0].TileJSON(),
		limits: tilestream.DefaultConcurrencyLimits(4),
	}
}

func featureWithID(id string) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{0, 0})
	f.Properties = geojson.Properties{"id": id}
	return f
}

// TestMergedVectorConcatenatesSameNamedLayers checks that two sources each
// contributing a "points" layer end up with both features in one layer.
func TestMergedVectorConcatenatesSameNamedLayers(t *testing.T) {
	v1 := newVectorFakeSource("points", featureWithID("a"))
	v2 := newVectorFakeSource("points", featureWithID("b"))
	s := newMergedForTest(v1, v2)

	c, _ := coord.NewCoord(0, 0, 0)
	got, err := s.GetTile(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, got)
	content, err := got.AsContent()
	require.NoError(t, err)
	require.Len(t, content.Vector, 1)
	assert.Equal(t, "points", content.Vector[0].Name)
	require.Len(t, content.Vector[0].Features, 2)
	assert.Equal(t, "a", content.Vector[0].Features[0].Properties["id"])
	assert.Equal(t, "b", content.Vector[0].Features[1].Properties["id"])
}

// TestMergedVectorKeepsDistinctLayersSideBySide checks that layers with
// different names from different sources both survive, uncombined.
func TestMergedVectorKeepsDistinctLayersSideBySide(t *testing.T) {
	v1 := newVectorFakeSource("roads", featureWithID("r1"))
	v2 := newVectorFakeSource("buildings", featureWithID("b1"))
	s := newMergedForTest(v1, v2)

	c, _ := coord.NewCoord(0, 0, 0)
	got, err := s.GetTile(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, got)
	content, err := got.AsContent()
	require.NoError(t, err)
	require.Len(t, content.Vector, 2)
	names := map[string]bool{content.Vector[0].Name: true, content.Vector[1].Name: true}
	assert.True(t, names["roads"])
	assert.True(t, names["buildings"])
}
