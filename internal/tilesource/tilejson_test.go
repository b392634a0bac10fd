package tilesource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileJSONMarshalParseRoundTrip(t *testing.T) {
	tj := Default()
	tj.Name = "test"
	tj.Tiles = []string{"https://example.com/{z}/{x}/{y}.pbf"}

	data, err := tj.Marshal()
	require.NoError(t, err)

	back, err := ParseTileJSON(data)
	require.NoError(t, err)
	assert.Equal(t, tj.Name, back.Name)
	assert.Equal(t, tj.Tiles, back.Tiles)
}

func TestTileJSONMergeOverridesNonZeroFields(t *testing.T) {
	base := Default()
	base.Name = "base"
	base.MaxZoom = 10

	override := TileJSON{Name: "override", MaxZoom: 14}
	merged := base.Merge(override)
	assert.Equal(t, "override", merged.Name)
	assert.Equal(t, uint8(14), merged.MaxZoom)
	assert.Equal(t, base.Scheme, merged.Scheme)
}
