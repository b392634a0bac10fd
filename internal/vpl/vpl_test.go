package vpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleChain(t *testing.T) {
	p, err := Parse(`from_debug format=png | filter bbox=[-10,-10,10,10] min_zoom=3 max_zoom=5`)
	require.NoError(t, err)
	require.Len(t, p.Nodes, 2)

	assert.Equal(t, "from_debug", p.Nodes[0].Name)
	format, err := p.Nodes[0].Properties["format"].AsString()
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	assert.Equal(t, "filter", p.Nodes[1].Name)
	bbox, err := p.Nodes[1].Properties["bbox"].AsFloats()
	require.NoError(t, err)
	assert.Equal(t, []float64{-10, -10, 10, 10}, bbox)
	minZoom, err := p.Nodes[1].Properties["min_zoom"].AsString()
	require.NoError(t, err)
	assert.Equal(t, "3", minZoom)
}

func TestParseNestedChildren(t *testing.T) {
	p, err := Parse(`from_stacked [from_container file="a.mbtiles", from_container file="b.mbtiles"]`)
	require.NoError(t, err)
	require.Len(t, p.Nodes, 1)
	node := p.Nodes[0]
	assert.Equal(t, "from_stacked", node.Name)
	require.Len(t, node.Children, 2)

	first := node.Children[0].Nodes[0]
	file, err := first.Properties["file"].AsString()
	require.NoError(t, err)
	assert.Equal(t, "a.mbtiles", file)
}

func TestParseRejectsDuplicateProperty(t *testing.T) {
	_, err := Parse(`filter min_zoom=1 min_zoom=2`)
	assert.Error(t, err)
}

func TestParseRejectsUnclosedBracket(t *testing.T) {
	_, err := Parse(`from_stacked [from_debug format=png`)
	assert.Error(t, err)
}

func TestParseRejectsTrailingGarbage(t *testing.T) {
	_, err := Parse(`from_debug format=png )`)
	assert.Error(t, err)
}

func TestParseQuotedStringWithEscape(t *testing.T) {
	p, err := Parse(`vector_update_properties data_source_path="/tmp/a \"b\".csv"`)
	require.NoError(t, err)
	path, err := p.Nodes[0].Properties["data_source_path"].AsString()
	require.NoError(t, err)
	assert.Equal(t, `/tmp/a "b".csv`, path)
}
