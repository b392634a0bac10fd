package pipeline

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
)

const squareMaskGeoJSON = `{
  "type": "Polygon",
  "coordinates": [[[-10,-10],[10,-10],[10,10],[-10,10],[-10,-10]]]
}`

func writeMaskGeoJSON(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mask.geojson")
	require.NoError(t, os.WriteFile(path, []byte(squareMaskGeoJSON), 0o644))
	return path
}

func buildMaskedSource(t *testing.T, props map[string]vpl.Value) *rasterMaskSource {
	t.Helper()
	upstream := newRasterFakeSource(6, 4)
	// fully inside the [-10,10] square (near the equator/prime-meridian tile)
	upstream.put(coord.TileCoord{Level: 6, X: 32, Y: 32}, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	// far away, near the antimeridian/north pole
	upstream.put(coord.TileCoord{Level: 6, X: 0, Y: 0}, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	// straddles the east edge of the mask square
	upstream.put(coord.TileCoord{Level: 6, X: 33, Y: 32}, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	f := NewFactory(nil)
	node := vpl.VPLNode{Name: "raster_mask", Properties: props}
	src, err := f.buildRasterMask(upstream, node)
	require.NoError(t, err)
	return src.(*rasterMaskSource)
}

func TestRasterMaskKeepsFullyInsideTileUnchanged(t *testing.T) {
	path := writeMaskGeoJSON(t)
	s := buildMaskedSource(t, map[string]vpl.Value{"geojson": {Scalar: path}})

	c := coord.TileCoord{Level: 6, X: 32, Y: 32}
	got, err := s.GetTile(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, got)
	content, err := got.AsContent()
	require.NoError(t, err)
	_, _, _, a := content.Raster.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), a, "fully-inside tile must stay fully opaque")
}

func TestRasterMaskDropsFullyOutsideTile(t *testing.T) {
	path := writeMaskGeoJSON(t)
	s := buildMaskedSource(t, map[string]vpl.Value{"geojson": {Scalar: path}})

	c := coord.TileCoord{Level: 6, X: 0, Y: 0}
	got, err := s.GetTile(context.Background(), c)
	require.NoError(t, err)
	assert.Nil(t, got, "tile with no overlap and no buffer/blur must be dropped")
}

func TestRasterMaskFeathersPartialTile(t *testing.T) {
	path := writeMaskGeoJSON(t)
	s := buildMaskedSource(t, map[string]vpl.Value{
		"geojson": {Scalar: path},
		"buffer":  {Scalar: "0"},
		"blur":    {Scalar: "200000"},
	})

	c := coord.TileCoord{Level: 6, X: 33, Y: 32}
	got, err := s.GetTile(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, got, "a straddling tile must survive with partial alpha, not be dropped")
	content, err := got.AsContent()
	require.NoError(t, err)
	bounds := content.Raster.Bounds()
	_, _, _, aLeft := content.Raster.At(bounds.Min.X, bounds.Min.Y).RGBA()
	_, _, _, aRight := content.Raster.At(bounds.Max.X-1, bounds.Min.Y).RGBA()
	assert.Greater(t, aLeft, aRight, "the west (inside-mask) edge must be more opaque than the east (outside) edge")
}
