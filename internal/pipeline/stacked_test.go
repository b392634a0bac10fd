package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versatiles-org/versatiles-go/internal/codec"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/tilesource"
	"github.com/versatiles-org/versatiles-go/internal/tilestream"
)

func newStackedForTest(sources ...tilesource.TileSource) *stackedSource {
	pyramid := coord.NewPyramid()
	for _, s := range sources {
		for z := uint8(0); z <= coord.MaxLevel; z++ {
			pyramid.IncludeBBox(s.Metadata().BBoxPyramid.GetLevelBBox(z))
		}
	}
	return &stackedSource{
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

// TestStackedFirstWins overlaps two sources: s1 covers x=0..3 at z=3
// (y=0), s2 covers x=2..5. The stacked result must take tiles 0-3 from s1
// (present there) and only fall through to s2 for 4 and 5.
func TestStackedFirstWins(t *testing.T) {
	s1 := newFakeSource("s1", codec.FormatPNG)
	s2 := newFakeSource("s2", codec.FormatPNG)
	for x := uint32(0); x <= 3; x++ {
		c, _ := coord.NewCoord(3, x, 0)
		s1.put(c, []byte("s1"))
	}
	for x := uint32(2); x <= 5; x++ {
		c, _ := coord.NewCoord(3, x, 0)
		s2.put(c, []byte("s2"))
	}

	s := newStackedForTest(s1, s2)

	want := map[uint32]string{0: "s1", 1: "s1", 2: "s1", 3: "s1", 4: "s2", 5: "s2"}
	for x, expect := range want {
		c, _ := coord.NewCoord(3, x, 0)
		got, err := s.GetTile(context.Background(), c)
		require.NoError(t, err)
		require.NotNilf(t, got, "tile x=%d should be present", x)
		blob, err := got.AsBlob(codec.CompressionNone)
		require.NoError(t, err)
		assert.Equalf(t, expect, string(blob.AsSlice()), "tile x=%d should come from %s", x, expect)
	}

	full, err := coord.New(3, 0, 0, 5, 0)
	require.NoError(t, err)
	stream, err := s.GetTileStream(context.Background(), full)
	require.NoError(t, err)
	items, err := tilestream.ToVec(stream)
	require.NoError(t, err)
	assert.Len(t, items, 6)
}

func TestStackedSkipsAbsentUpstream(t *testing.T) {
	s1 := newFakeSource("s1", codec.FormatPNG)
	s2 := newFakeSource("s2", codec.FormatPNG)
	c, _ := coord.NewCoord(5, 10, 10)
	s2.put(c, []byte("only-s2"))

	s := newStackedForTest(s1, s2)
	got, err := s.GetTile(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, got)
	blob, err := got.AsBlob(codec.CompressionNone)
	require.NoError(t, err)
	assert.Equal(t, "only-s2", string(blob.AsSlice()))
}
