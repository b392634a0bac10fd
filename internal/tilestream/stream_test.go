package tilestream

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versatiles-org/versatiles-go/internal/coord"
)

func coords(n int) []coord.TileCoord {
	out := make([]coord.TileCoord, n)
	for i := range out {
		out[i] = coord.TileCoord{Level: 5, X: uint32(i), Y: 0}
	}
	return out
}

func TestFromSliceToVecPreservesOrder(t *testing.T) {
	items := []Item[int]{
		{Coord: coord.TileCoord{Level: 1, X: 0, Y: 0}, Value: 10},
		{Coord: coord.TileCoord{Level: 1, X: 1, Y: 0}, Value: 20},
	}
	out, err := ToVec(FromSlice(items))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 10, out[0].Value)
	assert.Equal(t, 20, out[1].Value)
}

func TestFromIterCoordSequentialFilterMap(t *testing.T) {
	ctx := context.Background()
	s := FromIterCoord(ctx, coords(5), func(_ context.Context, c coord.TileCoord) (int, bool, error) {
		if c.X%2 == 0 {
			return int(c.X) * 10, true, nil
		}
		return 0, false, nil
	})
	out, err := ToVec(s)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 0, out[0].Value)
	assert.Equal(t, 20, out[1].Value)
	assert.Equal(t, 40, out[2].Value)
}

func TestFromIterCoordParallelCountsAll(t *testing.T) {
	ctx := context.Background()
	s := FromIterCoordParallel(ctx, coords(50), ConcurrencyLimits{CPUBound: 4}, func(_ context.Context, c coord.TileCoord) (int, bool, error) {
		return int(c.X), true, nil
	})
	count, err := DrainAndCount(s)
	require.NoError(t, err)
	assert.Equal(t, 50, count)
}

func TestFromIterCoordParallelAbortsOnError(t *testing.T) {
	s := FromIterCoordParallel(context.Background(), coords(64), ConcurrencyLimits{CPUBound: 4}, func(_ context.Context, c coord.TileCoord) (int, bool, error) {
		if c.X == 7 {
			return 0, false, errors.New("boom")
		}
		return int(c.X), true, nil
	})
	_, err := ToVec(s)
	require.Error(t, err)
}

func TestMapCoordRewritesCoordinate(t *testing.T) {
	ctx := context.Background()
	s := FromSlice([]Item[int]{{Coord: coord.TileCoord{Level: 3, X: 1, Y: 1}, Value: 1}})
	out, err := ToVec(MapCoord(ctx, s, func(c coord.TileCoord) coord.TileCoord {
		return c.FlipY()
	}))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.NotEqual(t, uint32(1), out[0].Coord.Y)
}

func TestFilterCoordKeepsMatching(t *testing.T) {
	ctx := context.Background()
	s := FromIterCoord(ctx, coords(4), func(_ context.Context, c coord.TileCoord) (int, bool, error) {
		return int(c.X), true, nil
	})
	filtered := FilterCoord(ctx, s, func(_ context.Context, c coord.TileCoord) (bool, error) {
		return c.X >= 2, nil
	})
	out, err := ToVec(filtered)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestMapItemParallelAppliesFn(t *testing.T) {
	ctx := context.Background()
	s := FromIterCoord(ctx, coords(10), func(_ context.Context, c coord.TileCoord) (int, bool, error) {
		return int(c.X), true, nil
	})
	mapped := MapItemParallel(ctx, s, ConcurrencyLimits{CPUBound: 3}, func(_ context.Context, _ coord.TileCoord, v int) (int, error) {
		return v * v, nil
	})
	count, err := DrainAndCount(mapped)
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

func TestForEachBufferedChunks(t *testing.T) {
	ctx := context.Background()
	s := FromIterCoord(ctx, coords(10), func(_ context.Context, c coord.TileCoord) (int, bool, error) {
		return int(c.X), true, nil
	})
	var batches []int
	err := ForEachBuffered(ctx, s, 3, func(_ context.Context, items []Item[int]) error {
		batches = append(batches, len(items))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 3, 1}, batches)
}

func TestUnwrapResultsDropsErrors(t *testing.T) {
	ctx := context.Background()
	items := []Item[int]{
		{Coord: coord.TileCoord{Level: 1, X: 0, Y: 0}, Value: 1},
		{Coord: coord.TileCoord{Level: 1, X: 1, Y: 0}, Err: assertErr{}},
		{Coord: coord.TileCoord{Level: 1, X: 2, Y: 0}, Value: 3},
	}
	out, err := ToVec(UnwrapResults(ctx, FromSlice(items)))
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestDrainAndCountStopsAtFirstError(t *testing.T) {
	items := []Item[int]{
		{Value: 1},
		{Err: assertErr{}},
		{Value: 3},
	}
	count, err := DrainAndCount(FromSlice(items))
	require.Error(t, err)
	assert.Equal(t, 1, count)
}

func TestFromStreamsFlattens(t *testing.T) {
	ctx := context.Background()
	a := FromSlice([]Item[int]{{Value: 1}, {Value: 2}})
	b := FromSlice([]Item[int]{{Value: 3}, {Value: 4}})
	count, err := DrainAndCount(FromStreams(ctx, []Stream[int]{a, b}))
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestEmptyStreamYieldsNothing(t *testing.T) {
	count, err := DrainAndCount(Empty[int]())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
