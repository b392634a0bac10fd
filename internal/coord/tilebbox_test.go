package coord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntersectCommutative(t *testing.T) {
	a, _ := New(4, 0, 0, 5, 5)
	b, _ := New(4, 3, 3, 10, 10)
	assert.Equal(t, Intersect(a, b), Intersect(b, a))
}

func TestUnionCommutative(t *testing.T) {
	a, _ := New(4, 0, 0, 5, 5)
	b, _ := New(4, 3, 3, 10, 10)
	assert.Equal(t, Union(a, b), Union(b, a))
}

func TestIntersectWithFull(t *testing.T) {
	full, _ := New(4, 0, 0, 15, 15)
	b, _ := New(4, 3, 3, 10, 10)
	assert.Equal(t, b, Intersect(full, b))
}

func TestUnionWithEmpty(t *testing.T) {
	empty := NewEmpty(4)
	b, _ := New(4, 3, 3, 10, 10)
	assert.Equal(t, b, Union(empty, b))
}

func TestIterCoordsRowMajor(t *testing.T) {
	b, err := New(2, 0, 0, 1, 1)
	require.NoError(t, err)
	var got []TileCoord
	err = b.IterCoords(func(c TileCoord) error {
		got = append(got, c)
		return nil
	})
	require.NoError(t, err)
	want := []TileCoord{
		{Level: 2, X: 0, Y: 0}, {Level: 2, X: 1, Y: 0},
		{Level: 2, X: 0, Y: 1}, {Level: 2, X: 1, Y: 1},
	}
	assert.Equal(t, want, got)
}

func TestEmptyBBoxDoesNotIterate(t *testing.T) {
	b := NewEmpty(4)
	count := 0
	_ = b.IterCoords(func(c TileCoord) error {
		count++
		return nil
	})
	assert.Equal(t, 0, count)
}

func TestIndexOf(t *testing.T) {
	b, _ := New(4, 2, 2, 5, 5)
	idx, err := b.IndexOf(TileCoord{Level: 4, X: 3, Y: 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), idx) // row 1, col 1, width 4 -> 1*4+1
}

func TestSingleTileBlockCollapse(t *testing.T) {
	b := NewEmpty(9)
	require.NoError(t, b.IncludeCoord(TileCoord{Level: 9, X: 256, Y: 256}))
	assert.Equal(t, uint64(1), b.CountTiles())
}
