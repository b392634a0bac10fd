package coord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevelTooHigh(t *testing.T) {
	_, err := NewCoord(32, 0, 0)
	require.Error(t, err)
}

func TestRoundTripGeo(t *testing.T) {
	c, err := NewCoord(5, 3, 4)
	require.NoError(t, err)
	geo := c.AsGeo()
	back, err := FromGeo(geo[0]+0.0001, geo[1]-0.0001, 5)
	require.NoError(t, err)
	assert.Equal(t, c, back)
}

func TestFlipYInvolution(t *testing.T) {
	c, err := NewCoord(5, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, c, c.FlipY().FlipY())
}

func TestGetSortIndex(t *testing.T) {
	c, err := NewCoord(5, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(472), c.GetSortIndex())
}

func TestAsLevel(t *testing.T) {
	c, err := NewCoord(3, 1, 2)
	require.NoError(t, err)
	up := c.AsLevel(5)
	expUp, _ := NewCoord(5, 4, 8)
	assert.Equal(t, expUp, up)

	down := c.AsLevel(2)
	expDown, _ := NewCoord(2, 0, 1)
	assert.Equal(t, expDown, down)

	assert.Equal(t, c, c.AsLevel(3))
}

func TestBlockCoord(t *testing.T) {
	c, err := NewCoord(9, 256, 256)
	require.NoError(t, err)
	row, col := c.BlockCoord()
	assert.Equal(t, uint32(1), row)
	assert.Equal(t, uint32(1), col)
}

func TestHilbertRoundTrip(t *testing.T) {
	cases := []TileCoord{
		{Level: 0, X: 0, Y: 0},
		{Level: 3, X: 2, Y: 5},
		{Level: 10, X: 100, Y: 200},
	}
	for _, c := range cases {
		id := HilbertID(c)
		back := HilbertIDToCoord(id)
		assert.Equal(t, c, back)
	}
}
