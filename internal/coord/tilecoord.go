// Package coord implements tile coordinates, bounding boxes, and pyramids for
// a spherical Mercator tile pyramid, following the VersaTiles core data model.
package coord

import (
	"fmt"
	"math"

	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// MaxLevel is the highest zoom level a TileCoord may address.
const MaxLevel = 31

// TileCoord is a (level, x, y) address in a Web Mercator tile pyramid.
// Invariant: x, y < 2^level.
type TileCoord struct {
	Level uint8
	X     uint32
	Y     uint32
}

// NewCoord validates level and returns a TileCoord. It does not require x,y
// to be in range: bounds checking happens at IsValid, since some callers
// build coordinates incrementally before they are known to be well formed.
func NewCoord(level uint8, x, y uint32) (TileCoord, error) {
	if level > MaxLevel {
		return TileCoord{}, xerrors.Errorf("level (%d) must be <= %d", level, MaxLevel)
	}
	return TileCoord{Level: level, X: x, Y: y}, nil
}

// IsValid reports whether x and y are within [0, 2^level).
func (c TileCoord) IsValid() bool {
	if c.Level > MaxLevel {
		return false
	}
	max := uint32(1) << c.Level
	return c.X < max && c.Y < max
}

func (c TileCoord) String() string {
	return fmt.Sprintf("TileCoord(%d, [%d, %d])", c.Level, c.X, c.Y)
}

// AsGeo returns the [lon, lat] in degrees of the tile's upper-left corner.
func (c TileCoord) AsGeo() [2]float64 {
	zoom := math.Exp2(float64(c.Level))
	lon := (float64(c.X)/zoom - 0.5) * 360.0
	lat := (math.Atan(math.Exp(math.Pi*(1.0-2.0*float64(c.Y)/zoom)))/math.Pi - 0.25) * 360.0
	return [2]float64{lon, lat}
}

// ToGeoBBox returns the [west, south, east, north] geographic bounds of the tile.
func (c TileCoord) ToGeoBBox() GeoBBox {
	zoom := math.Exp2(float64(c.Level))
	lon := func(x uint32) float64 { return (float64(x)/zoom - 0.5) * 360.0 }
	lat := func(y uint32) float64 { return (math.Atan(math.Exp(math.Pi*(1.0-2.0*float64(y)/zoom)))/math.Pi - 0.25) * 360.0 }
	return GeoBBox{West: lon(c.X), South: lat(c.Y + 1), East: lon(c.X + 1), North: lat(c.Y)}
}

// FromGeo returns the tile at level z containing (lon, lat).
func FromGeo(lon, lat float64, z uint8) (TileCoord, error) {
	zoom := math.Exp2(float64(z))
	x := (lon/360.0 + 0.5) * zoom
	sinLat := math.Sin(lat * math.Pi / 180.0)
	y := (0.5 - math.Log((1+sinLat)/(1-sinLat))/(4*math.Pi)) * zoom
	max := uint32(1)<<z - 1
	xi := clampCoord(x, max)
	yi := clampCoord(y, max)
	return NewCoord(z, xi, yi)
}

func clampCoord(v float64, max uint32) uint32 {
	if v < 0 {
		return 0
	}
	if v >= float64(max)+1 {
		return max
	}
	return uint32(v)
}

// AsLevel rescales the coordinate to a different zoom level, scaling x/y.
func (c TileCoord) AsLevel(level uint8) TileCoord {
	if level > c.Level {
		scale := uint32(1) << (level - c.Level)
		return TileCoord{Level: level, X: c.X * scale, Y: c.Y * scale}
	}
	if level < c.Level {
		scale := uint32(1) << (c.Level - level)
		return TileCoord{Level: level, X: c.X / scale, Y: c.Y / scale}
	}
	return c
}

// FlipY converts between XYZ and TMS Y addressing at the same level.
func (c TileCoord) FlipY() TileCoord {
	max := uint32(1)<<c.Level - 1
	return TileCoord{Level: c.Level, X: c.X, Y: max - c.Y}
}

// SwapXY exchanges the x and y indices.
func (c TileCoord) SwapXY() TileCoord {
	return TileCoord{Level: c.Level, X: c.Y, Y: c.X}
}

// GetSortIndex returns a level-interleaved total order: all tiles of a level
// sort contiguously, in row-major order, after every tile of a lower level.
func (c TileCoord) GetSortIndex() uint64 {
	size := uint64(1) << c.Level
	offset := (size*size - 1) / 3
	return offset + size*uint64(c.Y) + uint64(c.X)
}

// BlockCoord returns the (block_row, block_col) of the 256x256 block
// containing this tile, i.e. (y/256, x/256).
func (c TileCoord) BlockCoord() (row, col uint32) {
	return c.Y / 256, c.X / 256
}

// Less provides a total order: level, then y, then x.
func Less(a, b TileCoord) bool {
	if a.Level != b.Level {
		return a.Level < b.Level
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}

// GeoBBox is a geographic bounding box in degrees: [west, south, east, north].
type GeoBBox struct {
	West, South, East, North float64
}

// AsArray returns [west, south, east, north].
func (g GeoBBox) AsArray() [4]float64 {
	return [4]float64{g.West, g.South, g.East, g.North}
}
