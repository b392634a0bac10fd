package coord

import (
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// TileBBox is an inclusive rectangular region of tile coordinates at one
// zoom level. An empty bbox carries an internal empty flag (see NewEmpty);
// IsEmpty also treats XMax < XMin or YMax < YMin as empty.
type TileBBox struct {
	Level      uint8
	XMin, YMin uint32
	XMax, YMax uint32
	empty      bool
}

// NewEmpty returns the empty sentinel bbox for a level.
func NewEmpty(level uint8) TileBBox {
	return TileBBox{Level: level, empty: true}
}

// New builds an inclusive bbox, validating level and bounds.
func New(level uint8, xMin, yMin, xMax, yMax uint32) (TileBBox, error) {
	if level > MaxLevel {
		return TileBBox{}, xerrors.Errorf("level (%d) must be <= %d", level, MaxLevel)
	}
	max := uint32(1)<<level - 1
	if xMax > max || yMax > max {
		return TileBBox{}, xerrors.Errorf("bbox [%d,%d,%d,%d] exceeds level %d bounds (max=%d)", xMin, yMin, xMax, yMax, level, max)
	}
	if xMax < xMin || yMax < yMin {
		return NewEmpty(level), nil
	}
	return TileBBox{Level: level, XMin: xMin, YMin: yMin, XMax: xMax, YMax: yMax}, nil
}

// IsEmpty reports whether the bbox contains no tiles.
func (b TileBBox) IsEmpty() bool {
	return b.empty || b.XMax < b.XMin || b.YMax < b.YMin
}

// Width returns the tile count along x.
func (b TileBBox) Width() uint32 {
	if b.IsEmpty() {
		return 0
	}
	return b.XMax - b.XMin + 1
}

// Height returns the tile count along y.
func (b TileBBox) Height() uint32 {
	if b.IsEmpty() {
		return 0
	}
	return b.YMax - b.YMin + 1
}

// CountTiles returns Width*Height (0 if empty).
func (b TileBBox) CountTiles() uint64 {
	return uint64(b.Width()) * uint64(b.Height())
}

// Contains reports whether coord lies within the bbox at the same level.
func (b TileBBox) Contains(c TileCoord) bool {
	if b.IsEmpty() || c.Level != b.Level {
		return false
	}
	return c.X >= b.XMin && c.X <= b.XMax && c.Y >= b.YMin && c.Y <= b.YMax
}

// IndexOf returns the row-major index of coord within the bbox.
func (b TileBBox) IndexOf(c TileCoord) (uint64, error) {
	if !b.Contains(c) {
		return 0, xerrors.Errorf("coord %v not contained in bbox %v", c, b)
	}
	width := uint64(b.Width())
	return uint64(c.Y-b.YMin)*width + uint64(c.X-b.XMin), nil
}

// IncludeCoord grows the bbox (or initializes it from empty) to include coord.
func (b *TileBBox) IncludeCoord(c TileCoord) error {
	if c.Level != b.Level {
		return xerrors.Errorf("coord level %d does not match bbox level %d", c.Level, b.Level)
	}
	if b.IsEmpty() {
		b.XMin, b.XMax = c.X, c.X
		b.YMin, b.YMax = c.Y, c.Y
		b.empty = false
		return nil
	}
	if c.X < b.XMin {
		b.XMin = c.X
	}
	if c.X > b.XMax {
		b.XMax = c.X
	}
	if c.Y < b.YMin {
		b.YMin = c.Y
	}
	if c.Y > b.YMax {
		b.YMax = c.Y
	}
	return nil
}

// Intersect returns the intersection of two same-level bboxes.
func Intersect(a, b TileBBox) TileBBox {
	if a.IsEmpty() || b.IsEmpty() || a.Level != b.Level {
		return NewEmpty(a.Level)
	}
	xMin, yMin := max32(a.XMin, b.XMin), max32(a.YMin, b.YMin)
	xMax, yMax := min32(a.XMax, b.XMax), min32(a.YMax, b.YMax)
	if xMax < xMin || yMax < yMin {
		return NewEmpty(a.Level)
	}
	return TileBBox{Level: a.Level, XMin: xMin, YMin: yMin, XMax: xMax, YMax: yMax}
}

// Union returns the smallest bbox covering both inputs (empty inputs are identities).
func Union(a, b TileBBox) TileBBox {
	if a.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return a
	}
	return TileBBox{
		Level: a.Level,
		XMin:  min32(a.XMin, b.XMin), YMin: min32(a.YMin, b.YMin),
		XMax: max32(a.XMax, b.XMax), YMax: max32(a.YMax, b.YMax),
	}
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// IterCoords calls fn for every coordinate in row-major order (y outer, x inner).
func (b TileBBox) IterCoords(fn func(TileCoord) error) error {
	if b.IsEmpty() {
		return nil
	}
	for y := b.YMin; y <= b.YMax; y++ {
		for x := b.XMin; x <= b.XMax; x++ {
			if err := fn(TileCoord{Level: b.Level, X: x, Y: y}); err != nil {
				return err
			}
			if x == b.XMax {
				break
			}
		}
		if y == b.YMax {
			break
		}
	}
	return nil
}

// IntoCoords materializes IterCoords into a slice, for callers needing an
// iterator value rather than a callback (e.g. parallel stream constructors).
func (b TileBBox) IntoCoords() []TileCoord {
	coords := make([]TileCoord, 0, b.CountTiles())
	_ = b.IterCoords(func(c TileCoord) error {
		coords = append(coords, c)
		return nil
	})
	return coords
}

// IterBBoxGrid splits the bbox into a k x k grid of sub-bboxes, row-major,
// skipping empty cells. Used to partition a request into block-aligned chunks.
func (b TileBBox) IterBBoxGrid(k uint32) []TileBBox {
	if b.IsEmpty() || k == 0 {
		return nil
	}
	width, height := b.Width(), b.Height()
	out := make([]TileBBox, 0, k*k)
	stepX := (width + k - 1) / k
	stepY := (height + k - 1) / k
	if stepX == 0 {
		stepX = 1
	}
	if stepY == 0 {
		stepY = 1
	}
	for y := b.YMin; y <= b.YMax; y += stepY {
		for x := b.XMin; x <= b.XMax; x += stepX {
			xMax := min32(x+stepX-1, b.XMax)
			yMax := min32(y+stepY-1, b.YMax)
			out = append(out, TileBBox{Level: b.Level, XMin: x, YMin: y, XMax: xMax, YMax: yMax})
			if x+stepX > b.XMax {
				break
			}
		}
		if y+stepY > b.YMax {
			break
		}
	}
	return out
}

// LevelUp scales the bbox to the next zoom level (coordinates doubled, bbox grows).
func (b TileBBox) LevelUp() (TileBBox, error) {
	if b.IsEmpty() {
		return NewEmpty(b.Level + 1), nil
	}
	return New(b.Level+1, b.XMin*2, b.YMin*2, b.XMax*2+1, b.YMax*2+1)
}

// LevelDown scales the bbox to the parent zoom level (coordinates halved).
func (b TileBBox) LevelDown() (TileBBox, error) {
	if b.Level == 0 {
		return TileBBox{}, xerrors.Errorf("cannot go below level 0")
	}
	if b.IsEmpty() {
		return NewEmpty(b.Level - 1), nil
	}
	return New(b.Level-1, b.XMin/2, b.YMin/2, b.XMax/2, b.YMax/2)
}

// Quadrants returns the (up to 4) child bboxes one level down covering this bbox.
func (b TileBBox) Quadrants() ([]TileBBox, error) {
	if b.IsEmpty() {
		return nil, nil
	}
	down, err := b.LevelUp()
	if err != nil {
		return nil, err
	}
	midX := (down.XMin + down.XMax) / 2
	midY := (down.YMin + down.YMax) / 2
	var out []TileBBox
	add := func(xMin, yMin, xMax, yMax uint32) error {
		if xMin > xMax || yMin > yMax {
			return nil
		}
		q, err := New(down.Level, xMin, yMin, xMax, yMax)
		if err != nil {
			return err
		}
		if !q.IsEmpty() {
			out = append(out, q)
		}
		return nil
	}
	if err := add(down.XMin, down.YMin, midX, midY); err != nil {
		return nil, err
	}
	if err := add(midX+1, down.YMin, down.XMax, midY); err != nil {
		return nil, err
	}
	if err := add(down.XMin, midY+1, midX, down.YMax); err != nil {
		return nil, err
	}
	if err := add(midX+1, midY+1, down.XMax, down.YMax); err != nil {
		return nil, err
	}
	return out, nil
}

// GetGeoBBox returns the geographic bounds covering this tile bbox.
func (b TileBBox) GetGeoBBox() GeoBBox {
	if b.IsEmpty() {
		return GeoBBox{}
	}
	topLeft := TileCoord{Level: b.Level, X: b.XMin, Y: b.YMin}.ToGeoBBox()
	bottomRight := TileCoord{Level: b.Level, X: b.XMax, Y: b.YMax}.ToGeoBBox()
	return GeoBBox{West: topLeft.West, North: topLeft.North, East: bottomRight.East, South: bottomRight.South}
}
