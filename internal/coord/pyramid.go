package coord

// BBoxPyramid holds one TileBBox per zoom level (0..=MaxLevel).
type BBoxPyramid struct {
	levels [MaxLevel + 1]TileBBox
	set    [MaxLevel + 1]bool
}

// NewPyramid returns an empty pyramid.
func NewPyramid() *BBoxPyramid {
	p := &BBoxPyramid{}
	for z := 0; z <= MaxLevel; z++ {
		p.levels[z] = NewEmpty(uint8(z))
	}
	return p
}

// IncludeBBox merges bbox into its level's entry.
func (p *BBoxPyramid) IncludeBBox(b TileBBox) {
	if b.IsEmpty() {
		return
	}
	p.levels[b.Level] = Union(p.levels[b.Level], b)
	p.set[b.Level] = true
}

// IncludeCoord merges a single coordinate.
func (p *BBoxPyramid) IncludeCoord(c TileCoord) {
	b := p.levels[c.Level]
	if err := b.IncludeCoord(c); err == nil {
		p.levels[c.Level] = b
		p.set[c.Level] = true
	}
}

// IncludeGeoBBox computes, for every zoom level in [zMin, zMax], the tile bbox
// covering geo and merges it in.
func (p *BBoxPyramid) IncludeGeoBBox(geo GeoBBox, zMin, zMax uint8) error {
	for z := zMin; z <= zMax; z++ {
		min, err := FromGeo(geo.West, geo.North, z)
		if err != nil {
			return err
		}
		max, err := FromGeo(geo.East, geo.South, z)
		if err != nil {
			return err
		}
		b, err := New(z, min.X, min.Y, max.X, max.Y)
		if err != nil {
			return err
		}
		p.IncludeBBox(b)
		if z == MaxLevel {
			break
		}
	}
	return nil
}

// Intersect intersects every level of p with q, returning a new pyramid.
func (p *BBoxPyramid) Intersect(q *BBoxPyramid) *BBoxPyramid {
	out := NewPyramid()
	for z := 0; z <= MaxLevel; z++ {
		out.levels[z] = Intersect(p.levels[z], q.levels[z])
		out.set[z] = !out.levels[z].IsEmpty()
	}
	return out
}

// GetLevelBBox returns the bbox stored for level z.
func (p *BBoxPyramid) GetLevelBBox(z uint8) TileBBox {
	return p.levels[z]
}

// GetLevelMin returns the lowest zoom level with a non-empty bbox, and ok=false
// if the pyramid is entirely empty.
func (p *BBoxPyramid) GetLevelMin() (uint8, bool) {
	for z := 0; z <= MaxLevel; z++ {
		if p.set[z] {
			return uint8(z), true
		}
	}
	return 0, false
}

// GetLevelMax returns the highest zoom level with a non-empty bbox.
func (p *BBoxPyramid) GetLevelMax() (uint8, bool) {
	for z := MaxLevel; z >= 0; z-- {
		if p.set[z] {
			return uint8(z), true
		}
		if z == 0 {
			break
		}
	}
	return 0, false
}

// CountTiles sums CountTiles across all levels.
func (p *BBoxPyramid) CountTiles() uint64 {
	var total uint64
	for z := 0; z <= MaxLevel; z++ {
		total += p.levels[z].CountTiles()
	}
	return total
}

// GetGeoBBox returns the union geographic bbox across all levels.
func (p *BBoxPyramid) GetGeoBBox() GeoBBox {
	var out GeoBBox
	first := true
	for z := 0; z <= MaxLevel; z++ {
		if !p.set[z] {
			continue
		}
		g := p.levels[z].GetGeoBBox()
		if first {
			out = g
			first = false
			continue
		}
		out.West = minf(out.West, g.West)
		out.South = minf(out.South, g.South)
		out.East = maxf(out.East, g.East)
		out.North = maxf(out.North, g.North)
	}
	return out
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
