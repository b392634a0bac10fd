package coord

// Hilbert curve indexing, adapted from the PMTiles tile-id scheme: a total
// order over the whole pyramid (all of level z before level z+1, Hilbert
// order within a level) used by Traversal's PMTilesHilbert ordering and by
// the PMTiles container reader/writer.

func hilbertRotate(n uint64, x, y *uint64, rx, ry uint64) {
	if ry == 0 {
		if rx == 1 {
			*x = n - 1 - *x
			*y = n - 1 - *y
		}
		*x, *y = *y, *x
	}
}

// HilbertID returns the total-order Hilbert index of coord across the whole
// pyramid (tiles of lower zoom levels sort first).
func HilbertID(c TileCoord) uint64 {
	var acc uint64
	for tz := uint8(0); tz < c.Level; tz++ {
		acc += (uint64(1) << tz) * (uint64(1) << tz)
	}
	n := uint64(1) << c.Level
	tx, ty := uint64(c.X), uint64(c.Y)
	var d uint64
	for s := n / 2; s > 0; s /= 2 {
		var rx, ry uint64
		if tx&s > 0 {
			rx = 1
		}
		if ty&s > 0 {
			ry = 1
		}
		d += s * s * ((3 * rx) ^ ry)
		hilbertRotate(s, &tx, &ty, rx, ry)
	}
	return acc + d
}

// HilbertIDToCoord is the inverse of HilbertID.
func HilbertIDToCoord(id uint64) TileCoord {
	var acc uint64
	var z uint8
	for {
		numTiles := (uint64(1) << z) * (uint64(1) << z)
		if acc+numTiles > id {
			return hilbertOnLevel(z, id-acc)
		}
		acc += numTiles
		z++
	}
}

func hilbertOnLevel(z uint8, pos uint64) TileCoord {
	n := uint64(1) << z
	t := pos
	var tx, ty uint64
	for s := uint64(1); s < n; s *= 2 {
		rx := uint64(1) & (t / 2)
		ry := uint64(1) & (t ^ rx)
		hilbertRotate(s, &tx, &ty, rx, ry)
		tx += s * rx
		ty += s * ry
		t /= 4
	}
	return TileCoord{Level: z, X: uint32(tx), Y: uint32(ty)}
}
