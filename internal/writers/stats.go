package writers

import "github.com/dustin/go-humanize"

// Stats summarizes one writer run, mirroring the accounting the VersaTiles
// writer keeps (internal/containers/versatiles.Stats) for these simpler
// container shapes that have no block concept of their own.
type Stats struct {
	Tiles     uint64
	TileBytes uint64
}

func (s Stats) String() string {
	return humanize.Comma(int64(s.Tiles)) + " tiles, " + humanize.Bytes(s.TileBytes) + " of tile payload"
}
