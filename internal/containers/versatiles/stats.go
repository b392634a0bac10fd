package versatiles

import "github.com/dustin/go-humanize"

// Stats summarises a completed write, the figures a CLI built on top of
// this library would print after a conversion.
type Stats struct {
	Blocks    int
	Tiles     uint64
	BytesUsed uint64 // total file size
	TileBytes uint64 // bytes spent on deduplicated tile payloads
}

// String renders a human-readable one-line summary.
func (s Stats) String() string {
	return humanize.Comma(int64(s.Tiles)) + " tiles in " + humanize.Comma(int64(s.Blocks)) +
		" blocks, " + humanize.Bytes(s.BytesUsed) + " total (" + humanize.Bytes(s.TileBytes) + " tile data)"
}
