package tilecache

import (
	"sync"

	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/versatiles-org/versatiles-go/internal/coord"
)

// PresenceSet is a thread-safe "known absent / known present" bitmap keyed
// by a tile's Hilbert-ordered ID. raster_overview uses one as its "known
// absent" set, a cheap existence check ahead of its cache lookups.
type PresenceSet struct {
	mu sync.Mutex
	bm *roaring64.Bitmap
}

// NewPresenceSet returns an empty presence set.
func NewPresenceSet() *PresenceSet {
	return &PresenceSet{bm: roaring64.New()}
}

// Add marks c as present.
func (p *PresenceSet) Add(c coord.TileCoord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bm.Add(coord.HilbertID(c))
}

// Contains reports whether c was previously marked present.
func (p *PresenceSet) Contains(c coord.TileCoord) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bm.Contains(coord.HilbertID(c))
}

// Cardinality returns the number of coordinates marked present.
func (p *PresenceSet) Cardinality() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bm.GetCardinality()
}

// Remove unmarks c.
func (p *PresenceSet) Remove(c coord.TileCoord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bm.Remove(coord.HilbertID(c))
}
