package alloc

import (
	"sync"

	"github.com/wippyai/refptr"
)

// Stats is a snapshot of allocation activity.
type Stats struct {
	Allocs     uint64
	Frees      uint64
	Failures   uint64
	LiveBlocks uint64
	LiveBytes  uint64
	PeakBytes  uint64
	LiveByKind map[refptr.BlockKind]uint64
}

// Counting forwards to an inner allocator and keeps statistics.
type Counting struct {
	inner refptr.Allocator
	stats Stats
	mu    sync.Mutex
}

// NewCounting wraps inner; a nil inner uses refptr.DefaultAllocator.
func NewCounting(inner refptr.Allocator) *Counting {
	if inner == nil {
		inner = refptr.DefaultAllocator()
	}
	return &Counting{
		inner: inner,
		stats: Stats{LiveByKind: make(map[refptr.BlockKind]uint64)},
	}
}

// Alloc implements refptr.Allocator.
func (c *Counting) Alloc(l refptr.Layout) (refptr.AllocID, error) {
	id, err := c.inner.Alloc(l)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.stats.Failures++
		return 0, err
	}
	c.stats.Allocs++
	c.stats.LiveBlocks++
	c.stats.LiveBytes += uint64(l.Size)
	c.stats.LiveByKind[l.Kind]++
	if c.stats.LiveBytes > c.stats.PeakBytes {
		c.stats.PeakBytes = c.stats.LiveBytes
	}
	return id, nil
}

// Free implements refptr.Allocator.
func (c *Counting) Free(id refptr.AllocID, l refptr.Layout) {
	c.mu.Lock()
	c.stats.Frees++
	c.stats.LiveBlocks--
	c.stats.LiveBytes -= uint64(l.Size)
	c.stats.LiveByKind[l.Kind]--
	c.mu.Unlock()

	c.inner.Free(id, l)
}

// Stats returns a copy of the current statistics.
func (c *Counting) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.LiveByKind = make(map[refptr.BlockKind]uint64, len(c.stats.LiveByKind))
	for k, v := range c.stats.LiveByKind {
		s.LiveByKind[k] = v
	}
	return s
}
