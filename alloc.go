package refptr

import (
	"sync/atomic"
)

// BlockKind identifies the control block variant behind a handle.
type BlockKind uint8

const (
	// BlockPointer owns a pointer value and the deleter that frees it.
	BlockPointer BlockKind = iota
	// BlockValue embeds the object inside the block allocation.
	BlockValue
)

func (k BlockKind) String() string {
	switch k {
	case BlockPointer:
		return "pointer"
	case BlockValue:
		return "value"
	default:
		return "unknown"
	}
}

// Layout describes a single control block allocation.
type Layout struct {
	Size  uintptr
	Align uintptr
	Kind  BlockKind
}

// AllocID identifies one live allocation. Zero is never a valid id.
type AllocID uint64

// Allocator admits and releases control block allocations.
// Alloc is called once before a block is used; Free is called exactly once
// with the same id and layout when the block's weak count reaches zero.
// Implementations must be safe for concurrent use.
type Allocator interface {
	Alloc(l Layout) (AllocID, error)
	Free(id AllocID, l Layout)
}

type heapAllocator struct {
	next atomic.Uint64
}

func (h *heapAllocator) Alloc(Layout) (AllocID, error) {
	return AllocID(h.next.Add(1)), nil
}

func (h *heapAllocator) Free(AllocID, Layout) {}

var defaultAllocator Allocator = &heapAllocator{}

// DefaultAllocator returns the allocator used when no WithAllocator option is given.
// It never fails and keeps no statistics.
func DefaultAllocator() Allocator {
	return defaultAllocator
}
