package alloc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/docker/go-units"

	"github.com/wippyai/refptr"
)

// ErrBudgetExceeded is returned by Limited when an allocation would exceed its budget.
var ErrBudgetExceeded = errors.New("allocation budget exceeded")

// Limited refuses allocations once the live bytes would exceed a budget.
type Limited struct {
	inner  refptr.Allocator
	budget uint64
	used   uint64
	mu     sync.Mutex
}

// NewLimited wraps inner with a byte budget; a nil inner uses refptr.DefaultAllocator.
func NewLimited(inner refptr.Allocator, budget uint64) *Limited {
	if inner == nil {
		inner = refptr.DefaultAllocator()
	}
	return &Limited{inner: inner, budget: budget}
}

// ParseBudget parses a human-readable byte size such as "64KiB", "4k" or "1mb".
// Units are binary, so "4k" is 4096 bytes.
func ParseBudget(s string) (uint64, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative budget %q", s)
	}
	return uint64(n), nil
}

// Alloc implements refptr.Allocator.
func (a *Limited) Alloc(l refptr.Layout) (refptr.AllocID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := uint64(l.Size)
	if a.used+size > a.budget {
		return 0, fmt.Errorf("%w: need %s, %s of %s in use", ErrBudgetExceeded,
			units.BytesSize(float64(size)),
			units.BytesSize(float64(a.used)),
			units.BytesSize(float64(a.budget)))
	}
	id, err := a.inner.Alloc(l)
	if err != nil {
		return 0, err
	}
	a.used += size
	return id, nil
}

// Free implements refptr.Allocator.
func (a *Limited) Free(id refptr.AllocID, l refptr.Layout) {
	a.mu.Lock()
	a.used -= uint64(l.Size)
	a.mu.Unlock()

	a.inner.Free(id, l)
}

// Used returns the bytes currently admitted.
func (a *Limited) Used() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Budget returns the configured byte budget.
func (a *Limited) Budget() uint64 {
	return a.budget
}
