package alloc

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/btree"

	"github.com/wippyai/refptr"
)

// Record describes one live control block.
type Record struct {
	ID     refptr.AllocID
	Layout refptr.Layout
}

// LeakError lists the blocks still live when Leaks was called.
type LeakError struct {
	Records []Record
}

func (e *LeakError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d control block(s) never released:", len(e.Records))
	for _, r := range e.Records {
		fmt.Fprintf(&b, "\n  #%d %s block, %d bytes", r.ID, r.Layout.Kind, r.Layout.Size)
	}
	return b.String()
}

// Tracker remembers every live block, ordered by allocation id.
type Tracker struct {
	inner refptr.Allocator
	live  *btree.BTreeG[Record]
	mu    sync.Mutex
}

// NewTracker wraps inner; a nil inner uses refptr.DefaultAllocator.
func NewTracker(inner refptr.Allocator) *Tracker {
	if inner == nil {
		inner = refptr.DefaultAllocator()
	}
	return &Tracker{
		inner: inner,
		live: btree.NewG[Record](16, func(a, b Record) bool {
			return a.ID < b.ID
		}),
	}
}

// Alloc implements refptr.Allocator.
func (t *Tracker) Alloc(l refptr.Layout) (refptr.AllocID, error) {
	id, err := t.inner.Alloc(l)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.live.ReplaceOrInsert(Record{ID: id, Layout: l}); dup {
		panic(fmt.Sprintf("alloc: inner allocator reused live id %d", id))
	}
	return id, nil
}

// Free implements refptr.Allocator. Freeing an id that is not live panics.
func (t *Tracker) Free(id refptr.AllocID, l refptr.Layout) {
	t.mu.Lock()
	_, ok := t.live.Delete(Record{ID: id})
	t.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("alloc: free of untracked block %d", id))
	}

	t.inner.Free(id, l)
}

// Len returns the number of live blocks.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live.Len()
}

// Live returns the live blocks in allocation order.
func (t *Tracker) Live() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, 0, t.live.Len())
	t.live.Ascend(func(r Record) bool {
		out = append(out, r)
		return true
	})
	return out
}

// Leaks returns a *LeakError when blocks are still live, nil otherwise.
func (t *Tracker) Leaks() error {
	live := t.Live()
	if len(live) == 0 {
		return nil
	}
	return &LeakError{Records: live}
}
