// Package refptr provides reference-counted shared ownership for Go values
// whose release must happen at a known moment: files, pooled buffers,
// sockets, anything with a Drop or Close.
//
// The garbage collector decides when memory goes away. refptr decides when
// an object is destroyed: exactly once, when its last owner lets go.
//
// # Architecture Overview
//
//	refptr/          Shared and Weak handles, control blocks, Make
//	├── alloc/       Allocators: statistics, byte budgets, leak tracking
//	├── resource/    Integer handle table over shared ownership (dup/close)
//	├── script/      YAML lifecycle scenarios and their runner
//	├── errors/      Structured error types
//	└── cmd/refdemo  CLI and TUI driving scenarios
//
// # Quick Start
//
// Take ownership of an existing pointer:
//
//	f, _ := os.Open("data.bin")
//	h, err := refptr.New(f, nil) // DefaultDelete calls f.Close
//	if err != nil {
//	    f.Close() // ownership stays with the caller on failure
//	    return err
//	}
//	defer h.Release()
//
//	h2 := h.Clone()       // h.UseCount() == 2
//	err = h2.Release()    // h.UseCount() == 1, file still open
//
// Or construct in place with a single allocation:
//
//	h, err := refptr.Make(func(c *Conn) error {
//	    return c.Dial(addr)
//	})
//
// # Control Blocks
//
// Every non-empty handle points at a control block holding two counters.
// The shared count gates destruction of the object; the weak count gates
// release of the block itself. Every Shared handle contributes to both,
// every Weak handle to the weak count only.
//
// New allocates a pointer block storing the pointer and its Deleter.
// Make allocates a value block embedding the object, so the counters and
// the object share one allocation.
//
// # Weak Handles
//
//	w := h.Weak()
//	if s := w.Lock(); s.Valid() {
//	    defer s.Release()
//	    use(s.Get())
//	}
//
// # Conversions
//
// Convert changes the exposed pointer type while sharing ownership, for
// upcasts to interfaces and checked downcasts. Alias shares ownership of
// one object while exposing another pointer, typically a field of it.
//
// # Thread Safety
//
// Counters are plain integers. Handles that share a control block must be
// used from one goroutine at a time; there is no atomic check-and-increment
// in Lock. Share ownership across goroutines through resource.Table, which
// serializes all counter updates under its mutex. Allocators are called from
// any goroutine and must be safe for concurrent use.
//
// # Allocation
//
// Control blocks are admitted by an Allocator (see WithAllocator). The
// default never fails; alloc.Limited enforces a byte budget and
// alloc.Tracker reports blocks that were never released.
package refptr
