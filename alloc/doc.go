// Package alloc provides refptr.Allocator implementations.
//
// Allocators only admit and account for control block allocations; the
// memory itself is managed by the Go runtime. They compose by wrapping:
//
//	tracker := alloc.NewTracker(nil)
//	limited := alloc.NewLimited(tracker, 64<<10)
//	stats := alloc.NewCounting(limited)
//
//	h, err := refptr.New(conn, nil, refptr.WithAllocator(stats))
//
// Counting records statistics, Limited refuses allocations beyond a byte
// budget (which surfaces as an allocation error from refptr.New and
// refptr.Make), and Tracker remembers every live block so leaks can be
// reported at shutdown. All allocators here are safe for concurrent use.
package alloc
