// Package resource provides a handle table over shared-ownership references.
//
// refptr handles are not safe for concurrent use: their counters are plain
// integers. A Table owns one refptr.Shared or refptr.Weak per slot and
// performs every count update under its lock, so integer handles can be passed
// between goroutines freely.
//
// # Handles
//
//	table := resource.NewTable()
//
//	h, err := table.Insert(FileTypeID, file) // use count 1
//	dup, _ := table.Dup(h)                   // use count 2
//	weak, _ := table.Downgrade(h)            // observes, does not own
//
//	table.Remove(h)
//	table.Remove(dup)          // file.Close() runs here
//	_, err = table.Upgrade(weak) // expired
//
// Slots are recycled, so a removed handle may later name a different object.
//
// # Borrowing
//
// Borrow hands out the value without transferring ownership and makes Remove
// fail on that handle until ReturnBorrow is called.
//
// # Type Safety
//
// Each slot records the type ID it was inserted with. GetTyped and the Typed
// view reject handles of other types:
//
//	files := resource.NewTyped[*os.File](table, FileTypeID)
//	f, ok := files.Get(h)
//
// # Observers
//
// Observers receive created, duplicated, downgraded, upgraded, borrowed,
// dropped and destroyed events. They are called after the table's lock is
// released and may call back into the table.
//
// # Destructors
//
// Values are destroyed through refptr's default deleter: Drop or Close is
// called when the last strong handle goes away. Destructors run with the
// table locked and must not call back into it.
package resource
