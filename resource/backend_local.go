package resource

import (
	"errors"
	"sync"

	"go.uber.org/multierr"

	"github.com/wippyai/refptr"
)

var (
	ErrClosed            = errors.New("resource backend closed")
	ErrInvalidHandle     = errors.New("invalid resource handle")
	ErrOutstandingBorrow = errors.New("cannot drop resource with outstanding borrows")
	ErrWeakHandle        = errors.New("operation requires a strong handle")
	ErrStrongHandle      = errors.New("operation requires a weak handle")
	ErrExpired           = errors.New("resource already destroyed")
)

// LocalBackend is an in-memory handle store. Each slot owns either a strong
// (refptr.Shared) or a weak (refptr.Weak) reference. Every reference count
// change happens under mu, which is what makes sharing ownership between
// goroutines safe through a backend.
type LocalBackend struct {
	entries  []entry
	freeList []Handle
	mu       sync.Mutex
	closed   bool
}

type entry struct {
	strong      *refptr.Shared[any]
	weak        *refptr.Weak[any]
	typeID      uint32
	borrowCount uint32
	valid       bool
}

// dropResult describes what releasing one slot did.
type dropResult struct {
	value     any
	typeID    uint32
	useCount  uint
	destroyed bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

func (b *LocalBackend) insertLocked(e entry) Handle {
	e.valid = true
	if len(b.freeList) > 0 {
		handle := b.freeList[len(b.freeList)-1]
		b.freeList = b.freeList[:len(b.freeList)-1]
		b.entries[handle-1] = e
		return handle
	}

	b.entries = append(b.entries, e)
	return Handle(len(b.entries))
}

func (b *LocalBackend) lookupLocked(handle Handle) (*entry, error) {
	if handle == 0 || int(handle) > len(b.entries) {
		return nil, ErrInvalidHandle
	}
	e := &b.entries[handle-1]
	if !e.valid {
		return nil, ErrInvalidHandle
	}
	return e, nil
}

// Create moves s into a new strong slot; s is left empty.
func (b *LocalBackend) Create(typeID uint32, s *refptr.Shared[any]) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	return b.insertLocked(entry{strong: s.Move(), typeID: typeID}), nil
}

// slotInfo is a view of one slot taken under the backend lock.
type slotInfo struct {
	handle   Handle
	typeID   uint32
	useCount uint
	value    any
}

// Dup adds a strong slot sharing ownership with handle.
func (b *LocalBackend) Dup(handle Handle) (Handle, uint, error) {
	si, err := b.dup(handle)
	return si.handle, si.useCount, err
}

func (b *LocalBackend) dup(handle Handle) (slotInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return slotInfo{}, ErrClosed
	}
	e, err := b.lookupLocked(handle)
	if err != nil {
		return slotInfo{}, err
	}
	if e.strong == nil {
		return slotInfo{}, ErrWeakHandle
	}
	c := e.strong.Clone()
	typeID := e.typeID
	h := b.insertLocked(entry{strong: c, typeID: typeID})
	return slotInfo{handle: h, typeID: typeID, useCount: c.UseCount()}, nil
}

// Downgrade adds a weak slot observing handle's object.
func (b *LocalBackend) Downgrade(handle Handle) (Handle, error) {
	si, err := b.downgrade(handle)
	return si.handle, err
}

func (b *LocalBackend) downgrade(handle Handle) (slotInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return slotInfo{}, ErrClosed
	}
	e, err := b.lookupLocked(handle)
	if err != nil {
		return slotInfo{}, err
	}
	if e.strong == nil {
		return slotInfo{}, ErrWeakHandle
	}
	w := e.strong.Weak()
	typeID := e.typeID
	h := b.insertLocked(entry{weak: w, typeID: typeID})
	return slotInfo{handle: h, typeID: typeID, useCount: w.UseCount()}, nil
}

// Upgrade adds a strong slot for the object observed by a weak handle.
func (b *LocalBackend) Upgrade(handle Handle) (Handle, uint, error) {
	si, err := b.upgrade(handle)
	return si.handle, si.useCount, err
}

func (b *LocalBackend) upgrade(handle Handle) (slotInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return slotInfo{}, ErrClosed
	}
	e, err := b.lookupLocked(handle)
	if err != nil {
		return slotInfo{}, err
	}
	if e.weak == nil {
		return slotInfo{}, ErrStrongHandle
	}
	s := e.weak.Lock()
	if s.UseCount() == 0 {
		return slotInfo{}, ErrExpired
	}
	typeID := e.typeID
	h := b.insertLocked(entry{strong: s, typeID: typeID})
	return slotInfo{handle: h, typeID: typeID, useCount: s.UseCount()}, nil
}

// Get retrieves the value behind a strong handle.
func (b *LocalBackend) Get(handle Handle) (any, bool) {
	si, ok := b.get(handle)
	return si.value, ok
}

func (b *LocalBackend) get(handle Handle) (slotInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.lookupLocked(handle)
	if err != nil || e.strong == nil {
		return slotInfo{}, false
	}
	return slotInfo{handle: handle, typeID: e.typeID, value: e.strong.Get()}, true
}

// TypeID returns the type ID for a handle.
func (b *LocalBackend) TypeID(handle Handle) (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.lookupLocked(handle)
	if err != nil {
		return 0, false
	}
	return e.typeID, true
}

// UseCount returns the number of strong owners of the handle's object.
func (b *LocalBackend) UseCount(handle Handle) (uint, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.lookupLocked(handle)
	if err != nil {
		return 0, false
	}
	if e.strong != nil {
		return e.strong.UseCount(), true
	}
	return e.weak.UseCount(), true
}

// Borrow increments the borrow count of a strong handle and returns its value.
func (b *LocalBackend) Borrow(handle Handle) (any, bool) {
	si, ok := b.borrow(handle)
	return si.value, ok
}

func (b *LocalBackend) borrow(handle Handle) (slotInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.lookupLocked(handle)
	if err != nil || e.strong == nil {
		return slotInfo{}, false
	}
	e.borrowCount++
	return slotInfo{handle: handle, typeID: e.typeID, value: e.strong.Get()}, true
}

// ReturnBorrow decrements the borrow count for a handle.
func (b *LocalBackend) ReturnBorrow(handle Handle) bool {
	_, ok := b.returnBorrow(handle)
	return ok
}

func (b *LocalBackend) returnBorrow(handle Handle) (slotInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.lookupLocked(handle)
	if err != nil || e.borrowCount == 0 {
		return slotInfo{}, false
	}
	e.borrowCount--
	return slotInfo{handle: handle, typeID: e.typeID}, true
}

// Drop releases the slot's reference and frees the slot. Deleters run
// while the backend is locked and must not call back into it.
func (b *LocalBackend) Drop(handle Handle) (dropResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.lookupLocked(handle)
	if err != nil {
		return dropResult{}, err
	}
	if e.borrowCount > 0 {
		return dropResult{}, ErrOutstandingBorrow
	}

	old := *e
	// the slot is free before the destructor runs, even if it panics
	*e = entry{}
	b.freeList = append(b.freeList, handle)
	return releaseEntry(old)
}

func releaseEntry(e entry) (dropResult, error) {
	res := dropResult{typeID: e.typeID}
	if e.weak != nil {
		res.useCount = e.weak.UseCount()
		e.weak.Release()
		return res, nil
	}

	res.value = e.strong.Get()
	if n := e.strong.UseCount(); n > 0 {
		res.destroyed = n == 1
		res.useCount = n - 1
	}
	return res, e.strong.Release()
}

// Close releases every slot and rejects further creation.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var errs error
	// weak slots first, so the last strong release frees each block
	for i := range b.entries {
		if e := b.entries[i]; e.valid && e.weak != nil {
			b.entries[i] = entry{}
			releaseEntry(e)
		}
	}
	for i := range b.entries {
		if e := b.entries[i]; e.valid {
			b.entries[i] = entry{}
			_, err := releaseEntry(e)
			errs = multierr.Append(errs, err)
		}
	}

	b.entries = nil
	b.freeList = nil
	return errs
}

// Len returns the number of live slots.
func (b *LocalBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for _, e := range b.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over all live slots; value is nil for weak slots.
// fn runs with the backend locked.
func (b *LocalBackend) Each(fn func(Handle, uint32, any) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.entries {
		if !e.valid {
			continue
		}
		var value any
		if e.strong != nil {
			value = e.strong.Get()
		}
		if !fn(Handle(i+1), e.typeID, value) {
			break
		}
	}
}

// handles returns the live weak and strong handles in slot order.
func (b *LocalBackend) handles() (weak, strong []Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.entries {
		switch {
		case !e.valid:
		case e.weak != nil:
			weak = append(weak, Handle(i+1))
		default:
			strong = append(strong, Handle(i+1))
		}
	}
	return weak, strong
}
