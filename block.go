package refptr

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/refptr/errors"
)

// controlBlock tracks the owners of one managed object and knows how to
// destroy it without the caller seeing the object's concrete type.
type controlBlock interface {
	base() *blockBase
	destroyObject() error
}

// blockBase holds the counters shared by every control block variant.
// Every live Shared handle contributes one unit to both counts, every live
// Weak handle one unit to weak only.
type blockBase struct {
	alloc  Allocator
	layout Layout
	id     AllocID
	shared uint
	weak   uint
	freed  bool
}

func (b *blockBase) base() *blockBase { return b }

func (b *blockBase) init(a Allocator, l Layout) error {
	id, err := a.Alloc(l)
	if err != nil {
		if ce := Logger().Check(zap.DebugLevel, "control block allocation failed"); ce != nil {
			ce.Write(
				zap.Stringer("kind", l.Kind),
				zap.Uintptr("size", l.Size),
				zap.Error(err))
		}
		return errors.AllocationFailed(errors.PhaseAlloc, l.Size, l.Align, err)
	}
	b.alloc = a
	b.layout = l
	b.id = id
	b.shared = 1
	b.weak = 1
	if ce := Logger().Check(zap.DebugLevel, "control block allocated"); ce != nil {
		ce.Write(
			zap.Uint64("block", uint64(id)),
			zap.Stringer("kind", l.Kind),
			zap.Uintptr("size", l.Size))
	}
	return nil
}

func (b *blockBase) addShared() {
	b.shared++
	b.weak++
}

func (b *blockBase) removeShared() {
	if b.shared == 0 || b.weak == 0 {
		panic("refptr: shared count underflow")
	}
	b.shared--
	b.weak--
}

func (b *blockBase) addWeak() {
	b.weak++
}

func (b *blockBase) removeWeak() {
	if b.weak == 0 {
		panic("refptr: weak count underflow")
	}
	b.weak--
}

func (b *blockBase) free() {
	if b.freed {
		panic("refptr: control block freed twice")
	}
	b.freed = true
	b.alloc.Free(b.id, b.layout)
	if ce := Logger().Check(zap.DebugLevel, "control block freed"); ce != nil {
		ce.Write(
			zap.Uint64("block", uint64(b.id)),
			zap.Stringer("kind", b.layout.Kind))
	}
}

// releaseShared drops one shared reference from cb. When it was the last one
// the object is destroyed while the block is pinned by an extra weak unit, so
// weak handles released from inside the destructor cannot free it early.
func releaseShared(cb controlBlock) error {
	if cb == nil {
		return nil
	}
	b := cb.base()
	b.removeShared()
	if b.shared > 0 {
		return nil
	}

	b.weak++
	defer func() {
		b.weak--
		if b.weak == 0 {
			b.free()
		}
	}()
	if ce := Logger().Check(zap.DebugLevel, "destroying object"); ce != nil {
		ce.Write(zap.Uint64("block", uint64(b.id)))
	}
	return cb.destroyObject()
}

func releaseWeak(cb controlBlock) {
	if cb == nil {
		return
	}
	b := cb.base()
	b.removeWeak()
	if b.weak == 0 {
		b.free()
	}
}

// pointerBlock owns a pointer value together with the deleter that frees it.
type pointerBlock[P any] struct {
	blockBase
	ptr     P
	deleter Deleter[P]
	live    bool
}

func newPointerBlock[P any](p P, d Deleter[P], a Allocator) (*pointerBlock[P], error) {
	b := &pointerBlock[P]{ptr: p, deleter: d, live: true}
	l := Layout{
		Size:  unsafe.Sizeof(*b),
		Align: unsafe.Alignof(*b),
		Kind:  BlockPointer,
	}
	if err := b.init(a, l); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *pointerBlock[P]) destroyObject() error {
	if !b.live {
		return nil
	}
	p, d := b.ptr, b.deleter
	var zero P
	b.ptr = zero
	b.deleter = nil
	b.live = false
	if d == nil {
		return nil
	}
	return d(p)
}

// valueBlock embeds the managed object, so one allocation serves both the
// counters and the object storage.
type valueBlock[T any] struct {
	blockBase
	value T
	live  bool
}

func newValueBlock[T any](a Allocator) (*valueBlock[T], error) {
	b := &valueBlock[T]{}
	l := Layout{
		Size:  unsafe.Sizeof(*b),
		Align: unsafe.Alignof(*b),
		Kind:  BlockValue,
	}
	if err := b.init(a, l); err != nil {
		return nil, err
	}
	return b, nil
}

// destroyObject runs the in-place destructor and zeroes the storage.
// The storage itself goes back to the allocator only when the block is freed.
func (b *valueBlock[T]) destroyObject() error {
	if !b.live {
		return nil
	}
	b.live = false
	defer func() {
		var zero T
		b.value = zero
	}()
	return destruct(&b.value)
}
