package refptr

import (
	"fmt"

	"go.uber.org/multierr"
)

// noCopy lets go vet flag Shared and Weak values copied by assignment;
// handles must be duplicated with Clone so the counts stay exact.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Shared is an owning reference to an object managed by a control block.
//
// P is the pointer (or interface) type exposed by Get. The zero value is an
// empty handle. Handles are used through pointers: Clone, Move and the
// Assign family keep the counts in step, a struct copy does not.
type Shared[P any] struct {
	_   noCopy
	ptr P
	cb  controlBlock
}

// Null returns an empty handle.
func Null[P any]() *Shared[P] {
	return &Shared[P]{}
}

// New takes ownership of p and allocates a pointer control block for it.
// A nil deleter selects DefaultDelete.
//
// If the control block cannot be allocated, New returns an allocation error
// and no handle. Ownership of p stays with the caller unless DeleteOnFailure
// is given, in which case the deleter has already run.
func New[P any](p P, d Deleter[P], opts ...Option) (*Shared[P], error) {
	s := &Shared[P]{}
	if err := s.own(p, d, buildConfig(opts)); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Shared[P]) own(p P, d Deleter[P], cfg config) error {
	if d == nil {
		d = DefaultDelete[P]
	}
	b, err := newPointerBlock(p, d, cfg.alloc)
	if err != nil {
		if cfg.deleteOnFailure {
			return multierr.Append(err, d(p))
		}
		return err
	}
	s.ptr = p
	s.cb = b
	return nil
}

// Get returns the cached pointer. Under aliasing it may differ from the
// object that is kept alive.
func (s *Shared[P]) Get() P {
	return s.ptr
}

// Valid reports whether the cached pointer is non-nil.
func (s *Shared[P]) Valid() bool {
	return !isNil(any(s.ptr))
}

// UseCount returns the number of Shared handles sharing this handle's
// control block, or 0 for an empty handle.
func (s *Shared[P]) UseCount() uint {
	if s.cb == nil {
		return 0
	}
	return s.cb.base().shared
}

// Clone returns a new handle sharing ownership with s.
func (s *Shared[P]) Clone() *Shared[P] {
	c := &Shared[P]{ptr: s.ptr}
	if s.cb != nil {
		s.cb.base().addShared()
		c.cb = s.cb
	}
	return c
}

// Move returns a new handle that takes over s's ownership; s becomes empty.
// The counts do not change.
func (s *Shared[P]) Move() *Shared[P] {
	m := &Shared[P]{ptr: s.ptr, cb: s.cb}
	s.clear()
	return m
}

// Assign makes s share ownership with other, releasing what s held before.
// Assigning a handle to itself is a no-op. The returned error comes from the
// deleter of the previously held object, if this released its last owner.
func (s *Shared[P]) Assign(other *Shared[P]) error {
	if s == other {
		return nil
	}
	if other.cb != nil {
		other.cb.base().addShared()
	}
	old := s.cb
	s.ptr = other.ptr
	s.cb = other.cb
	return releaseShared(old)
}

// AssignMove transfers other's ownership into s and empties other.
// Moving a handle into itself is a no-op.
func (s *Shared[P]) AssignMove(other *Shared[P]) error {
	if s == other {
		return nil
	}
	old := s.cb
	s.ptr = other.ptr
	s.cb = other.cb
	other.clear()
	return releaseShared(old)
}

// Release gives up s's ownership and leaves s empty. If s was the last
// owner the object is destroyed, and if no weak handles remain the control
// block is freed. Deleter errors are returned unmodified.
func (s *Shared[P]) Release() error {
	cb := s.cb
	s.clear()
	return releaseShared(cb)
}

// Reset is Release under its conventional name.
func (s *Shared[P]) Reset() error {
	return s.Release()
}

// ResetTo releases s's current ownership, then takes ownership of p as New
// does. When the new control block cannot be allocated s stays empty and
// the allocation error is returned, joined with any deleter error.
func (s *Shared[P]) ResetTo(p P, d Deleter[P], opts ...Option) error {
	err := s.Release()
	return multierr.Append(err, s.own(p, d, buildConfig(opts)))
}

// Weak returns a weak handle observing s's object.
func (s *Shared[P]) Weak() *Weak[P] {
	return NewWeak(s)
}

func (s *Shared[P]) String() string {
	return fmt.Sprintf("Shared(use_count=%d)", s.UseCount())
}

func (s *Shared[P]) clear() {
	var zero P
	s.ptr = zero
	s.cb = nil
}

// Deref returns the value s points at. Dereferencing an empty handle panics.
func Deref[T any](s *Shared[*T]) T {
	return *s.ptr
}
