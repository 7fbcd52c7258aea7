package refptr

import (
	"reflect"

	"github.com/wippyai/refptr/errors"
)

// Convert returns a Shared[To] sharing ownership with s, with the cached
// pointer converted to To. It covers upcasts to an interface the pointer
// implements as well as checked downcasts from an interface back to a
// concrete type. ok is false, and nothing changes, when the pointer is not
// a To. The deleter captured at construction keeps running against the
// original concrete pointer.
func Convert[To, From any](s *Shared[From]) (*Shared[To], bool) {
	to, ok := convertPtr[To](s.ptr)
	if !ok {
		return nil, false
	}
	c := &Shared[To]{ptr: to}
	if s.cb != nil {
		s.cb.base().addShared()
		c.cb = s.cb
	}
	return c, true
}

// ConvertMove is Convert that takes over s's ownership instead of adding an
// owner. On success s is empty; on failure s is untouched.
func ConvertMove[To, From any](s *Shared[From]) (*Shared[To], bool) {
	to, ok := convertPtr[To](s.ptr)
	if !ok {
		return nil, false
	}
	c := &Shared[To]{ptr: to, cb: s.cb}
	s.clear()
	return c, true
}

// AssignFrom makes dst share ownership with src under dst's pointer type,
// releasing what dst held before.
func AssignFrom[To, From any](dst *Shared[To], src *Shared[From]) error {
	c, ok := Convert[To](src)
	if !ok {
		return errors.TypeMismatch(errors.PhaseConvert, typeName[From](), typeName[To]())
	}
	return dst.AssignMove(c)
}

// Alias returns a handle that shares owner's control block, and so keeps
// owner's object alive, while exposing the unrelated pointer p. The usual
// use is handing out a field of the owned object. Aliasing an empty owner
// yields a handle that exposes p but owns nothing.
func Alias[P, Q any](owner *Shared[Q], p P) *Shared[P] {
	a := &Shared[P]{ptr: p}
	if owner.cb != nil {
		owner.cb.base().addShared()
		a.cb = owner.cb
	}
	return a
}

// ConvertWeak is Convert for weak handles.
func ConvertWeak[To, From any](w *Weak[From]) (*Weak[To], bool) {
	to, ok := convertPtr[To](w.ptr)
	if !ok {
		return nil, false
	}
	c := &Weak[To]{ptr: to}
	if w.cb != nil {
		w.cb.base().addWeak()
		c.cb = w.cb
	}
	return c, true
}

// SameOwner reports whether a and b share a control block, regardless of
// their pointer types or cached pointers.
func SameOwner[P, Q any](a *Shared[P], b *Shared[Q]) bool {
	return a.cb != nil && a.cb == b.cb
}

func convertPtr[To, From any](p From) (To, bool) {
	var zero To
	v := any(p)
	if v == nil {
		return zero, true
	}
	to, ok := v.(To)
	return to, ok
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
