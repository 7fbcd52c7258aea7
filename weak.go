package refptr

import "fmt"

// Weak observes an object owned by Shared handles without keeping it alive.
// It keeps only the control block alive, which is what lets Lock and
// Expired tell whether the object still exists.
type Weak[P any] struct {
	_   noCopy
	ptr P
	cb  controlBlock
}

// NewWeak returns a weak handle observing s's object.
func NewWeak[P any](s *Shared[P]) *Weak[P] {
	w := &Weak[P]{ptr: s.ptr}
	if s.cb != nil {
		s.cb.base().addWeak()
		w.cb = s.cb
	}
	return w
}

// Clone returns another weak handle observing the same object.
func (w *Weak[P]) Clone() *Weak[P] {
	c := &Weak[P]{ptr: w.ptr}
	if w.cb != nil {
		w.cb.base().addWeak()
		c.cb = w.cb
	}
	return c
}

// Assign makes w observe s's object. It is a no-op when w already observes
// s's control block.
func (w *Weak[P]) Assign(s *Shared[P]) {
	if w.cb == s.cb {
		return
	}
	if s.cb != nil {
		s.cb.base().addWeak()
	}
	old := w.cb
	w.ptr = s.ptr
	w.cb = s.cb
	releaseWeak(old)
}

// AssignWeak makes w observe the same object as o.
func (w *Weak[P]) AssignWeak(o *Weak[P]) {
	if w == o || w.cb == o.cb {
		return
	}
	if o.cb != nil {
		o.cb.base().addWeak()
	}
	old := w.cb
	w.ptr = o.ptr
	w.cb = o.cb
	releaseWeak(old)
}

// AssignMove transfers o's weak reference into w and empties o.
func (w *Weak[P]) AssignMove(o *Weak[P]) {
	if w == o {
		return
	}
	if w.cb == o.cb {
		cb := o.cb
		o.clear()
		releaseWeak(cb)
		return
	}
	old := w.cb
	w.ptr = o.ptr
	w.cb = o.cb
	o.clear()
	releaseWeak(old)
}

// Lock returns a Shared handle to the observed object, or an empty handle
// if the object has already been destroyed. A successful Lock adds one owner.
func (w *Weak[P]) Lock() *Shared[P] {
	if w.cb == nil || w.cb.base().shared == 0 {
		return &Shared[P]{}
	}
	w.cb.base().addShared()
	return &Shared[P]{ptr: w.ptr, cb: w.cb}
}

// Expired reports whether the observed object is gone.
func (w *Weak[P]) Expired() bool {
	return w.cb == nil || w.cb.base().shared == 0
}

// UseCount returns the number of Shared handles owning the observed object.
func (w *Weak[P]) UseCount() uint {
	if w.cb == nil {
		return 0
	}
	return w.cb.base().shared
}

// Release drops w's weak reference and leaves w empty. The control block is
// freed when this was its last reference of any kind.
func (w *Weak[P]) Release() {
	cb := w.cb
	w.clear()
	releaseWeak(cb)
}

// Reset is Release under its conventional name.
func (w *Weak[P]) Reset() {
	w.Release()
}

func (w *Weak[P]) String() string {
	return fmt.Sprintf("Weak(use_count=%d, expired=%t)", w.UseCount(), w.Expired())
}

func (w *Weak[P]) clear() {
	var zero P
	w.ptr = zero
	w.cb = nil
}
