package resource

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/refptr"
	"github.com/wippyai/refptr/errors"
)

// Table maps integer handles to shared-ownership references. It is the
// supported way to share one object between goroutines: all reference count
// updates happen under the backend's lock.
type Table struct {
	backend   *LocalBackend
	opts      []refptr.Option
	observers []Observer
	obsMu     sync.RWMutex
	closed    bool
	closeMu   sync.RWMutex
}

// NewTable creates a new table with a LocalBackend. The options apply to
// every control block created by Insert.
func NewTable(opts ...refptr.Option) *Table {
	return &Table{
		backend: NewLocalBackend(),
		opts:    opts,
	}
}

func (t *Table) isClosed() bool {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	return t.closed
}

// Insert takes ownership of value and returns its handle. The value is
// destroyed with Drop or Close, if it implements either, once the last
// strong handle referencing it is removed.
func (t *Table) Insert(typeID uint32, value any) (Handle, error) {
	if t.isClosed() {
		return 0, errors.Closed(errors.PhaseTable, "table")
	}

	s, err := refptr.New[any](value, nil, t.opts...)
	if err != nil {
		return 0, err
	}
	h, err := t.InsertShared(typeID, s)
	if err != nil {
		return 0, multierr.Append(err, s.Release())
	}
	return h, nil
}

// InsertShared moves s into the table. On success s is left empty.
func (t *Table) InsertShared(typeID uint32, s *refptr.Shared[any]) (Handle, error) {
	if t.isClosed() {
		return 0, errors.Closed(errors.PhaseTable, "table")
	}

	value := s.Get()
	handle, err := t.backend.Create(typeID, s)
	if err != nil {
		return 0, t.wrap(handle, err)
	}

	t.notify(Event{
		Type:     EventCreated,
		Handle:   handle,
		TypeID:   typeID,
		Value:    value,
		UseCount: 1,
	})
	return handle, nil
}

// Dup returns a new strong handle sharing ownership with handle.
func (t *Table) Dup(handle Handle) (Handle, error) {
	si, err := t.backend.dup(handle)
	if err != nil {
		return 0, t.wrap(handle, err)
	}
	t.notify(Event{
		Type:     EventDuplicated,
		Handle:   si.handle,
		TypeID:   si.typeID,
		UseCount: si.useCount,
	})
	return si.handle, nil
}

// Downgrade returns a weak handle observing the object behind handle.
func (t *Table) Downgrade(handle Handle) (Handle, error) {
	si, err := t.backend.downgrade(handle)
	if err != nil {
		return 0, t.wrap(handle, err)
	}
	t.notify(Event{
		Type:     EventDowngraded,
		Handle:   si.handle,
		TypeID:   si.typeID,
		UseCount: si.useCount,
	})
	return si.handle, nil
}

// Upgrade returns a new strong handle for the object observed by a weak
// handle, or an error if the object has been destroyed.
func (t *Table) Upgrade(handle Handle) (Handle, error) {
	si, err := t.backend.upgrade(handle)
	if err != nil {
		return 0, t.wrap(handle, err)
	}
	t.notify(Event{
		Type:     EventUpgraded,
		Handle:   si.handle,
		TypeID:   si.typeID,
		UseCount: si.useCount,
	})
	return si.handle, nil
}

// Get retrieves the value behind a strong handle.
func (t *Table) Get(handle Handle) (any, bool) {
	return t.backend.Get(handle)
}

// GetTyped retrieves a value only if it matches the expected type.
func (t *Table) GetTyped(handle Handle, typeID uint32) (any, bool) {
	si, ok := t.backend.get(handle)
	if !ok || si.typeID != typeID {
		return nil, false
	}
	return si.value, true
}

// UseCount returns the number of strong handles sharing the object.
func (t *Table) UseCount(handle Handle) (uint, bool) {
	return t.backend.UseCount(handle)
}

// Borrow returns the value and blocks Remove on this handle until
// ReturnBorrow is called.
func (t *Table) Borrow(handle Handle) (any, bool) {
	si, ok := t.backend.borrow(handle)
	if ok {
		t.notify(Event{Type: EventBorrowed, Handle: handle, TypeID: si.typeID, Value: si.value})
	}
	return si.value, ok
}

// ReturnBorrow ends a borrow started with Borrow.
func (t *Table) ReturnBorrow(handle Handle) bool {
	si, ok := t.backend.returnBorrow(handle)
	if !ok {
		return false
	}
	t.notify(Event{Type: EventBorrowReturned, Handle: handle, TypeID: si.typeID})
	return true
}

// Remove releases the handle. When it was the last strong handle the object
// is destroyed and the destructor's error, if any, is returned.
func (t *Table) Remove(handle Handle) error {
	res, err := t.backend.Drop(handle)
	if err == ErrInvalidHandle || err == ErrOutstandingBorrow {
		return t.wrap(handle, err)
	}
	if err != nil {
		Logger().Warn("resource destructor failed",
			zap.Uint32("handle", uint32(handle)),
			zap.Uint32("type_id", res.typeID),
			zap.Error(err))
	}

	t.notify(Event{
		Type:     EventDropped,
		Handle:   handle,
		TypeID:   res.typeID,
		Value:    res.value,
		UseCount: res.useCount,
	})
	if res.destroyed {
		t.notify(Event{
			Type:   EventDestroyed,
			Handle: handle,
			TypeID: res.typeID,
			Value:  res.value,
		})
	}
	return err
}

// Subscribe adds an observer for lifecycle events.
// Observers are called without any table lock held.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live handles, strong and weak.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Each iterates over live handles. value is nil for weak handles.
// fn must not call back into the table.
func (t *Table) Each(fn func(h Handle, typeID uint32, value any) bool) {
	t.backend.Each(fn)
}

// Clear removes every handle. Weak handles go first so the observers see
// each object destroyed exactly once.
func (t *Table) Clear() error {
	weak, strong := t.backend.handles()

	var errs error
	for _, h := range append(weak, strong...) {
		errs = multierr.Append(errs, t.Remove(h))
	}
	return errs
}

// Close releases all handles and stops accepting new ones.
func (t *Table) Close() error {
	t.closeMu.Lock()
	t.closed = true
	t.closeMu.Unlock()

	return t.backend.Close()
}

// Backend returns the underlying backend.
func (t *Table) Backend() *LocalBackend {
	return t.backend
}

func (t *Table) wrap(handle Handle, err error) error {
	switch err {
	case ErrClosed:
		return errors.Wrap(errors.PhaseTable, errors.KindClosed, err, "table")
	case ErrInvalidHandle:
		return errors.Wrap(errors.PhaseTable, errors.KindNotFound, err, handleDetail(handle))
	case ErrOutstandingBorrow:
		return errors.Wrap(errors.PhaseTable, errors.KindBorrowed, err, handleDetail(handle))
	case ErrExpired:
		return errors.Wrap(errors.PhaseTable, errors.KindNotFound, err, handleDetail(handle))
	case ErrWeakHandle, ErrStrongHandle:
		return errors.Wrap(errors.PhaseTable, errors.KindInvalidInput, err, handleDetail(handle))
	}
	return err
}

func handleDetail(h Handle) string {
	return fmt.Sprintf("handle %d", h)
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
