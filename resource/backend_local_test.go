package resource

import (
	"errors"
	"sync"
	"testing"

	"github.com/wippyai/refptr"
)

type dropCounter struct {
	count int
}

func (d *dropCounter) Drop() {
	d.count++
}

func newShared(t *testing.T, v any) *refptr.Shared[any] {
	t.Helper()
	s, err := refptr.New[any](v, nil)
	if err != nil {
		t.Fatalf("refptr.New failed: %v", err)
	}
	return s
}

func TestLocalBackend_Basic(t *testing.T) {
	b := NewLocalBackend()

	s := newShared(t, "test value")
	handle, err := b.Create(1, s)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if handle == 0 {
		t.Fatal("Expected non-zero handle")
	}
	if s.Valid() {
		t.Fatal("Create should take over the shared handle")
	}

	val, ok := b.Get(handle)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "test value" {
		t.Fatalf("Expected 'test value', got %v", val)
	}

	res, err := b.Drop(handle)
	if err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if res.value != "test value" || !res.destroyed || res.useCount != 0 {
		t.Fatalf("unexpected drop result %+v", res)
	}

	if _, ok := b.Get(handle); ok {
		t.Fatal("Expected Get to fail after Drop")
	}
}

func TestLocalBackend_DupAndDrop(t *testing.T) {
	b := NewLocalBackend()
	d := &dropCounter{}

	h1, _ := b.Create(1, newShared(t, d))
	h2, count, err := b.Dup(h1)
	if err != nil {
		t.Fatalf("Dup failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("Expected use count 2, got %d", count)
	}
	if typeID, _ := b.TypeID(h2); typeID != 1 {
		t.Fatalf("Dup should keep the type id, got %d", typeID)
	}

	res, _ := b.Drop(h1)
	if res.destroyed || d.count != 0 {
		t.Fatal("object destroyed while a duplicate exists")
	}
	if n, _ := b.UseCount(h2); n != 1 {
		t.Fatalf("Expected use count 1, got %d", n)
	}

	res, _ = b.Drop(h2)
	if !res.destroyed || d.count != 1 {
		t.Fatalf("Expected destruction on last drop, count=%d", d.count)
	}
}

func TestLocalBackend_WeakSlots(t *testing.T) {
	b := NewLocalBackend()
	d := &dropCounter{}

	h, _ := b.Create(1, newShared(t, d))
	w, err := b.Downgrade(h)
	if err != nil {
		t.Fatalf("Downgrade failed: %v", err)
	}
	if _, ok := b.Get(w); ok {
		t.Fatal("weak slots do not expose values")
	}
	if _, _, err := b.Dup(w); !errors.Is(err, ErrWeakHandle) {
		t.Fatalf("Dup of a weak slot should fail, got %v", err)
	}
	if _, _, err := b.Upgrade(h); !errors.Is(err, ErrStrongHandle) {
		t.Fatalf("Upgrade of a strong slot should fail, got %v", err)
	}

	u, count, err := b.Upgrade(w)
	if err != nil || count != 2 {
		t.Fatalf("Upgrade: count=%d err=%v", count, err)
	}
	b.Drop(u)
	b.Drop(h)
	if d.count != 1 {
		t.Fatal("object should be destroyed with the last strong slot")
	}

	if _, _, err := b.Upgrade(w); !errors.Is(err, ErrExpired) {
		t.Fatalf("Expected ErrExpired, got %v", err)
	}
	if n, ok := b.UseCount(w); !ok || n != 0 {
		t.Fatalf("expired weak slot use count = %d", n)
	}
	if _, err := b.Drop(w); err != nil {
		t.Fatalf("dropping a weak slot: %v", err)
	}
}

func TestLocalBackend_MultipleBorrows(t *testing.T) {
	b := NewLocalBackend()

	handle, _ := b.Create(1, newShared(t, 100))

	for i := 0; i < 5; i++ {
		if _, ok := b.Borrow(handle); !ok {
			t.Fatalf("Borrow %d failed", i)
		}
	}

	if _, err := b.Drop(handle); !errors.Is(err, ErrOutstandingBorrow) {
		t.Fatalf("Drop should fail with outstanding borrows, got %v", err)
	}

	for i := 0; i < 5; i++ {
		if !b.ReturnBorrow(handle) {
			t.Fatalf("ReturnBorrow %d failed", i)
		}
	}
	if b.ReturnBorrow(handle) {
		t.Fatal("ReturnBorrow without a borrow should fail")
	}

	if _, err := b.Drop(handle); err != nil {
		t.Fatalf("Drop should succeed after returning all borrows: %v", err)
	}
}

func TestLocalBackend_HandleReuse(t *testing.T) {
	b := NewLocalBackend()

	h1, _ := b.Create(1, newShared(t, 1))
	h2, _ := b.Create(1, newShared(t, 2))
	h3, _ := b.Create(1, newShared(t, 3))

	b.Drop(h2)
	b.Drop(h1)

	h4, _ := b.Create(1, newShared(t, 4))
	h5, _ := b.Create(1, newShared(t, 5))
	if h4 != h1 || h5 != h2 {
		t.Fatalf("Expected freed slots to be reused, got %d and %d", h4, h5)
	}

	for h, want := range map[Handle]int{h3: 3, h4: 4, h5: 5} {
		if v, ok := b.Get(h); !ok || v != want {
			t.Fatalf("handle %d = %v, want %d", h, v, want)
		}
	}
}

func TestLocalBackend_Close(t *testing.T) {
	b := NewLocalBackend()
	d := &dropCounter{}

	h, _ := b.Create(1, newShared(t, d))
	b.Dup(h)
	b.Downgrade(h)

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if d.count != 1 {
		t.Fatalf("Close should destroy the object once, got %d", d.count)
	}
	if err := b.Close(); err != nil {
		t.Fatal("second Close should be a no-op")
	}

	s := newShared(t, "test")
	_, err := b.Create(1, s)
	if !errors.Is(err, ErrClosed) {
		t.Fatal("Expected ErrClosed after Close")
	}
	if !s.Valid() {
		t.Fatal("failed Create must not take ownership")
	}
	s.Release()
}

type failingCloser struct{ err error }

func (f *failingCloser) Close() error { return f.err }

func TestLocalBackend_CloseCollectsErrors(t *testing.T) {
	b := NewLocalBackend()
	e1, e2 := errors.New("first"), errors.New("second")

	b.Create(1, newShared(t, &failingCloser{err: e1}))
	b.Create(1, newShared(t, &failingCloser{err: e2}))

	err := b.Close()
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("Close should report both destructor errors, got %v", err)
	}
}

func TestLocalBackend_DropPanicFreesSlot(t *testing.T) {
	b := NewLocalBackend()
	s, _ := refptr.New[any]("x", func(any) error { panic("boom") })
	h, _ := b.Create(1, s)

	func() {
		defer func() {
			if r := recover(); r != "boom" {
				t.Fatalf("recovered %v, want boom", r)
			}
		}()
		b.Drop(h)
	}()

	if b.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", b.Len())
	}
	if _, err := b.Drop(h); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("expected ErrInvalidHandle, got %v", err)
	}
	next, _ := b.Create(1, newShared(t, "next"))
	if next != h {
		t.Fatalf("slot %d should be reused, got %d", h, next)
	}
}

func TestReleaseEntry_EmptyShared(t *testing.T) {
	res, err := releaseEntry(entry{strong: refptr.Null[any](), typeID: 3})
	if err != nil {
		t.Fatal(err)
	}
	if res.useCount != 0 || res.destroyed || res.typeID != 3 {
		t.Fatalf("releaseEntry(empty) = %+v", res)
	}
}

func TestLocalBackend_Concurrent(t *testing.T) {
	b := NewLocalBackend()
	d := &dropCounter{}
	root, _ := b.Create(1, newShared(t, d))
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, _, err := b.Dup(root)
			if err != nil {
				t.Error(err)
				return
			}
			w, _ := b.Downgrade(h)
			b.Borrow(h)
			b.ReturnBorrow(h)
			if u, _, err := b.Upgrade(w); err == nil {
				b.Drop(u)
			}
			b.Drop(w)
			b.Drop(h)
		}()
	}

	wg.Wait()
	if n, _ := b.UseCount(root); n != 1 {
		t.Fatalf("Expected use count 1 after all goroutines, got %d", n)
	}
	if d.count != 0 {
		t.Fatal("object destroyed while root still owns it")
	}
	b.Drop(root)
	if d.count != 1 {
		t.Fatalf("Expected exactly one destruction, got %d", d.count)
	}
}

func TestLocalBackend_Len(t *testing.T) {
	b := NewLocalBackend()

	if b.Len() != 0 {
		t.Fatal("Expected Len() == 0 initially")
	}

	h1, _ := b.Create(1, newShared(t, "a"))
	h2, _ := b.Create(1, newShared(t, "b"))
	b.Create(1, newShared(t, "c"))

	if b.Len() != 3 {
		t.Fatalf("Expected Len() == 3, got %d", b.Len())
	}

	b.Drop(h1)
	if b.Len() != 2 {
		t.Fatalf("Expected Len() == 2, got %d", b.Len())
	}

	b.Drop(h2)
	if b.Len() != 1 {
		t.Fatalf("Expected Len() == 1, got %d", b.Len())
	}
}

func TestLocalBackend_Each(t *testing.T) {
	b := NewLocalBackend()

	h, _ := b.Create(1, newShared(t, "a"))
	b.Create(2, newShared(t, "b"))
	b.Downgrade(h)

	count, weak := 0, 0
	b.Each(func(h Handle, typeID uint32, value any) bool {
		count++
		if value == nil {
			weak++
		}
		return true
	})

	if count != 3 || weak != 1 {
		t.Fatalf("Expected 3 items with 1 weak, got %d/%d", count, weak)
	}

	count = 0
	b.Each(func(h Handle, typeID uint32, value any) bool {
		count++
		return false
	})

	if count != 1 {
		t.Fatalf("Expected to iterate over 1 item (early term), got %d", count)
	}
}

func TestLocalBackend_InvalidHandle(t *testing.T) {
	b := NewLocalBackend()

	if _, ok := b.Get(0); ok {
		t.Fatal("Handle 0 should be invalid")
	}
	if _, ok := b.Borrow(0); ok {
		t.Fatal("Handle 0 should fail Borrow")
	}
	if b.ReturnBorrow(0) {
		t.Fatal("Handle 0 should fail ReturnBorrow")
	}
	if _, err := b.Drop(0); !errors.Is(err, ErrInvalidHandle) {
		t.Fatal("Handle 0 should fail Drop")
	}
	if _, _, err := b.Dup(999); !errors.Is(err, ErrInvalidHandle) {
		t.Fatal("Non-existent handle should fail Dup")
	}
	if _, ok := b.Get(999); ok {
		t.Fatal("Non-existent handle should be invalid")
	}
}
