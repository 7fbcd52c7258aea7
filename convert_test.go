package refptr

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/refptr/errors"
)

type shape interface {
	Area() int
}

type square struct {
	side  int
	drops int
}

func (s *square) Area() int { return s.side * s.side }
func (s *square) Drop()     { s.drops++ }

type label struct{}

func (label) Area() int { return 0 }

func TestConvert_Upcast(t *testing.T) {
	a := newCountingAllocator()
	sq := &square{side: 3}
	d, _ := New(sq, nil, WithAllocator(a))

	b, ok := Convert[shape](d)
	if !ok {
		t.Fatal("*square should convert to shape")
	}
	if b.UseCount() != 2 || d.UseCount() != 2 {
		t.Fatalf("use counts = %d/%d, want 2/2", b.UseCount(), d.UseCount())
	}
	if b.Get().Area() != 9 {
		t.Fatalf("Area() = %d, want 9 via dynamic dispatch", b.Get().Area())
	}
	if !SameOwner(b, d) {
		t.Fatal("converted handle should share the control block")
	}

	d.Release()
	if !b.Valid() || b.UseCount() != 1 {
		t.Fatalf("b should stay valid with UseCount 1, got %d", b.UseCount())
	}
	if sq.drops != 0 {
		t.Fatal("object destroyed while b owns it")
	}

	b.Release()
	if sq.drops != 1 {
		t.Fatalf("drops = %d, want 1 through the original deleter", sq.drops)
	}
	if a.frees != 1 {
		t.Fatalf("frees = %d, want 1", a.frees)
	}
}

func TestConvert_Downcast(t *testing.T) {
	base, _ := New[shape](&square{side: 2}, nil)

	if _, ok := Convert[label](base); ok {
		t.Fatal("downcast to the wrong concrete type must fail")
	}
	if base.UseCount() != 1 {
		t.Fatal("failed conversion must not change counts")
	}

	sq, ok := Convert[*square](base)
	if !ok || sq.Get().side != 2 {
		t.Fatal("downcast to *square should succeed")
	}
	if base.UseCount() != 2 {
		t.Fatalf("UseCount() = %d, want 2", base.UseCount())
	}
	sq.Release()
	base.Release()
}

func TestConvertMove(t *testing.T) {
	sq := &square{side: 1}
	d, _ := New(sq, nil)

	if _, ok := ConvertMove[label](d); ok {
		t.Fatal("*square is not a label")
	}
	if d.UseCount() != 1 {
		t.Fatal("failed ConvertMove must leave the source untouched")
	}

	b, ok := ConvertMove[shape](d)
	if !ok {
		t.Fatal("ConvertMove failed")
	}
	if d.Valid() || d.UseCount() != 0 {
		t.Fatal("source should be empty after ConvertMove")
	}
	if b.UseCount() != 1 {
		t.Fatalf("UseCount() = %d, want 1", b.UseCount())
	}
	b.Release()
	if sq.drops != 1 {
		t.Fatalf("drops = %d, want 1", sq.drops)
	}
}

func TestConvert_Empty(t *testing.T) {
	var empty Shared[*square]
	b, ok := Convert[shape](&empty)
	if !ok || b.UseCount() != 0 {
		t.Fatal("converting an empty handle should yield an empty handle")
	}

	var emptyIface Shared[shape]
	sq, ok := Convert[*square](&emptyIface)
	if !ok || sq.Valid() {
		t.Fatal("converting an empty interface handle should yield an empty handle")
	}
}

func TestAssignFrom(t *testing.T) {
	old := &square{side: 5}
	dst, _ := New[shape](old, nil)
	src, _ := New(&square{side: 4}, nil)

	if err := AssignFrom(dst, src); err != nil {
		t.Fatalf("AssignFrom: %v", err)
	}
	if old.drops != 1 {
		t.Fatal("previous object should be released")
	}
	if dst.Get().Area() != 16 || src.UseCount() != 2 {
		t.Fatalf("dst should share src: area=%d count=%d", dst.Get().Area(), src.UseCount())
	}

	var lbl Shared[label]
	err := AssignFrom(&lbl, dst)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConvert, Kind: errors.KindTypeMismatch}) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
	dst.Release()
	src.Release()
}

type document struct {
	title string
	body  []byte
	drops int
}

func (d *document) Drop() { d.drops++ }

func TestAlias(t *testing.T) {
	a := newCountingAllocator()
	owner, _ := Make(func(d *document) error {
		d.title = "title"
		d.body = []byte("hello")
		return nil
	}, WithAllocator(a))
	doc := owner.Get()

	title := Alias(owner, &doc.title)
	if *title.Get() != "title" {
		t.Fatalf("alias should expose the field, got %q", *title.Get())
	}
	if title.UseCount() != 2 || owner.UseCount() != 2 {
		t.Fatalf("use counts = %d/%d, want 2/2", title.UseCount(), owner.UseCount())
	}
	if !SameOwner(title, owner) {
		t.Fatal("alias should share the owner's control block")
	}

	owner.Release()
	if title.UseCount() != 1 || doc.title != "title" {
		t.Fatal("alias must keep the owner's object alive")
	}

	w := title.Weak()
	title.Release()
	if !w.Expired() {
		t.Fatal("object should be destroyed with the last alias")
	}
	if doc.title != "" {
		t.Fatal("embedded object should have been destroyed")
	}
	w.Release()
	if a.frees != 1 {
		t.Fatalf("frees = %d, want 1", a.frees)
	}
}

func TestAlias_EmptyOwner(t *testing.T) {
	v := 9
	h := Alias(Null[*document](), &v)
	if h.UseCount() != 0 {
		t.Fatal("alias of an empty owner owns nothing")
	}
	if !h.Valid() || Deref(h) != 9 {
		t.Fatal("alias of an empty owner still exposes the pointer")
	}
	if err := h.Release(); err != nil {
		t.Fatal(err)
	}
}

func TestConvertWeak(t *testing.T) {
	sq := &square{side: 2}
	d, _ := New(sq, nil)
	wd := d.Weak()

	wb, ok := ConvertWeak[shape](wd)
	if !ok {
		t.Fatal("ConvertWeak failed")
	}
	locked := wb.Lock()
	if locked.Get().Area() != 4 || d.UseCount() != 2 {
		t.Fatal("locked converted weak should share ownership")
	}
	locked.Release()

	if _, ok := ConvertWeak[label](wd); ok {
		t.Fatal("*square is not a label")
	}

	d.Release()
	if !wb.Expired() {
		t.Fatal("converted weak should observe expiry")
	}
	wb.Release()
	wd.Release()
}

func TestSameOwner(t *testing.T) {
	x, _ := New(&square{}, nil)
	y, _ := New(&square{}, nil)
	var empty Shared[*square]

	if SameOwner(x, y) {
		t.Fatal("different blocks are different owners")
	}
	if SameOwner(&empty, &empty) {
		t.Fatal("empty handles have no owner")
	}
	c := x.Clone()
	if !SameOwner(x, c) {
		t.Fatal("clones share an owner")
	}
	c.Release()
	x.Release()
	y.Release()
}
