package resource

// Typed is a TypedTable view over a Table for values of type T that share
// one type ID.
type Typed[T any] struct {
	table  *Table
	typeID uint32
}

var _ TypedTable[any] = (*Typed[any])(nil)

// NewTyped returns a typed view of table for typeID.
func NewTyped[T any](table *Table, typeID uint32) *Typed[T] {
	return &Typed[T]{table: table, typeID: typeID}
}

// Insert takes ownership of value and returns its handle.
func (t *Typed[T]) Insert(value T) (Handle, error) {
	return t.table.Insert(t.typeID, value)
}

// Get retrieves a value by handle. It fails for handles of another type
// and for weak handles.
func (t *Typed[T]) Get(handle Handle) (T, bool) {
	var zero T
	v, ok := t.table.GetTyped(handle, t.typeID)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Remove releases the handle if it belongs to this type.
func (t *Typed[T]) Remove(handle Handle) error {
	if typeID, ok := t.table.backend.TypeID(handle); ok && typeID != t.typeID {
		return t.table.wrap(handle, ErrInvalidHandle)
	}
	return t.table.Remove(handle)
}

// Len returns the number of live handles of this type.
func (t *Typed[T]) Len() int {
	n := 0
	t.table.Each(func(_ Handle, typeID uint32, _ any) bool {
		if typeID == t.typeID {
			n++
		}
		return true
	})
	return n
}

// Each iterates over the strong handles of this type.
func (t *Typed[T]) Each(fn func(Handle, T) bool) {
	t.table.Each(func(h Handle, typeID uint32, value any) bool {
		if typeID != t.typeID {
			return true
		}
		typed, ok := value.(T)
		if !ok {
			return true
		}
		return fn(h, typed)
	})
}
