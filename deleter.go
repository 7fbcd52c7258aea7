package refptr

import (
	"io"
	"reflect"
)

// Deleter releases the object behind p. It runs exactly once, when the last
// Shared handle owning p goes away. Its error is returned unmodified by the
// Release, Reset or assignment call that triggered it.
type Deleter[P any] func(p P) error

// Dropper is implemented by objects that hold resources beyond their memory.
type Dropper interface {
	Drop()
}

// DefaultDelete is the deleter used when New is given a nil deleter.
// It calls Drop or Close on p when p implements Dropper or io.Closer and does
// nothing for a nil p or any other value; memory is left to the garbage collector.
func DefaultDelete[P any](p P) error {
	return destruct(any(p))
}

func destruct(v any) error {
	if isNil(v) {
		return nil
	}
	switch d := v.(type) {
	case Dropper:
		d.Drop()
	case io.Closer:
		return d.Close()
	}
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice,
		reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}
