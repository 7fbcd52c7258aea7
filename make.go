package refptr

import (
	"go.uber.org/zap"
)

// Make allocates a single value control block, constructs a T inside it with
// ctor and returns a handle pointing at the embedded object. A nil ctor
// leaves the zero T.
//
// Errors returned by ctor come back unmodified and a panicking ctor is
// re-raised; either way the allocation has been released first, so a failed
// Make leaves nothing behind.
//
// When the last owner goes away the object is destroyed in place (Drop or
// Close if *T implements Dropper or io.Closer, then zeroed). The one
// allocation is released when the last weak handle goes away too.
func Make[T any](ctor func(*T) error, opts ...Option) (*Shared[*T], error) {
	cfg := buildConfig(opts)
	b, err := newValueBlock[T](cfg.alloc)
	if err != nil {
		return nil, err
	}
	if ctor != nil {
		if err := construct(b, ctor); err != nil {
			return nil, err
		}
	}
	b.live = true
	return &Shared[*T]{ptr: &b.value, cb: b}, nil
}

// MakeValue is Make with a constructor copying v into the embedded storage.
func MakeValue[T any](v T, opts ...Option) (*Shared[*T], error) {
	return Make(func(p *T) error {
		*p = v
		return nil
	}, opts...)
}

func construct[T any](b *valueBlock[T], ctor func(*T) error) error {
	ok := false
	defer func() {
		if !ok {
			if ce := Logger().Check(zap.DebugLevel, "construction failed, releasing block"); ce != nil {
				ce.Write(zap.Uint64("block", uint64(b.id)))
			}
			b.free()
		}
	}()
	if err := ctor(&b.value); err != nil {
		return err
	}
	ok = true
	return nil
}
