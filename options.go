package refptr

type config struct {
	alloc           Allocator
	deleteOnFailure bool
}

// Option configures handle construction.
type Option func(*config)

// WithAllocator routes control block allocations through a.
func WithAllocator(a Allocator) Option {
	return func(c *config) {
		if a != nil {
			c.alloc = a
		}
	}
}

// DeleteOnFailure makes New and ResetTo run the deleter on the pointer they
// were given when the control block cannot be allocated. Without it the caller
// keeps ownership of the pointer on failure.
func DeleteOnFailure() Option {
	return func(c *config) {
		c.deleteOnFailure = true
	}
}

func buildConfig(opts []Option) config {
	c := config{alloc: defaultAllocator}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
