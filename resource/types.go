package resource

// Handle is an opaque reference to an entry in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Event types for handle lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDuplicated
	EventDowngraded
	EventUpgraded
	EventBorrowed
	EventBorrowReturned
	EventDropped
	EventDestroyed
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDuplicated:
		return "duplicated"
	case EventDowngraded:
		return "downgraded"
	case EventUpgraded:
		return "upgraded"
	case EventBorrowed:
		return "borrowed"
	case EventBorrowReturned:
		return "borrow_returned"
	case EventDropped:
		return "dropped"
	case EventDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Event represents a handle lifecycle event.
// UseCount is the number of strong owners after the operation.
type Event struct {
	Value    any
	Handle   Handle
	TypeID   uint32
	UseCount uint
	Type     EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// TypedTable provides type-safe access to values of a specific type.
type TypedTable[T any] interface {
	// Insert takes ownership of value and returns its handle.
	Insert(value T) (Handle, error)

	// Get retrieves a value by handle.
	Get(handle Handle) (T, bool)

	// Remove releases the handle's ownership.
	Remove(handle Handle) error

	// Len returns the number of live handles.
	Len() int

	// Each iterates over all strong handles of this type.
	Each(func(Handle, T) bool)
}
