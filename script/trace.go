package script

import (
	"fmt"

	"github.com/wippyai/refptr"
)

// EventKind classifies trace events.
type EventKind string

const (
	EventAlloc   EventKind = "alloc"
	EventDestroy EventKind = "destroy"
	EventFree    EventKind = "free"
)

// Event is one recorded lifecycle event.
type Event struct {
	Step   int
	Kind   EventKind
	Detail string
}

func (e Event) String() string {
	return fmt.Sprintf("#%d %-7s %s", e.Step, e.Kind, e.Detail)
}

// tracer is the allocator the runner hands to refptr. It records block
// allocation and release in the trace.
type tracer struct {
	inner  refptr.Allocator
	r      *Runner
	events []Event
}

func (t *tracer) record(kind EventKind, detail string) {
	t.events = append(t.events, Event{Step: t.r.step, Kind: kind, Detail: detail})
}

func (t *tracer) Alloc(l refptr.Layout) (refptr.AllocID, error) {
	id, err := t.inner.Alloc(l)
	if err != nil {
		return 0, err
	}
	t.record(EventAlloc, fmt.Sprintf("%s #%d (%d bytes)", l.Kind, id, l.Size))
	return id, nil
}

func (t *tracer) Free(id refptr.AllocID, l refptr.Layout) {
	t.r.freed++
	t.record(EventFree, fmt.Sprintf("%s #%d", l.Kind, id))
	t.inner.Free(id, l)
}
