package refptr

import "errors"

var errNoRoom = errors.New("no room")

type countingAllocator struct {
	live   map[AllocID]Layout
	fail   error
	next   AllocID
	allocs int
	frees  int
}

func newCountingAllocator() *countingAllocator {
	return &countingAllocator{live: make(map[AllocID]Layout)}
}

func (a *countingAllocator) Alloc(l Layout) (AllocID, error) {
	if a.fail != nil {
		return 0, a.fail
	}
	a.next++
	a.allocs++
	a.live[a.next] = l
	return a.next, nil
}

func (a *countingAllocator) Free(id AllocID, l Layout) {
	if _, ok := a.live[id]; !ok {
		panic("free of unknown allocation")
	}
	delete(a.live, id)
	a.frees++
}

type dropCounter struct {
	drops int
}

func (d *dropCounter) Drop() {
	d.drops++
}

func recordingDeleter[P any](log *[]P) Deleter[P] {
	return func(p P) error {
		*log = append(*log, p)
		return nil
	}
}
