package script

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/refptr"
	"github.com/wippyai/refptr/alloc"
	"github.com/wippyai/refptr/errors"
)

// Item is the interface node handles are upcast to.
type Item interface {
	Label() string
}

// Node is the object scenarios create. Destroying it records a trace event.
type Node struct {
	Name  string
	Value int

	onDrop func(*Node)
}

// Label implements Item.
func (n *Node) Label() string { return fmt.Sprintf("%s=%d", n.Name, n.Value) }

// Drop implements refptr.Dropper.
func (n *Node) Drop() {
	if n.onDrop != nil {
		n.onDrop(n)
	}
}

// Kind is the type of a named handle in a Runner.
type Kind string

const (
	KindNode  Kind = "node"  // *refptr.Shared[*Node]
	KindItem  Kind = "item"  // *refptr.Shared[Item]
	KindLabel Kind = "label" // *refptr.Shared[*string]
	KindWeak  Kind = "weak"  // *refptr.Weak[*Node]
)

// HandleInfo describes a named handle for display.
type HandleInfo struct {
	Name     string
	Kind     Kind
	UseCount uint
	Valid    bool
	Target   string
}

func (h HandleInfo) String() string {
	return fmt.Sprintf("%-8s %-5s use_count=%d %s", h.Name, h.Kind, h.UseCount, h.Target)
}

// Runner executes steps against named handles. It is not safe for
// concurrent use.
type Runner struct {
	nodes  map[string]*refptr.Shared[*Node]
	items  map[string]*refptr.Shared[Item]
	labels map[string]*refptr.Shared[*string]
	weaks  map[string]*refptr.Weak[*Node]

	allocs    *allocators
	trace     *tracer
	opts      []refptr.Option
	log       *zap.Logger
	step      int
	destroyed int
	freed     int
}

// NewRunner builds a runner whose control blocks are allocated according
// to cfg. A nil log disables logging.
func NewRunner(cfg Config, log *zap.Logger) (*Runner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a, err := cfg.build()
	if err != nil {
		return nil, err
	}

	r := &Runner{
		nodes:  make(map[string]*refptr.Shared[*Node]),
		items:  make(map[string]*refptr.Shared[Item]),
		labels: make(map[string]*refptr.Shared[*string]),
		weaks:  make(map[string]*refptr.Weak[*Node]),
		allocs: a,
		log:    log,
	}
	r.trace = &tracer{inner: a.top, r: r}
	r.opts = []refptr.Option{refptr.WithAllocator(r.trace)}
	return r, nil
}

// Run executes every step of sc, stopping at the first error.
func (r *Runner) Run(sc *Scenario) error {
	for i, s := range sc.Steps {
		if err := r.Step(s); err != nil {
			return withPath(err, sc.Name, stepPath(i))
		}
	}
	return nil
}

func withPath(err error, path ...string) error {
	if e, ok := err.(*errors.Error); ok {
		e.Path = append(path, e.Path...)
		return e
	}
	return errors.New(errors.PhaseScript, errors.KindInvalidInput).Path(path...).Cause(err).Build()
}

// Step executes a single step.
func (r *Runner) Step(s Step) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.step++
	if ce := r.log.Check(zap.DebugLevel, "step"); ce != nil {
		ce.Write(zap.Int("n", r.step), zap.Stringer("step", s))
	}

	switch s.Op {
	case OpNew:
		return r.create(s, false)
	case OpMake:
		return r.create(s, true)
	case OpCopy:
		return r.copy(s.Name, s.From)
	case OpMove:
		return r.move(s.Name, s.From)
	case OpAssign:
		return r.assign(s.Name, s.From)
	case OpWeak:
		return r.weak(s.Name, s.From)
	case OpLock:
		return r.lock(s.Name, s.From)
	case OpReset:
		return r.reset(s.Name, false)
	case OpRelease:
		return r.reset(s.Name, true)
	case OpAlias:
		return r.alias(s.Name, s.From)
	case OpUpcast:
		return r.upcast(s.Name, s.From)
	case OpDowncast:
		return r.downcast(s.Name, s.From)
	case OpExpect:
		return r.expect(s.Name, s.Want)
	}
	return errors.Unsupported(errors.PhaseScript, string(s.Op))
}

func (r *Runner) kind(name string) (Kind, bool) {
	if _, ok := r.nodes[name]; ok {
		return KindNode, true
	}
	if _, ok := r.items[name]; ok {
		return KindItem, true
	}
	if _, ok := r.labels[name]; ok {
		return KindLabel, true
	}
	if _, ok := r.weaks[name]; ok {
		return KindWeak, true
	}
	return "", false
}

func (r *Runner) fresh(name string) error {
	if _, ok := r.kind(name); ok {
		return errors.InvalidInput(errors.PhaseScript, fmt.Sprintf("handle %q already exists", name))
	}
	return nil
}

func notFound(name string) error {
	return errors.NotFound(errors.PhaseScript, "handle", name)
}

func wrongKind(name string, got Kind, want ...Kind) error {
	return errors.InvalidInput(errors.PhaseScript, fmt.Sprintf("handle %q is a %s, want %v", name, got, want))
}

func (r *Runner) onDrop(n *Node) {
	r.destroyed++
	r.trace.record(EventDestroy, n.Label())
}

func (r *Runner) create(s Step, embedded bool) error {
	if err := r.fresh(s.Name); err != nil {
		return err
	}

	var (
		h   *refptr.Shared[*Node]
		err error
	)
	if embedded {
		h, err = refptr.Make(func(n *Node) error {
			n.Name, n.Value, n.onDrop = s.Name, s.initial(), r.onDrop
			return nil
		}, r.opts...)
	} else {
		h, err = refptr.New(&Node{Name: s.Name, Value: s.initial(), onDrop: r.onDrop}, nil, r.opts...)
	}
	if err != nil {
		return err
	}
	r.nodes[s.Name] = h
	return nil
}

func (r *Runner) copy(dst, src string) error {
	if err := r.fresh(dst); err != nil {
		return err
	}
	switch k, _ := r.kind(src); k {
	case KindNode:
		r.nodes[dst] = r.nodes[src].Clone()
	case KindItem:
		r.items[dst] = r.items[src].Clone()
	case KindLabel:
		r.labels[dst] = r.labels[src].Clone()
	case KindWeak:
		r.weaks[dst] = r.weaks[src].Clone()
	default:
		return notFound(src)
	}
	return nil
}

func (r *Runner) move(dst, src string) error {
	if _, ok := r.kind(src); !ok {
		return notFound(src)
	}
	if dst == src {
		return nil
	}
	if k, ok := r.kind(dst); ok {
		srcKind, _ := r.kind(src)
		if k != srcKind {
			return wrongKind(dst, k, srcKind)
		}
		switch k {
		case KindNode:
			return r.nodes[dst].AssignMove(r.nodes[src])
		case KindItem:
			return r.items[dst].AssignMove(r.items[src])
		case KindLabel:
			return r.labels[dst].AssignMove(r.labels[src])
		case KindWeak:
			r.weaks[dst].AssignMove(r.weaks[src])
			return nil
		}
	}
	switch k, _ := r.kind(src); k {
	case KindNode:
		r.nodes[dst] = r.nodes[src].Move()
	case KindItem:
		r.items[dst] = r.items[src].Move()
	case KindLabel:
		r.labels[dst] = r.labels[src].Move()
	case KindWeak:
		w := new(refptr.Weak[*Node])
		w.AssignMove(r.weaks[src])
		r.weaks[dst] = w
	default:
		return notFound(src)
	}
	return nil
}

func (r *Runner) assign(dst, src string) error {
	dk, ok := r.kind(dst)
	if !ok {
		return notFound(dst)
	}
	sk, ok := r.kind(src)
	if !ok {
		return notFound(src)
	}

	switch {
	case dk == KindNode && sk == KindNode:
		return r.nodes[dst].Assign(r.nodes[src])
	case dk == KindItem && sk == KindItem:
		return r.items[dst].Assign(r.items[src])
	case dk == KindItem && sk == KindNode:
		return refptr.AssignFrom(r.items[dst], r.nodes[src])
	case dk == KindNode && sk == KindItem:
		return refptr.AssignFrom(r.nodes[dst], r.items[src])
	case dk == KindLabel && sk == KindLabel:
		return r.labels[dst].Assign(r.labels[src])
	case dk == KindWeak && sk == KindWeak:
		r.weaks[dst].AssignWeak(r.weaks[src])
		return nil
	case dk == KindWeak && sk == KindNode:
		r.weaks[dst].Assign(r.nodes[src])
		return nil
	}
	return errors.TypeMismatch(errors.PhaseScript, string(sk), string(dk))
}

func (r *Runner) weak(dst, src string) error {
	if err := r.fresh(dst); err != nil {
		return err
	}
	switch k, _ := r.kind(src); k {
	case KindNode:
		r.weaks[dst] = r.nodes[src].Weak()
	case KindWeak:
		r.weaks[dst] = r.weaks[src].Clone()
	case "":
		return notFound(src)
	default:
		return wrongKind(src, k, KindNode, KindWeak)
	}
	return nil
}

func (r *Runner) lock(dst, src string) error {
	if err := r.fresh(dst); err != nil {
		return err
	}
	w, ok := r.weaks[src]
	if !ok {
		if k, exists := r.kind(src); exists {
			return wrongKind(src, k, KindWeak)
		}
		return notFound(src)
	}
	r.nodes[dst] = w.Lock()
	return nil
}

func (r *Runner) reset(name string, drop bool) error {
	var err error
	switch k, _ := r.kind(name); k {
	case KindNode:
		err = r.nodes[name].Reset()
		if drop {
			delete(r.nodes, name)
		}
	case KindItem:
		err = r.items[name].Reset()
		if drop {
			delete(r.items, name)
		}
	case KindLabel:
		err = r.labels[name].Reset()
		if drop {
			delete(r.labels, name)
		}
	case KindWeak:
		r.weaks[name].Reset()
		if drop {
			delete(r.weaks, name)
		}
	default:
		return notFound(name)
	}
	return err
}

func (r *Runner) alias(dst, src string) error {
	if err := r.fresh(dst); err != nil {
		return err
	}
	owner, ok := r.nodes[src]
	if !ok {
		return notFound(src)
	}
	n := owner.Get()
	if n == nil {
		return errors.NilPointer(errors.PhaseScript, []string{src}, "*script.Node")
	}
	r.labels[dst] = refptr.Alias(owner, &n.Name)
	return nil
}

func (r *Runner) upcast(dst, src string) error {
	if err := r.fresh(dst); err != nil {
		return err
	}
	h, ok := r.nodes[src]
	if !ok {
		return notFound(src)
	}
	item, ok := refptr.Convert[Item](h)
	if !ok {
		return errors.TypeMismatch(errors.PhaseConvert, "*script.Node", "script.Item")
	}
	r.items[dst] = item
	return nil
}

func (r *Runner) downcast(dst, src string) error {
	if err := r.fresh(dst); err != nil {
		return err
	}
	h, ok := r.items[src]
	if !ok {
		return notFound(src)
	}
	n, ok := refptr.Convert[*Node](h)
	if !ok {
		return errors.TypeMismatch(errors.PhaseConvert, "script.Item", "*script.Node")
	}
	r.nodes[dst] = n
	return nil
}

func (r *Runner) expect(name string, w Want) error {
	if name != "" {
		info, ok := r.info(name)
		if !ok {
			return notFound(name)
		}
		if w.UseCount != nil && *w.UseCount != info.UseCount {
			return errors.Expectation([]string{name, "use_count"}, *w.UseCount, info.UseCount)
		}
		if w.Valid != nil && *w.Valid != info.Valid {
			return errors.Expectation([]string{name, "valid"}, *w.Valid, info.Valid)
		}
		if w.Expired != nil {
			expired := info.UseCount == 0
			if *w.Expired != expired {
				return errors.Expectation([]string{name, "expired"}, *w.Expired, expired)
			}
		}
		if w.Value != nil {
			got, ok := r.value(name)
			if !ok {
				return errors.Expectation([]string{name, "value"}, *w.Value, "no object")
			}
			if got != *w.Value {
				return errors.Expectation([]string{name, "value"}, *w.Value, got)
			}
		}
	}

	if w.Destroyed != nil && *w.Destroyed != r.destroyed {
		return errors.Expectation([]string{"destroyed"}, *w.Destroyed, r.destroyed)
	}
	if w.Freed != nil && *w.Freed != r.freed {
		return errors.Expectation([]string{"freed"}, *w.Freed, r.freed)
	}
	if w.Live != nil {
		live := int(r.allocs.counting.Stats().LiveBlocks)
		if *w.Live != live {
			return errors.Expectation([]string{"live"}, *w.Live, live)
		}
	}
	return nil
}

// value returns the Value of the node a handle refers to.
func (r *Runner) value(name string) (int, bool) {
	switch k, _ := r.kind(name); k {
	case KindNode:
		if n := r.nodes[name].Get(); n != nil {
			return n.Value, true
		}
	case KindItem:
		if n, ok := r.items[name].Get().(*Node); ok && n != nil {
			return n.Value, true
		}
	case KindWeak:
		s := r.weaks[name].Lock()
		defer s.Release()
		if n := s.Get(); n != nil {
			return n.Value, true
		}
	}
	return 0, false
}

func (r *Runner) info(name string) (HandleInfo, bool) {
	k, ok := r.kind(name)
	if !ok {
		return HandleInfo{}, false
	}
	hi := HandleInfo{Name: name, Kind: k}
	switch k {
	case KindNode:
		h := r.nodes[name]
		hi.UseCount, hi.Valid = h.UseCount(), h.Valid()
		if n := h.Get(); n != nil {
			hi.Target = n.Label()
		}
	case KindItem:
		h := r.items[name]
		hi.UseCount, hi.Valid = h.UseCount(), h.Valid()
		if h.Valid() {
			hi.Target = h.Get().Label()
		}
	case KindLabel:
		h := r.labels[name]
		hi.UseCount, hi.Valid = h.UseCount(), h.Valid()
		if h.Valid() {
			hi.Target = fmt.Sprintf("%q", *h.Get())
		}
	case KindWeak:
		w := r.weaks[name]
		hi.UseCount, hi.Valid = w.UseCount(), !w.Expired()
		if w.Expired() {
			hi.Target = "expired"
		}
	}
	return hi, true
}

// Handles lists every named handle sorted by name.
func (r *Runner) Handles() []HandleInfo {
	names := r.names()
	out := make([]HandleInfo, 0, len(names))
	for _, name := range names {
		hi, _ := r.info(name)
		out = append(out, hi)
	}
	return out
}

func (r *Runner) names() []string {
	var names []string
	for n := range r.nodes {
		names = append(names, n)
	}
	for n := range r.items {
		names = append(names, n)
	}
	for n := range r.labels {
		names = append(names, n)
	}
	for n := range r.weaks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Trace returns the events recorded so far.
func (r *Runner) Trace() []Event {
	return append([]Event(nil), r.trace.events...)
}

// Stats returns the runner's allocation statistics.
func (r *Runner) Stats() alloc.Stats {
	return r.allocs.counting.Stats()
}

// Close releases every handle, weak handles last, and reports destructor
// errors and, when tracking is enabled, leaked blocks.
func (r *Runner) Close() error {
	var errs error
	for _, name := range r.names() {
		if _, ok := r.weaks[name]; ok {
			continue
		}
		errs = multierr.Append(errs, r.reset(name, true))
	}
	for name := range r.weaks {
		r.reset(name, true)
	}
	if r.allocs.tracker != nil {
		errs = multierr.Append(errs, r.allocs.tracker.Leaks())
	}
	return errs
}
