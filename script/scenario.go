package script

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/refptr/errors"
)

// Op names a scenario step.
type Op string

const (
	OpNew      Op = "new"      // new NAME VALUE: separately allocated node
	OpMake     Op = "make"     // make NAME VALUE: node embedded in its block
	OpCopy     Op = "copy"     // copy DST SRC
	OpMove     Op = "move"     // move DST SRC
	OpAssign   Op = "assign"   // assign DST SRC
	OpWeak     Op = "weak"     // weak DST SRC
	OpLock     Op = "lock"     // lock DST WEAK
	OpReset    Op = "reset"    // reset NAME
	OpRelease  Op = "release"  // release NAME
	OpAlias    Op = "alias"    // alias DST SRC: handle to the node's name field
	OpUpcast   Op = "upcast"   // upcast DST SRC: node handle to item handle
	OpDowncast Op = "downcast" // downcast DST SRC: item handle to node handle
	OpExpect   Op = "expect"   // expect [NAME] key=value...
)

// Want holds the checks of an expect step. Nil fields are not checked.
// Value doubles as the initial value of new and make steps.
type Want struct {
	UseCount  *uint `yaml:"use_count,omitempty"`
	Value     *int  `yaml:"value,omitempty"`
	Valid     *bool `yaml:"valid,omitempty"`
	Expired   *bool `yaml:"expired,omitempty"`
	Destroyed *int  `yaml:"destroyed,omitempty"`
	Freed     *int  `yaml:"freed,omitempty"`
	Live      *int  `yaml:"live,omitempty"`
}

// Step is one scenario operation.
type Step struct {
	Op    Op     `yaml:"op"`
	Name  string `yaml:"name,omitempty"`
	From  string `yaml:"from,omitempty"`
	Want  `yaml:",inline"`
}

// Scenario is a named list of steps with an optional allocator config.
type Scenario struct {
	Name   string `yaml:"name"`
	Config Config `yaml:"config,omitempty"`
	Steps  []Step `yaml:"steps"`
}

// Load reads a scenario from a YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseScript, errors.KindNotFound, err, path)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if sc.Name == "" {
		sc.Name = path
	}
	return sc, nil
}

// Parse decodes and validates a YAML scenario.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, errors.Parse(errors.PhaseScript, "scenario", err)
	}
	for i, s := range sc.Steps {
		if err := s.Validate(); err != nil {
			return nil, errors.New(errors.PhaseScript, errors.KindInvalidInput).
				Path(stepPath(i)).
				Cause(err).
				Detail("invalid step").
				Build()
		}
	}
	return &sc, nil
}

func stepPath(i int) string {
	return fmt.Sprintf("step[%d]", i)
}

// Validate checks that a step has the operands its op needs.
func (s Step) Validate() error {
	switch s.Op {
	case OpNew, OpMake, OpReset, OpRelease:
		if s.Name == "" {
			return errors.InvalidInput(errors.PhaseScript, fmt.Sprintf("%s needs a name", s.Op))
		}
	case OpCopy, OpMove, OpAssign, OpWeak, OpLock, OpAlias, OpUpcast, OpDowncast:
		if s.Name == "" || s.From == "" {
			return errors.InvalidInput(errors.PhaseScript, fmt.Sprintf("%s needs a name and a source", s.Op))
		}
	case OpExpect:
		if s.Want == (Want{}) {
			return errors.InvalidInput(errors.PhaseScript, "expect has nothing to check")
		}
	default:
		return errors.Unsupported(errors.PhaseScript, fmt.Sprintf("op %q", s.Op))
	}
	return nil
}

// String renders the step in line syntax.
func (s Step) String() string {
	parts := []string{string(s.Op)}
	if s.Name != "" {
		parts = append(parts, s.Name)
	}
	switch s.Op {
	case OpNew, OpMake:
		parts = append(parts, strconv.Itoa(s.initial()))
	case OpExpect:
		parts = append(parts, s.Want.pairs()...)
	default:
		if s.From != "" {
			parts = append(parts, s.From)
		}
	}
	return strings.Join(parts, " ")
}

// ParseLine parses a step written in line syntax, e.g. "copy b a" or
// "expect a use_count=2 expired=false".
func ParseLine(line string) (Step, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Step{}, errors.InvalidInput(errors.PhaseScript, "empty step")
	}

	s := Step{Op: Op(strings.ToLower(fields[0]))}
	args := fields[1:]

	switch s.Op {
	case OpNew, OpMake:
		if len(args) != 2 {
			return Step{}, usage(s.Op, "NAME VALUE")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return Step{}, errors.Parse(errors.PhaseScript, "value", err)
		}
		s.Name, s.Value = args[0], &v
	case OpReset, OpRelease:
		if len(args) != 1 {
			return Step{}, usage(s.Op, "NAME")
		}
		s.Name = args[0]
	case OpCopy, OpMove, OpAssign, OpWeak, OpLock, OpAlias, OpUpcast, OpDowncast:
		if len(args) != 2 {
			return Step{}, usage(s.Op, "DST SRC")
		}
		s.Name, s.From = args[0], args[1]
	case OpExpect:
		if len(args) > 0 && !strings.Contains(args[0], "=") {
			s.Name, args = args[0], args[1:]
		}
		for _, kv := range args {
			if err := s.Want.set(kv); err != nil {
				return Step{}, err
			}
		}
	default:
		return Step{}, errors.Unsupported(errors.PhaseScript, fmt.Sprintf("op %q", s.Op))
	}

	if err := s.Validate(); err != nil {
		return Step{}, err
	}
	return s, nil
}

// initial is the value a new or make step gives its node.
func (s Step) initial() int {
	if s.Value == nil {
		return 0
	}
	return *s.Value
}

func usage(op Op, args string) error {
	return errors.InvalidInput(errors.PhaseScript, fmt.Sprintf("usage: %s %s", op, args))
}

func (w *Want) set(kv string) error {
	key, val, ok := strings.Cut(kv, "=")
	if !ok {
		return errors.InvalidInput(errors.PhaseScript, fmt.Sprintf("expected key=value, got %q", kv))
	}

	var err error
	switch key {
	case "use_count":
		var n uint64
		n, err = strconv.ParseUint(val, 10, 0)
		u := uint(n)
		w.UseCount = &u
	case "value":
		w.Value, err = parseInt(val)
	case "destroyed":
		w.Destroyed, err = parseInt(val)
	case "freed":
		w.Freed, err = parseInt(val)
	case "live":
		w.Live, err = parseInt(val)
	case "valid":
		w.Valid, err = parseBool(val)
	case "expired":
		w.Expired, err = parseBool(val)
	default:
		return errors.Unsupported(errors.PhaseScript, fmt.Sprintf("expect key %q", key))
	}
	if err != nil {
		return errors.Parse(errors.PhaseScript, key, err)
	}
	return nil
}

func (w Want) pairs() []string {
	var out []string
	if w.UseCount != nil {
		out = append(out, fmt.Sprintf("use_count=%d", *w.UseCount))
	}
	if w.Value != nil {
		out = append(out, fmt.Sprintf("value=%d", *w.Value))
	}
	if w.Valid != nil {
		out = append(out, fmt.Sprintf("valid=%t", *w.Valid))
	}
	if w.Expired != nil {
		out = append(out, fmt.Sprintf("expired=%t", *w.Expired))
	}
	if w.Destroyed != nil {
		out = append(out, fmt.Sprintf("destroyed=%d", *w.Destroyed))
	}
	if w.Freed != nil {
		out = append(out, fmt.Sprintf("freed=%d", *w.Freed))
	}
	if w.Live != nil {
		out = append(out, fmt.Sprintf("live=%d", *w.Live))
	}
	return out
}

func parseInt(s string) (*int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func parseBool(s string) (*bool, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
