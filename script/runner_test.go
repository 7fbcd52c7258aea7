package script

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/refptr/alloc"
	"github.com/wippyai/refptr/errors"
)

func newRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	r, err := NewRunner(cfg, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}

func run(t *testing.T, r *Runner, lines ...string) {
	t.Helper()
	for _, line := range lines {
		s, err := ParseLine(line)
		if err != nil {
			t.Fatalf("ParseLine(%q): %v", line, err)
		}
		if err := r.Step(s); err != nil {
			t.Fatalf("step %q: %v", line, err)
		}
	}
}

func TestRunner_Scenarios(t *testing.T) {
	for _, path := range []string{"testdata/lifecycle.yaml", "testdata/conversions.yaml"} {
		t.Run(path, func(t *testing.T) {
			sc, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}
			r := newRunner(t, sc.Config)
			if err := r.Run(sc); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if err := r.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
		})
	}
}

func TestRunner_Trace(t *testing.T) {
	r := newRunner(t, Config{})
	run(t, r,
		"new a 42",
		"weak w a",
		"release a",
		"release w",
	)

	var kinds []string
	for _, e := range r.Trace() {
		kinds = append(kinds, string(e.Kind))
	}
	if got := strings.Join(kinds, ","); got != "alloc,destroy,free" {
		t.Fatalf("trace = %s, want alloc,destroy,free", got)
	}

	tr := r.Trace()
	if tr[1].Step != 3 || tr[2].Step != 4 {
		t.Fatalf("destroy at step %d, free at step %d, want 3 and 4", tr[1].Step, tr[2].Step)
	}
	if !strings.Contains(tr[1].Detail, "a=42") {
		t.Fatalf("destroy event should name the node: %s", tr[1])
	}
}

func TestRunner_ExpectationFailure(t *testing.T) {
	sc, err := Parse([]byte(`
name: failing
steps:
  - {op: new, name: a, value: 1}
  - {op: copy, name: b, from: a}
  - {op: expect, name: a, use_count: 1}
`))
	if err != nil {
		t.Fatal(err)
	}
	r := newRunner(t, Config{})
	err = r.Run(sc)

	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindExpectation {
		t.Fatalf("expected an expectation error, got %v", err)
	}
	want := []string{"failing", "step[2]", "a", "use_count"}
	if strings.Join(e.Path, "/") != strings.Join(want, "/") {
		t.Fatalf("path = %v, want %v", e.Path, want)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRunner_MoveAndAssign(t *testing.T) {
	r := newRunner(t, Config{Track: true})
	run(t, r,
		"new a 1",
		"new b 2",
		"move c a",
		"expect a valid=false use_count=0",
		"expect c use_count=1 value=1",
		"assign c b",
		"expect destroyed=1",
		"expect b use_count=2",
		"assign c c",
		"expect c use_count=2 value=2",
		"move b c",
		"expect b use_count=1",
		"expect c valid=false",
	)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.Stats().LiveBlocks != 0 {
		t.Fatal("all blocks should be freed")
	}
}

func TestRunner_UpcastDowncast(t *testing.T) {
	r := newRunner(t, Config{})
	run(t, r,
		"make n 5",
		"upcast i n",
		"downcast m i",
		"expect n use_count=3",
		"expect m value=5",
		"new o 9",
		"assign i o",
		"expect i value=9",
		"expect n use_count=2",
	)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRunner_Errors(t *testing.T) {
	r := newRunner(t, Config{})
	run(t, r, "new a 1", "weak w a", "alias l a")

	tests := []struct {
		line string
		kind errors.Kind
	}{
		{line: "new a 2", kind: errors.KindInvalidInput},
		{line: "copy b missing", kind: errors.KindNotFound},
		{line: "lock c a", kind: errors.KindInvalidInput},
		{line: "lock c missing", kind: errors.KindNotFound},
		{line: "assign l a", kind: errors.KindTypeMismatch},
		{line: "upcast u w", kind: errors.KindNotFound},
		{line: "expect missing use_count=1", kind: errors.KindNotFound},
		{line: "release missing", kind: errors.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			s, err := ParseLine(tt.line)
			if err != nil {
				t.Fatal(err)
			}
			err = r.Step(s)
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Kind != tt.kind {
				t.Fatalf("expected %s error, got %v", tt.kind, err)
			}
		})
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRunner_Budget(t *testing.T) {
	sc, err := Load("testdata/budget.yaml")
	if err != nil {
		t.Fatal(err)
	}
	r := newRunner(t, sc.Config)
	err = r.Run(sc)
	if !stderrors.Is(err, alloc.ErrBudgetExceeded) {
		t.Fatalf("expected budget error, got %v", err)
	}
	if r.Stats().Failures != 1 {
		t.Fatalf("failures = %d, want 1", r.Stats().Failures)
	}
	if len(r.Handles()) != 0 {
		t.Fatal("failed step must not create a handle")
	}
}

func TestRunner_BadBudget(t *testing.T) {
	_, err := NewRunner(Config{Budget: "plenty"}, nil)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindParse}) {
		t.Fatalf("expected config parse error, got %v", err)
	}
}

func TestRunner_CloseReportsLeaks(t *testing.T) {
	r := newRunner(t, Config{Track: true})
	run(t, r, "new a 1", "new b 2")
	if err := r.Close(); err != nil {
		t.Fatalf("Close should release every handle: %v", err)
	}
	if got := r.Stats(); got.Frees != 2 {
		t.Fatalf("frees = %d, want 2", got.Frees)
	}
}

func TestRunner_Handles(t *testing.T) {
	r := newRunner(t, Config{})
	run(t, r, "new b 2", "weak a b", "alias c b")

	hs := r.Handles()
	if len(hs) != 3 {
		t.Fatalf("len(Handles) = %d, want 3", len(hs))
	}
	if hs[0].Name != "a" || hs[0].Kind != KindWeak || hs[0].UseCount != 2 {
		t.Fatalf("unexpected first handle %+v", hs[0])
	}
	if hs[2].Kind != KindLabel || hs[2].Target != `"b"` {
		t.Fatalf("alias should expose the node name, got %+v", hs[2])
	}
	if !strings.Contains(hs[1].String(), "use_count=2") {
		t.Fatalf("String() = %q", hs[1].String())
	}
	r.Close()
}
