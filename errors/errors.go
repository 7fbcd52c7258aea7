package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in a handle's lifecycle the error occurred
type Phase string

const (
	PhaseAlloc     Phase = "alloc"     // control block allocation
	PhaseConstruct Phase = "construct" // in-place object construction
	PhaseDestroy   Phase = "destroy"   // deleter / destructor
	PhaseConvert   Phase = "convert"   // handle type conversion
	PhaseTable     Phase = "table"     // handle table operations
	PhaseScript    Phase = "script"    // scenario execution
	PhaseConfig    Phase = "config"    // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindAllocation   Kind = "allocation"
	KindTypeMismatch Kind = "type_mismatch"
	KindNilPointer   Kind = "nil_pointer"
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindClosed       Kind = "closed"
	KindBorrowed     Kind = "borrowed"
	KindExpectation  Kind = "expectation"
	KindParse        Kind = "parse"
	KindUnsupported  Kind = "unsupported"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	GoType string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" {
		b.WriteString(": Go type ")
		b.WriteString(e.GoType)
	}

	if e.Detail != "" {
		if e.GoType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the step or field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uintptr, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// TypeMismatch creates a conversion error between two Go types
func TypeMismatch(phase Phase, from, to string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		GoType: from,
		Detail: fmt.Sprintf("not convertible to %s", to),
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, path []string, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		GoType: goType,
		Detail: "nil pointer",
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Closed creates an error for operations on a closed component
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", what),
	}
}

// Expectation creates a failed expectation error for a scenario step
func Expectation(path []string, want, got any) *Error {
	return &Error{
		Phase:  PhaseScript,
		Kind:   KindExpectation,
		Path:   path,
		Detail: fmt.Sprintf("expected %v, got %v", want, got),
		Value:  got,
	}
}

// Parse creates a parse error
func Parse(phase Phase, what string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindParse,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
