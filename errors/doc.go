// Package errors provides structured error types for the refptr module.
//
// Errors are categorized by Phase (where in a handle's lifecycle the error
// occurred) and Kind (error category). The Error type carries a step path,
// the Go type involved, a detail message and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseScript, errors.KindExpectation).
//		Path("steps", "4").
//		Detail("expected use_count 2, got 1").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.AllocationFailed(errors.PhaseAlloc, size, align, cause)
//	err := errors.TypeMismatch(errors.PhaseConvert, "*main.Node", "io.Closer")
//
// All errors implement the standard error interface and support errors.Is/As.
// Errors raised by user deleters and constructors are never wrapped.
package errors
