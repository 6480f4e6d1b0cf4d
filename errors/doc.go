// Package errors provides structured error types for the cstring library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries a human-readable detail, the offending value (for example
// the offset of an interior NUL byte) and an optional cause.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
//		Value(ptr).
//		Detail("address %#x past end of memory", ptr).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.EmbeddedNull(1)
//	err := errors.Truncated(errors.PhaseDecode, ptr, 4096)
//
// All errors implement the standard error interface and support errors.Is/As.
// The exported sentinels (ErrEmbeddedNull, ErrTruncated, ...) match any error
// of the same Phase and Kind.
package errors
