package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseEncode Phase = "encode" // Go text to foreign buffer
	PhaseDecode Phase = "decode" // foreign buffer to Go text
	PhaseAlloc  Phase = "alloc"  // foreign allocator calls
	PhaseHost   Phase = "host"   // host function registration and dispatch
	PhaseLoad   Phase = "load"   // module compilation and instantiation
	PhaseCall   Phase = "call"   // calling foreign exports
)

// Kind categorizes the error
type Kind string

const (
	KindEmbeddedNull Kind = "embedded_null"
	KindTruncated    Kind = "truncated"
	KindOutOfBounds  Kind = "out_of_bounds"
	KindAllocation   Kind = "allocation"
	KindNilPointer   Kind = "nil_pointer"
	KindNotFound     Kind = "not_found"
	KindOverflow     Kind = "overflow"
	KindInvalidInput Kind = "invalid_input"
)

// Sentinels for errors.Is. They match on Phase and Kind only.
var (
	ErrEmbeddedNull = &Error{Phase: PhaseEncode, Kind: KindEmbeddedNull}
	ErrTruncated    = &Error{Phase: PhaseDecode, Kind: KindTruncated}
	ErrOutOfBounds  = &Error{Phase: PhaseDecode, Kind: KindOutOfBounds}
	ErrNilPointer   = &Error{Phase: PhaseDecode, Kind: KindNilPointer}
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Detail != "" {
		b.WriteString(": ")
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

// EmbeddedNull reports text that holds a NUL byte before its end. Offset is
// the index of the first NUL.
func EmbeddedNull(offset int) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindEmbeddedNull,
		Detail: fmt.Sprintf("interior NUL byte at offset %d", offset),
		Value:  offset,
	}
}

// Truncated reports a bounded scan that found no terminator within limit bytes
func Truncated(phase Phase, addr any, limit int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTruncated,
		Detail: fmt.Sprintf("no NUL terminator within %d bytes of %#x", limit, addr),
		Value:  addr,
	}
}

// OutOfBounds reports an address or scan that left the foreign memory
func OutOfBounds(phase Phase, addr, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("address %#x out of bounds (memory size %d)", addr, size),
		Value:  addr,
	}
}

// Unterminated reports a scan that reached the end of memory without a NUL
func Unterminated(phase Phase, addr, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("string at %#x has no NUL terminator before end of memory (size %d)", addr, size),
		Value:  addr,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(size, align uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseAlloc,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Detail: what,
	}
}

// NotFound creates a missing export or module error
func NotFound(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: what,
	}
}

// Overflow reports text too long for the foreign address space
func Overflow(phase Phase, length int, max uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Detail: fmt.Sprintf("length %d exceeds %d", length, max),
		Value:  length,
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

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Offset returns the NUL offset carried by an EmbeddedNull error anywhere in
// err's chain.
func Offset(err error) (int, bool) {
	var e *Error
	if !stderrors.As(err, &e) || e.Kind != KindEmbeddedNull {
		return 0, false
	}
	off, ok := e.Value.(int)
	return off, ok
}
