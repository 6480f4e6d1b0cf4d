package cstring

import (
	"bytes"

	"github.com/wippyai/cstring/errors"
	"github.com/wippyai/cstring/internal/unsafeutil"
)

// Text is host text with a byte-sequence view
type Text interface {
	~string | ~[]byte
}

// Encoder lends NUL-terminated copies of host text to foreign code.
//
// Lend copies text plus one terminating NUL into a buffer owned by the
// encoder, calls fn exactly once with the buffer's address and reclaims the
// buffer before returning, including when fn panics. Text holding a NUL byte
// fails with an EmbeddedNull error and fn is not called. Implementations must
// not retain or modify text.
type Encoder[A any] interface {
	Lend(text []byte, fn func(addr A)) error
}

// Decoder reconstructs host text from a borrowed NUL-terminated buffer.
//
// Decode reads from addr up to, not including, the first NUL and returns an
// owned copy with ill-formed UTF-8 replaced by U+FFFD. It never retains addr.
type Decoder[A any] interface {
	Decode(addr A) (string, error)
}

// Memory represents foreign linear memory
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
}

// MemorySizer provides the current size of linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates memory in foreign linear memory
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}

// With lends text through enc and returns fn's result.
func With[A any, T Text, R any](enc Encoder[A], text T, fn func(addr A) R) (R, error) {
	var result R
	err := enc.Lend(unsafeutil.Bytes(text), func(addr A) {
		result = fn(addr)
	})
	return result, err
}

// IndexNull returns the offset of the first NUL byte in text, or -1.
func IndexNull[T Text](text T) int {
	return bytes.IndexByte(unsafeutil.Bytes(text), 0)
}

// Validate reports whether text can be represented as a C string.
func Validate[T Text](text T) error {
	if i := IndexNull(text); i >= 0 {
		return errors.EmbeddedNull(i)
	}
	return nil
}

// Append appends text and a terminating NUL to dst. The result is ordinary
// garbage-collected memory, for foreign code that keeps the pointer beyond a
// single call under the caller's lifetime management. On error dst is
// returned unchanged.
func Append[T Text](dst []byte, text T) ([]byte, error) {
	b := unsafeutil.Bytes(text)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return dst, errors.EmbeddedNull(i)
	}
	dst = append(dst, b...)
	return append(dst, 0), nil
}
