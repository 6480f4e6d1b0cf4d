// Package unsafeutil provides zero-copy views used on the encode path.
package unsafeutil

import "unsafe"

// Bytes returns a read-only byte view of text without copying when text is a
// plain string or []byte. Named string types fall back to a copy.
//
// SAFETY: the returned slice aliases string memory. Callers must never write
// to it and must not keep it past the lifetime of text.
func Bytes[T ~string | ~[]byte](text T) []byte {
	switch v := any(text).(type) {
	case string:
		if len(v) == 0 {
			return nil
		}
		return unsafe.Slice(unsafe.StringData(v), len(v))
	case []byte:
		return v
	}
	return []byte(text)
}
