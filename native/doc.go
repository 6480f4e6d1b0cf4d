// Package native converts Go text to and from NUL-terminated buffers in the
// process's own memory, for foreign functions reached through cgo, syscalls
// or other C-ABI call paths.
//
// # Encoding
//
// With copies text into a pooled buffer, appends a NUL and passes the
// buffer's address to a callback:
//
//	n, err := native.With(msg, func(p unsafe.Pointer) C.int {
//	    return C.puts((*C.char)(p))
//	})
//
// The buffer is scrubbed and returned to the pool when the callback returns
// or panics. It holds no Go pointers, so passing it to C as a call argument
// satisfies the cgo pointer-passing rules, provided the C side does not keep
// it after the call. Foreign code that needs to keep the string must be given
// memory it owns (for example C.CString), or a cstring.Append copy that the
// caller keeps alive.
//
// # Decoding
//
// GoString copies a borrowed `const char *` into a Go string. It trusts the
// pointer: a dangling pointer or missing terminator is undefined behaviour.
// GoStringN bounds the scan and returns a Truncated error instead.
//
// # Thread Safety
//
// All functions are safe for concurrent use. A lent buffer is confined to the
// callback that received it.
package native
