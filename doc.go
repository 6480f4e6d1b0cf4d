// Package cstring converts between Go text and NUL-terminated byte buffers
// consumed by C-ABI code.
//
// Most C APIs take `const char *` arguments: a pointer to bytes that end at the
// first NUL. Go strings carry their length instead, may legally hold NUL bytes,
// and live in memory the foreign side does not own. This library provides the
// two conversions across that boundary and nothing else.
//
// # Architecture Overview
//
//	cstring/             Root package with the Encoder/Decoder capabilities,
//	│                    Memory and Allocator interfaces, owned conversions
//	├── native/          Process memory: unsafe.Pointer buffers for cgo/syscalls
//	├── linear/          WebAssembly linear memory: uint32 guest addresses
//	├── engine/          wazero integration: guest allocator, host functions
//	├── errors/          Structured error types
//	└── cmd/cstr/        Inspector CLI and TUI
//
// # Encoding: scoped lending
//
// An Encoder never hands out an owned pointer. It copies the text, appends a
// NUL, lends the buffer's address to a callback and reclaims the buffer when
// the callback returns or panics:
//
//	n, err := native.With("PATH", func(p unsafe.Pointer) int {
//	    return int(C.strlen((*C.char)(p)))
//	})
//
// Text holding a NUL before its end cannot be represented. Encoders reject it
// with an EmbeddedNull error carrying the offset of the first NUL, and the
// callback is never invoked:
//
//	_, err := native.With("a\x00b", fn)
//	off, _ := errors.Offset(err) // 1
//
// # Decoding: borrowed buffers
//
// A Decoder reads from a borrowed address up to the first NUL and returns an
// owned Go string. Ill-formed UTF-8 never fails: each maximal invalid
// subsequence becomes U+FFFD.
//
// Native decoding trusts its caller: the pointer must be live and the bytes
// must be terminated within readable memory. Violations are undefined
// behaviour, not errors. Bounded variants (native.GoStringN, Config.MaxLen)
// fail with a Truncated error instead of scanning further. Guest memory has
// known bounds, so linear decoding always reports OutOfBounds rather than
// reading past the end.
//
// # Thread Safety
//
// Both conversions are synchronous and touch no shared mutable state. A lent
// buffer belongs to the goroutine running the callback and must not be handed
// to code that outlives the callback.
package cstring
