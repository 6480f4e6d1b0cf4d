// Package linear converts Go text to and from NUL-terminated buffers inside
// a foreign linear memory, such as the memory of a WebAssembly module
// compiled from C.
//
// Addresses are uint32 offsets into the memory. Buffers are obtained from the
// guest's own allocator (typically malloc/free exports), so the guest sees
// ordinary heap strings:
//
//	codec := linear.New(mem, alloc, nil)
//	n, err := cstring.With[uint32](codec, "hello", func(ptr uint32) uint64 {
//	    res, _ := strlen.Call(ctx, uint64(ptr))
//	    return res[0]
//	})
//
// The buffer is freed through the allocator as soon as the callback returns,
// including when it panics.
//
// # Bounds
//
// Unlike process memory, linear memory has a known size, so Decode never
// reads past its end: an address outside memory, or a string that runs into
// the end without a NUL, fails with an OutOfBounds error. Config.MaxLen adds
// a tighter limit that fails with a Truncated error.
//
// # Thread Safety
//
// A Codec is as safe as the Memory and Allocator it wraps. Guest instances are
// usually single-threaded; use one Codec per instance and goroutine.
package linear
