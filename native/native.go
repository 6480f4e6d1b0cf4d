package native

import (
	"bytes"
	"runtime"
	"unsafe"

	"github.com/valyala/bytebufferpool"

	"github.com/wippyai/cstring"
	"github.com/wippyai/cstring/errors"
	"github.com/wippyai/cstring/internal/unsafeutil"
	"github.com/wippyai/cstring/internal/utf8lossy"
)

// buffers backs every lent buffer. Sizes calibrate to the observed text lengths.
var buffers bytebufferpool.Pool

// Codec converts text at unsafe.Pointer addresses in process memory.
type Codec struct {
	// MaxLen bounds Decode to strings of at most MaxLen bytes, failing with a
	// Truncated error when no NUL is found in time. 0 trusts the caller.
	MaxLen int
}

// Lend implements cstring.Encoder.
func (Codec) Lend(text []byte, fn func(p unsafe.Pointer)) error {
	if i := bytes.IndexByte(text, 0); i >= 0 {
		return errors.EmbeddedNull(i)
	}
	lend(text, fn)
	return nil
}

// Decode implements cstring.Decoder.
func (c Codec) Decode(p unsafe.Pointer) (string, error) {
	if c.MaxLen > 0 {
		return GoStringN(p, c.MaxLen)
	}
	return GoString(p), nil
}

func lend(text []byte, fn func(p unsafe.Pointer)) {
	buf := buffers.Get()
	defer release(buf)

	buf.B = append(buf.B[:0], text...)
	buf.B = append(buf.B, 0)
	fn(unsafe.Pointer(unsafe.SliceData(buf.B)))
	runtime.KeepAlive(buf)
}

// release zeroes the buffer so a pointer retained past the callback reads an
// empty string rather than stale text.
func release(buf *bytebufferpool.ByteBuffer) {
	clear(buf.B)
	buffers.Put(buf)
}

// With passes a NUL-terminated copy of text to fn and returns fn's result.
// The pointer is valid only until fn returns.
func With[T cstring.Text, R any](text T, fn func(p unsafe.Pointer) R) (R, error) {
	return cstring.With[unsafe.Pointer](Codec{}, text, fn)
}

// WithUnchecked is With without the interior NUL check. Foreign code sees
// text cut at its first NUL.
func WithUnchecked[T cstring.Text, R any](text T, fn func(p unsafe.Pointer) R) R {
	var result R
	lend(unsafeutil.Bytes(text), func(p unsafe.Pointer) {
		result = fn(p)
	})
	return result
}

// GoString copies the NUL-terminated string at p. A nil p yields "".
//
// p must point to readable memory holding a NUL; this is not checked.
func GoString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	n, _ := strlen(p, -1)
	return utf8lossy.String(unsafe.Slice((*byte)(p), n))
}

// GoStringN copies the NUL-terminated string at p, reading at most maxLen+1
// bytes. A string longer than maxLen fails with a Truncated error.
func GoStringN(p unsafe.Pointer, maxLen int) (string, error) {
	if p == nil {
		return "", nil
	}
	if maxLen < 0 {
		return "", errors.InvalidInput(errors.PhaseDecode, "negative scan limit")
	}
	n, ok := strlen(p, maxLen+1)
	if !ok {
		return "", errors.Truncated(errors.PhaseDecode, p, maxLen)
	}
	return utf8lossy.String(unsafe.Slice((*byte)(p), n)), nil
}

// Multi parses a C multistring: NUL-terminated elements ending with an empty
// element, as in "zero\x00one\x00\x00". fn is called for each element, at
// most limit times when limit > 0. It returns the number of elements seen.
func Multi(p unsafe.Pointer, limit int, fn func(s string)) int {
	count := 0
	for p != nil && (limit <= 0 || count < limit) {
		n, _ := strlen(p, -1)
		if n == 0 {
			break
		}
		fn(utf8lossy.String(unsafe.Slice((*byte)(p), n)))
		p = unsafe.Add(p, n+1)
		count++
	}
	return count
}

// strlen scans at most limit bytes for a NUL; limit < 0 scans without bound.
func strlen(p unsafe.Pointer, limit int) (int, bool) {
	for n := 0; limit < 0 || n < limit; n++ {
		if *(*byte)(unsafe.Add(p, n)) == 0 {
			return n, true
		}
	}
	return limit, false
}

var (
	_ cstring.Encoder[unsafe.Pointer] = Codec{}
	_ cstring.Decoder[unsafe.Pointer] = Codec{}
)
