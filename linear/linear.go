package linear

import (
	"bytes"
	"math"

	"github.com/wippyai/cstring"
	"github.com/wippyai/cstring/errors"
	"github.com/wippyai/cstring/internal/utf8lossy"
)

// Memory is linear memory with a known size.
type Memory interface {
	cstring.Memory
	cstring.MemorySizer
}

// Config holds codec options
type Config struct {
	// MaxLen bounds decoded strings to MaxLen bytes, excluding the NUL.
	// 0 means the scan is bounded only by the end of memory.
	MaxLen uint32
}

// Codec lends and reads C strings in linear memory.
type Codec struct {
	mem    Memory
	alloc  cstring.Allocator
	maxLen uint32
}

// New creates a codec. alloc may be nil for decode-only use.
func New(mem Memory, alloc cstring.Allocator, cfg *Config) *Codec {
	c := &Codec{mem: mem, alloc: alloc}
	if cfg != nil {
		c.maxLen = cfg.MaxLen
	}
	return c
}

// Lend implements cstring.Encoder. The buffer comes from the allocator with
// alignment 1 and is freed before Lend returns.
func (c *Codec) Lend(text []byte, fn func(ptr uint32)) error {
	if i := bytes.IndexByte(text, 0); i >= 0 {
		return errors.EmbeddedNull(i)
	}
	if c.alloc == nil {
		return errors.NilPointer(errors.PhaseEncode, "codec has no allocator")
	}
	if uint64(len(text)) >= math.MaxUint32 {
		return errors.Overflow(errors.PhaseEncode, len(text), math.MaxUint32-1)
	}

	size := uint32(len(text)) + 1
	ptr, err := c.alloc.Alloc(size, 1)
	if err != nil {
		return errors.AllocationFailed(size, 1, err)
	}
	if ptr == 0 {
		return errors.AllocationFailed(size, 1, nil)
	}
	defer c.alloc.Free(ptr, size, 1)

	if err := c.mem.Write(ptr, text); err != nil {
		return errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write string")
	}
	if err := c.mem.Write(ptr+size-1, nul); err != nil {
		return errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "write terminator")
	}

	fn(ptr)
	return nil
}

var nul = []byte{0}

// Decode implements cstring.Decoder. A NULL address fails with a NilPointer
// error so callers can tell it from an empty string.
func (c *Codec) Decode(ptr uint32) (string, error) {
	if ptr == 0 {
		return "", errors.NilPointer(errors.PhaseDecode, "NULL string pointer")
	}
	view, err := c.scan(ptr)
	if err != nil {
		return "", err
	}
	return utf8lossy.String(view), nil
}

// Strlen returns the byte length of the string at ptr, excluding the NUL.
func (c *Codec) Strlen(ptr uint32) (uint32, error) {
	view, err := c.scan(ptr)
	if err != nil {
		return 0, err
	}
	return uint32(len(view)), nil
}

// Multi parses a multistring at ptr: NUL-terminated elements ending with an
// empty element. fn is called for each element, at most limit times when
// limit > 0. It returns the number of elements seen. A NULL ptr holds none.
func (c *Codec) Multi(ptr uint32, limit int, fn func(s string)) (int, error) {
	count := 0
	for ptr != 0 && (limit <= 0 || count < limit) {
		view, err := c.scan(ptr)
		if err != nil {
			return count, err
		}
		if len(view) == 0 {
			break
		}
		fn(utf8lossy.String(view))
		ptr += uint32(len(view)) + 1
		count++
	}
	return count, nil
}

// scan returns a view of the bytes at ptr up to, not including, the NUL.
// The view aliases memory and must be copied before the memory changes.
func (c *Codec) scan(ptr uint32) ([]byte, error) {
	size := c.mem.Size()
	if ptr >= size {
		return nil, errors.OutOfBounds(errors.PhaseDecode, ptr, size)
	}

	end := uint64(size)
	limited := false
	if c.maxLen > 0 && uint64(ptr)+uint64(c.maxLen)+1 < end {
		end = uint64(ptr) + uint64(c.maxLen) + 1
		limited = true
	}

	window, err := c.mem.Read(ptr, uint32(end-uint64(ptr)))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "read string")
	}
	n := bytes.IndexByte(window, 0)
	if n < 0 {
		if limited {
			return nil, errors.Truncated(errors.PhaseDecode, ptr, int(c.maxLen))
		}
		return nil, errors.Unterminated(errors.PhaseDecode, ptr, size)
	}
	return window[:n], nil
}

var (
	_ cstring.Encoder[uint32] = (*Codec)(nil)
	_ cstring.Decoder[uint32] = (*Codec)(nil)
)
