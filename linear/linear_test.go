package linear

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/wippyai/cstring"
	"github.com/wippyai/cstring/errors"
)

// mockMemory implements Memory for testing
type mockMemory struct {
	data []byte
}

func newMockMemory(size int) *mockMemory {
	return &mockMemory{data: make([]byte, size)}
}

func (m *mockMemory) Read(offset uint32, length uint32) ([]byte, error) {
	if uint64(offset)+uint64(length) > uint64(len(m.data)) {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	return m.data[offset : offset+length], nil
}

func (m *mockMemory) Write(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.data)) {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *mockMemory) Size() uint32 {
	return uint32(len(m.data))
}

func (m *mockMemory) put(offset uint32, s string) uint32 {
	copy(m.data[offset:], s)
	return offset
}

// mockAllocator is a bump allocator that records frees
type mockAllocator struct {
	err    error
	live   map[uint32]uint32
	freed  []uint32
	offset uint32
	fixed  uint32
}

func newMockAllocator() *mockAllocator {
	return &mockAllocator{offset: 1024, live: make(map[uint32]uint32)} // start at 1024 to test non-zero offsets
}

func (a *mockAllocator) Alloc(size, align uint32) (uint32, error) {
	if a.err != nil {
		return 0, a.err
	}
	if a.fixed != 0 {
		a.live[a.fixed] = size
		return a.fixed, nil
	}
	ptr := a.offset
	a.offset += size
	a.live[ptr] = size
	return ptr, nil
}

func (a *mockAllocator) Free(ptr, size, align uint32) {
	if a.live[ptr] != size {
		panic(fmt.Sprintf("free(%d, %d) does not match allocation of %d", ptr, size, a.live[ptr]))
	}
	if align != 1 {
		panic("unexpected alignment")
	}
	delete(a.live, ptr)
	a.freed = append(a.freed, ptr)
}

func newCodec(cfg *Config) (*Codec, *mockMemory, *mockAllocator) {
	mem := newMockMemory(4096)
	alloc := newMockAllocator()
	return New(mem, alloc, cfg), mem, alloc
}

func TestLend(t *testing.T) {
	codec, mem, alloc := newCodec(nil)

	calls := 0
	var seen []byte
	err := codec.Lend([]byte("hello"), func(ptr uint32) {
		calls++
		if ptr != 1024 {
			t.Errorf("ptr = %d, want 1024", ptr)
		}
		seen = bytes.Clone(mem.data[ptr : ptr+6])
	})
	if err != nil {
		t.Fatalf("Lend failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times", calls)
	}
	if !bytes.Equal(seen, []byte("hello\x00")) {
		t.Errorf("guest bytes = %q", seen)
	}
	if len(alloc.live) != 0 || len(alloc.freed) != 1 {
		t.Errorf("live=%d freed=%d, want 0 and 1", len(alloc.live), len(alloc.freed))
	}
}

func TestLend_Empty(t *testing.T) {
	codec, mem, alloc := newCodec(nil)
	mem.data[1024] = 0xAA

	err := codec.Lend(nil, func(ptr uint32) {
		if size := alloc.live[ptr]; size != 1 {
			t.Errorf("allocation size = %d, want 1", size)
		}
		if mem.data[ptr] != 0 {
			t.Errorf("empty string byte = %#x, want NUL", mem.data[ptr])
		}
	})
	if err != nil {
		t.Fatalf("Lend failed: %v", err)
	}
}

func TestLend_EmbeddedNull(t *testing.T) {
	codec, _, alloc := newCodec(nil)

	err := codec.Lend([]byte("a\x00b"), func(uint32) {
		t.Error("fn must not be called")
	})
	if !stderrors.Is(err, errors.ErrEmbeddedNull) {
		t.Fatalf("err = %v, want embedded_null", err)
	}
	if off, _ := errors.Offset(err); off != 1 {
		t.Errorf("offset = %d, want 1", off)
	}
	if alloc.offset != 1024 {
		t.Error("nothing should be allocated for invalid text")
	}
}

func TestLend_AllocationFailures(t *testing.T) {
	tests := []struct {
		setup func(a *mockAllocator)
		name  string
	}{
		{func(a *mockAllocator) { a.err = stderrors.New("oom") }, "allocator error"},
		{func(a *mockAllocator) { a.fixed = 0; a.err = nil; a.offset = 0 }, "NULL result"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, _, alloc := newCodec(nil)
			tt.setup(alloc)

			err := codec.Lend([]byte("x"), func(uint32) {
				t.Error("fn must not be called")
			})
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Kind != errors.KindAllocation {
				t.Fatalf("err = %v, want allocation error", err)
			}
		})
	}
}

func TestLend_WriteOutOfBounds(t *testing.T) {
	codec, _, alloc := newCodec(nil)
	alloc.fixed = 4094

	err := codec.Lend([]byte("toolong"), func(uint32) {
		t.Error("fn must not be called")
	})
	if err == nil {
		t.Fatal("expected write error")
	}
	if len(alloc.live) != 0 {
		t.Error("allocation leaked after write failure")
	}
}

func TestLend_FreedAfterPanic(t *testing.T) {
	codec, _, alloc := newCodec(nil)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic")
			}
		}()
		_ = codec.Lend([]byte("boom"), func(uint32) {
			panic("boom")
		})
	}()

	if len(alloc.live) != 0 {
		t.Errorf("allocation leaked after panic: %v", alloc.live)
	}
}

func TestLend_NoAllocator(t *testing.T) {
	codec := New(newMockMemory(64), nil, nil)
	err := codec.Lend([]byte("x"), func(uint32) { t.Error("fn must not be called") })
	if err == nil {
		t.Fatal("expected error without allocator")
	}
}

func TestWith_RoundTrip(t *testing.T) {
	texts := []string{"", "hello", "héllo 世界", strings.Repeat("z", 2000)}

	for _, text := range texts {
		codec, _, alloc := newCodec(nil)
		got, err := cstring.With[uint32](codec, text, func(ptr uint32) string {
			s, err := codec.Decode(ptr)
			if err != nil {
				t.Errorf("Decode failed: %v", err)
			}
			return s
		})
		if err != nil {
			t.Fatalf("With failed: %v", err)
		}
		if got != text {
			t.Errorf("round trip = %q, want %q", got, text)
		}
		if len(alloc.live) != 0 {
			t.Errorf("allocation leaked for %q", text)
		}
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"terminator only", "\x00", ""},
		{"ascii", "hello\x00", "hello"},
		{"stops at first NUL", "ab\x00cd\x00", "ab"},
		{"invalid bytes", "a\xFF\xFEb\x00", "a��b"},
		{"truncated sequence", "ok\xE2\x82\x00", "ok�"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, mem, _ := newCodec(nil)
			ptr := mem.put(100, tt.raw)

			got, err := codec.Decode(ptr)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecode_Owned(t *testing.T) {
	codec, mem, _ := newCodec(nil)
	ptr := mem.put(8, "guest\x00")

	s, err := codec.Decode(ptr)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	mem.data[ptr] = 'G'
	if s != "guest" {
		t.Errorf("decoded string aliases guest memory: %q", s)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		target error
		setup  func(m *mockMemory) uint32
		cfg    *Config
		name   string
	}{
		{errors.ErrNilPointer, func(*mockMemory) uint32 { return 0 }, nil, "NULL"},
		{errors.ErrOutOfBounds, func(*mockMemory) uint32 { return 4096 }, nil, "past end"},
		{errors.ErrOutOfBounds, func(m *mockMemory) uint32 { return m.put(4093, "xyz") }, nil, "unterminated"},
		{errors.ErrTruncated, func(m *mockMemory) uint32 { return m.put(10, "abcdef\x00") }, &Config{MaxLen: 5}, "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := newMockMemory(4096)
			codec := New(mem, nil, tt.cfg)
			_, err := codec.Decode(tt.setup(mem))
			if !stderrors.Is(err, tt.target) {
				t.Errorf("err = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestDecode_MaxLen(t *testing.T) {
	mem := newMockMemory(4096)
	ptr := mem.put(10, "abcdef\x00")

	got, err := New(mem, nil, &Config{MaxLen: 6}).Decode(ptr)
	if err != nil || got != "abcdef" {
		t.Errorf("exact limit: %q, %v", got, err)
	}

	// limit beyond memory end falls back to the memory bound
	end := mem.put(4090, "tail\x00")
	got, err = New(mem, nil, &Config{MaxLen: 1 << 20}).Decode(end)
	if err != nil || got != "tail" {
		t.Errorf("limit past end: %q, %v", got, err)
	}
}

func TestStrlen(t *testing.T) {
	codec, mem, _ := newCodec(nil)
	n, err := codec.Strlen(mem.put(0, "four\x00"))
	if err != nil || n != 4 {
		t.Errorf("Strlen = %d, %v; want 4", n, err)
	}
}

func TestMulti(t *testing.T) {
	codec, mem, _ := newCodec(nil)
	ptr := mem.put(200, "zero\x00one\x00\x00")

	var got []string
	n, err := codec.Multi(ptr, 0, func(s string) { got = append(got, s) })
	if err != nil {
		t.Fatalf("Multi failed: %v", err)
	}
	if n != 2 || strings.Join(got, ",") != "zero,one" {
		t.Errorf("Multi = %d %q", n, got)
	}

	got = nil
	n, _ = codec.Multi(ptr, 1, func(s string) { got = append(got, s) })
	if n != 1 || len(got) != 1 || got[0] != "zero" {
		t.Errorf("limited Multi = %d %q", n, got)
	}

	if n, err := codec.Multi(0, 0, func(string) { t.Error("fn called for NULL") }); n != 0 || err != nil {
		t.Errorf("Multi(NULL) = %d, %v", n, err)
	}

	end := mem.put(4090, "ab\x00cde")
	n, err = codec.Multi(end, 0, func(string) {})
	if n != 1 || !stderrors.Is(err, errors.ErrOutOfBounds) {
		t.Errorf("unterminated Multi = %d, %v", n, err)
	}
}
