package native

import (
	"bytes"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
	"unsafe"

	"github.com/wippyai/cstring/errors"
)

type label string

// foreignBytes reads n bytes at p the way C code would see them.
func foreignBytes(p unsafe.Pointer, n int) []byte {
	return bytes.Clone(unsafe.Slice((*byte)(p), n))
}

func cBuf(s string) unsafe.Pointer {
	b := append([]byte(s), 0)
	return unsafe.Pointer(&b[0])
}

func TestWith_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"ascii", "hello"},
		{"unicode", "héllo, 世界 😀"},
		{"long", strings.Repeat("0123456789", 10_000)},
		{"encoded replacement", "a�b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := With(tt.text, func(p unsafe.Pointer) string {
				if raw := foreignBytes(p, len(tt.text)+1); !bytes.Equal(raw, append([]byte(tt.text), 0)) {
					t.Errorf("buffer = %q, want text plus NUL", raw)
				}
				if n, ok := strlen(p, -1); !ok || n != len(tt.text) {
					t.Errorf("strlen = %d, want %d", n, len(tt.text))
				}
				return GoString(p)
			})
			if err != nil {
				t.Fatalf("With failed: %v", err)
			}
			if got != tt.text {
				t.Errorf("round trip = %q, want %q", got, tt.text)
			}
		})
	}
}

func TestWith_Hello(t *testing.T) {
	calls := 0
	got, err := With("hello", func(p unsafe.Pointer) []byte {
		calls++
		return foreignBytes(p, 6)
	})
	if err != nil {
		t.Fatalf("With failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
	if !bytes.Equal(got, []byte{'h', 'e', 'l', 'l', 'o', 0}) {
		t.Errorf("buffer = %v", got)
	}
}

func TestWith_EmptyIsSingleNUL(t *testing.T) {
	first, err := With("", func(p unsafe.Pointer) byte {
		return *(*byte)(p)
	})
	if err != nil {
		t.Fatalf("With failed: %v", err)
	}
	if first != 0 {
		t.Errorf("empty text buffer starts with %#x, want NUL", first)
	}
}

func TestWith_EmbeddedNull(t *testing.T) {
	tests := []struct {
		text   string
		offset int
	}{
		{"a\x00b", 1},
		{"\x00", 0},
		{"abc\x00", 3},
		{"x\x00y\x00z", 1},
	}

	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.text, "\x00", `\0`), func(t *testing.T) {
			called := false
			_, err := With(tt.text, func(p unsafe.Pointer) int {
				called = true
				return 0
			})
			if called {
				t.Error("fn must not be called for text with a NUL byte")
			}
			if !stderrors.Is(err, errors.ErrEmbeddedNull) {
				t.Fatalf("err = %v, want embedded_null", err)
			}
			off, ok := errors.Offset(err)
			if !ok || off != tt.offset {
				t.Errorf("offset = %d, %v; want %d", off, ok, tt.offset)
			}
		})
	}
}

func TestWith_ByteSlicesAndNamedTypes(t *testing.T) {
	got, err := With([]byte("bytes"), GoString)
	if err != nil || got != "bytes" {
		t.Errorf("[]byte: got %q, %v", got, err)
	}

	got, err = With(label("named"), GoString)
	if err != nil || got != "named" {
		t.Errorf("named: got %q, %v", got, err)
	}
}

func TestWith_BufferScrubbedAfterReturn(t *testing.T) {
	var kept unsafe.Pointer
	_, err := With("secret", func(p unsafe.Pointer) struct{} {
		kept = p
		return struct{}{}
	})
	if err != nil {
		t.Fatalf("With failed: %v", err)
	}
	if raw := foreignBytes(kept, 7); !bytes.Equal(raw, make([]byte, 7)) {
		t.Errorf("buffer not scrubbed after return: %q", raw)
	}
}

func TestWith_BufferScrubbedAfterPanic(t *testing.T) {
	var kept unsafe.Pointer
	func() {
		defer func() {
			if r := recover(); r != "boom" {
				t.Fatalf("recovered %v, want boom", r)
			}
		}()
		_, _ = With("secret", func(p unsafe.Pointer) int {
			kept = p
			panic("boom")
		})
	}()

	if kept == nil {
		t.Fatal("fn was not called")
	}
	if raw := foreignBytes(kept, 7); !bytes.Equal(raw, make([]byte, 7)) {
		t.Errorf("buffer not scrubbed after panic: %q", raw)
	}
}

func TestWith_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				text := strings.Repeat(string(rune('a'+g)), i)
				got, err := With(text, GoString)
				if err != nil || got != text {
					errs <- text
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for text := range errs {
		t.Errorf("concurrent round trip failed for %q", text)
	}
}

func TestWithUnchecked(t *testing.T) {
	got := WithUnchecked("a\x00b", GoString)
	if got != "a" {
		t.Errorf("foreign view = %q, want %q", got, "a")
	}
	if got := WithUnchecked("plain", GoString); got != "plain" {
		t.Errorf("got %q", got)
	}
}

func TestGoString(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		want      string
		wantRunes int
	}{
		{"terminator only", "", "", 0},
		{"ascii", "hello", "hello", 5},
		{"stops at first NUL", "ab\x00cd", "ab", 2},
		{"invalid byte", "a\xFFb", "a�b", 3},
		{"truncated sequence", "ok\xF0\x9F\x98", "ok�", 3},
		{"overlong", "\xC0\xAF", "��", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GoString(cBuf(tt.raw))
			if got != tt.want {
				t.Errorf("GoString = %q, want %q", got, tt.want)
			}
			if n := utf8.RuneCountInString(got); n != tt.wantRunes {
				t.Errorf("rune count = %d, want %d", n, tt.wantRunes)
			}
		})
	}

	if got := GoString(nil); got != "" {
		t.Errorf("GoString(nil) = %q", got)
	}
}

func TestGoString_Owned(t *testing.T) {
	b := []byte("mutable\x00")
	s := GoString(unsafe.Pointer(&b[0]))
	b[0] = 'M'
	if s != "mutable" {
		t.Errorf("decoded string aliases foreign buffer: %q", s)
	}
}

func TestGoStringN(t *testing.T) {
	p := cBuf("abcdef")

	got, err := GoStringN(p, 6)
	if err != nil || got != "abcdef" {
		t.Errorf("exact limit: %q, %v", got, err)
	}

	got, err = GoStringN(p, 100)
	if err != nil || got != "abcdef" {
		t.Errorf("loose limit: %q, %v", got, err)
	}

	_, err = GoStringN(p, 5)
	if !stderrors.Is(err, errors.ErrTruncated) {
		t.Errorf("short limit: err = %v, want truncated", err)
	}

	if _, err := GoStringN(p, -1); err == nil {
		t.Error("negative limit should fail")
	}

	if got, err := GoStringN(nil, 4); got != "" || err != nil {
		t.Errorf("nil: %q, %v", got, err)
	}
}

func TestCodec(t *testing.T) {
	p := cBuf("bounded")

	got, err := Codec{}.Decode(p)
	if err != nil || got != "bounded" {
		t.Errorf("unbounded: %q, %v", got, err)
	}

	if _, err := (Codec{MaxLen: 3}).Decode(p); !stderrors.Is(err, errors.ErrTruncated) {
		t.Errorf("bounded: err = %v, want truncated", err)
	}

	var seen string
	err = Codec{}.Lend([]byte("lent"), func(p unsafe.Pointer) {
		seen = GoString(p)
	})
	if err != nil || seen != "lent" {
		t.Errorf("Lend: %q, %v", seen, err)
	}
}

func TestMulti(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		limit int
		want  []string
	}{
		{"two elements", "zero\x00one\x00\x00", 0, []string{"zero", "one"}},
		{"limited", "zero\x00one\x00\x00", 1, []string{"zero"}},
		{"limit above count", "a\x00\x00", 5, []string{"a"}},
		{"empty", "\x00", 0, nil},
		{"lossy element", "\xFF\x00ok\x00\x00", 0, []string{"�", "ok"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			n := Multi(cBuf(tt.raw), tt.limit, func(s string) {
				got = append(got, s)
			})
			if n != len(tt.want) {
				t.Errorf("count = %d, want %d", n, len(tt.want))
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("elements = %q, want %q", got, tt.want)
			}
		})
	}

	if n := Multi(nil, 0, func(string) { t.Error("fn called for nil") }); n != 0 {
		t.Errorf("Multi(nil) = %d", n)
	}
}
