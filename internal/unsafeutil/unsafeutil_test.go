package unsafeutil

import (
	"bytes"
	"testing"
	"unsafe"
)

type name string

func TestBytes(t *testing.T) {
	s := "hello"
	view := Bytes(s)
	if string(view) != s {
		t.Fatalf("Bytes(%q) = %q", s, view)
	}
	if unsafe.SliceData(view) != unsafe.StringData(s) {
		t.Error("string view should alias string data")
	}

	b := []byte("abc")
	if got := Bytes(b); &got[0] != &b[0] {
		t.Error("[]byte should be returned as is")
	}

	if got := Bytes(name("named")); !bytes.Equal(got, []byte("named")) {
		t.Errorf("named string = %q", got)
	}

	if got := Bytes(""); len(got) != 0 {
		t.Errorf("empty string view has length %d", len(got))
	}
}
