package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestRingBufferSmallWrite(t *testing.T) {
	rb := NewRingBuffer(16)
	rb.Write([]byte("hello"))

	if got := rb.Bytes(); !bytes.Equal(got, []byte("hello")) {
		t.Errorf("Bytes() = %q, want %q", got, "hello")
	}
}

func TestRingBufferWrap(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]byte("abcdef"))
	rb.Write([]byte("ghij"))

	// 10 bytes into an 8-byte buffer: oldest two bytes drop off
	if got := rb.Bytes(); !bytes.Equal(got, []byte("cdefghij")) {
		t.Errorf("Bytes() = %q, want %q", got, "cdefghij")
	}
}

func TestRingBufferOversizedWrite(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write([]byte("abcdefgh"))

	if got := rb.Bytes(); !bytes.Equal(got, []byte("efgh")) {
		t.Errorf("Bytes() = %q, want %q", got, "efgh")
	}
}

func TestRingBufferExactFill(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Write([]byte("abcd"))

	if got := rb.Bytes(); !bytes.Equal(got, []byte("abcd")) {
		t.Errorf("Bytes() = %q, want %q", got, "abcd")
	}

	rb.Write([]byte("ef"))
	if got := rb.Bytes(); !bytes.Equal(got, []byte("cdef")) {
		t.Errorf("Bytes() after wrap = %q, want %q", got, "cdef")
	}
}

func TestRingBufferChronologicalOrder(t *testing.T) {
	rb := NewRingBuffer(32)
	for i := 0; i < 10; i++ {
		rb.Write([]byte("line\n"))
	}
	got := string(rb.Bytes())
	if !strings.HasSuffix(got, "line\n") {
		t.Errorf("expected trailing newline-terminated entry, got %q", got)
	}
	if len(got) != 30 {
		t.Errorf("expected 30 bytes retained, got %d", len(got))
	}
}
