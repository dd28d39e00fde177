package remote

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"
	"strings"
	"testing"
)

func TestTagRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	for _, s := range []string{"", "ok", "screencap", strings.Repeat("a", 255)} {
		buf.Reset()
		if err := WriteTagStr(&buf, s); err != nil {
			t.Fatalf("WriteTagStr(%q): %v", s, err)
		}
		got, err := ReadTagStr(&buf)
		if err != nil {
			t.Fatalf("ReadTagStr(%q): %v", s, err)
		}
		if got != s {
			t.Fatalf("roundtrip = %q, want %q", got, s)
		}
	}
}

func TestTagTooLong(t *testing.T) {
	var buf bytes.Buffer
	err := WriteTagStr(&buf, strings.Repeat("a", 256))
	if !errors.Is(err, ErrLengthOutOfRange) {
		t.Fatalf("err = %v, want ErrLengthOutOfRange", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("oversized tag wrote %d bytes", buf.Len())
	}
}

func TestVTagRoundtrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 300)
	var buf bytes.Buffer
	if err := WriteVTagByte(&buf, payload); err != nil {
		t.Fatalf("WriteVTagByte: %v", err)
	}
	got, err := ReadVTagByte(&buf)
	if err != nil {
		t.Fatalf("ReadVTagByte: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: %d bytes vs %d", len(got), len(payload))
	}
}

func TestVTagRejectsHugeLength(t *testing.T) {
	var hdr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], maxPayload+1)
	_, err := ReadVTagByte(bytes.NewReader(hdr[:n]))
	if !errors.Is(err, ErrLengthOutOfRange) {
		t.Fatalf("err = %v, want ErrLengthOutOfRange", err)
	}
}

func TestVLenRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	for _, v := range []int64{0, 1, -1, 127, 128, -600, 1 << 40} {
		buf.Reset()
		if err := WriteVLen(&buf, v); err != nil {
			t.Fatalf("WriteVLen(%d): %v", v, err)
		}
		got, err := ReadVLen(&buf)
		if err != nil {
			t.Fatalf("ReadVLen(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("roundtrip = %d, want %d", got, v)
		}
	}
}

func TestCompStreamCarriesFrames(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	ca, cb := NewCompStream(a), NewCompStream(b)

	payload := bytes.Repeat([]byte("tapbot"), 5000)
	errc := make(chan error, 1)
	go func() {
		if err := WriteTagStr(ca, "blob"); err != nil {
			errc <- err
			return
		}
		errc <- WriteVTagByte(ca, payload)
	}()

	tag, err := ReadTagStr(cb)
	if err != nil {
		t.Fatalf("ReadTagStr: %v", err)
	}
	if tag != "blob" {
		t.Fatalf("tag = %q, want blob", tag)
	}
	got, err := ReadVTagByte(cb)
	if err != nil {
		t.Fatalf("ReadVTagByte: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload corrupted through the compressed stream")
	}
	if err := <-errc; err != nil {
		t.Fatalf("writer: %v", err)
	}
}
