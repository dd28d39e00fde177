// Package remote carries the gateway protocol between a machine with
// the device attached (agent) and the machine running the loop
// (client). Frames are tagged strings and uvarint-length byte blobs
// over a single TCP connection, optionally snappy-compressed.
package remote

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/golang/snappy"
)

// maxPayload caps a length-prefixed blob. Large enough for a raw
// 4K RGBA frame.
const maxPayload = 128 << 20

var ErrLengthOutOfRange = errors.New("length out of range")

// ReadTagByte reads a short frame: one length byte then that many bytes.
func ReadTagByte(r io.Reader) ([]byte, error) {
	var hdr [1]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	buf := make([]byte, int(hdr[0]))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteTagByte writes a short frame. The payload must fit 255 bytes.
func WriteTagByte(w io.Writer, tag []byte) error {
	n := len(tag)
	if n > 255 {
		return ErrLengthOutOfRange
	}
	buf := make([]byte, 0, n+1)
	buf = append(buf, byte(n))
	buf = append(buf, tag...)
	_, err := w.Write(buf)
	return err
}

func ReadTagStr(r io.Reader) (string, error) {
	buf, err := ReadTagByte(r)
	return string(buf), err
}

func WriteTagStr(w io.Writer, tag string) error {
	return WriteTagByte(w, []byte(tag))
}

type byteReader struct {
	io.Reader
	buf [1]byte
}

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.Reader, b.buf[:]); err != nil {
		return 0, err
	}
	return b.buf[0], nil
}

// ReadVTagByte reads a uvarint-length blob, bounded by maxPayload.
func ReadVTagByte(r io.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(&byteReader{Reader: r})
	if err != nil {
		return nil, err
	}
	if n > maxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrLengthOutOfRange, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteVTagByte writes a uvarint-length blob.
func WriteVTagByte(w io.Writer, tag []byte) error {
	if len(tag) > maxPayload {
		return fmt.Errorf("%w: %d bytes", ErrLengthOutOfRange, len(tag))
	}
	var hdr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], uint64(len(tag)))
	if _, err := w.Write(hdr[:n]); err != nil {
		return err
	}
	_, err := w.Write(tag)
	return err
}

// ReadVLen reads one varint integer.
func ReadVLen(r io.Reader) (int64, error) {
	return binary.ReadVarint(&byteReader{Reader: r})
}

// WriteVLen writes one varint integer.
func WriteVLen(w io.Writer, n int64) error {
	var buf [binary.MaxVarintLen64]byte
	l := binary.PutVarint(buf[:], n)
	_, err := w.Write(buf[:l])
	return err
}

// CompStream wraps a net.Conn with snappy framing in both directions.
// Each Write flushes so request/response exchanges do not stall.
type CompStream struct {
	Conn net.Conn
	w    *snappy.Writer
	r    *snappy.Reader
}

func NewCompStream(conn net.Conn) *CompStream {
	return &CompStream{
		Conn: conn,
		w:    snappy.NewBufferedWriter(conn),
		r:    snappy.NewReader(conn),
	}
}

func (c *CompStream) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *CompStream) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, c.w.Flush()
}

func (c *CompStream) Close() error {
	return c.Conn.Close()
}

func (c *CompStream) LocalAddr() net.Addr  { return c.Conn.LocalAddr() }
func (c *CompStream) RemoteAddr() net.Addr { return c.Conn.RemoteAddr() }

func (c *CompStream) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

func (c *CompStream) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

func (c *CompStream) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}
