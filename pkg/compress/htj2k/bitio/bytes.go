package bitio

import (
	"bytes"
	"fmt"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
)

// ByteReader provides big-endian access to an in-memory codestream
type ByteReader struct {
	data []byte
	pos  int
}

// NewByteReader creates a new byte reader
func NewByteReader(data []byte) *ByteReader {
	return &ByteReader{data: data}
}

func (b *ByteReader) need(n int) error {
	if n < 0 || b.pos+n > len(b.data) {
		return fmt.Errorf("%w: need %d bytes at offset %d of %d", errs.ErrBitstreamCorruption, n, b.pos, len(b.data))
	}
	return nil
}

// ReadByte reads a single byte
func (b *ByteReader) ReadByte() (byte, error) {
	if err := b.need(1); err != nil {
		return 0, err
	}
	c := b.data[b.pos]
	b.pos++
	return c, nil
}

// ReadUint16 reads a big-endian uint16
func (b *ByteReader) ReadUint16() (uint16, error) {
	if err := b.need(2); err != nil {
		return 0, err
	}
	v := uint16(b.data[b.pos])<<8 | uint16(b.data[b.pos+1])
	b.pos += 2
	return v, nil
}

// ReadUint32 reads a big-endian uint32
func (b *ByteReader) ReadUint32() (uint32, error) {
	if err := b.need(4); err != nil {
		return 0, err
	}
	var val uint32
	for i := 0; i < 4; i++ {
		val = val<<8 | uint32(b.data[b.pos+i])
	}
	b.pos += 4
	return val, nil
}

// ReadBytes returns the next n bytes without copying
func (b *ByteReader) ReadBytes(n int) ([]byte, error) {
	if err := b.need(n); err != nil {
		return nil, err
	}
	out := b.data[b.pos : b.pos+n]
	b.pos += n
	return out, nil
}

// Skip discards n bytes
func (b *ByteReader) Skip(n int) error {
	if err := b.need(n); err != nil {
		return err
	}
	b.pos += n
	return nil
}

// Pos returns the current offset.
func (b *ByteReader) Pos() int { return b.pos }

// Remaining returns the number of unread bytes.
func (b *ByteReader) Remaining() int { return len(b.data) - b.pos }

// ByteWriter accumulates big-endian marker segment fields
type ByteWriter struct {
	buf bytes.Buffer
}

// NewByteWriter creates a new byte writer
func NewByteWriter() *ByteWriter {
	return &ByteWriter{}
}

// WriteByte writes a single byte
func (b *ByteWriter) WriteByte(c byte) error {
	return b.buf.WriteByte(c)
}

// WriteUint16 writes a big-endian uint16
func (b *ByteWriter) WriteUint16(v uint16) {
	b.buf.WriteByte(byte(v >> 8))
	b.buf.WriteByte(byte(v))
}

// WriteUint32 writes a big-endian uint32
func (b *ByteWriter) WriteUint32(v uint32) {
	for i := 24; i >= 0; i -= 8 {
		b.buf.WriteByte(byte(v >> uint(i)))
	}
}

// WriteBytes writes multiple bytes
func (b *ByteWriter) WriteBytes(data []byte) {
	b.buf.Write(data)
}

// Len returns the number of bytes written.
func (b *ByteWriter) Len() int { return b.buf.Len() }

// Bytes returns the written bytes
func (b *ByteWriter) Bytes() []byte { return b.buf.Bytes() }
