// Package bitio provides the bit and byte level I/O used by packet headers,
// HT block streams and marker segments.
//
// Bit streams follow the JPEG 2000 stuffing rule: a byte following 0xFF
// carries only seven bits so no marker code can appear inside coded data.
package bitio

import (
	"fmt"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
)

// BitWriter writes MSB-first bits with 0xFF bit stuffing.
type BitWriter struct {
	buf   []byte
	cur   byte
	n     int // bits held in cur
	limit int // 8, or 7 after an 0xFF byte
}

// NewBitWriter creates a bit writer with an empty buffer
func NewBitWriter() *BitWriter {
	return &BitWriter{limit: 8}
}

// WriteBit writes the low bit of v
func (b *BitWriter) WriteBit(v uint32) {
	b.cur = b.cur<<1 | byte(v&1)
	b.n++
	if b.n == b.limit {
		b.emit()
	}
}

// WriteBits writes the n low bits of v, most significant first (n <= 32)
func (b *BitWriter) WriteBits(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		b.WriteBit(v >> uint(i))
	}
}

// WriteOnes writes n one bits.
func (b *BitWriter) WriteOnes(n int) {
	for ; n > 0; n-- {
		b.WriteBit(1)
	}
}

func (b *BitWriter) emit() {
	b.buf = append(b.buf, b.cur)
	if b.cur == 0xFF {
		b.limit = 7
	} else {
		b.limit = 8
	}
	b.cur = 0
	b.n = 0
}

// Flush pads the pending bits with zeros to a byte boundary. A trailing 0xFF
// is followed by a 0x00 byte.
func (b *BitWriter) Flush() {
	if b.n > 0 {
		b.cur <<= uint(b.limit - b.n)
		b.emit()
	}
	if len(b.buf) > 0 && b.buf[len(b.buf)-1] == 0xFF {
		b.buf = append(b.buf, 0x00)
		b.limit = 8
	}
}

// Bytes flushes and returns the written bytes
func (b *BitWriter) Bytes() []byte {
	b.Flush()
	return b.buf
}

// Len returns the number of complete bytes written so far.
func (b *BitWriter) Len() int {
	return len(b.buf)
}

// BitReader reads MSB-first bits honouring 0xFF bit stuffing.
type BitReader struct {
	data   []byte
	pos    int
	cur    byte
	n      int
	prevFF bool
}

// NewBitReader creates a bit reader over data
func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data}
}

// ReadBit reads a single bit
func (b *BitReader) ReadBit() (uint32, error) {
	if b.n == 0 {
		if b.pos >= len(b.data) {
			return 0, fmt.Errorf("%w: bit stream exhausted at byte %d", errs.ErrBitstreamCorruption, b.pos)
		}
		b.cur = b.data[b.pos]
		b.pos++
		b.n = 8
		if b.prevFF {
			b.n = 7
		}
		b.prevFF = b.cur == 0xFF
	}
	b.n--
	return uint32(b.cur>>uint(b.n)) & 1, nil
}

// ReadBits reads n bits (n <= 32)
func (b *BitReader) ReadBits(n int) (uint32, error) {
	var v uint32
	for i := 0; i < n; i++ {
		bit, err := b.ReadBit()
		if err != nil {
			return 0, err
		}
		v = v<<1 | bit
	}
	return v, nil
}

// Align discards the rest of the current byte and the stuffing byte that
// follows a trailing 0xFF.
func (b *BitReader) Align() {
	b.n = 0
	if b.prevFF {
		b.pos++
		b.prevFF = false
	}
}

// Pos returns the number of bytes consumed.
func (b *BitReader) Pos() int {
	return b.pos
}
