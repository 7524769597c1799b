package block

// Forward streams (MagSgn, SigProp) pack bits LSB-first into bytes written
// in order. Backward streams (VLC, MagRef) pack bits LSB-first into bytes
// written from the end of their segment towards its start. Both keep coded
// data free of marker codes: a forward byte following 0xFF carries seven
// bits, and a backward byte following one above 0x8F drops its top bit when
// its low seven bits are all ones.

type forwardWriter struct {
	buf  []byte
	tmp  uint32
	used int
	max  int
}

func newForwardWriter() *forwardWriter {
	return &forwardWriter{max: 8}
}

// write appends the n low bits of v, n <= 32.
func (f *forwardWriter) write(v uint64, n int) {
	for n > 0 {
		t := min(f.max-f.used, n)
		f.tmp |= uint32(v&(1<<t-1)) << f.used
		f.used += t
		v >>= t
		n -= t
		if f.used == f.max {
			f.buf = append(f.buf, byte(f.tmp))
			f.max = 8
			if f.tmp == 0xFF {
				f.max = 7
			}
			f.tmp, f.used = 0, 0
		}
	}
}

// padOnes terminates a stream whose reader sees ones past its end. A final
// byte that would read as 0xFF anyway is left out.
func (f *forwardWriter) padOnes() []byte {
	switch {
	case f.used > 0:
		f.tmp |= (0xFF << f.used) & (1<<f.max - 1)
		if f.tmp != 0xFF {
			f.buf = append(f.buf, byte(f.tmp))
		}
	case f.max == 7:
		f.buf = f.buf[:len(f.buf)-1]
	}
	f.tmp, f.used = 0, 0
	return f.buf
}

// padZeros terminates a stream whose reader sees zeros past its end.
func (f *forwardWriter) padZeros() []byte {
	if f.used > 0 {
		f.buf = append(f.buf, byte(f.tmp))
	}
	if len(f.buf) > 0 && f.buf[len(f.buf)-1] == 0xFF {
		f.buf = append(f.buf, 0)
	}
	f.tmp, f.used = 0, 0
	return f.buf
}

type forwardReader struct {
	data []byte
	pos  int
	pad  byte
	acc  uint64
	n    int
	ff   bool
}

func newForwardReader(data []byte, pad byte) *forwardReader {
	return &forwardReader{data: data, pad: pad}
}

// read returns the next n bits, n <= 32.
func (r *forwardReader) read(n int) uint64 {
	for r.n < n {
		b := r.pad
		if r.pos < len(r.data) {
			b = r.data[r.pos]
			r.pos++
		}
		w := 8
		if r.ff {
			w = 7
		}
		r.ff = b == 0xFF
		r.acc |= (uint64(b) & (1<<w - 1)) << r.n
		r.n += w
	}
	v := r.acc & (1<<n - 1)
	r.acc >>= n
	r.n -= n
	return v
}

// backwardWriter collects bytes in writing order; bytes reverses them into
// segment order.
type backwardWriter struct {
	buf  []byte
	tmp  uint32
	used int
	gt8F bool // the previous byte exceeded 0x8F
}

// newVLCWriter starts the VLC stream behind the two Scup bytes: the final
// byte is reserved whole and the one before it keeps its low nibble.
func newVLCWriter() *backwardWriter {
	return &backwardWriter{buf: []byte{0xFF}, tmp: 0xF, used: 4, gt8F: true}
}

func newMagRefWriter() *backwardWriter {
	return &backwardWriter{gt8F: true}
}

// write appends the n low bits of v, n <= 32.
func (b *backwardWriter) write(v uint32, n int) {
	for n > 0 {
		avail := 8 - b.used
		if b.gt8F {
			avail--
		}
		t := min(avail, n)
		b.tmp |= (v & (1<<t - 1)) << b.used
		b.used += t
		avail -= t
		n -= t
		v >>= t
		if avail == 0 {
			if b.gt8F && b.tmp != 0x7F {
				// the top bit is free after all
				b.gt8F = false
				continue
			}
			b.buf = append(b.buf, byte(b.tmp))
			b.gt8F = b.tmp > 0x8F
			b.tmp, b.used = 0, 0
		}
	}
}

// flush writes the pending bits, zero padded.
func (b *backwardWriter) flush() {
	if b.used > 0 {
		b.buf = append(b.buf, byte(b.tmp))
		b.tmp, b.used = 0, 0
	}
}

// bytes returns the stream in segment order.
func (b *backwardWriter) bytes() []byte {
	out := make([]byte, len(b.buf))
	for i, c := range b.buf {
		out[len(out)-1-i] = c
	}
	return out
}

type backwardReader struct {
	data    []byte
	pos     int // next byte, counting down
	acc     uint64
	n       int
	unstuff bool
}

// newVLCReader reads the VLC stream of a cleanup segment whose final Scup
// bytes hold MEL and VLC. The VLC bits of the byte before last sit in its
// high nibble.
func newVLCReader(seg []byte, scup int) *backwardReader {
	l := len(seg)
	d := seg[l-2]
	r := &backwardReader{data: seg[l-scup : l-2], pos: scup - 3}
	r.acc = uint64(d >> 4)
	r.n = 4
	if r.acc&7 == 7 {
		r.acc &= 7
		r.n = 3
	}
	r.unstuff = d|0x0F > 0x8F
	return r
}

func newMagRefReader(seg []byte) *backwardReader {
	return &backwardReader{data: seg, pos: len(seg) - 1, unstuff: true}
}

func (r *backwardReader) fill(n int) {
	for r.n < n {
		var d byte
		if r.pos >= 0 {
			d = r.data[r.pos]
			r.pos--
		}
		w := 8
		if r.unstuff && d&0x7F == 0x7F {
			w = 7
		}
		r.unstuff = d > 0x8F
		r.acc |= (uint64(d) & (1<<w - 1)) << r.n
		r.n += w
	}
}

// peek returns the next n bits without consuming them, n <= 32.
func (r *backwardReader) peek(n int) uint32 {
	r.fill(n)
	return uint32(r.acc & (1<<n - 1))
}

func (r *backwardReader) skip(n int) {
	r.fill(n)
	r.acc >>= n
	r.n -= n
}

func (r *backwardReader) read(n int) uint32 {
	v := r.peek(n)
	r.skip(n)
	return v
}
