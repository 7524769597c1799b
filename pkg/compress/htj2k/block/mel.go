package block

// melExp is the run-length exponent of each of the 13 MEL states.
var melExp = [13]int{0, 0, 0, 1, 1, 1, 2, 2, 2, 3, 3, 4, 5}

// melWriter codes quad significance in the all-insignificant context as an
// adaptive run-length code. A 1 bit stands for a complete run of 2^E
// insignificant events; a 0 bit followed by E bits carries a shorter run
// ended by a significant one. Bits are packed MSB-first and a byte following
// 0xFF carries seven.
type melWriter struct {
	buf       []byte
	tmp       byte
	remaining int
	k         int
	run       int
}

func newMelWriter() *melWriter {
	return &melWriter{remaining: 8}
}

func (m *melWriter) bit(v int) {
	m.tmp = m.tmp<<1 | byte(v)
	m.remaining--
	if m.remaining == 0 {
		m.buf = append(m.buf, m.tmp)
		m.remaining = 8
		if m.tmp == 0xFF {
			m.remaining = 7
		}
		m.tmp = 0
	}
}

func (m *melWriter) encode(significant bool) {
	if !significant {
		m.run++
		if m.run == 1<<melExp[m.k] {
			m.bit(1)
			m.run = 0
			m.k = min(m.k+1, 12)
		}
		return
	}
	m.bit(0)
	for t := melExp[m.k] - 1; t >= 0; t-- {
		m.bit(m.run >> t & 1)
	}
	m.run = 0
	m.k = max(m.k-1, 0)
}

// terminate flushes the MEL stream and the VLC stream that meets it. When
// the pending bits of both fit in one byte they share it.
func terminate(mel *melWriter, vlc *backwardWriter) {
	if mel.run > 0 {
		mel.bit(1)
	}
	mel.tmp <<= mel.remaining
	melMask := byte(0xFF << mel.remaining)
	vlcMask := byte(0xFF >> (8 - vlc.used))
	if melMask|vlcMask == 0 {
		return
	}
	fused := mel.tmp | byte(vlc.tmp)
	if (fused^mel.tmp)&melMask == 0 && (fused^byte(vlc.tmp))&vlcMask == 0 && fused != 0xFF && len(vlc.buf) > 1 {
		mel.buf = append(mel.buf, fused)
		return
	}
	mel.buf = append(mel.buf, mel.tmp)
	vlc.buf = append(vlc.buf, byte(vlc.tmp))
}

// melReader decodes MEL events from the bytes between the MagSgn stream and
// the end of the segment. The low nibble of the final byte belongs to Scup
// and reads as ones, as does everything past the end.
type melReader struct {
	data []byte
	pos  int
	cur  byte
	n    int
	ff   bool

	k     int
	zeros int
	one   bool
}

func newMelReader(data []byte) *melReader {
	return &melReader{data: data}
}

func (m *melReader) bit() int {
	if m.n == 0 {
		b := byte(0xFF)
		if m.pos < len(m.data) {
			b = m.data[m.pos]
			if m.pos == len(m.data)-1 {
				b |= 0x0F
			}
			m.pos++
		}
		m.cur = b
		m.n = 8
		if m.ff {
			m.n = 7
		}
		m.ff = b == 0xFF
	}
	m.n--
	return int(m.cur>>m.n) & 1
}

// decode returns the next significance event.
func (m *melReader) decode() bool {
	if m.zeros == 0 && !m.one {
		e := melExp[m.k]
		if m.bit() == 1 {
			m.zeros = 1 << e
			m.k = min(m.k+1, 12)
		} else {
			run := 0
			for ; e > 0; e-- {
				run = run<<1 | m.bit()
			}
			m.zeros = run
			m.one = true
			m.k = max(m.k-1, 0)
		}
	}
	if m.zeros > 0 {
		m.zeros--
		return false
	}
	m.one = false
	return true
}
