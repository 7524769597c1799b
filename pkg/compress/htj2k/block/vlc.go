package block

import (
	"math/bits"
	"sort"
)

// A quad is a 2x2 group of samples. Bit n of its significance pattern rho
// refers to sample n: 0 at (x, y), 1 at (x, y+1), 2 at (x+1, y) and 3 at
// (x+1, y+1).

// cwdBits is the longest CxtVLC codeword.
const cwdBits = 7

// cxtEntry is one CxtVLC codeword. It carries the significance pattern of a
// quad, whether the quad's exponent bound exceeds its predictor (uOff), the
// samples whose top MagSgn bit is implied (ek) and the value of those bits
// (e1). Codewords are stored bit-reversed, ready to be sent LSB-first.
type cxtEntry struct {
	c, rho, uOff, ek, e1 uint8
	cwd, len             uint8
}

type codebook struct {
	entries []cxtEntry
	// dec maps context and the next cwdBits stream bits to entry index+1
	dec [8 << cwdBits]int16
	// enc maps context, rho, uOff and the samples at the exponent bound to
	// the cheapest usable entry
	enc [8][16][2][16]int16
}

// The first quad row and the rows below it see different neighbourhoods and
// use separate codebooks.
var (
	initialBook = newCodebook(3)
	laterBook   = newCodebook(2)
)

// newCodebook derives a prefix code for every context from a simple source
// model: each sample is significant with probability (base+3n)/16 given n
// significant context bits, and exponent offsets are as likely as not. The
// model only shapes codeword lengths; any model yields a decodable book.
func newCodebook(base int) *codebook {
	b := &codebook{}
	for c := uint8(0); c < 8; c++ {
		p := base + 3*bits.OnesCount8(c)
		first := len(b.entries)
		var weights []int
		add := func(e cxtEntry, w int) {
			b.entries = append(b.entries, e)
			weights = append(weights, w)
		}
		for rho := uint8(0); rho < 16; rho++ {
			if c == 0 && rho == 0 {
				// MEL signals the empty quad
				continue
			}
			wr := 1
			for n := 0; n < 4; n++ {
				if rho>>n&1 == 1 {
					wr *= p
				} else {
					wr *= 16 - p
				}
			}
			add(cxtEntry{c: c, rho: rho}, 60*wr)
			if rho == 0 {
				continue
			}
			k := bits.OnesCount8(rho)
			if k == 1 {
				add(cxtEntry{c: c, rho: rho, uOff: 1, ek: rho, e1: rho}, 60*wr)
				continue
			}
			add(cxtEntry{c: c, rho: rho, uOff: 1}, 12*wr)
			for n := 0; n < 4; n++ {
				if rho>>n&1 == 1 {
					add(cxtEntry{c: c, rho: rho, uOff: 1, ek: 1 << n, e1: 1 << n}, 36/k*wr)
				}
			}
			add(cxtEntry{c: c, rho: rho, uOff: 1, ek: rho, e1: rho}, 12*wr)
		}
		assignCodewords(b.entries[first:], weights)
	}

	for i, e := range b.entries {
		for w := 0; w < 1<<cwdBits; w++ {
			if w&(1<<e.len-1) == int(e.cwd) {
				b.dec[int(e.c)<<cwdBits|w] = int16(i + 1)
			}
		}
	}
	for i := range b.enc {
		for j := range b.enc[i] {
			for k := range b.enc[i][j] {
				for l := range b.enc[i][j][k] {
					b.enc[i][j][k][l] = -1
				}
			}
		}
	}
	for i, e := range b.entries {
		if e.uOff == 0 {
			b.enc[e.c][e.rho][0][0] = int16(i)
			continue
		}
		for eps := uint8(1); eps < 16; eps++ {
			if eps&^e.rho != 0 || eps&e.ek != e.e1 {
				continue
			}
			slot := &b.enc[e.c][e.rho][1][eps]
			if *slot < 0 || e.cost() < b.entries[*slot].cost() {
				*slot = int16(i)
			}
		}
	}
	return b
}

// cost is the codeword length net of the MagSgn bits the entry saves.
func (e cxtEntry) cost() int {
	return int(e.len) - bits.OnesCount8(e.ek)
}

// assignCodewords gives entries canonical prefix codewords with lengths near
// -log2 of their weight share, capped at cwdBits.
func assignCodewords(entries []cxtEntry, weights []int) {
	total := 0
	for _, w := range weights {
		total += w
	}
	lens := make([]int, len(entries))
	kraft := 0 // in units of 2^-cwdBits
	for i, w := range weights {
		l := 1
		for w<<l < total && l < cwdBits {
			l++
		}
		lens[i] = l
		kraft += 1 << (cwdBits - l)
	}
	for kraft > 1<<cwdBits {
		// lengthen the least likely codeword that can still grow
		pick := -1
		for i, l := range lens {
			if l < cwdBits && (pick < 0 || weights[i] < weights[pick]) {
				pick = i
			}
		}
		kraft -= 1 << (cwdBits - lens[pick] - 1)
		lens[pick]++
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return lens[order[a]] < lens[order[b]] })
	code, prev := 0, 0
	for _, i := range order {
		code <<= lens[i] - prev
		prev = lens[i]
		entries[i].len = uint8(lens[i])
		entries[i].cwd = uint8(bits.Reverse8(uint8(code)) >> (8 - lens[i]))
		code++
	}
}

// lookup returns the entry coding a quad. eps holds the samples whose
// exponent reaches the bound and only matters when uOff is set.
func (b *codebook) lookup(c int, rho uint8, uOff bool, eps uint8) cxtEntry {
	if !uOff {
		return b.entries[b.enc[c][rho][0][0]]
	}
	return b.entries[b.enc[c][rho][1][eps]]
}

// decode reads one codeword in context c.
func (b *codebook) decode(r *backwardReader, c int) (cxtEntry, error) {
	i := b.dec[c<<cwdBits|int(r.peek(cwdBits))]
	if i == 0 {
		return cxtEntry{}, corrupt("invalid codeword in context %d", c)
	}
	e := b.entries[i-1]
	r.skip(int(e.len))
	return e, nil
}

// U-VLC codes the exponent offset u >= 1 of a quad as a prefix, sent with
// the prefix of its pair partner, and a suffix:
//
//	u = 1     "1"
//	u = 2     "01"
//	u = 3..4  "001" + 1 bit
//	u >= 5    "000" + 5 bits
//
// bits are listed in stream order.

// uvlcMax is the largest offset U-VLC can carry.
const uvlcMax = 5 + 31

type uvlcCode struct {
	prefix, prefixLen int
	suffix, suffixLen int
}

func uvlc(u int) uvlcCode {
	switch {
	case u == 1:
		return uvlcCode{prefix: 1, prefixLen: 1}
	case u == 2:
		return uvlcCode{prefix: 2, prefixLen: 2}
	case u <= 4:
		return uvlcCode{prefix: 4, prefixLen: 3, suffix: u - 3, suffixLen: 1}
	default:
		return uvlcCode{prefix: 0, prefixLen: 3, suffix: u - 5, suffixLen: 5}
	}
}

// uvlcPrefix reads a prefix and returns the base offset and suffix width.
func uvlcPrefix(r *backwardReader) (int, int) {
	p := r.peek(3)
	switch {
	case p&1 != 0:
		r.skip(1)
		return 1, 0
	case p&2 != 0:
		r.skip(2)
		return 2, 0
	case p&4 != 0:
		r.skip(3)
		return 3, 1
	default:
		r.skip(3)
		return 5, 5
	}
}
