package block

import (
	"fmt"
	"math/bits"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
)

// exponent is the bit length of 2*mu-1, the MagSgn width a significant
// magnitude mu needs including its sign.
func exponent(mu uint32) int {
	if mu == 0 {
		return 0
	}
	return bits.Len64(2*uint64(mu) - 1)
}

// quadSamples returns the block indices of the samples of quad (qx, qy),
// -1 for samples outside the block.
func quadSamples(w, h, qx, qy int) [4]int {
	var out [4]int
	for n := 0; n < 4; n++ {
		x, y := 2*qx+n>>1, 2*qy+n&1
		out[n] = -1
		if x < w && y < h {
			out[n] = y*w + x
		}
	}
	return out
}

// initialContext derives the context of a first-row quad from the quad on
// its left.
func initialContext(left uint8) int {
	return int(left>>1 | left&1)
}

// laterContext derives the context of quad q from the quad on its left and
// the bottom samples of the quad row above: bit 0 for the samples above and
// above-left, bit 1 for the two on the left, bit 2 for the two above-right.
func laterContext(above []uint8, left uint8, q int) int {
	c := int(above[q] >> 1 & 1)
	if q > 0 {
		c |= int(above[q-1] >> 3 & 1)
	}
	c |= int((left>>2|left>>3)&1) << 1
	ne := above[q] >> 3 & 1
	if q+1 < len(above) {
		ne |= above[q+1] >> 1 & 1
	}
	return c | int(ne)<<2
}

// kappa is the exponent predictor of a quad below the first row: one less
// than the largest exponent among the four samples above it, for quads with
// more than one significant sample.
func kappa(rho uint8, eAbove []int, q int) int {
	if bits.OnesCount8(rho) < 2 {
		return 1
	}
	e := 0
	for x := max(2*q-1, 0); x <= 2*q+2 && x < len(eAbove); x++ {
		e = max(e, eAbove[x])
	}
	return max(e-1, 1)
}

// cleanupQuad is the coding state of one quad.
type cleanupQuad struct {
	idx   [4]int
	rho   uint8
	c     int
	coded bool // a CxtVLC codeword is sent
	entry cxtEntry
	big   int // exponent bound U
	u     int // offset above the predictor, 0 when not sent
}

// encodeCleanup codes the magnitudes mu (already shifted down to the cleanup
// plane) and signs of a block into one cleanup segment.
func encodeCleanup(mu []uint32, neg []bool, w, h int) ([]byte, error) {
	qw, qh := (w+1)/2, (h+1)/2
	mel := newMelWriter()
	vlc := newVLCWriter()
	ms := newForwardWriter()

	rhoAbove, rhoCur := make([]uint8, qw), make([]uint8, qw)
	eAbove, eCur := make([]int, w), make([]int, w)
	for qy := 0; qy < qh; qy++ {
		book := laterBook
		if qy == 0 {
			book = initialBook
		}
		clear(rhoCur)
		clear(eCur)
		for qx := 0; qx < qw; qx += 2 {
			var pair [2]cleanupQuad
			n := min(2, qw-qx)
			for j := 0; j < n; j++ {
				q := &pair[j]
				x := qx + j
				q.idx = quadSamples(w, h, x, qy)
				emax := 0
				for s, i := range q.idx {
					if i >= 0 && mu[i] != 0 {
						q.rho |= 1 << s
						emax = max(emax, exponent(mu[i]))
					}
				}
				var left uint8
				if x > 0 {
					left = rhoCur[x-1]
				}
				k := 1
				if qy == 0 {
					q.c = initialContext(left)
				} else {
					q.c = laterContext(rhoAbove, left, x)
					k = kappa(q.rho, eAbove, x)
				}
				rhoCur[x] = q.rho
				if q.c == 0 {
					mel.encode(q.rho != 0)
				}
				if q.c == 0 && q.rho == 0 {
					continue
				}
				q.coded = true
				var eps uint8
				if q.rho != 0 {
					q.big = max(emax, k)
					q.u = q.big - k
					if q.u > 0 {
						for s, i := range q.idx {
							if i >= 0 && mu[i] != 0 && exponent(mu[i]) == q.big {
								eps |= 1 << s
							}
						}
					}
				}
				q.entry = book.lookup(q.c, q.rho, q.u > 0, eps)
				for s, i := range q.idx {
					if i >= 0 && s&1 == 1 {
						eCur[2*x+s>>1] = exponent(mu[i])
					}
				}
			}

			for j := 0; j < n; j++ {
				if pair[j].coded {
					vlc.write(uint32(pair[j].entry.cwd), int(pair[j].entry.len))
				}
			}
			if err := encodeOffsets(mel, vlc, &pair, qy == 0); err != nil {
				return nil, err
			}
			for j := 0; j < n; j++ {
				q := &pair[j]
				for s, i := range q.idx {
					if q.rho>>s&1 == 0 {
						continue
					}
					m := q.big - int(q.entry.ek>>s&1)
					v := 2*uint64(mu[i]-1) + b2u(neg[i])
					ms.write(v, m)
				}
			}
		}
		rhoAbove, rhoCur = rhoCur, rhoAbove
		eAbove, eCur = eCur, eAbove
	}

	magsgn := ms.padOnes()
	terminate(mel, vlc)
	scup := len(mel.buf) + len(vlc.buf)
	if scup > maxScup {
		return nil, fmt.Errorf("%w: MEL and VLC need %d bytes, a cleanup segment holds %d", errs.ErrConfiguration, scup, maxScup)
	}
	out := make([]byte, 0, len(magsgn)+scup)
	out = append(out, magsgn...)
	out = append(out, mel.buf...)
	out = append(out, vlc.bytes()...)
	l := len(out)
	out[l-1] = byte(scup >> 4)
	out[l-2] = out[l-2]&0xF0 | byte(scup&0xF)
	return out, nil
}

// encodeOffsets sends the U-VLC exponent offsets of a quad pair. In the
// first row a MEL bit flags pairs whose offsets both exceed 2; those send
// u-2, and otherwise a first offset above 2 implies a second of 1 or 2,
// which takes a single bit.
func encodeOffsets(mel *melWriter, vlc *backwardWriter, pair *[2]cleanupQuad, initial bool) error {
	u0, u1 := pair[0].u, pair[1].u
	if max(u0, u1) > uvlcMax {
		return fmt.Errorf("%w: exponent offset %d exceeds %d", errs.ErrPrecisionOverflow, max(u0, u1), uvlcMax)
	}
	if initial && u0 > 0 && u1 > 0 {
		both := min(u0, u1) > 2
		mel.encode(both)
		switch {
		case both:
			u0, u1 = u0-2, u1-2
		case u0 > 2:
			c := uvlc(u0)
			vlc.write(uint32(c.prefix), c.prefixLen)
			vlc.write(uint32(u1-1), 1)
			vlc.write(uint32(c.suffix), c.suffixLen)
			return nil
		}
	}
	var codes []uvlcCode
	for _, u := range []int{u0, u1} {
		if u > 0 {
			codes = append(codes, uvlc(u))
		}
	}
	for _, c := range codes {
		vlc.write(uint32(c.prefix), c.prefixLen)
	}
	for _, c := range codes {
		vlc.write(uint32(c.suffix), c.suffixLen)
	}
	return nil
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// decodeCleanup reconstructs the cleanup-plane magnitudes and signs of a
// block. limit is the number of magnitude bits the cleanup may carry.
func decodeCleanup(seg []byte, w, h, limit int) ([]uint32, []bool, error) {
	l := len(seg)
	if l < 2 {
		return nil, nil, corrupt("cleanup segment of %d bytes", l)
	}
	scup := int(seg[l-1])<<4 | int(seg[l-2]&0xF)
	if scup < 2 || scup > l || scup > maxScup {
		return nil, nil, corrupt("Scup %d in a cleanup segment of %d bytes", scup, l)
	}
	ms := newForwardReader(seg[:l-scup], 0xFF)
	mel := newMelReader(seg[l-scup : l-1])
	vlc := newVLCReader(seg, scup)

	mu := make([]uint32, w*h)
	neg := make([]bool, w*h)
	qw, qh := (w+1)/2, (h+1)/2
	rhoAbove, rhoCur := make([]uint8, qw), make([]uint8, qw)
	eAbove, eCur := make([]int, w), make([]int, w)
	for qy := 0; qy < qh; qy++ {
		book := laterBook
		if qy == 0 {
			book = initialBook
		}
		clear(rhoCur)
		clear(eCur)
		for qx := 0; qx < qw; qx += 2 {
			var pair [2]cleanupQuad
			n := min(2, qw-qx)
			for j := 0; j < n; j++ {
				q := &pair[j]
				x := qx + j
				q.idx = quadSamples(w, h, x, qy)
				var left uint8
				if x > 0 {
					left = rhoCur[x-1]
				}
				if qy == 0 {
					q.c = initialContext(left)
				} else {
					q.c = laterContext(rhoAbove, left, x)
				}
				if q.c == 0 && !mel.decode() {
					continue
				}
				e, err := book.decode(vlc, q.c)
				if err != nil {
					return nil, nil, err
				}
				q.coded = true
				q.entry = e
				q.rho = e.rho
				rhoCur[x] = q.rho
				for s, i := range q.idx {
					if q.rho>>s&1 == 1 && i < 0 {
						return nil, nil, corrupt("significant sample outside %dx%d block", w, h)
					}
				}
			}

			if err := decodeOffsets(mel, vlc, &pair, qy == 0); err != nil {
				return nil, nil, err
			}
			for j := 0; j < n; j++ {
				q := &pair[j]
				if q.rho == 0 {
					continue
				}
				x := qx + j
				k := 1
				if qy > 0 {
					k = kappa(q.rho, eAbove, x)
				}
				q.big = q.u + k
				if q.big > limit+1 {
					return nil, nil, corrupt("exponent bound %d exceeds %d magnitude bits", q.big, limit)
				}
				for s, i := range q.idx {
					if q.rho>>s&1 == 0 {
						continue
					}
					m := q.big - int(q.entry.ek>>s&1)
					v := ms.read(m) | uint64(q.entry.e1>>s&1)<<m
					if v>>1 >= 1<<limit-1 {
						return nil, nil, corrupt("magnitude %d exceeds %d bits", v>>1+1, limit)
					}
					mu[i] = uint32(v>>1) + 1
					neg[i] = v&1 == 1
					if s&1 == 1 {
						eCur[2*x+s>>1] = exponent(mu[i])
					}
				}
			}
		}
		rhoAbove, rhoCur = rhoCur, rhoAbove
		eAbove, eCur = eCur, eAbove
	}
	return mu, neg, nil
}

// decodeOffsets reads the U-VLC exponent offsets of a quad pair whose
// codewords have been decoded.
func decodeOffsets(mel *melReader, vlc *backwardReader, pair *[2]cleanupQuad, initial bool) error {
	var want []*cleanupQuad
	for j := range pair {
		if pair[j].coded && pair[j].entry.uOff == 1 {
			want = append(want, &pair[j])
		}
	}
	bias := 0
	if initial && len(want) == 2 {
		if mel.decode() {
			bias = 2
		} else {
			base, width := uvlcPrefix(vlc)
			if base >= 3 {
				want[1].u = int(vlc.read(1)) + 1
				want[0].u = base + int(vlc.read(width))
				return nil
			}
			want[0].u = base
			want = want[1:]
		}
	}
	bases := make([]int, len(want))
	widths := make([]int, len(want))
	for j := range want {
		bases[j], widths[j] = uvlcPrefix(vlc)
	}
	for j, q := range want {
		q.u = bases[j] + int(vlc.read(widths[j])) + bias
	}
	return nil
}
