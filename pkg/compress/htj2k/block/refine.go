package block

// stripes visits samples four rows at a time, column by column.
func stripes(w, h int, fn func(i, x, y int)) {
	for y0 := 0; y0 < h; y0 += 4 {
		for x := 0; x < w; x++ {
			for y := y0; y < min(y0+4, h); y++ {
				fn(y*w+x, x, y)
			}
		}
	}
}

// hasSignificantNeighbour reports whether any of the eight neighbours of
// (x, y) is significant.
func hasSignificantNeighbour(sig []bool, w, h, x, y int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if (dx != 0 || dy != 0) && nx >= 0 && nx < w && ny >= 0 && ny < h && sig[ny*w+nx] {
				return true
			}
		}
	}
	return false
}

// refinement is the coded SigProp and MagRef passes of plane b.
type refinement struct {
	sigProp []byte
	magRef  []byte
	// visited marks the samples SigProp coded a bit for
	visited []bool
}

// encodeRefinement codes plane b of mags below a cleanup at b+1. SigProp
// visits every sample still insignificant with a significant neighbour,
// counting samples it has just found significant, and sends the bit then,
// when set, the sign. MagRef sends bit b of every sample significant after
// the cleanup.
func encodeRefinement(mags []uint32, neg []bool, w, h, b int) refinement {
	sig := make([]bool, len(mags))
	cleanup := make([]bool, len(mags))
	for i, m := range mags {
		cleanup[i] = m>>(b+1) != 0
		sig[i] = cleanup[i]
	}
	ref := refinement{visited: make([]bool, len(mags))}
	sp := newForwardWriter()
	stripes(w, h, func(i, x, y int) {
		if sig[i] || !hasSignificantNeighbour(sig, w, h, x, y) {
			return
		}
		ref.visited[i] = true
		bit := uint64(mags[i] >> b & 1)
		sp.write(bit, 1)
		if bit == 1 {
			sp.write(b2u(neg[i]), 1)
			sig[i] = true
		}
	})
	ref.sigProp = sp.padZeros()

	mr := newMagRefWriter()
	stripes(w, h, func(i, _, _ int) {
		if cleanup[i] {
			mr.write(mags[i]>>b&1, 1)
		}
	})
	mr.flush()
	ref.magRef = mr.bytes()
	return ref
}

// decodeRefinement applies the SigProp pass and, when magRef is set, the
// MagRef pass of plane b held in seg to a block decoded down to plane b+1.
// known receives the lowest decoded plane of each sample.
func decodeRefinement(seg []byte, magRef bool, mags []uint32, neg []bool, known []uint8, w, h, b int) {
	sig := make([]bool, len(mags))
	cleanup := make([]bool, len(mags))
	for i, m := range mags {
		cleanup[i] = m != 0
		sig[i] = cleanup[i]
	}
	sp := newForwardReader(seg, 0)
	stripes(w, h, func(i, x, y int) {
		if sig[i] || !hasSignificantNeighbour(sig, w, h, x, y) {
			return
		}
		known[i] = uint8(b)
		if sp.read(1) == 1 {
			mags[i] = 1 << b
			neg[i] = sp.read(1) == 1
			sig[i] = true
		}
	})
	if !magRef {
		return
	}
	mr := newMagRefReader(seg)
	stripes(w, h, func(i, _, _ int) {
		if cleanup[i] {
			mags[i] |= mr.read(1) << b
			known[i] = uint8(b)
		}
	})
}
