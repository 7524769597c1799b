package block

// maxMagnitudeBits keeps doubled magnitudes within int32.
const maxMagnitudeBits = 30

// Decoder reconstructs blocks. Values are returned at twice their magnitude
// so the half-step reconstruction offset stays integral.
type Decoder struct {
	// MagnitudeBits is Mb of the band
	MagnitudeBits int
	// Midpoint adds half a quantization step to fully decoded nonzero
	// values; irreversible bands set it, reversible bands do not.
	Midpoint bool
}

// Decode reconstructs a w x h block from the first passes of an HT set whose
// codeword segments have the given lengths: the cleanup segment, then the
// refinement segment once passes exceed one. zeroPlanes is the signalled
// missing MSB count. Zero passes yield an all-zero block.
func (d Decoder) Decode(data []byte, passes int, segments []int, w, h, zeroPlanes int) ([]int32, error) {
	out := make([]int32, w*h)
	if passes == 0 {
		return out, nil
	}
	if passes > MaxPasses {
		return nil, corrupt("%d passes in one HT set", passes)
	}
	if want := min(passes, 2); len(segments) != want {
		return nil, corrupt("%d passes in %d codeword segments", passes, len(segments))
	}
	total := 0
	for _, l := range segments {
		if l < 0 {
			return nil, corrupt("negative segment length")
		}
		total += l
	}
	if total > len(data) {
		return nil, corrupt("segments need %d bytes, have %d", total, len(data))
	}
	p0 := d.MagnitudeBits - 1 - zeroPlanes
	if p0 < 0 {
		return nil, corrupt("%d missing MSBs with %d magnitude bit-planes", zeroPlanes, d.MagnitudeBits)
	}
	limit := min(d.MagnitudeBits, maxMagnitudeBits) - p0
	if limit < 1 {
		return nil, corrupt("cleanup plane %d leaves no magnitude bits", p0)
	}
	if passes > 1 && p0 == 0 {
		return nil, corrupt("refinement passes below cleanup plane 0")
	}

	mu, neg, err := decodeCleanup(data[:segments[0]], w, h, limit)
	if err != nil {
		return nil, err
	}
	mags := mu
	known := make([]uint8, w*h)
	for i := range mags {
		mags[i] <<= p0
		known[i] = uint8(p0)
	}
	if passes > 1 {
		seg := data[segments[0] : segments[0]+segments[1]]
		decodeRefinement(seg, passes > 2, mags, neg, known, w, h, p0-1)
	}

	for i, m := range mags {
		if m == 0 {
			continue
		}
		v := 2 * int64(m)
		switch {
		case known[i] > 0:
			v += 1 << known[i]
		case d.Midpoint:
			v++
		}
		if neg[i] {
			v = -v
		}
		out[i] = int32(v)
	}
	return out, nil
}
