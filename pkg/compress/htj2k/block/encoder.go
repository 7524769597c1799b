package block

import (
	"fmt"
	"math/bits"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
)

// Encode codes a w x h block of signed quantization indices.
func Encode(coeffs []int32, w, h int, p Params) (*Encoded, error) {
	if len(coeffs) != w*h {
		return nil, fmt.Errorf("%w: %d coefficients for a %dx%d block", errs.ErrConfiguration, len(coeffs), w, h)
	}
	mags := make([]uint32, len(coeffs))
	neg := make([]bool, len(coeffs))
	var peak uint32
	for i, c := range coeffs {
		if c < 0 {
			mags[i] = uint32(-int64(c))
			neg[i] = true
		} else {
			mags[i] = uint32(c)
		}
		peak = max(peak, mags[i])
	}
	enc := &Encoded{Width: w, Height: h}
	if peak == 0 {
		return enc, nil
	}
	k := bits.Len32(peak)
	if k > p.MagnitudeBits {
		return nil, fmt.Errorf("%w: magnitude %d needs %d bit-planes, band allows %d", errs.ErrPrecisionOverflow, peak, k, p.MagnitudeBits)
	}
	for p0 := 0; p0 < min(max(p.Candidates, 1), k); p0++ {
		set, err := encodeSet(mags, neg, w, h, p0)
		if err != nil {
			return nil, err
		}
		set.ZeroPlanes = p.MagnitudeBits - 1 - p0
		enc.Sets = append(enc.Sets, *set)
	}
	return enc, nil
}

// encodeSet codes the HT set with its cleanup at plane p0.
func encodeSet(mags []uint32, neg []bool, w, h, p0 int) (*Set, error) {
	mu := make([]uint32, len(mags))
	for i, m := range mags {
		mu[i] = m >> p0
	}
	seg, err := encodeCleanup(mu, neg, w, h)
	if err != nil {
		return nil, err
	}
	set := &Set{Plane: p0, Data: seg, Passes: []Pass{{Kind: Cleanup, Plane: p0, Length: len(seg)}}}
	known := make([]int, len(mags))
	for i := range known {
		known[i] = p0
	}
	prev := residual(mags, known)
	set.Passes[0].Distortion = energy(mags) - prev
	if p0 == 0 {
		return set, nil
	}

	b := p0 - 1
	ref := encodeRefinement(mags, neg, w, h, b)
	set.Data = append(set.Data, ref.sigProp...)
	set.Data = append(set.Data, ref.magRef...)
	for i, v := range ref.visited {
		if v {
			known[i] = b
		}
	}
	d := residual(mags, known)
	set.Passes = append(set.Passes, Pass{Kind: SigProp, Plane: b, Length: len(ref.sigProp), Distortion: prev - d})
	prev = d
	for i, m := range mags {
		if m>>p0 != 0 {
			known[i] = b
		}
	}
	d = residual(mags, known)
	set.Passes = append(set.Passes, Pass{Kind: MagRef, Plane: b, Length: len(ref.magRef), Distortion: prev - d})
	return set, nil
}

// reconstruct returns the decoder's estimate of magnitude m when bit-planes
// at and above plane are known: the midpoint of the remaining interval.
func reconstruct(m uint32, plane int) float64 {
	t := m >> plane << plane
	if t == 0 {
		return 0
	}
	if plane == 0 {
		return float64(t)
	}
	return float64(t) + float64(uint32(1)<<(plane-1))
}

func energy(mags []uint32) float64 {
	var e float64
	for _, m := range mags {
		e += float64(m) * float64(m)
	}
	return e
}

// residual is the squared error left when sample i is known down to
// plane known[i].
func residual(mags []uint32, known []int) float64 {
	var d float64
	for i, m := range mags {
		e := float64(m) - reconstruct(m, known[i])
		d += e * e
	}
	return d
}
