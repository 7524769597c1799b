// Package quant implements the scalar dead-zone quantizer and the QCD step
// size tables of JPEG 2000.
package quant

import (
	"fmt"
	"math"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/dwt"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/geom"
)

// GuardBits is the number of guard bits written to QCD.
const GuardBits = 2

// MaxMagnitudeBits bounds Mb so decoded magnitudes fit an int32 with one
// fractional bit.
const MaxMagnitudeBits = 30

// DefaultQStep is the base step of irreversible coding.
const DefaultQStep = 0.0039

// Style is the Sqcd quantization style.
type Style byte

const (
	StyleNone    Style = 0 // reversible, exponents only
	StyleDerived Style = 1
	StyleExpound Style = 2
)

// StepSize is an (exponent, mantissa) pair as carried in QCD.
type StepSize struct {
	Exponent int // 5 bits
	Mantissa int // 11 bits
}

// Delta returns the step size relative to the nominal range rb bits.
func (s StepSize) Delta(rb int) float64 {
	return math.Ldexp(1+float64(s.Mantissa)/2048, rb-s.Exponent)
}

// ExpMantissa splits an absolute step size into exponent and mantissa
// relative to 2^rb, clamped to the QCD field widths.
func ExpMantissa(step float64, rb int) StepSize {
	if step <= 0 {
		return StepSize{Exponent: rb}
	}
	exponent := min(max(rb-int(math.Floor(math.Log2(step))), 0), 31)
	normalized := step / math.Ldexp(1, rb-exponent)
	mantissa := min(max(int(math.Round((normalized-1)*2048)), 0), 2047)
	return StepSize{Exponent: exponent, Mantissa: mantissa}
}

// Gain returns log2 of the nominal gain of a subband orientation.
func Gain(o geom.Orient) int {
	switch o {
	case geom.HL, geom.LH:
		return 1
	case geom.HH:
		return 2
	default:
		return 0
	}
}

// BandAt returns the orientation and decomposition level of band idx in the
// pyramid order used by dwt.
func BandAt(levels, idx int) (geom.Orient, int) {
	if idx == 0 {
		return geom.LL, levels
	}
	r := (idx-1)/3 + 1
	return geom.HL + geom.Orient((idx-1)%3), levels - r + 1
}

// Table holds one step size per subband.
type Table struct {
	Style     Style
	Guard     int
	Precision int
	Steps     []StepSize
}

// Reversible builds the QCD table of the 5/3 path: no quantization, the
// exponent only records the dynamic range of each band.
func Reversible(levels, precision int, colour bool) Table {
	t := Table{Style: StyleNone, Guard: GuardBits, Precision: precision}
	extra := 0
	if colour {
		extra = 1
	}
	for i := 0; i < dwt.NumBands(levels); i++ {
		o, _ := BandAt(levels, i)
		t.Steps = append(t.Steps, StepSize{Exponent: precision + Gain(o) + extra})
	}
	return t
}

// Irreversible builds the expounded QCD table of the 9/7 path. The absolute
// step of a band is qstep scaled to the sample range and divided by the
// band's synthesis norm.
func Irreversible(levels, precision int, qstep float64) Table {
	t := Table{Style: StyleExpound, Guard: GuardBits, Precision: precision}
	for i := 0; i < dwt.NumBands(levels); i++ {
		o, nb := BandAt(levels, i)
		step := qstep * math.Ldexp(1, precision) / dwt.BandNorm(dwt.Irreversible97, o, nb)
		t.Steps = append(t.Steps, ExpMantissa(step, precision+Gain(o)))
	}
	return t
}

// Validate checks every band fits the block coder's magnitude range.
func (t Table) Validate() error {
	for i := range t.Steps {
		if mb := t.MagnitudeBits(i); mb > MaxMagnitudeBits {
			return fmt.Errorf("%w: band %d needs %d magnitude bit-planes, at most %d supported", errs.ErrConfiguration, i, mb, MaxMagnitudeBits)
		}
	}
	return nil
}

// MagnitudeBits returns Mb of band idx.
func (t Table) MagnitudeBits(idx int) int {
	return t.Guard + t.Steps[idx].Exponent - 1
}

// Delta returns the absolute step size of band idx; 1 for reversible tables.
func (t Table) Delta(levels, idx int) float64 {
	if t.Style == StyleNone {
		return 1
	}
	o, _ := BandAt(levels, idx)
	return t.Steps[idx].Delta(t.Precision + Gain(o))
}

// Quantize maps coefficients to signed quantization indices,
// q = sign(c) * floor(|c| / delta).
func Quantize(coeffs []float64, delta float64, dst []int32) {
	inv := 1 / delta
	for i, c := range coeffs {
		if c < 0 {
			dst[i] = -int32(-c * inv)
		} else {
			dst[i] = int32(c * inv)
		}
	}
}

// Dequantize scales decoded values carried at twice their magnitude (so the
// reconstruction offset stays integral) back to coefficients.
func Dequantize(doubled []int32, delta float64, dst []float64) {
	half := delta / 2
	for i, v := range doubled {
		dst[i] = float64(v) * half
	}
}

// Halve converts doubled reversible values back to integer coefficients.
func Halve(doubled []int32, dst []int32) {
	for i, v := range doubled {
		if v < 0 {
			dst[i] = -((-v) >> 1)
		} else {
			dst[i] = v >> 1
		}
	}
}
