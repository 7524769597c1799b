package htj2k

import (
	"context"
	"fmt"
)

// FromSamples builds an image from raw unsigned samples, one row-major slice
// per component. Precision 0 picks 8 or 16 bits from the largest sample.
// Samples outside the precision's range fail with ErrPrecisionOverflow when
// strict; otherwise they are clipped and the first clip is logged through diag.
func FromSamples(ctx context.Context, width, height int, samples [][]int, precision int, strict bool, diag *Diagnostics) (*Image, error) {
	if width <= 0 || height <= 0 || len(samples) == 0 {
		return nil, fmt.Errorf("%w: %dx%d image of %d components", ErrConfiguration, width, height, len(samples))
	}
	if precision < 0 || precision > 16 {
		return nil, fmt.Errorf("%w: precision %d", ErrConfiguration, precision)
	}
	lo, hi := 0, 0
	for c, plane := range samples {
		if len(plane) != width*height {
			return nil, fmt.Errorf("%w: component %d holds %d samples, want %d", ErrConfiguration, c, len(plane), width*height)
		}
		for _, v := range plane {
			lo, hi = min(lo, v), max(hi, v)
		}
	}
	if precision == 0 {
		precision = 8
		if hi > 255 {
			precision = 16
		}
	}
	limit := 1<<uint(precision) - 1
	if lo < 0 || hi > limit {
		if strict {
			return nil, fmt.Errorf("%w: samples span %d..%d, %d-bit range is 0..%d", ErrPrecisionOverflow, lo, hi, precision, limit)
		}
		diag.WarnOnce(ctx, EventClipped, "clipping samples to the declared precision", "min", lo, "max", hi, "precision", precision)
	}

	img := NewImage(width, height, len(samples), precision)
	clipped := 0
	for c, plane := range samples {
		dst := img.Components[c].Data
		for i, v := range plane {
			if v < 0 || v > limit {
				v = min(max(v, 0), limit)
				clipped++
			}
			dst[i] = int32(v)
		}
	}
	diag.Count(EventClipped, clipped)
	return img, nil
}
