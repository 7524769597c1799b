// Package dwt implements the multi-level 2D discrete wavelet transforms of
// JPEG 2000: the reversible integer 5/3 kernel and the irreversible 9/7 kernel.
//
// Lifting honours the parity of each tile-component's absolute origin, so a
// signal starting on an odd coordinate begins with a high-pass sample.
package dwt

import (
	"fmt"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/geom"
)

// Kernel selects the wavelet filter. Values match the COD transformation field.
type Kernel int

const (
	Irreversible97 Kernel = 0
	Reversible53   Kernel = 1
)

func (k Kernel) String() string {
	if k == Reversible53 {
		return "5/3"
	}
	return "9/7"
}

// Sample constrains the coefficient types the engine runs on.
type Sample interface {
	~int32 | ~float64
}

// Band is one subband of a transformed tile-component.
type Band[T Sample] struct {
	Orient geom.Orient
	Level  int
	Rect   geom.Rect
	Data   []T // row-major, Rect.Width() x Rect.Height()
}

// NumBands returns the number of subbands produced by levels decompositions.
func NumBands(levels int) int { return 3*levels + 1 }

// BandIndex returns the position of a band in a pyramid: index 0 is the LL
// band of resolution 0, resolution r >= 1 holds HL, LH, HH at 1+3(r-1).
func BandIndex(res int, o geom.Orient) int {
	if res == 0 {
		return 0
	}
	return 1 + 3*(res-1) + int(o) - 1
}

type analysis[T Sample] func(x []T, i0 int, low, high []T)
type synthesis[T Sample] func(low, high []T, i0 int, x []T)

// Forward53 applies levels of reversible decomposition to data covering r.
func Forward53(data []int32, r geom.Rect, levels int) []Band[int32] {
	return forward(data, r, levels, fwd53)
}

// Inverse53 reconstructs the samples of r, stopping skip levels early. The
// returned rectangle is the reduced-resolution area of the output.
func Inverse53(bands []Band[int32], r geom.Rect, levels, skip int) ([]int32, geom.Rect, error) {
	return inverse(bands, r, levels, skip, inv53)
}

// Forward97 applies levels of irreversible decomposition to data covering r.
func Forward97(data []float64, r geom.Rect, levels int) []Band[float64] {
	return forward(data, r, levels, fwd97)
}

// Inverse97 reconstructs the samples of r, stopping skip levels early.
func Inverse97(bands []Band[float64], r geom.Rect, levels, skip int) ([]float64, geom.Rect, error) {
	return inverse(bands, r, levels, skip, inv97)
}

func forward[T Sample](data []T, r geom.Rect, levels int, f analysis[T]) []Band[T] {
	bands := make([]Band[T], NumBands(levels))
	cur := data
	for nb := 1; nb <= levels; nb++ {
		cr := geom.ResolutionRect(r, levels, levels-nb+1)
		ll, hl, lh, hh := split2D(cur, cr, f)
		idx := BandIndex(levels-nb+1, geom.HL)
		bands[idx] = Band[T]{Orient: geom.HL, Level: nb, Rect: geom.BandRect(r, nb, geom.HL), Data: hl}
		bands[idx+1] = Band[T]{Orient: geom.LH, Level: nb, Rect: geom.BandRect(r, nb, geom.LH), Data: lh}
		bands[idx+2] = Band[T]{Orient: geom.HH, Level: nb, Rect: geom.BandRect(r, nb, geom.HH), Data: hh}
		cur = ll
	}
	bands[0] = Band[T]{Orient: geom.LL, Level: levels, Rect: geom.BandRect(r, levels, geom.LL), Data: cur}
	return bands
}

func inverse[T Sample](bands []Band[T], r geom.Rect, levels, skip int, g synthesis[T]) ([]T, geom.Rect, error) {
	if len(bands) != NumBands(levels) {
		return nil, geom.Rect{}, fmt.Errorf("%w: %d subbands for %d decomposition levels", errs.ErrCodestreamMismatch, len(bands), levels)
	}
	if skip < 0 || skip > levels {
		return nil, geom.Rect{}, fmt.Errorf("%w: cannot skip %d of %d resolutions", errs.ErrCodestreamMismatch, skip, levels)
	}
	cur := append([]T(nil), bands[0].Data...)
	for nb := levels; nb > skip; nb-- {
		idx := BandIndex(levels-nb+1, geom.HL)
		cr := geom.ResolutionRect(r, levels, levels-nb+1)
		cur = merge2D(cur, bands[idx].Data, bands[idx+1].Data, bands[idx+2].Data, cr, g)
	}
	return cur, geom.ResolutionRect(r, levels, levels-skip), nil
}

// split2D runs one decomposition level: rows first, then columns.
func split2D[T Sample](data []T, r geom.Rect, f analysis[T]) (ll, hl, lh, hh []T) {
	w, h := r.Width(), r.Height()
	nL, nH := Split(r.X0, w)
	mL, mH := Split(r.Y0, h)

	rowL := make([]T, nL*h)
	rowH := make([]T, nH*h)
	for y := 0; y < h; y++ {
		f(data[y*w:(y+1)*w], r.X0, rowL[y*nL:(y+1)*nL], rowH[y*nH:(y+1)*nH])
	}

	ll = make([]T, nL*mL)
	lh = make([]T, nL*mH)
	hl = make([]T, nH*mL)
	hh = make([]T, nH*mH)
	columns(rowL, nL, h, r.Y0, mL, mH, ll, lh, f)
	columns(rowH, nH, h, r.Y0, mL, mH, hl, hh, f)
	return ll, hl, lh, hh
}

func columns[T Sample](plane []T, w, h, y0, mL, mH int, low, high []T, f analysis[T]) {
	col := make([]T, h)
	lo := make([]T, mL)
	hi := make([]T, mH)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = plane[y*w+x]
		}
		f(col, y0, lo, hi)
		for k := 0; k < mL; k++ {
			low[k*w+x] = lo[k]
		}
		for k := 0; k < mH; k++ {
			high[k*w+x] = hi[k]
		}
	}
}

// merge2D inverts split2D: columns first, then rows.
func merge2D[T Sample](ll, hl, lh, hh []T, r geom.Rect, g synthesis[T]) []T {
	w, h := r.Width(), r.Height()
	nL, nH := Split(r.X0, w)
	mL, mH := Split(r.Y0, h)

	rowL := make([]T, nL*h)
	rowH := make([]T, nH*h)
	uncolumns(ll, lh, nL, h, r.Y0, mL, mH, rowL, g)
	uncolumns(hl, hh, nH, h, r.Y0, mL, mH, rowH, g)

	out := make([]T, w*h)
	lo := make([]T, nL)
	hi := make([]T, nH)
	for y := 0; y < h; y++ {
		copy(lo, rowL[y*nL:(y+1)*nL])
		copy(hi, rowH[y*nH:(y+1)*nH])
		g(lo, hi, r.X0, out[y*w:(y+1)*w])
	}
	return out
}

func uncolumns[T Sample](low, high []T, w, h, y0, mL, mH int, plane []T, g synthesis[T]) {
	col := make([]T, h)
	lo := make([]T, mL)
	hi := make([]T, mH)
	for x := 0; x < w; x++ {
		for k := 0; k < mL; k++ {
			lo[k] = low[k*w+x]
		}
		for k := 0; k < mH; k++ {
			hi[k] = high[k*w+x]
		}
		g(lo, hi, y0, col)
		for y := 0; y < h; y++ {
			plane[y*w+x] = col[y]
		}
	}
}
