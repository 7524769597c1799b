package dwt

import (
	"math"
	"sync"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/geom"
)

// normLevels bounds the depth for which synthesis gains are measured; deeper
// levels extrapolate with the last observed ratio.
const normLevels = 10

var (
	normsOnce sync.Once
	// norms[kernel][high][level]
	norms [2][2][normLevels + 1]float64
)

func computeNorms() {
	for _, k := range []Kernel{Irreversible97, Reversible53} {
		for hi := 0; hi < 2; hi++ {
			norms[k][hi][0] = 1
			for nb := 1; nb <= normLevels; nb++ {
				norms[k][hi][nb] = synthesisNorm(k, hi == 1, nb)
			}
		}
	}
}

// synthesisNorm measures the L2 norm of the 1D synthesis basis function of a
// band at decomposition level nb.
func synthesisNorm(k Kernel, high bool, nb int) float64 {
	n := 16 << uint(nb)
	g := synthesis[float64](inv97)
	if k == Reversible53 {
		g = lin53
	}
	cur := make([]float64, n>>uint(nb))
	if !high {
		cur[len(cur)/2] = 1
	}
	for j := nb; j >= 1; j-- {
		hi := make([]float64, n>>uint(j))
		if high && j == nb {
			hi[len(hi)/2] = 1
		}
		out := make([]float64, n>>uint(j-1))
		g(cur, hi, 0, out)
		cur = out
	}
	var sum float64
	for _, v := range cur {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func norm1D(k Kernel, high bool, nb int) float64 {
	normsOnce.Do(computeNorms)
	hi := 0
	if high {
		hi = 1
	}
	if nb <= normLevels {
		return norms[k][hi][nb]
	}
	t := norms[k][hi]
	ratio := t[normLevels] / t[normLevels-1]
	return t[normLevels] * math.Pow(ratio, float64(nb-normLevels))
}

// BandNorm returns the L2 norm of the 2D synthesis basis function of a band,
// the factor by which a unit coefficient error spreads into sample energy.
func BandNorm(k Kernel, o geom.Orient, level int) float64 {
	if level == 0 {
		return 1
	}
	xob, yob := o.Offsets()
	return norm1D(k, xob == 1, level) * norm1D(k, yob == 1, level)
}
