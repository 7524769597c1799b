package dwt

import (
	"math"
	"math/rand"
	"testing"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifting53_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		signal []int32
	}{
		{name: "simple 4 elements", signal: []int32{1, 2, 3, 4}},
		{name: "odd length", signal: []int32{1, 2, 3, 4, 5}},
		{name: "constant signal", signal: []int32{100, 100, 100, 100}},
		{name: "alternating", signal: []int32{0, 255, 0, 255, 0, 255, 0, 255}},
		{name: "negative values", signal: []int32{-128, 127, -3, 5, -77, 0, 1}},
		{name: "two elements", signal: []int32{100, 200}},
		{name: "single element", signal: []int32{42}},
	}

	for _, tt := range tests {
		for _, i0 := range []int{0, 1, 6, 7} {
			t.Run(tt.name, func(t *testing.T) {
				nL, nH := Split(i0, len(tt.signal))
				low := make([]int32, nL)
				high := make([]int32, nH)
				fwd53(tt.signal, i0, low, high)

				out := make([]int32, len(tt.signal))
				inv53(low, high, i0, out)
				assert.Equal(t, tt.signal, out, "i0=%d", i0)
			})
		}
	}
}

func TestLifting53_ConstantHasNoDetail(t *testing.T) {
	signal := []int32{100, 100, 100, 100, 100}
	for _, i0 := range []int{0, 1} {
		nL, nH := Split(i0, len(signal))
		low := make([]int32, nL)
		high := make([]int32, nH)
		fwd53(signal, i0, low, high)
		for _, h := range high {
			assert.Equal(t, int32(0), h)
		}
		for _, l := range low {
			assert.Equal(t, int32(100), l)
		}
	}
}

func TestSplit(t *testing.T) {
	nL, nH := Split(0, 5)
	assert.Equal(t, 3, nL)
	assert.Equal(t, 2, nH)
	nL, nH = Split(1, 5)
	assert.Equal(t, 2, nL)
	assert.Equal(t, 3, nH)
	nL, nH = Split(3, 1)
	assert.Equal(t, 0, nL)
	assert.Equal(t, 1, nH)
}

func TestForward53_Inverse53_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		rect   geom.Rect
		levels int
	}{
		{"8x8 one level", geom.Rect{X0: 0, Y0: 0, X1: 8, Y1: 8}, 1},
		{"64x64 five levels", geom.Rect{X0: 0, Y0: 0, X1: 64, Y1: 64}, 5},
		{"odd origin", geom.Rect{X0: 3, Y0: 5, X1: 40, Y1: 27}, 3},
		{"single column", geom.Rect{X0: 1, Y0: 0, X1: 2, Y1: 17}, 2},
		{"more levels than samples", geom.Rect{X0: 0, Y0: 0, X1: 5, Y1: 3}, 4},
		{"no decomposition", geom.Rect{X0: 0, Y0: 0, X1: 7, Y1: 7}, 0},
	}
	rng := rand.New(rand.NewSource(1))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]int32, tt.rect.Area())
			for i := range data {
				data[i] = int32(rng.Intn(65536)) - 32768
			}
			orig := append([]int32(nil), data...)

			bands := Forward53(data, tt.rect, tt.levels)
			require.Len(t, bands, NumBands(tt.levels))
			for _, b := range bands {
				assert.Equal(t, b.Rect.Area(), len(b.Data), "%s band at level %d", b.Orient, b.Level)
			}

			out, r, err := Inverse53(bands, tt.rect, tt.levels, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.rect, r)
			assert.Equal(t, orig, out)
		})
	}
}

func TestForward97_Inverse97_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	rect := geom.Rect{X0: 1, Y0: 2, X1: 50, Y1: 33}
	data := make([]float64, rect.Area())
	for i := range data {
		data[i] = float64(rng.Intn(256) - 128)
	}
	orig := append([]float64(nil), data...)

	bands := Forward97(data, rect, 4)
	out, _, err := Inverse97(bands, rect, 4, 0)
	require.NoError(t, err)
	for i := range orig {
		assert.InDelta(t, orig[i], out[i], 1e-9)
	}
}

func TestInverse_SkipResolutions(t *testing.T) {
	rect := geom.Rect{X0: 0, Y0: 0, X1: 33, Y1: 17}
	data := make([]int32, rect.Area())
	for i := range data {
		data[i] = 7
	}
	bands := Forward53(data, rect, 3)
	out, r, err := Inverse53(bands, rect, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, geom.Rect{X0: 0, Y0: 0, X1: 9, Y1: 5}, r)
	require.Len(t, out, r.Area())
	for _, v := range out {
		assert.Equal(t, int32(7), v)
	}
}

func TestInverse_Mismatch(t *testing.T) {
	rect := geom.Rect{X0: 0, Y0: 0, X1: 16, Y1: 16}
	bands := Forward53(make([]int32, rect.Area()), rect, 2)

	_, _, err := Inverse53(bands, rect, 3, 0)
	assert.ErrorIs(t, err, errs.ErrCodestreamMismatch)
	_, _, err = Inverse53(bands, rect, 2, 3)
	assert.ErrorIs(t, err, errs.ErrCodestreamMismatch)
}

func TestBandNorm(t *testing.T) {
	assert.InDelta(t, 1.5, BandNorm(Reversible53, geom.LL, 1), 1e-9)
	assert.InDelta(t, 0.71875, BandNorm(Reversible53, geom.HH, 1), 1e-9)
	assert.InDelta(t, math.Sqrt(1.5*0.71875), BandNorm(Reversible53, geom.HL, 1), 1e-9)
	assert.Equal(t, 1.0, BandNorm(Irreversible97, geom.LL, 0))

	for _, k := range []Kernel{Reversible53, Irreversible97} {
		prev := 1.0
		for nb := 1; nb <= 12; nb++ {
			n := BandNorm(k, geom.LL, nb)
			assert.Greater(t, n, prev, "%s LL norm grows with depth", k)
			prev = n
		}
	}
}
