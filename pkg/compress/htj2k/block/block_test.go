package block

import (
	"math/rand"
	"testing"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sparseBlock fills a block with mostly small values and a few large ones.
func sparseBlock(seed int64, w, h int, peak int32) []int32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]int32, w*h)
	for i := range out {
		switch rng.Intn(10) {
		case 0, 1, 2, 3:
		case 9:
			out[i] = rng.Int31n(peak + 1)
		default:
			out[i] = rng.Int31n(8)
		}
		if rng.Intn(2) == 0 {
			out[i] = -out[i]
		}
	}
	return out
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// segmentsOf returns the codeword segment lengths of the first n passes.
func segmentsOf(s *Set, n int) []int {
	switch n {
	case 0:
		return nil
	case 1:
		return []int{s.Passes[0].Length}
	default:
		return []int{s.Passes[0].Length, s.Bytes(n) - s.Passes[0].Length}
	}
}

// melVLCSegment lays a terminated MEL and VLC pair out as the tail of a
// cleanup segment and returns it with its Scup.
func melVLCSegment(mel *melWriter, vlc *backwardWriter) ([]byte, int) {
	terminate(mel, vlc)
	seg := append(append([]byte(nil), mel.buf...), vlc.bytes()...)
	scup := len(seg)
	seg[scup-1] = byte(scup >> 4)
	seg[scup-2] = seg[scup-2]&0xF0 | byte(scup&0xF)
	return seg, scup
}

func TestPassAt(t *testing.T) {
	tests := []struct {
		i     int
		kind  PassKind
		plane int
	}{
		{0, Cleanup, 3},
		{1, SigProp, 2},
		{2, MagRef, 2},
	}
	for _, tt := range tests {
		kind, plane := PassAt(3, tt.i)
		assert.Equal(t, tt.kind, kind, "pass %d", tt.i)
		assert.Equal(t, tt.plane, plane, "pass %d", tt.i)
	}
	assert.Equal(t, "sigprop", SigProp.String())
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		peak int32
		mb   int
	}{
		{"single sample", 1, 1, 100, 10},
		{"odd shape", 3, 5, 255, 10},
		{"one row", 17, 1, 1000, 12},
		{"full block", 64, 64, 4095, 14},
		{"wide block", 128, 8, 1 << 20, 24},
		{"tall block", 4, 256, 77, 9},
		{"deep magnitudes", 8, 8, 1<<29 - 1, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sparseBlock(int64(tt.w*tt.h), tt.w, tt.h, tt.peak)
			in[0] = tt.peak
			enc, err := Encode(in, tt.w, tt.h, Params{MagnitudeBits: tt.mb})
			require.NoError(t, err)
			require.Len(t, enc.Sets, 1)
			set := &enc.Sets[0]
			assert.Equal(t, 0, set.Plane)
			assert.Equal(t, tt.mb-1, set.ZeroPlanes)
			require.Len(t, set.Passes, 1)
			assert.Equal(t, len(set.Data), set.Bytes(1))

			out, err := Decoder{MagnitudeBits: tt.mb}.Decode(set.Data, 1, segmentsOf(set, 1), tt.w, tt.h, set.ZeroPlanes)
			require.NoError(t, err)
			for i := range in {
				require.Equal(t, 2*in[i], out[i], "sample %d", i)
			}
		})
	}
}

func TestEncodeDecode_DenseBlock(t *testing.T) {
	// every quad significant with wide exponents stresses U-VLC and kappa
	rng := rand.New(rand.NewSource(21))
	in := make([]int32, 32*32)
	for i := range in {
		in[i] = rng.Int31n(1<<(rng.Intn(16)+1)) + 1
		if rng.Intn(3) == 0 {
			in[i] = -in[i]
		}
	}
	enc, err := Encode(in, 32, 32, Params{MagnitudeBits: 18})
	require.NoError(t, err)
	set := &enc.Sets[0]
	out, err := Decoder{MagnitudeBits: 18}.Decode(set.Data, 1, segmentsOf(set, 1), 32, 32, set.ZeroPlanes)
	require.NoError(t, err)
	for i := range in {
		require.Equal(t, 2*in[i], out[i], "sample %d", i)
	}
}

func TestEncode_CleanupSuffix(t *testing.T) {
	in := sparseBlock(4, 16, 16, 900)
	enc, err := Encode(in, 16, 16, Params{MagnitudeBits: 12})
	require.NoError(t, err)
	data := enc.Sets[0].Data
	l := len(data)
	scup := int(data[l-1])<<4 | int(data[l-2]&0xF)
	assert.GreaterOrEqual(t, scup, 2)
	assert.LessOrEqual(t, scup, min(l, maxScup))
	for i := 0; i+1 < l; i++ {
		if data[i] == 0xFF {
			assert.LessOrEqual(t, data[i+1], byte(0x8F), "marker code at byte %d", i)
		}
	}
}

func TestEncode_Candidates(t *testing.T) {
	const w, h, mb = 32, 20, 16
	in := sparseBlock(7, w, h, 20000)
	enc, err := Encode(in, w, h, Params{MagnitudeBits: mb, Candidates: DefaultCandidates})
	require.NoError(t, err)
	require.Len(t, enc.Sets, DefaultCandidates)
	for p0, set := range enc.Sets {
		assert.Equal(t, p0, set.Plane)
		assert.Equal(t, mb-1-p0, set.ZeroPlanes)
		if p0 == 0 {
			assert.Len(t, set.Passes, 1)
			continue
		}
		require.Len(t, set.Passes, MaxPasses)
		assert.Equal(t, SigProp, set.Passes[1].Kind)
		assert.Equal(t, p0-1, set.Passes[2].Plane)
	}
	// coarser cleanups cost less
	for i := 1; i < len(enc.Sets); i++ {
		assert.Less(t, enc.Sets[i].Passes[0].Length, enc.Sets[i-1].Passes[0].Length)
	}

	// a block with a 2-bit peak offers only two cleanup planes
	small, err := Encode([]int32{3, 0, -1, 2}, 2, 2, Params{MagnitudeBits: 8, Candidates: DefaultCandidates})
	require.NoError(t, err)
	assert.Len(t, small.Sets, 2)
}

func TestDecode_Prefixes(t *testing.T) {
	const w, h, mb = 32, 20, 16
	in := sparseBlock(7, w, h, 20000)
	enc, err := Encode(in, w, h, Params{MagnitudeBits: mb, Candidates: 5})
	require.NoError(t, err)
	dec := Decoder{MagnitudeBits: mb}
	for _, set := range enc.Sets {
		p0 := set.Plane
		for n := 0; n <= len(set.Passes); n++ {
			out, err := dec.Decode(set.Data[:set.Bytes(n)], n, segmentsOf(&set, n), w, h, set.ZeroPlanes)
			require.NoError(t, err, "set %d prefix of %d passes", p0, n)
			bound := int64(2) << p0
			if n == 0 {
				bound = 2 * 20000
			}
			if p0 == 0 && n == 1 {
				bound = 0
			}
			for i := range in {
				diff := abs64(2*int64(in[i]) - int64(out[i]))
				require.LessOrEqual(t, diff, bound, "sample %d of set %d after %d passes", i, p0, n)
				if out[i] != 0 {
					require.Equal(t, in[i] < 0, out[i] < 0, "sign of sample %d", i)
				}
			}
		}
	}
}

func TestDecode_RefinementSharpens(t *testing.T) {
	const w, h, mb = 16, 16, 14
	in := sparseBlock(9, w, h, 5000)
	enc, err := Encode(in, w, h, Params{MagnitudeBits: mb, Candidates: 3})
	require.NoError(t, err)
	set := &enc.Sets[2]
	dec := Decoder{MagnitudeBits: mb}
	cleanup, err := dec.Decode(set.Data, 1, segmentsOf(set, 1), w, h, set.ZeroPlanes)
	require.NoError(t, err)
	full, err := dec.Decode(set.Data, 3, segmentsOf(set, 3), w, h, set.ZeroPlanes)
	require.NoError(t, err)
	for i := range in {
		mag := abs64(int64(in[i]))
		if mag>>2 == 0 {
			continue
		}
		// significant at the cleanup: plane 1 is refined
		assert.LessOrEqual(t, abs64(2*int64(in[i])-int64(full[i])), int64(2), "sample %d", i)
		assert.LessOrEqual(t, abs64(2*int64(in[i])-int64(cleanup[i])), int64(4), "sample %d", i)
	}
}

func TestEncode_ZeroBlock(t *testing.T) {
	enc, err := Encode(make([]int32, 64*64), 64, 64, Params{MagnitudeBits: 9, Candidates: 3})
	require.NoError(t, err)
	assert.Empty(t, enc.Sets)

	out, err := Decoder{MagnitudeBits: 9}.Decode(nil, 0, nil, 64, 64, 8)
	require.NoError(t, err)
	assert.Equal(t, make([]int32, 64*64), out)
}

func TestEncode_PrecisionOverflow(t *testing.T) {
	_, err := Encode([]int32{0, 300, 0, 0}, 2, 2, Params{MagnitudeBits: 8})
	assert.ErrorIs(t, err, errs.ErrPrecisionOverflow)

	_, err = Encode([]int32{1, 2, 3}, 2, 2, Params{MagnitudeBits: 8})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestEncode_DistortionAccountsForEnergy(t *testing.T) {
	in := sparseBlock(3, 16, 16, 3000)
	enc, err := Encode(in, 16, 16, Params{MagnitudeBits: 13, Candidates: 3})
	require.NoError(t, err)

	var energy float64
	for _, v := range in {
		energy += float64(v) * float64(v)
	}
	assert.InDelta(t, energy, enc.Sets[0].Passes[0].Distortion, 1e-9*energy)
	for _, set := range enc.Sets[1:] {
		reduced := 0.0
		for _, p := range set.Passes {
			reduced += p.Distortion
		}
		assert.Greater(t, set.Passes[0].Distortion, 0.0, "cleanup at plane %d", set.Plane)
		assert.GreaterOrEqual(t, set.Passes[1].Distortion, 0.0, "sigprop at plane %d", set.Plane)
		assert.LessOrEqual(t, reduced, energy)
	}
}

func TestDecode_Midpoint(t *testing.T) {
	in := []int32{5, -3, 0, 1}
	enc, err := Encode(in, 2, 2, Params{MagnitudeBits: 8})
	require.NoError(t, err)
	set := &enc.Sets[0]
	out, err := Decoder{MagnitudeBits: 8, Midpoint: true}.Decode(set.Data, 1, segmentsOf(set, 1), 2, 2, set.ZeroPlanes)
	require.NoError(t, err)
	assert.Equal(t, []int32{11, -7, 0, 3}, out)
}

func TestDecode_Corruption(t *testing.T) {
	in := sparseBlock(11, 16, 16, 500)
	in[0] = 1023
	enc, err := Encode(in, 16, 16, Params{MagnitudeBits: 10, Candidates: 2})
	require.NoError(t, err)
	dec := Decoder{MagnitudeBits: 10}
	lossless := enc.Sets[0]
	cl := lossless.Passes[0].Length

	tests := []struct {
		name       string
		mutate     func(data []byte) ([]byte, int, []int)
		zeroPlanes int
	}{
		{
			name: "Scup beyond limit",
			mutate: func(data []byte) ([]byte, int, []int) {
				copy(data[cl-2:cl], []byte{0x0F, 0xFF})
				return data, 1, []int{cl}
			},
		},
		{
			name: "Scup below two",
			mutate: func(data []byte) ([]byte, int, []int) {
				data[cl-1] = 0
				data[cl-2] &= 0xF0
				return data, 1, []int{cl}
			},
		},
		{
			name: "segment shorter than Scup",
			mutate: func(data []byte) ([]byte, int, []int) {
				return data[:1], 1, []int{1}
			},
		},
		{
			name: "lengths beyond data",
			mutate: func(data []byte) ([]byte, int, []int) {
				return data[:cl-1], 1, []int{cl}
			},
		},
		{
			name: "too many passes",
			mutate: func(data []byte) ([]byte, int, []int) {
				return data, 4, []int{cl, 0}
			},
		},
		{
			name: "segment count mismatch",
			mutate: func(data []byte) ([]byte, int, []int) {
				return data, 2, []int{cl}
			},
		},
		{
			name: "refinement below plane 0",
			mutate: func(data []byte) ([]byte, int, []int) {
				return data, 2, []int{cl, 0}
			},
		},
		{
			name: "missing MSBs beyond the band",
			mutate: func(data []byte) ([]byte, int, []int) {
				return data, 1, []int{cl}
			},
			zeroPlanes: 10,
		},
		{
			name: "magnitudes beyond the band",
			mutate: func(data []byte) ([]byte, int, []int) {
				return data, 1, []int{cl}
			},
			zeroPlanes: 7,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append([]byte(nil), lossless.Data...)
			data, passes, segs := tt.mutate(data)
			zero := lossless.ZeroPlanes
			if tt.zeroPlanes != 0 {
				zero = tt.zeroPlanes
			}
			_, err := dec.Decode(data, passes, segs, 16, 16, zero)
			assert.ErrorIs(t, err, errs.ErrBitstreamCorruption)
		})
	}
}

func TestDecode_GarbageNeverPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	dec := Decoder{MagnitudeBits: 12}
	for trial := 0; trial < 300; trial++ {
		data := make([]byte, 2+rng.Intn(80))
		rng.Read(data)
		passes := 1 + rng.Intn(3)
		segs := []int{len(data)}
		if passes > 1 {
			cut := rng.Intn(len(data))
			segs = []int{cut, len(data) - cut}
		}
		assert.NotPanics(t, func() {
			_, _ = dec.Decode(data, passes, segs, 1+rng.Intn(16), 1+rng.Intn(16), rng.Intn(10))
		}, "trial %d", trial)
	}
}

func TestForwardStream_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	type field struct {
		v uint64
		n int
	}
	var fields []field
	for i := 0; i < 400; i++ {
		n := 1 + rng.Intn(32)
		v := rng.Uint64() & (1<<n - 1)
		if i%7 == 0 {
			// runs of ones force stuffing after 0xFF
			v = 1<<n - 1
		}
		fields = append(fields, field{v, n})
	}
	for _, pad := range []byte{0xFF, 0x00} {
		w := newForwardWriter()
		for _, f := range fields {
			w.write(f.v, f.n)
		}
		var data []byte
		if pad == 0xFF {
			data = w.padOnes()
		} else {
			data = w.padZeros()
		}
		r := newForwardReader(data, pad)
		for i, f := range fields {
			require.Equal(t, f.v, r.read(f.n), "field %d pad %#x", i, pad)
		}
	}
}

func TestMagRefStream_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	var want []uint32
	w := newMagRefWriter()
	for i := 0; i < 3000; i++ {
		b := uint32(rng.Intn(2))
		if i%50 < 20 {
			b = 1
		}
		want = append(want, b)
		w.write(b, 1)
	}
	w.flush()
	data := w.bytes()
	for i := 0; i+1 < len(data); i++ {
		if data[i] == 0xFF {
			assert.LessOrEqual(t, data[i+1], byte(0x8F), "marker code at byte %d", i)
		}
	}
	r := newMagRefReader(data)
	for i, b := range want {
		require.Equal(t, b, r.read(1), "bit %d", i)
	}
}

func TestMelVLC_SharedTail(t *testing.T) {
	for seed := int64(0); seed < 40; seed++ {
		rng := rand.New(rand.NewSource(seed))
		mel, vlc := newMelWriter(), newVLCWriter()
		events := make([]bool, rng.Intn(200))
		for i := range events {
			events[i] = rng.Intn(5) == 0
			mel.encode(events[i])
		}
		codes := make([]uint32, rng.Intn(60))
		for i := range codes {
			codes[i] = uint32(rng.Intn(128))
			vlc.write(codes[i], 7)
		}
		seg, scup := melVLCSegment(mel, vlc)
		require.Equal(t, scup, int(seg[len(seg)-1])<<4|int(seg[len(seg)-2]&0xF))

		mr := newMelReader(seg[:len(seg)-1])
		for i, want := range events {
			require.Equal(t, want, mr.decode(), "seed %d event %d", seed, i)
		}
		vr := newVLCReader(seg, scup)
		for i, want := range codes {
			require.Equal(t, want, vr.read(7), "seed %d code %d", seed, i)
		}
	}
}

func TestCodebooks(t *testing.T) {
	for name, book := range map[string]*codebook{"initial": initialBook, "later": laterBook} {
		t.Run(name, func(t *testing.T) {
			kraft := [8]int{}
			for i, e := range book.entries {
				require.GreaterOrEqual(t, e.len, uint8(1))
				require.LessOrEqual(t, e.len, uint8(cwdBits))
				kraft[e.c] += 1 << (cwdBits - int(e.len))
				assert.False(t, e.c == 0 && e.rho == 0, "context 0 codes the empty quad")
				// every window starting with the codeword finds the entry
				for w := 0; w < 1<<cwdBits; w++ {
					if w&(1<<e.len-1) == int(e.cwd) {
						require.Equal(t, int16(i+1), book.dec[int(e.c)<<cwdBits|w])
					}
				}
			}
			for c, k := range kraft {
				assert.LessOrEqual(t, k, 1<<cwdBits, "context %d", c)
			}
			for c := 0; c < 8; c++ {
				for rho := uint8(0); rho < 16; rho++ {
					if c == 0 && rho == 0 {
						continue
					}
					e := book.lookup(c, rho, false, 0)
					assert.Equal(t, uint8(0), e.uOff)
					assert.Equal(t, rho, e.rho)
					for eps := uint8(1); eps < 16; eps++ {
						if rho == 0 || eps&^rho != 0 {
							continue
						}
						e := book.lookup(c, rho, true, eps)
						assert.Equal(t, uint8(1), e.uOff)
						assert.Equal(t, rho, e.rho)
						assert.Equal(t, e.e1, eps&e.ek, "context %d rho %#x eps %#x", c, rho, eps)
					}
				}
			}
		})
	}
}

func TestOffsets_RoundTrip(t *testing.T) {
	var cases [][2]int
	for _, u0 := range []int{0, 1, 2, 3, 4, 5, 9, 36} {
		for _, u1 := range []int{0, 1, 2, 3, 4, 6, 36} {
			cases = append(cases, [2]int{u0, u1})
		}
	}
	for _, initial := range []bool{true, false} {
		mel, vlc := newMelWriter(), newVLCWriter()
		for _, u := range cases {
			pair := [2]cleanupQuad{{u: u[0]}, {u: u[1]}}
			require.NoError(t, encodeOffsets(mel, vlc, &pair, initial))
		}
		seg, scup := melVLCSegment(mel, vlc)
		mr := newMelReader(seg[:len(seg)-1])
		vr := newVLCReader(seg, scup)
		for _, u := range cases {
			var pair [2]cleanupQuad
			for j := range pair {
				pair[j].coded = true
				if u[j] > 0 {
					pair[j].entry.uOff = 1
				}
			}
			require.NoError(t, decodeOffsets(mr, vr, &pair, initial))
			assert.Equal(t, u, [2]int{pair[0].u, pair[1].u}, "initial %v", initial)
		}
	}

	pair := [2]cleanupQuad{{u: uvlcMax + 1}}
	assert.ErrorIs(t, encodeOffsets(newMelWriter(), newVLCWriter(), &pair, false), errs.ErrPrecisionOverflow)
}

func TestQuadContext(t *testing.T) {
	tests := []struct {
		left uint8
		q    int
		want int
	}{
		{0, 0, 4},
		{0, 1, 5},
		{0x4, 1, 7},
		{0x8, 2, 3},
		{0, 2, 1},
	}
	// only the middle quad of the row above is significant
	above := []uint8{0, 0xF, 0}
	for _, tt := range tests {
		assert.Equal(t, tt.want, laterContext(above, tt.left, tt.q), "left %#x quad %d", tt.left, tt.q)
	}
	for left, want := range map[uint8]int{0: 0, 1: 1, 2: 1, 4: 2, 8: 4, 0xF: 7} {
		assert.Equal(t, want, initialContext(left), "left %#x", left)
	}
}

func TestKappa(t *testing.T) {
	eAbove := []int{0, 3, 5, 2, 0, 0}
	assert.Equal(t, 1, kappa(0x1, eAbove, 1))
	assert.Equal(t, 4, kappa(0x3, eAbove, 1))
	assert.Equal(t, 4, kappa(0x3, eAbove, 0))
	assert.Equal(t, 1, kappa(0xF, eAbove, 3))
	assert.Equal(t, 1, kappa(0xF, []int{1, 1}, 0))
}

func TestExponent(t *testing.T) {
	for mu, want := range map[uint32]int{0: 0, 1: 1, 2: 2, 3: 3, 4: 3, 5: 4, 1 << 29: 30} {
		assert.Equal(t, want, exponent(mu), "mu %d", mu)
	}
}
