package dwt

// Lifting constants of the irreversible 9/7 kernel (ITU-T T.800 Table F.4).
const (
	alpha = -1.586134342059924
	beta  = -0.052980118572961
	gamma = 0.882911075530934
	delta = 0.443506852043971
	kappa = 1.230174104914001
)

// Low-pass samples sit at even absolute coordinates. The neighbour helpers
// map the symmetric extension of the interleaved signal onto clamped indices
// into the deinterleaved low and high arrays.

// hNeighbours returns the low-pass indices on either side of high sample k.
func hNeighbours(k, nL int, even bool) (int, int) {
	a, b := k, k+1
	if !even {
		a, b = k-1, k
	}
	if a < 0 {
		a = b
	}
	if b >= nL {
		b = a
	}
	return a, b
}

// lNeighbours returns the high-pass indices on either side of low sample k.
func lNeighbours(k, nH int, even bool) (int, int) {
	a, b := k-1, k
	if !even {
		a, b = k, k+1
	}
	if a < 0 {
		a = b
	}
	if b >= nH {
		b = a
	}
	return a, b
}

// Split returns the low and high lengths of a signal [i0, i0+n).
func Split(i0, n int) (nL, nH int) {
	i1 := i0 + n
	nL = (i1+1)>>1 - (i0+1)>>1
	return nL, n - nL
}

func deinterleave[T Sample](x []T, even bool, low, high []T) {
	for j, v := range x {
		if (j&1 == 0) == even {
			low[j>>1] = v
		} else {
			high[j>>1] = v
		}
	}
}

func interleave[T Sample](low, high []T, even bool, x []T) {
	for j := range x {
		if (j&1 == 0) == even {
			x[j] = low[j>>1]
		} else {
			x[j] = high[j>>1]
		}
	}
}

// fwd53 is the reversible 5/3 analysis of x starting at absolute coordinate i0.
func fwd53(x []int32, i0 int, low, high []int32) {
	even := i0&1 == 0
	switch len(x) {
	case 0:
		return
	case 1:
		if even {
			low[0] = x[0]
		} else {
			high[0] = 2 * x[0]
		}
		return
	}
	deinterleave(x, even, low, high)
	for k := range high {
		a, b := hNeighbours(k, len(low), even)
		high[k] -= (low[a] + low[b]) >> 1
	}
	for k := range low {
		a, b := lNeighbours(k, len(high), even)
		low[k] += (high[a] + high[b] + 2) >> 2
	}
}

// inv53 undoes fwd53. low and high are used as scratch.
func inv53(low, high []int32, i0 int, x []int32) {
	even := i0&1 == 0
	switch len(x) {
	case 0:
		return
	case 1:
		if even {
			x[0] = low[0]
		} else {
			x[0] = high[0] >> 1
		}
		return
	}
	for k := range low {
		a, b := lNeighbours(k, len(high), even)
		low[k] -= (high[a] + high[b] + 2) >> 2
	}
	for k := range high {
		a, b := hNeighbours(k, len(low), even)
		high[k] += (low[a] + low[b]) >> 1
	}
	interleave(low, high, even, x)
}

func liftH(low, high []float64, even bool, w float64) {
	for k := range high {
		a, b := hNeighbours(k, len(low), even)
		high[k] += w * (low[a] + low[b])
	}
}

func liftL(low, high []float64, even bool, w float64) {
	for k := range low {
		a, b := lNeighbours(k, len(high), even)
		low[k] += w * (high[a] + high[b])
	}
}

// fwd97 is the irreversible 9/7 analysis of x starting at absolute coordinate i0.
func fwd97(x []float64, i0 int, low, high []float64) {
	even := i0&1 == 0
	switch len(x) {
	case 0:
		return
	case 1:
		if even {
			low[0] = x[0]
		} else {
			high[0] = 2 * x[0]
		}
		return
	}
	deinterleave(x, even, low, high)
	liftH(low, high, even, alpha)
	liftL(low, high, even, beta)
	liftH(low, high, even, gamma)
	liftL(low, high, even, delta)
	for k := range low {
		low[k] /= kappa
	}
	for k := range high {
		high[k] *= kappa
	}
}

// inv97 undoes fwd97. low and high are used as scratch.
func inv97(low, high []float64, i0 int, x []float64) {
	even := i0&1 == 0
	switch len(x) {
	case 0:
		return
	case 1:
		if even {
			x[0] = low[0]
		} else {
			x[0] = high[0] / 2
		}
		return
	}
	for k := range low {
		low[k] *= kappa
	}
	for k := range high {
		high[k] /= kappa
	}
	liftL(low, high, even, -delta)
	liftH(low, high, even, -gamma)
	liftL(low, high, even, -beta)
	liftH(low, high, even, -alpha)
	interleave(low, high, even, x)
}

// lin53 is the 5/3 synthesis without rounding, used for energy gains.
func lin53(low, high []float64, i0 int, x []float64) {
	even := i0&1 == 0
	switch len(x) {
	case 0:
		return
	case 1:
		if even {
			x[0] = low[0]
		} else {
			x[0] = high[0] / 2
		}
		return
	}
	liftL(low, high, even, -0.25)
	liftH(low, high, even, 0.5)
	interleave(low, high, even, x)
}
