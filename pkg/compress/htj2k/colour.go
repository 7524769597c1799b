package htj2k

// Colour transforms of ITU-T T.800 Annex G, applied in place to the first
// three components of a tile.

// ForwardRCT applies the reversible colour transform: r,g,b become Y,Cb,Cr.
func ForwardRCT(r, g, b []int32) {
	for i := range r {
		ri, gi, bi := r[i], g[i], b[i]
		r[i] = (ri + 2*gi + bi) >> 2 // floor((R + 2G + B) / 4)
		g[i] = bi - gi
		b[i] = ri - gi
	}
}

// InverseRCT undoes ForwardRCT: Y,Cb,Cr become r,g,b.
func InverseRCT(y, cb, cr []int32) {
	for i := range y {
		yi, cbi, cri := y[i], cb[i], cr[i]
		g := yi - ((cbi + cri) >> 2)
		y[i] = cri + g
		cb[i] = g
		cr[i] = cbi + g
	}
}

// ICT luma weights. Both directions derive from them so the pair is an exact
// inverse up to float64 rounding.
const (
	ictKr = 0.299
	ictKb = 0.114
	ictKg = 1 - ictKr - ictKb

	ictCrR = 2 * (1 - ictKr)        // Cr to R, 1.402
	ictCbB = 2 * (1 - ictKb)        // Cb to B, 1.772
	ictCbG = ictCbB * ictKb / ictKg // Cb to G, 0.344136...
	ictCrG = ictCrR * ictKr / ictKg // Cr to G, 0.714136...
)

// ForwardICT applies the irreversible colour transform.
func ForwardICT(r, g, b []float64) {
	for i := range r {
		ri, gi, bi := r[i], g[i], b[i]
		y := ictKr*ri + ictKg*gi + ictKb*bi
		r[i] = y
		g[i] = (bi - y) / ictCbB
		b[i] = (ri - y) / ictCrR
	}
}

// InverseICT undoes ForwardICT.
func InverseICT(y, cb, cr []float64) {
	for i := range y {
		yi, cbi, cri := y[i], cb[i], cr[i]
		y[i] = yi + ictCrR*cri
		cb[i] = yi - ictCbG*cbi - ictCrG*cri
		cr[i] = yi + ictCbB*cbi
	}
}
