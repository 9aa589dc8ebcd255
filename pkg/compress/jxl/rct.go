package jxl

// Reversible color transform on three planes, applied before squeeze and
// prediction in modular frames.
//
//	Y  = floor((R + 2G + B) / 4)
//	Cb = B - G
//	Cr = R - G

// ForwardRCT transforms r, g, b planes into Y, Cb, Cr in place
func ForwardRCT(r, g, b []int32) {
	for i := range r {
		ri, gi, bi := r[i], g[i], b[i]
		r[i] = (ri + 2*gi + bi) >> 2 // Y
		g[i] = bi - gi               // Cb
		b[i] = ri - gi               // Cr
	}
}

// InverseRCT transforms Y, Cb, Cr planes back into r, g, b in place
func InverseRCT(y, cb, cr []int32) {
	for i := range y {
		yi, cbi, cri := y[i], cb[i], cr[i]
		g := yi - ((cbi + cri) >> 2)
		y[i] = cri + g  // R
		cb[i] = g       // G
		cr[i] = cbi + g // B
	}
}
