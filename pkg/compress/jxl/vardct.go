package jxl

import (
	"bytes"
	"encoding/binary"
	"math"
)

const blockDim = 8

var (
	dctBasis  [blockDim][blockDim]float64
	zigzagPos [blockDim * blockDim]int
)

func init() {
	for k := 0; k < blockDim; k++ {
		alpha := math.Sqrt(2.0 / blockDim)
		if k == 0 {
			alpha = math.Sqrt(1.0 / blockDim)
		}
		for n := 0; n < blockDim; n++ {
			dctBasis[k][n] = alpha * math.Cos(float64(2*n+1)*float64(k)*math.Pi/(2*blockDim))
		}
	}
	// zigzag scan over anti-diagonals
	i := 0
	for s := 0; s < 2*blockDim-1; s++ {
		for d := 0; d <= s; d++ {
			u, v := d, s-d
			if s%2 == 0 {
				u, v = s-d, d
			}
			if u < blockDim && v < blockDim {
				zigzagPos[i] = v*blockDim + u
				i++
			}
		}
	}
}

// fdct computes the orthonormal 2D DCT of an 8x8 block in place
func fdct(b *[blockDim * blockDim]float64) {
	var tmp [blockDim * blockDim]float64
	for y := 0; y < blockDim; y++ {
		for u := 0; u < blockDim; u++ {
			var s float64
			for x := 0; x < blockDim; x++ {
				s += dctBasis[u][x] * b[y*blockDim+x]
			}
			tmp[y*blockDim+u] = s
		}
	}
	for u := 0; u < blockDim; u++ {
		for v := 0; v < blockDim; v++ {
			var s float64
			for y := 0; y < blockDim; y++ {
				s += dctBasis[v][y] * tmp[y*blockDim+u]
			}
			b[v*blockDim+u] = s
		}
	}
}

// idct inverts fdct in place
func idct(b *[blockDim * blockDim]float64) {
	var tmp [blockDim * blockDim]float64
	for u := 0; u < blockDim; u++ {
		for y := 0; y < blockDim; y++ {
			var s float64
			for v := 0; v < blockDim; v++ {
				s += dctBasis[v][y] * b[v*blockDim+u]
			}
			tmp[y*blockDim+u] = s
		}
	}
	for y := 0; y < blockDim; y++ {
		for x := 0; x < blockDim; x++ {
			var s float64
			for u := 0; u < blockDim; u++ {
				s += dctBasis[u][x] * tmp[y*blockDim+u]
			}
			b[y*blockDim+x] = s
		}
	}
}

// quantizer holds the step sizes for a distance and sample depth
type quantizer struct {
	steps [blockDim * blockDim]float64
}

func newQuantizer(distance float32, maxValue int32) quantizer {
	var q quantizer
	base := 0.8 * float64(distance) * float64(maxValue) / 255
	for v := 0; v < blockDim; v++ {
		for u := 0; u < blockDim; u++ {
			q.steps[v*blockDim+u] = base * (1 + 0.6*float64(u+v))
		}
	}
	return q
}

// passRanges returns the zigzag coefficient ranges coded by each pass
func passRanges(passes int) [][2]int {
	if passes == 2 {
		return [][2]int{{1, 16}, {16, 64}}
	}
	return [][2]int{{1, 64}}
}

// dcSqueezeSteps maps the progressive DC level to a squeeze step limit
func dcSqueezeSteps(progressiveDC int) int {
	switch progressiveDC {
	case 0:
		return -1
	case 1:
		return 2
	default:
		return 0
	}
}

// dctImage is the quantized coefficients of a set of planes
type dctImage struct {
	w, h   int
	bw, bh int
	planes int
	q      quantizer
	dc     [][]int32 // per plane, bw x bh
	ac     [][]int32 // per plane, per block 64 zigzag ordered coefficients
}

func newDCTImage(planes, w, h int, q quantizer) *dctImage {
	d := &dctImage{
		w: w, h: h,
		bw:     (w + blockDim - 1) / blockDim,
		bh:     (h + blockDim - 1) / blockDim,
		planes: planes,
		q:      q,
	}
	d.dc = make([][]int32, planes)
	d.ac = make([][]int32, planes)
	for c := range planes {
		d.dc[c] = make([]int32, d.bw*d.bh)
		d.ac[c] = make([]int32, d.bw*d.bh*blockDim*blockDim)
	}
	return d
}

// transform quantizes block row by of every plane; rows are independent
func (d *dctImage) transform(planes [][]int32, by int) {
	var blk [blockDim * blockDim]float64
	for c, p := range planes {
		for bx := 0; bx < d.bw; bx++ {
			for y := 0; y < blockDim; y++ {
				sy := min(by*blockDim+y, d.h-1)
				for x := 0; x < blockDim; x++ {
					sx := min(bx*blockDim+x, d.w-1)
					blk[y*blockDim+x] = float64(p[sy*d.w+sx])
				}
			}
			fdct(&blk)
			bi := by*d.bw + bx
			d.dc[c][bi] = int32(math.Round(blk[0] / d.q.steps[0]))
			ac := d.ac[c][bi*blockDim*blockDim:]
			for k := 1; k < blockDim*blockDim; k++ {
				pos := zigzagPos[k]
				ac[k] = int32(math.Round(blk[pos] / d.q.steps[pos]))
			}
		}
	}
}

// reconstruct dequantizes block row by into planes
func (d *dctImage) reconstruct(planes [][]float64, by int) {
	var blk [blockDim * blockDim]float64
	for c, p := range planes {
		for bx := 0; bx < d.bw; bx++ {
			bi := by*d.bw + bx
			blk[0] = float64(d.dc[c][bi]) * d.q.steps[0]
			ac := d.ac[c][bi*blockDim*blockDim:]
			for k := 1; k < blockDim*blockDim; k++ {
				pos := zigzagPos[k]
				blk[pos] = float64(ac[k]) * d.q.steps[pos]
			}
			idct(&blk)
			for y := 0; y < blockDim; y++ {
				sy := by*blockDim + y
				if sy >= d.h {
					break
				}
				for x := 0; x < blockDim; x++ {
					sx := bx*blockDim + x
					if sx >= d.w {
						break
					}
					p[sy*d.w+sx] = blk[y*blockDim+x]
				}
			}
		}
	}
}

// groupBlocks returns the block rectangle of pixel group g
func (d *dctImage) groupBlocks(geom geometry, g int) (bx0, by0, bx1, by1 int) {
	per := geom.gdim / blockDim
	bx0 = (g % geom.gx) * per
	by0 = (g / geom.gx) * per
	return bx0, by0, min(d.bw, bx0+per), min(d.bh, by0+per)
}

// appendAC appends the coefficients [lo, hi) of every block of group g
func (d *dctImage) appendAC(dst []byte, geom geometry, g int, rng [2]int) []byte {
	bx0, by0, bx1, by1 := d.groupBlocks(geom, g)
	for c := range d.planes {
		for by := by0; by < by1; by++ {
			for bx := bx0; bx < bx1; bx++ {
				ac := d.ac[c][(by*d.bw+bx)*blockDim*blockDim:]
				for k := rng[0]; k < rng[1]; k++ {
					dst = binary.AppendUvarint(dst, zigzag(int64(ac[k])))
				}
			}
		}
	}
	return dst
}

func (d *dctImage) readAC(payload []byte, geom geometry, g int, rng [2]int) error {
	r := bytes.NewReader(payload)
	bx0, by0, bx1, by1 := d.groupBlocks(geom, g)
	for c := range d.planes {
		for by := by0; by < by1; by++ {
			for bx := bx0; bx < bx1; bx++ {
				ac := d.ac[c][(by*d.bw+bx)*blockDim*blockDim:]
				for k := rng[0]; k < rng[1]; k++ {
					u, err := binary.ReadUvarint(r)
					if err != nil {
						return ErrTruncated
					}
					ac[k] = int32(unzigzag(u))
				}
			}
		}
	}
	return trailing(r)
}

// dcLayout returns the modular layout of the DC image
func (d *dctImage) dcLayout(progressiveDC int) *modularImage {
	var plan []squeezeStep
	if steps := dcSqueezeSteps(progressiveDC); steps >= 0 {
		plan = squeezePlan(d.bw, d.bh, steps)
	}
	return newModularLayout(d.planes, d.bw, d.bh, plan)
}

// appendDC appends the DC image, every channel coded whole
func (d *dctImage) appendDC(dst []byte, progressiveDC, effort int) []byte {
	m := d.dcLayout(progressiveDC)
	m = squeezeImage(d.dc, d.bw, d.bh, m.plan)
	for _, c := range m.channels {
		dst = appendTile(dst, c.data, c.w, c.h, effort)
	}
	return dst
}

func (d *dctImage) readDC(payload []byte, progressiveDC int) error {
	m := d.dcLayout(progressiveDC)
	r := bytes.NewReader(payload)
	for i, c := range m.channels {
		data, err := readTile(r, c.w, c.h)
		if err != nil {
			return err
		}
		m.channels[i].data = data
	}
	if err := trailing(r); err != nil {
		return err
	}
	d.dc = m.unsqueeze()
	return nil
}
