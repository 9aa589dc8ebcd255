package jxl

import (
	"bytes"
	"fmt"
)

// channel is one plane of a modular image after transforms. Squeezed
// channels carry the accumulated horizontal and vertical downscale shifts.
type channel struct {
	w, h   int
	hshift int
	vshift int
	data   []int32
}

// global channels are small enough to live in the global section
func (c channel) global() bool {
	return c.hshift >= 3 && c.vshift >= 3
}

// tileRect returns the part of c covered by group g, possibly empty
func (c channel) tileRect(geom geometry, g int) (x0, y0, x1, y1 int) {
	tw := max(1, geom.gdim>>c.hshift)
	th := max(1, geom.gdim>>c.vshift)
	x0 = min(c.w, (g%geom.gx)*tw)
	y0 = min(c.h, (g/geom.gx)*th)
	x1 = min(c.w, x0+tw)
	y1 = min(c.h, y0+th)
	return x0, y0, x1, y1
}

// modularImage is a set of equally sized planes, squeezed by plan
type modularImage struct {
	w, h     int
	planes   int
	plan     []squeezeStep
	channels []channel
}

// newModularLayout describes the channels of an image without data.
// Order: the squeezed base of every plane, then the residuals from the
// last squeeze step to the first, plane by plane.
func newModularLayout(planes, w, h int, plan []squeezeStep) *modularImage {
	m := &modularImage{w: w, h: h, planes: planes, plan: plan}
	bw, bh := w, h
	var hs, vs int
	shifts := make([][2]int, len(plan))
	for k, s := range plan {
		bw, bh = s.avgDims()
		if s.horizontal {
			hs++
		} else {
			vs++
		}
		shifts[k] = [2]int{hs, vs}
	}
	for range planes {
		m.channels = append(m.channels, channel{w: bw, h: bh, hshift: hs, vshift: vs})
	}
	for k := len(plan) - 1; k >= 0; k-- {
		rw, rh := plan[k].resDims()
		for range planes {
			m.channels = append(m.channels, channel{w: rw, h: rh, hshift: shifts[k][0], vshift: shifts[k][1]})
		}
	}
	return m
}

// squeezeImage applies plan to the planes and returns the filled layout
func squeezeImage(planes [][]int32, w, h int, plan []squeezeStep) *modularImage {
	m := newModularLayout(len(planes), w, h, plan)
	n := len(planes)
	for c, cur := range planes {
		for k, s := range plan {
			avg, res := squeezeChannel(s, cur)
			m.channels[n+(len(plan)-1-k)*n+c].data = res
			cur = avg
		}
		m.channels[c].data = cur
	}
	return m
}

// unsqueeze reverses squeezeImage on filled channels
func (m *modularImage) unsqueeze() [][]int32 {
	n := m.planes
	planes := make([][]int32, n)
	for c := range planes {
		cur := m.channels[c].data
		for k := len(m.plan) - 1; k >= 0; k-- {
			cur = unsqueezeChannel(m.plan[k], cur, m.channels[n+(len(m.plan)-1-k)*n+c].data)
		}
		planes[c] = cur
	}
	return planes
}

func (m *modularImage) allocate() {
	for i := range m.channels {
		m.channels[i].data = make([]int32, m.channels[i].w*m.channels[i].h)
	}
}

// appendGlobal appends the tiles of the global channels
func (m *modularImage) appendGlobal(dst []byte, effort int) []byte {
	for _, c := range m.channels {
		if c.global() {
			dst = appendTile(dst, c.data, c.w, c.h, effort)
		}
	}
	return dst
}

// appendGroup appends the tiles of group g of the remaining channels
func (m *modularImage) appendGroup(dst []byte, geom geometry, g, effort int) []byte {
	for _, c := range m.channels {
		if c.global() {
			continue
		}
		x0, y0, x1, y1 := c.tileRect(geom, g)
		tw, th := x1-x0, y1-y0
		if tw == 0 || th == 0 {
			continue
		}
		tile := make([]int32, 0, tw*th)
		for y := y0; y < y1; y++ {
			tile = append(tile, c.data[y*c.w+x0:y*c.w+x1]...)
		}
		dst = appendTile(dst, tile, tw, th, effort)
	}
	return dst
}

func (m *modularImage) readGlobal(payload []byte) error {
	r := bytes.NewReader(payload)
	for i, c := range m.channels {
		if !c.global() {
			continue
		}
		data, err := readTile(r, c.w, c.h)
		if err != nil {
			return err
		}
		m.channels[i].data = data
	}
	return trailing(r)
}

// readGroup fills group g; distinct groups touch disjoint samples
func (m *modularImage) readGroup(payload []byte, geom geometry, g int) error {
	r := bytes.NewReader(payload)
	for _, c := range m.channels {
		if c.global() {
			continue
		}
		x0, y0, x1, y1 := c.tileRect(geom, g)
		tw, th := x1-x0, y1-y0
		if tw == 0 || th == 0 {
			continue
		}
		tile, err := readTile(r, tw, th)
		if err != nil {
			return err
		}
		for y := y0; y < y1; y++ {
			copy(c.data[y*c.w+x0:y*c.w+x1], tile[(y-y0)*tw:(y-y0+1)*tw])
		}
	}
	return trailing(r)
}

func trailing(r *bytes.Reader) error {
	if r.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes in section", ErrInvalidFormat, r.Len())
	}
	return nil
}
