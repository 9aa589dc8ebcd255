package jxl

import (
	"fmt"
	"math/bits"
	"sort"
)

// geometry is the group grid of a frame
type geometry struct {
	width, height int
	gdim          int
	gx, gy        int
}

func newGeometry(width, height, gdim int) geometry {
	return geometry{
		width:  width,
		height: height,
		gdim:   gdim,
		gx:     (width + gdim - 1) / gdim,
		gy:     (height + gdim - 1) / gdim,
	}
}

func (g geometry) numGroups() int {
	return g.gx * g.gy
}

// groupOrder returns group indices in storage order. With center-first
// ordering, groups are sorted by their ring around the group holding
// (cx, cy), then by distance of their center to (cx, cy).
func (g geometry) groupOrder(centered bool, cx, cy int) []int {
	order := make([]int, g.numGroups())
	for i := range order {
		order[i] = i
	}
	if !centered {
		return order
	}
	cgx, cgy := min(cx/g.gdim, g.gx-1), min(cy/g.gdim, g.gy-1)
	ring := func(i int) int {
		dx, dy := abs(i%g.gx-cgx), abs(i/g.gx-cgy)
		return max(dx, dy)
	}
	dist := func(i int) int {
		mx := (i%g.gx)*g.gdim + g.gdim/2
		my := (i/g.gx)*g.gdim + g.gdim/2
		return (mx-cx)*(mx-cx) + (my-cy)*(my-cy)
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := ring(order[a]), ring(order[b])
		if ra != rb {
			return ra < rb
		}
		return dist(order[a]) < dist(order[b])
	})
	return order
}

// sectionPermutation maps storage position to section index. Section 0 is
// the global section; pass p group g is section 1 + p*groups + g.
func sectionPermutation(order []int, passes int) []int {
	n := len(order)
	perm := make([]int, 0, 1+n*passes)
	perm = append(perm, 0)
	for p := 0; p < passes; p++ {
		for _, g := range order {
			perm = append(perm, 1+p*n+g)
		}
	}
	return perm
}

func isIdentity(perm []int) bool {
	for i, p := range perm {
		if i != p {
			return false
		}
	}
	return true
}

// lehmerCode encodes a permutation as, per position, the number of later
// entries that are smaller.
func lehmerCode(perm []int) []int {
	code := make([]int, len(perm))
	for i := range perm {
		for j := i + 1; j < len(perm); j++ {
			if perm[j] < perm[i] {
				code[i]++
			}
		}
	}
	return code
}

func decodeLehmer(code []int) ([]int, error) {
	remaining := make([]int, len(code))
	for i := range remaining {
		remaining[i] = i
	}
	perm := make([]int, len(code))
	for i, c := range code {
		if c < 0 || c >= len(remaining) {
			return nil, fmt.Errorf("%w: lehmer code out of range", ErrInvalidFormat)
		}
		perm[i] = remaining[c]
		remaining = append(remaining[:c], remaining[c+1:]...)
	}
	return perm, nil
}

// writeTOC writes the permutation (when not the identity) and the sizes of
// the sections in storage order.
func writeTOC(w *BitWriter, perm []int, sizes []int) error {
	permuted := !isIdentity(perm)
	w.WriteBool(permuted)
	if permuted {
		n := len(perm)
		for i, c := range lehmerCode(perm) {
			w.WriteBits(uint64(c), uint(bits.Len(uint(n-1-i))))
		}
	}
	w.ZeroPadToByte()
	for _, pos := range perm {
		if err := w.WriteU32(uint32(sizes[pos]), distTOC); err != nil {
			return err
		}
	}
	w.ZeroPadToByte()
	return nil
}

func readTOC(r *BitReader, n int) (perm []int, sizes []int, err error) {
	permuted, err := r.ReadBool()
	if err != nil {
		return nil, nil, err
	}
	if permuted {
		code := make([]int, n)
		for i := range code {
			c, err := r.ReadBits(uint(bits.Len(uint(n - 1 - i))))
			if err != nil {
				return nil, nil, err
			}
			code[i] = int(c)
		}
		if perm, err = decodeLehmer(code); err != nil {
			return nil, nil, err
		}
	} else {
		perm = make([]int, n)
		for i := range perm {
			perm[i] = i
		}
	}
	if err := r.ZeroPadToByte(); err != nil {
		return nil, nil, err
	}
	sizes = make([]int, n)
	for _, pos := range perm {
		s, err := r.ReadU32(distTOC)
		if err != nil {
			return nil, nil, err
		}
		sizes[pos] = int(s)
	}
	if err := r.ZeroPadToByte(); err != nil {
		return nil, nil, err
	}
	return perm, sizes, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
