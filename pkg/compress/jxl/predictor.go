package jxl

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"
)

// predictor selects how a sample is estimated from its decoded neighbors
type predictor uint8

const (
	predZero predictor = iota
	predLeft
	predTop
	predAverage
	predGradient
	numPredictors
)

// neighbors returns left, top and top-left with the JPEG XL edge rules:
// missing left falls back to top (or 0), missing top and top-left fall
// back to left.
func neighbors(data []int32, w, x, y, i int) (left, top, topLeft int64) {
	switch {
	case x > 0:
		left = int64(data[i-1])
	case y > 0:
		left = int64(data[i-w])
	}
	top, topLeft = left, left
	if y > 0 {
		top = int64(data[i-w])
		if x > 0 {
			topLeft = int64(data[i-w-1])
		}
	}
	return left, top, topLeft
}

func (p predictor) predict(data []int32, w, x, y, i int) int64 {
	if p == predZero {
		return 0
	}
	left, top, topLeft := neighbors(data, w, x, y, i)
	switch p {
	case predLeft:
		return left
	case predTop:
		return top
	case predAverage:
		return (left + top) >> 1
	default:
		g := left + top - topLeft
		lo, hi := min(left, top), max(left, top)
		return max(lo, min(hi, g))
	}
}

func zigzag(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

func unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// cost estimates the coded size of a tile under p in bits
func (p predictor) cost(data []int32, w, h int) int {
	total := 0
	for y, i := 0, 0; y < h; y++ {
		for x := 0; x < w; x, i = x+1, i+1 {
			total += bits.Len64(zigzag(int64(data[i]) - p.predict(data, w, x, y, i)))
		}
	}
	return total
}

// choosePredictor picks a predictor for a tile. Low efforts use a fixed
// predictor, higher efforts try all of them.
func choosePredictor(data []int32, w, h, effort int) predictor {
	switch {
	case effort <= 1:
		return predLeft
	case effort <= 3:
		return predGradient
	}
	best, bestCost := predGradient, predGradient.cost(data, w, h)
	for p := predZero; p < numPredictors; p++ {
		if p == predGradient {
			continue
		}
		if c := p.cost(data, w, h); c < bestCost {
			best, bestCost = p, c
		}
	}
	return best
}

// appendTile appends the predictor and the residuals of a w x h tile
func appendTile(dst []byte, data []int32, w, h, effort int) []byte {
	if w == 0 || h == 0 {
		return dst
	}
	p := choosePredictor(data, w, h, effort)
	dst = append(dst, byte(p))
	for y, i := 0, 0; y < h; y++ {
		for x := 0; x < w; x, i = x+1, i+1 {
			dst = binary.AppendUvarint(dst, zigzag(int64(data[i])-p.predict(data, w, x, y, i)))
		}
	}
	return dst
}

// readTile decodes a w x h tile written by appendTile
func readTile(r *bytes.Reader, w, h int) ([]int32, error) {
	data := make([]int32, w*h)
	if len(data) == 0 {
		return data, nil
	}
	pb, err := r.ReadByte()
	if err != nil {
		return nil, ErrTruncated
	}
	p := predictor(pb)
	if p >= numPredictors {
		return nil, fmt.Errorf("%w: predictor %d", ErrInvalidFormat, pb)
	}
	for y, i := 0, 0; y < h; y++ {
		for x := 0; x < w; x, i = x+1, i+1 {
			u, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, ErrTruncated
			}
			v := unzigzag(u) + p.predict(data, w, x, y, i)
			if v < -1<<31 || v > 1<<31-1 {
				return nil, fmt.Errorf("%w: sample out of range", ErrInvalidFormat)
			}
			data[i] = int32(v)
		}
	}
	return data, nil
}
