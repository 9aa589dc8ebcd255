package jxl

import (
	"encoding/binary"
	"fmt"
)

// deinterleave splits an interleaved little endian buffer into planes,
// rejecting samples above maxValue.
func deinterleave(pixels []byte, f PixelFormat, w, h int, maxValue int32) ([][]int32, error) {
	n := w * h
	planes := make([][]int32, f.NumChannels)
	for c := range planes {
		planes[c] = make([]int32, n)
	}
	bps := f.BytesPerSample()
	for i := 0; i < n; i++ {
		for c := 0; c < f.NumChannels; c++ {
			off := (i*f.NumChannels + c) * bps
			var v int32
			if bps == 2 {
				v = int32(binary.LittleEndian.Uint16(pixels[off:]))
			} else {
				v = int32(pixels[off])
			}
			if v > maxValue {
				return nil, fmt.Errorf("%w: sample %d exceeds %d bits", ErrAPIUsage, v, bitsFor(maxValue))
			}
			planes[c][i] = v
		}
	}
	return planes, nil
}

// interleave writes planes holding samples in [0, maxIn] into buf with
// the layout of f, rescaling to the range of f and replicating a single
// plane across color channels.
func interleave(planes [][]int32, maxIn int32, f PixelFormat, buf []byte) {
	maxOut := f.maxValue()
	bps := f.BytesPerSample()
	n := len(planes[0])
	for i := 0; i < n; i++ {
		for c := 0; c < f.NumChannels; c++ {
			v := int64(planes[min(c, len(planes)-1)][i])
			if maxIn != maxOut {
				v = (v*int64(maxOut) + int64(maxIn)/2) / int64(maxIn)
			}
			off := (i*f.NumChannels + c) * bps
			if bps == 2 {
				binary.LittleEndian.PutUint16(buf[off:], uint16(v))
			} else {
				buf[off] = byte(v)
			}
		}
	}
}

func bitsFor(maxValue int32) int {
	n := 0
	for ; maxValue > 0; maxValue >>= 1 {
		n++
	}
	return n
}

func clampPlane(p []int32, maxValue int32) {
	for i, v := range p {
		p[i] = max(0, min(maxValue, v))
	}
}
