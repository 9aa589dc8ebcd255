package codec

import (
	"fmt"

	"github.com/jpfielding/dcmjxl.go/pkg/compress/jxl"
)

// PixelFormat is one of the four supported interleaved sample layouts
type PixelFormat int

const (
	Gray8 PixelFormat = iota
	Gray16
	RGB24
	RGB48
)

// formatFacts is the single table every format dependent computation reads
type formatFacts struct {
	name          string
	bytesPerPixel int
	numChannels   int
	bitsPerSample int
	grayscale     bool
	dataType      jxl.DataType
}

var formats = [...]formatFacts{
	Gray8:  {"Gray8", 1, 1, 8, true, jxl.TypeUint8},
	Gray16: {"Gray16", 2, 1, 16, true, jxl.TypeUint16},
	RGB24:  {"RGB24", 3, 3, 8, false, jxl.TypeUint8},
	RGB48:  {"RGB48", 6, 3, 16, false, jxl.TypeUint16},
}

func (f PixelFormat) facts() formatFacts {
	if f < Gray8 || f > RGB48 {
		return formatFacts{name: fmt.Sprintf("PixelFormat(%d)", int(f))}
	}
	return formats[f]
}

// Valid reports whether f is one of the four formats
func (f PixelFormat) Valid() bool { return f >= Gray8 && f <= RGB48 }

func (f PixelFormat) String() string { return f.facts().name }

// BytesPerPixel returns the interleaved size of one pixel
func (f PixelFormat) BytesPerPixel() int { return f.facts().bytesPerPixel }

func (f PixelFormat) NumChannels() int { return f.facts().numChannels }

func (f PixelFormat) BitsPerSample() int { return f.facts().bitsPerSample }

func (f PixelFormat) IsGrayscale() bool { return f.facts().grayscale }

// BufferSize returns the size of a tightly packed width x height image
func (f PixelFormat) BufferSize(width, height int) int {
	return width * height * f.BytesPerPixel()
}

func (f PixelFormat) jxlFormat() jxl.PixelFormat {
	return jxl.PixelFormat{NumChannels: f.NumChannels(), DataType: f.facts().dataType}
}

// FormatFor picks the format holding samplesPerPixel samples of the given
// allocated bit depth.
func FormatFor(samplesPerPixel, bitsAllocated int) PixelFormat {
	switch {
	case samplesPerPixel == 1 && bitsAllocated <= 8:
		return Gray8
	case samplesPerPixel == 1:
		return Gray16
	case bitsAllocated <= 8:
		return RGB24
	default:
		return RGB48
	}
}

// FormatFromInfo picks the natural output format of a decoded stream
func FormatFromInfo(info ImageInfo) PixelFormat {
	channels := 3
	if info.IsGrayscale {
		channels = 1
	}
	return FormatFor(channels, info.BitsPerSample)
}

// ImageInfo is read from a codestream header
type ImageInfo struct {
	Width         int
	Height        int
	BitsPerSample int
	NumChannels   int
	IsGrayscale   bool
}
