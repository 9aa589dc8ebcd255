// Package jxl implements a JPEG XL style still image codestream with a
// streaming encoder and an event driven decoder.
//
// The codestream carries the JPEG XL signature, size header, image metadata
// and frame header field coding, a table of contents with optional
// center-first group ordering, and two frame encodings:
//
//   - modular: reversible color transform, optional squeeze pyramid and
//     per-tile prediction; exactly lossless.
//   - VarDCT: 8x8 DCT with distance-scaled quantization, the DC image coded
//     as a (optionally squeezed) modular image and AC in one or two passes.
//
// Residual streams of every section are compressed with zstd. Sections are
// produced and consumed in parallel on a per-call Runner.
package jxl

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrInvalidFormat = errors.New("invalid JPEG XL codestream")
	ErrTruncated     = errors.New("codestream truncated")
	ErrUnsupported   = errors.New("unsupported JPEG XL feature")
	ErrAPIUsage      = errors.New("invalid API usage")
)

// Signature is the bare codestream signature
var Signature = []byte{0xFF, 0x0A}

// DataType is the sample type of a pixel buffer
type DataType int

const (
	TypeUint8 DataType = iota
	TypeUint16
)

// PixelFormat describes an interleaved little endian pixel buffer
type PixelFormat struct {
	NumChannels int
	DataType    DataType
}

// BytesPerSample returns the size of one sample
func (f PixelFormat) BytesPerSample() int {
	if f.DataType == TypeUint16 {
		return 2
	}
	return 1
}

func (f PixelFormat) maxValue() int32 {
	if f.DataType == TypeUint16 {
		return 0xFFFF
	}
	return 0xFF
}

func (f PixelFormat) validate() error {
	if f.NumChannels != 1 && f.NumChannels != 3 {
		return fmt.Errorf("%w: %d channels", ErrUnsupported, f.NumChannels)
	}
	if f.DataType != TypeUint8 && f.DataType != TypeUint16 {
		return fmt.Errorf("%w: data type %d", ErrUnsupported, f.DataType)
	}
	return nil
}

// BasicInfo is the image level header
type BasicInfo struct {
	Xsize               uint32
	Ysize               uint32
	BitsPerSample       uint32
	NumColorChannels    uint32
	UsesOriginalProfile bool
}

func (b BasicInfo) maxValue() int32 {
	return int32(1)<<b.BitsPerSample - 1
}

// ColorSpace of the encoded image
type ColorSpace uint32

const (
	ColorSpaceRGB  ColorSpace = 0
	ColorSpaceGray ColorSpace = 1
)

// TransferFunction of the encoded samples
type TransferFunction uint32

const (
	TransferLinear TransferFunction = 8
	TransferSRGB   TransferFunction = 13
)

// RenderingIntent as declared in the color encoding
type RenderingIntent uint32

const (
	IntentPerceptual RenderingIntent = 0
	IntentRelative   RenderingIntent = 1
)

// ColorEncoding is the subset of the JPEG XL color encoding this codec uses
type ColorEncoding struct {
	ColorSpace      ColorSpace
	Transfer        TransferFunction
	RenderingIntent RenderingIntent
}

// LinearColorEncoding returns a linear gray or RGB encoding
func LinearColorEncoding(gray bool) ColorEncoding {
	cs := ColorSpaceRGB
	if gray {
		cs = ColorSpaceGray
	}
	return ColorEncoding{ColorSpace: cs, Transfer: TransferLinear, RenderingIntent: IntentPerceptual}
}

func (c ColorEncoding) validate(numChannels uint32) error {
	switch {
	case c.ColorSpace == ColorSpaceGray && numChannels != 1:
		return fmt.Errorf("%w: gray color space with %d channels", ErrAPIUsage, numChannels)
	case c.ColorSpace == ColorSpaceRGB && numChannels != 3:
		return fmt.Errorf("%w: RGB color space with %d channels", ErrAPIUsage, numChannels)
	case c.ColorSpace != ColorSpaceGray && c.ColorSpace != ColorSpaceRGB:
		return fmt.Errorf("%w: color space %d", ErrUnsupported, c.ColorSpace)
	case c.Transfer != TransferLinear && c.Transfer != TransferSRGB:
		return fmt.Errorf("%w: transfer function %d", ErrUnsupported, c.Transfer)
	}
	return nil
}
