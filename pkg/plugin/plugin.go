// Package plugin adapts the transcoder to the two callbacks a DICOM server
// registers for a codec plugin: decode one frame into a host image, and
// transcode a file to one of a set of allowed transfer syntaxes. Neither
// callback panics or returns a Go error; failures become an ErrorCode.
package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jpfielding/dcmjxl.go/pkg/codec"
	"github.com/jpfielding/dcmjxl.go/pkg/config"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom/transfer"
	"github.com/jpfielding/dcmjxl.go/pkg/transcode"
)

const (
	Name        = "dcmjxl"
	Description = "JPEG XL transfer syntaxes for DICOM"
)

// ErrorCode is the result reported to the host
type ErrorCode int

const (
	Success        ErrorCode = 0
	Plugin         ErrorCode = 1 // genuine failure
	NotImplemented ErrorCode = 2 // not for this plugin; the host tries another
)

func (c ErrorCode) String() string {
	switch c {
	case Success:
		return "Success"
	case Plugin:
		return "Plugin"
	case NotImplemented:
		return "NotImplemented"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// PixelFormat is the host image pixel format
type PixelFormat int

const (
	Grayscale8 PixelFormat = iota + 1
	Grayscale16
	SignedGrayscale16
	RGB24
	RGB48
)

func (f PixelFormat) String() string {
	switch f {
	case Grayscale8:
		return "Grayscale8"
	case Grayscale16:
		return "Grayscale16"
	case SignedGrayscale16:
		return "SignedGrayscale16"
	case RGB24:
		return "RGB24"
	case RGB48:
		return "RGB48"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// BytesPerPixel is the packed size of one pixel
func (f PixelFormat) BytesPerPixel() int { return f.codecFormat().BytesPerPixel() }

// codecFormat is the decoded layout behind f; the sign lives outside it
func (f PixelFormat) codecFormat() codec.PixelFormat {
	switch f {
	case Grayscale8:
		return codec.Gray8
	case Grayscale16, SignedGrayscale16:
		return codec.Gray16
	case RGB24:
		return codec.RGB24
	case RGB48:
		return codec.RGB48
	default:
		return codec.PixelFormat(-1)
	}
}

// HostFormat maps a decoded format to the host format. The codestream has
// no sign, so 16-bit gray takes it from the file's Pixel Representation.
func HostFormat(f codec.PixelFormat, signed bool) PixelFormat {
	switch f {
	case codec.Gray8:
		return Grayscale8
	case codec.Gray16:
		if signed {
			return SignedGrayscale16
		}
		return Grayscale16
	case codec.RGB24:
		return RGB24
	default:
		return RGB48
	}
}

// Image is a host owned image buffer whose rows start every Pitch bytes
type Image interface {
	Buffer() []byte
	Pitch() int
}

// ImageAllocator creates a host image
type ImageAllocator func(format PixelFormat, width, height int) (Image, error)

// BufferAllocator creates a host memory buffer of size bytes
type BufferAllocator func(size int) ([]byte, error)

// Host implements the decode and transcode callbacks over the host
// allocators. Nil allocators fall back to Go memory.
type Host struct {
	Transcoder *transcode.Transcoder
	NewImage   ImageAllocator
	NewBuffer  BufferAllocator
	Logger     *slog.Logger
}

// NewHost returns a Host transcoding with cfg
func NewHost(cfg config.Config, logger *slog.Logger) *Host {
	tc := transcode.New(cfg)
	tc.Logger = logger
	return &Host{Transcoder: tc, Logger: logger}
}

func (h *Host) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// Initialize logs the supported transfer syntaxes
func (h *Host) Initialize() {
	h.logger().Info("plugin initialized",
		slog.String("name", Name),
		slog.String("lossless", string(transfer.JPEGXLLossless)),
		slog.String("recompression", string(transfer.JPEGXLJPEGRecompression)),
		slog.String("lossy", string(transfer.JPEGXL)),
		slog.String("mode", h.Transcoder.Config.Mode.String()),
		slog.Int("effort", h.Transcoder.Config.Effort))
}

// DecodeImage decodes frame frameIndex of data into a new host image
func (h *Host) DecodeImage(data []byte, frameIndex int) (img Image, code ErrorCode) {
	defer func() {
		if r := recover(); r != nil {
			h.logger().Error("decode panic", slog.Any("panic", r))
			img, code = nil, Plugin
		}
	}()

	frame, err := h.Transcoder.DecodeForDisplay(data, frameIndex)
	if err != nil {
		return nil, h.code("decode", err)
	}
	format := HostFormat(frame.Format, frame.Signed)
	alloc := h.NewImage
	if alloc == nil {
		alloc = NewMemoryImage
	}
	img, err = alloc(format, frame.Info.Width, frame.Info.Height)
	if err != nil || img == nil {
		h.logger().Error("failed to create output image", slog.Any("error", err))
		return nil, Plugin
	}
	if err := frame.CopyTo(img.Buffer(), img.Pitch()); err != nil {
		h.logger().Error("failed to copy image", slog.Any("error", err))
		return nil, Plugin
	}
	return img, Success
}

// Transcode converts data to one of the allowed transfer syntaxes. Lossy
// output gets a new SOP Instance UID, so JPEG XL (lossy) is dropped from
// allowed unless the host allows one. Decoding to native never needs one.
func (h *Host) Transcode(data []byte, allowed []string, allowNewSOPInstanceUID bool) (out []byte, code ErrorCode) {
	defer func() {
		if r := recover(); r != nil {
			h.logger().Error("transcode panic", slog.Any("panic", r))
			out, code = nil, Plugin
		}
	}()

	if !allowNewSOPInstanceUID && transfer.Contains(allowed, transfer.JPEGXL) {
		h.logger().Debug("lossy output needs a new SOP instance UID")
		allowed = slices.DeleteFunc(slices.Clone(allowed), func(id string) bool {
			return transfer.Syntax(id) == transfer.JPEGXL
		})
	}
	res, err := h.Transcoder.Transcode(data, "", allowed)
	if err != nil {
		return nil, h.code("transcode", err)
	}
	if h.NewBuffer == nil {
		return res, Success
	}
	out, err = h.NewBuffer(len(res))
	if err != nil || len(out) < len(res) {
		h.logger().Error("failed to allocate output buffer", slog.Any("error", err), slog.Int("size", len(res)))
		return nil, Plugin
	}
	copy(out, res)
	return out[:len(res)], Success
}

func (h *Host) code(op string, err error) ErrorCode {
	if errors.Is(err, transcode.ErrNotApplicable) {
		return NotImplemented
	}
	h.logger().Error(op+" error", slog.Any("error", err))
	return Plugin
}

// MemoryImage is an Image in Go memory with 16 byte aligned rows
type MemoryImage struct {
	Format PixelFormat
	Width  int
	Height int

	pitch int
	buf   []byte
}

// PitchAlignment is the row alignment of a MemoryImage
const PitchAlignment = 16

// NewMemoryImage is the default ImageAllocator
func NewMemoryImage(format PixelFormat, width, height int) (Image, error) {
	bpp := format.BytesPerPixel()
	if bpp == 0 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image %v %dx%d", format, width, height)
	}
	pitch := (width*bpp + PitchAlignment - 1) / PitchAlignment * PitchAlignment
	return &MemoryImage{
		Format: format,
		Width:  width,
		Height: height,
		pitch:  pitch,
		buf:    make([]byte, pitch*height),
	}, nil
}

func (m *MemoryImage) Buffer() []byte { return m.buf }

func (m *MemoryImage) Pitch() int { return m.pitch }

// Packed returns the rows without padding
func (m *MemoryImage) Packed() []byte {
	stride := m.Width * m.Format.BytesPerPixel()
	out := make([]byte, 0, stride*m.Height)
	for y := 0; y < m.Height; y++ {
		out = append(out, m.buf[y*m.pitch:y*m.pitch+stride]...)
	}
	return out
}
