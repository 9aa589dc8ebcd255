// Package codec is the pixel stream engine: it encodes raw interleaved
// pixels into JPEG XL style codestreams and decodes them back, driving the
// streaming encoder and the event driven decoder of pkg/compress/jxl.
package codec

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jpfielding/dcmjxl.go/pkg/compress/jxl"
)

// ErrCodec is matched by every error returned from this package
var ErrCodec = errors.New("jxl codec error")

// Error describes a failed codec operation
type Error struct {
	Op  string
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Is(target error) bool { return target == ErrCodec }

func (e *Error) Unwrap() error { return e.Err }

func codecErr(op, msg string, err error) error {
	return &Error{Op: op, Msg: msg, Err: err}
}

// initialOutputSize is the first output buffer; it doubles while the
// encoder asks for more space.
const initialOutputSize = 64 * 1024

// Engine encodes and decodes pixel streams
type Engine interface {
	Encode(pixels []byte, width, height int, format PixelFormat, opts EncodeOptions) ([]byte, error)
	DecodeInfo(data []byte) (ImageInfo, error)
	Decode(data []byte, format PixelFormat) ([]byte, error)
	DecodeAuto(data []byte) ([]byte, PixelFormat, ImageInfo, error)
}

// Codec is the Engine backed by pkg/compress/jxl. Every call creates its
// own worker pool of Workers goroutines (<= 0 uses GOMAXPROCS).
type Codec struct {
	Workers int
	Logger  *slog.Logger
}

// New returns a Codec using all available cores
func New() *Codec {
	return &Codec{}
}

var _ Engine = (*Codec)(nil)

func (c *Codec) logger() *slog.Logger {
	if c == nil || c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Codec) runner() *jxl.Runner {
	if c == nil {
		return jxl.NewRunner(0)
	}
	return jxl.NewRunner(c.Workers)
}

// configure applies opts to the frame settings
func configure(fs *jxl.FrameSettings, opts EncodeOptions) error {
	set := func(opt jxl.FrameSetting, v int64) error {
		return fs.SetOption(opt, v)
	}
	var errs []error
	switch opts.Mode {
	case ModeLossless:
		errs = append(errs,
			fs.SetLossless(true),
			fs.SetDistance(0),
			set(jxl.FrameSettingModular, 1),
			set(jxl.FrameSettingResponsive, 0),
		)
	case ModeProgressiveLossless:
		errs = append(errs,
			fs.SetLossless(true),
			fs.SetDistance(0),
			set(jxl.FrameSettingModular, 1),
			set(jxl.FrameSettingResponsive, 1),
			set(jxl.FrameSettingGroupOrder, 1),
			set(jxl.FrameSettingGroupOrderCenterX, int64(opts.CenterX)),
			set(jxl.FrameSettingGroupOrderCenterY, int64(opts.CenterY)),
		)
	case ModeProgressiveVarDCT:
		errs = append(errs,
			fs.SetLossless(opts.Distance == 0),
			fs.SetDistance(opts.Distance),
			set(jxl.FrameSettingModular, 0),
			set(jxl.FrameSettingProgressiveDC, int64(opts.ProgressiveDC)),
		)
		if opts.ProgressiveAC {
			errs = append(errs, set(jxl.FrameSettingProgressiveAC, 1))
		}
		errs = append(errs,
			set(jxl.FrameSettingGroupOrder, 1),
			set(jxl.FrameSettingGroupOrderCenterX, int64(opts.CenterX)),
			set(jxl.FrameSettingGroupOrderCenterY, int64(opts.CenterY)),
		)
	default:
		return fmt.Errorf("%w: unknown encode mode %v", jxl.ErrAPIUsage, opts.Mode)
	}
	errs = append(errs, set(jxl.FrameSettingEffort, int64(opts.Effort)))
	return errors.Join(errs...)
}

// Encode compresses width x height pixels of format into one codestream
func (c *Codec) Encode(pixels []byte, width, height int, format PixelFormat, opts EncodeOptions) ([]byte, error) {
	const op = "encode"
	if !format.Valid() {
		return nil, codecErr(op, "unsupported pixel format "+format.String(), nil)
	}
	if width <= 0 || height <= 0 {
		return nil, codecErr(op, fmt.Sprintf("invalid dimensions %dx%d", width, height), nil)
	}
	if want := format.BufferSize(width, height); len(pixels) != want {
		return nil, codecErr(op, fmt.Sprintf("pixel buffer of %d bytes, expected %d", len(pixels), want), nil)
	}

	enc := jxl.NewEncoder(c.runner())
	if err := enc.SetBasicInfo(jxl.BasicInfo{
		Xsize:               uint32(width),
		Ysize:               uint32(height),
		BitsPerSample:       uint32(format.BitsPerSample()),
		NumColorChannels:    uint32(format.NumChannels()),
		UsesOriginalProfile: true,
	}); err != nil {
		return nil, codecErr(op, "failed to set basic info", err)
	}
	if err := enc.SetColorEncoding(jxl.LinearColorEncoding(format.IsGrayscale())); err != nil {
		return nil, codecErr(op, "failed to set color encoding", err)
	}
	fs := enc.FrameSettings()
	if err := configure(fs, opts); err != nil {
		return nil, codecErr(op, "failed to configure frame settings", err)
	}
	if err := enc.AddImageFrame(fs, format.jxlFormat(), pixels); err != nil {
		return nil, codecErr(op, "failed to add image frame", err)
	}
	enc.CloseInput()

	result := make([]byte, initialOutputSize)
	offset := 0
	for {
		n, status := enc.ProcessOutput(result[offset:])
		offset += n
		switch status {
		case jxl.StatusSuccess:
			result = result[:offset]
			c.logger().Debug("jxl encoded",
				slog.String("mode", opts.Mode.String()),
				slog.Int("effort", opts.Effort),
				slog.String("format", format.String()),
				slog.Int("width", width),
				slog.Int("height", height),
				slog.Int("input", len(pixels)),
				slog.Int("output", len(result)))
			return result, nil
		case jxl.StatusNeedMoreOutput:
			grown := make([]byte, 2*len(result))
			copy(grown, result[:offset])
			result = grown
		default:
			return nil, codecErr(op, fmt.Sprintf("encoding failed with status %v", status), enc.Err())
		}
	}
}

// DecodeInfo reads the image header without decoding pixels
func (c *Codec) DecodeInfo(data []byte) (ImageInfo, error) {
	const op = "decode info"
	dec := jxl.NewDecoder(c.runner())
	if err := dec.SubscribeEvents(jxl.EventBasicInfo); err != nil {
		return ImageInfo{}, codecErr(op, "failed to subscribe to decoder events", err)
	}
	if err := dec.SetInput(data); err != nil {
		return ImageInfo{}, codecErr(op, "failed to set decoder input", err)
	}
	for {
		switch ev := dec.ProcessInput(); ev {
		case jxl.EventBasicInfo:
			bi, err := dec.BasicInfo()
			if err != nil {
				return ImageInfo{}, codecErr(op, "failed to get basic info", err)
			}
			return imageInfo(bi), nil
		case jxl.EventError:
			return ImageInfo{}, codecErr(op, "decoder error while reading info", dec.Err())
		case jxl.EventNeedMoreInput:
			return ImageInfo{}, codecErr(op, "incomplete data", nil)
		default:
			return ImageInfo{}, codecErr(op, fmt.Sprintf("unexpected decoder event %v", ev), nil)
		}
	}
}

func imageInfo(bi jxl.BasicInfo) ImageInfo {
	return ImageInfo{
		Width:         int(bi.Xsize),
		Height:        int(bi.Ysize),
		BitsPerSample: int(bi.BitsPerSample),
		NumChannels:   int(bi.NumColorChannels),
		IsGrayscale:   bi.NumColorChannels == 1,
	}
}

// Decode decodes a codestream into a tightly packed buffer of format
func (c *Codec) Decode(data []byte, format PixelFormat) ([]byte, error) {
	out, _, _, err := c.decode(data, format, false)
	return out, err
}

// DecodeAuto decodes into the natural format of the stream: gray 8 or 16
// bit by depth, otherwise RGB24 or RGB48.
func (c *Codec) DecodeAuto(data []byte) ([]byte, PixelFormat, ImageInfo, error) {
	return c.decode(data, 0, true)
}

func (c *Codec) decode(data []byte, format PixelFormat, auto bool) ([]byte, PixelFormat, ImageInfo, error) {
	const op = "decode"
	if !auto && !format.Valid() {
		return nil, format, ImageInfo{}, codecErr(op, "unsupported pixel format "+format.String(), nil)
	}
	dec := jxl.NewDecoder(c.runner())
	if err := dec.SubscribeEvents(jxl.EventBasicInfo | jxl.EventFullImage); err != nil {
		return nil, format, ImageInfo{}, codecErr(op, "failed to subscribe to decoder events", err)
	}
	if err := dec.SetInput(data); err != nil {
		return nil, format, ImageInfo{}, codecErr(op, "failed to set decoder input", err)
	}

	var info ImageInfo
	var out []byte
	for {
		switch ev := dec.ProcessInput(); ev {
		case jxl.EventBasicInfo:
			bi, err := dec.BasicInfo()
			if err != nil {
				return nil, format, info, codecErr(op, "failed to get basic info", err)
			}
			info = imageInfo(bi)
			if auto {
				format = FormatFromInfo(info)
			}
		case jxl.EventNeedImageOutBuffer:
			if out != nil {
				continue
			}
			size, err := dec.ImageOutBufferSize(format.jxlFormat())
			if err != nil {
				return nil, format, info, codecErr(op, "failed to get output buffer size", err)
			}
			out = make([]byte, size)
			if err := dec.SetImageOutBuffer(format.jxlFormat(), out); err != nil {
				return nil, format, info, codecErr(op, "failed to set output buffer", err)
			}
		case jxl.EventFullImage, jxl.EventSuccess:
			if out == nil {
				return nil, format, info, codecErr(op, "no image in stream", nil)
			}
			c.logger().Debug("jxl decoded",
				slog.String("format", format.String()),
				slog.Int("width", info.Width),
				slog.Int("height", info.Height),
				slog.Int("input", len(data)),
				slog.Int("output", len(out)))
			return out, format, info, nil
		case jxl.EventError:
			return nil, format, info, codecErr(op, "decoder error", dec.Err())
		case jxl.EventNeedMoreInput:
			return nil, format, info, codecErr(op, "incomplete data", nil)
		default:
			return nil, format, info, codecErr(op, fmt.Sprintf("unexpected decoder event %v", ev), nil)
		}
	}
}
