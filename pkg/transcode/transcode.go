// Package transcode answers the two host requests: decode the JPEG XL pixel
// data of a DICOM file for display, and move a DICOM file between native
// pixel data and JPEG XL encapsulated pixel data.
package transcode

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/pkg/errors"

	"github.com/jpfielding/dcmjxl.go/pkg/codec"
	"github.com/jpfielding/dcmjxl.go/pkg/config"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom/tag"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom/transfer"
	"github.com/jpfielding/dcmjxl.go/pkg/util"
)

var (
	// ErrNotApplicable means the request is not for this handler; it is not a failure
	ErrNotApplicable = errors.New("not applicable")
	// ErrTranscodeFailed is matched by every genuine failure
	ErrTranscodeFailed = errors.New("transcode failed")
)

// LossyCompressionMethod is the Lossy Image Compression Method term for JPEG XL
const LossyCompressionMethod = "ISO_18181_1"

// Failure wraps the cause of a failed request
type Failure struct {
	Err error
}

func (e *Failure) Error() string { return ErrTranscodeFailed.Error() + ": " + e.Err.Error() }

func (e *Failure) Is(target error) bool { return target == ErrTranscodeFailed }

func (e *Failure) Unwrap() error { return e.Err }

func failed(err error, msg string) error {
	return &Failure{Err: errors.Wrap(err, msg)}
}

func failedf(format string, args ...any) error {
	return &Failure{Err: errors.Errorf(format, args...)}
}

// Direction names the representation change performed by Transcode
type Direction string

const (
	ToNative Direction = "jxl-to-native"
	ToJPEGXL Direction = "native-to-jxl"
)

// Transcoder composes the codec engine and the container accessor. The zero
// value is not usable; build one with New.
type Transcoder struct {
	Engine codec.Engine
	Config config.Config
	Logger *slog.Logger
}

// New returns a Transcoder over the default codec
func New(cfg config.Config) *Transcoder {
	return &Transcoder{Engine: codec.New(), Config: cfg}
}

func (t *Transcoder) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

// Frame is one decoded frame ready for display
type Frame struct {
	Pixels []byte
	Format codec.PixelFormat
	Info   codec.ImageInfo
	Signed bool // from Pixel Representation; the codestream has no sign
}

// Stride is the packed row length in bytes
func (fr *Frame) Stride() int {
	return fr.Info.Width * fr.Format.BytesPerPixel()
}

// CopyTo copies the rows into dst whose rows start every pitch bytes
func (fr *Frame) CopyTo(dst []byte, pitch int) error {
	stride := fr.Stride()
	if pitch < stride {
		return fmt.Errorf("pitch %d is less than row size %d", pitch, stride)
	}
	if fr.Info.Height > 0 && len(dst) < (fr.Info.Height-1)*pitch+stride {
		return fmt.Errorf("buffer of %d bytes too small for %d rows of pitch %d", len(dst), fr.Info.Height, pitch)
	}
	for y := 0; y < fr.Info.Height; y++ {
		copy(dst[y*pitch:y*pitch+stride], fr.Pixels[y*stride:(y+1)*stride])
	}
	return nil
}

// DecodeForDisplay decodes frame frameIndex of a JPEG XL encapsulated file.
// Files under any other transfer syntax give ErrNotApplicable.
func (t *Transcoder) DecodeForDisplay(data []byte, frameIndex int) (*Frame, error) {
	f, err := dicom.Parse(data)
	if err != nil {
		return nil, failed(err, "could not parse DICOM")
	}
	ts, err := f.TransferSyntax()
	if err != nil {
		return nil, failed(err, "could not read transfer syntax")
	}
	if !ts.IsJPEGXL() {
		return nil, ErrNotApplicable
	}
	frag, err := f.EncapsulatedFragment(frameIndex)
	if err != nil {
		return nil, failed(err, "could not read fragment")
	}
	pixels, format, info, err := t.Engine.DecodeAuto(frag)
	if err != nil {
		return nil, failed(err, "could not decode frame")
	}
	t.logger().Debug("decoded frame",
		slog.Int("frame", frameIndex),
		slog.String("format", format.String()),
		slog.Int("width", info.Width),
		slog.Int("height", info.Height))
	return &Frame{
		Pixels: pixels,
		Format: format,
		Info:   info,
		Signed: f.ImageInfo().IsSigned,
	}, nil
}

// Transcode re-encodes a file to one of the requested transfer syntaxes.
// A JPEG XL file is decoded to the first native syntax requested. A native
// file is encoded when JPEG XL lossless is requested, or JPEG XL (lossy)
// when the configuration asks for lossy output. Anything else gives
// ErrNotApplicable. The container's own transfer syntax is authoritative;
// currentIdentifier is only checked against it. data is never modified and
// no output is returned on failure.
func (t *Transcoder) Transcode(data []byte, currentIdentifier string, requested []string) ([]byte, error) {
	f, err := dicom.Parse(data)
	if err != nil {
		return nil, failed(err, "could not parse DICOM")
	}
	ts, err := f.TransferSyntax()
	if err != nil {
		return nil, failed(err, "could not read transfer syntax")
	}
	if currentIdentifier != "" && transfer.Syntax(currentIdentifier) != ts {
		t.logger().Warn("transfer syntax differs from caller",
			slog.String("caller", currentIdentifier),
			slog.String("file", string(ts)))
	}

	var out []byte
	var dir Direction
	var target transfer.Syntax
	switch {
	case ts.IsJPEGXL():
		native, ok := transfer.FirstNative(requested)
		if !ok {
			return nil, ErrNotApplicable
		}
		dir, target = ToNative, native
		out, err = t.toNative(f, native)
	case ts.IsEncapsulated():
		// other compressed syntaxes belong to other handlers
		return nil, ErrNotApplicable
	default:
		target = transfer.JPEGXLLossless
		if t.Config.IsLossy() {
			target = transfer.JPEGXL
		}
		if !transfer.Contains(requested, target) {
			return nil, ErrNotApplicable
		}
		dir = ToJPEGXL
		out, err = t.toJPEGXL(f, target)
	}
	if err != nil {
		return nil, err
	}

	t.logger().Info("transcoded",
		slog.String("direction", string(dir)),
		slog.String("from", ts.Name()),
		slog.String("to", target.Name()),
		slog.Int("input", len(data)),
		slog.Int("output", len(out)),
		slog.String("ratio", ratio(len(data), len(out))))
	return out, nil
}

func (t *Transcoder) toNative(f *dicom.File, target transfer.Syntax) ([]byte, error) {
	info := f.ImageInfo()
	format, frameSize, err := layout(info)
	if err != nil {
		return nil, err
	}
	n, err := f.NumberOfFragments()
	if err != nil {
		return nil, failed(err, "could not count fragments")
	}
	if n == 0 {
		return nil, failed(dicom.ErrFragmentAbsent, "no frames")
	}

	native := make([]byte, 0, n*frameSize)
	for i := 0; i < n; i++ {
		frag, err := f.EncapsulatedFragment(i)
		if err != nil {
			return nil, failed(err, "could not read fragment")
		}
		pixels, err := t.Engine.Decode(frag, format)
		if err != nil {
			return nil, failed(err, fmt.Sprintf("could not decode frame %d", i))
		}
		if len(pixels) != frameSize {
			return nil, failedf("frame %d decoded to %d bytes, expected %d", i, len(pixels), frameSize)
		}
		native = append(native, pixels...)
	}
	if err := f.SetNativePayload(native); err != nil {
		return nil, failed(err, "could not set native pixel data")
	}
	out, err := f.Serialize(target)
	if err != nil {
		return nil, failed(err, "could not serialize")
	}
	return out, nil
}

func (t *Transcoder) toJPEGXL(f *dicom.File, target transfer.Syntax) ([]byte, error) {
	info := f.ImageInfo()
	format, frameSize, err := layout(info)
	if err != nil {
		return nil, err
	}
	pixels, err := f.PixelData()
	if err != nil {
		return nil, failed(err, "could not read pixel data")
	}
	frames := max(info.NumberOfFrames, 1)
	if len(pixels) < frames*frameSize {
		return nil, failedf("pixel data holds %d bytes, %d frames of %d bytes expected", len(pixels), frames, frameSize)
	}

	opts := t.Config.EncodeOptions(info.Width, info.Height)
	planar := info.SamplesPerPixel > 1 && info.PlanarConfiguration == 1
	encoded := make([][]byte, frames)
	total := 0
	for i := range encoded {
		frame := pixels[i*frameSize : (i+1)*frameSize]
		if planar {
			frame = interleave(frame, info.SamplesPerPixel, format.BytesPerPixel()/info.SamplesPerPixel)
		}
		b, err := t.Engine.Encode(frame, info.Width, info.Height, format, opts)
		if err != nil {
			return nil, failed(err, fmt.Sprintf("could not encode frame %d", i))
		}
		encoded[i] = b
		total += len(b)
	}

	if planar {
		f.Dataset.SetUint16(tag.PlanarConfiguration, 0)
	}
	if target == transfer.JPEGXL {
		t.markLossy(f, frames*frameSize, total)
	}
	if frames == 1 && target == transfer.JPEGXLLossless {
		err = f.SetEncodedPayload(encoded[0])
	} else {
		err = f.SetEncodedFrames(target, encoded)
	}
	if err != nil {
		return nil, failed(err, "could not set encapsulated pixel data")
	}
	out, err := f.Serialize(target)
	if err != nil {
		return nil, failed(err, "could not serialize")
	}
	return out, nil
}

// markLossy records the lossy compression and gives the file a new SOP
// Instance UID that references the source image.
func (t *Transcoder) markLossy(f *dicom.File, raw, compressed int) {
	ds := f.Dataset
	classUID := ds.GetString(tag.SOPClassUID)
	sourceUID := ds.GetString(tag.SOPInstanceUID)

	ds.SetString(tag.LossyImageCompression, "01")
	ds.SetString(tag.LossyImageCompressionRatio, ratio(raw, compressed))
	ds.SetString(tag.LossyImageCompressionMethod, LossyCompressionMethod)
	ds.SetString(tag.DerivationDescription, fmt.Sprintf("JPEG XL lossy, distance %g", t.Config.Distance))

	if sourceUID == "" {
		return
	}
	ref, err := dicom.NewDataset(
		dicom.WithString(tag.ReferencedSOPClassUID, classUID),
		dicom.WithString(tag.ReferencedSOPInstanceUID, sourceUID),
	)
	if err == nil {
		_ = dicom.WithSequence(tag.SourceImageSequence, ref)(ds)
	}
	uid := util.HashUID([]string{sourceUID, string(transfer.JPEGXL), strconv.FormatFloat(float64(t.Config.Distance), 'g', -1, 32)})
	if uid == "" {
		uid = util.NewUID()
	}
	ds.SetString(tag.SOPInstanceUID, uid)
	if f.Meta != nil {
		f.Meta.SetString(tag.MediaStorageSOPInstanceUID, uid)
	}
}

// layout checks the sample layout and returns the codec format and the
// byte size of one native frame.
func layout(info dicom.ImageInfo) (codec.PixelFormat, int, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return 0, 0, failedf("invalid dimensions %dx%d", info.Width, info.Height)
	}
	if info.SamplesPerPixel != 1 && info.SamplesPerPixel != 3 {
		return 0, 0, failedf("unsupported samples per pixel %d", info.SamplesPerPixel)
	}
	if info.BitsAllocated != 8 && info.BitsAllocated != 16 {
		return 0, 0, failedf("unsupported bits allocated %d", info.BitsAllocated)
	}
	format := codec.FormatFor(info.SamplesPerPixel, info.BitsAllocated)
	return format, format.BufferSize(info.Width, info.Height), nil
}

// interleave turns planar samples (all of plane 0, then plane 1, ...) into
// pixel interleaved samples.
func interleave(planar []byte, planes, sampleSize int) []byte {
	out := make([]byte, len(planar))
	planeSize := len(planar) / planes
	pixelSize := planes * sampleSize
	for p := 0; p < planes; p++ {
		src := planar[p*planeSize : (p+1)*planeSize]
		for i, j := 0, p*sampleSize; i+sampleSize <= len(src); i, j = i+sampleSize, j+pixelSize {
			copy(out[j:j+sampleSize], src[i:i+sampleSize])
		}
	}
	return out
}

func ratio(raw, compressed int) string {
	if compressed == 0 {
		return "0"
	}
	return strconv.FormatFloat(float64(raw)/float64(compressed), 'f', 2, 64)
}
