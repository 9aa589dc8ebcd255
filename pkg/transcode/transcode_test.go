package transcode

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpfielding/dcmjxl.go/pkg/codec"
	"github.com/jpfielding/dcmjxl.go/pkg/config"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom/tag"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom/transfer"
	"github.com/jpfielding/dcmjxl.go/pkg/logging"
)

const (
	testClassUID    = "1.2.840.10008.5.1.4.1.1.7"
	testInstanceUID = "1.2.3.4.5.6"
)

type image struct {
	width, height int
	bits, spp     int
	frames        int
	planar        int
	signed        bool
}

func (im image) pixels() []byte {
	frames := max(im.frames, 1)
	n := im.width * im.height * im.spp * (im.bits / 8) * frames
	b := make([]byte, n)
	for i := range b {
		x := i % (im.width * im.spp)
		y := i / (im.width * im.spp)
		b[i] = byte(x*3 + y*5 + (x*y)>>4)
	}
	return b
}

func (im image) info() dicom.ImageInfo {
	return dicom.ImageInfo{
		Width: im.width, Height: im.height,
		BitsAllocated: im.bits, BitsStored: im.bits, HighBit: im.bits - 1,
		SamplesPerPixel: im.spp, IsSigned: im.signed,
		NumberOfFrames: im.frames, PlanarConfiguration: im.planar,
	}
}

func nativeFile(t *testing.T, im image, ts transfer.Syntax) ([]byte, []byte) {
	t.Helper()
	pixels := im.pixels()
	ds, err := dicom.NewDataset(
		dicom.WithString(tag.SOPClassUID, testClassUID),
		dicom.WithString(tag.SOPInstanceUID, testInstanceUID),
		dicom.WithString(tag.PatientName, "Doe^John"),
		dicom.WithImagePixel(im.info()),
		dicom.WithNativePixelData(pixels),
	)
	require.NoError(t, err)
	out, err := dicom.NewFile(ds, ts).Serialize(ts)
	require.NoError(t, err)
	return out, pixels
}

func jxlFile(t *testing.T, im image) ([]byte, []byte) {
	t.Helper()
	pixels := im.pixels()
	format := codec.FormatFor(im.spp, im.bits)
	enc, err := codec.New().Encode(pixels, im.width, im.height, format, codec.Lossless(3))
	require.NoError(t, err)
	ds, err := dicom.NewDataset(
		dicom.WithString(tag.SOPClassUID, testClassUID),
		dicom.WithString(tag.SOPInstanceUID, testInstanceUID),
		dicom.WithImagePixel(im.info()),
		dicom.WithEncapsulatedPixelData(transfer.JPEGXLLossless, enc),
	)
	require.NoError(t, err)
	out, err := dicom.NewFile(ds, transfer.JPEGXLLossless).Serialize(transfer.JPEGXLLossless)
	require.NoError(t, err)
	return out, pixels
}

func quiet() *Transcoder {
	tc := New(config.Default())
	tc.Logger = slog.New(slog.DiscardHandler)
	return tc
}

func TestTranscode_NativeToLossless(t *testing.T) {
	im := image{width: 256, height: 256, bits: 8, spp: 1}
	data, pixels := nativeFile(t, im, transfer.ExplicitVRLittleEndian)
	orig := bytes.Clone(data)

	out, err := quiet().Transcode(data, string(transfer.ExplicitVRLittleEndian), []string{string(transfer.JPEGXLLossless)})
	require.NoError(t, err)
	assert.Equal(t, orig, data)
	t.Logf("native %d bytes, jxl %d bytes", len(data), len(out))

	f, err := dicom.Parse(out)
	require.NoError(t, err)
	ts, err := f.TransferSyntax()
	require.NoError(t, err)
	assert.Equal(t, transfer.JPEGXLLossless, ts)

	elem, ok := f.Dataset.FindElement(tag.PixelData)
	require.True(t, ok)
	pd, ok := elem.GetPixelData()
	require.True(t, ok)
	require.True(t, pd.IsEncapsulated())
	items := pd.Current().Items()
	require.Len(t, items, 2)
	assert.Empty(t, items[0])

	frag, err := f.EncapsulatedFragment(0)
	require.NoError(t, err)
	decoded, err := codec.New().Decode(frag, codec.Gray8)
	require.NoError(t, err)
	assert.Equal(t, pixels, decoded)
	assert.Equal(t, "Doe^John", f.Dataset.GetString(tag.PatientName))
	assert.Equal(t, testInstanceUID, f.Dataset.GetString(tag.SOPInstanceUID))
}

func TestTranscode_LosslessToNative(t *testing.T) {
	for _, ts := range []transfer.Syntax{
		transfer.ExplicitVRLittleEndian,
		transfer.ImplicitVRLittleEndian,
		transfer.ExplicitVRBigEndian,
	} {
		t.Run(ts.Name(), func(t *testing.T) {
			im := image{width: 64, height: 48, bits: 16, spp: 1, signed: true}
			data, pixels := jxlFile(t, im)

			requested := []string{string(transfer.JPEGXL), string(ts), string(transfer.ExplicitVRLittleEndian)}
			out, err := quiet().Transcode(data, "", requested)
			require.NoError(t, err)

			f, err := dicom.Parse(out)
			require.NoError(t, err)
			got, err := f.TransferSyntax()
			require.NoError(t, err)
			assert.Equal(t, ts, got)
			native, err := f.PixelData()
			require.NoError(t, err)
			assert.Equal(t, pixels, native)
			assert.True(t, f.ImageInfo().IsSigned)
		})
	}
}

func TestTranscode_RoundTripFormats(t *testing.T) {
	for _, im := range []image{
		{width: 33, height: 17, bits: 8, spp: 1},
		{width: 33, height: 17, bits: 16, spp: 1},
		{width: 20, height: 31, bits: 8, spp: 3},
		{width: 20, height: 31, bits: 16, spp: 3},
	} {
		format := codec.FormatFor(im.spp, im.bits)
		t.Run(format.String(), func(t *testing.T) {
			tc := quiet()
			data, pixels := nativeFile(t, im, transfer.ExplicitVRLittleEndian)
			enc, err := tc.Transcode(data, "", []string{string(transfer.JPEGXLLossless)})
			require.NoError(t, err)
			out, err := tc.Transcode(enc, string(transfer.JPEGXLLossless), []string{string(transfer.ExplicitVRLittleEndian)})
			require.NoError(t, err)

			f, err := dicom.Parse(out)
			require.NoError(t, err)
			native, err := f.PixelData()
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(native), len(pixels))
			assert.Equal(t, pixels, native[:len(pixels)])
			assert.Equal(t, make([]byte, len(native)-len(pixels)), native[len(pixels):])
			assert.Zero(t, len(native)%2)
		})
	}
}

func TestTranscode_OddLengthPad(t *testing.T) {
	tc := quiet()
	data, pixels := nativeFile(t, image{width: 33, height: 17, bits: 8, spp: 1}, transfer.ExplicitVRLittleEndian)
	require.Len(t, pixels, 561)
	enc, err := tc.Transcode(data, "", []string{string(transfer.JPEGXLLossless)})
	require.NoError(t, err)
	out, err := tc.Transcode(enc, "", []string{string(transfer.ExplicitVRLittleEndian)})
	require.NoError(t, err)

	f, err := dicom.Parse(out)
	require.NoError(t, err)
	native, err := f.PixelData()
	require.NoError(t, err)
	require.Len(t, native, 562)
	assert.Equal(t, pixels, native[:561])
	assert.Equal(t, byte(0), native[561])
}

func TestTranscode_NotApplicable(t *testing.T) {
	native, _ := nativeFile(t, image{width: 16, height: 16, bits: 8, spp: 1}, transfer.ExplicitVRLittleEndian)
	encoded, _ := jxlFile(t, image{width: 16, height: 16, bits: 8, spp: 1})

	tests := []struct {
		name      string
		data      []byte
		requested []string
	}{
		{"native already requested", native, []string{string(transfer.ExplicitVRLittleEndian)}},
		{"native lossy not configured", native, []string{string(transfer.JPEGXL)}},
		{"native nothing requested", native, nil},
		{"jxl already requested", encoded, []string{string(transfer.JPEGXLLossless)}},
		{"jxl to deflated", encoded, []string{string(transfer.DeflatedExplicitVR)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := bytes.Clone(tt.data)
			out, err := quiet().Transcode(tt.data, "", tt.requested)
			assert.ErrorIs(t, err, ErrNotApplicable)
			assert.NotErrorIs(t, err, ErrTranscodeFailed)
			assert.Nil(t, out)
			assert.Equal(t, orig, tt.data)
		})
	}
}

func TestTranscode_DeflatedSource(t *testing.T) {
	im := image{width: 40, height: 30, bits: 8, spp: 1}
	data, pixels := nativeFile(t, im, transfer.DeflatedExplicitVR)
	enc, err := quiet().Transcode(data, "", []string{string(transfer.JPEGXLLossless)})
	require.NoError(t, err)

	frame, err := quiet().DecodeForDisplay(enc, 0)
	require.NoError(t, err)
	assert.Equal(t, pixels, frame.Pixels)
}

func TestTranscode_MultiFrame(t *testing.T) {
	im := image{width: 32, height: 16, bits: 8, spp: 3, frames: 3}
	data, pixels := nativeFile(t, im, transfer.ExplicitVRLittleEndian)
	tc := quiet()

	enc, err := tc.Transcode(data, "", []string{string(transfer.JPEGXLLossless)})
	require.NoError(t, err)
	f, err := dicom.Parse(enc)
	require.NoError(t, err)
	n, err := f.NumberOfFragments()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	frameSize := len(pixels) / 3
	for i := 0; i < 3; i++ {
		frame, err := tc.DecodeForDisplay(enc, i)
		require.NoError(t, err)
		assert.Equal(t, pixels[i*frameSize:(i+1)*frameSize], frame.Pixels, "frame %d", i)
	}
	_, err = tc.DecodeForDisplay(enc, 3)
	assert.ErrorIs(t, err, dicom.ErrFragmentAbsent)
	assert.ErrorIs(t, err, ErrTranscodeFailed)

	out, err := tc.Transcode(enc, "", []string{string(transfer.ExplicitVRLittleEndian)})
	require.NoError(t, err)
	f, err = dicom.Parse(out)
	require.NoError(t, err)
	native, err := f.PixelData()
	require.NoError(t, err)
	assert.Equal(t, pixels, native)
}

func TestTranscode_Planar(t *testing.T) {
	im := image{width: 16, height: 8, bits: 16, spp: 3, planar: 1}
	data, pixels := nativeFile(t, im, transfer.ExplicitVRLittleEndian)
	tc := quiet()

	enc, err := tc.Transcode(data, "", []string{string(transfer.JPEGXLLossless)})
	require.NoError(t, err)
	f, err := dicom.Parse(enc)
	require.NoError(t, err)
	assert.Equal(t, 0, f.ImageInfo().PlanarConfiguration)

	out, err := tc.Transcode(enc, "", []string{string(transfer.ExplicitVRLittleEndian)})
	require.NoError(t, err)
	f, err = dicom.Parse(out)
	require.NoError(t, err)
	native, err := f.PixelData()
	require.NoError(t, err)
	assert.Equal(t, interleave(pixels, 3, 2), native)
}

func TestTranscode_Lossy(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = codec.ModeProgressiveVarDCT
	cfg.Distance = 1
	tc := New(cfg)
	tc.Logger = slog.New(slog.DiscardHandler)

	im := image{width: 96, height: 64, bits: 8, spp: 1}
	data, _ := nativeFile(t, im, transfer.ExplicitVRLittleEndian)

	_, err := tc.Transcode(data, "", []string{string(transfer.JPEGXLLossless)})
	assert.ErrorIs(t, err, ErrNotApplicable)

	out, err := tc.Transcode(data, "", []string{string(transfer.JPEGXL)})
	require.NoError(t, err)
	f, err := dicom.Parse(out)
	require.NoError(t, err)
	ts, err := f.TransferSyntax()
	require.NoError(t, err)
	assert.Equal(t, transfer.JPEGXL, ts)

	ds := f.Dataset
	assert.Equal(t, "01", ds.GetString(tag.LossyImageCompression))
	assert.Equal(t, LossyCompressionMethod, ds.GetString(tag.LossyImageCompressionMethod))
	assert.NotEmpty(t, ds.GetString(tag.LossyImageCompressionRatio))
	uid := ds.GetString(tag.SOPInstanceUID)
	assert.True(t, strings.HasPrefix(uid, "2.25."), uid)
	assert.NotEqual(t, testInstanceUID, uid)
	assert.Equal(t, uid, f.Meta.GetString(tag.MediaStorageSOPInstanceUID))

	elem, ok := ds.FindElement(tag.SourceImageSequence)
	require.True(t, ok)
	items, ok := elem.GetSequence()
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, testInstanceUID, items[0].GetString(tag.ReferencedSOPInstanceUID))
	assert.Equal(t, testClassUID, items[0].GetString(tag.ReferencedSOPClassUID))

	frame, err := tc.DecodeForDisplay(out, 0)
	require.NoError(t, err)
	assert.Len(t, frame.Pixels, im.width*im.height)
}

func TestTranscode_LogsStatsAndMismatch(t *testing.T) {
	var buf bytes.Buffer
	tc := New(config.Default())
	tc.Logger = logging.Logger(&buf, false, slog.LevelInfo)

	data, _ := nativeFile(t, image{width: 16, height: 16, bits: 8, spp: 1}, transfer.ExplicitVRLittleEndian)
	_, err := tc.Transcode(data, string(transfer.ImplicitVRLittleEndian), []string{string(transfer.JPEGXLLossless)})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "transfer syntax differs from caller")
	assert.Contains(t, out, "msg=transcoded")
	assert.Contains(t, out, "direction=native-to-jxl")
	assert.Contains(t, out, "ratio=")
}

type failingEngine struct {
	codec.Engine
	err error
}

func (e failingEngine) Encode([]byte, int, int, codec.PixelFormat, codec.EncodeOptions) ([]byte, error) {
	return nil, e.err
}

func (e failingEngine) Decode([]byte, codec.PixelFormat) ([]byte, error) {
	return nil, e.err
}

func (e failingEngine) DecodeAuto([]byte) ([]byte, codec.PixelFormat, codec.ImageInfo, error) {
	return nil, 0, codec.ImageInfo{}, e.err
}

func TestTranscode_Failures(t *testing.T) {
	boom := errors.New("boom")
	tc := quiet()
	tc.Engine = failingEngine{err: boom}

	native, _ := nativeFile(t, image{width: 8, height: 8, bits: 8, spp: 1}, transfer.ExplicitVRLittleEndian)
	encoded, _ := jxlFile(t, image{width: 8, height: 8, bits: 8, spp: 1})
	odd, _ := nativeFile(t, image{width: 8, height: 8, bits: 32, spp: 1}, transfer.ExplicitVRLittleEndian)

	tests := []struct {
		name      string
		data      []byte
		requested []string
		cause     error
	}{
		{"encode", native, []string{string(transfer.JPEGXLLossless)}, boom},
		{"decode", encoded, []string{string(transfer.ExplicitVRLittleEndian)}, boom},
		{"garbage", []byte("not a dicom file"), []string{string(transfer.JPEGXLLossless)}, nil},
		{"bits allocated", odd, []string{string(transfer.JPEGXLLossless)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tc.Transcode(tt.data, "", tt.requested)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, ErrTranscodeFailed)
			assert.NotErrorIs(t, err, ErrNotApplicable)
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
		})
	}

	_, err := tc.DecodeForDisplay(encoded, 0)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrTranscodeFailed)
}

func TestDecodeForDisplay(t *testing.T) {
	im := image{width: 40, height: 24, bits: 16, spp: 1, signed: true}
	data, pixels := jxlFile(t, im)

	frame, err := quiet().DecodeForDisplay(data, 0)
	require.NoError(t, err)
	assert.Equal(t, codec.Gray16, frame.Format)
	assert.True(t, frame.Signed)
	assert.Equal(t, 40, frame.Info.Width)
	assert.Equal(t, 24, frame.Info.Height)
	assert.Equal(t, pixels, frame.Pixels)

	native, _ := nativeFile(t, im, transfer.ExplicitVRLittleEndian)
	_, err = quiet().DecodeForDisplay(native, 0)
	assert.ErrorIs(t, err, ErrNotApplicable)
}

func TestFrame_CopyTo(t *testing.T) {
	frame := &Frame{
		Pixels: []byte{1, 2, 3, 4, 5, 6},
		Format: codec.Gray8,
		Info:   codec.ImageInfo{Width: 3, Height: 2, BitsPerSample: 8, NumChannels: 1, IsGrayscale: true},
	}
	dst := bytes.Repeat([]byte{0xEE}, 8)
	require.NoError(t, frame.CopyTo(dst, 4))
	assert.Equal(t, []byte{1, 2, 3, 0xEE, 4, 5, 6, 0xEE}, dst)

	// the last row needs no padding
	require.NoError(t, frame.CopyTo(make([]byte, 7), 4))
	assert.Error(t, frame.CopyTo(make([]byte, 6), 4))
	assert.Error(t, frame.CopyTo(dst, 2))
}

func TestInterleave(t *testing.T) {
	planar := []byte{
		1, 2, 3, 4, // R
		5, 6, 7, 8, // G
		9, 10, 11, 12, // B
	}
	assert.Equal(t, []byte{1, 5, 9, 2, 6, 10, 3, 7, 11, 4, 8, 12}, interleave(planar, 3, 1))
	assert.Equal(t, []byte{1, 2, 5, 6, 9, 10, 3, 4, 7, 8, 11, 12}, interleave(planar, 3, 2))
}
