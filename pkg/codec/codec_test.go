package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpfielding/dcmjxl.go/pkg/compress/jxl"
)

func testPixels(width, height int, format PixelFormat, seed uint64) []byte {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	buf := make([]byte, format.BufferSize(width, height))
	bps := format.BitsPerSample() / 8
	maxv := 1<<format.BitsPerSample() - 1
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < format.NumChannels(); c++ {
				v := ((x*3+y*2+c*40)*maxv/(width+height+120) + rng.IntN(maxv/128+1)) % (maxv + 1)
				off := ((y*width+x)*format.NumChannels() + c) * bps
				if bps == 2 {
					binary.LittleEndian.PutUint16(buf[off:], uint16(v))
				} else {
					buf[off] = byte(v)
				}
			}
		}
	}
	return buf
}

func TestPixelFormat_Table(t *testing.T) {
	tests := []struct {
		f             PixelFormat
		bytesPerPixel int
		channels      int
		bits          int
		gray          bool
	}{
		{Gray8, 1, 1, 8, true},
		{Gray16, 2, 1, 16, true},
		{RGB24, 3, 3, 8, false},
		{RGB48, 6, 3, 16, false},
	}
	for _, tt := range tests {
		t.Run(tt.f.String(), func(t *testing.T) {
			assert.True(t, tt.f.Valid())
			assert.Equal(t, tt.bytesPerPixel, tt.f.BytesPerPixel())
			assert.Equal(t, tt.channels, tt.f.NumChannels())
			assert.Equal(t, tt.bits, tt.f.BitsPerSample())
			assert.Equal(t, tt.gray, tt.f.IsGrayscale())
			assert.Equal(t, tt.bytesPerPixel*6, tt.f.BufferSize(3, 2))
			assert.Equal(t, tt.channels, tt.f.jxlFormat().NumChannels)
		})
	}
	assert.False(t, PixelFormat(9).Valid())
	assert.Equal(t, "PixelFormat(9)", PixelFormat(9).String())
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, Gray8, FormatFor(1, 8))
	assert.Equal(t, Gray16, FormatFor(1, 12))
	assert.Equal(t, Gray16, FormatFor(1, 16))
	assert.Equal(t, RGB24, FormatFor(3, 8))
	assert.Equal(t, RGB48, FormatFor(3, 16))
	assert.Equal(t, Gray16, FormatFromInfo(ImageInfo{BitsPerSample: 16, IsGrayscale: true}))
	assert.Equal(t, RGB24, FormatFromInfo(ImageInfo{BitsPerSample: 8, NumChannels: 3}))
}

func TestParseMode(t *testing.T) {
	for _, m := range []EncodeMode{ModeLossless, ModeProgressiveLossless, ModeProgressiveVarDCT} {
		got, ok := ParseMode(m.String())
		require.True(t, ok)
		assert.Equal(t, m, got)
	}
	_, ok := ParseMode("Fast")
	assert.False(t, ok)
}

func TestEncodeDecode_LosslessModes(t *testing.T) {
	c := &Codec{Workers: 4}
	w, h := 270, 130
	for _, format := range []PixelFormat{Gray8, Gray16, RGB24, RGB48} {
		for _, effort := range []int{1, 2, 4, 7, 10} {
			modes := []EncodeOptions{
				Lossless(effort),
				ProgressiveLossless(effort, w/2, h/2),
				ProgressiveLossless(effort, CenterAuto, CenterAuto),
				ProgressiveVarDCT(effort, 0, 2, true, w/2, h/2),
			}
			for _, opts := range modes {
				t.Run(fmt.Sprintf("%v/%v/e%d", format, opts.Mode, effort), func(t *testing.T) {
					pixels := testPixels(w, h, format, uint64(effort))
					data, err := c.Encode(pixels, w, h, format, opts)
					require.NoError(t, err)

					info, err := c.DecodeInfo(data)
					require.NoError(t, err)
					assert.Equal(t, ImageInfo{
						Width:         w,
						Height:        h,
						BitsPerSample: format.BitsPerSample(),
						NumChannels:   format.NumChannels(),
						IsGrayscale:   format.IsGrayscale(),
					}, info)

					got, err := c.Decode(data, format)
					require.NoError(t, err)
					assert.Equal(t, pixels, got)

					auto, autoFormat, _, err := c.DecodeAuto(data)
					require.NoError(t, err)
					assert.Equal(t, format, autoFormat)
					assert.Equal(t, pixels, auto)
				})
			}
		}
	}
}

func TestEncodeDecode_Lossy(t *testing.T) {
	c := New()
	w, h := 200, 150
	for _, format := range []PixelFormat{Gray8, Gray16, RGB24, RGB48} {
		pixels := testPixels(w, h, format, 9)
		data, err := c.Encode(pixels, w, h, format, ProgressiveVarDCT(7, 1.5, 1, false, CenterAuto, CenterAuto))
		require.NoError(t, err)
		got, err := c.Decode(data, format)
		require.NoError(t, err)
		assert.Len(t, got, len(pixels), format.String())
		t.Logf("%v lossy: %d -> %d bytes", format, len(pixels), len(data))
	}
}

func TestEncode_ZeroGray16(t *testing.T) {
	c := New()
	pixels := make([]byte, 512*512*2)
	data, err := c.Encode(pixels, 512, 512, Gray16, ProgressiveLossless(7, 256, 256))
	require.NoError(t, err)
	assert.Less(t, len(data), len(pixels))
	t.Logf("zero image: %d -> %d bytes", len(pixels), len(data))

	got, err := c.Decode(data, Gray16)
	require.NoError(t, err)
	assert.Equal(t, pixels, got)
}

func TestEncode_GrowsOutputBuffer(t *testing.T) {
	c := New()
	w, h := 256, 256
	rng := rand.New(rand.NewPCG(42, 43))
	pixels := make([]byte, RGB48.BufferSize(w, h))
	for i := range pixels {
		pixels[i] = byte(rng.Uint32())
	}
	data, err := c.Encode(pixels, w, h, RGB48, Lossless(1))
	require.NoError(t, err)
	assert.Greater(t, len(data), initialOutputSize)
	got, err := c.Decode(data, RGB48)
	require.NoError(t, err)
	assert.Equal(t, pixels, got)
}

func TestEncode_Errors(t *testing.T) {
	c := New()
	tests := []struct {
		name   string
		pixels []byte
		w, h   int
		format PixelFormat
		opts   EncodeOptions
	}{
		{"short buffer", make([]byte, 10), 4, 4, Gray8, Lossless(7)},
		{"zero width", nil, 0, 4, Gray8, Lossless(7)},
		{"bad format", make([]byte, 16), 4, 4, PixelFormat(7), Lossless(7)},
		{"effort too high", make([]byte, 16), 4, 4, Gray8, Lossless(11)},
		{"negative distance", make([]byte, 16), 4, 4, Gray8, ProgressiveVarDCT(7, -1, 0, false, -1, -1)},
		{"unknown mode", make([]byte, 16), 4, 4, Gray8, EncodeOptions{Mode: EncodeMode(9), Effort: 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := c.Encode(tt.pixels, tt.w, tt.h, tt.format, tt.opts)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, ErrCodec)
			var ce *Error
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, "encode", ce.Op)
		})
	}
}

func TestEncode_UnknownMode(t *testing.T) {
	out, err := New().Encode(make([]byte, 16), 4, 4, Gray8, EncodeOptions{Mode: EncodeMode(9), Effort: 7})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrCodec)
	assert.ErrorIs(t, err, jxl.ErrAPIUsage)
	assert.ErrorContains(t, err, "EncodeMode(9)")
}

func TestDecode_Incomplete(t *testing.T) {
	c := New()
	pixels := testPixels(64, 64, Gray8, 1)
	data, err := c.Encode(pixels, 64, 64, Gray8, Lossless(7))
	require.NoError(t, err)

	_, err = c.DecodeInfo(data[:2])
	require.ErrorIs(t, err, ErrCodec)
	assert.Contains(t, err.Error(), "incomplete data")

	_, err = c.Decode(data[:len(data)/2], Gray8)
	require.ErrorIs(t, err, ErrCodec)
	assert.Contains(t, err.Error(), "incomplete data")

	_, err = c.Decode([]byte("garbage garbage"), Gray8)
	assert.ErrorIs(t, err, ErrCodec)
}
