package jxl

import (
	"encoding/binary"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testImage returns a smooth image with some noise, interleaved little endian
func testImage(w, h int, f PixelFormat, seed uint64) []byte {
	rng := rand.New(rand.NewPCG(seed, 7))
	maxv := int(f.maxValue())
	bps := f.BytesPerSample()
	buf := make([]byte, w*h*f.NumChannels*bps)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < f.NumChannels; c++ {
				v := ((x+c*31)*maxv/(w+64) + y*maxv/(4*(h+1)) + rng.IntN(maxv/64+1)) % (maxv + 1)
				off := ((y*w+x)*f.NumChannels + c) * bps
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

func encodeImage(t *testing.T, w, h int, f PixelFormat, pixels []byte, configure func(fs *FrameSettings)) []byte {
	t.Helper()
	enc := NewEncoder(NewRunner(4))
	bits := uint32(8 * f.BytesPerSample())
	require.NoError(t, enc.SetBasicInfo(BasicInfo{
		Xsize: uint32(w), Ysize: uint32(h),
		BitsPerSample:       bits,
		NumColorChannels:    uint32(f.NumChannels),
		UsesOriginalProfile: true,
	}))
	require.NoError(t, enc.SetColorEncoding(LinearColorEncoding(f.NumChannels == 1)))
	fs := enc.FrameSettings()
	if configure != nil {
		configure(fs)
	}
	require.NoError(t, enc.AddImageFrame(fs, f, pixels))
	enc.CloseInput()

	var out []byte
	buf := make([]byte, 512)
	for {
		n, status := enc.ProcessOutput(buf)
		out = append(out, buf[:n]...)
		if status == StatusSuccess {
			return out
		}
		require.Equal(t, StatusNeedMoreOutput, status, "encoder error: %v", enc.Err())
	}
}

func decodeImage(t *testing.T, data []byte, f PixelFormat) (BasicInfo, []byte) {
	t.Helper()
	dec := NewDecoder(NewRunner(4))
	require.NoError(t, dec.SubscribeEvents(EventBasicInfo|EventFullImage))
	require.NoError(t, dec.SetInput(data))
	dec.CloseInput()
	var info BasicInfo
	var out []byte
	for {
		switch ev := dec.ProcessInput(); ev {
		case EventBasicInfo:
			var err error
			info, err = dec.BasicInfo()
			require.NoError(t, err)
		case EventNeedImageOutBuffer:
			size, err := dec.ImageOutBufferSize(f)
			require.NoError(t, err)
			out = make([]byte, size)
			require.NoError(t, dec.SetImageOutBuffer(f, out))
		case EventFullImage:
		case EventSuccess:
			return info, out
		default:
			require.FailNow(t, "unexpected event", "%v: %v", ev, dec.Err())
		}
	}
}

var (
	gray8  = PixelFormat{NumChannels: 1, DataType: TypeUint8}
	gray16 = PixelFormat{NumChannels: 1, DataType: TypeUint16}
	rgb24  = PixelFormat{NumChannels: 3, DataType: TypeUint8}
	rgb48  = PixelFormat{NumChannels: 3, DataType: TypeUint16}
)

func TestRoundTrip_Lossless(t *testing.T) {
	formats := []struct {
		name string
		f    PixelFormat
	}{
		{"gray8", gray8}, {"gray16", gray16}, {"rgb24", rgb24}, {"rgb48", rgb48},
	}
	modes := []struct {
		name      string
		configure func(fs *FrameSettings)
	}{
		{"modular", func(fs *FrameSettings) {
			require.NoError(t, fs.SetLossless(true))
			require.NoError(t, fs.SetDistance(0))
			require.NoError(t, fs.SetOption(FrameSettingModular, 1))
			require.NoError(t, fs.SetOption(FrameSettingResponsive, 0))
		}},
		{"responsive center first", func(fs *FrameSettings) {
			require.NoError(t, fs.SetLossless(true))
			require.NoError(t, fs.SetDistance(0))
			require.NoError(t, fs.SetOption(FrameSettingModular, 1))
			require.NoError(t, fs.SetOption(FrameSettingResponsive, 1))
			require.NoError(t, fs.SetOption(FrameSettingGroupOrder, 1))
			require.NoError(t, fs.SetOption(FrameSettingGroupOrderCenterX, -1))
			require.NoError(t, fs.SetOption(FrameSettingGroupOrderCenterY, -1))
		}},
		{"vardct at distance zero", func(fs *FrameSettings) {
			require.NoError(t, fs.SetLossless(true))
			require.NoError(t, fs.SetDistance(0))
			require.NoError(t, fs.SetOption(FrameSettingModular, 0))
			require.NoError(t, fs.SetOption(FrameSettingProgressiveDC, 1))
		}},
	}
	for _, tf := range formats {
		for _, tm := range modes {
			for _, effort := range []int64{1, 3, 7} {
				t.Run(tf.name+"/"+tm.name, func(t *testing.T) {
					w, h := 300, 211
					pixels := testImage(w, h, tf.f, uint64(effort))
					data := encodeImage(t, w, h, tf.f, pixels, func(fs *FrameSettings) {
						tm.configure(fs)
						require.NoError(t, fs.SetOption(FrameSettingEffort, effort))
					})
					info, got := decodeImage(t, data, tf.f)
					assert.Equal(t, uint32(w), info.Xsize)
					assert.Equal(t, uint32(h), info.Ysize)
					assert.Equal(t, uint32(tf.f.NumChannels), info.NumColorChannels)
					assert.Equal(t, pixels, got)
				})
			}
		}
	}
}

func TestRoundTrip_Constant(t *testing.T) {
	w, h := 512, 512
	pixels := make([]byte, w*h*2)
	data := encodeImage(t, w, h, gray16, pixels, func(fs *FrameSettings) {
		require.NoError(t, fs.SetLossless(true))
	})
	assert.Less(t, len(data), len(pixels)/10)
	_, got := decodeImage(t, data, gray16)
	assert.Equal(t, pixels, got)
}

func TestRoundTrip_TinyImages(t *testing.T) {
	for _, d := range [][2]int{{1, 1}, {1, 9}, {9, 1}, {8, 8}, {257, 3}} {
		pixels := testImage(d[0], d[1], rgb24, 5)
		data := encodeImage(t, d[0], d[1], rgb24, pixels, func(fs *FrameSettings) {
			require.NoError(t, fs.SetLossless(true))
			require.NoError(t, fs.SetOption(FrameSettingResponsive, 1))
		})
		_, got := decodeImage(t, data, rgb24)
		assert.Equal(t, pixels, got, "%dx%d", d[0], d[1])
	}
}

func meanAbsError(a, b []byte, bps int) float64 {
	var sum float64
	n := len(a) / bps
	for i := 0; i < n; i++ {
		var va, vb int
		if bps == 2 {
			va, vb = int(binary.LittleEndian.Uint16(a[2*i:])), int(binary.LittleEndian.Uint16(b[2*i:]))
		} else {
			va, vb = int(a[i]), int(b[i])
		}
		sum += float64(abs(va - vb))
	}
	return sum / float64(n)
}

func TestRoundTrip_Lossy(t *testing.T) {
	for _, tf := range []PixelFormat{gray8, rgb24, gray16} {
		for _, progressiveAC := range []int64{0, 1} {
			w, h := 320, 240
			pixels := testImage(w, h, tf, 11)
			lossless := encodeImage(t, w, h, tf, pixels, func(fs *FrameSettings) {
				require.NoError(t, fs.SetLossless(true))
			})
			lossy := encodeImage(t, w, h, tf, pixels, func(fs *FrameSettings) {
				require.NoError(t, fs.SetDistance(2))
				require.NoError(t, fs.SetOption(FrameSettingModular, 0))
				require.NoError(t, fs.SetOption(FrameSettingProgressiveDC, 2))
				require.NoError(t, fs.SetOption(FrameSettingProgressiveAC, progressiveAC))
				require.NoError(t, fs.SetOption(FrameSettingGroupOrder, 1))
			})
			assert.Less(t, len(lossy), len(lossless))
			_, got := decodeImage(t, lossy, tf)
			require.Len(t, got, len(pixels))
			mae := meanAbsError(pixels, got, tf.BytesPerSample())
			assert.Less(t, mae, float64(tf.maxValue())/64, "mean abs error %.2f", mae)
		}
	}
}

func TestEncoder_Errors(t *testing.T) {
	enc := NewEncoder(nil)
	assert.ErrorIs(t, enc.SetBasicInfo(BasicInfo{Xsize: 0, Ysize: 4, BitsPerSample: 8, NumColorChannels: 1}), ErrAPIUsage)
	assert.ErrorIs(t, enc.SetBasicInfo(BasicInfo{Xsize: 4, Ysize: 4, BitsPerSample: 8, NumColorChannels: 2}), ErrUnsupported)
	assert.ErrorIs(t, enc.SetColorEncoding(LinearColorEncoding(true)), ErrAPIUsage)

	require.NoError(t, enc.SetBasicInfo(BasicInfo{Xsize: 4, Ysize: 4, BitsPerSample: 8, NumColorChannels: 1}))
	assert.ErrorIs(t, enc.SetColorEncoding(LinearColorEncoding(false)), ErrAPIUsage)

	fs := enc.FrameSettings()
	assert.ErrorIs(t, fs.SetOption(FrameSettingEffort, 11), ErrAPIUsage)
	assert.ErrorIs(t, fs.SetOption(FrameSettingProgressiveDC, 3), ErrAPIUsage)
	assert.ErrorIs(t, fs.SetDistance(26), ErrAPIUsage)
	assert.ErrorIs(t, enc.AddImageFrame(fs, gray8, make([]byte, 15)), ErrAPIUsage)
	assert.ErrorIs(t, enc.AddImageFrame(fs, rgb24, make([]byte, 48)), ErrAPIUsage)

	_, status := enc.ProcessOutput(make([]byte, 16))
	assert.Equal(t, StatusError, status)
	assert.ErrorIs(t, enc.Err(), ErrAPIUsage)
}

func TestEncoder_LossyModularUnsupported(t *testing.T) {
	enc := NewEncoder(nil)
	require.NoError(t, enc.SetBasicInfo(BasicInfo{Xsize: 8, Ysize: 8, BitsPerSample: 8, NumColorChannels: 1}))
	fs := enc.FrameSettings()
	require.NoError(t, fs.SetDistance(1))
	require.NoError(t, fs.SetOption(FrameSettingModular, 1))
	require.NoError(t, enc.AddImageFrame(fs, gray8, make([]byte, 64)))
	enc.CloseInput()
	_, status := enc.ProcessOutput(make([]byte, 1024))
	assert.Equal(t, StatusError, status)
	assert.ErrorIs(t, enc.Err(), ErrUnsupported)
}

func TestDecoder_Truncated(t *testing.T) {
	w, h := 64, 64
	data := encodeImage(t, w, h, gray8, testImage(w, h, gray8, 1), nil)

	t.Run("header", func(t *testing.T) {
		dec := NewDecoder(nil)
		require.NoError(t, dec.SubscribeEvents(EventBasicInfo))
		require.NoError(t, dec.SetInput(data[:3]))
		assert.Equal(t, EventNeedMoreInput, dec.ProcessInput())
		dec.CloseInput()
		assert.Equal(t, EventError, dec.ProcessInput())
		assert.ErrorIs(t, dec.Err(), ErrTruncated)
	})

	t.Run("sections", func(t *testing.T) {
		dec := NewDecoder(nil)
		require.NoError(t, dec.SubscribeEvents(EventBasicInfo|EventFullImage))
		require.NoError(t, dec.SetInput(data[:len(data)-10]))
		assert.Equal(t, EventBasicInfo, dec.ProcessInput())
		assert.Equal(t, EventNeedImageOutBuffer, dec.ProcessInput())
		require.NoError(t, dec.SetImageOutBuffer(gray8, make([]byte, w*h)))
		assert.Equal(t, EventNeedMoreInput, dec.ProcessInput())
		require.NoError(t, dec.SetInput(data))
		assert.Equal(t, EventFullImage, dec.ProcessInput())
		assert.Equal(t, EventSuccess, dec.ProcessInput())
	})
}

func TestDecoder_InfoOnly(t *testing.T) {
	data := encodeImage(t, 40, 30, rgb48, testImage(40, 30, rgb48, 2), nil)
	dec := NewDecoder(nil)
	require.NoError(t, dec.SubscribeEvents(EventBasicInfo))
	require.NoError(t, dec.SetInput(data[:20]))
	require.Equal(t, EventBasicInfo, dec.ProcessInput())
	info, err := dec.BasicInfo()
	require.NoError(t, err)
	assert.Equal(t, BasicInfo{Xsize: 40, Ysize: 30, BitsPerSample: 16, NumColorChannels: 3, UsesOriginalProfile: true}, info)
	color, err := dec.ColorEncoding()
	require.NoError(t, err)
	assert.Equal(t, LinearColorEncoding(false), color)
	assert.Equal(t, EventSuccess, dec.ProcessInput())
}

func TestDecoder_OutputConversion(t *testing.T) {
	w, h := 16, 16
	pixels := testImage(w, h, gray8, 3)
	data := encodeImage(t, w, h, gray8, pixels, func(fs *FrameSettings) {
		require.NoError(t, fs.SetLossless(true))
	})

	_, rgb := decodeImage(t, data, rgb24)
	for i, v := range pixels {
		assert.Equal(t, []byte{v, v, v}, rgb[3*i:3*i+3])
	}

	_, wide := decodeImage(t, data, gray16)
	for i, v := range pixels {
		assert.Equal(t, uint16(v)*257, binary.LittleEndian.Uint16(wide[2*i:]))
	}

	color := encodeImage(t, w, h, rgb24, testImage(w, h, rgb24, 3), nil)
	dec := NewDecoder(nil)
	require.NoError(t, dec.SubscribeEvents(EventFullImage))
	require.NoError(t, dec.SetInput(color))
	dec.CloseInput()
	require.Equal(t, EventNeedImageOutBuffer, dec.ProcessInput())
	assert.ErrorIs(t, dec.SetImageOutBuffer(gray8, make([]byte, w*h)), ErrAPIUsage)
}

func TestDecoder_Garbage(t *testing.T) {
	dec := NewDecoder(nil)
	require.NoError(t, dec.SubscribeEvents(EventBasicInfo))
	require.NoError(t, dec.SetInput([]byte("definitely not a codestream")))
	dec.CloseInput()
	assert.Equal(t, EventError, dec.ProcessInput())
	assert.ErrorIs(t, dec.Err(), ErrInvalidFormat)
	assert.ErrorIs(t, dec.SubscribeEvents(EventFullImage), ErrAPIUsage)
}
