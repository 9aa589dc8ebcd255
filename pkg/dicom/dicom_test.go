package dicom

import (
	"bytes"
	"testing"

	"github.com/jpfielding/dcmjxl.go/pkg/dicom/tag"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFile(t *testing.T, w, h, bits, spp int, ts transfer.Syntax) (*File, []byte) {
	t.Helper()
	bpp := spp * ((bits + 7) / 8)
	pixels := make([]byte, w*h*bpp)
	for i := range pixels {
		pixels[i] = byte(i*7 + i/3)
	}
	ds, err := NewDataset(
		WithString(tag.SOPClassUID, "1.2.840.10008.5.1.4.1.1.7"),
		WithString(tag.SOPInstanceUID, "1.2.3.4.5"),
		WithString(tag.PatientName, "Doe^Jane"),
		WithImagePixel(ImageInfo{
			Width: w, Height: h, BitsAllocated: bits, BitsStored: bits, HighBit: bits - 1,
			SamplesPerPixel: spp,
		}),
		WithNativePixelData(pixels),
	)
	require.NoError(t, err)
	return NewFile(ds, ts), pixels
}

func TestSerializeParse_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		ts   transfer.Syntax
		bits int
		spp  int
	}{
		{"explicit LE gray8", transfer.ExplicitVRLittleEndian, 8, 1},
		{"explicit LE gray16", transfer.ExplicitVRLittleEndian, 16, 1},
		{"implicit LE gray16", transfer.ImplicitVRLittleEndian, 16, 1},
		{"explicit BE gray16", transfer.ExplicitVRBigEndian, 16, 1},
		{"explicit BE rgb24", transfer.ExplicitVRBigEndian, 8, 3},
		{"deflated rgb48", transfer.DeflatedExplicitVR, 16, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, pixels := newTestFile(t, 17, 9, tt.bits, tt.spp, transfer.ExplicitVRLittleEndian)
			out, err := f.Serialize(tt.ts)
			require.NoError(t, err)
			assert.Equal(t, "DICM", string(out[128:132]))

			parsed, err := Parse(out)
			require.NoError(t, err)
			assert.False(t, parsed.ParseWarning, parsed.Warnings)

			ts, err := parsed.TransferSyntax()
			require.NoError(t, err)
			assert.Equal(t, tt.ts, ts)

			info := parsed.ImageInfo()
			assert.Equal(t, 17, info.Width)
			assert.Equal(t, 9, info.Height)
			assert.Equal(t, tt.bits, info.BitsAllocated)
			assert.Equal(t, tt.spp, info.SamplesPerPixel)
			assert.False(t, info.IsSigned)
			assert.Equal(t, "Doe^Jane", parsed.Dataset.GetString(tag.PatientName))

			got, err := parsed.PixelData()
			require.NoError(t, err)
			// odd length native data is padded with one zero byte
			require.GreaterOrEqual(t, len(got), len(pixels))
			assert.Equal(t, pixels, got[:len(pixels)])
		})
	}
}

func TestSerialize_BigEndianValues(t *testing.T) {
	f, _ := newTestFile(t, 3, 0x0102, 16, 1, transfer.ExplicitVRLittleEndian)
	out, err := f.Serialize(transfer.ExplicitVRBigEndian)
	require.NoError(t, err)
	// (0028,0010) US, length 2, value 0x0102 all big endian
	assert.True(t, bytes.Contains(out, []byte{0x00, 0x28, 0x00, 0x10, 'U', 'S', 0x00, 0x02, 0x01, 0x02}))
}

func TestSetEncodedPayload_TwoFragments(t *testing.T) {
	f, _ := newTestFile(t, 8, 8, 8, 1, transfer.ExplicitVRLittleEndian)
	payload := []byte{0xFF, 0x0A, 1, 2, 3}

	require.NoError(t, f.SetEncodedPayload(payload))
	elem, ok := f.Dataset.FindElement(tag.PixelData)
	require.True(t, ok)
	pd, ok := elem.GetPixelData()
	require.True(t, ok)
	require.True(t, pd.IsEncapsulated())

	items := pd.Current().Items()
	require.Len(t, items, 2)
	assert.Empty(t, items[0])
	assert.Equal(t, payload, items[1])

	frag, err := f.EncapsulatedFragment(0)
	require.NoError(t, err)
	assert.Equal(t, payload, frag)

	require.NoError(t, f.SetTransferSyntax(transfer.JPEGXLLossless))
	out, err := f.Serialize(transfer.JPEGXLLossless)
	require.NoError(t, err)

	parsed, err := Parse(out)
	require.NoError(t, err)
	ts, err := parsed.TransferSyntax()
	require.NoError(t, err)
	assert.Equal(t, transfer.JPEGXLLossless, ts)

	frag, err = parsed.EncapsulatedFragment(0)
	require.NoError(t, err)
	// items are padded to even length on the wire
	assert.Equal(t, append(bytes.Clone(payload), 0), frag)

	n, err := parsed.NumberOfFragments()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEncapsulatedFragment_Errors(t *testing.T) {
	f, _ := newTestFile(t, 4, 4, 8, 1, transfer.ExplicitVRLittleEndian)
	_, err := f.EncapsulatedFragment(0)
	assert.ErrorIs(t, err, ErrNotEncapsulated)

	require.NoError(t, f.SetEncodedPayload([]byte{1, 2}))
	_, err = f.EncapsulatedFragment(1)
	assert.ErrorIs(t, err, ErrFragmentAbsent)
	assert.Contains(t, err.Error(), "fragment item absent")

	_, err = f.PixelData()
	assert.ErrorIs(t, err, ErrNotNative)

	f.Dataset.Remove(tag.PixelData)
	_, err = f.EncapsulatedFragment(0)
	assert.ErrorIs(t, err, ErrNoPixelData)
	_, err = f.PixelData()
	assert.ErrorIs(t, err, ErrNoPixelData)
}

func TestSetEncodedFrames_EmptyFrame(t *testing.T) {
	f, _ := newTestFile(t, 4, 4, 8, 1, transfer.ExplicitVRLittleEndian)
	err := f.SetEncodedFrames(transfer.JPEGXLLossless, [][]byte{{1}, {}})
	assert.ErrorIs(t, err, ErrEmptyFragment)
}

func TestSetNativePayload_VR(t *testing.T) {
	f, _ := newTestFile(t, 2, 2, 16, 1, transfer.ExplicitVRLittleEndian)
	require.NoError(t, f.SetEncodedPayload([]byte{1, 2}))
	require.NoError(t, f.SetNativePayload(make([]byte, 8)))

	elem, ok := f.Dataset.FindElement(tag.PixelData)
	require.True(t, ok)
	assert.Equal(t, "OW", string(elem.VR))
	got, err := f.PixelData()
	require.NoError(t, err)
	assert.Len(t, got, 8)
}

func TestSerialize_Representations(t *testing.T) {
	f, _ := newTestFile(t, 4, 4, 8, 1, transfer.ExplicitVRLittleEndian)

	_, err := f.Serialize("1.2.3.4")
	assert.ErrorIs(t, err, ErrUnsupportedSyntax)

	_, err = f.Serialize(transfer.JPEGXLLossless)
	assert.ErrorIs(t, err, ErrNotEncapsulated)

	require.NoError(t, f.SetEncodedPayload([]byte{1, 2, 3, 4}))
	elem, _ := f.Dataset.FindElement(tag.PixelData)
	pd, _ := elem.GetPixelData()
	pd.AddRepresentation(&Representation{Syntax: transfer.JPEGXL, Fragments: [][]byte{{9, 9}}})
	assert.Len(t, pd.Representations(), 2)
	assert.Equal(t, transfer.JPEGXL, pd.Current().Syntax)

	_, err = f.Serialize(transfer.ExplicitVRLittleEndian)
	assert.ErrorIs(t, err, ErrNotNative)

	out, err := f.Serialize(transfer.JPEGXLLossless)
	require.NoError(t, err)
	assert.Len(t, pd.Representations(), 1)
	assert.Equal(t, transfer.JPEGXLLossless, pd.Current().Syntax)

	parsed, err := Parse(out)
	require.NoError(t, err)
	frag, err := parsed.EncapsulatedFragment(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, frag)
}

func TestParse_Lenient(t *testing.T) {
	f, _ := newTestFile(t, 16, 16, 8, 1, transfer.ExplicitVRLittleEndian)
	out, err := f.Serialize(transfer.ExplicitVRLittleEndian)
	require.NoError(t, err)

	t.Run("truncated pixel data", func(t *testing.T) {
		parsed, err := Parse(out[:len(out)-10])
		require.NoError(t, err)
		assert.True(t, parsed.ParseWarning)
		assert.Equal(t, 16, parsed.ImageInfo().Width)
		_, err = parsed.PixelData()
		assert.ErrorIs(t, err, ErrNoPixelData)
	})

	t.Run("meta only", func(t *testing.T) {
		var buf bytes.Buffer
		buf.Write(make([]byte, 128))
		buf.WriteString("DICM")
		require.NoError(t, writeMeta(&buf, f.Meta))
		_, err := Parse(buf.Bytes())
		assert.ErrorIs(t, err, ErrNoDataset)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Parse(nil)
		assert.ErrorIs(t, err, ErrNoDataset)
	})

	t.Run("bare implicit dataset", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewWriter(&buf, transfer.ImplicitVRLittleEndian).WriteDataset(f.Dataset))
		parsed, err := Parse(buf.Bytes())
		require.NoError(t, err)
		assert.True(t, parsed.ParseWarning)
		assert.Nil(t, parsed.Meta)
		assert.Equal(t, 16, parsed.ImageInfo().Height)

		_, err = parsed.TransferSyntax()
		assert.ErrorIs(t, err, ErrNoMetaHeader)
		assert.ErrorIs(t, parsed.SetTransferSyntax(transfer.JPEGXLLossless), ErrNoMetaHeader)
	})
}

func TestSequences_RoundTrip(t *testing.T) {
	item, err := NewDataset(
		WithString(tag.ReferencedSOPClassUID, "1.2.840.10008.5.1.4.1.1.7"),
		WithString(tag.ReferencedSOPInstanceUID, "1.2.3"),
	)
	require.NoError(t, err)

	for _, ts := range []transfer.Syntax{transfer.ExplicitVRLittleEndian, transfer.ImplicitVRLittleEndian, transfer.ExplicitVRBigEndian} {
		t.Run(ts.Name(), func(t *testing.T) {
			f, _ := newTestFile(t, 4, 4, 8, 1, transfer.ExplicitVRLittleEndian)
			require.NoError(t, WithSequence(tag.SourceImageSequence, item, item)(f.Dataset))

			out, err := f.Serialize(ts)
			require.NoError(t, err)
			parsed, err := Parse(out)
			require.NoError(t, err)
			assert.False(t, parsed.ParseWarning, parsed.Warnings)

			elem, ok := parsed.Dataset.FindElement(tag.SourceImageSequence)
			require.True(t, ok)
			items, ok := elem.GetSequence()
			require.True(t, ok)
			require.Len(t, items, 2)
			assert.Equal(t, "1.2.3", items[1].GetString(tag.ReferencedSOPInstanceUID))
		})
	}
}

func TestSerialize_DoesNotAliasInput(t *testing.T) {
	f, _ := newTestFile(t, 8, 8, 8, 1, transfer.ExplicitVRLittleEndian)
	out, err := f.Serialize(transfer.ExplicitVRLittleEndian)
	require.NoError(t, err)
	orig := bytes.Clone(out)

	parsed, err := Parse(out)
	require.NoError(t, err)
	require.NoError(t, parsed.SetEncodedPayload([]byte{1, 2}))
	_, err = parsed.Serialize(transfer.JPEGXLLossless)
	require.NoError(t, err)
	assert.Equal(t, orig, out)
}
