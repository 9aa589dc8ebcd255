// Package dicom reads, edits and writes DICOM files with enough of the data
// model to locate and replace pixel data and the transfer syntax.
//
// Basic usage:
//
//	f, err := dicom.Parse(data)
//	if err != nil {
//		return err
//	}
//	info := f.ImageInfo()
//	frag, err := f.EncapsulatedFragment(0)
//	...
//	f.SetNativePayload(pixels)
//	out, err := f.Serialize(transfer.ExplicitVRLittleEndian)
package dicom

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jpfielding/dcmjxl.go/pkg/dicom/tag"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom/transfer"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom/vr"
	"github.com/klauspost/compress/flate"
)

// Common errors
var (
	ErrInvalidFile       = errors.New("invalid DICOM file")
	ErrNoDataset         = errors.New("no dataset present")
	ErrNoMetaHeader      = errors.New("no file meta information")
	ErrNoPixelData       = errors.New("no pixel data element")
	ErrNotNative         = errors.New("pixel data is not native")
	ErrNotEncapsulated   = errors.New("pixel data is not encapsulated")
	ErrFragmentAbsent    = errors.New("fragment item absent")
	ErrEmptyFragment     = errors.New("fragment is empty")
	ErrUnsupportedSyntax = errors.New("unsupported transfer syntax")
)

// Implementation identifiers written into new file meta information
const (
	ImplementationClassUID    = "1.2.826.0.1.3680043.8.498.1"
	ImplementationVersionName = "DCMJXL_GO"
)

// File is a parsed DICOM file. It owns every value; the bytes it was parsed
// from are not referenced. A File is not safe for concurrent use.
type File struct {
	Meta    *Dataset // nil when the file had no group 0002
	Dataset *Dataset

	ParseWarning bool
	Warnings     []string
}

// ImageInfo holds the Image Pixel Module attributes. Absent attributes are
// reported as zero.
type ImageInfo struct {
	Width               int
	Height              int
	BitsAllocated       int
	BitsStored          int
	HighBit             int
	SamplesPerPixel     int
	IsSigned            bool
	NumberOfFrames      int
	PlanarConfiguration int
	Photometric         string
}

func (f *File) warn(msg string) {
	f.ParseWarning = true
	f.Warnings = append(f.Warnings, msg)
}

// ReadFile reads a DICOM file from disk
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return Parse(data)
}

// ImageInfo reads the image geometry and sample layout
func (f *File) ImageInfo() ImageInfo {
	ds := f.Dataset
	info := ImageInfo{
		Width:               ds.GetInt(tag.Columns),
		Height:              ds.GetInt(tag.Rows),
		BitsAllocated:       ds.GetInt(tag.BitsAllocated),
		BitsStored:          ds.GetInt(tag.BitsStored),
		HighBit:             ds.GetInt(tag.HighBit),
		SamplesPerPixel:     ds.GetInt(tag.SamplesPerPixel),
		IsSigned:            ds.GetInt(tag.PixelRepresentation) == 1,
		NumberOfFrames:      ds.GetInt(tag.NumberOfFrames),
		PlanarConfiguration: ds.GetInt(tag.PlanarConfiguration),
		Photometric:         ds.GetString(tag.PhotometricInterpretation),
	}
	return info
}

// TransferSyntax returns the transfer syntax declared in the file meta
// information.
func (f *File) TransferSyntax() (transfer.Syntax, error) {
	if f.Meta == nil {
		return "", ErrNoMetaHeader
	}
	return transfer.FromUID(f.Meta.GetString(tag.TransferSyntaxUID)), nil
}

// SetTransferSyntax overwrites the transfer syntax in the file meta
// information.
func (f *File) SetTransferSyntax(ts transfer.Syntax) error {
	if f.Meta == nil {
		return ErrNoMetaHeader
	}
	f.Meta.SetString(tag.TransferSyntaxUID, string(ts))
	return nil
}

func (f *File) pixelData() (*PixelData, error) {
	elem, ok := f.Dataset.FindElement(tag.PixelData)
	if !ok {
		return nil, ErrNoPixelData
	}
	pd, ok := elem.GetPixelData()
	if !ok {
		return nil, fmt.Errorf("%w: unexpected value %T", ErrNoPixelData, elem.Value)
	}
	return pd, nil
}

// PixelData returns the native pixel bytes
func (f *File) PixelData() ([]byte, error) {
	pd, err := f.pixelData()
	if err != nil {
		return nil, err
	}
	if pd.IsEncapsulated() {
		return nil, ErrNotNative
	}
	return pd.Native, nil
}

// NumberOfFragments returns the fragment count of the current encapsulated
// representation, not counting the offset table.
func (f *File) NumberOfFragments() (int, error) {
	pd, err := f.pixelData()
	if err != nil {
		return 0, err
	}
	rep := pd.Current()
	if rep == nil {
		return 0, ErrNotEncapsulated
	}
	return len(rep.Fragments), nil
}

// EncapsulatedFragment returns fragment frameIndex of the current
// encapsulated representation, skipping the Basic Offset Table.
func (f *File) EncapsulatedFragment(frameIndex int) ([]byte, error) {
	pd, err := f.pixelData()
	if err != nil {
		return nil, err
	}
	rep := pd.Current()
	if rep == nil {
		return nil, ErrNotEncapsulated
	}
	if frameIndex < 0 || frameIndex >= len(rep.Fragments) {
		return nil, fmt.Errorf("%w: item %d of %d", ErrFragmentAbsent, frameIndex+1, len(rep.Fragments))
	}
	frag := rep.Fragments[frameIndex]
	if len(frag) == 0 {
		return nil, ErrEmptyFragment
	}
	return frag, nil
}

// SetEncodedPayload replaces the pixel data with an encapsulated element
// holding an empty offset table and a single fragment with b, tagged as
// JPEG XL lossless.
func (f *File) SetEncodedPayload(b []byte) error {
	return f.SetEncodedFrames(transfer.JPEGXLLossless, [][]byte{b})
}

// SetEncodedFrames replaces the pixel data with an encapsulated element
// holding an empty offset table and one fragment per frame.
func (f *File) SetEncodedFrames(ts transfer.Syntax, frames [][]byte) error {
	if len(frames) == 0 {
		return errors.New("no frames to encapsulate")
	}
	for i, fr := range frames {
		if len(fr) == 0 {
			return fmt.Errorf("frame %d: %w", i, ErrEmptyFragment)
		}
	}
	f.Dataset.Remove(tag.PixelData)
	f.Dataset.Put(&Element{Tag: tag.PixelData, VR: vr.OB, Value: NewEncapsulatedPixelData(ts, frames)})
	return nil
}

// SetNativePayload replaces the pixel data with a native element. The VR
// is OB for 8-bit samples and OW otherwise.
func (f *File) SetNativePayload(b []byte) error {
	v := vr.OW
	if f.Dataset.GetInt(tag.BitsAllocated) <= 8 {
		v = vr.OB
	}
	f.Dataset.Remove(tag.PixelData)
	f.Dataset.Put(&Element{Tag: tag.PixelData, VR: v, Value: NewNativePixelData(b)})
	return nil
}

// Serialize writes the file under ts. For JPEG XL targets the matching
// encapsulated representation is made current and every other cached
// representation is discarded. The output is written into a buffer sized
// from the document structure and trimmed to the bytes written.
func (f *File) Serialize(ts transfer.Syntax) ([]byte, error) {
	if !ts.IsKnown() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSyntax, ts)
	}
	if err := f.prepare(ts); err != nil {
		return nil, err
	}

	size := 132 + encodedSize(f.Meta) + encodedSize(f.Dataset) + 4096
	if ts.IsDeflated() {
		size += size/64 + 1024
	}
	bw := &boundedWriter{buf: make([]byte, size)}
	if _, err := f.WriteTo(bw); err != nil {
		return nil, err
	}
	return bw.buf[:bw.n], nil
}

// WriteTo writes preamble, file meta information and dataset using the
// transfer syntax declared in the meta information.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	ts, err := f.TransferSyntax()
	if err != nil {
		return 0, err
	}
	cw := &CountingWriter{Writer: w}

	// Preamble (128 bytes 0x00) and DICM magic
	if _, err := cw.Write(make([]byte, 128)); err != nil {
		return cw.Count.Load(), err
	}
	if _, err := cw.Write([]byte("DICM")); err != nil {
		return cw.Count.Load(), err
	}
	if err := writeMeta(cw, f.Meta); err != nil {
		return cw.Count.Load(), err
	}

	if !ts.IsDeflated() {
		err := NewWriter(cw, ts).WriteDataset(f.Dataset)
		return cw.Count.Load(), err
	}
	fw, err := flate.NewWriter(cw, flate.DefaultCompression)
	if err != nil {
		return cw.Count.Load(), err
	}
	if err := NewWriter(fw, ts).WriteDataset(f.Dataset); err != nil {
		return cw.Count.Load(), err
	}
	err = fw.Close()
	return cw.Count.Load(), err
}

// WriteFile serializes the file under ts to path
func (f *File) WriteFile(path string, ts transfer.Syntax) error {
	data, err := f.Serialize(ts)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// prepare selects the pixel representation matching ts and makes sure the
// meta information declares ts.
func (f *File) prepare(ts transfer.Syntax) error {
	if pd, err := f.pixelData(); err == nil {
		switch {
		case ts.IsEncapsulated():
			if !pd.ChooseRepresentation(ts) {
				return fmt.Errorf("%w: no %s representation", ErrNotEncapsulated, ts.Name())
			}
			pd.RemoveAllButCurrent()
		case pd.IsEncapsulated():
			return fmt.Errorf("%w: cannot write %s", ErrNotNative, ts.Name())
		}
	}
	if f.Meta == nil {
		f.Meta = NewFileMeta(
			f.Dataset.GetString(tag.SOPClassUID),
			f.Dataset.GetString(tag.SOPInstanceUID),
			ts,
		)
	}
	return f.SetTransferSyntax(ts)
}
