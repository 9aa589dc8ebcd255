package dicom

import (
	"strconv"

	"github.com/jpfielding/dcmjxl.go/pkg/dicom/tag"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom/transfer"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom/vr"
)

// Option configures a Dataset during construction
type Option func(*Dataset) error

// NewDataset creates a Dataset with the given options
func NewDataset(opts ...Option) (*Dataset, error) {
	ds := NewEmptyDataset()
	for _, opt := range opts {
		if err := opt(ds); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// NewFile wraps a dataset with file meta information declaring ts
func NewFile(ds *Dataset, ts transfer.Syntax) *File {
	return &File{
		Meta:    NewFileMeta(ds.GetString(tag.SOPClassUID), ds.GetString(tag.SOPInstanceUID), ts),
		Dataset: ds,
	}
}

// NewFileMeta builds standard file meta information elements
func NewFileMeta(sopClassUID, sopInstanceUID string, ts transfer.Syntax) *Dataset {
	meta := NewEmptyDataset()
	meta.Put(&Element{Tag: tag.FileMetaInformationVersion, VR: vr.OB, Value: []byte{0x00, 0x01}})
	meta.SetString(tag.MediaStorageSOPClassUID, sopClassUID)
	meta.SetString(tag.MediaStorageSOPInstanceUID, sopInstanceUID)
	meta.SetString(tag.TransferSyntaxUID, string(ts))
	meta.SetString(tag.ImplementationClassUID, ImplementationClassUID)
	meta.SetString(tag.ImplementationVersionName, ImplementationVersionName)
	return meta
}

// WithString adds a string element using the dictionary VR
func WithString(t tag.Tag, value string) Option {
	return func(ds *Dataset) error {
		ds.SetString(t, value)
		return nil
	}
}

// WithUint16 adds a US element
func WithUint16(t tag.Tag, value uint16) Option {
	return func(ds *Dataset) error {
		ds.SetUint16(t, value)
		return nil
	}
}

// WithSequence adds a sequence element to the dataset
func WithSequence(t tag.Tag, items ...*Dataset) Option {
	return func(ds *Dataset) error {
		ds.Put(&Element{Tag: t, VR: vr.SQ, Value: items})
		return nil
	}
}

// WithImagePixel adds the Image Pixel Module attributes for info
func WithImagePixel(info ImageInfo) Option {
	return func(ds *Dataset) error {
		photometric := info.Photometric
		if photometric == "" {
			photometric = "MONOCHROME2"
			if info.SamplesPerPixel == 3 {
				photometric = "RGB"
			}
		}
		ds.SetUint16(tag.Rows, uint16(info.Height))
		ds.SetUint16(tag.Columns, uint16(info.Width))
		ds.SetUint16(tag.SamplesPerPixel, uint16(info.SamplesPerPixel))
		ds.SetString(tag.PhotometricInterpretation, photometric)
		ds.SetUint16(tag.BitsAllocated, uint16(info.BitsAllocated))
		ds.SetUint16(tag.BitsStored, uint16(info.BitsStored))
		ds.SetUint16(tag.HighBit, uint16(info.HighBit))
		pr := uint16(0)
		if info.IsSigned {
			pr = 1
		}
		ds.SetUint16(tag.PixelRepresentation, pr)
		if info.SamplesPerPixel > 1 {
			ds.SetUint16(tag.PlanarConfiguration, uint16(info.PlanarConfiguration))
		}
		if info.NumberOfFrames > 1 {
			ds.SetString(tag.NumberOfFrames, strconv.Itoa(info.NumberOfFrames))
		}
		return nil
	}
}

// WithNativePixelData adds native pixel data, OB for 8-bit samples and OW otherwise
func WithNativePixelData(b []byte) Option {
	return func(ds *Dataset) error {
		v := vr.OW
		if ds.GetInt(tag.BitsAllocated) <= 8 {
			v = vr.OB
		}
		ds.Put(&Element{Tag: tag.PixelData, VR: v, Value: NewNativePixelData(b)})
		return nil
	}
}

// WithEncapsulatedPixelData adds encapsulated pixel data, one fragment per frame
func WithEncapsulatedPixelData(ts transfer.Syntax, frames ...[]byte) Option {
	return func(ds *Dataset) error {
		ds.Put(&Element{Tag: tag.PixelData, VR: vr.OB, Value: NewEncapsulatedPixelData(ts, frames)})
		return nil
	}
}
