// Package tag defines the DICOM tags this module reads or rewrites, and the
// small dictionary used to recover VRs from implicit VR streams.
package tag

import "github.com/jpfielding/dcmjxl.go/pkg/dicom/vr"

// Tag represents a DICOM tag with Group and Element
type Tag struct {
	Group   uint16
	Element uint16
}

// New creates a new Tag
func New(group, element uint16) Tag {
	return Tag{Group: group, Element: element}
}

// IsPrivate returns true if this is a private tag (odd group number)
func (t Tag) IsPrivate() bool {
	return t.Group%2 == 1
}

// IsMeta returns true if this tag is in the File Meta Information group
func (t Tag) IsMeta() bool {
	return t.Group == 0x0002
}

// Less orders tags the way they must appear in a dataset
func (t Tag) Less(o Tag) bool {
	if t.Group != o.Group {
		return t.Group < o.Group
	}
	return t.Element < o.Element
}

// File Meta Information (Group 0002)
var (
	FileMetaInformationGroupLength = Tag{0x0002, 0x0000}
	FileMetaInformationVersion     = Tag{0x0002, 0x0001}
	MediaStorageSOPClassUID        = Tag{0x0002, 0x0002}
	MediaStorageSOPInstanceUID     = Tag{0x0002, 0x0003}
	TransferSyntaxUID              = Tag{0x0002, 0x0010}
	ImplementationClassUID         = Tag{0x0002, 0x0012}
	ImplementationVersionName      = Tag{0x0002, 0x0013}
)

// SOP Common and General Image
var (
	SpecificCharacterSet        = Tag{0x0008, 0x0005}
	ImageType                   = Tag{0x0008, 0x0008}
	SOPClassUID                 = Tag{0x0008, 0x0016}
	SOPInstanceUID              = Tag{0x0008, 0x0018}
	Modality                    = Tag{0x0008, 0x0060}
	PatientName                 = Tag{0x0010, 0x0010}
	PatientID                   = Tag{0x0010, 0x0020}
	StudyInstanceUID            = Tag{0x0020, 0x000D}
	SeriesInstanceUID           = Tag{0x0020, 0x000E}
	InstanceNumber              = Tag{0x0020, 0x0013}
	DerivationDescription       = Tag{0x0008, 0x2111}
	LossyImageCompression       = Tag{0x0028, 0x2110}
	LossyImageCompressionRatio  = Tag{0x0028, 0x2112}
	LossyImageCompressionMethod = Tag{0x0028, 0x2114}
	ReferencedSOPSequence       = Tag{0x0008, 0x1199}
	SourceImageSequence         = Tag{0x0008, 0x2112}
	ReferencedSOPClassUID       = Tag{0x0008, 0x1150}
	ReferencedSOPInstanceUID    = Tag{0x0008, 0x1155}
)

// Image Pixel Module (Group 0028)
var (
	SamplesPerPixel           = Tag{0x0028, 0x0002}
	PhotometricInterpretation = Tag{0x0028, 0x0004}
	PlanarConfiguration       = Tag{0x0028, 0x0006}
	NumberOfFrames            = Tag{0x0028, 0x0008}
	Rows                      = Tag{0x0028, 0x0010}
	Columns                   = Tag{0x0028, 0x0011}
	BitsAllocated             = Tag{0x0028, 0x0100}
	BitsStored                = Tag{0x0028, 0x0101}
	HighBit                   = Tag{0x0028, 0x0102}
	PixelRepresentation       = Tag{0x0028, 0x0103}
	RescaleIntercept          = Tag{0x0028, 0x1052}
	RescaleSlope              = Tag{0x0028, 0x1053}
	WindowCenter              = Tag{0x0028, 0x1050}
	WindowWidth               = Tag{0x0028, 0x1051}
	PixelData                 = Tag{0x7FE0, 0x0010}
)

// Items and delimiters (Group FFFE)
var (
	Item                     = Tag{0xFFFE, 0xE000}
	ItemDelimitationItem     = Tag{0xFFFE, 0xE00D}
	SequenceDelimitationItem = Tag{0xFFFE, 0xE0DD}
)

type entry struct {
	name string
	vr   vr.VR
}

var dictionary = map[Tag]entry{
	FileMetaInformationGroupLength: {"FileMetaInformationGroupLength", vr.UL},
	FileMetaInformationVersion:     {"FileMetaInformationVersion", vr.OB},
	MediaStorageSOPClassUID:        {"MediaStorageSOPClassUID", vr.UI},
	MediaStorageSOPInstanceUID:     {"MediaStorageSOPInstanceUID", vr.UI},
	TransferSyntaxUID:              {"TransferSyntaxUID", vr.UI},
	ImplementationClassUID:         {"ImplementationClassUID", vr.UI},
	ImplementationVersionName:      {"ImplementationVersionName", vr.SH},
	SpecificCharacterSet:           {"SpecificCharacterSet", vr.CS},
	ImageType:                      {"ImageType", vr.CS},
	SOPClassUID:                    {"SOPClassUID", vr.UI},
	SOPInstanceUID:                 {"SOPInstanceUID", vr.UI},
	Modality:                       {"Modality", vr.CS},
	PatientName:                    {"PatientName", vr.PN},
	PatientID:                      {"PatientID", vr.LO},
	StudyInstanceUID:               {"StudyInstanceUID", vr.UI},
	SeriesInstanceUID:              {"SeriesInstanceUID", vr.UI},
	InstanceNumber:                 {"InstanceNumber", vr.IS},
	DerivationDescription:          {"DerivationDescription", vr.ST},
	LossyImageCompression:          {"LossyImageCompression", vr.CS},
	LossyImageCompressionRatio:     {"LossyImageCompressionRatio", vr.DS},
	LossyImageCompressionMethod:    {"LossyImageCompressionMethod", vr.CS},
	ReferencedSOPSequence:          {"ReferencedSOPSequence", vr.SQ},
	SourceImageSequence:            {"SourceImageSequence", vr.SQ},
	ReferencedSOPClassUID:          {"ReferencedSOPClassUID", vr.UI},
	ReferencedSOPInstanceUID:       {"ReferencedSOPInstanceUID", vr.UI},
	SamplesPerPixel:                {"SamplesPerPixel", vr.US},
	PhotometricInterpretation:      {"PhotometricInterpretation", vr.CS},
	PlanarConfiguration:            {"PlanarConfiguration", vr.US},
	NumberOfFrames:                 {"NumberOfFrames", vr.IS},
	Rows:                           {"Rows", vr.US},
	Columns:                        {"Columns", vr.US},
	BitsAllocated:                  {"BitsAllocated", vr.US},
	BitsStored:                     {"BitsStored", vr.US},
	HighBit:                        {"HighBit", vr.US},
	PixelRepresentation:            {"PixelRepresentation", vr.US},
	RescaleIntercept:               {"RescaleIntercept", vr.DS},
	RescaleSlope:                   {"RescaleSlope", vr.DS},
	WindowCenter:                   {"WindowCenter", vr.DS},
	WindowWidth:                    {"WindowWidth", vr.DS},
	PixelData:                      {"PixelData", vr.OW},
}

// LookupName returns a human-readable name for known tags
func (t Tag) LookupName() string {
	return dictionary[t].name
}

// VR returns the dictionary VR of t, used for implicit VR streams.
// Group length elements are UL; anything unknown is UN.
func (t Tag) VR() vr.VR {
	if e, ok := dictionary[t]; ok {
		return e.vr
	}
	if t.Element == 0x0000 {
		return vr.UL
	}
	return vr.UN
}
