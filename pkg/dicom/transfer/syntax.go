// Package transfer defines the DICOM Transfer Syntaxes this module reads,
// writes and produces, and the structural rules each one implies.
package transfer

// Syntax represents a DICOM Transfer Syntax UID
type Syntax string

// Standard Transfer Syntaxes
const (
	// Native (uncompressed)
	ImplicitVRLittleEndian Syntax = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian Syntax = "1.2.840.10008.1.2.1"
	ExplicitVRBigEndian    Syntax = "1.2.840.10008.1.2.2" // Retired
	DeflatedExplicitVR     Syntax = "1.2.840.10008.1.2.1.99"

	// JPEG XL
	JPEGXLLossless          Syntax = "1.2.840.10008.1.2.4.110"
	JPEGXLJPEGRecompression Syntax = "1.2.840.10008.1.2.4.111"
	JPEGXL                  Syntax = "1.2.840.10008.1.2.4.112"
)

// IsJPEGXL reports whether id is one of the three JPEG XL identifiers
// (lossless, JPEG recompression, lossy).
func IsJPEGXL(id string) bool {
	return Syntax(id).IsJPEGXL()
}

// IsNative reports whether id is an uncompressed identifier that carries
// pixel data as a flat byte run.
func IsNative(id string) bool {
	return Syntax(id).IsNative()
}

// IsJPEGXL returns true for the JPEG XL family of transfer syntaxes
func (s Syntax) IsJPEGXL() bool {
	switch s {
	case JPEGXLLossless, JPEGXLJPEGRecompression, JPEGXL:
		return true
	}
	return false
}

// IsNative returns true for the uncompressed little/big endian syntaxes
func (s Syntax) IsNative() bool {
	switch s {
	case ImplicitVRLittleEndian, ExplicitVRLittleEndian, ExplicitVRBigEndian:
		return true
	}
	return false
}

// IsExplicitVR returns true if this transfer syntax uses explicit VR
func (s Syntax) IsExplicitVR() bool {
	return s != ImplicitVRLittleEndian
}

// IsLittleEndian returns true if this transfer syntax uses little endian byte order
func (s Syntax) IsLittleEndian() bool {
	return s != ExplicitVRBigEndian
}

// IsDeflated returns true when the dataset body is deflate compressed
func (s Syntax) IsDeflated() bool {
	return s == DeflatedExplicitVR
}

// IsEncapsulated returns true if pixel data is encapsulated (compressed)
func (s Syntax) IsEncapsulated() bool {
	switch s {
	case ImplicitVRLittleEndian, ExplicitVRLittleEndian, ExplicitVRBigEndian, DeflatedExplicitVR:
		return false
	default:
		return true
	}
}

// IsKnown returns true if the writer can serialize a dataset under s
func (s Syntax) IsKnown() bool {
	return s.IsNative() || s.IsJPEGXL() || s == DeflatedExplicitVR
}

// FirstNative returns the first native identifier in ids
func FirstNative(ids []string) (Syntax, bool) {
	for _, id := range ids {
		if IsNative(id) {
			return Syntax(id), true
		}
	}
	return "", false
}

// Contains reports whether s is listed in ids
func Contains(ids []string, s Syntax) bool {
	for _, id := range ids {
		if Syntax(id) == s {
			return true
		}
	}
	return false
}

// Name returns a human-readable name for the transfer syntax
func (s Syntax) Name() string {
	switch s {
	case ImplicitVRLittleEndian:
		return "Implicit VR Little Endian"
	case ExplicitVRLittleEndian:
		return "Explicit VR Little Endian"
	case ExplicitVRBigEndian:
		return "Explicit VR Big Endian (Retired)"
	case DeflatedExplicitVR:
		return "Deflated Explicit VR Little Endian"
	case JPEGXLLossless:
		return "JPEG XL Lossless"
	case JPEGXLJPEGRecompression:
		return "JPEG XL JPEG Recompression"
	case JPEGXL:
		return "JPEG XL"
	default:
		return string(s)
	}
}

// FromUID converts a UID string to a Syntax
func FromUID(uid string) Syntax {
	return Syntax(uid)
}
