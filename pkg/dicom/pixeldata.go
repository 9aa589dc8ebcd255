package dicom

import (
	"encoding/binary"

	"github.com/jpfielding/dcmjxl.go/pkg/dicom/transfer"
)

// PixelData is the value of (7FE0,0010). It is either native (a flat run of
// little endian samples) or encapsulated. An encapsulated element may hold
// several alternative representations while a transcode is in flight; only
// the current one is read or written.
type PixelData struct {
	Native []byte

	reps    []*Representation
	current int
}

// Representation is one encapsulated encoding of the pixel data
type Representation struct {
	Syntax    transfer.Syntax
	Offsets   []uint32 // Basic Offset Table, empty when unused
	Fragments [][]byte // items after the offset table
}

// NewNativePixelData wraps raw samples
func NewNativePixelData(b []byte) *PixelData {
	return &PixelData{Native: b}
}

// NewEncapsulatedPixelData builds pixel data with a single representation:
// an empty offset table followed by one fragment per frame.
func NewEncapsulatedPixelData(ts transfer.Syntax, frames [][]byte) *PixelData {
	frags := make([][]byte, len(frames))
	copy(frags, frames)
	return &PixelData{reps: []*Representation{{Syntax: ts, Fragments: frags}}}
}

// IsEncapsulated returns true when the element holds fragments
func (pd *PixelData) IsEncapsulated() bool {
	return len(pd.reps) > 0
}

// Current returns the active encapsulated representation, nil when native
func (pd *PixelData) Current() *Representation {
	if len(pd.reps) == 0 {
		return nil
	}
	return pd.reps[pd.current]
}

// Representations returns every cached representation
func (pd *PixelData) Representations() []*Representation {
	return pd.reps
}

// AddRepresentation caches another encoding and makes it current
func (pd *PixelData) AddRepresentation(rep *Representation) {
	for i, r := range pd.reps {
		if r.Syntax == rep.Syntax {
			pd.reps[i] = rep
			pd.current = i
			return
		}
	}
	pd.reps = append(pd.reps, rep)
	pd.current = len(pd.reps) - 1
}

// ChooseRepresentation makes the representation for ts current
func (pd *PixelData) ChooseRepresentation(ts transfer.Syntax) bool {
	for i, r := range pd.reps {
		if r.Syntax == ts {
			pd.current = i
			return true
		}
	}
	return false
}

// RemoveAllButCurrent drops every cached representation except the current one
func (pd *PixelData) RemoveAllButCurrent() {
	if len(pd.reps) <= 1 {
		return
	}
	pd.reps = []*Representation{pd.reps[pd.current]}
	pd.current = 0
}

// Items returns the encapsulated items as they appear on the wire: the
// Basic Offset Table first, then the fragments.
func (r *Representation) Items() [][]byte {
	bot := make([]byte, 4*len(r.Offsets))
	for i, off := range r.Offsets {
		binary.LittleEndian.PutUint32(bot[i*4:], off)
	}
	items := make([][]byte, 0, len(r.Fragments)+1)
	items = append(items, bot)
	return append(items, r.Fragments...)
}

// encodedLength returns the byte length of the items and delimiter, with
// fragments padded to even length.
func (r *Representation) encodedLength() int {
	n := 8 + 4*len(r.Offsets)
	for _, f := range r.Fragments {
		n += 8 + len(f) + len(f)%2
	}
	return n + 8
}
