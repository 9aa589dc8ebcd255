package dicom

import (
	"encoding/binary"
	"sort"
	"strconv"
	"strings"

	"github.com/jpfielding/dcmjxl.go/pkg/dicom/tag"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom/vr"
)

// Tag alias to avoid duplication
type Tag = tag.Tag

// Dataset represents a DICOM dataset (or a sequence item)
type Dataset struct {
	Elements map[Tag]*Element
}

// Element represents a single DICOM element.
//
// Value holds one of:
//   - string for string VRs (trailing padding removed)
//   - []byte for binary VRs, always in little endian byte order
//   - []*Dataset for sequences
//   - *PixelData for (7FE0,0010)
type Element struct {
	Tag   Tag
	VR    vr.VR
	Value interface{}
}

// NewEmptyDataset returns a dataset with no elements
func NewEmptyDataset() *Dataset {
	return &Dataset{Elements: make(map[Tag]*Element)}
}

// FindElement returns an element by tag
func (ds *Dataset) FindElement(t Tag) (*Element, bool) {
	if ds == nil {
		return nil, false
	}
	elem, ok := ds.Elements[t]
	return elem, ok
}

// Put inserts or replaces an element
func (ds *Dataset) Put(elem *Element) {
	ds.Elements[elem.Tag] = elem
}

// Remove deletes an element, returning true if it existed
func (ds *Dataset) Remove(t Tag) bool {
	_, ok := ds.Elements[t]
	delete(ds.Elements, t)
	return ok
}

// SortedElements returns the elements in ascending tag order
func (ds *Dataset) SortedElements() []*Element {
	elems := make([]*Element, 0, len(ds.Elements))
	for _, e := range ds.Elements {
		elems = append(elems, e)
	}
	sort.Slice(elems, func(i, j int) bool {
		return elems[i].Tag.Less(elems[j].Tag)
	})
	return elems
}

// GetString returns the string value of t, or "" if absent
func (ds *Dataset) GetString(t Tag) string {
	if elem, ok := ds.FindElement(t); ok {
		if s, ok := elem.GetString(); ok {
			return s
		}
	}
	return ""
}

// GetInt returns the first integer value of t (US, UL, SS, SL or IS),
// or 0 if absent or unparsable.
func (ds *Dataset) GetInt(t Tag) int {
	if elem, ok := ds.FindElement(t); ok {
		if v, ok := elem.GetInt(); ok {
			return v
		}
	}
	return 0
}

// SetString stores a string value using the dictionary VR for t
func (ds *Dataset) SetString(t Tag, s string) {
	ds.Put(&Element{Tag: t, VR: t.VR(), Value: s})
}

// SetUint16 stores a US value
func (ds *Dataset) SetUint16(t Tag, v uint16) {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	ds.Put(&Element{Tag: t, VR: vr.US, Value: b})
}

// SetUint32 stores a UL value
func (ds *Dataset) SetUint32(t Tag, v uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	ds.Put(&Element{Tag: t, VR: vr.UL, Value: b})
}

// GetString returns a string value from an element
func (elem *Element) GetString() (string, bool) {
	if s, ok := elem.Value.(string); ok {
		return s, true
	}
	return "", false
}

// GetBytes returns the raw little endian value bytes
func (elem *Element) GetBytes() ([]byte, bool) {
	if b, ok := elem.Value.([]byte); ok {
		return b, true
	}
	return nil, false
}

// GetInt returns the first value of a numeric or IS element
func (elem *Element) GetInt() (int, bool) {
	switch v := elem.Value.(type) {
	case string:
		first, _, _ := strings.Cut(v, "\\")
		i, err := strconv.Atoi(strings.TrimSpace(first))
		if err != nil {
			return 0, false
		}
		return i, true
	case []byte:
		switch {
		case (elem.VR == vr.US) && len(v) >= 2:
			return int(binary.LittleEndian.Uint16(v)), true
		case elem.VR == vr.SS && len(v) >= 2:
			return int(int16(binary.LittleEndian.Uint16(v))), true
		case elem.VR == vr.UL && len(v) >= 4:
			return int(binary.LittleEndian.Uint32(v)), true
		case elem.VR == vr.SL && len(v) >= 4:
			return int(int32(binary.LittleEndian.Uint32(v))), true
		case len(v) == 2:
			return int(binary.LittleEndian.Uint16(v)), true
		case len(v) == 4:
			return int(binary.LittleEndian.Uint32(v)), true
		}
	}
	return 0, false
}

// GetSequence returns the items of a sequence element
func (elem *Element) GetSequence() ([]*Dataset, bool) {
	if items, ok := elem.Value.([]*Dataset); ok {
		return items, true
	}
	return nil, false
}

// GetPixelData returns pixel data from an element
func (elem *Element) GetPixelData() (*PixelData, bool) {
	if pd, ok := elem.Value.(*PixelData); ok {
		return pd, true
	}
	return nil, false
}
