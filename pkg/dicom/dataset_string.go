package dicom

import (
	"encoding/json"
	"fmt"
	"strings"
)

// String returns a string representation of the Element
func (e *Element) String() string {
	// Format: [Tag] [VR] (Name) ... : Value
	tagName := e.Tag.LookupName()
	if tagName != "" {
		tagName = " " + tagName
	}
	return fmt.Sprintf("[%s] %s%s: %s", e.Tag, e.VR, tagName, e.valueString())
}

func (e *Element) valueString() string {
	switch v := e.Value.(type) {
	case *PixelData:
		if rep := v.Current(); rep != nil {
			return fmt.Sprintf("Encapsulated Pixel Data (%s, %d fragments)", rep.Syntax.Name(), len(rep.Fragments))
		}
		return fmt.Sprintf("Native Pixel Data (%d bytes)", len(v.Native))
	case []*Dataset:
		return fmt.Sprintf("Sequence (%d items)", len(v))
	case []byte:
		if n, ok := e.GetInt(); ok && len(v) <= 4 {
			return fmt.Sprintf("%d", n)
		}
		if len(v) > 20 {
			return fmt.Sprintf("Binary Data (%d bytes)", len(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// MarshalJSON returns a JSON representation of the Element
func (e *Element) MarshalJSON() ([]byte, error) {
	var value interface{} = e.Value
	switch e.Value.(type) {
	case *PixelData, []byte:
		value = e.valueString()
	}
	return json.Marshal(&struct {
		Tag   string      `json:"tag"`
		Name  string      `json:"name,omitempty"`
		VR    string      `json:"vr"`
		Value interface{} `json:"value"`
	}{
		Tag:   e.Tag.String(),
		Name:  e.Tag.LookupName(),
		VR:    string(e.VR),
		Value: value,
	})
}

// String returns a string representation of the Dataset
func (ds *Dataset) String() string {
	if ds == nil {
		return "<nil>"
	}
	var b strings.Builder
	for _, elem := range ds.SortedElements() {
		b.WriteString(elem.String())
		b.WriteString("\n")
	}
	return b.String()
}

// MarshalJSON returns a sorted array of Elements instead of a Map
func (ds *Dataset) MarshalJSON() ([]byte, error) {
	return json.Marshal(ds.SortedElements())
}
