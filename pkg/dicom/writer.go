package dicom

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/jpfielding/dcmjxl.go/pkg/dicom/tag"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom/transfer"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom/vr"
)

// ErrBufferFull is returned when a bounded serialization buffer overflows
var ErrBufferFull = errors.New("serialization buffer full")

// Writer writes DICOM elements under one transfer syntax
type Writer struct {
	w        io.Writer
	order    binary.ByteOrder
	explicit bool
}

// NewWriter creates a writer for a dataset body encoded with ts
func NewWriter(w io.Writer, ts transfer.Syntax) *Writer {
	wr := &Writer{w: w, order: binary.LittleEndian, explicit: ts.IsExplicitVR()}
	if !ts.IsLittleEndian() {
		wr.order = binary.BigEndian
	}
	return wr
}

// WriteDataset writes every element in tag order
func (w *Writer) WriteDataset(ds *Dataset) error {
	for _, elem := range ds.SortedElements() {
		if err := w.WriteElement(elem); err != nil {
			return fmt.Errorf("failed to write element %v: %w", elem.Tag, err)
		}
	}
	return nil
}

// WriteElement writes one element. Sequences are always written with
// undefined length items and delimiters.
func (w *Writer) WriteElement(elem *Element) error {
	switch val := elem.Value.(type) {
	case *PixelData:
		return w.writePixelData(elem, val)
	case []*Dataset:
		return w.writeSequence(elem.Tag, val)
	}

	data, err := w.encodeValue(elem)
	if err != nil {
		return err
	}
	if err := w.writeHeader(elem.Tag, elem.VR, uint32(len(data))); err != nil {
		return err
	}
	_, err = w.w.Write(data)
	return err
}

func (w *Writer) writeHeader(t Tag, v vr.VR, length uint32) error {
	if err := w.writeTag(t); err != nil {
		return err
	}
	if !w.explicit {
		return w.writeUint32(length)
	}
	if !v.IsValid() {
		slog.Warn("Invalid VR, defaulting to UN", slog.String("vr", string(v)), slog.String("tag", t.String()))
		v = vr.UN
	}
	if _, err := w.w.Write([]byte(v)); err != nil {
		return err
	}
	if v.IsLongLength() {
		if _, err := w.w.Write([]byte{0, 0}); err != nil {
			return err
		}
		return w.writeUint32(length)
	}
	if length > 0xFFFF {
		return fmt.Errorf("value length %d too long for VR %s", length, v)
	}
	var b [2]byte
	w.order.PutUint16(b[:], uint16(length))
	_, err := w.w.Write(b[:])
	return err
}

func (w *Writer) writeTag(t Tag) error {
	var b [4]byte
	w.order.PutUint16(b[0:], t.Group)
	w.order.PutUint16(b[2:], t.Element)
	_, err := w.w.Write(b[:])
	return err
}

func (w *Writer) writeUint32(v uint32) error {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	_, err := w.w.Write(b[:])
	return err
}

// encodeValue returns the padded, byte-ordered value of a non-sequence element
func (w *Writer) encodeValue(elem *Element) ([]byte, error) {
	var data []byte
	switch val := elem.Value.(type) {
	case nil:
		return nil, nil
	case string:
		data = []byte(val)
	case []byte:
		data = val
		if w.order == binary.BigEndian && elem.VR.WordSize() > 1 {
			data = bytes.Clone(val)
			swapWords(data, elem.VR.WordSize())
		}
	default:
		return nil, fmt.Errorf("unsupported value type %T for VR %s", val, elem.VR)
	}
	if len(data)%2 != 0 {
		data = append(bytes.Clone(data), elem.VR.PadByte())
	}
	return data, nil
}

func (w *Writer) writeSequence(t Tag, items []*Dataset) error {
	if err := w.writeHeader(t, vr.SQ, undefinedLength); err != nil {
		return err
	}
	for _, item := range items {
		if err := w.writeTag(tag.Item); err != nil {
			return err
		}
		if err := w.writeUint32(undefinedLength); err != nil {
			return err
		}
		if err := w.WriteDataset(item); err != nil {
			return fmt.Errorf("failed to encode sequence item: %w", err)
		}
		if err := w.writeTag(tag.ItemDelimitationItem); err != nil {
			return err
		}
		if err := w.writeUint32(0); err != nil {
			return err
		}
	}
	if err := w.writeTag(tag.SequenceDelimitationItem); err != nil {
		return err
	}
	return w.writeUint32(0)
}

func (w *Writer) writePixelData(elem *Element, pd *PixelData) error {
	rep := pd.Current()
	if rep == nil {
		data := pd.Native
		if w.order == binary.BigEndian && elem.VR == vr.OW {
			data = bytes.Clone(data)
			swapWords(data, 2)
		}
		if len(data)%2 != 0 {
			data = append(bytes.Clone(data), 0)
		}
		if err := w.writeHeader(elem.Tag, elem.VR, uint32(len(data))); err != nil {
			return err
		}
		_, err := w.w.Write(data)
		return err
	}

	if err := w.writeHeader(elem.Tag, vr.OB, undefinedLength); err != nil {
		return err
	}
	// Basic Offset Table
	if err := w.writeTag(tag.Item); err != nil {
		return err
	}
	if err := w.writeUint32(uint32(4 * len(rep.Offsets))); err != nil {
		return err
	}
	for _, off := range rep.Offsets {
		if err := w.writeUint32(off); err != nil {
			return err
		}
	}
	for _, frag := range rep.Fragments {
		if err := w.writeTag(tag.Item); err != nil {
			return err
		}
		// items must have even length
		padded := len(frag) + len(frag)%2
		if err := w.writeUint32(uint32(padded)); err != nil {
			return err
		}
		if _, err := w.w.Write(frag); err != nil {
			return err
		}
		if padded != len(frag) {
			if _, err := w.w.Write([]byte{0}); err != nil {
				return err
			}
		}
	}
	if err := w.writeTag(tag.SequenceDelimitationItem); err != nil {
		return err
	}
	return w.writeUint32(0)
}

// writeMeta writes group 0002 in explicit VR little endian with a freshly
// computed group length.
func writeMeta(w io.Writer, meta *Dataset) error {
	var body bytes.Buffer
	mw := NewWriter(&body, transfer.ExplicitVRLittleEndian)
	for _, elem := range meta.SortedElements() {
		if elem.Tag == tag.FileMetaInformationGroupLength {
			continue
		}
		if err := mw.WriteElement(elem); err != nil {
			return fmt.Errorf("failed to write meta element %v: %w", elem.Tag, err)
		}
	}
	gl := make([]byte, 4)
	binary.LittleEndian.PutUint32(gl, uint32(body.Len()))
	lw := NewWriter(w, transfer.ExplicitVRLittleEndian)
	if err := lw.WriteElement(&Element{Tag: tag.FileMetaInformationGroupLength, VR: vr.UL, Value: gl}); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

// encodedSize returns an upper bound of the serialized size of ds under
// any supported encoding.
func encodedSize(ds *Dataset) int {
	n := 0
	for _, elem := range ds.Elements {
		n += 12
		switch val := elem.Value.(type) {
		case *PixelData:
			if rep := val.Current(); rep != nil {
				n += rep.encodedLength()
			} else {
				n += len(val.Native) + 1
			}
		case []*Dataset:
			for _, item := range val {
				n += 16 + encodedSize(item)
			}
			n += 8
		case string:
			n += len(val) + 1
		case []byte:
			n += len(val) + 1
		}
	}
	return n
}

// boundedWriter writes into a fixed buffer and fails once it is full
type boundedWriter struct {
	buf []byte
	n   int
}

func (b *boundedWriter) Write(p []byte) (int, error) {
	if b.n+len(p) > len(b.buf) {
		return 0, ErrBufferFull
	}
	b.n += copy(b.buf[b.n:], p)
	return len(p), nil
}

// CountingWriter counts the bytes passed to Writer
type CountingWriter struct {
	Count  atomic.Int64
	Writer io.Writer
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.Writer.Write(p)
	c.Count.Add(int64(n))
	return n, err
}
