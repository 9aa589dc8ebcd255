package dicom

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jpfielding/dcmjxl.go/pkg/dicom/tag"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom/transfer"
	"github.com/jpfielding/dcmjxl.go/pkg/dicom/vr"
	"github.com/klauspost/compress/flate"
)

const undefinedLength = 0xFFFFFFFF

// Reader reads DICOM elements under one transfer syntax
type Reader struct {
	r        io.Reader
	syntax   transfer.Syntax
	order    binary.ByteOrder
	explicit bool
}

// NewReader creates a reader for a dataset body encoded with ts
func NewReader(r io.Reader, ts transfer.Syntax) *Reader {
	rd := &Reader{r: r, syntax: ts, order: binary.LittleEndian, explicit: ts.IsExplicitVR()}
	if !ts.IsLittleEndian() {
		rd.order = binary.BigEndian
	}
	return rd
}

// child returns a reader with the same encoding over a nested stream
func (r *Reader) child(in io.Reader) *Reader {
	return &Reader{r: in, syntax: r.syntax, order: r.order, explicit: r.explicit}
}

// Parse reads a complete DICOM file from memory. Parsing is lenient: a
// stream that ends early or contains a malformed element keeps everything
// read so far and sets ParseWarning. A file with no dataset elements at
// all is rejected with ErrNoDataset.
func Parse(data []byte) (*File, error) {
	return ParseReader(bytes.NewReader(data))
}

// ParseReader is Parse over a stream
func ParseReader(in io.Reader) (*File, error) {
	br := bufio.NewReader(in)
	f := &File{}

	head, _ := br.Peek(132)
	switch {
	case len(head) == 132 && string(head[128:132]) == "DICM":
		br.Discard(132)
	case len(head) >= 4 && string(head[:4]) == "DICM":
		f.warn("missing 128 byte preamble")
		br.Discard(4)
	default:
		f.warn("missing DICM prefix, reading a bare dataset")
	}

	// Group 0002 (File Meta Information) is ALWAYS Explicit VR Little Endian
	meta, err := readMeta(br)
	if err != nil {
		return nil, fmt.Errorf("%w: file meta information: %v", ErrInvalidFile, err)
	}
	if len(meta.Elements) > 0 {
		f.Meta = meta
	}

	ts := guessSyntax(br)
	if f.Meta != nil {
		if uid := f.Meta.GetString(tag.TransferSyntaxUID); uid != "" {
			ts = transfer.FromUID(uid)
		} else {
			f.warn("file meta information has no transfer syntax")
		}
	}

	var body io.Reader = br
	if ts.IsDeflated() {
		fr := flate.NewReader(br)
		defer fr.Close()
		body = fr
	}

	ds, err := NewReader(body, ts).ReadDataset()
	if err != nil {
		f.warn(err.Error())
	}
	if ds == nil || len(ds.Elements) == 0 {
		return nil, ErrNoDataset
	}
	f.Dataset = ds
	if f.ParseWarning {
		slog.Debug("dicom parsed with warnings",
			slog.String("syntax", string(ts)),
			slog.Any("warnings", f.Warnings))
	}
	return f, nil
}

func readMeta(br *bufio.Reader) (*Dataset, error) {
	meta := NewEmptyDataset()
	r := NewReader(br, transfer.ExplicitVRLittleEndian)
	for {
		p, err := br.Peek(2)
		if err != nil || binary.LittleEndian.Uint16(p) != 0x0002 {
			return meta, nil
		}
		t, err := r.readTag()
		if err != nil {
			return nil, err
		}
		elem, err := r.readElement(t)
		if err != nil {
			return nil, fmt.Errorf("element %v: %w", t, err)
		}
		meta.Put(elem)
	}
}

// guessSyntax looks for an explicit VR in the first element when the file
// does not declare its transfer syntax.
func guessSyntax(br *bufio.Reader) transfer.Syntax {
	p, err := br.Peek(6)
	if err == nil && vr.VR(p[4:6]).IsValid() {
		return transfer.ExplicitVRLittleEndian
	}
	return transfer.ImplicitVRLittleEndian
}

// ReadDataset reads elements until the end of the stream. On error the
// elements read so far are returned alongside it.
func (r *Reader) ReadDataset() (*Dataset, error) {
	return r.readItemBody(false)
}

// readItemBody reads elements until EOF or, for undefined length items,
// the item delimiter.
func (r *Reader) readItemBody(delimited bool) (*Dataset, error) {
	ds := NewEmptyDataset()
	for {
		t, err := r.readTag()
		if err == io.EOF {
			if delimited {
				return ds, fmt.Errorf("missing item delimiter: %w", io.ErrUnexpectedEOF)
			}
			return ds, nil
		}
		if err != nil {
			return ds, fmt.Errorf("failed to read tag: %w", err)
		}
		if t == tag.ItemDelimitationItem {
			if _, err := r.readUint32(); err != nil {
				return ds, err
			}
			return ds, nil
		}
		elem, err := r.readElement(t)
		if err != nil {
			return ds, fmt.Errorf("failed to read element %v: %w", t, err)
		}
		ds.Put(elem)
	}
}

// readElement reads a DICOM element after the tag has been read
func (r *Reader) readElement(t Tag) (*Element, error) {
	var v vr.VR
	var vl uint32

	if r.explicit {
		var vrBytes [2]byte
		if _, err := io.ReadFull(r.r, vrBytes[:]); err != nil {
			return nil, err
		}
		v = vr.VR(vrBytes[:])
		if !v.IsValid() {
			return nil, fmt.Errorf("invalid VR %q", vrBytes)
		}
		if v.IsLongLength() {
			var reserved [2]byte
			if _, err := io.ReadFull(r.r, reserved[:]); err != nil {
				return nil, err
			}
			l, err := r.readUint32()
			if err != nil {
				return nil, err
			}
			vl = l
		} else {
			var b [2]byte
			if _, err := io.ReadFull(r.r, b[:]); err != nil {
				return nil, err
			}
			vl = uint32(r.order.Uint16(b[:]))
		}
	} else {
		l, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		vl = l
		v = t.VR()
		if t == tag.PixelData && vl == undefinedLength {
			v = vr.OB
		}
	}

	value, err := r.readValue(t, v, vl)
	if err != nil {
		return nil, err
	}
	if _, ok := value.([]*Dataset); ok {
		v = vr.SQ
	}
	return &Element{Tag: t, VR: v, Value: value}, nil
}

func (r *Reader) readTag() (Tag, error) {
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return Tag{}, err
	}
	return Tag{Group: r.order.Uint16(b[0:]), Element: r.order.Uint16(b[2:])}, nil
}

func (r *Reader) readUint32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, err
	}
	return r.order.Uint32(b[:]), nil
}

// readBytes reads exactly n bytes without trusting n for the allocation
func (r *Reader) readBytes(n uint32) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.r, int64(n)))
	if err != nil {
		return nil, err
	}
	if uint32(len(data)) != n {
		return nil, io.ErrUnexpectedEOF
	}
	return data, nil
}

// readValue reads the value based on VR and VL
func (r *Reader) readValue(t Tag, v vr.VR, vl uint32) (interface{}, error) {
	if vl == undefinedLength {
		if t == tag.PixelData {
			return r.readEncapsulatedPixelData()
		}
		// undefined length is only legal for sequences (and UN holding one)
		return r.readSequence(vl)
	}
	if v == vr.SQ {
		return r.readSequence(vl)
	}

	data, err := r.readBytes(vl)
	if err != nil {
		return nil, err
	}

	if t == tag.PixelData {
		if r.order == binary.BigEndian && v == vr.OW {
			swapWords(data, 2)
		}
		return NewNativePixelData(data), nil
	}
	if v.IsString() {
		return trimPadding(data), nil
	}
	if r.order == binary.BigEndian {
		swapWords(data, v.WordSize())
	}
	return data, nil
}

// readSequence reads items until the delimiter or, for a defined length,
// until the length is consumed.
func (r *Reader) readSequence(vl uint32) ([]*Dataset, error) {
	items := []*Dataset{}
	sr := r
	if vl != undefinedLength {
		sr = r.child(io.LimitReader(r.r, int64(vl)))
	}
	for {
		t, err := sr.readTag()
		if err == io.EOF && vl != undefinedLength {
			return items, nil
		}
		if err != nil {
			return items, fmt.Errorf("reading sequence item tag: %w", err)
		}
		length, err := sr.readUint32()
		if err != nil {
			return items, fmt.Errorf("reading item length: %w", err)
		}
		switch t {
		case tag.SequenceDelimitationItem:
			return items, nil
		case tag.Item:
			var item *Dataset
			if length == undefinedLength {
				item, err = sr.readItemBody(true)
			} else {
				item, err = sr.child(io.LimitReader(sr.r, int64(length))).readItemBody(false)
			}
			if item != nil {
				items = append(items, item)
			}
			if err != nil {
				return items, fmt.Errorf("reading sequence item: %w", err)
			}
		default:
			return items, fmt.Errorf("expected item tag, got %v", t)
		}
	}
}

// readEncapsulatedPixelData reads the offset table and fragments
func (r *Reader) readEncapsulatedPixelData() (*PixelData, error) {
	rep := &Representation{Syntax: r.syntax}

	botTag, err := r.readTag()
	if err != nil {
		return nil, err
	}
	if botTag != tag.Item {
		return nil, fmt.Errorf("expected BOT item tag, got %v", botTag)
	}
	botLength, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	if botLength > 0 {
		bot, err := r.readBytes(botLength)
		if err != nil {
			return nil, err
		}
		rep.Offsets = make([]uint32, botLength/4)
		for i := range rep.Offsets {
			rep.Offsets[i] = r.order.Uint32(bot[i*4:])
		}
	}

	for {
		itemTag, err := r.readTag()
		if err != nil {
			return nil, err
		}
		length, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		if itemTag == tag.SequenceDelimitationItem {
			break
		}
		if itemTag != tag.Item {
			return nil, fmt.Errorf("expected item tag, got %v", itemTag)
		}
		if length == undefinedLength {
			return nil, errors.New("undefined length fragment")
		}
		frag, err := r.readBytes(length)
		if err != nil {
			return nil, err
		}
		rep.Fragments = append(rep.Fragments, frag)
	}

	pd := &PixelData{}
	pd.AddRepresentation(rep)
	return pd, nil
}

// trimPadding removes trailing NUL and space padding from string values
func trimPadding(data []byte) string {
	n := len(data)
	for n > 0 && (data[n-1] == 0 || data[n-1] == ' ') {
		n--
	}
	return string(data[:n])
}

// swapWords reverses the byte order of each size-byte word in place
func swapWords(data []byte, size int) {
	if size < 2 {
		return
	}
	for i := 0; i+size <= len(data); i += size {
		for a, b := i, i+size-1; a < b; a, b = a+1, b-1 {
			data[a], data[b] = data[b], data[a]
		}
	}
}
