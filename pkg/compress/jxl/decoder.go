package jxl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Event is a decoder status or a subscribable event
type Event int

const (
	EventSuccess            Event = 0
	EventError              Event = 1
	EventNeedMoreInput      Event = 2
	EventNeedImageOutBuffer Event = 5
	EventBasicInfo          Event = 0x40
	EventColorEncoding      Event = 0x100
	EventFullImage          Event = 0x1000
)

const subscribable = EventBasicInfo | EventColorEncoding | EventFullImage

// maxSamples bounds the decoded image size
const maxSamples = 1 << 28

func (e Event) String() string {
	switch e {
	case EventSuccess:
		return "success"
	case EventError:
		return "error"
	case EventNeedMoreInput:
		return "need more input"
	case EventNeedImageOutBuffer:
		return "need image out buffer"
	case EventBasicInfo:
		return "basic info"
	case EventColorEncoding:
		return "color encoding"
	case EventFullImage:
		return "full image"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

type decoderStage int

const (
	stageStart decoderStage = iota
	stageHeader
	stageImage
	stageDone
)

// Decoder decodes a codestream held in memory. Subscribe to events, set
// the input and call ProcessInput until it returns EventSuccess or
// EventError.
type Decoder struct {
	runner    *Runner
	events    Event
	input     []byte
	closed    bool
	started   bool
	stage     decoderStage
	header    imageHeader
	outFormat PixelFormat
	out       []byte
	err       error
}

// NewDecoder creates a decoder running jobs on runner, nil runs inline
func NewDecoder(runner *Runner) *Decoder {
	if runner == nil {
		runner = NewRunner(1)
	}
	return &Decoder{runner: runner}
}

// SubscribeEvents selects the events ProcessInput reports, before any input
func (d *Decoder) SubscribeEvents(events Event) error {
	if d.started {
		return fmt.Errorf("%w: subscribe after decoding started", ErrAPIUsage)
	}
	if events&^subscribable != 0 {
		return fmt.Errorf("%w: events %#x are not subscribable", ErrAPIUsage, int(events&^subscribable))
	}
	d.events = events
	return nil
}

// SetInput sets the codestream bytes seen so far; the slice is not copied
func (d *Decoder) SetInput(data []byte) error {
	if d.closed {
		return fmt.Errorf("%w: input already closed", ErrAPIUsage)
	}
	d.input = data
	return nil
}

// CloseInput marks the input as complete; truncation becomes an error
func (d *Decoder) CloseInput() {
	d.closed = true
}

// Err returns the error behind EventError
func (d *Decoder) Err() error {
	return d.err
}

// BasicInfo is available after EventBasicInfo
func (d *Decoder) BasicInfo() (BasicInfo, error) {
	if d.stage < stageHeader {
		return BasicInfo{}, fmt.Errorf("%w: basic info not yet decoded", ErrAPIUsage)
	}
	return d.header.info, nil
}

// ColorEncoding is available after EventBasicInfo
func (d *Decoder) ColorEncoding() (ColorEncoding, error) {
	if d.stage < stageHeader {
		return ColorEncoding{}, fmt.Errorf("%w: color encoding not yet decoded", ErrAPIUsage)
	}
	return d.header.color, nil
}

// ImageOutBufferSize returns the buffer size needed for format
func (d *Decoder) ImageOutBufferSize(format PixelFormat) (int, error) {
	if d.stage < stageHeader {
		return 0, fmt.Errorf("%w: basic info not yet decoded", ErrAPIUsage)
	}
	if err := format.validate(); err != nil {
		return 0, err
	}
	if format.NumChannels < int(d.header.info.NumColorChannels) {
		return 0, fmt.Errorf("%w: %d channel output for %d channel image", ErrAPIUsage, format.NumChannels, d.header.info.NumColorChannels)
	}
	info := d.header.info
	return int(info.Xsize) * int(info.Ysize) * format.NumChannels * format.BytesPerSample(), nil
}

// SetImageOutBuffer sets the buffer receiving the full image
func (d *Decoder) SetImageOutBuffer(format PixelFormat, buf []byte) error {
	size, err := d.ImageOutBufferSize(format)
	if err != nil {
		return err
	}
	if len(buf) < size {
		return fmt.Errorf("%w: output buffer of %d bytes, need %d", ErrAPIUsage, len(buf), size)
	}
	d.outFormat, d.out = format, buf[:size]
	return nil
}

// ProcessInput advances decoding and returns the next event or status
func (d *Decoder) ProcessInput() Event {
	d.started = true
	if d.err != nil {
		return EventError
	}
	for {
		switch d.stage {
		case stageStart:
			hdr, err := readImageHeader(NewBitReader(d.input))
			if err != nil {
				return d.fail(err)
			}
			info := hdr.info
			if uint64(info.Xsize)*uint64(info.Ysize)*uint64(info.NumColorChannels) > maxSamples {
				return d.fail(fmt.Errorf("%w: image %dx%d too large", ErrUnsupported, info.Xsize, info.Ysize))
			}
			d.header, d.stage = hdr, stageHeader
			if d.events&EventBasicInfo != 0 {
				return EventBasicInfo
			}
		case stageHeader:
			d.stage = stageImage
			if d.events&EventColorEncoding != 0 {
				return EventColorEncoding
			}
		case stageImage:
			if d.events&EventFullImage == 0 {
				d.stage = stageDone
				return EventSuccess
			}
			if d.out == nil {
				return EventNeedImageOutBuffer
			}
			if err := d.decodeFrame(); err != nil {
				return d.fail(err)
			}
			d.stage = stageDone
			return EventFullImage
		default:
			return EventSuccess
		}
	}
}

func (d *Decoder) fail(err error) Event {
	if errors.Is(err, ErrTruncated) && !d.closed {
		return EventNeedMoreInput
	}
	d.err = err
	return EventError
}

func (d *Decoder) decodeFrame() error {
	r := NewBitReader(d.input)
	if _, err := readImageHeader(r); err != nil {
		return err
	}
	fh, err := readFrameHeader(r)
	if err != nil {
		return err
	}
	info := d.header.info
	w, h := int(info.Xsize), int(info.Ysize)
	geom := newGeometry(w, h, fh.groupDim())
	passes := fh.passes()
	groups := geom.numGroups()
	perm, sizes, err := readTOC(r, 1+groups*passes)
	if err != nil {
		return err
	}

	sections := make([][]byte, len(sizes))
	offset := r.BytePos()
	for _, idx := range perm {
		end := offset + sizes[idx]
		if end > len(d.input) {
			return ErrTruncated
		}
		sections[idx] = d.input[offset:end]
		offset = end
	}

	planeCount := int(info.NumColorChannels)
	limit := uint64(w)*uint64(h)*uint64(planeCount)*binary.MaxVarintLen64 + 1<<20
	unpacker, err := newSectionUnpacker(limit)
	if err != nil {
		return err
	}
	defer unpacker.Close()
	payloads := make([][]byte, len(sections))
	if err := d.runner.Run(len(sections), func(i int) error {
		p, err := unpacker.unpack(sections[i])
		payloads[i] = p
		return err
	}); err != nil {
		return err
	}

	var planes [][]int32
	if fh.encoding == encodingModular {
		planes, err = d.decodeModular(fh, geom, planeCount, payloads)
	} else {
		planes, err = d.decodeVarDCT(fh, geom, planeCount, payloads)
	}
	if err != nil {
		return err
	}
	for _, p := range planes {
		clampPlane(p, info.maxValue())
	}
	interleave(planes, info.maxValue(), d.outFormat, d.out)
	return nil
}

func (d *Decoder) decodeModular(fh frameHeader, geom geometry, planeCount int, payloads [][]byte) ([][]int32, error) {
	if fh.rct && planeCount != 3 {
		return nil, fmt.Errorf("%w: color transform on %d channels", ErrInvalidFormat, planeCount)
	}
	var plan []squeezeStep
	if fh.squeeze {
		plan = squeezePlan(geom.width, geom.height, 0)
	}
	m := newModularLayout(planeCount, geom.width, geom.height, plan)
	m.allocate()
	if err := m.readGlobal(payloads[0]); err != nil {
		return nil, err
	}
	if err := d.runner.Run(geom.numGroups(), func(g int) error {
		return m.readGroup(payloads[1+g], geom, g)
	}); err != nil {
		return nil, err
	}
	planes := m.unsqueeze()
	if fh.rct {
		InverseRCT(planes[0], planes[1], planes[2])
	}
	return planes, nil
}

func (d *Decoder) decodeVarDCT(fh frameHeader, geom geometry, planeCount int, payloads [][]byte) ([][]int32, error) {
	if geom.gdim%blockDim != 0 {
		return nil, fmt.Errorf("%w: group size %d", ErrInvalidFormat, geom.gdim)
	}
	dct := newDCTImage(planeCount, geom.width, geom.height, newQuantizer(fh.distance, d.header.info.maxValue()))
	if err := dct.readDC(payloads[0], fh.progressiveDC); err != nil {
		return nil, err
	}
	groups := geom.numGroups()
	ranges := passRanges(fh.passes())
	if err := d.runner.Run(groups*len(ranges), func(i int) error {
		return dct.readAC(payloads[1+i], geom, i%groups, ranges[i/groups])
	}); err != nil {
		return nil, err
	}

	recon := make([][]float64, planeCount)
	for c := range recon {
		recon[c] = make([]float64, geom.width*geom.height)
	}
	if err := d.runner.Run(dct.bh, func(by int) error {
		dct.reconstruct(recon, by)
		return nil
	}); err != nil {
		return nil, err
	}
	planes := make([][]int32, planeCount)
	for c, p := range recon {
		planes[c] = make([]int32, len(p))
		for i, v := range p {
			planes[c][i] = int32(math.Round(max(math.MinInt32, min(math.MaxInt32, v))))
		}
	}
	if planeCount == 3 {
		InverseRCT(planes[0], planes[1], planes[2])
	}
	return planes, nil
}
