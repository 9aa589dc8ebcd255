package jxl

import (
	"fmt"
	"math"
)

// EncoderStatus is returned by ProcessOutput
type EncoderStatus int

const (
	StatusSuccess EncoderStatus = iota
	StatusError
	StatusNeedMoreOutput
)

func (s EncoderStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNeedMoreOutput:
		return "need more output"
	default:
		return "error"
	}
}

// FrameSetting names an integer frame option
type FrameSetting int

const (
	FrameSettingEffort FrameSetting = iota
	FrameSettingModular
	FrameSettingResponsive
	FrameSettingGroupOrder
	FrameSettingGroupOrderCenterX
	FrameSettingGroupOrderCenterY
	FrameSettingProgressiveDC
	FrameSettingProgressiveAC
)

const (
	DefaultEffort   = 7
	DefaultDistance = 1.0
	MaxDistance     = 25.0
)

// FrameSettings are the options of the frame added with AddImageFrame.
// Integer options use -1 for the encoder default.
type FrameSettings struct {
	lossless      bool
	distance      float32
	effort        int64
	modular       int64
	responsive    int64
	groupOrder    int64
	centerX       int64
	centerY       int64
	progressiveDC int64
	progressiveAC int64
}

func newFrameSettings() *FrameSettings {
	return &FrameSettings{
		distance:      DefaultDistance,
		effort:        DefaultEffort,
		modular:       -1,
		responsive:    -1,
		groupOrder:    -1,
		centerX:       -1,
		centerY:       -1,
		progressiveDC: -1,
		progressiveAC: -1,
	}
}

// SetLossless requests mathematically lossless coding
func (fs *FrameSettings) SetLossless(lossless bool) error {
	fs.lossless = lossless
	return nil
}

// SetDistance sets the butteraugli style target distance, 0 is lossless
func (fs *FrameSettings) SetDistance(d float32) error {
	if math.IsNaN(float64(d)) || d < 0 || d > MaxDistance {
		return fmt.Errorf("%w: distance %v outside [0, %v]", ErrAPIUsage, d, MaxDistance)
	}
	fs.distance = d
	return nil
}

// SetOption sets an integer frame option
func (fs *FrameSettings) SetOption(opt FrameSetting, v int64) error {
	inRange := func(lo, hi int64) error {
		if v < lo || v > hi {
			return fmt.Errorf("%w: option %d value %d outside [%d, %d]", ErrAPIUsage, opt, v, lo, hi)
		}
		return nil
	}
	var err error
	switch opt {
	case FrameSettingEffort:
		if err = inRange(1, 10); err == nil {
			fs.effort = v
		}
	case FrameSettingModular:
		if err = inRange(-1, 1); err == nil {
			fs.modular = v
		}
	case FrameSettingResponsive:
		if err = inRange(-1, 1); err == nil {
			fs.responsive = v
		}
	case FrameSettingGroupOrder:
		if err = inRange(-1, 1); err == nil {
			fs.groupOrder = v
		}
	case FrameSettingGroupOrderCenterX:
		if err = inRange(-1, math.MaxInt32); err == nil {
			fs.centerX = v
		}
	case FrameSettingGroupOrderCenterY:
		if err = inRange(-1, math.MaxInt32); err == nil {
			fs.centerY = v
		}
	case FrameSettingProgressiveDC:
		if err = inRange(-1, 2); err == nil {
			fs.progressiveDC = v
		}
	case FrameSettingProgressiveAC:
		if err = inRange(-1, 1); err == nil {
			fs.progressiveAC = v
		}
	default:
		err = fmt.Errorf("%w: unknown frame option %d", ErrAPIUsage, opt)
	}
	return err
}

// resolve turns the settings into the frame header of a w x h image
// with the given number of color channels.
func (fs *FrameSettings) resolve(w, h, channels int) (frameHeader, error) {
	fh := frameHeader{
		effort:     int(fs.effort),
		groupShift: defaultGroupSizeShift,
	}
	lossless := fs.lossless || fs.distance == 0
	switch {
	case fs.modular == 1 && !lossless:
		return fh, fmt.Errorf("%w: lossy modular frames", ErrUnsupported)
	case lossless:
		fh.encoding = encodingModular
		fh.squeeze = fs.responsive == 1 || (fs.modular == 0 && fs.progressiveDC > 0)
		fh.rct = channels == 3
	default:
		fh.encoding = encodingVarDCT
		fh.distance = fs.distance
		fh.progressiveDC = int(max(0, fs.progressiveDC))
		fh.progressiveAC = fs.progressiveAC == 1
	}
	if fs.groupOrder == 1 {
		fh.groupOrder = true
		cx, cy := fs.centerX, fs.centerY
		if cx < 0 {
			cx = int64(w / 2)
		}
		if cy < 0 {
			cy = int64(h / 2)
		}
		fh.centerX = uint32(min(cx, int64(w-1)))
		fh.centerY = uint32(min(cy, int64(h-1)))
	}
	return fh, nil
}

// Encoder produces a single frame codestream. Set the basic info and
// color encoding, add a frame, close the input and drain ProcessOutput.
type Encoder struct {
	runner   *Runner
	info     BasicInfo
	infoSet  bool
	color    ColorEncoding
	colorSet bool
	settings *FrameSettings
	frame    *FrameSettings
	planes   [][]int32
	closed   bool
	out      []byte
	written  int
	encoded  bool
	err      error
}

// NewEncoder creates an encoder running jobs on runner, nil runs inline
func NewEncoder(runner *Runner) *Encoder {
	if runner == nil {
		runner = NewRunner(1)
	}
	return &Encoder{runner: runner}
}

// SetBasicInfo sets the image dimensions and sample depth
func (e *Encoder) SetBasicInfo(info BasicInfo) error {
	switch {
	case info.Xsize == 0 || info.Ysize == 0:
		return fmt.Errorf("%w: empty image %dx%d", ErrAPIUsage, info.Xsize, info.Ysize)
	case info.Xsize > 1<<30 || info.Ysize > 1<<30:
		return fmt.Errorf("%w: image %dx%d too large", ErrUnsupported, info.Xsize, info.Ysize)
	case info.BitsPerSample < 1 || info.BitsPerSample > 16:
		return fmt.Errorf("%w: %d bits per sample", ErrUnsupported, info.BitsPerSample)
	case info.NumColorChannels != 1 && info.NumColorChannels != 3:
		return fmt.Errorf("%w: %d color channels", ErrUnsupported, info.NumColorChannels)
	}
	e.info = info
	e.infoSet = true
	return nil
}

// SetColorEncoding sets the declared color encoding, after SetBasicInfo
func (e *Encoder) SetColorEncoding(c ColorEncoding) error {
	if !e.infoSet {
		return fmt.Errorf("%w: color encoding before basic info", ErrAPIUsage)
	}
	if err := c.validate(e.info.NumColorChannels); err != nil {
		return err
	}
	e.color = c
	e.colorSet = true
	return nil
}

// FrameSettings returns the settings applied to the next frame
func (e *Encoder) FrameSettings() *FrameSettings {
	if e.settings == nil {
		e.settings = newFrameSettings()
	}
	return e.settings
}

// AddImageFrame adds the single frame of the image. pixels holds
// Xsize*Ysize interleaved samples in format.
func (e *Encoder) AddImageFrame(fs *FrameSettings, format PixelFormat, pixels []byte) error {
	switch {
	case !e.infoSet:
		return fmt.Errorf("%w: frame before basic info", ErrAPIUsage)
	case e.planes != nil:
		return fmt.Errorf("%w: only one frame is supported", ErrUnsupported)
	case e.closed:
		return fmt.Errorf("%w: input already closed", ErrAPIUsage)
	case fs == nil:
		return fmt.Errorf("%w: nil frame settings", ErrAPIUsage)
	}
	if err := format.validate(); err != nil {
		return err
	}
	if uint32(format.NumChannels) != e.info.NumColorChannels {
		return fmt.Errorf("%w: %d channel buffer for %d channel image", ErrAPIUsage, format.NumChannels, e.info.NumColorChannels)
	}
	w, h := int(e.info.Xsize), int(e.info.Ysize)
	want := w * h * format.NumChannels * format.BytesPerSample()
	if len(pixels) != want {
		return fmt.Errorf("%w: buffer of %d bytes, expected %d", ErrAPIUsage, len(pixels), want)
	}
	planes, err := deinterleave(pixels, format, w, h, e.info.maxValue())
	if err != nil {
		return err
	}
	e.planes = planes
	copied := *fs
	e.frame = &copied
	return nil
}

// CloseInput marks the end of the frames
func (e *Encoder) CloseInput() {
	e.closed = true
}

// Err returns the error behind StatusError
func (e *Encoder) Err() error {
	return e.err
}

// ProcessOutput copies codestream bytes into dst and returns how many were
// written. StatusNeedMoreOutput asks for another call with fresh space.
func (e *Encoder) ProcessOutput(dst []byte) (int, EncoderStatus) {
	if e.err != nil {
		return 0, StatusError
	}
	if !e.encoded {
		if e.planes == nil || !e.closed {
			e.err = fmt.Errorf("%w: output requested before the frame was added and input closed", ErrAPIUsage)
			return 0, StatusError
		}
		out, err := e.encode()
		if err != nil {
			e.err = err
			return 0, StatusError
		}
		e.out, e.encoded = out, true
		e.planes = nil
	}
	n := copy(dst, e.out[e.written:])
	e.written += n
	if e.written < len(e.out) {
		return n, StatusNeedMoreOutput
	}
	return n, StatusSuccess
}

func (e *Encoder) encode() ([]byte, error) {
	w, h := int(e.info.Xsize), int(e.info.Ysize)
	color := e.color
	if !e.colorSet {
		color = LinearColorEncoding(e.info.NumColorChannels == 1)
	}
	fh, err := e.frame.resolve(w, h, len(e.planes))
	if err != nil {
		return nil, err
	}
	geom := newGeometry(w, h, fh.groupDim())
	order := geom.groupOrder(fh.groupOrder, int(fh.centerX), int(fh.centerY))
	passes := fh.passes()
	groups := geom.numGroups()

	payloads := make([][]byte, 1+groups*passes)
	if fh.encoding == encodingModular {
		err = e.encodeModular(fh, geom, payloads)
	} else {
		err = e.encodeVarDCT(fh, geom, payloads)
	}
	if err != nil {
		return nil, err
	}

	packer, err := newSectionPacker(fh.effort)
	if err != nil {
		return nil, err
	}
	defer packer.Close()
	sections := make([][]byte, len(payloads))
	if err := e.runner.Run(len(payloads), func(i int) error {
		sections[i] = packer.pack(payloads[i])
		return nil
	}); err != nil {
		return nil, err
	}

	bw := &BitWriter{}
	if err := writeImageHeader(bw, imageHeader{info: e.info, color: color}); err != nil {
		return nil, err
	}
	if err := writeFrameHeader(bw, fh); err != nil {
		return nil, err
	}
	sizes := make([]int, len(sections))
	total := 0
	for i, s := range sections {
		sizes[i] = len(s)
		total += len(s)
	}
	perm := sectionPermutation(order, passes)
	if err := writeTOC(bw, perm, sizes); err != nil {
		return nil, err
	}
	out := make([]byte, 0, bw.Len()+total)
	out = append(out, bw.Bytes()...)
	for _, idx := range perm {
		out = append(out, sections[idx]...)
	}
	return out, nil
}

func (e *Encoder) encodeModular(fh frameHeader, geom geometry, payloads [][]byte) error {
	if fh.rct {
		ForwardRCT(e.planes[0], e.planes[1], e.planes[2])
	}
	var plan []squeezeStep
	if fh.squeeze {
		plan = squeezePlan(geom.width, geom.height, 0)
	}
	m := squeezeImage(e.planes, geom.width, geom.height, plan)
	payloads[0] = m.appendGlobal(nil, fh.effort)
	return e.runner.Run(geom.numGroups(), func(g int) error {
		payloads[1+g] = m.appendGroup(nil, geom, g, fh.effort)
		return nil
	})
}

func (e *Encoder) encodeVarDCT(fh frameHeader, geom geometry, payloads [][]byte) error {
	if len(e.planes) == 3 {
		ForwardRCT(e.planes[0], e.planes[1], e.planes[2])
	}
	d := newDCTImage(len(e.planes), geom.width, geom.height, newQuantizer(fh.distance, e.info.maxValue()))
	if err := e.runner.Run(d.bh, func(by int) error {
		d.transform(e.planes, by)
		return nil
	}); err != nil {
		return err
	}
	payloads[0] = d.appendDC(nil, fh.progressiveDC, fh.effort)
	groups := geom.numGroups()
	ranges := passRanges(fh.passes())
	return e.runner.Run(groups*len(ranges), func(i int) error {
		p, g := i/groups, i%groups
		payloads[1+i] = d.appendAC(nil, geom, g, ranges[p])
		return nil
	})
}
