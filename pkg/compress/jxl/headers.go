package jxl

import (
	"fmt"
	"math"
)

const (
	encodingModular = 0
	encodingVarDCT  = 1

	// groupSizeShift selects 128 << shift; 1 gives 256x256 groups
	defaultGroupSizeShift = 1
)

// imageHeader is the signature, size header and image metadata
type imageHeader struct {
	info  BasicInfo
	color ColorEncoding
}

func writeImageHeader(w *BitWriter, h imageHeader) error {
	w.WriteBits(uint64(Signature[0]), 8)
	w.WriteBits(uint64(Signature[1]), 8)

	// SizeHeader
	xs, ys := h.info.Xsize, h.info.Ysize
	small := xs%8 == 0 && ys%8 == 0 && xs <= 256 && ys <= 256
	w.WriteBool(small)
	if small {
		w.WriteBits(uint64(ys/8-1), 5)
		w.WriteBits(uint64(xs/8-1), 5)
	} else {
		if err := w.WriteU32(ys, distSize); err != nil {
			return err
		}
		if err := w.WriteU32(xs, distSize); err != nil {
			return err
		}
	}

	// ImageMetadata
	w.WriteBool(false) // all_default
	w.WriteBool(false) // float_sample
	if err := w.WriteU32(h.info.BitsPerSample, distDepth); err != nil {
		return err
	}
	w.WriteBool(h.info.BitsPerSample <= 12) // modular_16_bit_buffer_sufficient
	if err := w.WriteU32(0, distExtra); err != nil {
		return err
	}
	w.WriteBool(!h.info.UsesOriginalProfile) // xyb_encoded

	// ColorEncoding
	w.WriteBool(false) // all_default
	for _, v := range []uint32{uint32(h.color.ColorSpace), uint32(h.color.Transfer), uint32(h.color.RenderingIntent)} {
		if err := w.WriteU32(v, distEnum); err != nil {
			return err
		}
	}
	return nil
}

func readImageHeader(r *BitReader) (imageHeader, error) {
	var h imageHeader
	sig, err := r.ReadBits(16)
	if err != nil {
		return h, err
	}
	if byte(sig) != Signature[0] || byte(sig>>8) != Signature[1] {
		return h, fmt.Errorf("%w: bad signature", ErrInvalidFormat)
	}

	small, err := r.ReadBool()
	if err != nil {
		return h, err
	}
	if small {
		ys, err := r.ReadBits(5)
		if err != nil {
			return h, err
		}
		xs, err := r.ReadBits(5)
		if err != nil {
			return h, err
		}
		h.info.Ysize, h.info.Xsize = uint32(ys+1)*8, uint32(xs+1)*8
	} else {
		if h.info.Ysize, err = r.ReadU32(distSize); err != nil {
			return h, err
		}
		if h.info.Xsize, err = r.ReadU32(distSize); err != nil {
			return h, err
		}
	}

	allDefault, err := r.ReadBool()
	if err != nil {
		return h, err
	}
	if allDefault {
		return h, fmt.Errorf("%w: default image metadata", ErrUnsupported)
	}
	float, err := r.ReadBool()
	if err != nil {
		return h, err
	}
	if float {
		return h, fmt.Errorf("%w: float samples", ErrUnsupported)
	}
	if h.info.BitsPerSample, err = r.ReadU32(distDepth); err != nil {
		return h, err
	}
	if h.info.BitsPerSample < 1 || h.info.BitsPerSample > 16 {
		return h, fmt.Errorf("%w: %d bits per sample", ErrUnsupported, h.info.BitsPerSample)
	}
	if _, err := r.ReadBool(); err != nil {
		return h, err
	}
	extra, err := r.ReadU32(distExtra)
	if err != nil {
		return h, err
	}
	if extra != 0 {
		return h, fmt.Errorf("%w: %d extra channels", ErrUnsupported, extra)
	}
	xyb, err := r.ReadBool()
	if err != nil {
		return h, err
	}
	h.info.UsesOriginalProfile = !xyb

	allDefault, err = r.ReadBool()
	if err != nil {
		return h, err
	}
	if allDefault {
		h.color = ColorEncoding{ColorSpace: ColorSpaceRGB, Transfer: TransferSRGB, RenderingIntent: IntentRelative}
	} else {
		var vals [3]uint32
		for i := range vals {
			if vals[i], err = r.ReadU32(distEnum); err != nil {
				return h, err
			}
		}
		h.color = ColorEncoding{
			ColorSpace:      ColorSpace(vals[0]),
			Transfer:        TransferFunction(vals[1]),
			RenderingIntent: RenderingIntent(vals[2]),
		}
	}
	h.info.NumColorChannels = 3
	if h.color.ColorSpace == ColorSpaceGray {
		h.info.NumColorChannels = 1
	}
	if err := h.color.validate(h.info.NumColorChannels); err != nil {
		return h, err
	}
	return h, nil
}

// frameHeader selects the frame encoding and its progressive layout
type frameHeader struct {
	encoding      int
	squeeze       bool
	rct           bool
	effort        int
	groupShift    int
	distance      float32
	progressiveDC int
	progressiveAC bool
	groupOrder    bool
	centerX       uint32
	centerY       uint32
}

func (fh frameHeader) groupDim() int {
	return 128 << fh.groupShift
}

// passes returns the number of group passes
func (fh frameHeader) passes() int {
	if fh.encoding == encodingVarDCT && fh.progressiveAC {
		return 2
	}
	return 1
}

func writeFrameHeader(w *BitWriter, fh frameHeader) error {
	w.WriteBool(false) // all_default
	w.WriteBits(uint64(fh.encoding), 1)
	w.WriteBool(fh.squeeze)
	w.WriteBool(fh.rct)
	w.WriteBits(uint64(fh.effort), 4)
	w.WriteBits(uint64(fh.groupShift), 2)
	if fh.encoding == encodingVarDCT {
		w.WriteBits(uint64(math.Float32bits(fh.distance)), 32)
		w.WriteBits(uint64(fh.progressiveDC), 2)
		w.WriteBool(fh.progressiveAC)
	}
	w.WriteBool(fh.groupOrder)
	if fh.groupOrder {
		if err := w.WriteU32(fh.centerX, distCenter); err != nil {
			return err
		}
		if err := w.WriteU32(fh.centerY, distCenter); err != nil {
			return err
		}
	}
	return nil
}

func readFrameHeader(r *BitReader) (frameHeader, error) {
	var fh frameHeader
	allDefault, err := r.ReadBool()
	if err != nil {
		return fh, err
	}
	if allDefault {
		return fh, fmt.Errorf("%w: default frame header", ErrUnsupported)
	}
	enc, err := r.ReadBits(1)
	if err != nil {
		return fh, err
	}
	fh.encoding = int(enc)
	if fh.squeeze, err = r.ReadBool(); err != nil {
		return fh, err
	}
	if fh.rct, err = r.ReadBool(); err != nil {
		return fh, err
	}
	effort, err := r.ReadBits(4)
	if err != nil {
		return fh, err
	}
	fh.effort = int(effort)
	shift, err := r.ReadBits(2)
	if err != nil {
		return fh, err
	}
	fh.groupShift = int(shift)
	if fh.encoding == encodingVarDCT {
		bits, err := r.ReadBits(32)
		if err != nil {
			return fh, err
		}
		fh.distance = math.Float32frombits(uint32(bits))
		if !(fh.distance > 0) || math.IsInf(float64(fh.distance), 0) {
			return fh, fmt.Errorf("%w: distance %v", ErrInvalidFormat, fh.distance)
		}
		pdc, err := r.ReadBits(2)
		if err != nil {
			return fh, err
		}
		fh.progressiveDC = int(pdc)
		if fh.progressiveAC, err = r.ReadBool(); err != nil {
			return fh, err
		}
	}
	if fh.groupOrder, err = r.ReadBool(); err != nil {
		return fh, err
	}
	if fh.groupOrder {
		if fh.centerX, err = r.ReadU32(distCenter); err != nil {
			return fh, err
		}
		if fh.centerY, err = r.ReadU32(distCenter); err != nil {
			return fh, err
		}
	}
	return fh, nil
}
