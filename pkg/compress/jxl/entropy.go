package jxl

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// section payload methods, the first byte of every section
const (
	sectionRaw  byte = 0
	sectionZstd byte = 1
)

// sectionPacker compresses section payloads; safe for concurrent use
type sectionPacker struct {
	enc *zstd.Encoder
}

func zstdLevel(effort int) zstd.EncoderLevel {
	switch {
	case effort <= 3:
		return zstd.SpeedFastest
	case effort <= 6:
		return zstd.SpeedDefault
	case effort <= 8:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

func newSectionPacker(effort int) (*sectionPacker, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstdLevel(effort)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %v", err)
	}
	return &sectionPacker{enc: enc}, nil
}

// pack returns the section bytes for payload, stored raw unless zstd is smaller
func (p *sectionPacker) pack(payload []byte) []byte {
	if len(payload) > 0 {
		packed := p.enc.EncodeAll(payload, []byte{sectionZstd})
		if len(packed) < len(payload)+1 {
			return packed
		}
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, sectionRaw)
	return append(out, payload...)
}

func (p *sectionPacker) Close() error {
	return p.enc.Close()
}

// sectionUnpacker reverses sectionPacker; safe for concurrent use
type sectionUnpacker struct {
	dec *zstd.Decoder
}

func newSectionUnpacker(maxSize uint64) (*sectionUnpacker, error) {
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(maxSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %v", err)
	}
	return &sectionUnpacker{dec: dec}, nil
}

func (u *sectionUnpacker) unpack(section []byte) ([]byte, error) {
	if len(section) == 0 {
		return nil, fmt.Errorf("%w: empty section", ErrInvalidFormat)
	}
	switch section[0] {
	case sectionRaw:
		return section[1:], nil
	case sectionZstd:
		out, err := u.dec.DecodeAll(section[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: section method %d", ErrInvalidFormat, section[0])
	}
}

func (u *sectionUnpacker) Close() {
	u.dec.Close()
}
