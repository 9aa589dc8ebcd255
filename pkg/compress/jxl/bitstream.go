package jxl

import "fmt"

// BitWriter packs bits least significant first, the JPEG XL header order
type BitWriter struct {
	buf  []byte
	acc  uint64 // Bit buffer
	bits uint   // Number of valid bits in acc
}

// WriteBits writes the low n bits of val (n <= 32)
func (w *BitWriter) WriteBits(val uint64, n uint) {
	w.acc |= (val & (1<<n - 1)) << w.bits
	w.bits += n
	for w.bits >= 8 {
		w.buf = append(w.buf, byte(w.acc))
		w.acc >>= 8
		w.bits -= 8
	}
}

// WriteBool writes a single bit
func (w *BitWriter) WriteBool(b bool) {
	if b {
		w.WriteBits(1, 1)
	} else {
		w.WriteBits(0, 1)
	}
}

// ZeroPadToByte pads with zero bits to the next byte boundary
func (w *BitWriter) ZeroPadToByte() {
	if w.bits > 0 {
		w.WriteBits(0, 8-w.bits)
	}
}

// WriteU32 writes v with the first distribution of d that can hold it
func (w *BitWriter) WriteU32(v uint32, d U32Dist) error {
	for sel, c := range d {
		if v < c.Offset {
			continue
		}
		if c.Bits == 0 && v != c.Offset {
			continue
		}
		if c.Bits > 0 && c.Bits < 32 && uint64(v-c.Offset) >= 1<<c.Bits {
			continue
		}
		w.WriteBits(uint64(sel), 2)
		w.WriteBits(uint64(v-c.Offset), c.Bits)
		return nil
	}
	return fmt.Errorf("%w: value %d not representable", ErrInvalidFormat, v)
}

// Bytes returns the written bytes, padding the last partial byte
func (w *BitWriter) Bytes() []byte {
	w.ZeroPadToByte()
	return w.buf
}

// Len returns the number of complete bytes written
func (w *BitWriter) Len() int {
	return len(w.buf)
}

// BitReader reads bits least significant first from a byte slice
type BitReader struct {
	data []byte
	pos  uint // bit position
}

// NewBitReader creates a new bit reader
func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data}
}

// ReadBits reads n bits (n <= 32)
func (r *BitReader) ReadBits(n uint) (uint64, error) {
	if r.pos+n > uint(len(r.data))*8 {
		return 0, ErrTruncated
	}
	var v uint64
	for i := uint(0); i < n; {
		byteIdx := (r.pos + i) / 8
		bitIdx := (r.pos + i) % 8
		take := 8 - bitIdx
		if take > n-i {
			take = n - i
		}
		chunk := uint64(r.data[byteIdx]>>bitIdx) & (1<<take - 1)
		v |= chunk << i
		i += take
	}
	r.pos += n
	return v, nil
}

// ReadBool reads a single bit
func (r *BitReader) ReadBool() (bool, error) {
	v, err := r.ReadBits(1)
	return v == 1, err
}

// ReadU32 reads a value written with WriteU32 and the same distribution
func (r *BitReader) ReadU32(d U32Dist) (uint32, error) {
	sel, err := r.ReadBits(2)
	if err != nil {
		return 0, err
	}
	c := d[sel]
	v, err := r.ReadBits(c.Bits)
	if err != nil {
		return 0, err
	}
	return c.Offset + uint32(v), nil
}

// ZeroPadToByte skips to the next byte boundary; the skipped bits must be zero
func (r *BitReader) ZeroPadToByte() error {
	if rem := r.pos % 8; rem != 0 {
		v, err := r.ReadBits(8 - rem)
		if err != nil {
			return err
		}
		if v != 0 {
			return fmt.Errorf("%w: non-zero padding", ErrInvalidFormat)
		}
	}
	return nil
}

// BytePos returns the byte offset of the read position, rounded up
func (r *BitReader) BytePos() int {
	return int((r.pos + 7) / 8)
}

// U32Choice is one of the four U32 distributions: Offset plus Bits raw bits
type U32Choice struct {
	Offset uint32
	Bits   uint
}

// U32Dist selects one of four distributions with a 2 bit selector
type U32Dist [4]U32Choice

// Val is a distribution holding exactly v
func Val(v uint32) U32Choice { return U32Choice{Offset: v} }

// BitsOffset is a distribution of n raw bits added to offset
func BitsOffset(n uint, offset uint32) U32Choice { return U32Choice{Offset: offset, Bits: n} }

// Distributions shared by the headers
var (
	distSize   = U32Dist{BitsOffset(9, 1), BitsOffset(13, 1), BitsOffset(18, 1), BitsOffset(30, 1)}
	distCenter = U32Dist{BitsOffset(9, 0), BitsOffset(13, 0), BitsOffset(18, 0), BitsOffset(30, 0)}
	distDepth  = U32Dist{Val(8), Val(10), Val(12), BitsOffset(6, 1)}
	distExtra  = U32Dist{Val(0), Val(1), BitsOffset(4, 2), BitsOffset(12, 1)}
	distEnum   = U32Dist{Val(0), Val(1), BitsOffset(4, 2), BitsOffset(6, 18)}
	distTOC    = U32Dist{BitsOffset(10, 0), BitsOffset(14, 1024), BitsOffset(22, 17408), BitsOffset(30, 4211712)}
)
