package gapcodec

import (
	"fmt"

	"github.com/ncbi/sra-tools-sub027/bitstream"
	"github.com/ncbi/sra-tools-sub027/bytestream"
)

// DecodeArray reads one array written by EncodeArray. Values go to dst, grown when
// too short. The returned header carries the Ones/EOC hints.
//
// Only byte level bounds are checked: a truncated buffer gives an error wrapping
// bytestream.ErrShortBuffer, a buffer not produced by EncodeArray gives garbage.
func (c *Codec) DecodeArray(dec *bytestream.Decoder, dst []uint16, opts DecodeOptions) ([]uint16, Header, error) {
	b := dec.Get8()
	if err := dec.Err(); err != nil {
		return dst[:0], nil, fmt.Errorf("gapcodec: reading flag byte: %w", err)
	}
	var (
		h   = ParseHeader(b)
		out []uint16
		err error
	)
	switch h := h.(type) {
	case EmptyHeader:
		out = dst[:0]
	case SingleHeader:
		out = grow16(dst, 1)
		out[0] = c.decodeSingle(dec, h)
	case GammaHeader:
		out, err = c.decodeGamma(dec, h, dst, opts)
	case DeltaGammaHeader:
		out, err = c.decodeDeltaGamma(dec, h, dst, opts)
	case BICHeader:
		out, err = c.decodeBIC(dec, h, dst, opts)
	}
	if derr := dec.Err(); derr != nil {
		err = derr // a short buffer explains whatever else went wrong
	}
	if err != nil {
		return dst[:0], h, fmt.Errorf("gapcodec: decoding %s array: %w", h.Scheme(), err)
	}
	return out, h, nil
}

// DecodeToBlock reads one array and sets the bits it lists in block,
// which must hold 65536 bits. Bits already set stay set.
func (c *Codec) DecodeToBlock(dec *bytestream.Decoder, block []uint32, opts DecodeOptions) (Header, error) {
	vals, h, err := c.DecodeArray(dec, c.vals, opts)
	if err != nil {
		return h, err
	}
	c.vals = vals
	for _, v := range vals {
		block[v>>5] |= 1 << (v & 31)
	}
	return h, nil
}

func (c *Codec) decodeSingle(dec *bytestream.Decoder, h SingleHeader) uint16 {
	if h.Zero {
		return 0
	}
	c.br.Reset(dec)
	if h.GammaValue {
		return uint16(c.br.Gamma())
	}
	return c.br.Get16NO()
}

func (c *Codec) decodeGamma(dec *bytestream.Decoder, h GammaHeader, dst []uint16, opts DecodeOptions) ([]uint16, error) {
	c.br.Reset(dec)
	sz, err := c.getSize(h.GammaSize, opts)
	if err != nil {
		return nil, err
	}
	out := grow16(dst, sz)
	zc := zeroCorrection(h.ZeroCorrected)
	for i := range out {
		out[i] = uint16(c.br.Gamma() - zc)
	}
	return out, nil
}

func (c *Codec) decodeDeltaGamma(dec *bytestream.Decoder, h DeltaGammaHeader, dst []uint16, opts DecodeOptions) ([]uint16, error) {
	c.br.Reset(dec)
	sz, err := c.getSize(h.GammaSize, opts)
	if err != nil {
		return nil, err
	}
	m := 0
	if !h.MinZero {
		m = int(c.br.Gamma())
	}
	out := grow16(dst, sz)
	v := int(c.br.Gamma() - zeroCorrection(h.ZeroCorrected))
	out[0] = uint16(v)
	for i := 1; i < sz; i++ {
		v += int(c.br.Gamma()) + m
		out[i] = uint16(v)
	}
	return out, nil
}

// bicRange reads what precedes the BIC payload: size, global minimum and the
// default upper bound
func (c *Codec) bicRange(h BICHeader, opts DecodeOptions) (sz, m, hi int, err error) {
	if sz, err = c.getSize(h.GammaSize, opts); err != nil {
		return 0, 0, 0, err
	}
	if !h.MinZero {
		m = int(c.br.Gamma())
	}
	hi = maxArrayLen - 1 - (sz-1)*m
	if hi < sz-1 {
		return 0, 0, 0, fmt.Errorf("%w: minimum delta %d too large for %d values", ErrCorrupt, m, sz)
	}
	return sz, m, hi, nil
}

func (c *Codec) minMax(sz int) (first, last uint16, err error) {
	first, last = c.br.Get16NO(), c.br.Get16NO()
	if int(last)-int(first) < sz-1 {
		return 0, 0, fmt.Errorf("%w: range [%d,%d] for %d values", ErrCorrupt, first, last, sz)
	}
	return first, last, nil
}

func (c *Codec) decodeBIC(dec *bytestream.Decoder, h BICHeader, dst []uint16, opts DecodeOptions) ([]uint16, error) {
	c.br.Reset(dec)
	sz, m, hi, err := c.bicRange(h, opts)
	if err != nil {
		return nil, err
	}
	out := grow16(dst, sz)
	if h.MinMax {
		first, last, err := c.minMax(sz)
		if err != nil {
			return nil, err
		}
		out[0], out[sz-1] = first, last
		bitstream.DecodeBICCM(&c.br, out[1:sz-1], first+1, last-1)
	} else {
		bitstream.DecodeBICCM(&c.br, out, 0, uint16(hi))
	}
	window := 0
	var extra []uint32
	if c.br.GetBit() == 1 {
		if window, extra, err = c.getWDR(&c.br, sz); err != nil {
			return nil, err
		}
	}
	if m > 0 || window > 0 {
		expand(out, m, window, extra)
	}
	return out, nil
}

// SkipArray moves dec past one array without materializing it
func (c *Codec) SkipArray(dec *bytestream.Decoder, opts DecodeOptions) (Header, error) {
	b := dec.Get8()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("gapcodec: reading flag byte: %w", err)
	}
	h := ParseHeader(b)
	var err error
	switch h := h.(type) {
	case SingleHeader:
		c.decodeSingle(dec, h)
	case GammaHeader:
		c.br.Reset(dec)
		var sz int
		if sz, err = c.getSize(h.GammaSize, opts); err == nil {
			c.skipGammas(sz)
		}
	case DeltaGammaHeader:
		c.br.Reset(dec)
		var sz int
		if sz, err = c.getSize(h.GammaSize, opts); err == nil {
			if !h.MinZero {
				c.br.Gamma()
			}
			c.skipGammas(sz)
		}
	case BICHeader:
		c.br.Reset(dec)
		err = c.skipBIC(h, opts)
	}
	if derr := dec.Err(); derr != nil {
		err = derr
	}
	if err != nil {
		return h, fmt.Errorf("gapcodec: skipping %s array: %w", h.Scheme(), err)
	}
	return h, nil
}

func (c *Codec) skipGammas(n int) {
	for i := 0; i < n; i++ {
		c.br.Gamma()
	}
}

func (c *Codec) skipBIC(h BICHeader, opts DecodeOptions) error {
	sz, _, hi, err := c.bicRange(h, opts)
	if err != nil {
		return err
	}
	if h.MinMax {
		first, last, err := c.minMax(sz)
		if err != nil {
			return err
		}
		bitstream.DecodeBICCMDry(&c.br, sz-2, uint32(first)+1, uint32(last)-1)
	} else {
		bitstream.DecodeBICCMDry(&c.br, sz, 0, uint32(hi))
	}
	if c.br.GetBit() == 1 {
		return skipWDR(&c.br, sz)
	}
	return nil
}
