/*
   Copyright 2021 Erigon contributors

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Package gapcodec encodes strictly ascending arrays of 16-bit values (bitset gap
// descriptors, positions of bits in a 65536-bit block) choosing per array among
// Elias Gamma, delta-Gamma and binary interpolative coding with optional global and
// window minimum subtraction. The choice is recorded in a leading flag byte.
package gapcodec

import (
	"errors"
	"fmt"

	"github.com/ledgerwatch/log/v3"
	"golang.org/x/exp/constraints"

	"github.com/ncbi/sra-tools-sub027/bitstream"
	"github.com/ncbi/sra-tools-sub027/bytestream"
	"github.com/ncbi/sra-tools-sub027/common/dbg"
	"github.com/ncbi/sra-tools-sub027/common/metrics"
)

const maxArrayLen = 1 << 16 // exclusive

var (
	ErrArrayTooLong = errors.New("gapcodec: array too long")
	ErrBadForceCode = errors.New("gapcodec: unknown force code")
	ErrCorrupt      = errors.New("gapcodec: corrupt array")
)

// ForceCode overrides the scheme choice for arrays of two and more values
type ForceCode uint8

const (
	ForceNone ForceCode = iota
	ForceGamma
	ForceDeltaGamma
)

type EncodeOptions struct {
	Ones bool // stored in the flag byte, returned by the decoder
	EOC  bool // same
	// Force a scheme, ForceNone lets the encoder choose
	Force ForceCode
	// ExternalSize omits the size field, the decoder must get it via DecodeOptions.Size
	ExternalSize bool
}

type DecodeOptions struct {
	// Size of the array when it was encoded with ExternalSize, 0 otherwise
	Size int
}

// Stats describes the last encoded array
type Stats struct {
	Scheme     Scheme
	Size       int
	MinDelta   int // subtracted from every delta, 0 when none
	WDRWindow  int // 0 when window delta-range was not used
	WDRWindows int
	WDRFlagged int
	MinMax     bool
	Bytes      int
}

// Codec encodes and decodes arrays reusing internal scratch space.
// It is not safe for concurrent use; give every goroutine its own.
type Codec struct {
	cfg    Config
	logger log.Logger

	bw bitstream.Writer[*bytestream.Encoder]
	br bitstream.Reader[*bytestream.Decoder]

	vals    []uint16
	flagged []uint16
	extra   []uint32
	prefix  []uint32
	flags   []uint32

	last Stats

	arrays       [4]metrics.Counter // by Scheme
	empty        metrics.Counter
	encodedBytes metrics.Counter
}

func New(cfg Config, logger log.Logger) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New()
	}
	c := &Codec{cfg: cfg, logger: logger}
	for s := range c.arrays {
		c.arrays[s] = metrics.GetOrCreateCounter(fmt.Sprintf(`gapcodec_arrays_total{scheme=%q}`, Scheme(s)))
	}
	c.empty = metrics.GetOrCreateCounter(`gapcodec_arrays_total{scheme="empty"}`)
	c.encodedBytes = metrics.GetOrCreateCounter("gapcodec_encoded_bytes_total")
	return c, nil
}

func (c *Codec) Config() Config { return c.cfg }

// Last returns what EncodeArray decided for the last successfully encoded array
func (c *Codec) Last() Stats { return c.last }

// EncodeArray appends arr, strictly ascending with fewer than 65536 values, to enc.
// On ErrShortBuffer the encoder holds a partial array: rewind it with SetPos.
func (c *Codec) EncodeArray(enc *bytestream.Encoder, arr []uint16, opts EncodeOptions) error {
	sz := len(arr)
	if sz >= maxArrayLen {
		return fmt.Errorf("%w: %d values", ErrArrayTooLong, sz)
	}
	if opts.Force > ForceDeltaGamma {
		return fmt.Errorf("%w: %d", ErrBadForceCode, opts.Force)
	}
	if dbg.AssertEnabled() {
		dbg.Assert(isStrictlyAscending(arr), "gapcodec: array is not strictly ascending")
	}
	start := enc.Pos()
	common := Common{Ones: opts.Ones, EOC: opts.EOC}
	st := Stats{Scheme: SchemeSingle, Size: sz}
	switch {
	case sz == 0:
		enc.Put8(EmptyHeader{Common: common}.Byte())
	case sz == 1:
		c.encodeSingle(enc, arr[0], common)
	case opts.Force == ForceGamma:
		st.Scheme = SchemeGamma
		c.encodeGamma(enc, arr, common, opts.ExternalSize)
	case opts.Force == ForceDeltaGamma:
		st.Scheme = SchemeDeltaGamma
		st.MinDelta = c.encodeDeltaGamma(enc, arr, common, opts.ExternalSize)
	default:
		st.Scheme = SchemeBIC
		c.encodeBIC(enc, arr, common, opts.ExternalSize, &st)
	}
	if err := enc.Err(); err != nil {
		return fmt.Errorf("gapcodec: encoding %d values: %w", sz, err)
	}
	st.Bytes = enc.Pos() - start
	c.last = st
	if sz == 0 {
		c.empty.Inc()
	} else {
		c.arrays[st.Scheme].Inc()
	}
	c.encodedBytes.Add(st.Bytes)
	if c.cfg.Trace {
		c.logger.Trace("[gapcodec] encoded", "scheme", st.Scheme, "size", sz, "bytes", st.Bytes,
			"minDelta", st.MinDelta, "wdrWindow", st.WDRWindow, "wdrFlagged", st.WDRFlagged, "minmax", st.MinMax)
	}
	return nil
}

func (c *Codec) encodeSingle(enc *bytestream.Encoder, v uint16, common Common) {
	h := SingleHeader{Common: common, Zero: v == 0, GammaValue: v != 0 && v < 16}
	enc.Put8(h.Byte())
	if h.Zero {
		return
	}
	c.bw.Reset(enc)
	if h.GammaValue {
		c.bw.Gamma(uint32(v))
	} else {
		c.bw.Put16NO(v)
	}
	c.bw.Flush()
}

// useGammaSize tells whether the size goes as Gamma(sz-1) rather than Delta16(sz)
func useGammaSize(sz int) bool {
	return sz <= 256 || bitstream.GammaSize(uint32(sz-1)) <= bitstream.Delta16Size(uint16(sz))
}

func (c *Codec) putSize(sz int, gamma bool) {
	if gamma {
		c.bw.Gamma(uint32(sz - 1))
	} else {
		c.bw.Delta16(uint16(sz))
	}
}

func (c *Codec) getSize(gamma bool, opts DecodeOptions) (int, error) {
	if opts.Size != 0 {
		if opts.Size < 2 || opts.Size >= maxArrayLen {
			return 0, fmt.Errorf("%w: external size %d", ErrCorrupt, opts.Size)
		}
		return opts.Size, nil
	}
	var sz int
	if gamma {
		sz = int(c.br.Gamma()) + 1
	} else {
		sz = int(c.br.Delta16())
	}
	if sz < 2 || sz >= maxArrayLen {
		return 0, fmt.Errorf("%w: size %d", ErrCorrupt, sz)
	}
	return sz, nil
}

func (c *Codec) encodeGamma(enc *bytestream.Encoder, arr []uint16, common Common, external bool) {
	h := GammaHeader{Common: common, GammaSize: !external && useGammaSize(len(arr)), ZeroCorrected: arr[0] == 0}
	enc.Put8(h.Byte())
	c.bw.Reset(enc)
	if !external {
		c.putSize(len(arr), h.GammaSize)
	}
	zc := zeroCorrection(h.ZeroCorrected)
	for _, v := range arr {
		c.bw.Gamma(uint32(v) + zc)
	}
	c.bw.Flush()
}

// encodeDeltaGamma returns the subtracted minimum delta
func (c *Codec) encodeDeltaGamma(enc *bytestream.Encoder, arr []uint16, common Common, external bool) int {
	m := minDelta(arr) - 1
	h := DeltaGammaHeader{
		Common:        common,
		GammaSize:     !external && useGammaSize(len(arr)),
		ZeroCorrected: arr[0] == 0,
		MinZero:       m == 0,
	}
	enc.Put8(h.Byte())
	c.bw.Reset(enc)
	if !external {
		c.putSize(len(arr), h.GammaSize)
	}
	if m != 0 {
		c.bw.Gamma(uint32(m))
	}
	c.bw.Gamma(uint32(arr[0]) + zeroCorrection(h.ZeroCorrected))
	for i := 1; i < len(arr); i++ {
		c.bw.Gamma(uint32(int(arr[i]) - int(arr[i-1]) - m))
	}
	c.bw.Flush()
	return m
}

func (c *Codec) encodeBIC(enc *bytestream.Encoder, arr []uint16, common Common, external bool, st *Stats) {
	sz := len(arr)
	m := 0
	var plan wdrPlan
	if sz > 2 {
		md := minDelta(arr)
		plan = c.planWDR(arr, md)
		m = md - 1
		if plan.window == 0 && m > 0 {
			span := int(arr[sz-1]) - int(arr[0])
			saved := bicCost(sz, span) - bicCost(sz, span-(sz-1)*m) - gammaCost(m)
			if saved < float64(c.cfg.MinDeltaSavings) {
				m = 0
			}
		}
	}

	vals := arr
	if m > 0 || plan.window > 0 {
		c.vals = grow16(c.vals, sz)
		compact(c.vals, arr, m, plan.window, c.extra)
		vals = c.vals
	}
	hi := maxArrayLen - 1 - (sz-1)*m
	minMax := sz > c.cfg.MinMaxMinSize && int(vals[0])+hi-int(vals[sz-1]) > c.cfg.MinMaxWaste

	h := BICHeader{Common: common, GammaSize: !external && useGammaSize(sz), MinZero: m == 0, MinMax: minMax}
	enc.Put8(h.Byte())
	c.bw.Reset(enc)
	if !external {
		c.putSize(sz, h.GammaSize)
	}
	if m != 0 {
		c.bw.Gamma(uint32(m))
	}
	if minMax {
		first, last := vals[0], vals[sz-1]
		c.bw.Put16NO(first)
		c.bw.Put16NO(last)
		bitstream.EncodeBICCM(&c.bw, vals[1:sz-1], first+1, last-1)
	} else {
		bitstream.EncodeBICCM(&c.bw, vals, 0, uint16(hi))
	}
	if plan.window > 0 {
		c.bw.PutBit(1)
		c.putWDR(&c.bw, plan)
	} else {
		c.bw.PutZeroBit()
	}
	c.bw.Flush()

	st.MinDelta, st.MinMax = m, minMax
	st.WDRWindow, st.WDRWindows, st.WDRFlagged = plan.window, plan.windows, plan.flagged
}

func zeroCorrection(on bool) uint32 {
	if on {
		return 1
	}
	return 0
}

// minDelta returns the smallest difference of consecutive values, len(arr) >= 2
func minDelta(arr []uint16) int {
	md := maxArrayLen
	for i := 1; i < len(arr); i++ {
		if d := int(arr[i]) - int(arr[i-1]); d < md {
			md = d
		}
	}
	return md
}

func isStrictlyAscending[T constraints.Unsigned](arr []T) bool {
	for i := 1; i < len(arr); i++ {
		if arr[i] <= arr[i-1] {
			return false
		}
	}
	return true
}

func grow16(b []uint16, n int) []uint16 {
	if cap(b) < n {
		return make([]uint16, n)
	}
	return b[:n]
}

func grow32(b []uint32, n int) []uint32 {
	if cap(b) < n {
		return make([]uint32, n)
	}
	return b[:n]
}

func zero32(b []uint32) []uint32 {
	for i := range b {
		b[i] = 0
	}
	return b
}
